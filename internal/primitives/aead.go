package primitives

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"

	"e2eecore/internal/coreerr"
)

const (
	// AEADKeySize is the AES-256-GCM key length in bytes.
	AEADKeySize = 32
	// AEADNonceSize is the GCM IV length mandated by spec.md §4.1 (96 bits).
	AEADNonceSize = 12
	// AEADTagSize is the GCM authentication tag length (128 bits).
	AEADTagSize = 16
)

// Sealed is the output of AEADSeal: a fresh IV, the ciphertext, and the tag.
// v1 has no associated data (spec.md §9) so ciphertext and tag are produced
// with an empty AAD; adding AAD later is a wire-format change, not something
// this function accepts as a parameter to be safely ignored.
type Sealed struct {
	Ciphertext []byte
	IV         [AEADNonceSize]byte
	Tag        [AEADTagSize]byte
}

// AEADSeal encrypts plaintext under key (must be 32 bytes) using AES-256-GCM
// with a fresh random 96-bit IV generated internally from the CSRNG. The tag
// is split out from Go's combined GCM output so callers can place it into
// the wire envelope's own authTag field (spec.md §3).
func AEADSeal(key, plaintext []byte) (Sealed, error) {
	if len(key) != AEADKeySize {
		return Sealed{}, coreerr.Wrap(coreerr.KindIntegrity, errInvalidKeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return Sealed{}, err
	}
	gcm, err := cipher.NewGCMWithTagSize(block, AEADTagSize)
	if err != nil {
		return Sealed{}, err
	}

	ivBytes, err := RandomBytes(AEADNonceSize)
	if err != nil {
		return Sealed{}, err
	}
	var iv [AEADNonceSize]byte
	copy(iv[:], ivBytes)

	sealed := gcm.Seal(nil, iv[:], plaintext, nil)
	ctLen := len(sealed) - AEADTagSize

	out := Sealed{
		Ciphertext: append([]byte(nil), sealed[:ctLen]...),
		IV:         iv,
	}
	copy(out.Tag[:], sealed[ctLen:])
	return out, nil
}

// AEADOpen verifies and decrypts. A failed tag verification is reported as
// coreerr.ErrIntegrity and must be indistinguishable, in timing and in
// returned error, from decryption under the wrong key — Go's
// cipher.AEAD.Open already gives this property by design.
func AEADOpen(key, iv, ciphertext, tag []byte) ([]byte, error) {
	if len(key) != AEADKeySize {
		return nil, coreerr.New(coreerr.KindIntegrity)
	}
	if len(iv) != AEADNonceSize || len(tag) != AEADTagSize {
		return nil, coreerr.New(coreerr.KindIntegrity)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, coreerr.New(coreerr.KindIntegrity)
	}
	gcm, err := cipher.NewGCMWithTagSize(block, AEADTagSize)
	if err != nil {
		return nil, coreerr.New(coreerr.KindIntegrity)
	}

	combined := make([]byte, 0, len(ciphertext)+len(tag))
	combined = append(combined, ciphertext...)
	combined = append(combined, tag...)

	plaintext, err := gcm.Open(nil, iv, combined, nil)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindIntegrity, err)
	}
	return plaintext, nil
}

var errInvalidKeySize = errors.New("aead key must be 32 bytes")
