// Package securestore implements the generic password-sealed byte envelope
// used at rest by the identity store (C2) and its recovery-phrase backup:
// {ciphertext, salt, iv, kdf=PBKDF2-SHA256, iterations}. It is the one place
// the core does "encrypt this blob with a KEK derived from a password". The
// session keystore (C3) does not seal through this envelope: it seals each
// session key directly under its cached KEK and uses only Zero from here.
package securestore

import (
	"encoding/json"
	"errors"

	"e2eecore/internal/coreerr"
	"e2eecore/internal/primitives"
)

const (
	envelopeVersion = 1
	saltSize        = 16
)

var (
	// ErrInvalid reports a structurally malformed envelope.
	ErrInvalid = errors.New("securestore: invalid envelope")
)

// Envelope is the sealed-at-rest record of spec.md §3's identity and session
// records: ciphertext, salt, iv, and the KDF parameters used to derive the
// key that sealed it.
type Envelope struct {
	Version    uint32 `json:"version"`
	KDF        string `json:"kdf"`
	Iterations int    `json:"iterations"`
	Salt       []byte `json:"salt"`
	IV         []byte `json:"iv"`
	Tag        []byte `json:"tag"`
	Ciphertext []byte `json:"ciphertext"`
}

// Seal derives a KEK from password via PBKDF2-SHA-256 with a fresh 16-byte
// salt and iterations rounds, then AEAD-seals plaintext under it.
func Seal(password []byte, iterations int, plaintext []byte) (*Envelope, error) {
	salt, err := primitives.RandomBytes(saltSize)
	if err != nil {
		return nil, err
	}
	kek := primitives.PBKDF2(password, salt, iterations)
	defer Zero(kek)

	sealed, err := primitives.AEADSeal(kek, plaintext)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Version:    envelopeVersion,
		KDF:        "pbkdf2-sha256",
		Iterations: iterations,
		Salt:       salt,
		IV:         sealed.IV[:],
		Tag:        sealed.Tag[:],
		Ciphertext: sealed.Ciphertext,
	}, nil
}

// Open re-derives the KEK from password and the envelope's own salt and
// iteration count, then verifies and decrypts. A tag mismatch is reported as
// coreerr.ErrWrongPassword without distinguishing it from any other opening
// failure, per spec.md §4.2's "must not attempt to distinguish the two
// causes via timing" (WrongPasswordError vs NotFoundError is distinguished
// one layer up, by whether a record exists at all — never by this call).
func Open(password []byte, env *Envelope) ([]byte, error) {
	if !isValid(env) {
		return nil, ErrInvalid
	}
	kek := primitives.PBKDF2(password, env.Salt, env.Iterations)
	defer Zero(kek)

	plaintext, err := primitives.AEADOpen(kek, env.IV, env.Ciphertext, env.Tag)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindWrongPassword, err)
	}
	return plaintext, nil
}

// Marshal/Unmarshal let callers persist the envelope as opaque JSON bytes.
func Marshal(env *Envelope) ([]byte, error) { return json.Marshal(env) }

func Unmarshal(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ErrInvalid
	}
	if !isValid(&env) {
		return nil, ErrInvalid
	}
	return &env, nil
}

func isValid(env *Envelope) bool {
	if env == nil {
		return false
	}
	if env.Version != envelopeVersion || env.KDF != "pbkdf2-sha256" {
		return false
	}
	if env.Iterations <= 0 {
		return false
	}
	if len(env.Salt) != saltSize {
		return false
	}
	if len(env.IV) != primitives.AEADNonceSize || len(env.Tag) != primitives.AEADTagSize {
		return false
	}
	return len(env.Ciphertext) > 0
}

// Zero overwrites buf in place, for release points of any key handle
// (spec.md §9). It has no effect the Go garbage collector couldn't already
// undo via a later move/copy, but it is the explicit zero(buf) the design
// notes call for on platforms without destructor semantics.
func Zero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
