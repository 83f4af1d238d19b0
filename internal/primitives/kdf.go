package primitives

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// MinPBKDF2Iterations is the production floor from spec.md §4.1. Tests may
// go lower only through config's explicit weak-KDF escape hatch.
const MinPBKDF2Iterations = 100000

// HKDF derives length bytes of key material from ikm, salt, and info using
// HKDF-SHA-256 (extract-then-expand, RFC 5869).
func HKDF(ikm, salt, info []byte, length int) ([]byte, error) {
	reader := hkdf.New(sha256.New, ikm, salt, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}

// PBKDF2 derives a 32-byte KEK from password and salt using PBKDF2-SHA-256.
func PBKDF2(password, salt []byte, iterations int) []byte {
	return pbkdf2.Key(password, salt, iterations, AEADKeySize, sha256.New)
}

// SHA256 hashes b.
func SHA256(b []byte) [32]byte {
	return sha256.Sum256(b)
}
