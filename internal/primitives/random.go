// Package primitives implements the stateless cryptographic building blocks
// of the core: AEAD, ECDH/ECDSA over P-256, HKDF-SHA-256, PBKDF2-SHA-256,
// a CSRNG wrapper, and SHA-256. Nothing in this package retains state
// between calls.
package primitives

import "crypto/rand"

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
