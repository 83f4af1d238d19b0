package primitives

import (
	"crypto/hmac"
	"crypto/sha256"
)

// HMACSHA256 computes HMAC-SHA-256(key, message), used for KEP's key
// confirmation tag (spec.md §4.4).
func HMACSHA256(key, message []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}

// ConstantTimeEqual reports whether a and b are equal using a constant-time
// comparison. Used for key-confirmation verification and nonce-hash window
// membership checks, per spec.md §9.
func ConstantTimeEqual(a, b []byte) bool {
	return hmac.Equal(a, b)
}
