package securitylog

import "crypto/sha256"

func sha256Sum(salt []byte, value string) [32]byte {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(value))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
