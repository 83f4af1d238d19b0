// Package session implements C3: the session keystore. It holds the
// per-peer session record of spec.md §3 (three sealed symmetric keys, the
// sequence/nonce-replay state, and the active/inactive lifecycle) behind a
// KEK cache keyed by local user id.
package session

import (
	"time"

	"e2eecore/internal/primitives"
)

// Status is the lifecycle state of a session record (spec.md §3).
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// NonceWindowSize is the fixed replay-window size of spec.md §8: exactly
// 200 entries, no more, no fewer.
const NonceWindowSize = 200

// State is the session record of spec.md §3. RootKey/SendKey/RecvKey are
// kept sealed under the owner's cached KEK here (see sealKey in
// keystore.go); View exposes them unsealed for the duration of one caller
// operation only.
type State struct {
	SessionID      string
	LocalUserID    string
	PeerUserID     string
	RootKeySealed  []byte // iv||tag||ciphertext, as packed by sealKey
	SendKeySealed  []byte
	RecvKeySealed  []byte
	LastSeq        uint64
	LastTimestamp  int64
	UsedNonceHashes [][32]byte // ring buffer, oldest first, capped at NonceWindowSize
	Status         Status
	StatusReason   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	KeyRotationCount int
}

// View is the decrypted-on-demand projection of a State handed to callers
// that need the live symmetric keys for one encrypt/decrypt call. Keys must
// be zeroed by the caller via securestore.Zero when done.
type View struct {
	SessionID   string
	LocalUserID string
	PeerUserID  string
	RootKey     []byte
	SendKey     []byte
	RecvKey     []byte
	LastSeq     uint64
	Status      Status
}

// pushNonce appends hash to the ring buffer, dropping the oldest entry once
// size exceeds NonceWindowSize (spec.md §4.3, §8).
func pushNonce(buf [][32]byte, hash [32]byte) [][32]byte {
	buf = append(buf, hash)
	if len(buf) > NonceWindowSize {
		buf = buf[len(buf)-NonceWindowSize:]
	}
	return buf
}

// containsNonce checks hash against every entry using a constant-time
// comparison per entry, per spec.md §9's requirement that nonce-hash
// membership tests use constant-time primitives.
func containsNonce(buf [][32]byte, hash [32]byte) bool {
	found := false
	for _, h := range buf {
		if primitives.ConstantTimeEqual(h[:], hash[:]) {
			found = true
		}
	}
	return found
}
