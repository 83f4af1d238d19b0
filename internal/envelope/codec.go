// Package envelope implements C5: sealing and opening MSG/FILE_META/
// FILE_CHUNK envelopes over an active session, and the four checks spec.md
// §4.5 requires before a decrypted payload is handed back to the caller —
// freshness, ordering, replay, and integrity.
package envelope

import (
	"time"

	"e2eecore/internal/coreerr"
	"e2eecore/internal/primitives"
	"e2eecore/internal/securestore"
	"e2eecore/internal/session"
	"e2eecore/pkg/wire"
)

// FreshnessWindow is the default envelope freshness window of spec.md §4.5/§6.
const FreshnessWindow = 120 * time.Second

// KeyStore is the narrow slice of *session.Keystore that Seal/Open need,
// kept as an interface so this package doesn't couple to the concrete
// keystore type (mirrors kep.Signer's port style).
type KeyStore interface {
	Load(sessionID, userID string) (session.View, error)
	UpdateSeq(sessionID string, seq uint64, timestampMs int64) error
	RecordNonce(sessionID string, nonce []byte) error
	IsNonceSeen(sessionID string, nonce []byte) (bool, error)
}

// Seal encrypts plaintext under the session's sendKey and builds a MSG
// envelope, assigning it the next sequence number from seqMgr.
func Seal(ks KeyStore, seqMgr *SequenceManager, sessionID, senderID, receiverID string, plaintext []byte, nowMs int64) (wire.Envelope, error) {
	view, err := ks.Load(sessionID, senderID)
	if err != nil {
		return wire.Envelope{}, err
	}
	defer securestore.Zero(view.RootKey)
	defer securestore.Zero(view.SendKey)
	defer securestore.Zero(view.RecvKey)
	seqMgr.Seed(sessionID, view.LastSeq)
	seq := seqMgr.Next(sessionID)

	sealed, err := primitives.AEADSeal(view.SendKey, plaintext)
	if err != nil {
		return wire.Envelope{}, err
	}
	nonce, err := primitives.RandomBytes(16)
	if err != nil {
		return wire.Envelope{}, err
	}

	return wire.Envelope{
		Type:       wire.EnvelopeMSG,
		SessionID:  sessionID,
		Sender:     senderID,
		Receiver:   receiverID,
		Ciphertext: sealed.Ciphertext,
		IV:         sealed.IV[:],
		AuthTag:    sealed.Tag[:],
		Timestamp:  nowMs,
		Seq:        seq,
		Nonce:      nonce,
	}, nil
}

// Open validates and decrypts env, enforcing spec.md §4.5's four checks in
// order: freshness, replay (nonce hash unseen), ordering (strictly greater
// than lastSeq), then AEAD integrity. Replay is checked ahead of ordering so
// that a re-delivery of an already-accepted envelope (identical nonce, same
// seq as lastSeq) is reported as ReplayError rather than OrderingError —
// spec.md §8 scenario 2 requires exactly this precedence; OrderingError is
// reserved for a seq at or below lastSeq carrying a nonce that was never
// actually accepted. On success the new seq/nonce watermark is persisted
// before the plaintext is returned; a failed check makes no state change.
func Open(ks KeyStore, env wire.Envelope, receiverUserID string, nowMs int64) ([]byte, error) {
	view, err := ks.Load(env.SessionID, receiverUserID)
	if err != nil {
		return nil, err
	}
	defer securestore.Zero(view.RootKey)
	defer securestore.Zero(view.SendKey)
	defer securestore.Zero(view.RecvKey)

	if !withinFreshnessWindow(env.Timestamp, nowMs) {
		return nil, coreerr.New(coreerr.KindFreshness)
	}
	seen, err := ks.IsNonceSeen(env.SessionID, env.Nonce)
	if err != nil {
		return nil, err
	}
	if seen {
		return nil, coreerr.New(coreerr.KindReplay)
	}
	if env.Seq <= view.LastSeq {
		return nil, coreerr.New(coreerr.KindOrdering)
	}

	plaintext, err := primitives.AEADOpen(view.RecvKey, env.IV, env.Ciphertext, env.AuthTag)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindIntegrity, err)
	}

	if err := ks.RecordNonce(env.SessionID, env.Nonce); err != nil {
		return nil, err
	}
	if err := ks.UpdateSeq(env.SessionID, env.Seq, env.Timestamp); err != nil {
		return nil, err
	}

	return plaintext, nil
}

func withinFreshnessWindow(tsMs, nowMs int64) bool {
	delta := nowMs - tsMs
	if delta < 0 {
		delta = -delta
	}
	return time.Duration(delta) * time.Millisecond <= FreshnessWindow
}
