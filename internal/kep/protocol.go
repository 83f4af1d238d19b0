// Package kep implements C4: the two-message authenticated ECDH key exchange
// of spec.md §4.4. Both the initiator and responder derive byte-identical
// root/send/recv keys via the HKDF chain; a canonical four-field JWK byte
// string is what is actually signed and verified.
package kep

import (
	"crypto/ecdsa"
	"time"

	"e2eecore/internal/coreerr"
	"e2eecore/internal/primitives"
	"e2eecore/pkg/wire"
)

// FreshnessWindow is the default ±120s window of spec.md §4.4/§6.
const FreshnessWindow = 120 * time.Second

// DerivedKeys is the symmetric session material produced by one completed
// exchange (spec.md §4.4's derivation chain).
type DerivedKeys struct {
	RootKey []byte
	SendKey []byte
	RecvKey []byte
}

// Signer is the signing collaborator C4 needs from C2, kept as a narrow
// interface so kep does not import the identity package
// directly (mirrors the teacher's usecase-depends-on-ports style).
type Signer interface {
	Sign(message []byte) ([]byte, error)
}

// DeriveSessionKeys runs the HKDF chain of spec.md §4.4: rootKey from the
// shared secret and sessionId, then sendKey/recvKey from rootKey, using the
// symmetry law that one side's sendKey equals the peer's recvKey because
// both sides use salt "SEND" with the *sender's* user id as info.
func DeriveSessionKeys(sharedSecret []byte, sessionID, localUserID, peerUserID string) (DerivedKeys, error) {
	rootKey, err := primitives.HKDF(sharedSecret, []byte("ROOT"), []byte(sessionID), 32)
	if err != nil {
		return DerivedKeys{}, err
	}
	sendKey, err := primitives.HKDF(rootKey, []byte("SEND"), []byte(localUserID), 32)
	if err != nil {
		return DerivedKeys{}, err
	}
	recvKey, err := primitives.HKDF(rootKey, []byte("SEND"), []byte(peerUserID), 32)
	if err != nil {
		return DerivedKeys{}, err
	}
	return DerivedKeys{RootKey: rootKey, SendKey: sendKey, RecvKey: recvKey}, nil
}

// KeyConfirmation computes HMAC-SHA-256(rootKey, "CONFIRM:" || initiatorID),
// spec.md §4.4 step 3.
func KeyConfirmation(rootKey []byte, initiatorID string) []byte {
	return primitives.HMACSHA256(rootKey, append([]byte("CONFIRM:"), initiatorID...))
}

// BuildInit constructs and signs a KEP_INIT message (spec.md §4.4 step 1).
func BuildInit(from, to, sessionID string, signer Signer, nowMs int64, nonce []byte) (wire.KEPMessage, *primitives.ECDHKeyPair, error) {
	ephemeral, err := primitives.ECDHKeygen()
	if err != nil {
		return wire.KEPMessage{}, nil, err
	}
	jwk := ToPublicJWK(ephemeral.Pub)
	sig, err := signer.Sign(CanonicalJWKBytes(jwk))
	if err != nil {
		return wire.KEPMessage{}, nil, err
	}
	msg := wire.KEPMessage{
		Type:      wire.KEPInit,
		From:      from,
		To:        to,
		SessionID: sessionID,
		EphPub:    jwk,
		Signature: sig,
		Timestamp: nowMs,
		Nonce:     nonce,
		Seq:       1,
	}
	return msg, &ephemeral, nil
}

// ValidateIncoming checks structure, freshness, and signature for any KEP
// message (spec.md §4.4 step 2/4). It does not check key confirmation —
// that's only meaningful for KEP_RESPONSE and is checked separately.
func ValidateIncoming(msg wire.KEPMessage, signerIdentityPub *ecdsa.PublicKey, nowMs int64) error {
	if msg.From == "" || msg.To == "" || msg.SessionID == "" {
		return coreerr.New(coreerr.KindSignature)
	}
	if msg.EphPub.Kty != "EC" || msg.EphPub.Crv != "P-256" || msg.EphPub.X == "" || msg.EphPub.Y == "" {
		return coreerr.New(coreerr.KindSignature)
	}
	if len(msg.Signature) == 0 {
		return coreerr.New(coreerr.KindSignature)
	}
	if msg.Type == wire.KEPResponse && len(msg.KeyConfirmation) == 0 {
		return coreerr.New(coreerr.KindSignature)
	}
	if !withinFreshnessWindow(msg.Timestamp, nowMs) {
		return coreerr.New(coreerr.KindFreshness)
	}
	if !primitives.ECDSAVerify(signerIdentityPub, msg.Signature, CanonicalJWKBytes(msg.EphPub)) {
		return coreerr.New(coreerr.KindSignature)
	}
	return nil
}

func withinFreshnessWindow(tsMs, nowMs int64) bool {
	delta := nowMs - tsMs
	if delta < 0 {
		delta = -delta
	}
	return time.Duration(delta) * time.Millisecond <= FreshnessWindow
}

// BuildResponse is the responder side of spec.md §4.4 step 3: generate an
// ephemeral pair, derive shared secret and session keys against the
// initiator's ephemeral public key, compute key confirmation, and sign the
// canonicalized ephemeral public key.
func BuildResponse(from, to, sessionID string, initiatorEphPub wire.PublicJWK, signer Signer, nowMs int64, nonce []byte) (wire.KEPMessage, DerivedKeys, error) {
	ephemeral, err := primitives.ECDHKeygen()
	if err != nil {
		return wire.KEPMessage{}, DerivedKeys{}, err
	}
	peerPub, err := FromPublicJWK(initiatorEphPub)
	if err != nil {
		return wire.KEPMessage{}, DerivedKeys{}, coreerr.Wrap(coreerr.KindSignature, err)
	}
	shared, err := primitives.ECDHDerive(ephemeral.Priv, peerPub)
	if err != nil {
		return wire.KEPMessage{}, DerivedKeys{}, err
	}
	keys, err := DeriveSessionKeys(shared, sessionID, from, to)
	if err != nil {
		return wire.KEPMessage{}, DerivedKeys{}, err
	}

	jwk := ToPublicJWK(ephemeral.Pub)
	sig, err := signer.Sign(CanonicalJWKBytes(jwk))
	if err != nil {
		return wire.KEPMessage{}, DerivedKeys{}, err
	}

	msg := wire.KEPMessage{
		Type:            wire.KEPResponse,
		From:            from,
		To:              to,
		SessionID:       sessionID,
		EphPub:          jwk,
		Signature:       sig,
		Timestamp:       nowMs,
		Nonce:           nonce,
		Seq:             1,
		KeyConfirmation: KeyConfirmation(keys.RootKey, to),
	}
	return msg, keys, nil
}

// FinishInitiator is the initiator side of spec.md §4.4 step 4: import the
// responder's ephemeral public key, derive shared secret and session keys,
// and verify key confirmation in constant time.
func FinishInitiator(localUserID, peerUserID, sessionID string, localEph *primitives.ECDHKeyPair, responderEphPub wire.PublicJWK, keyConfirmation []byte) (DerivedKeys, error) {
	peerPub, err := FromPublicJWK(responderEphPub)
	if err != nil {
		return DerivedKeys{}, coreerr.Wrap(coreerr.KindSignature, err)
	}
	shared, err := primitives.ECDHDerive(localEph.Priv, peerPub)
	if err != nil {
		return DerivedKeys{}, err
	}
	keys, err := DeriveSessionKeys(shared, sessionID, localUserID, peerUserID)
	if err != nil {
		return DerivedKeys{}, err
	}
	expected := KeyConfirmation(keys.RootKey, localUserID)
	if !primitives.ConstantTimeEqual(expected, keyConfirmation) {
		return DerivedKeys{}, coreerr.New(coreerr.KindSignature)
	}
	return keys, nil
}
