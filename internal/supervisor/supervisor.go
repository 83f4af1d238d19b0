// Package supervisor implements C7: the two external entry points the
// transport layer invokes — Initiate and HandleIncomingKEPInit — plus
// optional ephemeral rekey. Both entry points derive the session id
// deterministically from the sorted peer pair (spec.md §6), consult C3 for
// an already-installed session and short-circuit for idempotence under
// reconnect/retry, then drive C4.
package supervisor

import (
	"context"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"sort"
	"time"

	"e2eecore/internal/coreerr"
	"e2eecore/internal/kep"
	"e2eecore/internal/primitives"
	"e2eecore/internal/ratelimit"
	"e2eecore/internal/session"
	"e2eecore/pkg/wire"
)

// KEPTimeout is the default 30s bound of spec.md §5 on one KEP round trip.
const KEPTimeout = 30 * time.Second

// Transport is the collaborator C7 drives a KEP round trip over; spec.md §5
// describes it as "a request/response over a transport channel supplied to
// C7". RoundTrip must respect ctx's deadline and return ctx.Err() on expiry.
type Transport interface {
	RoundTrip(ctx context.Context, init wire.KEPMessage) (wire.KEPMessage, error)
}

// DeriveSessionID implements spec.md §6's session id derivation: sort the
// two user ids, join as "a:b:session", SHA-256, hex-encode, truncate to 32
// hex characters. Pure function of the peer pair — no randomness.
func DeriveSessionID(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	joined := pair[0] + ":" + pair[1] + ":session"
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])[:32]
}

// Supervisor holds the collaborators C7 needs from C3 and the rate-limit
// supplement; it carries no session-specific state of its own.
type Supervisor struct {
	Sessions *session.Keystore
	Limiter  *ratelimit.PeerLimiter
	Timeout  time.Duration
	now      func() int64
	logger   *slog.Logger
}

// New wires a Supervisor. logger is passed by value rather than pulled from
// a package-level global; pass nil to log nowhere (a discard handler).
func New(sessions *session.Keystore, limiter *ratelimit.PeerLimiter, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Supervisor{
		Sessions: sessions,
		Limiter:  limiter,
		Timeout:  KEPTimeout,
		now:      wire.NowMillis,
		logger:   logger,
	}
}

// Initiate drives the initiator side of C4 over transport and installs the
// resulting session into C3, short-circuiting if a session is already
// active for (localUserID, peerID).
func (s *Supervisor) Initiate(ctx context.Context, localUserID, peerID string, signer kep.Signer, peerIdentityPub *ecdsa.PublicKey, transport Transport) (string, error) {
	sessionID := DeriveSessionID(localUserID, peerID)

	if _, ok, err := s.Sessions.ActiveSession(localUserID, peerID); err != nil {
		return "", err
	} else if ok {
		return sessionID, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	nonce, err := primitives.RandomBytes(16)
	if err != nil {
		return "", err
	}
	now := s.now()
	initMsg, initEph, err := kep.BuildInit(localUserID, peerID, sessionID, signer, now, nonce)
	if err != nil {
		return "", err
	}

	respCh := make(chan wire.KEPMessage, 1)
	errCh := make(chan error, 1)
	go func() {
		resp, err := transport.RoundTrip(ctx, initMsg)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	var respMsg wire.KEPMessage
	select {
	case <-ctx.Done():
		return "", coreerr.Wrap(coreerr.KindTimeout, ctx.Err())
	case err := <-errCh:
		return "", coreerr.Wrap(coreerr.KindPeerUnreachable, err)
	case respMsg = <-respCh:
	}

	if err := kep.ValidateIncoming(respMsg, peerIdentityPub, s.now()); err != nil {
		return "", err
	}

	keys, err := kep.FinishInitiator(localUserID, peerID, sessionID, initEph, respMsg.EphPub, respMsg.KeyConfirmation)
	if err != nil {
		return "", err
	}

	if err := s.Sessions.Create(sessionID, localUserID, peerID, keys.RootKey, keys.SendKey, keys.RecvKey); err != nil {
		return "", err
	}
	return sessionID, nil
}

// HandleIncomingKEPInit is the responder side of C4: validate the inbound
// KEP_INIT, rate-limit by sender, and, unless a session is already installed
// for this peer pair, derive session keys and install them, returning the
// KEP_RESPONSE to send back over the transport.
func (s *Supervisor) HandleIncomingKEPInit(localUserID string, msg wire.KEPMessage, signer kep.Signer, peerIdentityPub *ecdsa.PublicKey) (wire.KEPMessage, string, error) {
	if s.Limiter != nil && !s.Limiter.Allow(msg.From) {
		s.logger.Warn("kep init rate-limited", "peer_id", msg.From)
		return wire.KEPMessage{}, "", coreerr.New(coreerr.KindPeerUnreachable)
	}

	expectedSessionID := DeriveSessionID(localUserID, msg.From)
	if msg.SessionID != expectedSessionID {
		return wire.KEPMessage{}, "", coreerr.New(coreerr.KindSignature)
	}

	if err := kep.ValidateIncoming(msg, peerIdentityPub, s.now()); err != nil {
		return wire.KEPMessage{}, "", err
	}

	if _, ok, err := s.Sessions.ActiveSession(localUserID, msg.From); err != nil {
		return wire.KEPMessage{}, "", err
	} else if ok {
		return wire.KEPMessage{}, expectedSessionID, nil
	}

	nonce, err := primitives.RandomBytes(16)
	if err != nil {
		return wire.KEPMessage{}, "", err
	}
	respMsg, keys, err := kep.BuildResponse(localUserID, msg.From, expectedSessionID, msg.EphPub, signer, s.now(), nonce)
	if err != nil {
		return wire.KEPMessage{}, "", err
	}

	if err := s.Sessions.Create(expectedSessionID, localUserID, msg.From, keys.RootKey, keys.SendKey, keys.RecvKey); err != nil {
		return wire.KEPMessage{}, "", err
	}
	return respMsg, expectedSessionID, nil
}

// Rotate recomputes session keys via the same HKDF chain from a fresh
// ephemeral pair and reinstalls them under the same session id, discarding
// the prior keys so traffic sent after rotation is cryptographically
// independent of prior keys (spec.md §4.7's optional forward-secrecy-within-
// a-session rekey). The sequence/nonce-replay watermark resets with the new
// key epoch.
func (s *Supervisor) Rotate(sessionID, localUserID, peerUserID string, newLocalEph *primitives.ECDHKeyPair, newPeerEphPub *ecdh.PublicKey) error {
	shared, err := primitives.ECDHDerive(newLocalEph.Priv, newPeerEphPub)
	if err != nil {
		return err
	}
	keys, err := kep.DeriveSessionKeys(shared, sessionID, localUserID, peerUserID)
	if err != nil {
		return err
	}
	return s.Sessions.Create(sessionID, localUserID, peerUserID, keys.RootKey, keys.SendKey, keys.RecvKey)
}
