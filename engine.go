// Package e2eecore is the front door of the client-side cryptographic core:
// it wires C2 through C8 into one facade so a host application doesn't have
// to import eight internal packages and thread their collaborators
// together itself.
package e2eecore

import (
	"context"
	"crypto/ecdsa"
	"log/slog"
	"os"

	"e2eecore/internal/config"
	"e2eecore/internal/envelope"
	"e2eecore/internal/identity"
	"e2eecore/internal/kep"
	"e2eecore/internal/ratelimit"
	"e2eecore/internal/securitylog"
	"e2eecore/internal/session"
	"e2eecore/internal/supervisor"
	"e2eecore/pkg/wire"
)

// Engine is one user's instance of the core: one identity store, one
// session keystore, one security log sink, one supervisor. A host process
// running multiple local users constructs one Engine per user.
type Engine struct {
	Config     config.Config
	Identity   *identity.IdentityStore
	Sessions   *session.Keystore
	Supervisor *supervisor.Supervisor
	SeqMgr     *envelope.SequenceManager
	Security   *securitylog.Sink
	Logger     *slog.Logger
}

// New wires a fresh Engine from the given config and backing stores. Callers
// needing persistence supply their own identity.Store/session.Store
// implementations; tests and the demo use the in-memory ones. logger is
// passed by value into every constructor that can emit a log line rather
// than pulled from a package-level global; pass nil to get a sane default
// (a securitylog.SanitizingHandler wrapping a stderr text handler), so no
// caller ever talks to a raw, unwrapped handler.
func New(cfg config.Config, idStore identity.Store, sessStore session.Store, securityLogSalt []byte, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(securitylog.WrapHandler(slog.NewTextHandler(os.Stderr, nil)))
	}
	sessions := session.New(sessStore, cfg.PBKDF2Iterations)
	limiter := ratelimit.New(5, 10)
	return &Engine{
		Config:     cfg,
		Identity:   identity.New(idStore, cfg.PBKDF2Iterations),
		Sessions:   sessions,
		Supervisor: supervisor.New(sessions, limiter, logger),
		SeqMgr:     envelope.NewSequenceManager(),
		Security:   securitylog.New(securityLogSalt),
		Logger:     logger,
	}
}

// Login unlocks userID's identity and primes the session KEK cache; both
// derive their keys from the same password, each with its own salt (the
// identity record's stored salt, and kekSalt for the session KEK).
func (e *Engine) Login(userID string, password []byte, kekSalt []byte) (*identity.SignerHandle, error) {
	signer, err := e.Identity.Load(userID, password)
	if err != nil {
		return nil, err
	}
	if err := e.Sessions.Init(userID, password, kekSalt); err != nil {
		return nil, err
	}
	return signer, nil
}

// Logout clears the cached KEK for userID immediately.
func (e *Engine) Logout(userID string) {
	e.Sessions.Logout(userID)
}

// EstablishSession drives C7's initiator path end to end.
func (e *Engine) EstablishSession(ctx context.Context, localUserID, peerID string, signer kep.Signer, peerIdentityPub *ecdsa.PublicKey, transport supervisor.Transport) (string, error) {
	sessionID, err := e.Supervisor.Initiate(ctx, localUserID, peerID, signer, peerIdentityPub, transport)
	if err != nil {
		e.Security.Record(localUserID, "", securitylog.EventKEPError, map[string]string{"peer": peerID})
		e.Logger.Warn("key exchange failed", "user_id", localUserID, "peer_id", peerID, "err", err)
		return "", err
	}
	e.Logger.Info("session established", "user_id", localUserID, "peer_id", peerID, "session_id", sessionID)
	return sessionID, nil
}

// SendMessage encrypts plaintext into a MSG envelope ready for the relay.
func (e *Engine) SendMessage(sessionID, senderID, receiverID string, plaintext []byte, nowMs int64) (wire.Envelope, error) {
	return envelope.Seal(e.Sessions, e.SeqMgr, sessionID, senderID, receiverID, plaintext, nowMs)
}

// ReceiveMessage decrypts and validates an inbound MSG envelope, logging a
// security event for every rejection kind before surfacing the error.
func (e *Engine) ReceiveMessage(env wire.Envelope, receiverUserID string, nowMs int64) ([]byte, error) {
	plaintext, err := envelope.Open(e.Sessions, env, receiverUserID, nowMs)
	if err != nil {
		e.Security.Record(receiverUserID, env.SessionID, classify(err), map[string]string{"seq": itoa(env.Seq)})
		e.Logger.Warn("envelope rejected", "user_id", receiverUserID, "session_id", env.SessionID, "seq", env.Seq, "err", err)
		return nil, err
	}
	return plaintext, nil
}
