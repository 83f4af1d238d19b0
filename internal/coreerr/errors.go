// Package coreerr defines the error taxonomy every core component returns.
//
// Callers are expected to use errors.Is against the sentinel values below,
// or coreerr.KindOf to recover the kind for logging and metrics without
// touching the wrapped error's message (which may, in principle, embed
// caller-supplied context that should not be logged verbatim).
package coreerr

import "errors"

// Kind identifies one of the error categories from the failure taxonomy.
type Kind string

const (
	KindIntegrity       Kind = "integrity"
	KindSignature       Kind = "signature"
	KindFreshness       Kind = "freshness"
	KindOrdering        Kind = "ordering"
	KindReplay          Kind = "replay"
	KindNotFound        Kind = "not_found"
	KindWrongPassword   Kind = "wrong_password"
	KindPeerUnreachable Kind = "peer_unreachable"
	KindTimeout         Kind = "timeout"
	KindAccessDenied    Kind = "access_denied"
)

var (
	ErrIntegrity       = errors.New("integrity check failed")
	ErrSignature       = errors.New("signature verification failed")
	ErrFreshness       = errors.New("timestamp outside freshness window")
	ErrOrdering        = errors.New("sequence number out of order")
	ErrReplay          = errors.New("nonce already seen")
	ErrNotFound        = errors.New("not found")
	ErrWrongPassword   = errors.New("wrong password")
	ErrPeerUnreachable = errors.New("peer unreachable")
	ErrTimeout         = errors.New("timed out")
	ErrAccessDenied    = errors.New("access denied")
)

var sentinelByKind = map[Kind]error{
	KindIntegrity:       ErrIntegrity,
	KindSignature:       ErrSignature,
	KindFreshness:       ErrFreshness,
	KindOrdering:        ErrOrdering,
	KindReplay:          ErrReplay,
	KindNotFound:        ErrNotFound,
	KindWrongPassword:   ErrWrongPassword,
	KindPeerUnreachable: ErrPeerUnreachable,
	KindTimeout:         ErrTimeout,
	KindAccessDenied:    ErrAccessDenied,
}

// CoreError wraps an underlying error with the kind that classifies it.
type CoreError struct {
	Kind Kind
	Err  error
}

func (e *CoreError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, coreerr.ErrReplay) succeed even through the wrapper,
// by comparing against the sentinel registered for this Kind.
func (e *CoreError) Is(target error) bool {
	sentinel, ok := sentinelByKind[e.Kind]
	return ok && sentinel == target
}

// Wrap produces a *CoreError of the given kind. If err is already a
// *CoreError, its kind is normalized to kind and its underlying cause is
// preserved, matching WrapCategorizedError's re-wrap behavior.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var existing *CoreError
	if errors.As(err, &existing) {
		return &CoreError{Kind: kind, Err: existing.Err}
	}
	return &CoreError{Kind: kind, Err: err}
}

// New builds a *CoreError from the kind's own sentinel message.
func New(kind Kind) error {
	return &CoreError{Kind: kind, Err: sentinelByKind[kind]}
}

// KindOf recovers the Kind of a wrapped error, defaulting to "" if err was
// never produced through this package.
func KindOf(err error) Kind {
	var classified *CoreError
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return ""
}
