// Package securitylog implements C8: an append-only local store of security
// events with a batch upload to the relay using optimistic "synced" marking
// (spec.md §4.8). The sink never records plaintext, keys, nonces, or
// ciphertext bytes — only opaque identifiers, counters, and reason codes.
package securitylog

import (
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"e2eecore/internal/coreerr"
)

// EventKind enumerates the event taxonomy of spec.md §4.8.
type EventKind string

const (
	EventReplayAttempt    EventKind = "replay_attempt"
	EventInvalidSignature EventKind = "invalid_signature"
	EventDecryptionError  EventKind = "decryption_error"
	EventKEPError         EventKind = "kep_error"
	EventTimestampFailure EventKind = "timestamp_failure"
	EventSeqMismatch      EventKind = "seq_mismatch"
	EventMessageDropped   EventKind = "message_dropped"
	EventMITMSignature    EventKind = "mitm_signature_mismatch"
	EventMITMIdentity     EventKind = "mitm_identity_mismatch"
)

// Event is one append-only log record. UserID/SessionID are stored as
// salted, truncated base58 fingerprints, never as raw ids, matching the
// ambient logger's id-handling policy for this codebase.
type Event struct {
	Timestamp time.Time
	UserFP    string
	SessionFP string
	Kind      EventKind
	Metadata  map[string]string
	Synced    bool
}

// Fingerprint derives an opaque, salted, base58-encoded identifier for a raw
// id. Unlike the ambient logger's hex fp_ prefix, C8 uses base58 so ids
// embedded in an uploaded batch don't collide with the hex fingerprints
// already present in structured logs, keeping the two redaction surfaces
// visibly distinct.
func Fingerprint(salt []byte, rawID string) string {
	if rawID == "" {
		return ""
	}
	h := sha256Sum(salt, rawID)
	return base58.Encode(h[:12])
}

var counters = struct {
	byKind map[EventKind]prometheus.Counter
	once   sync.Once
}{byKind: make(map[EventKind]prometheus.Counter)}

func counterFor(kind EventKind) prometheus.Counter {
	counters.once.Do(func() {
		for _, k := range []EventKind{
			EventReplayAttempt, EventInvalidSignature, EventDecryptionError,
			EventKEPError, EventTimestampFailure, EventSeqMismatch,
			EventMessageDropped, EventMITMSignature, EventMITMIdentity,
		} {
			counters.byKind[k] = promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "e2eecore",
				Subsystem: "security",
				Name:      "events_total_" + string(k),
				Help:      "Count of security events of kind " + string(k) + " observed locally.",
			})
		}
	})
	return counters.byKind[kind]
}

// Uploader pushes a batch of events to the relay's security-log endpoint
// (out of scope for wire format here; spec.md §1 places the relay itself out
// of scope). It returns the indices of events the relay acknowledged.
type Uploader interface {
	Upload(batch []Event) (acked []int, err error)
}

// Sink is the in-process append-only store for C8.
type Sink struct {
	mu     sync.Mutex
	events []Event
	salt   []byte
}

func New(salt []byte) *Sink {
	return &Sink{salt: salt}
}

// Record appends a new event and increments its prometheus counter.
func (s *Sink) Record(userID, sessionID string, kind EventKind, metadata map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, Event{
		Timestamp: time.Now().UTC(),
		UserFP:    Fingerprint(s.salt, userID),
		SessionFP: Fingerprint(s.salt, sessionID),
		Kind:      kind,
		Metadata:  metadata,
		Synced:    false,
	})
	counterFor(kind).Inc()
}

// Unsynced returns a snapshot of events not yet marked synced, in append order.
func (s *Sink) Unsynced() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, 0, len(s.events))
	for _, e := range s.events {
		if !e.Synced {
			out = append(out, e)
		}
	}
	return out
}

// Upload sends every unsynced event to uploader and marks only the
// relay-acknowledged ones as synced — spec.md §4.8's optimistic marking:
// never mark synced before the relay actually acknowledges.
func (s *Sink) Upload(uploader Uploader) error {
	s.mu.Lock()
	pending := make([]Event, 0, len(s.events))
	indices := make([]int, 0, len(s.events))
	for i, e := range s.events {
		if !e.Synced {
			pending = append(pending, e)
			indices = append(indices, i)
		}
	}
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	acked, err := uploader.Upload(pending)
	if err != nil {
		return coreerr.Wrap(coreerr.KindPeerUnreachable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, localIdx := range acked {
		if localIdx < 0 || localIdx >= len(indices) {
			continue
		}
		s.events[indices[localIdx]].Synced = true
	}
	return nil
}

// All returns every event recorded so far, synced or not (test/debug use).
func (s *Sink) All() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}
