// Package identity implements C2: long-term ECDSA P-256 identity key
// lifecycle. Private key material is sealed at rest under a password-derived
// KEK and is never handed back to callers in plaintext — Load returns an
// opaque *SignerHandle usable only through Sign.
package identity

import (
	"crypto/ecdsa"
	"errors"
	"sync"
	"time"

	"e2eecore/internal/coreerr"
	"e2eecore/internal/primitives"
	"e2eecore/internal/securestore"
	"e2eecore/pkg/wire"
)

// Record is the sealed-at-rest identity record of spec.md §3. It is
// immutable once created except through Delete.
type Record struct {
	UserID    string               `json:"userId"`
	Sealed    *securestore.Envelope `json:"sealed"`
	CreatedAt time.Time            `json:"createdAt"`
}

// Store is the keyed mapping of user id to identity record. A production
// deployment backs this with a file or database; tests use an in-memory
// map. Only atomic put/get and per-record isolation are required, per
// spec.md §9's "free implementation choice" note.
type Store interface {
	Put(Record) error
	Get(userID string) (Record, bool, error)
	Delete(userID string) error
}

// MemoryStore is an in-process Store, guarded by a single mutex the same way
// the teacher's InMemorySessionStore serializes mutations.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Put(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.UserID] = r
	return nil
}

func (s *MemoryStore) Get(userID string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[userID]
	return r, ok, nil
}

func (s *MemoryStore) Delete(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, userID)
	return nil
}

// SignerHandle is an opaque capability to sign bytes under one user's
// identity private key. The key itself is never exposed through this type.
type SignerHandle struct {
	priv *ecdsa.PrivateKey
}

// Sign produces an ECDSA-over-SHA-256 signature of message using the
// identity private key behind the handle.
func (h *SignerHandle) Sign(message []byte) ([]byte, error) {
	if h == nil || h.priv == nil {
		return nil, coreerr.New(coreerr.KindNotFound)
	}
	return primitives.ECDSASign(h.priv, message)
}

// PublicKey returns the public half for the caller to publish or use for
// local signature verification of its own key confirmation, etc. Public
// keys are not sensitive and do not require scrubbing (spec.md §9).
func (h *SignerHandle) PublicKey() *ecdsa.PublicKey {
	return &h.priv.PublicKey
}

var ErrWrongPassword = errors.New("identity: wrong password")
var ErrNotFound = errors.New("identity: no record for user")

// IdentityStore implements the C2 operations against a backing Store.
type IdentityStore struct {
	store      Store
	iterations int
	// decoy is a fixed envelope sealed at construction time under the same
	// iteration count as real records, opened (and discarded) on every
	// not-found Load so that branch costs the same PBKDF2 derive plus AEAD
	// open as the record-found branch.
	decoy *securestore.Envelope
}

func New(store Store, pbkdf2Iterations int) *IdentityStore {
	decoy, err := securestore.Seal([]byte("decoy"), pbkdf2Iterations, []byte("decoy-plaintext-material-32bytes"))
	if err != nil {
		panic("identity: failed to seal decoy envelope: " + err.Error())
	}
	return &IdentityStore{store: store, iterations: pbkdf2Iterations, decoy: decoy}
}

// Generate creates an ECDSA P-256 identity key pair for userID, seals the
// private key under a KEK derived from password, and returns the public key
// stripped to {kty,crv,x,y} only (spec.md §4.2).
func (s *IdentityStore) Generate(userID string, password []byte) (wire.PublicJWK, error) {
	priv, err := primitives.ECDSAKeygen()
	if err != nil {
		return wire.PublicJWK{}, err
	}
	return s.seal(userID, password, priv)
}

// Load unseals the private key for userID and returns an opaque signer
// handle. Fails with identity.ErrWrongPassword on a KEK mismatch and
// identity.ErrNotFound when no record exists; the two are never
// distinguished by timing. A missing record still runs the same
// PBKDF2-derive-then-AEAD-open work against s.decoy before returning
// ErrNotFound, so a caller probing for valid user ids by response latency
// sees the same cost on both branches (spec.md §4.2).
func (s *IdentityStore) Load(userID string, password []byte) (*SignerHandle, error) {
	rec, ok, err := s.store.Get(userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		_, _ = securestore.Open(password, s.decoy)
		return nil, ErrNotFound
	}
	plaintext, err := securestore.Open(password, rec.Sealed)
	if err != nil {
		return nil, ErrWrongPassword
	}
	defer securestore.Zero(plaintext)

	priv, err := importScalarD(plaintext)
	if err != nil {
		return nil, err
	}
	return &SignerHandle{priv: priv}, nil
}

// Exists reports whether an identity record is present for userID.
func (s *IdentityStore) Exists(userID string) (bool, error) {
	_, ok, err := s.store.Get(userID)
	return ok, err
}

// Delete destroys the identity record for userID (explicit account wipe).
func (s *IdentityStore) Delete(userID string) error {
	return s.store.Delete(userID)
}

func (s *IdentityStore) seal(userID string, password []byte, priv *ecdsa.PrivateKey) (wire.PublicJWK, error) {
	dBytes := priv.D.FillBytes(make([]byte, 32))
	sealed, err := securestore.Seal(password, s.iterations, dBytes)
	securestore.Zero(dBytes)
	if err != nil {
		return wire.PublicJWK{}, err
	}
	rec := Record{UserID: userID, Sealed: sealed, CreatedAt: time.Now().UTC()}
	if err := s.store.Put(rec); err != nil {
		return wire.PublicJWK{}, err
	}
	return publicJWKFromPrivate(priv), nil
}
