package session

import (
	"fmt"
	"sync"
	"time"

	"e2eecore/internal/coreerr"
	"e2eecore/internal/primitives"
	"e2eecore/internal/securestore"
)

// kekCacheTTL is the lifetime of a cached per-user KEK (spec.md §3: "populated
// on login, cleared on logout or expiry").
const kekCacheTTL = 24 * time.Hour

type kekEntry struct {
	key       []byte
	expiresAt time.Time
}

// Store is the persistence boundary for session records; only atomic
// put/get and per-session isolation are required (spec.md §9).
type Store interface {
	Put(State) error
	Get(sessionID string) (State, bool, error)
	ListByPeer(localUserID, peerUserID string) ([]State, error)
	Delete(sessionID string) error
}

// MemoryStore is an in-process Store guarded by one mutex, mirroring the
// teacher's InMemorySessionStore.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]State)}
}

func (s *MemoryStore) Put(st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[st.SessionID] = st
	return nil
}

func (s *MemoryStore) Get(sessionID string) (State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.byID[sessionID]
	return st, ok, nil
}

func (s *MemoryStore) ListByPeer(localUserID, peerUserID string) ([]State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []State
	for _, st := range s.byID {
		if st.LocalUserID == localUserID && st.PeerUserID == peerUserID {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *MemoryStore) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, sessionID)
	return nil
}

// Keystore implements the C3 operations: session create/load/mutate behind
// a per-user KEK cache. Mutations are serialized by a single mutex, matching
// spec.md §5's "single writer" concurrency model.
type Keystore struct {
	mu         sync.Mutex
	store      Store
	kek        map[string]kekEntry
	iterations int
	now        func() time.Time
}

func New(store Store, pbkdf2Iterations int) *Keystore {
	return &Keystore{
		store:      store,
		kek:        make(map[string]kekEntry),
		iterations: pbkdf2Iterations,
		now:        time.Now,
	}
}

// Init seeds the KEK cache for userID with a 24-hour entry derived from
// password, per spec.md §4.3.
func (k *Keystore) Init(userID string, password []byte, salt []byte) error {
	kek := primitives.PBKDF2(password, salt, k.iterations)
	k.mu.Lock()
	defer k.mu.Unlock()
	k.kek[userID] = kekEntry{key: kek, expiresAt: k.now().Add(kekCacheTTL)}
	return nil
}

// Logout clears the cached KEK for userID immediately.
func (k *Keystore) Logout(userID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if entry, ok := k.kek[userID]; ok {
		securestore.Zero(entry.key)
		delete(k.kek, userID)
	}
}

func (k *Keystore) cachedKEK(userID string) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry, ok := k.kek[userID]
	if !ok || k.now().After(entry.expiresAt) {
		delete(k.kek, userID)
		return nil, coreerr.New(coreerr.KindNotFound)
	}
	return entry.key, nil
}

// Create seals rootKey/sendKey/recvKey under userID's cached KEK and
// persists a new active session record, superseding any prior active
// session for this (userID, peerID) pair.
func (k *Keystore) Create(sessionID, userID, peerID string, rootKey, sendKey, recvKey []byte) error {
	kek, err := k.cachedKEK(userID)
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.supersede(userID, peerID, sessionID); err != nil {
		return err
	}

	now := k.now().UTC()
	st := State{
		SessionID:   sessionID,
		LocalUserID: userID,
		PeerUserID:  peerID,
		Status:      StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	var sealErr error
	st.RootKeySealed, sealErr = sealKey(kek, rootKey)
	if sealErr != nil {
		return sealErr
	}
	st.SendKeySealed, sealErr = sealKey(kek, sendKey)
	if sealErr != nil {
		return sealErr
	}
	st.RecvKeySealed, sealErr = sealKey(kek, recvKey)
	if sealErr != nil {
		return sealErr
	}
	return k.store.Put(st)
}

// Load decrypts the session keys on demand and enforces that userID is a
// party to the session (spec.md §4.3).
func (k *Keystore) Load(sessionID, userID string) (View, error) {
	st, ok, err := k.store.Get(sessionID)
	if err != nil {
		return View{}, err
	}
	if !ok {
		return View{}, coreerr.New(coreerr.KindNotFound)
	}
	if userID != st.LocalUserID && userID != st.PeerUserID {
		return View{}, coreerr.New(coreerr.KindAccessDenied)
	}

	kek, err := k.cachedKEK(st.LocalUserID)
	if err != nil {
		return View{}, err
	}

	root, err := openKey(kek, st.RootKeySealed)
	if err != nil {
		return View{}, err
	}
	send, err := openKey(kek, st.SendKeySealed)
	if err != nil {
		return View{}, err
	}
	recv, err := openKey(kek, st.RecvKeySealed)
	if err != nil {
		return View{}, err
	}

	return View{
		SessionID:   st.SessionID,
		LocalUserID: st.LocalUserID,
		PeerUserID:  st.PeerUserID,
		RootKey:     root,
		SendKey:     send,
		RecvKey:     recv,
		LastSeq:     st.LastSeq,
		Status:      st.Status,
	}, nil
}

// UpdateSeq advances lastSeq for sessionID. Callers must have already
// validated seq > current lastSeq (internal/envelope owns that check); this
// method only persists the new watermark.
func (k *Keystore) UpdateSeq(sessionID string, seq uint64, timestampMs int64) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	st, ok, err := k.store.Get(sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return coreerr.New(coreerr.KindNotFound)
	}
	st.LastSeq = seq
	st.LastTimestamp = timestampMs
	st.UpdatedAt = k.now().UTC()
	return k.store.Put(st)
}

// RecordNonce appends SHA-256(nonce) to the session's replay window,
// dropping the oldest entry once the window exceeds NonceWindowSize.
func (k *Keystore) RecordNonce(sessionID string, nonce []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	st, ok, err := k.store.Get(sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return coreerr.New(coreerr.KindNotFound)
	}
	hash := primitives.SHA256(nonce)
	st.UsedNonceHashes = pushNonce(st.UsedNonceHashes, hash)
	st.UpdatedAt = k.now().UTC()
	return k.store.Put(st)
}

// IsNonceSeen reports whether SHA-256(nonce) is already in the session's
// replay window.
func (k *Keystore) IsNonceSeen(sessionID string, nonce []byte) (bool, error) {
	st, ok, err := k.store.Get(sessionID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, coreerr.New(coreerr.KindNotFound)
	}
	hash := primitives.SHA256(nonce)
	return containsNonce(st.UsedNonceHashes, hash), nil
}

// LastSeq returns the current sequence watermark for sessionID, for the
// sequence manager in internal/envelope to seed from.
func (k *Keystore) LastSeq(sessionID string) (uint64, error) {
	st, ok, err := k.store.Get(sessionID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, coreerr.New(coreerr.KindNotFound)
	}
	return st.LastSeq, nil
}

// supersede transitions any existing active session for (userID, peerID) to
// inactive, naming the new session id as the reason, before the caller
// installs newSessionID (spec.md §3, §8 scenario 6).
func (k *Keystore) supersede(userID, peerID, newSessionID string) error {
	existing, err := k.store.ListByPeer(userID, peerID)
	if err != nil {
		return err
	}
	for _, st := range existing {
		if st.Status != StatusActive || st.SessionID == newSessionID {
			continue
		}
		st.Status = StatusInactive
		st.StatusReason = fmt.Sprintf("Superseded by %s", newSessionID)
		st.UpdatedAt = k.now().UTC()
		if err := k.store.Put(st); err != nil {
			return err
		}
	}
	return nil
}

// ActiveSession returns the currently active session, if any, for
// (userID, peerID) — used by the supervisor's idempotent short-circuit.
func (k *Keystore) ActiveSession(userID, peerID string) (State, bool, error) {
	existing, err := k.store.ListByPeer(userID, peerID)
	if err != nil {
		return State{}, false, err
	}
	for _, st := range existing {
		if st.Status == StatusActive {
			return st, true, nil
		}
	}
	return State{}, false, nil
}

// sealKey/openKey pack a sealed 32-byte session key as iv||tag||ciphertext,
// a flat format (unlike securestore.Envelope's JSON record) since the KEK is
// already cached and the KDF parameters don't need to travel with each key.
func sealKey(kek, key []byte) ([]byte, error) {
	if len(key) != primitives.AEADKeySize {
		return nil, coreerr.New(coreerr.KindIntegrity)
	}
	sealed, err := primitives.AEADSeal(kek, key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, primitives.AEADNonceSize+primitives.AEADTagSize+len(sealed.Ciphertext))
	out = append(out, sealed.IV[:]...)
	out = append(out, sealed.Tag[:]...)
	out = append(out, sealed.Ciphertext...)
	return out, nil
}

func openKey(kek, sealed []byte) ([]byte, error) {
	if len(sealed) < primitives.AEADNonceSize+primitives.AEADTagSize {
		return nil, coreerr.New(coreerr.KindIntegrity)
	}
	iv := sealed[:primitives.AEADNonceSize]
	tag := sealed[primitives.AEADNonceSize : primitives.AEADNonceSize+primitives.AEADTagSize]
	ct := sealed[primitives.AEADNonceSize+primitives.AEADTagSize:]
	return primitives.AEADOpen(kek, iv, ct, tag)
}
