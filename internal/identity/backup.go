package identity

import (
	"crypto/ecdsa"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/tyler-smith/go-bip39"

	"e2eecore/internal/primitives"
	"e2eecore/internal/securestore"
)

// Recovery phrase export/import is a supplement beyond spec.md's identity
// lifecycle (§4.2): a password-gated BIP-39 mnemonic encoding of the 32-byte
// seed the identity private key is deterministically derived from, modeled
// on the teacher's SeedManager (internal/identity/seed_lifecycle.go),
// including its failed-attempt lockout.
var (
	ErrPasswordRequired = errors.New("identity: password is required")
	ErrSeedNotAvailable = errors.New("identity: no recovery seed on record")
	ErrInvalidMnemonic  = errors.New("identity: invalid recovery phrase")
	ErrPasswordLocked   = errors.New("identity: too many failed attempts, locked")
)

const (
	recoveryLockThreshold = 5
	recoveryLockDuration  = 5 * time.Minute
)

// RecoveryManager seals a BIP-39-encoded identity seed for later export,
// gated by its own password and a short lockout after repeated failures.
type RecoveryManager struct {
	mu             sync.Mutex
	sealed         *securestore.Envelope
	iterations     int
	failedAttempts int
	lockedUntil    time.Time
	now            func() time.Time
}

func NewRecoveryManager(iterations int) *RecoveryManager {
	return &RecoveryManager{iterations: iterations, now: time.Now}
}

// GenerateSeeded creates a new identity key pair deterministically from a
// fresh BIP-39 seed, returning the mnemonic (shown to the user exactly
// once), the derived private key, and sealing the mnemonic under password
// for later Export.
func (r *RecoveryManager) GenerateSeeded(password string) (mnemonic string, priv *ecdsa.PrivateKey, err error) {
	if strings.TrimSpace(password) == "" {
		return "", nil, ErrPasswordRequired
	}
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", nil, err
	}
	mnemonic, err = bip39.NewMnemonic(entropy)
	if err != nil {
		return "", nil, err
	}
	return r.Import(mnemonic, password)
}

// Import re-derives the identity key pair from an existing mnemonic and
// seals it under password.
func (r *RecoveryManager) Import(mnemonic, password string) (string, *ecdsa.PrivateKey, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if mnemonic == "" {
		return "", nil, ErrInvalidMnemonic
	}
	if strings.TrimSpace(password) == "" {
		return "", nil, ErrPasswordRequired
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return "", nil, ErrInvalidMnemonic
	}

	seed := bip39.NewSeed(mnemonic, "")[:32]
	priv, err := primitives.ECDSADeterministicKeygen(seed)
	if err != nil {
		return "", nil, err
	}
	env, err := securestore.Seal([]byte(password), r.iterations, []byte(mnemonic))
	if err != nil {
		return "", nil, err
	}

	r.mu.Lock()
	r.sealed = env
	r.mu.Unlock()
	return mnemonic, priv, nil
}

// Export recovers the mnemonic under password, enforcing a short lockout
// after repeated failed attempts the same way the teacher's SeedManager does
// for its seed-phrase export path.
func (r *RecoveryManager) Export(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", ErrPasswordRequired
	}

	r.mu.Lock()
	if r.now().Before(r.lockedUntil) {
		r.mu.Unlock()
		return "", ErrPasswordLocked
	}
	env := r.sealed
	r.mu.Unlock()
	if env == nil {
		return "", ErrSeedNotAvailable
	}

	plaintext, err := securestore.Open([]byte(password), env)
	if err != nil {
		r.mu.Lock()
		r.failedAttempts++
		if r.failedAttempts >= recoveryLockThreshold {
			r.lockedUntil = r.now().Add(recoveryLockDuration)
			r.failedAttempts = 0
		}
		r.mu.Unlock()
		return "", ErrWrongPassword
	}

	r.mu.Lock()
	r.failedAttempts = 0
	r.mu.Unlock()

	mnemonic := strings.TrimSpace(string(plaintext))
	securestore.Zero(plaintext)
	if !bip39.IsMnemonicValid(mnemonic) {
		return "", ErrInvalidMnemonic
	}
	return mnemonic, nil
}
