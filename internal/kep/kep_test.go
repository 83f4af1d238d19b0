package kep

import (
	"bytes"
	"encoding/base64"
	"testing"
	"time"

	"e2eecore/internal/coreerr"
	"e2eecore/internal/identity"
	"e2eecore/pkg/wire"
)

const testIterations = 100000

func newSigner(t *testing.T, store *identity.IdentityStore, userID string) (*identity.SignerHandle, wire.PublicJWK) {
	t.Helper()
	if _, err := store.Generate(userID, []byte("pw-"+userID)); err != nil {
		t.Fatalf("generate %s: %v", userID, err)
	}
	handle, err := store.Load(userID, []byte("pw-"+userID))
	if err != nil {
		t.Fatalf("load %s: %v", userID, err)
	}
	return handle, publicJWKOf(t, handle)
}

func publicJWKOf(t *testing.T, h *identity.SignerHandle) wire.PublicJWK {
	t.Helper()
	x := h.PublicKey().X.FillBytes(make([]byte, 32))
	y := h.PublicKey().Y.FillBytes(make([]byte, 32))
	return wire.PublicJWK{Kty: "EC", Crv: "P-256",
		X: base64.RawURLEncoding.EncodeToString(x), Y: base64.RawURLEncoding.EncodeToString(y)}
}

func TestFullExchangeProducesSymmetricKeys(t *testing.T) {
	store := identity.New(identity.NewMemoryStore(), testIterations)
	aliceSigner, _ := newSigner(t, store, "alice")
	bobSigner, _ := newSigner(t, store, "bob")

	now := time.Now().UnixMilli()
	sessionID := "sess1"

	initMsg, initEph, err := BuildInit("alice", "bob", sessionID, aliceSigner, now, []byte("nonceAnonceAnonc"))
	if err != nil {
		t.Fatalf("build init: %v", err)
	}

	if err := ValidateIncoming(initMsg, aliceSigner.PublicKey(), now); err != nil {
		t.Fatalf("bob validates init: %v", err)
	}

	respMsg, bobKeys, err := BuildResponse("bob", "alice", sessionID, initMsg.EphPub, bobSigner, now, []byte("nonceBnonceBnonc"))
	if err != nil {
		t.Fatalf("build response: %v", err)
	}

	if err := ValidateIncoming(respMsg, bobSigner.PublicKey(), now); err != nil {
		t.Fatalf("alice validates response: %v", err)
	}

	aliceKeys, err := FinishInitiator("alice", "bob", sessionID, initEph, respMsg.EphPub, respMsg.KeyConfirmation)
	if err != nil {
		t.Fatalf("finish initiator: %v", err)
	}

	if !bytes.Equal(aliceKeys.RootKey, bobKeys.RootKey) {
		t.Fatal("root keys diverge")
	}
	if !bytes.Equal(aliceKeys.SendKey, bobKeys.RecvKey) {
		t.Fatal("alice.sendKey != bob.recvKey")
	}
	if !bytes.Equal(aliceKeys.RecvKey, bobKeys.SendKey) {
		t.Fatal("alice.recvKey != bob.sendKey")
	}
}

func TestValidateIncomingRejectsTamperedEphPub(t *testing.T) {
	store := identity.New(identity.NewMemoryStore(), testIterations)
	aliceSigner, _ := newSigner(t, store, "alice")

	now := time.Now().UnixMilli()
	initMsg, _, err := BuildInit("alice", "bob", "sess1", aliceSigner, now, []byte("nonceAnonceAnonc"))
	if err != nil {
		t.Fatalf("build init: %v", err)
	}

	tampered := initMsg
	last := "A"
	if tampered.EphPub.X[len(tampered.EphPub.X)-1] == 'A' {
		last = "B"
	}
	tampered.EphPub.X = tampered.EphPub.X[:len(tampered.EphPub.X)-1] + last

	err = ValidateIncoming(tampered, aliceSigner.PublicKey(), now)
	if coreerr.KindOf(err) != coreerr.KindSignature {
		t.Fatalf("expected SignatureError for tampered ephPub, got %v", err)
	}
}

func TestValidateIncomingRejectsStaleTimestamp(t *testing.T) {
	store := identity.New(identity.NewMemoryStore(), testIterations)
	aliceSigner, _ := newSigner(t, store, "alice")

	now := time.Now().UnixMilli()
	staleTs := now - 121_000
	initMsg, _, err := BuildInit("alice", "bob", "sess1", aliceSigner, staleTs, []byte("nonceAnonceAnonc"))
	if err != nil {
		t.Fatalf("build init: %v", err)
	}

	err = ValidateIncoming(initMsg, aliceSigner.PublicKey(), now)
	if coreerr.KindOf(err) != coreerr.KindFreshness {
		t.Fatalf("expected FreshnessError, got %v", err)
	}
}
