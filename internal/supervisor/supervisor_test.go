package supervisor

import (
	"bytes"
	"context"
	"testing"

	"e2eecore/internal/coreerr"
	"e2eecore/internal/envelope"
	"e2eecore/internal/identity"
	"e2eecore/internal/kep"
	"e2eecore/internal/primitives"
	"e2eecore/internal/ratelimit"
	"e2eecore/internal/session"
	"e2eecore/pkg/wire"
)

const testIterations = 100000

// loopbackTransport hands the initiator's KEP_INIT straight to a responder
// callback and returns its KEP_RESPONSE synchronously, modeling an
// in-process transport for tests.
type loopbackTransport struct {
	respond func(wire.KEPMessage) (wire.KEPMessage, error)
}

func (l *loopbackTransport) RoundTrip(ctx context.Context, init wire.KEPMessage) (wire.KEPMessage, error) {
	return l.respond(init)
}

func TestInitiateAndHandleIncomingProduceSymmetricSession(t *testing.T) {
	idStore := identity.New(identity.NewMemoryStore(), testIterations)
	if _, err := idStore.Generate("alice", []byte("pw-alice")); err != nil {
		t.Fatalf("generate alice: %v", err)
	}
	if _, err := idStore.Generate("bob", []byte("pw-bob")); err != nil {
		t.Fatalf("generate bob: %v", err)
	}
	aliceSigner, err := idStore.Load("alice", []byte("pw-alice"))
	if err != nil {
		t.Fatalf("load alice: %v", err)
	}
	bobSigner, err := idStore.Load("bob", []byte("pw-bob"))
	if err != nil {
		t.Fatalf("load bob: %v", err)
	}

	aliceSessions := session.New(session.NewMemoryStore(), testIterations)
	if err := aliceSessions.Init("alice", []byte("pw"), bytes.Repeat([]byte{0x01}, 16)); err != nil {
		t.Fatalf("init alice sessions: %v", err)
	}
	bobSessions := session.New(session.NewMemoryStore(), testIterations)
	if err := bobSessions.Init("bob", []byte("pw"), bytes.Repeat([]byte{0x02}, 16)); err != nil {
		t.Fatalf("init bob sessions: %v", err)
	}

	aliceSup := New(aliceSessions, ratelimit.New(100, 100), nil)
	bobSup := New(bobSessions, ratelimit.New(100, 100), nil)

	transport := &loopbackTransport{
		respond: func(init wire.KEPMessage) (wire.KEPMessage, error) {
			resp, _, err := bobSup.HandleIncomingKEPInit("bob", init, bobSigner, aliceSigner.PublicKey())
			return resp, err
		},
	}

	sessionID, err := aliceSup.Initiate(context.Background(), "alice", "bob", aliceSigner, bobSigner.PublicKey(), transport)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if sessionID != DeriveSessionID("alice", "bob") {
		t.Fatalf("unexpected session id %s", sessionID)
	}

	aliceView, err := aliceSessions.Load(sessionID, "alice")
	if err != nil {
		t.Fatalf("alice load: %v", err)
	}
	bobView, err := bobSessions.Load(sessionID, "bob")
	if err != nil {
		t.Fatalf("bob load: %v", err)
	}
	if !bytes.Equal(aliceView.SendKey, bobView.RecvKey) {
		t.Fatal("alice.sendKey != bob.recvKey")
	}
	if !bytes.Equal(aliceView.RecvKey, bobView.SendKey) {
		t.Fatal("alice.recvKey != bob.sendKey")
	}
}

func TestInitiateShortCircuitsWhenSessionAlreadyActive(t *testing.T) {
	aliceSessions := session.New(session.NewMemoryStore(), testIterations)
	aliceSessions.Init("alice", []byte("pw"), bytes.Repeat([]byte{0x01}, 16))
	sessionID := DeriveSessionID("alice", "bob")
	if err := aliceSessions.Create(sessionID, "alice", "bob", key32(9), key32(1), key32(2)); err != nil {
		t.Fatalf("seed active session: %v", err)
	}

	aliceSup := New(aliceSessions, ratelimit.New(100, 100), nil)
	transport := &loopbackTransport{
		respond: func(wire.KEPMessage) (wire.KEPMessage, error) {
			t.Fatal("transport should not be invoked when already active")
			return wire.KEPMessage{}, nil
		},
	}

	got, err := aliceSup.Initiate(context.Background(), "alice", "bob", nil, nil, transport)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if got != sessionID {
		t.Fatalf("expected short-circuited session id %s, got %s", sessionID, got)
	}
}

func key32(b byte) []byte { return bytes.Repeat([]byte{b}, 32) }

var _ kep.Signer = (*identity.SignerHandle)(nil)

// TestRotateMakesPostRotationKeysIndependent exercises spec.md §8 scenario 5:
// an envelope sealed before rotation cannot be opened with the post-rotation
// recvKey, demonstrating the two key epochs are cryptographically independent.
func TestRotateMakesPostRotationKeysIndependent(t *testing.T) {
	aliceSessions := session.New(session.NewMemoryStore(), testIterations)
	aliceSessions.Init("alice", []byte("pw"), bytes.Repeat([]byte{0x01}, 16))
	bobSessions := session.New(session.NewMemoryStore(), testIterations)
	bobSessions.Init("bob", []byte("pw"), bytes.Repeat([]byte{0x02}, 16))

	sessionID := DeriveSessionID("alice", "bob")
	root, aliceSend, aliceRecv := key32(9), key32(1), key32(2)
	if err := aliceSessions.Create(sessionID, "alice", "bob", root, aliceSend, aliceRecv); err != nil {
		t.Fatalf("create alice session: %v", err)
	}
	if err := bobSessions.Create(sessionID, "bob", "alice", root, aliceRecv, aliceSend); err != nil {
		t.Fatalf("create bob session: %v", err)
	}

	seqMgr := envelope.NewSequenceManager()
	now := int64(1_700_000_000_000)
	preRotationEnv, err := envelope.Seal(aliceSessions, seqMgr, sessionID, "alice", "bob", []byte("before rotation"), now)
	if err != nil {
		t.Fatalf("seal pre-rotation: %v", err)
	}

	aliceSup := New(aliceSessions, ratelimit.New(100, 100), nil)
	bobSup := New(bobSessions, ratelimit.New(100, 100), nil)

	aliceEph, err := primitives.ECDHKeygen()
	if err != nil {
		t.Fatalf("alice ephemeral keygen: %v", err)
	}
	bobEph, err := primitives.ECDHKeygen()
	if err != nil {
		t.Fatalf("bob ephemeral keygen: %v", err)
	}
	if err := aliceSup.Rotate(sessionID, "alice", "bob", &aliceEph, bobEph.Pub); err != nil {
		t.Fatalf("alice rotate: %v", err)
	}
	if err := bobSup.Rotate(sessionID, "bob", "alice", &bobEph, aliceEph.Pub); err != nil {
		t.Fatalf("bob rotate: %v", err)
	}

	// The pre-rotation envelope must no longer decrypt under the new recvKey.
	if _, err := envelope.Open(bobSessions, preRotationEnv, "bob", now); coreerr.KindOf(err) != coreerr.KindIntegrity {
		t.Fatalf("expected IntegrityError decrypting a pre-rotation envelope post-rotation, got %v", err)
	}

	postRotationEnv, err := envelope.Seal(aliceSessions, envelope.NewSequenceManager(), sessionID, "alice", "bob", []byte("after rotation"), now)
	if err != nil {
		t.Fatalf("seal post-rotation: %v", err)
	}
	plaintext, err := envelope.Open(bobSessions, postRotationEnv, "bob", now)
	if err != nil {
		t.Fatalf("open post-rotation envelope: %v", err)
	}
	if string(plaintext) != "after rotation" {
		t.Fatalf("unexpected post-rotation plaintext: %q", plaintext)
	}
}
