package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"e2eecore/pkg/wire"
)

type fakeChannel struct {
	sent   []string
	toRecv chan struct {
		event   string
		payload []byte
	}
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{toRecv: make(chan struct {
		event   string
		payload []byte
	}, 4)}
}

func (f *fakeChannel) Send(event string, payload any) error {
	f.sent = append(f.sent, event)
	return nil
}

func (f *fakeChannel) Recv(ctx context.Context) (string, []byte, error) {
	select {
	case m := <-f.toRecv:
		return m.event, m.payload, nil
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}

func (f *fakeChannel) pushResponse(resp wire.KEPMessage) {
	b, _ := json.Marshal(resp)
	f.toRecv <- struct {
		event   string
		payload []byte
	}{EventKEPResponse, b}
}

func TestAwaitingResponseReturnsMatchingResponse(t *testing.T) {
	ch := newFakeChannel()
	ar := &AwaitingResponse{Channel: ch}

	init := wire.KEPMessage{Type: wire.KEPInit, SessionID: "sess1", From: "alice", To: "bob"}
	go ch.pushResponse(wire.KEPMessage{Type: wire.KEPResponse, SessionID: "sess1", From: "bob", To: "alice"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := ar.RoundTrip(ctx, init)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if resp.SessionID != "sess1" || resp.From != "bob" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(ch.sent) != 1 || ch.sent[0] != EventKEPInit {
		t.Fatalf("expected one kep:init send, got %v", ch.sent)
	}
}

func TestAwaitingResponseTimesOutWithoutMatch(t *testing.T) {
	ch := newFakeChannel()
	ar := &AwaitingResponse{Channel: ch}

	init := wire.KEPMessage{Type: wire.KEPInit, SessionID: "sess1"}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := ar.RoundTrip(ctx, init); err == nil {
		t.Fatal("expected timeout error when no response arrives")
	}
}
