package securitylog

import "testing"

func TestRecordNeverStoresRawID(t *testing.T) {
	sink := New([]byte("test-salt"))
	sink.Record("alice", "sess1", EventReplayAttempt, map[string]string{"seq": "7"})

	events := sink.All()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.UserFP == "alice" || e.SessionFP == "sess1" {
		t.Fatal("raw id leaked into event record")
	}
	if e.UserFP == "" || e.SessionFP == "" {
		t.Fatal("expected non-empty fingerprints")
	}
	if e.Synced {
		t.Fatal("new event must not start synced")
	}
}

func TestFingerprintIsDeterministicAndSaltSensitive(t *testing.T) {
	a := Fingerprint([]byte("salt1"), "alice")
	b := Fingerprint([]byte("salt1"), "alice")
	if a != b {
		t.Fatal("fingerprint should be deterministic for same salt+id")
	}
	c := Fingerprint([]byte("salt2"), "alice")
	if a == c {
		t.Fatal("fingerprint should differ across salts")
	}
}

type fakeUploader struct {
	ackAll bool
}

func (f *fakeUploader) Upload(batch []Event) ([]int, error) {
	if !f.ackAll {
		return nil, nil
	}
	acked := make([]int, len(batch))
	for i := range batch {
		acked[i] = i
	}
	return acked, nil
}

func TestUploadOnlyMarksAckedEventsSynced(t *testing.T) {
	sink := New([]byte("salt"))
	sink.Record("alice", "sess1", EventReplayAttempt, nil)
	sink.Record("bob", "sess2", EventInvalidSignature, nil)

	if err := sink.Upload(&fakeUploader{ackAll: false}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	for _, e := range sink.All() {
		if e.Synced {
			t.Fatal("no event should be synced when the relay acked nothing")
		}
	}

	if err := sink.Upload(&fakeUploader{ackAll: true}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	for _, e := range sink.All() {
		if !e.Synced {
			t.Fatal("expected all events synced after full ack")
		}
	}
	if len(sink.Unsynced()) != 0 {
		t.Fatal("expected no unsynced events remaining")
	}
}
