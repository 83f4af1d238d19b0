package securestore

import (
	"bytes"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	env, err := Seal([]byte("correct horse"), 100000, []byte("secret payload"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	got, err := Open([]byte("correct horse"), env)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, []byte("secret payload")) {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestOpenWrongPassword(t *testing.T) {
	env, err := Seal([]byte("correct horse"), 100000, []byte("secret payload"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := Open([]byte("wrong horse"), env); err == nil {
		t.Fatal("expected wrong-password error")
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	env, err := Seal([]byte("pw"), 100000, []byte("payload"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	data, err := Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got, err := Open([]byte("pw"), back)
	if err != nil {
		t.Fatalf("open after round trip: %v", err)
	}
	if !bytes.Equal(got, []byte("payload")) {
		t.Fatalf("got %q", got)
	}
}

func TestUnmarshalRejectsMalformed(t *testing.T) {
	if _, err := Unmarshal([]byte(`{"version":1}`)); err == nil {
		t.Fatal("expected error for malformed envelope")
	}
}
