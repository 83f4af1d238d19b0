package ratelimit

import (
	"testing"
	"time"
)

func TestAllowRespectsBurstThenThrottles(t *testing.T) {
	lim := New(1, 2)
	if !lim.Allow("alice") {
		t.Fatal("expected first attempt allowed")
	}
	if !lim.Allow("alice") {
		t.Fatal("expected second attempt allowed within burst")
	}
	if lim.Allow("alice") {
		t.Fatal("expected third immediate attempt to be throttled")
	}
}

func TestAllowIsPerKey(t *testing.T) {
	lim := New(1, 1)
	if !lim.Allow("alice") {
		t.Fatal("expected alice's first attempt allowed")
	}
	if !lim.Allow("bob") {
		t.Fatal("expected bob's independent bucket to allow his first attempt")
	}
}

func TestIdleEntriesAreEvictedByPeriodicSweep(t *testing.T) {
	lim := New(100, 100)
	lim.idleTTL = time.Minute

	base := time.Unix(1_700_000_000, 0)
	lim.now = func() time.Time { return base }
	lim.Allow("stale-peer")
	if _, ok := lim.byKey["stale-peer"]; !ok {
		t.Fatal("expected stale-peer entry to exist after its first attempt")
	}

	base = base.Add(2 * time.Minute)
	for i := 0; i < 512; i++ {
		lim.Allow("fresh-peer")
	}

	if _, ok := lim.byKey["stale-peer"]; ok {
		t.Fatal("expected stale-peer entry to be evicted by the periodic sweep")
	}
	if _, ok := lim.byKey["fresh-peer"]; !ok {
		t.Fatal("expected fresh-peer entry to survive the sweep")
	}
}
