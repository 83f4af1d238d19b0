// Package ratelimit throttles per-peer KEP_INIT processing attempts
// (SPEC_FULL.md's supplement to spec.md §5's 30s KEP timeout), adapted from
// the teacher's MapLimiter: one token bucket per key, created lazily, with
// idle entries swept out periodically so an attacker cycling through
// attacker-controlled peer ids (supervisor.HandleIncomingKEPInit keys by
// msg.From, before any signature is verified) can't grow the map without
// bound.
package ratelimit

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultIdleTTL = 10 * time.Minute

// entry pairs a key's token bucket with the last time it was touched, so
// the periodic sweep knows what's gone cold.
type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PeerLimiter hands out one *rate.Limiter per key (a peer user id), creating
// it on first use with the configured rate and burst, and evicting entries
// idle past idleTTL every 512th call.
type PeerLimiter struct {
	mu      sync.Mutex
	byKey   map[string]*entry
	r       rate.Limit
	burst   int
	idleTTL time.Duration
	hits    uint64
	now     func() time.Time
}

// New builds a PeerLimiter allowing r events/sec sustained with burst room,
// evicting entries idle for more than 10 minutes.
func New(eventsPerSecond float64, burst int) *PeerLimiter {
	return &PeerLimiter{
		byKey:   make(map[string]*entry),
		r:       rate.Limit(eventsPerSecond),
		burst:   burst,
		idleTTL: defaultIdleTTL,
		now:     time.Now,
	}
}

// Allow reports whether an attempt for key is permitted right now, consuming
// a token if so.
func (p *PeerLimiter) Allow(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return true
	}

	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.byKey[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(p.r, p.burst), lastSeen: now}
		p.byKey[key] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	p.hits++
	if p.hits%512 == 0 {
		p.evictIdleLocked(now)
	}

	return allowed
}

func (p *PeerLimiter) evictIdleLocked(now time.Time) {
	cutoff := now.Add(-p.idleTTL)
	for k, e := range p.byKey {
		if e.lastSeen.Before(cutoff) {
			delete(p.byKey, k)
		}
	}
}
