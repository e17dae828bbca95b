package ratelimit

import (
	"testing"
	"time"
)

func TestAcquireRequest_TokenBucketRefills(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 2})
	now := time.Unix(1000, 0)

	if dec := l.AcquireRequest("p1", now); !dec.Allowed {
		t.Fatal("first request denied")
	}
	if dec := l.AcquireRequest("p1", now); !dec.Allowed {
		t.Fatal("burst request denied")
	}
	dec := l.AcquireRequest("p1", now)
	if dec.Allowed {
		t.Fatal("request over burst allowed")
	}
	if dec.RetryAfter < 1 {
		t.Fatalf("RetryAfter=%d, want >= 1", dec.RetryAfter)
	}

	if dec := l.AcquireRequest("p1", now.Add(2*time.Second)); !dec.Allowed {
		t.Fatal("request after refill denied")
	}
}

func TestAcquireRequest_PrincipalsIsolated(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 1})
	now := time.Unix(1000, 0)

	if dec := l.AcquireRequest("p1", now); !dec.Allowed {
		t.Fatal("p1 denied")
	}
	if dec := l.AcquireRequest("p1", now); dec.Allowed {
		t.Fatal("p1 second request allowed")
	}
	if dec := l.AcquireRequest("p2", now); !dec.Allowed {
		t.Fatal("p2 starved by p1")
	}
}

func TestAcquireCall_ConcurrencyCap(t *testing.T) {
	l := New(Config{MaxConcurrentCalls: 2})
	now := time.Unix(1000, 0)

	first := l.AcquireCall("p1", now)
	second := l.AcquireCall("p1", now)
	if !first.Allowed || !second.Allowed {
		t.Fatal("calls under cap denied")
	}
	if dec := l.AcquireCall("p1", now); dec.Allowed {
		t.Fatal("third concurrent call allowed")
	}

	first.Permit.Release()
	if dec := l.AcquireCall("p1", now); !dec.Allowed {
		t.Fatal("call denied after release")
	}
}

func TestPermit_ReleaseIsIdempotent(t *testing.T) {
	l := New(Config{MaxConcurrentCalls: 1})
	now := time.Unix(1000, 0)

	dec := l.AcquireCall("p1", now)
	if !dec.Allowed {
		t.Fatal("call denied")
	}
	dec.Permit.Release()
	dec.Permit.Release()

	if again := l.AcquireCall("p1", now); !again.Allowed {
		t.Fatal("double release corrupted the semaphore")
	}
}

func TestLimiter_EntryGC(t *testing.T) {
	l := New(Config{RPS: 10, Burst: 10, MaxEntries: 2, EntryTTL: time.Minute})
	now := time.Unix(1000, 0)

	l.AcquireRequest("p1", now)
	l.AcquireRequest("p2", now)
	// Third principal arrives after the TTL; stale entries must be evicted
	// rather than the map growing without bound.
	l.AcquireRequest("p3", now.Add(2*time.Minute))

	l.mu.Lock()
	n := len(l.m)
	l.mu.Unlock()
	if n > 2 {
		t.Fatalf("limiter map has %d entries, want <= 2", n)
	}
}
