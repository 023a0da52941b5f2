package ratelimit

import (
	"testing"
	"time"
)

func TestAcquireWSSession_EnforcesConcurrency(t *testing.T) {
	l := New(Config{MaxConcurrentWSSessions: 1})
	now := time.Now()

	first := l.AcquireWSSession("p1", now)
	if !first.Allowed || first.Permit == nil {
		t.Fatalf("first allowed=%v permit=%v", first.Allowed, first.Permit)
	}

	second := l.AcquireWSSession("p1", now)
	if second.Allowed {
		t.Fatalf("second should be denied")
	}

	first.Permit.Release()
	third := l.AcquireWSSession("p1", now)
	if !third.Allowed {
		t.Fatalf("third should be allowed after release")
	}
}

func TestAcquireRequest_TokenBucket(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 2})
	now := time.Now()

	for i := 0; i < 2; i++ {
		dec := l.AcquireRequest("p1", now)
		if !dec.Allowed {
			t.Fatalf("request %d denied", i)
		}
		dec.Permit.Release()
	}
	dec := l.AcquireRequest("p1", now)
	if dec.Allowed || dec.RetryAfter != 1 {
		t.Fatalf("third request allowed=%v retryAfter=%d, want denied/1", dec.Allowed, dec.RetryAfter)
	}

	if other := l.AcquireRequest("p2", now); !other.Allowed {
		t.Fatalf("other principal should have its own bucket")
	}

	later := l.AcquireRequest("p1", now.Add(1100*time.Millisecond))
	if !later.Allowed {
		t.Fatalf("request after refill should be allowed")
	}
}

func TestAcquireRequest_ConcurrencyCap(t *testing.T) {
	l := New(Config{MaxConcurrentRequests: 1})
	now := time.Now()

	first := l.AcquireRequest("p1", now)
	if !first.Allowed {
		t.Fatal("first denied")
	}
	if second := l.AcquireRequest("p1", now); second.Allowed {
		t.Fatal("second should be denied while first is in flight")
	}
	first.Permit.Release()
	first.Permit.Release()
	if third := l.AcquireRequest("p1", now); !third.Allowed {
		t.Fatal("third should be allowed after release")
	}
}

func TestPrincipalKeys_AreNamespaced(t *testing.T) {
	u := PrincipalKeyFromUser("1.2.3.4")
	ip := PrincipalKeyFromIP("1.2.3.4")
	if u == ip {
		t.Fatalf("user and ip keys collide: %q", u)
	}
	if len(u) != len("u_")+32 {
		t.Fatalf("user key = %q", u)
	}
}
