package monitoring

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsFirstThenSuppresses(t *testing.T) {
	rl := NewRateLimiter(30 * time.Second)
	now := time.Unix(0, 0)

	if !rl.Allow(now, "stale-sweep-spike") {
		t.Fatal("first call should be allowed")
	}
	if rl.Allow(now.Add(5*time.Second), "stale-sweep-spike") {
		t.Fatal("call within interval should be suppressed")
	}
	if !rl.Allow(now.Add(31*time.Second), "stale-sweep-spike") {
		t.Fatal("call after interval should be allowed again")
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(30 * time.Second)
	now := time.Unix(0, 0)

	if !rl.Allow(now, "a") {
		t.Fatal("key a should be allowed")
	}
	if !rl.Allow(now, "b") {
		t.Fatal("key b should be allowed independently of key a")
	}
}

func TestLogfnRespectsRateLimit(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	count := 0
	SetLogger(func(string, ...interface{}) { count++ })

	rl := NewRateLimiter(time.Minute)
	now := time.Unix(0, 0)
	rl.Logfn(now, "k", "spike %d", 1)
	rl.Logfn(now.Add(time.Second), "k", "spike %d", 2)

	if count != 1 {
		t.Errorf("expected 1 log call, got %d", count)
	}
}
