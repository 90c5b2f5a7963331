package ratelimit

import (
	"testing"
	"time"
)

func TestLimiter_BurstThenRefill(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New(2, 1)
	l.now = func() time.Time { return now }

	if !l.Allow("BTC/USDT") || !l.Allow("BTC/USDT") {
		t.Fatal("burst of 2 should be allowed")
	}
	if l.Allow("BTC/USDT") {
		t.Fatal("third call should be limited")
	}
	if !l.Allow("ETH/USDT") {
		t.Fatal("keys must not share buckets")
	}

	now = now.Add(1500 * time.Millisecond)
	if !l.Allow("BTC/USDT") {
		t.Fatal("expected a token after refill")
	}
	if l.Allow("BTC/USDT") {
		t.Fatal("only one token should have refilled")
	}
}

func TestLimiter_CapacityCapsRefill(t *testing.T) {
	now := time.Unix(0, 0)
	l := New(1, 10)
	l.now = func() time.Time { return now }

	l.Allow("k")
	now = now.Add(time.Hour)
	if !l.Allow("k") {
		t.Fatal("expected refill")
	}
	if l.Allow("k") {
		t.Fatal("refill must not exceed capacity")
	}
}

func TestLimiter_Disabled(t *testing.T) {
	var nilLimiter *Limiter
	if !nilLimiter.Allow("k") {
		t.Fatal("nil limiter should allow")
	}
	l := New(0, 0)
	for i := 0; i < 10; i++ {
		if !l.Allow("k") {
			t.Fatal("zero capacity disables limiting")
		}
	}
}

func TestLimiter_Forget(t *testing.T) {
	now := time.Unix(0, 0)
	l := New(1, 0)
	l.now = func() time.Time { return now }
	l.Allow("k")
	if l.Allow("k") {
		t.Fatal("expected limit")
	}
	l.Forget("k")
	if !l.Allow("k") {
		t.Fatal("forgotten key should start full")
	}
}
