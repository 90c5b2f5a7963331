package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestCache(t *testing.T, opts ...MemoryOption) (*MemoryCache, *time.Time) {
	t.Helper()
	mc := NewMemoryCache(opts...)
	t.Cleanup(func() { _ = mc.Close() })
	now := time.Unix(1_700_000_000, 0)
	mc.now = func() time.Time { return now }
	return mc, &now
}

func TestMemoryCache_SetGet(t *testing.T) {
	mc, now := newTestCache(t)
	ctx := context.Background()

	type payload struct {
		Symbol string  `json:"symbol"`
		P      float64 `json:"p"`
	}
	if err := mc.Set(ctx, "k", payload{"BTC/USDT", 0.4}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var got payload
	if err := mc.Get(ctx, "k", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Symbol != "BTC/USDT" || got.P != 0.4 {
		t.Fatalf("unexpected value %+v", got)
	}

	*now = now.Add(2 * time.Minute)
	if err := mc.Get(ctx, "k", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after expiry, got %v", err)
	}
}

func TestMemoryCache_Bytes(t *testing.T) {
	mc, _ := newTestCache(t)
	ctx := context.Background()

	_ = mc.Set(ctx, "raw", []byte(`{"a":1}`), 0)
	var b []byte
	if err := mc.Get(ctx, "raw", &b); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(b) != `{"a":1}` {
		t.Fatalf("unexpected bytes %s", b)
	}
}

func TestMemoryCache_TryLock(t *testing.T) {
	mc, now := newTestCache(t)
	ctx := context.Background()

	ok, _ := mc.TryLock(ctx, "lock", time.Second)
	if !ok {
		t.Fatal("first lock should succeed")
	}
	if ok, _ := mc.TryLock(ctx, "lock", time.Second); ok {
		t.Fatal("second lock should fail while held")
	}
	*now = now.Add(2 * time.Second)
	if ok, _ := mc.TryLock(ctx, "lock", time.Second); !ok {
		t.Fatal("lock should be free after ttl")
	}
	_ = mc.Unlock(ctx, "lock")
	if ok, _ := mc.TryLock(ctx, "lock", time.Second); !ok {
		t.Fatal("lock should be free after unlock")
	}
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	mc, now := newTestCache(t, WithMemoryMaxSize(2))
	ctx := context.Background()

	_ = mc.Set(ctx, "a", "1", 0)
	*now = now.Add(time.Second)
	_ = mc.Set(ctx, "b", "2", 0)
	*now = now.Add(time.Second)
	var s string
	_ = mc.Get(ctx, "a", &s)
	*now = now.Add(time.Second)
	_ = mc.Set(ctx, "c", "3", 0)

	if ok, _ := mc.Exists(ctx, "b"); ok {
		t.Fatal("b should have been evicted")
	}
	if ok, _ := mc.Exists(ctx, "a", "c"); !ok {
		t.Fatal("a and c should remain")
	}
}

func TestMemoryCache_Publish(t *testing.T) {
	mc, _ := newTestCache(t)
	sub := mc.Subscribe("push:u1", 1)

	if err := mc.Publish(context.Background(), "push:u1", map[string]string{"title": "hi"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := mc.Publish(context.Background(), "push:u2", "ignored"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-sub:
		if string(got) != `{"title":"hi"}` {
			t.Fatalf("unexpected payload %s", got)
		}
	default:
		t.Fatal("expected a message")
	}
	select {
	case got := <-sub:
		t.Fatalf("unexpected extra message %s", got)
	default:
	}
}
