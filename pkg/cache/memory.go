package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	key      string
	value    []byte
	expireAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// MemoryCache implements Service inside the process with LRU eviction. It backs single instance
// deployments and tests; locks and channels are only visible to the current process.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	recency    *list.List // front is the most recently used
	maxSize    int
	sweepEvery time.Duration
	now        func() time.Time

	subMu sync.RWMutex
	subs  map[string][]chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	mc := &MemoryCache{
		entries:    make(map[string]*list.Element),
		recency:    list.New(),
		maxSize:    1000,
		sweepEvery: 5 * time.Minute,
		now:        time.Now,
		subs:       make(map[string][]chan []byte),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(mc)
	}
	go mc.sweep()
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	mc.mu.Lock()
	mc.store(key, data, expiration)
	mc.mu.Unlock()
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	e, ok := mc.live(key)
	var data []byte
	if ok {
		mc.recency.MoveToFront(mc.entries[key])
		data = e.value
	}
	mc.mu.Unlock()

	if !ok {
		return ErrCacheMiss
	}
	return decode(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	for _, k := range keys {
		mc.remove(k)
	}
	mc.mu.Unlock()
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		if _, ok := mc.live(k); ok {
			return true, nil
		}
	}
	return false, nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if _, held := mc.live(key); held {
		return false, nil
	}
	mc.store(key, []byte("locked"), ttl)
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

// Publish delivers payload to the current subscribers of channel. Slow subscribers miss messages.
func (mc *MemoryCache) Publish(_ context.Context, channel string, payload interface{}) error {
	data, err := encode(payload)
	if err != nil {
		return err
	}
	mc.subMu.RLock()
	defer mc.subMu.RUnlock()
	for _, ch := range mc.subs[channel] {
		select {
		case ch <- data:
		default:
		}
	}
	return nil
}

// Subscribe returns a buffered channel receiving payloads published on channel.
func (mc *MemoryCache) Subscribe(channel string, buffer int) <-chan []byte {
	ch := make(chan []byte, buffer)
	mc.subMu.Lock()
	mc.subs[channel] = append(mc.subs[channel], ch)
	mc.subMu.Unlock()
	return ch
}

// Close stops the sweeper.
func (mc *MemoryCache) Close() error {
	mc.closeOnce.Do(func() { close(mc.done) })
	return nil
}

// store, live and remove expect mc.mu to be held.
func (mc *MemoryCache) store(key string, data []byte, ttl time.Duration) {
	e := &memoryEntry{key: key, value: data}
	if ttl > 0 {
		e.expireAt = mc.now().Add(ttl)
	}
	if el, ok := mc.entries[key]; ok {
		el.Value = e
		mc.recency.MoveToFront(el)
		return
	}
	if len(mc.entries) >= mc.maxSize {
		if oldest := mc.recency.Back(); oldest != nil {
			mc.remove(oldest.Value.(*memoryEntry).key)
		}
	}
	mc.entries[key] = mc.recency.PushFront(e)
}

func (mc *MemoryCache) live(key string) (*memoryEntry, bool) {
	el, ok := mc.entries[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*memoryEntry)
	if e.expired(mc.now()) {
		mc.remove(key)
		return nil, false
	}
	return e, true
}

func (mc *MemoryCache) remove(key string) {
	if el, ok := mc.entries[key]; ok {
		mc.recency.Remove(el)
		delete(mc.entries, key)
	}
}

func (mc *MemoryCache) sweep() {
	ticker := time.NewTicker(mc.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-mc.done:
			return
		case <-ticker.C:
		}
		mc.mu.Lock()
		now := mc.now()
		for key, el := range mc.entries {
			if el.Value.(*memoryEntry).expired(now) {
				mc.remove(key)
			}
		}
		mc.mu.Unlock()
	}
}

var (
	_ Service = (*MemoryCache)(nil)
	_ Service = (*RedisCache)(nil)
)
