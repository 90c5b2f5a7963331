package cache

import (
	"fmt"
	"time"
)

// RedisConfig holds connection settings of RedisCache.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	PoolTimeout  time.Duration
	// Prefix namespaces keys. Pub/sub channels are not prefixed.
	Prefix string
}

func (c RedisConfig) addr() string {
	host, port := c.Host, c.Port
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = 6379
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// MemoryOption configures MemoryCache.
type MemoryOption func(*MemoryCache)

// WithMemoryMaxSize bounds the number of entries; the least recently used one is evicted first.
func WithMemoryMaxSize(size int) MemoryOption {
	return func(mc *MemoryCache) {
		if size > 0 {
			mc.maxSize = size
		}
	}
}

// WithMemoryCleanup sets how often expired entries are swept.
func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(mc *MemoryCache) {
		if interval > 0 {
			mc.sweepEvery = interval
		}
	}
}
