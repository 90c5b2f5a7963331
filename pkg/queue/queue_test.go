package queue

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDecode(t *testing.T) {
	type payload struct {
		To string `json:"to"`
	}
	got, err := Decode[payload](json.RawMessage(`{"to":"a@b.c"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.To != "a@b.c" {
		t.Fatalf("To = %q, want %q", got.To, "a@b.c")
	}
	if _, err := Decode[payload](json.RawMessage(`{`)); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestQueueConfig_Defaults(t *testing.T) {
	cfg := QueueConfig{RetryLimit: -1}.withDefaults()
	if cfg.Workers != 1 || cfg.RetryLimit != 0 || cfg.RetryDelay != 10*time.Second || cfg.PollEvery != 5*time.Second {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestQueueConfig_RetryAtGrowsLinearly(t *testing.T) {
	cfg := QueueConfig{RetryDelay: time.Minute}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := cfg.retryAt(now, 3); !got.Equal(now.Add(3 * time.Minute)) {
		t.Fatalf("retryAt = %v", got)
	}
}
