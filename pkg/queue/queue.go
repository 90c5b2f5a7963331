package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// QueueConfig tunes the worker pool and retry policy.
type QueueConfig struct {
	Workers    int
	RetryLimit int           // retries after the first attempt
	RetryDelay time.Duration // grows linearly with the attempt number
	PollEvery  time.Duration // how often due retries return to the ready list
}

func (c QueueConfig) withDefaults() QueueConfig {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 10 * time.Second
	}
	if c.PollEvery <= 0 {
		c.PollEvery = 5 * time.Second
	}
	return c
}

// retryAt is when the attempt-th retry becomes due.
func (c QueueConfig) retryAt(now time.Time, attempt int) time.Time {
	return now.Add(time.Duration(attempt) * c.RetryDelay)
}

// Message is the envelope stored in Redis.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	CreatedAt time.Time       `json:"created_at"`
	LastError string          `json:"last_error,omitempty"`
}

// Decode unmarshals a job payload.
func Decode[T any](payload json.RawMessage) (*T, error) {
	v := new(T)
	if err := json.Unmarshal(payload, v); err != nil {
		return nil, fmt.Errorf("queue: decode %T: %w", *v, err)
	}
	return v, nil
}
