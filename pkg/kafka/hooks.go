package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"CoinTrend/pkg/logger"
)

// Delivery is one handling attempt of a fetched message.
type Delivery struct {
	Topic   string
	Message kafka.Message
	// Data is what the handler receives. Hooks may replace it.
	Data    []byte
	Attempt int
}

// Hook observes or vetoes handling. An error from Before skips the handler for this attempt.
type Hook interface {
	Before(ctx context.Context, d *Delivery) (context.Context, error)
	After(ctx context.Context, d *Delivery, err error)
}

// HookFuncs builds a Hook from optional functions.
type HookFuncs struct {
	BeforeFn func(ctx context.Context, d *Delivery) (context.Context, error)
	AfterFn  func(ctx context.Context, d *Delivery, err error)
}

func (h HookFuncs) Before(ctx context.Context, d *Delivery) (context.Context, error) {
	if h.BeforeFn == nil {
		return ctx, nil
	}
	return h.BeforeFn(ctx, d)
}

func (h HookFuncs) After(ctx context.Context, d *Delivery, err error) {
	if h.AfterFn != nil {
		h.AfterFn(ctx, d, err)
	}
}

// HookError is returned when a hook rejects or crashes on a delivery.
type HookError struct {
	Code string
	Err  error
}

func (e *HookError) Error() string { return fmt.Sprintf("%s: %v", e.Code, e.Err) }

func (e *HookError) Unwrap() error { return e.Err }

// HookChain runs Before in order and After in reverse order. Panics inside hooks are contained.
type HookChain []Hook

func NewHookChain(hooks ...Hook) HookChain {
	chain := make(HookChain, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			chain = append(chain, h)
		}
	}
	return chain
}

func (c HookChain) Before(ctx context.Context, d *Delivery) (context.Context, error) {
	for _, h := range c {
		next, herr := callBefore(ctx, h, d)
		if herr != nil {
			return ctx, herr
		}
		ctx = next
	}
	return ctx, nil
}

func callBefore(ctx context.Context, h Hook, d *Delivery) (next context.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			next, err = ctx, &HookError{Code: "ERR_PANIC", Err: fmt.Errorf("%v", r)}
		}
	}()
	return h.Before(ctx, d)
}

func (c HookChain) After(ctx context.Context, d *Delivery, err error) {
	for i := len(c) - 1; i >= 0; i-- {
		func() {
			defer func() { _ = recover() }()
			c[i].After(ctx, d, err)
		}()
	}
}

type startedKey struct{}

// TraceHook puts the trace header and the attempt start time into the handler context.
// Messages the handler publishes with the same context keep the trace id.
func TraceHook() Hook {
	return HookFuncs{BeforeFn: func(ctx context.Context, d *Delivery) (context.Context, error) {
		ctx = context.WithValue(ctx, startedKey{}, time.Now())
		if id := headerValue(d.Message, TraceHeader); id != "" {
			ctx = ContextWithTrace(ctx, id)
		}
		return ctx, nil
	}}
}

// LoggingHook warns about failed attempts and attempts slower than slow. It needs TraceHook before it.
func LoggingHook(log *logger.Logger, slow time.Duration) Hook {
	return HookFuncs{AfterFn: func(ctx context.Context, d *Delivery, err error) {
		started, ok := ctx.Value(startedKey{}).(time.Time)
		if !ok {
			return
		}
		took := time.Since(started)
		if err == nil && (slow <= 0 || took < slow) {
			return
		}
		fields := []logger.Field{
			logger.String("topic", d.Topic),
			logger.Int("partition", d.Message.Partition),
			logger.Int64("offset", d.Message.Offset),
			logger.Int("attempt", d.Attempt),
			logger.Duration("took_ms", took),
		}
		if id := TraceFromContext(ctx); id != "" {
			fields = append(fields, logger.String("trace_id", id))
		}
		if err != nil {
			log.Warn("kafka message attempt failed", append(fields, logger.Error(err))...)
			return
		}
		log.Warn("kafka message slow", fields...)
	}}
}

func headerValue(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
