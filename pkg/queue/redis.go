package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"CoinTrend/pkg/logger"
)

// RedisQueue keeps jobs in Redis:
//
//	<prefix>:ready       list, LPUSH by producers
//	<prefix>:processing  list, BLMOVE target while a worker holds the message
//	<prefix>:retry       zset scored by due time
//	<prefix>:dead        list of messages out of retries
//
// Messages left in processing by a crashed worker are requeued on the next Start.
type RedisQueue struct {
	log    *logger.Logger
	cfg    QueueConfig
	rdb    redis.UniversalClient
	prefix string

	mu      sync.RWMutex
	jobs    map[string]Job
	cancel  context.CancelFunc
	workers sync.WaitGroup
}

type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix namespaces every key of the queue.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(q *RedisQueue) { q.prefix = prefix }
}

func NewRedisQueue(log *logger.Logger, cfg QueueConfig, rdb redis.UniversalClient, opts ...RedisQueueOption) *RedisQueue {
	q := &RedisQueue{
		log:    log.With(logger.String("component", "queue")),
		cfg:    cfg.withDefaults(),
		rdb:    rdb,
		prefix: "cointrend:queue",
		jobs:   make(map[string]Job),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *RedisQueue) key(name string) string { return q.prefix + ":" + name }

// RegisterJob routes messages of job.Type() to job.
func (q *RedisQueue) RegisterJob(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, dup := q.jobs[job.Type()]; dup {
		return fmt.Errorf("queue: type %s already handled", job.Type())
	}
	q.jobs[job.Type()] = job
	return nil
}

func (q *RedisQueue) job(msgType string) Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.jobs[msgType]
}

// Start requeues abandoned messages and launches the workers and the retry mover.
func (q *RedisQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel != nil {
		return errors.New("queue: already started")
	}
	if err := q.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("queue: redis ping: %w", err)
	}
	n, err := q.recover(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	for i := 0; i < q.cfg.Workers; i++ {
		q.workers.Add(1)
		go q.work(runCtx)
	}
	q.workers.Add(1)
	go q.promote(runCtx)

	q.log.Info("queue started",
		logger.Int("workers", q.cfg.Workers),
		logger.Int("jobs", len(q.jobs)),
		logger.Int64("recovered", n))
	return nil
}

// recover moves everything left in processing back to ready.
func (q *RedisQueue) recover(ctx context.Context) (int64, error) {
	var n int64
	for {
		err := q.rdb.LMove(ctx, q.key("processing"), q.key("ready"), "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("queue: recover processing list: %w", err)
		}
		n++
	}
}

// Stop lets workers finish their current message within ctx.
func (q *RedisQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	cancel := q.cancel
	q.cancel = nil
	q.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		q.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.log.Info("queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue: stop: %w", ctx.Err())
	}
}

// Enqueue stores payload as a new message of msgType.
func (q *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	if q.job(msgType) == nil {
		return fmt.Errorf("queue: no job for type %s", msgType)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queue: encode payload: %w", err)
	}
	data, err := json.Marshal(Message{ID: uuid.NewString(), Type: msgType, Payload: raw, CreatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.key("ready"), data).Err()
}

func (q *RedisQueue) work(ctx context.Context) {
	defer q.workers.Done()
	for ctx.Err() == nil {
		data, err := q.rdb.BLMove(ctx, q.key("ready"), q.key("processing"), "RIGHT", "LEFT", time.Second).Result()
		switch {
		case err == nil:
		case errors.Is(err, redis.Nil), ctx.Err() != nil:
			continue
		default:
			q.log.Error("queue: blmove failed", logger.Error(err))
			sleep(ctx, time.Second)
			continue
		}
		q.handle(data)
	}
}

// handle runs one message. The job sees a fresh context so Stop does not abort a send halfway.
func (q *RedisQueue) handle(data string) {
	ctx := context.Background()
	defer func() {
		if err := q.rdb.LRem(ctx, q.key("processing"), 1, data).Err(); err != nil {
			q.log.Error("queue: ack failed", logger.Error(err))
		}
	}()

	var msg Message
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		q.log.Error("queue: undecodable message dropped", logger.Error(err))
		return
	}
	job := q.job(msg.Type)
	if job == nil {
		q.bury(ctx, msg, "no job registered")
		return
	}

	started := time.Now()
	err := job.Handle(ctx, msg.Payload)
	if err == nil {
		q.log.Debug("job done", logger.String("job", job.Name()), logger.String("id", msg.ID),
			logger.Duration("took_ms", time.Since(started)))
		return
	}

	msg.LastError = err.Error()
	if msg.Attempts >= q.cfg.RetryLimit {
		q.log.Error("job out of retries", logger.String("job", job.Name()), logger.String("id", msg.ID),
			logger.Int("attempts", msg.Attempts+1), logger.Error(err))
		q.bury(ctx, msg, msg.LastError)
		return
	}
	msg.Attempts++
	due := q.cfg.retryAt(time.Now(), msg.Attempts)
	if err := q.schedule(ctx, msg, due); err != nil {
		q.log.Error("queue: schedule retry failed", logger.String("id", msg.ID), logger.Error(err))
		return
	}
	q.log.Warn("job failed, retrying", logger.String("job", job.Name()), logger.String("id", msg.ID),
		logger.Int("attempt", msg.Attempts), logger.String("due", due.Format(time.RFC3339)), logger.Error(err))
}

func (q *RedisQueue) schedule(ctx context.Context, msg Message, due time.Time) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.rdb.ZAdd(ctx, q.key("retry"), redis.Z{Score: float64(due.Unix()), Member: data}).Err()
}

func (q *RedisQueue) bury(ctx context.Context, msg Message, reason string) {
	msg.LastError = reason
	data, err := json.Marshal(msg)
	if err == nil {
		err = q.rdb.LPush(ctx, q.key("dead"), data).Err()
	}
	if err != nil {
		q.log.Error("queue: dead letter failed", logger.String("id", msg.ID), logger.Error(err))
	}
}

// promoteScript moves due members of the retry zset to the ready list atomically.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, m in ipairs(due) do
	redis.call('ZREM', KEYS[1], m)
	redis.call('LPUSH', KEYS[2], m)
end
return #due
`)

func (q *RedisQueue) promote(ctx context.Context) {
	defer q.workers.Done()
	t := time.NewTicker(q.cfg.PollEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		now := strconv.FormatInt(time.Now().Unix(), 10)
		err := promoteScript.Run(ctx, q.rdb, []string{q.key("retry"), q.key("ready")}, now).Err()
		if err != nil && ctx.Err() == nil {
			q.log.Error("queue: promote retries failed", logger.Error(err))
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

var _ Publisher = (*RedisQueue)(nil)
