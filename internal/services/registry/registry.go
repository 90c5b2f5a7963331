// Package registry owns the live symbol signals of the process.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"CoinTrend/internal/domain/models"
	"CoinTrend/internal/domain/repository"
	"CoinTrend/internal/services/symbol"
	"CoinTrend/pkg/logger"
)

const (
	lockKeyPrefix = "cointrend:symbol:create:"
	createTimeout = 30 * time.Second
)

// Option configures a Registry.
type Option func(*Registry)

// WithLocker enables the cross-instance creation lock.
func WithLocker(l repository.Locker, ttl time.Duration) Option {
	return func(r *Registry) {
		r.locker = l
		r.lockTTL = ttl
	}
}

// WithSignalOptions is applied to every signal the registry builds.
func WithSignalOptions(opts ...symbol.Option) Option {
	return func(r *Registry) { r.signalOpts = append(r.signalOpts, opts...) }
}

func WithMetrics(m repository.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// Registry maps "BASE/QUOTE" keys to running signals.
type Registry struct {
	assets  repository.AssetRepository
	symbols repository.SymbolRepository
	sink    symbol.EventSink
	log     *logger.Logger
	metrics repository.Metrics

	locker     repository.Locker
	lockTTL    time.Duration
	signalOpts []symbol.Option

	signals    atomic.Pointer[map[string]*symbol.Signal]
	writeMu    sync.Mutex // guards copy-on-write inserts
	populateMu sync.RWMutex // creation holds it shared so Populate never swaps out a new signal
	group      singleflight.Group
}

func New(
	assets repository.AssetRepository,
	symbols repository.SymbolRepository,
	sink symbol.EventSink,
	log *logger.Logger,
	opts ...Option,
) *Registry {
	r := &Registry{
		assets:  assets,
		symbols: symbols,
		sink:    sink,
		log:     log,
		lockTTL: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	empty := make(map[string]*symbol.Signal)
	r.signals.Store(&empty)
	return r
}

// Populate loads every persisted symbol, starts it and swaps it in for the current set.
func (r *Registry) Populate(ctx context.Context) error {
	r.populateMu.Lock()
	defer r.populateMu.Unlock()

	docs, err := r.symbols.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("load symbols: %w", err)
	}

	next := make(map[string]*symbol.Signal, len(docs))
	for _, doc := range docs {
		s, err := symbol.Hydrate(doc, r.sink, r.signalOpts...)
		if err != nil {
			r.log.Warn("skipping unreadable symbol",
				logger.String("symbol", doc.Symbol.Key()),
				logger.Error(err))
			continue
		}
		next[s.Key()] = s
	}
	r.writeMu.Lock()
	for _, s := range *r.signals.Load() {
		s.Stop()
	}
	for _, s := range next {
		s.Start()
	}
	r.signals.Store(&next)
	r.writeMu.Unlock()

	r.recordSize(len(next))
	r.log.Info("symbol registry populated", logger.Int("symbols", len(next)))
	return nil
}

// Get returns the live signal of base/quote, if any.
func (r *Registry) Get(base, quote string) (*symbol.Signal, bool) {
	s, ok := (*r.signals.Load())[models.SymbolKey(base, quote)]
	return s, ok
}

// All returns every live signal ordered by key.
func (r *Registry) All() []*symbol.Signal {
	m := *r.signals.Load()
	out := make([]*symbol.Signal, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func (r *Registry) Len() int { return len(*r.signals.Load()) }

// GetOrCreate returns the signal of base/quote, creating and persisting it exactly once on a miss.
func (r *Registry) GetOrCreate(ctx context.Context, base, quote string) (*symbol.Signal, error) {
	if s, ok := r.Get(base, quote); ok {
		return s, nil
	}
	if err := validatePair(base, quote); err != nil {
		return nil, err
	}

	key := models.SymbolKey(base, quote)
	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		if s, ok := r.Get(base, quote); ok {
			return s, nil
		}
		// shared by every waiter, so one cancelled caller must not fail the others
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), createTimeout)
		defer cancel()
		return r.create(cctx, base, quote)
	})
	if err != nil {
		return nil, err
	}
	return v.(*symbol.Signal), nil
}

// Save persists the current snapshot of s.
func (r *Registry) Save(ctx context.Context, s *symbol.Signal) error {
	if err := r.symbols.Save(ctx, s.Snapshot()); err != nil {
		return fmt.Errorf("save symbol %s: %w", s.Key(), err)
	}
	return nil
}

// SaveAll persists every live signal, used on shutdown to keep probabilities across restarts.
func (r *Registry) SaveAll(ctx context.Context) error {
	var errs []error
	for _, s := range r.All() {
		if err := r.Save(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stop stops every live signal.
func (r *Registry) Stop() {
	for _, s := range r.All() {
		s.Stop()
	}
}

func (r *Registry) create(ctx context.Context, base, quote string) (*symbol.Signal, error) {
	r.populateMu.RLock()
	defer r.populateMu.RUnlock()

	key := models.SymbolKey(base, quote)
	if r.locker != nil {
		release, err := r.lock(ctx, key)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	// another instance may have created it while we waited for the lock
	doc, err := r.symbols.FindByKey(ctx, base, quote)
	switch {
	case err == nil:
		s, err := symbol.Hydrate(doc, r.sink, r.signalOpts...)
		if err != nil {
			return nil, fmt.Errorf("hydrate symbol %s: %w", key, err)
		}
		s.Start()
		r.insert(s)
		return s, nil
	case !errors.Is(err, models.ErrNotFound):
		return nil, fmt.Errorf("find symbol %s: %w", key, err)
	}

	baseAsset, err := r.findOrCreateAsset(ctx, "baseAssetName", base)
	if err != nil {
		return nil, err
	}
	quoteAsset, err := r.findOrCreateAsset(ctx, "quoteAssetName", quote)
	if err != nil {
		return nil, err
	}

	s, err := symbol.New(models.SymbolIdentity{Base: *baseAsset, Quote: *quoteAsset}, r.sink, r.signalOpts...)
	if err != nil {
		return nil, err
	}
	s.Start()
	if err := r.Save(ctx, s); err != nil {
		s.Stop()
		return nil, err
	}
	r.insert(s)
	r.log.Info("symbol created", logger.String("symbol", key), logger.String("id", s.ID()))
	return s, nil
}

func (r *Registry) lock(ctx context.Context, key string) (func(), error) {
	lockKey := lockKeyPrefix + key
	backoff := 20 * time.Millisecond
	for {
		ok, err := r.locker.TryLock(ctx, lockKey, r.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("lock symbol %s: %w", key, err)
		}
		if ok {
			return func() {
				if err := r.locker.Unlock(context.Background(), lockKey); err != nil {
					r.log.Warn("failed to release symbol lock", logger.String("symbol", key), logger.Error(err))
				}
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock symbol %s: %w", key, ctx.Err())
		case <-time.After(backoff):
		}
		if backoff < time.Second {
			backoff *= 2
		}
	}
}

func (r *Registry) findOrCreateAsset(ctx context.Context, field, name string) (*models.Asset, error) {
	a, err := r.assets.FindByName(ctx, name)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("find asset %s: %w", name, err)
	}
	if err := models.ValidateAssetName(field, name); err != nil {
		return nil, err
	}
	a = &models.Asset{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()}
	if err := r.assets.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create asset %s: %w", name, err)
	}
	return a, nil
}

func (r *Registry) insert(s *symbol.Signal) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	cur := *r.signals.Load()
	next := make(map[string]*symbol.Signal, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[s.Key()] = s
	r.signals.Store(&next)
	r.recordSize(len(next))
}

func (r *Registry) recordSize(n int) {
	if r.metrics != nil {
		r.metrics.RecordRegistrySize(n)
	}
}

func validatePair(base, quote string) error {
	if err := models.ValidateAssetName("baseAssetName", base); err != nil {
		return err
	}
	if err := models.ValidateAssetName("quoteAssetName", quote); err != nil {
		return err
	}
	if base == quote {
		return &models.ValidationError{Field: "quoteAssetName", Value: quote, Reason: "must differ from the base asset"}
	}
	return nil
}
