package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"CoinTrend/internal/domain/models"
	"CoinTrend/internal/repository/memory"
	"CoinTrend/internal/services/chance"
	"CoinTrend/internal/services/symbol"
	"CoinTrend/pkg/logger"
)

type countingSink struct {
	mu sync.Mutex
	n  int
}

func (c *countingSink) OnEvent(*models.SymbolEvent) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *countingSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type fakeLocker struct {
	mu     sync.Mutex
	held   map[string]bool
	tries  int
	unlock int
}

func (l *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tries++
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLocker) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlock++
	delete(l.held, key)
	return nil
}

type fixture struct {
	reg     *Registry
	assets  *memory.AssetRepository
	symbols *memory.SymbolRepository
	sink    *countingSink
	clock   *chance.FakeClock
}

func newFixture(t *testing.T, docs []*models.SymbolDocument, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		assets:  memory.NewAssetRepository(),
		symbols: memory.NewSymbolRepository(docs...),
		sink:    &countingSink{},
		clock:   chance.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	opts = append(opts, WithSignalOptions(symbol.WithClock(f.clock)))
	f.reg = New(f.assets, f.symbols, f.sink, logger.Nop(), opts...)
	t.Cleanup(f.reg.Stop)
	return f
}

func TestGetOrCreate_ReturnsSameSignal(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a, err := f.reg.GetOrCreate(ctx, "BTC", "USDT")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	b, err := f.reg.GetOrCreate(ctx, "BTC", "USDT")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if a != b {
		t.Fatal("second GetOrCreate returned a different signal")
	}
	if f.symbols.Count() != 1 || f.symbols.Saves != 1 {
		t.Fatalf("symbols stored=%d saves=%d, want 1/1", f.symbols.Count(), f.symbols.Saves)
	}
	if f.assets.Creates != 2 {
		t.Fatalf("assets created = %d, want 2", f.assets.Creates)
	}
	if a.Identity().Base.ID == "" || a.Identity().Quote.ID == "" {
		t.Fatal("signal identity carries no asset ids")
	}
	if f.clock.Pending() != 1 {
		t.Fatalf("created signal not started, pending=%d", f.clock.Pending())
	}
}

func TestGetOrCreate_OrderSensitive(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a, err := f.reg.GetOrCreate(ctx, "BTC", "USDT")
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.reg.GetOrCreate(ctx, "USDT", "BTC")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("BTC/USDT and USDT/BTC share a signal")
	}
	if f.reg.Len() != 2 {
		t.Fatalf("Len = %d, want 2", f.reg.Len())
	}
	if f.assets.Creates != 2 {
		t.Fatalf("assets created = %d, want 2 (assets are shared)", f.assets.Creates)
	}
}

func TestGetOrCreate_Concurrent(t *testing.T) {
	f := newFixture(t, nil, WithLocker(&fakeLocker{held: map[string]bool{}}, time.Second))
	ctx := context.Background()

	const n = 32
	results := make([]*symbol.Signal, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := f.reg.GetOrCreate(ctx, "ETH", "BTC")
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			results[i] = s
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("goroutine %d got a different signal", i)
		}
	}
	if f.symbols.Count() != 1 || f.symbols.Saves != 1 {
		t.Fatalf("symbols stored=%d saves=%d, want 1/1", f.symbols.Count(), f.symbols.Saves)
	}
}

func TestGetOrCreate_Validation(t *testing.T) {
	f := newFixture(t, nil)
	cases := []struct{ base, quote string }{
		{"btc", "USDT"},
		{"BTC", ""},
		{"BTC", "BTC"},
		{"BT-C", "USDT"},
	}
	for _, c := range cases {
		_, err := f.reg.GetOrCreate(context.Background(), c.base, c.quote)
		if !models.IsValidationError(err) {
			t.Errorf("GetOrCreate(%q, %q) = %v, want ValidationError", c.base, c.quote, err)
		}
	}
	if f.symbols.Count() != 0 || f.assets.Creates != 0 {
		t.Fatalf("invalid input was persisted: symbols=%d assets=%d", f.symbols.Count(), f.assets.Creates)
	}
}

func TestGetOrCreate_PersistenceErrorPropagates(t *testing.T) {
	f := newFixture(t, nil)
	dbErr := errors.New("db down")
	f.symbols.Err = dbErr

	_, err := f.reg.GetOrCreate(context.Background(), "SOL", "USDT")
	if !errors.Is(err, dbErr) {
		t.Fatalf("GetOrCreate = %v, want wrapped %v", err, dbErr)
	}
	if _, ok := f.reg.Get("SOL", "USDT"); ok {
		t.Fatal("failed creation left a signal in the registry")
	}
	if f.clock.Pending() != 0 {
		t.Fatalf("failed creation left a running timer, pending=%d", f.clock.Pending())
	}
}

func TestGetOrCreate_AdoptsStoredDocument(t *testing.T) {
	doc := &models.SymbolDocument{
		ID:          "sym-1",
		Symbol:      models.NewSymbolIdentity("ETH", "USDT"),
		Probability: 0.4,
		DecayPeriod: 3600,
	}
	f := newFixture(t, []*models.SymbolDocument{doc})

	s, err := f.reg.GetOrCreate(context.Background(), "ETH", "USDT")
	if err != nil {
		t.Fatal(err)
	}
	if s.ID() != "sym-1" || s.Probability() != 0.4 {
		t.Fatalf("got id=%q p=%v, want stored document", s.ID(), s.Probability())
	}
	if f.symbols.Saves != 0 {
		t.Fatalf("stored document was re-saved %d times", f.symbols.Saves)
	}
}

func TestPopulate_SwapsAndStopsOld(t *testing.T) {
	docs := []*models.SymbolDocument{
		{ID: "1", Symbol: models.NewSymbolIdentity("BTC", "USDT"), Probability: 0.2, DecayPeriod: 1000},
		{ID: "2", Symbol: models.NewSymbolIdentity("ETH", "USDT"), Probability: -0.3, DecayPeriod: 1000},
	}
	f := newFixture(t, docs)
	ctx := context.Background()

	if err := f.reg.Populate(ctx); err != nil {
		t.Fatalf("Populate: %v", err)
	}
	if f.reg.Len() != 2 || f.clock.Pending() != 2 {
		t.Fatalf("Len=%d pending=%d, want 2/2", f.reg.Len(), f.clock.Pending())
	}
	old, _ := f.reg.Get("BTC", "USDT")
	if old.Probability() != 0.2 {
		t.Fatalf("hydrated probability = %v, want 0.2", old.Probability())
	}

	if err := f.reg.Populate(ctx); err != nil {
		t.Fatalf("Populate: %v", err)
	}
	if f.clock.Pending() != 2 {
		t.Fatalf("pending = %d after repopulate, old timers leaked", f.clock.Pending())
	}
	cur, _ := f.reg.Get("BTC", "USDT")
	if cur == old {
		t.Fatal("Populate did not replace the signal")
	}

	if err := old.AddProbability(1); err != nil {
		t.Fatal(err)
	}
	if f.sink.count() != 0 {
		t.Fatal("replaced signal still fires events")
	}
	if err := cur.AddProbability(1); err != nil {
		t.Fatal(err)
	}
	if f.sink.count() != 1 {
		t.Fatalf("events = %d, want 1", f.sink.count())
	}
}

func TestPopulate_SkipsBrokenDocuments(t *testing.T) {
	docs := []*models.SymbolDocument{
		{ID: "1", Symbol: models.NewSymbolIdentity("BTC", "USDT"), Probability: 5},
		{ID: "2", Symbol: models.NewSymbolIdentity("ETH", "USDT")},
	}
	f := newFixture(t, docs)
	if err := f.reg.Populate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.reg.Len() != 1 {
		t.Fatalf("Len = %d, want 1", f.reg.Len())
	}
}

func TestSaveAll(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	s, err := f.reg.GetOrCreate(ctx, "BTC", "USDT")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddProbability(0.8); err != nil {
		t.Fatal(err)
	}
	if err := f.reg.SaveAll(ctx); err != nil {
		t.Fatal(err)
	}
	doc, err := f.symbols.FindByKey(ctx, "BTC", "USDT")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Probability != 0.4 {
		t.Fatalf("saved probability = %v, want 0.4", doc.Probability)
	}
}

// gatedSymbols pauses FindAll after loading until release is closed.
type gatedSymbols struct {
	*memory.SymbolRepository
	loaded  chan struct{}
	release chan struct{}
}

func (g *gatedSymbols) FindAll(ctx context.Context) ([]*models.SymbolDocument, error) {
	docs, err := g.SymbolRepository.FindAll(ctx)
	close(g.loaded)
	<-g.release
	return docs, err
}

func TestGetOrCreate_DuringPopulateSurvivesSwap(t *testing.T) {
	symbols := &gatedSymbols{
		SymbolRepository: memory.NewSymbolRepository(),
		loaded:           make(chan struct{}),
		release:          make(chan struct{}),
	}
	sink := &countingSink{}
	clock := chance.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	reg := New(memory.NewAssetRepository(), symbols, sink, logger.Nop(), WithSignalOptions(symbol.WithClock(clock)))
	t.Cleanup(reg.Stop)
	ctx := context.Background()

	populated := make(chan error, 1)
	go func() { populated <- reg.Populate(ctx) }()
	<-symbols.loaded

	type result struct {
		s   *symbol.Signal
		err error
	}
	created := make(chan result, 1)
	go func() {
		s, err := reg.GetOrCreate(ctx, "BTC", "USDT")
		created <- result{s, err}
	}()
	select {
	case <-created:
		t.Fatal("GetOrCreate finished while Populate was loading")
	case <-time.After(50 * time.Millisecond):
	}
	close(symbols.release)

	if err := <-populated; err != nil {
		t.Fatalf("Populate: %v", err)
	}
	res := <-created
	if res.err != nil {
		t.Fatalf("GetOrCreate: %v", res.err)
	}
	if got, ok := reg.Get("BTC", "USDT"); !ok || got != res.s {
		t.Fatal("created signal is not the one in the registry")
	}
	if symbols.Count() != 1 {
		t.Fatalf("persisted = %d, want 1", symbols.Count())
	}
	if err := res.s.AddProbability(1); err != nil {
		t.Fatal(err)
	}
	if sink.count() != 1 {
		t.Fatalf("events = %d, want 1 from the created signal", sink.count())
	}
}

type ctxLocker struct{ fakeLocker }

func (l *ctxLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return l.fakeLocker.TryLock(ctx, key, ttl)
}

func TestGetOrCreate_IgnoresCallerCancellation(t *testing.T) {
	l := &ctxLocker{fakeLocker{held: map[string]bool{}}}
	f := newFixture(t, nil, WithLocker(l, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := f.reg.GetOrCreate(ctx, "ETH", "USDT")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if got, _ := f.reg.Get("ETH", "USDT"); got != s {
		t.Fatal("signal not registered")
	}
}
