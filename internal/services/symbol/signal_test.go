package symbol

import (
	"math"
	"sync"
	"testing"
	"time"

	"CoinTrend/internal/domain/models"
	"CoinTrend/internal/services/chance"
)

type recordingSink struct {
	mu     sync.Mutex
	events []*models.SymbolEvent
}

func (r *recordingSink) OnEvent(e *models.SymbolEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingSink) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

var start = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSignal(t *testing.T, opts ...Option) (*Signal, *recordingSink, *chance.FakeClock) {
	t.Helper()
	clock := chance.NewFakeClock(start)
	sink := &recordingSink{}
	s, err := New(models.NewSymbolIdentity("BTC", "USDT"), sink, append([]Option{WithClock(clock)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, sink, clock
}

func TestSignal_FiresEventWithSnapshot(t *testing.T) {
	s, sink, _ := newTestSignal(t)
	s.Start()
	defer s.Stop()

	if err := s.SetPreference("u1", 0.1); err != nil {
		t.Fatal(err)
	}
	if err := s.AddProbability(0.3); err != nil {
		t.Fatal(err)
	}
	if sink.len() != 1 {
		t.Fatalf("events = %d, want 1", sink.len())
	}
	e := sink.events[0]
	if e.ID == "" {
		t.Error("event id is empty")
	}
	if math.Abs(e.Probability-0.15) > 1e-9 {
		t.Errorf("probability = %v, want 0.15", e.Probability)
	}
	if e.Symbol.Key() != "BTC/USDT" {
		t.Errorf("symbol = %q, want %q", e.Symbol.Key(), "BTC/USDT")
	}
	if !e.FiredAt.Equal(start) {
		t.Errorf("firedAt = %v, want %v", e.FiredAt, start)
	}
	if e.Preferences["u1"] != 0.1 {
		t.Errorf("preferences snapshot = %v", e.Preferences)
	}

	// later edits must not leak into the fired event
	if err := s.SetPreference("u2", 0.5); err != nil {
		t.Fatal(err)
	}
	if _, ok := e.Preferences["u2"]; ok {
		t.Error("event preferences share state with the signal")
	}
}

func TestSignal_RejectedSampleLeavesState(t *testing.T) {
	s, sink, _ := newTestSignal(t)
	s.Start()
	defer s.Stop()

	if err := s.AddProbability(1.5); !models.IsRangeError(err) {
		t.Fatalf("AddProbability(1.5) = %v, want RangeError", err)
	}
	if s.Probability() != 0 || sink.len() != 0 {
		t.Fatalf("rejected sample changed state: p=%v events=%d", s.Probability(), sink.len())
	}
}

func TestSignal_StopSilences(t *testing.T) {
	s, sink, clock := newTestSignal(t, WithDecayPeriod(1000))
	s.Start()
	if err := s.AddProbability(0.5); err != nil {
		t.Fatal(err)
	}
	s.Stop()
	before := s.Probability()

	if err := s.AddProbability(1); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Hour)
	if sink.len() != 1 {
		t.Fatalf("events = %d after Stop, want 1", sink.len())
	}
	if clock.Pending() != 0 {
		t.Fatalf("pending timers = %d after Stop", clock.Pending())
	}
	if s.Probability() < before {
		t.Fatalf("stopped signal decayed: %v < %v", s.Probability(), before)
	}
}

func TestSignal_Preferences(t *testing.T) {
	s, _, _ := newTestSignal(t)

	if err := s.SetPreference("u1", 2); !models.IsRangeError(err) {
		t.Fatalf("SetPreference(2) = %v, want RangeError", err)
	}
	if err := s.SetPreference("u1", -0.3); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPreference("u1", 0.4); err != nil {
		t.Fatal(err)
	}
	if got, ok := s.Preference("u1"); !ok || got != 0.4 {
		t.Fatalf("Preference(u1) = %v, %v; want 0.4, true", got, ok)
	}

	copied := s.Preferences()
	copied["u9"] = 1
	if _, ok := s.Preference("u9"); ok {
		t.Fatal("Preferences returned the live map")
	}

	if !s.DeletePreference("u1") {
		t.Fatal("DeletePreference(u1) = false, want true")
	}
	if s.DeletePreference("u1") {
		t.Fatal("second DeletePreference(u1) = true, want false")
	}
}

func TestSignal_SnapshotHydrateRoundTrip(t *testing.T) {
	s, _, clock := newTestSignal(t, WithDecayPeriod(5000))
	if err := s.AddProbability(0.6); err != nil {
		t.Fatal(err)
	}
	_ = s.SetPreference("b", -0.2)
	_ = s.SetPreference("a", 0.7)

	doc := s.Snapshot()
	if doc.Preferences[0].UserID != "a" || doc.Preferences[1].UserID != "b" {
		t.Fatalf("snapshot preferences not ordered: %+v", doc.Preferences)
	}

	h, err := Hydrate(doc, nil, WithClock(clock))
	if err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	if h.ID() != s.ID() {
		t.Errorf("id = %q, want %q", h.ID(), s.ID())
	}
	if h.Probability() != s.Probability() {
		t.Errorf("probability = %v, want %v", h.Probability(), s.Probability())
	}
	if h.DecayPeriod() != 5000 {
		t.Errorf("decay period = %v, want 5000", h.DecayPeriod())
	}
	if got := h.Preferences(); got["a"] != 0.7 || got["b"] != -0.2 || len(got) != 2 {
		t.Errorf("preferences = %v", got)
	}
	if clock.Pending() != 0 {
		t.Errorf("hydrated signal armed a timer")
	}
}

func TestHydrate_RejectsBadDocument(t *testing.T) {
	cases := []*models.SymbolDocument{
		{Symbol: models.NewSymbolIdentity("ETH", "BTC"), Probability: 1.2},
		{Symbol: models.NewSymbolIdentity("ETH", "BTC"), DecayPeriod: 0.2},
		{Symbol: models.NewSymbolIdentity("ETH", "BTC"), Preferences: []models.PreferenceEntry{{UserID: "u", Threshold: -3}}},
	}
	for i, doc := range cases {
		if _, err := Hydrate(doc, nil); !models.IsRangeError(err) {
			t.Errorf("case %d: Hydrate = %v, want RangeError", i, err)
		}
	}
}

func TestSignal_ConcurrentSamples(t *testing.T) {
	s, _, _ := newTestSignal(t)
	s.Start()
	defer s.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := 1.0
			if i%2 == 0 {
				v = -1
			}
			_ = s.AddProbability(v)
		}(i)
	}
	wg.Wait()
	if p := s.Probability(); p < -1 || p > 1 {
		t.Fatalf("probability %v escaped [-1, 1]", p)
	}
}
