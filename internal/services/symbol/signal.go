// Package symbol ties a decaying probability to a symbol and its users' alert thresholds.
package symbol

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"CoinTrend/internal/domain/models"
	"CoinTrend/internal/services/chance"
)

// EventSink receives every event a signal fires.
type EventSink interface {
	OnEvent(e *models.SymbolEvent)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(e *models.SymbolEvent)

func (f EventSinkFunc) OnEvent(e *models.SymbolEvent) { f(e) }

type settings struct {
	clock            chance.Clock
	decayPeriod      float64
	percentileAmount int
}

// Option configures a Signal.
type Option func(*settings)

func WithClock(c chance.Clock) Option {
	return func(s *settings) { s.clock = c }
}

func WithDecayPeriod(seconds float64) Option {
	return func(s *settings) { s.decayPeriod = seconds }
}

func WithPercentileAmount(n int) Option {
	return func(s *settings) { s.percentileAmount = n }
}

func newSettings(opts []Option) *settings {
	s := &settings{
		clock:            chance.RealClock(),
		decayPeriod:      models.DefaultDecayPeriod,
		percentileAmount: models.DefaultPercentileAmount,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signal is the live state of one symbol.
type Signal struct {
	id        string
	identity  models.SymbolIdentity
	chance    *chance.Chance
	sink      EventSink
	clock     chance.Clock
	createdAt time.Time

	sampleMu sync.Mutex // one writer per symbol
	editMu   sync.Mutex // serializes preference read-modify-save cycles

	prefMu      sync.RWMutex
	preferences map[string]float64

	lifeMu  sync.Mutex
	detach  func()
	stopped atomic.Bool
}

// New builds an unstarted signal for identity with probability 0.
func New(identity models.SymbolIdentity, sink EventSink, opts ...Option) (*Signal, error) {
	st := newSettings(opts)
	c, err := chance.New(
		chance.WithClock(st.clock),
		chance.WithDecayPeriod(st.decayPeriod),
		chance.WithPercentileAmount(st.percentileAmount),
	)
	if err != nil {
		return nil, err
	}
	return &Signal{
		id:          uuid.NewString(),
		identity:    identity,
		chance:      c,
		sink:        sink,
		clock:       st.clock,
		createdAt:   st.clock.Now(),
		preferences: make(map[string]float64),
	}, nil
}

// Hydrate rebuilds an unstarted signal from its persisted document.
func Hydrate(doc *models.SymbolDocument, sink EventSink, opts ...Option) (*Signal, error) {
	st := newSettings(opts)
	decayPeriod := doc.DecayPeriod
	if decayPeriod == 0 {
		decayPeriod = st.decayPeriod
	}
	c, err := chance.New(
		chance.WithClock(st.clock),
		chance.WithDecayPeriod(decayPeriod),
		chance.WithPercentileAmount(st.percentileAmount),
		chance.WithProbability(doc.Probability),
	)
	if err != nil {
		return nil, err
	}
	for _, p := range doc.Preferences {
		if err := checkThreshold(p.Threshold); err != nil {
			return nil, err
		}
	}

	id := doc.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = st.clock.Now()
	}
	return &Signal{
		id:          id,
		identity:    doc.Symbol,
		chance:      c,
		sink:        sink,
		clock:       st.clock,
		createdAt:   createdAt,
		preferences: models.PreferencesToMap(doc.Preferences),
	}, nil
}

func (s *Signal) ID() string                      { return s.id }
func (s *Signal) Identity() models.SymbolIdentity { return s.identity }
func (s *Signal) Key() string                     { return s.identity.Key() }
func (s *Signal) Probability() float64            { return s.chance.Probability() }
func (s *Signal) DecayPeriod() float64            { return s.chance.DecayPeriod() }

// Start arms the decay timer and begins delivering crossings to the sink.
func (s *Signal) Start() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	s.stopped.Store(false)
	if s.detach == nil {
		s.detach = s.chance.OnCross(s.fire)
	}
	s.chance.Start()
}

// Stop cancels the decay timer. A stopped signal never fires again.
func (s *Signal) Stop() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	s.stopped.Store(true)
	s.chance.Stop()
	if s.detach != nil {
		s.detach()
		s.detach = nil
	}
}

// AddProbability feeds one sample. A RangeError leaves the state unchanged.
func (s *Signal) AddProbability(v float64) error {
	s.sampleMu.Lock()
	defer s.sampleMu.Unlock()
	return s.chance.AddSample(v)
}

func (s *Signal) SetDecayPeriod(seconds float64) error {
	return s.chance.SetDecayPeriod(seconds)
}

// SetPreference stores the alert threshold of a user, replacing any previous one.
func (s *Signal) SetPreference(userID string, threshold float64) error {
	if err := checkThreshold(threshold); err != nil {
		return err
	}
	s.prefMu.Lock()
	s.preferences[userID] = threshold
	s.prefMu.Unlock()
	return nil
}

// DeletePreference removes the threshold of a user and reports whether one existed.
func (s *Signal) DeletePreference(userID string) bool {
	s.prefMu.Lock()
	defer s.prefMu.Unlock()
	_, ok := s.preferences[userID]
	delete(s.preferences, userID)
	return ok
}

func (s *Signal) Preference(userID string) (float64, bool) {
	s.prefMu.RLock()
	defer s.prefMu.RUnlock()
	t, ok := s.preferences[userID]
	return t, ok
}

// Preferences returns a copy of every user threshold.
func (s *Signal) Preferences() map[string]float64 {
	s.prefMu.RLock()
	defer s.prefMu.RUnlock()
	out := make(map[string]float64, len(s.preferences))
	for k, v := range s.preferences {
		out[k] = v
	}
	return out
}

// EditPreferences runs fn while holding the preference edit lock, so a change and its save stay paired.
func (s *Signal) EditPreferences(fn func() error) error {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	return fn()
}

// Snapshot returns the persisted form of the signal.
func (s *Signal) Snapshot() *models.SymbolDocument {
	return &models.SymbolDocument{
		ID:          s.id,
		Symbol:      s.identity,
		Probability: s.chance.Probability(),
		DecayPeriod: s.chance.DecayPeriod(),
		Preferences: models.PreferencesFromMap(s.Preferences()),
		CreatedAt:   s.createdAt,
		UpdatedAt:   s.clock.Now(),
	}
}

func (s *Signal) fire(p float64) {
	if s.stopped.Load() || s.sink == nil {
		return
	}
	s.sink.OnEvent(&models.SymbolEvent{
		ID:          uuid.NewString(),
		Probability: p,
		Symbol:      s.identity,
		Preferences: s.Preferences(),
		FiredAt:     s.clock.Now(),
	})
}

func checkThreshold(t float64) error {
	if t < -1 || t > 1 || math.IsNaN(t) {
		return models.NewRangeError("threshold", t, -1, 1)
	}
	return nil
}
