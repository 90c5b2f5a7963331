// Package chance implements a bounded, self-decaying probability that signals percentile crossings.
package chance

import (
	"math"
	"sync"
	"time"

	"CoinTrend/internal/domain/models"
)

// DecayStep is how far |probability| moves toward zero on every tick.
const DecayStep = 0.001

// Option configures a Chance.
type Option func(*Chance)

// WithDecayPeriod sets the time, in seconds, for the probability to decay from ±1 to 0.
func WithDecayPeriod(seconds float64) Option {
	return func(c *Chance) { c.decayPeriod = seconds }
}

// WithPercentileAmount sets the number of buckets |probability| is split into.
func WithPercentileAmount(n int) Option {
	return func(c *Chance) { c.percentileAmount = n }
}

// WithProbability sets the initial probability, used when hydrating from storage.
func WithProbability(p float64) Option {
	return func(c *Chance) { c.probability = p }
}

// WithClock overrides the timer source.
func WithClock(clock Clock) Option {
	return func(c *Chance) { c.clock = clock }
}

// Chance is the probability, in [-1, 1], that a symbol's value will rise (positive) or fall (negative).
// Construction has no side effects; Start arms the decay timer.
type Chance struct {
	mu               sync.Mutex
	probability      float64
	decayPeriod      float64
	percentileAmount int
	clock            Clock
	timer            Timer
	gen              uint64
	running          bool

	listenersMu sync.RWMutex
	listeners   map[int]func(float64)
	nextID      int
}

// New validates the options and returns an unstarted Chance.
func New(opts ...Option) (*Chance, error) {
	c := &Chance{
		decayPeriod:      models.DefaultDecayPeriod,
		percentileAmount: models.DefaultPercentileAmount,
		clock:            RealClock(),
		listeners:        make(map[int]func(float64)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.decayPeriod < 1 || math.IsNaN(c.decayPeriod) {
		return nil, models.NewMinError("decayPeriod", c.decayPeriod, 1)
	}
	if c.percentileAmount < 1 {
		return nil, models.NewMinError("percentileAmount", float64(c.percentileAmount), 1)
	}
	if c.probability < -1 || c.probability > 1 || math.IsNaN(c.probability) {
		return nil, models.NewRangeError("probability", c.probability, -1, 1)
	}
	return c, nil
}

// Start (re)arms the recurring decay timer at the current period.
func (c *Chance) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
	c.scheduleLocked()
}

// Stop cancels the decay timer. A stopped Chance keeps its probability.
func (c *Chance) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.cancelLocked()
}

// SetDecayPeriod changes the decay period and reschedules the timer if running.
func (c *Chance) SetDecayPeriod(seconds float64) error {
	if seconds < 1 || math.IsNaN(seconds) {
		return models.NewMinError("decayPeriod", seconds, 1)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decayPeriod = seconds
	if c.running {
		c.scheduleLocked()
	}
	return nil
}

// DecayPeriod returns the decay period in seconds.
func (c *Chance) DecayPeriod() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.decayPeriod
}

// Probability returns the current probability.
func (c *Chance) Probability() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.probability
}

// AddSample blends v into the probability and signals listeners when a new percentile bucket is reached.
// Out of range samples are rejected and leave the state untouched.
func (c *Chance) AddSample(v float64) error {
	if v < -1 || v > 1 || math.IsNaN(v) {
		return models.NewRangeError("probability", v, -1, 1)
	}

	c.mu.Lock()
	old := c.probability
	next := (old + v) / 2
	c.probability = next
	crossed := c.bucket(next) > c.bucket(old)
	c.mu.Unlock()

	if crossed {
		c.emit(next)
	}
	return nil
}

// OnCross registers fn to receive the new probability on every percentile crossing.
// The returned func detaches it.
func (c *Chance) OnCross(fn func(probability float64)) (detach func()) {
	c.listenersMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

func (c *Chance) emit(p float64) {
	c.listenersMu.RLock()
	fns := make([]func(float64), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenersMu.RUnlock()

	for _, fn := range fns {
		fn(p)
	}
}

func (c *Chance) bucket(p float64) int {
	return int(math.Floor(math.Abs(p) * float64(c.percentileAmount)))
}

// interval is decayPeriod milliseconds: DecayStep per tick makes a full ±1 → 0 decay take decayPeriod seconds.
func (c *Chance) interval() time.Duration {
	return time.Duration(c.decayPeriod * float64(time.Millisecond))
}

func (c *Chance) scheduleLocked() {
	c.cancelLocked()
	gen := c.gen
	c.timer = c.clock.AfterFunc(c.interval(), func() { c.tick(gen) })
}

func (c *Chance) cancelLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Chance) tick(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// a callback from a cancelled schedule may still run once
	if gen != c.gen || !c.running {
		return
	}
	c.probability = decay(c.probability)
	c.timer = c.clock.AfterFunc(c.interval(), func() { c.tick(gen) })
}

func decay(p float64) float64 {
	if math.Abs(p) <= DecayStep {
		return 0
	}
	if p > 0 {
		return p - DecayStep
	}
	return p + DecayStep
}
