package chance

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"CoinTrend/internal/domain/models"
)

const eps = 1e-9

func newTestChance(t *testing.T, opts ...Option) (*Chance, *FakeClock) {
	t.Helper()
	clock := NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c, err := New(append([]Option{WithClock(clock)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, clock
}

func recordCrossings(c *Chance) *[]float64 {
	fired := &[]float64{}
	c.OnCross(func(p float64) { *fired = append(*fired, p) })
	return fired
}

func TestNew_NoSideEffects(t *testing.T) {
	c, clock := newTestChance(t)
	if clock.Pending() != 0 {
		t.Fatalf("construction must not arm a timer, pending=%d", clock.Pending())
	}
	if c.Probability() != 0 {
		t.Fatalf("initial probability = %v, want 0", c.Probability())
	}
	if c.DecayPeriod() != models.DefaultDecayPeriod {
		t.Fatalf("decay period = %v, want %v", c.DecayPeriod(), models.DefaultDecayPeriod)
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	cases := []Option{
		WithDecayPeriod(0.5),
		WithPercentileAmount(0),
		WithProbability(1.5),
		WithProbability(math.NaN()),
		WithDecayPeriod(math.NaN()),
	}
	for i, opt := range cases {
		if _, err := New(opt); !models.IsRangeError(err) {
			t.Errorf("case %d: expected RangeError, got %v", i, err)
		}
	}
}

func TestAddSample_Scenario(t *testing.T) {
	c, _ := newTestChance(t)
	fired := recordCrossings(c)

	steps := []struct {
		sample  float64
		want    float64
		crossed bool
	}{
		{0.3, 0.15, true},
		{0.2, 0.175, true},
		{0.0, 0.0875, false},
	}
	for i, s := range steps {
		before := len(*fired)
		if err := c.AddSample(s.sample); err != nil {
			t.Fatalf("step %d: AddSample: %v", i, err)
		}
		if math.Abs(c.Probability()-s.want) > eps {
			t.Fatalf("step %d: probability = %v, want %v", i, c.Probability(), s.want)
		}
		got := len(*fired) > before
		if got != s.crossed {
			t.Fatalf("step %d: crossed = %v, want %v", i, got, s.crossed)
		}
		if got && math.Abs((*fired)[len(*fired)-1]-s.want) > eps {
			t.Fatalf("step %d: fired with %v, want %v", i, (*fired)[len(*fired)-1], s.want)
		}
	}
}

func TestAddSample_RejectsOutOfRange(t *testing.T) {
	c, _ := newTestChance(t)
	if err := c.AddSample(0.5); err != nil {
		t.Fatalf("AddSample: %v", err)
	}
	for _, v := range []float64{-1.0001, 1.0001, 2, -5, math.NaN()} {
		err := c.AddSample(v)
		if !models.IsRangeError(err) {
			t.Errorf("AddSample(%v) = %v, want RangeError", v, err)
		}
		if c.Probability() != 0.25 {
			t.Errorf("AddSample(%v) changed probability to %v", v, c.Probability())
		}
	}
}

func TestAddSample_Bounds(t *testing.T) {
	c, _ := newTestChance(t)
	for _, v := range []float64{1, 1, 1, -1, -1, 1, -1} {
		if err := c.AddSample(v); err != nil {
			t.Fatalf("AddSample(%v): %v", v, err)
		}
	}
	if err := c.AddSample(-1); err != nil {
		t.Fatal(err)
	}
	if c.Probability() < -1 || c.Probability() > 1 {
		t.Fatalf("probability %v escaped [-1, 1]", c.Probability())
	}
}

func TestAddSample_FiresIffBucketIncreases(t *testing.T) {
	const buckets = 100
	c, _ := newTestChance(t, WithPercentileAmount(buckets))
	count := 0
	c.OnCross(func(float64) { count++ })

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		old := c.Probability()
		v := rng.Float64()*2 - 1
		before := count
		if err := c.AddSample(v); err != nil {
			t.Fatalf("AddSample(%v): %v", v, err)
		}
		p := c.Probability()
		if p < -1 || p > 1 {
			t.Fatalf("probability %v escaped [-1, 1]", p)
		}
		if math.Abs(p-(old+v)/2) > eps {
			t.Fatalf("probability = %v, want %v", p, (old+v)/2)
		}
		want := math.Floor(math.Abs(p)*buckets) > math.Floor(math.Abs(old)*buckets)
		fired := count - before
		if fired > 1 {
			t.Fatalf("fired %d times for a single sample", fired)
		}
		if (fired == 1) != want {
			t.Fatalf("sample %d: fired=%d, want crossing=%v (old=%v new=%v)", i, fired, want, old, p)
		}
	}
}

func TestDecay_ReachesZero(t *testing.T) {
	c, clock := newTestChance(t, WithDecayPeriod(1000))
	c.Start()
	if err := c.AddSample(1); err != nil {
		t.Fatal(err)
	}
	if c.Probability() != 0.5 {
		t.Fatalf("probability = %v, want 0.5", c.Probability())
	}

	clock.Advance(499 * time.Second)
	if c.Probability() == 0 {
		t.Fatal("probability decayed to 0 too early")
	}
	clock.Advance(2 * time.Second)
	if c.Probability() != 0 {
		t.Fatalf("probability = %v, want exactly 0", c.Probability())
	}
	clock.Advance(10 * time.Second)
	if c.Probability() != 0 {
		t.Fatalf("probability left 0: %v", c.Probability())
	}
}

func TestDecay_LongPeriod(t *testing.T) {
	c, clock := newTestChance(t, WithDecayPeriod(8000))
	c.Start()
	if err := c.AddSample(1); err != nil {
		t.Fatal(err)
	}
	clock.Advance(3999 * time.Second)
	if c.Probability() == 0 {
		t.Fatal("probability decayed to 0 too early")
	}
	clock.Advance(2 * time.Second)
	if c.Probability() != 0 {
		t.Fatalf("probability = %v, want 0", c.Probability())
	}
}

func TestDecay_MonotonicTowardZero(t *testing.T) {
	c, clock := newTestChance(t, WithDecayPeriod(1000))
	c.Start()
	if err := c.AddSample(-0.8); err != nil {
		t.Fatal(err)
	}
	prev := math.Abs(c.Probability())
	for i := 0; i < 450; i++ {
		clock.Advance(time.Second)
		cur := math.Abs(c.Probability())
		if cur > prev {
			t.Fatalf("tick %d: |p| grew from %v to %v", i, prev, cur)
		}
		prev = cur
	}
	if c.Probability() != 0 {
		t.Fatalf("probability = %v, want 0", c.Probability())
	}
}

func TestSetDecayPeriod(t *testing.T) {
	c, clock := newTestChance(t)
	c.Start()
	if err := c.AddSample(1); err != nil {
		t.Fatal(err)
	}

	if err := c.SetDecayPeriod(0.5); !models.IsRangeError(err) {
		t.Fatalf("SetDecayPeriod(0.5) = %v, want RangeError", err)
	}
	if c.DecayPeriod() != models.DefaultDecayPeriod {
		t.Fatalf("rejected period was applied: %v", c.DecayPeriod())
	}

	if err := c.SetDecayPeriod(10); err != nil {
		t.Fatalf("SetDecayPeriod(10): %v", err)
	}
	if clock.Pending() != 1 {
		t.Fatalf("pending timers = %d, want 1", clock.Pending())
	}
	clock.Advance(9 * time.Millisecond)
	if c.Probability() != 0.5 {
		t.Fatalf("ticked before the new period: %v", c.Probability())
	}
	clock.Advance(time.Millisecond)
	if math.Abs(c.Probability()-0.499) > eps {
		t.Fatalf("probability = %v, want 0.499", c.Probability())
	}
}

func TestStop_CancelsDecay(t *testing.T) {
	c, clock := newTestChance(t, WithDecayPeriod(1000))
	c.Start()
	if err := c.AddSample(1); err != nil {
		t.Fatal(err)
	}
	c.Stop()
	if clock.Pending() != 0 {
		t.Fatalf("pending timers = %d after Stop", clock.Pending())
	}
	clock.Advance(time.Hour)
	if c.Probability() != 0.5 {
		t.Fatalf("stopped chance decayed to %v", c.Probability())
	}
}

func TestOnCross_Detach(t *testing.T) {
	c, _ := newTestChance(t)
	fired := 0
	detach := c.OnCross(func(float64) { fired++ })
	if err := c.AddSample(0.5); err != nil {
		t.Fatal(err)
	}
	detach()
	if err := c.AddSample(1); err != nil {
		t.Fatal(err)
	}
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
}
