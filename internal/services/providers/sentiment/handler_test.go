package sentiment

import (
	"context"
	"math"
	"testing"
	"time"

	"CoinTrend/internal/domain/models"
	"CoinTrend/internal/services/symbol"
	"CoinTrend/pkg/logger"
)

type staticSymbols []*symbol.Signal

func (s staticSymbols) All() []*symbol.Signal { return s }

type applied struct {
	key string
	v   float64
}

type recordingSink struct{ got []applied }

func (r *recordingSink) ProcessExisting(_ string, base, quote string, v float64) (bool, error) {
	r.got = append(r.got, applied{models.SymbolKey(base, quote), v})
	return true, nil
}

func newSignal(t *testing.T, base, quote string) *symbol.Signal {
	t.Helper()
	s, err := symbol.New(models.NewSymbolIdentity(base, quote), nil)
	if err != nil {
		t.Fatalf("symbol.New: %v", err)
	}
	return s
}

func testConfig() Config {
	return Config{
		Topic:  "sentiment",
		MaxAge: time.Hour,
		Assets: AssetsHelper{
			Short:       []string{"BTC", "ETH", "USDT"},
			LongToShort: map[string]string{"bitcoin": "btc", "ETHEREUM": "ETH"},
		},
	}
}

func TestAssetsHelper_Find(t *testing.T) {
	cfg := testConfig()
	h := NewAssetsHelper(cfg.Assets.Short, cfg.Assets.LongToShort)

	cases := []struct {
		text string
		want []string
	}{
		{"BTC to the moon", []string{"BTC"}},
		{"btc lowercase tickers are ignored", nil},
		{"#ETH and #bitcoin!", []string{"ETH", "BTC"}},
		{"Bitcoin, Ethereum and BTC.", []string{"BTC", "ETH"}},
		{"# alone is not a tag", nil},
		{"nothing here", nil},
	}
	for _, tc := range cases {
		got := h.Find(tc.text)
		if len(got) != len(tc.want) {
			t.Errorf("Find(%q) = %v, want %v", tc.text, got, tc.want)
			continue
		}
		for _, w := range tc.want {
			if _, ok := got[w]; !ok {
				t.Errorf("Find(%q) missing %s", tc.text, w)
			}
		}
	}
}

func TestApply_BaseThenQuote(t *testing.T) {
	symbols := staticSymbols{
		newSignal(t, "BTC", "USDT"),
		newSignal(t, "ETH", "BTC"),
		newSignal(t, "ETH", "USDT"),
	}
	sink := &recordingSink{}
	h := NewHandler(testConfig(), symbols, sink, logger.Nop())

	n := h.Apply(0.4, "BTC looks great")
	if n != 2 {
		t.Fatalf("expected 2 symbols touched, got %d", n)
	}
	want := []applied{{"BTC/USDT", 0.4}, {"ETH/BTC", -0.4}}
	for i, w := range want {
		if sink.got[i] != w {
			t.Fatalf("sample %d = %+v, want %+v", i, sink.got[i], w)
		}
	}

	// base takes precedence when both sides are mentioned
	sink.got = nil
	h.Apply(0.2, "ETH vs BTC")
	for _, a := range sink.got {
		if a.key == "ETH/BTC" && a.v != 0.2 {
			t.Fatalf("ETH/BTC got %v, want 0.2", a.v)
		}
	}
}

func TestHandle(t *testing.T) {
	symbols := staticSymbols{newSignal(t, "BTC", "USDT")}
	sink := &recordingSink{}
	h := NewHandler(testConfig(), symbols, sink, logger.Nop())
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	ctx := context.Background()
	if err := h.Handle(ctx, []byte(`{"text":"BTC","score":3}`)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(sink.got) != 1 || sink.got[0].v != 1 {
		t.Fatalf("score should clamp to 1, got %+v", sink.got)
	}

	if err := h.Handle(ctx, []byte(`{"text":"BTC","score":0.5,"createdAt":"2026-01-02T09:00:00Z"}`)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(sink.got) != 1 {
		t.Fatalf("stale message should be skipped")
	}

	if err := h.Handle(ctx, []byte(`{"text":"BTC","score":-0.5,"createdAt":"2026-01-02T11:59:00Z"}`)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(sink.got) != 2 || math.Abs(sink.got[1].v+0.5) > 1e-12 {
		t.Fatalf("unexpected samples %+v", sink.got)
	}

	if err := h.Handle(ctx, []byte(`{not json`)); err == nil {
		t.Fatal("expected decode error")
	}
}
