package binance

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"CoinTrend/pkg/logger"

	"github.com/gorilla/websocket"
)

type sample struct {
	base, quote string
	v           float64
}

type recordingSink struct {
	mu      sync.Mutex
	samples []sample
	got     chan struct{}
}

func newRecordingSink() *recordingSink { return &recordingSink{got: make(chan struct{}, 16)} }

func (s *recordingSink) Process(_ context.Context, provider, base, quote string, v float64) error {
	s.mu.Lock()
	s.samples = append(s.samples, sample{base, quote, v})
	s.mu.Unlock()
	select {
	case s.got <- struct{}{}:
	default:
	}
	return nil
}

func (s *recordingSink) all() []sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sample(nil), s.samples...)
}

func TestSample(t *testing.T) {
	cases := []struct {
		name        string
		open, close string
		gain        float64
		want        float64
	}{
		{"rise", "100", "101", 10, 0.1},
		{"drop", "100", "98", 10, -0.2},
		{"flat", "42000.50", "42000.50", 50, 0},
		{"clamped up", "10", "20", 50, 1},
		{"clamped down", "10", "1", 50, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Sample(tc.open, tc.close, tc.gain)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSample_Invalid(t *testing.T) {
	for _, tc := range [][2]string{{"abc", "1"}, {"1", ""}, {"0", "1"}, {"-3", "1"}} {
		if _, err := Sample(tc[0], tc[1], 1); err == nil {
			t.Errorf("Sample(%q, %q) should fail", tc[0], tc[1])
		}
	}
}

func TestHandle_OnlyClosedKnownCandles(t *testing.T) {
	sink := newRecordingSink()
	p := New(Config{Pairs: []Pair{{Base: "BTC", Quote: "USDT"}}, Gain: 10, Interval: "1m"}, sink, logger.Nop())

	ctx := context.Background()
	p.handle(ctx, klineEvent{Event: "kline", Symbol: "BTCUSDT", Kline: kline{Open: "100", Close: "101", Closed: false}})
	p.handle(ctx, klineEvent{Event: "kline", Symbol: "ETHUSDT", Kline: kline{Open: "100", Close: "101", Closed: true}})
	p.handle(ctx, klineEvent{Event: "kline", Symbol: "BTCUSDT", Kline: kline{Open: "100", Close: "bad", Closed: true}})
	p.handle(ctx, klineEvent{Event: "kline", Symbol: "BTCUSDT", Kline: kline{Open: "100", Close: "101", Closed: true}})

	got := sink.all()
	if len(got) != 1 {
		t.Fatalf("expected one sample, got %v", got)
	}
	if got[0].base != "BTC" || got[0].quote != "USDT" || math.Abs(got[0].v-0.1) > 1e-9 {
		t.Fatalf("unexpected sample %+v", got[0])
	}
}

func TestHandle_Throttled(t *testing.T) {
	sink := newRecordingSink()
	cfg := Config{Pairs: []Pair{{Base: "BTC", Quote: "USDT"}}, Gain: 1, Interval: "1m", Burst: 2, RefillPerSec: 0}
	p := New(cfg, sink, logger.Nop())

	ev := klineEvent{Event: "kline", Symbol: "BTCUSDT", Kline: kline{Open: "100", Close: "101", Closed: true}}
	for i := 0; i < 5; i++ {
		p.handle(context.Background(), ev)
	}
	if n := len(sink.all()); n != 2 {
		t.Fatalf("expected burst of 2 samples, got %d", n)
	}
}

func TestProvider_ReadsStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	queries := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case queries <- r.URL.Query().Get("streams"):
		default:
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		frames := []string{
			`{"result":null,"id":1}`,
			`{"stream":"btcusdt@kline_1m","data":{"e":"kline","s":"BTCUSDT","k":{"t":1,"i":"1m","o":"100","c":"99","x":true}}}`,
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sink := newRecordingSink()
	cfg := Config{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream",
		Interval:       "1m",
		Pairs:          []Pair{{Base: "BTC", Quote: "USDT"}, {Base: "ETH", Quote: "BTC"}},
		Gain:           10,
		ReconnectDelay: 10 * time.Millisecond,
	}
	p := New(cfg, sink, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Start(ctx) }()

	select {
	case <-sink.got:
	case <-time.After(5 * time.Second):
		t.Fatal("no sample received")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("provider did not stop")
	}

	if gotQuery := <-queries; gotQuery != "btcusdt@kline_1m/ethbtc@kline_1m" {
		t.Fatalf("unexpected streams query %q", gotQuery)
	}
	got := sink.all()[0]
	if got.base != "BTC" || math.Abs(got.v+0.1) > 1e-9 {
		t.Fatalf("unexpected sample %+v", got)
	}
}
