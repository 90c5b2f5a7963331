package binance

import (
	"context"
	"time"

	"CoinTrend/internal/service/ratelimit"
	"CoinTrend/pkg/logger"
)

const Name = "binance"

// SampleSink receives samples for a base/quote pair.
type SampleSink interface {
	Process(ctx context.Context, provider, base, quote string, v float64) error
}

type Config struct {
	URL            string        `yaml:"url" default:"wss://stream.binance.com:9443/stream"`
	Interval       string        `yaml:"interval" default:"1m"`
	Pairs          []Pair        `yaml:"pairs"`
	Gain           float64       `yaml:"gain" default:"50" validate:"gt=0"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"20s"`
	// per-symbol token bucket; zero burst disables throttling
	Burst        float64 `yaml:"burst" default:"5"`
	RefillPerSec float64 `yaml:"refill_per_sec" default:"0.2"`
}

// Provider turns closed candles from the Binance kline stream into samples.
type Provider struct {
	cfg     Config
	sink    SampleSink
	limiter *ratelimit.Limiter
	log     *logger.Logger
	pairs   map[string]Pair
	stream  *Stream
}

func New(cfg Config, sink SampleSink, log *logger.Logger) *Provider {
	pairs := make(map[string]Pair, len(cfg.Pairs))
	streams := make([]string, 0, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		pairs[p.Ticker()] = p
		streams = append(streams, p.stream(cfg.Interval))
	}
	return &Provider{
		cfg:     cfg,
		sink:    sink,
		limiter: ratelimit.New(cfg.Burst, cfg.RefillPerSec),
		log:     log.With(logger.String("provider", Name)),
		pairs:   pairs,
		stream:  NewStream(cfg.URL, streams, cfg.PingInterval, log),
	}
}

func (p *Provider) Name() string { return Name }

// Start consumes the stream until ctx is cancelled, reconnecting after failures.
func (p *Provider) Start(ctx context.Context) error {
	if len(p.pairs) == 0 {
		p.log.Warn("no pairs configured, provider idle")
		<-ctx.Done()
		return nil
	}
	for {
		if err := p.consume(ctx); err != nil && ctx.Err() == nil {
			p.log.Warn("stream disconnected, retrying", logger.Error(err), logger.Duration("delay", p.cfg.ReconnectDelay))
		}
		_ = p.stream.Close()
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.cfg.ReconnectDelay):
		}
	}
}

func (p *Provider) consume(ctx context.Context) error {
	if err := p.stream.Connect(ctx); err != nil {
		return err
	}
	events, errs := p.stream.Read(ctx)
	for ev := range events {
		p.handle(ctx, ev)
	}
	return <-errs
}

func (p *Provider) handle(ctx context.Context, ev klineEvent) {
	if !ev.Kline.Closed {
		return
	}
	pair, ok := p.pairs[ev.Symbol]
	if !ok {
		return
	}
	key := pair.Base + "/" + pair.Quote
	if !p.limiter.Allow(key) {
		p.log.Debug("sample throttled", logger.String("symbol", key))
		return
	}
	v, err := Sample(ev.Kline.Open, ev.Kline.Close, p.cfg.Gain)
	if err != nil {
		p.log.Warn("bad candle", logger.String("symbol", key), logger.Error(err))
		return
	}
	if err := p.sink.Process(ctx, Name, pair.Base, pair.Quote, v); err != nil {
		p.log.Warn("sample rejected", logger.String("symbol", key), logger.Error(err))
	}
}
