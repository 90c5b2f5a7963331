package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"CoinTrend/internal/services/symbol"
	"CoinTrend/pkg/kafka"
	"CoinTrend/pkg/logger"
	"CoinTrend/pkg/util"
)

const Name = "sentiment"

// SymbolLister lists the live symbols.
type SymbolLister interface {
	All() []*symbol.Signal
}

// SampleSink applies a sample to an already tracked symbol.
type SampleSink interface {
	ProcessExisting(provider, base, quote string, v float64) (bool, error)
}

type Config struct {
	Topic  string        `yaml:"topic" default:"cointrend.sentiment"`
	MaxAge time.Duration `yaml:"max_age" default:"10m"`
	Assets AssetsHelper  `yaml:"assets"`
}

// message is a scored post produced by an upstream sentiment analyzer.
type message struct {
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
	CreatedAt string  `json:"createdAt"`
}

// Handler consumes scored posts and nudges the symbols whose assets they mention.
type Handler struct {
	topic   string
	maxAge  time.Duration
	assets  *AssetsHelper
	symbols SymbolLister
	sink    SampleSink
	log     *logger.Logger
	now     func() time.Time
}

func NewHandler(cfg Config, symbols SymbolLister, sink SampleSink, log *logger.Logger) *Handler {
	return &Handler{
		topic:   cfg.Topic,
		maxAge:  cfg.MaxAge,
		assets:  NewAssetsHelper(cfg.Assets.Short, cfg.Assets.LongToShort),
		symbols: symbols,
		sink:    sink,
		log:     log.With(logger.String("provider", Name)),
		now:     time.Now,
	}
}

func (h *Handler) Name() string  { return Name }
func (h *Handler) Topic() string { return h.topic }

// Handle applies one message. Malformed payloads are returned as errors so the consumer can dead-letter them.
func (h *Handler) Handle(ctx context.Context, b []byte) error {
	var m message
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("decode sentiment message: %w", err)
	}
	if h.maxAge > 0 {
		if at, ok := util.ParseTime(m.CreatedAt); ok && h.now().Sub(at) > h.maxAge {
			h.log.Debug("stale message skipped", logger.String("created_at", m.CreatedAt))
			return nil
		}
	}
	h.Apply(clamp(m.Score), m.Text)
	return nil
}

// Apply adds score to every live symbol whose base asset is mentioned in text,
// and -score to those whose quote asset is mentioned instead.
func (h *Handler) Apply(score float64, text string) int {
	mentioned := h.assets.Find(text)
	if len(mentioned) == 0 {
		return 0
	}
	applied := 0
	for _, s := range h.symbols.All() {
		id := s.Identity()
		var v float64
		if _, ok := mentioned[id.Base.Name]; ok {
			v = score
		} else if _, ok := mentioned[id.Quote.Name]; ok {
			v = -score
		} else {
			continue
		}
		if _, err := h.sink.ProcessExisting(Name, id.Base.Name, id.Quote.Name, v); err != nil {
			h.log.Warn("sample rejected", logger.String("symbol", id.Key()), logger.Error(err))
			continue
		}
		applied++
	}
	return applied
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}

var _ kafka.MessageHandler = (*Handler)(nil)
