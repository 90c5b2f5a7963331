package usecase

import (
	"context"
	"fmt"
	"time"

	drepo "CoinTrend/internal/domain/repository"
)

// SampleProcessor routes provider samples into the symbol signals.
type SampleProcessor struct {
	registry SignalRegistry
	metrics  drepo.Metrics
}

func NewSampleProcessor(registry SignalRegistry, metrics drepo.Metrics) *SampleProcessor {
	return &SampleProcessor{registry: registry, metrics: metrics}
}

// Process applies v to base/quote, creating the symbol on first sight.
func (p *SampleProcessor) Process(ctx context.Context, provider, base, quote string, v float64) error {
	start := time.Now()
	s, err := p.registry.GetOrCreate(ctx, base, quote)
	if err != nil {
		p.metrics.RecordError("sample_symbol")
		return fmt.Errorf("resolve %s/%s: %w", base, quote, err)
	}
	if err := s.AddProbability(v); err != nil {
		p.metrics.RecordRejectedSample(provider)
		return fmt.Errorf("sample for %s: %w", s.Key(), err)
	}
	p.metrics.RecordSample(provider, s.Key())
	p.metrics.RecordLatency("sample", time.Since(start).Seconds())
	return nil
}

// ProcessExisting applies v only when base/quote is already tracked. It reports whether it was.
func (p *SampleProcessor) ProcessExisting(provider, base, quote string, v float64) (bool, error) {
	s, ok := p.registry.Get(base, quote)
	if !ok {
		return false, nil
	}
	if err := s.AddProbability(v); err != nil {
		p.metrics.RecordRejectedSample(provider)
		return true, fmt.Errorf("sample for %s: %w", s.Key(), err)
	}
	p.metrics.RecordSample(provider, s.Key())
	return true, nil
}
