package binance

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type envelope struct {
	Stream string     `json:"stream"`
	Data   klineEvent `json:"data"`
}

type klineEvent struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Kline  kline  `json:"k"`
}

type kline struct {
	Start    int64  `json:"t"`
	Interval string `json:"i"`
	Open     string `json:"o"`
	Close    string `json:"c"`
	Closed   bool   `json:"x"`
}

// Pair is a tracked base/quote combination, e.g. BTC/USDT.
type Pair struct {
	Base  string `yaml:"base" json:"base"`
	Quote string `yaml:"quote" json:"quote"`
}

// Ticker is the exchange symbol for the pair, e.g. BTCUSDT.
func (p Pair) Ticker() string { return strings.ToUpper(p.Base + p.Quote) }

func (p Pair) stream(interval string) string {
	return strings.ToLower(p.Ticker()) + "@kline_" + interval
}

// Sample converts a candle into a probability sample: the relative change scaled by gain and clamped to [-1, 1].
func Sample(open, close string, gain float64) (float64, error) {
	o, err := decimal.NewFromString(open)
	if err != nil {
		return 0, fmt.Errorf("open price %q: %w", open, err)
	}
	c, err := decimal.NewFromString(close)
	if err != nil {
		return 0, fmt.Errorf("close price %q: %w", close, err)
	}
	if !o.IsPositive() {
		return 0, fmt.Errorf("open price must be positive, got %s", open)
	}

	one := decimal.NewFromInt(1)
	v := c.Sub(o).Div(o).Mul(decimal.NewFromFloat(gain))
	switch {
	case v.GreaterThan(one):
		v = one
	case v.LessThan(one.Neg()):
		v = one.Neg()
	}
	f, _ := v.Float64()
	return f, nil
}
