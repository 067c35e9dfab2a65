// Package market fetches closing prices and price history from the market data provider.
package market

import (
	"context"
	"math"

	"github.com/shopspring/decimal"

	"stockwatch/internal/models"
)

// PriceFetcher returns the last two closes for a batch of symbols in one call.
// Symbols the provider cannot resolve are absent from the result.
type PriceFetcher interface {
	FetchCloses(ctx context.Context, symbols []string) (map[string]models.PriceSnapshot, error)
}

// HistoryProvider returns a close price series for a symbol.
type HistoryProvider interface {
	History(ctx context.Context, symbol, period, interval string) ([]models.PriceBar, error)
}

// Provider is the full market data surface.
type Provider interface {
	PriceFetcher
	HistoryProvider
}

// Change holds day-change figures rounded to two decimals.
type Change struct {
	Last     float64
	Absolute float64
	Percent  float64
}

// ComputeChange derives absolute and percent change from two closes.
// Both closes are rounded to cents first. The percentage is then taken from
// the stored floats, Absolute / (Last - Absolute), so a reader of the stored
// row can reproduce it exactly.
// It returns false when previous rounds to zero or either value is not finite.
func ComputeChange(last, previous float64) (Change, bool) {
	if !finite(last) || !finite(previous) {
		return Change{}, false
	}

	l := decimal.NewFromFloat(last).Round(2)
	p := decimal.NewFromFloat(previous).Round(2)
	if p.IsZero() {
		return Change{}, false
	}

	lastF := round2(l)
	absF := round2(l.Sub(p))
	prevF := lastF - absF

	return Change{
		Last:     lastF,
		Absolute: absF,
		Percent:  Round2(absF / prevF * 100),
	}, true
}

// Round2 rounds a float to two decimals half away from zero.
func Round2(v float64) float64 {
	return round2(decimal.NewFromFloat(v))
}

func round2(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Supported history periods and intervals.
var (
	ValidPeriods   = []string{"1d", "5d", "1mo", "3mo", "6mo", "1y", "2y", "5y", "10y", "ytd", "max"}
	ValidIntervals = []string{"5m", "15m", "30m", "1h", "1d", "5d", "1wk", "1mo"}
)

// IsValidPeriod reports whether period is a supported history range.
func IsValidPeriod(period string) bool {
	return contains(ValidPeriods, period)
}

// IsValidInterval reports whether interval is a supported bar size.
func IsValidInterval(interval string) bool {
	return contains(ValidIntervals, interval)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
