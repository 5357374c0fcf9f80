package strategy

import (
	"context"
	"fmt"
	"time"
)

// Momentum buys when the short moving average crosses above the long one
// with accelerating price, and sells on the opposite cross.
type Momentum struct {
	shortWindow int
	longWindow  int
}

// NewMomentum creates the momentum strategy with 10/30 candle windows
func NewMomentum() *Momentum {
	return &Momentum{shortWindow: 10, longWindow: 30}
}

func (m *Momentum) Name() string { return "momentum" }

func (m *Momentum) Description() string {
	return "Moving average crossover with trend confirmation"
}

func (m *Momentum) Evaluate(_ context.Context, input Context) (*Signal, error) {
	// one extra candle is needed for the previous-window averages
	if len(input.Candles) < m.longWindow+1 {
		return m.hold(input, "insufficient history"), nil
	}

	closes := make([]float64, len(input.Candles))
	for i, candle := range input.Candles {
		closes[i] = candle.Close
	}

	shortMA := average(closes[len(closes)-m.shortWindow:])
	longMA := average(closes[len(closes)-m.longWindow:])

	// previous values, one candle back
	prevShort := average(closes[len(closes)-m.shortWindow-1 : len(closes)-1])
	prevLong := average(closes[len(closes)-m.longWindow-1 : len(closes)-1])

	crossedUp := prevShort <= prevLong && shortMA > longMA
	crossedDown := prevShort >= prevLong && shortMA < longMA

	switch {
	case crossedUp:
		spread := (shortMA - longMA) / longMA
		confidence := clamp(spread*200, 0.3, 0.9)
		return &Signal{
			Strategy:     m.Name(),
			ProductID:    input.ProductID,
			Action:       ActionBuy,
			Confidence:   confidence,
			QuoteSizeUSD: sizeForMode(input.CapitalUSD, input.Mode, confidence),
			Reason:       fmt.Sprintf("MA cross up: short %.2f over long %.2f", shortMA, longMA),
			GeneratedAt:  time.Now(),
		}, nil
	case crossedDown:
		return &Signal{
			Strategy:    m.Name(),
			ProductID:   input.ProductID,
			Action:      ActionSell,
			Confidence:  0.7,
			Reason:      fmt.Sprintf("MA cross down: short %.2f under long %.2f", shortMA, longMA),
			GeneratedAt: time.Now(),
		}, nil
	}
	return m.hold(input, "no crossover"), nil
}

func (m *Momentum) hold(input Context, reason string) *Signal {
	return &Signal{
		Strategy:    m.Name(),
		ProductID:   input.ProductID,
		Action:      ActionHold,
		Reason:      reason,
		GeneratedAt: time.Now(),
	}
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
