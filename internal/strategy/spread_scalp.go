package strategy

import (
	"context"
	"fmt"
	"time"
)

// SpreadScalp looks for products whose bid/ask spread exceeds the round
// trip fee cost, and buys expecting to flip inside the spread. Only
// sensible in scalping mode with tight stops.
type SpreadScalp struct {
	feeRate float64
}

// NewSpreadScalp creates the scalper assuming taker fees on both legs
func NewSpreadScalp(feeRate float64) *SpreadScalp {
	if feeRate <= 0 {
		feeRate = 0.006
	}
	return &SpreadScalp{feeRate: feeRate}
}

func (s *SpreadScalp) Name() string { return "spread_scalp" }

func (s *SpreadScalp) Description() string {
	return "Scalps wide bid/ask spreads net of fees"
}

func (s *SpreadScalp) Evaluate(_ context.Context, input Context) (*Signal, error) {
	hold := func(reason string) *Signal {
		return &Signal{
			Strategy:    s.Name(),
			ProductID:   input.ProductID,
			Action:      ActionHold,
			Reason:      reason,
			GeneratedAt: time.Now(),
		}
	}

	ticker := input.Ticker
	if ticker == nil || ticker.BestBid <= 0 || ticker.BestAsk <= ticker.BestBid {
		return hold("no usable spread"), nil
	}

	spreadPct := (ticker.BestAsk - ticker.BestBid) / ticker.BestBid
	roundTripFees := 2 * s.feeRate

	size := sizeForMode(input.CapitalUSD, input.Mode, 1)
	if size == 0 {
		return hold("position size below minimum"), nil
	}

	grossProfit := size * (spreadPct - roundTripFees)
	if grossProfit <= 0 {
		return hold(fmt.Sprintf("spread %.3f%% does not clear %.3f%% round trip fees",
			spreadPct*100, roundTripFees*100)), nil
	}

	confidence := clamp(spreadPct/(roundTripFees*3), 0.4, 0.85)
	return &Signal{
		Strategy:     s.Name(),
		ProductID:    input.ProductID,
		Action:       ActionBuy,
		Confidence:   confidence,
		QuoteSizeUSD: size * confidence,
		Reason:       fmt.Sprintf("spread %.3f%% clears fees with $%.2f expected", spreadPct*100, grossProfit),
		GeneratedAt:  time.Now(),
	}, nil
}
