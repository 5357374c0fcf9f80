package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DCA buys a fixed amount on a fixed interval regardless of price, with
// an optional dip bonus that increases the buy when price is well below
// the recent average.
type DCA struct {
	interval   time.Duration
	baseAmount float64
	dipPct     float64

	mu      sync.Mutex
	lastBuy map[string]time.Time
}

// NewDCA creates a dollar cost averaging strategy. baseAmount is the USD
// per buy; interval is the spacing between buys per product.
func NewDCA(baseAmount float64, interval time.Duration) *DCA {
	if baseAmount <= 0 {
		baseAmount = 10
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &DCA{
		interval:   interval,
		baseAmount: baseAmount,
		dipPct:     0.03,
		lastBuy:    make(map[string]time.Time),
	}
}

func (d *DCA) Name() string { return "dca" }

func (d *DCA) Description() string {
	return "Dollar cost averaging with dip-sized buys"
}

func (d *DCA) Evaluate(_ context.Context, input Context) (*Signal, error) {
	d.mu.Lock()
	last, seen := d.lastBuy[input.ProductID]
	due := !seen || time.Since(last) >= d.interval
	d.mu.Unlock()

	if !due {
		return &Signal{
			Strategy:    d.Name(),
			ProductID:   input.ProductID,
			Action:      ActionHold,
			Reason:      "interval not elapsed",
			GeneratedAt: time.Now(),
		}, nil
	}

	amount := d.baseAmount
	confidence := 0.5
	reason := "scheduled buy"

	// buy more when price sits below the recent average
	if len(input.Candles) >= 24 && input.Ticker != nil {
		closes := make([]float64, 24)
		for i, candle := range input.Candles[len(input.Candles)-24:] {
			closes[i] = candle.Close
		}
		avg := average(closes)
		if avg > 0 && input.Ticker.Price < avg*(1-d.dipPct) {
			amount *= 1.5
			confidence = 0.8
			reason = fmt.Sprintf("dip buy: price %.2f below 24-candle average %.2f", input.Ticker.Price, avg)
		}
	}

	d.mu.Lock()
	d.lastBuy[input.ProductID] = time.Now()
	d.mu.Unlock()

	return &Signal{
		Strategy:     d.Name(),
		ProductID:    input.ProductID,
		Action:       ActionBuy,
		Confidence:   confidence,
		QuoteSizeUSD: amount,
		Reason:       reason,
		GeneratedAt:  time.Now(),
	}, nil
}
