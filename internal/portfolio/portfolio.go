package portfolio

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"coinbase-trading-bot/internal/coinbase"
	"coinbase-trading-bot/internal/events"
	"coinbase-trading-bot/internal/logging"
)

// Holding is one currency position valued in the quote currency
type Holding struct {
	Currency     string  `json:"currency"`
	Amount       float64 `json:"amount"`
	PriceUSD     float64 `json:"price_usd"`
	ValueUSD     float64 `json:"value_usd"`
	AllocPct     float64 `json:"allocation_pct"`
	Change24hPct float64 `json:"change_24h_pct"`
	ProductID    string  `json:"product_id,omitempty"`
}

// Snapshot is a point-in-time portfolio valuation. TotalValueUSD always
// equals the sum of holding values; the builder computes it, never a
// second API call that could disagree.
type Snapshot struct {
	TotalValueUSD float64   `json:"total_value_usd"`
	CashUSD       float64   `json:"cash_usd"`
	Holdings      []Holding `json:"holdings"`
	PricedAt      time.Time `json:"priced_at"`
	Stale         bool      `json:"stale"`
}

// Cache stores snapshots with a TTL; the redis-backed implementation
// lives in internal/cache and degrades to a no-op when redis is down.
type Cache interface {
	GetSnapshot(ctx context.Context) (*Snapshot, bool)
	SetSnapshot(ctx context.Context, snapshot *Snapshot)
}

// Tracker builds and caches portfolio snapshots from exchange accounts
type Tracker struct {
	exchange      coinbase.Exchange
	cache         Cache
	eventBus      *events.EventBus
	logger        *logging.Logger
	quoteCurrency string

	mu   sync.RWMutex
	last *Snapshot
}

// NewTracker creates a tracker. cache and eventBus may be nil.
func NewTracker(exchange coinbase.Exchange, cache Cache, eventBus *events.EventBus, quoteCurrency string) *Tracker {
	if quoteCurrency == "" {
		quoteCurrency = "USD"
	}
	return &Tracker{
		exchange:      exchange,
		cache:         cache,
		eventBus:      eventBus,
		logger:        logging.WithComponent("portfolio"),
		quoteCurrency: quoteCurrency,
	}
}

// Snapshot returns the current portfolio, from cache when fresh,
// otherwise rebuilt from the exchange
func (t *Tracker) Snapshot(ctx context.Context) (*Snapshot, error) {
	if t.cache != nil {
		if cached, ok := t.cache.GetSnapshot(ctx); ok {
			return cached, nil
		}
	}
	return t.Refresh(ctx)
}

// Refresh rebuilds the snapshot from live account and price data
func (t *Tracker) Refresh(ctx context.Context) (*Snapshot, error) {
	accounts, err := t.exchange.ListAccounts(ctx)
	if err != nil {
		// serve the previous snapshot marked stale rather than a zero portfolio
		if last := t.Last(); last != nil {
			stale := *last
			stale.Stale = true
			return &stale, nil
		}
		return nil, fmt.Errorf("portfolio: listing accounts: %w", err)
	}

	snapshot := &Snapshot{PricedAt: time.Now()}

	for _, account := range accounts {
		amount := account.AvailableBalance.Value + account.Hold.Value
		if amount <= 0 {
			continue
		}

		if strings.EqualFold(account.Currency, t.quoteCurrency) {
			snapshot.CashUSD += amount
			continue
		}

		productID := account.Currency + "-" + t.quoteCurrency
		ticker, err := t.exchange.GetTicker(ctx, productID)
		if err != nil {
			t.logger.Warn("Skipping unpriceable holding", "product", productID, "error", err.Error())
			continue
		}

		value := amount * ticker.Price
		if value < 0.01 {
			continue
		}

		var change24h float64
		if product, err := t.exchange.GetProduct(ctx, productID); err == nil {
			change24h = product.PricePercent24h
		}

		snapshot.Holdings = append(snapshot.Holdings, Holding{
			Currency:     account.Currency,
			Amount:       amount,
			PriceUSD:     ticker.Price,
			ValueUSD:     value,
			Change24hPct: change24h,
			ProductID:    productID,
		})
	}

	// total is derived from the parts so the two can never disagree
	snapshot.TotalValueUSD = snapshot.CashUSD
	for _, holding := range snapshot.Holdings {
		snapshot.TotalValueUSD += holding.ValueUSD
	}
	for i := range snapshot.Holdings {
		if snapshot.TotalValueUSD > 0 {
			snapshot.Holdings[i].AllocPct = snapshot.Holdings[i].ValueUSD / snapshot.TotalValueUSD
		}
	}
	sort.Slice(snapshot.Holdings, func(i, j int) bool {
		return snapshot.Holdings[i].ValueUSD > snapshot.Holdings[j].ValueUSD
	})

	t.mu.Lock()
	t.last = snapshot
	t.mu.Unlock()

	if t.cache != nil {
		t.cache.SetSnapshot(ctx, snapshot)
	}
	if t.eventBus != nil {
		t.eventBus.Publish(events.EventPortfolioUpdate, map[string]interface{}{
			"total_value_usd": snapshot.TotalValueUSD,
			"holdings":        len(snapshot.Holdings),
		})
	}
	return snapshot, nil
}

// Last returns the most recent snapshot without touching the exchange
func (t *Tracker) Last() *Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

// Verify checks the snapshot's internal consistency. Used by tests and
// the status endpoint as a sanity light.
func (s *Snapshot) Verify() error {
	sum := s.CashUSD
	for _, holding := range s.Holdings {
		sum += holding.ValueUSD
	}
	if math.Abs(sum-s.TotalValueUSD) > 0.01 {
		return fmt.Errorf("portfolio: total %.2f does not match holdings sum %.2f", s.TotalValueUSD, sum)
	}
	return nil
}
