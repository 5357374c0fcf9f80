package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"coinbase-trading-bot/internal/coinbase"
	"coinbase-trading-bot/internal/modes"
)

// SignalAction is what a strategy wants done
type SignalAction string

const (
	ActionBuy  SignalAction = "BUY"
	ActionSell SignalAction = "SELL"
	ActionHold SignalAction = "HOLD"
)

// Signal is one strategy decision. Confidence in [0,1] scales position
// sizing; QuoteSizeUSD is the suggested order value before risk checks.
type Signal struct {
	Strategy     string       `json:"strategy"`
	ProductID    string       `json:"product_id"`
	Action       SignalAction `json:"action"`
	Confidence   float64      `json:"confidence"`
	QuoteSizeUSD float64      `json:"quote_size_usd"`
	Reason       string       `json:"reason"`
	GeneratedAt  time.Time    `json:"generated_at"`
}

// Context carries the inputs strategies evaluate against
type Context struct {
	ProductID  string
	Ticker     *coinbase.Ticker
	Candles    []coinbase.Candle
	Mode       modes.Mode
	CapitalUSD float64
}

// Strategy is one trading strategy. Evaluate must be side-effect free;
// acting on signals is the engine's job.
type Strategy interface {
	Name() string
	Description() string
	Evaluate(ctx context.Context, input Context) (*Signal, error)
}

// Registry holds the available strategies and their enabled state
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	enabled    map[string]bool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
		enabled:    make(map[string]bool),
	}
}

// Register adds a strategy, disabled by default
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
	if _, ok := r.enabled[s.Name()]; !ok {
		r.enabled[s.Name()] = false
	}
}

// SetEnabled toggles a strategy. Returns an error for unknown names.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.strategies[name]; !ok {
		return fmt.Errorf("strategy: unknown strategy %q", name)
	}
	r.enabled[name] = enabled
	return nil
}

// Enabled returns the currently enabled strategies, sorted by name
func (r *Registry) Enabled() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var list []Strategy
	for name, s := range r.strategies {
		if r.enabled[name] {
			list = append(list, s)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

// Status lists every strategy with its enabled flag
func (r *Registry) Status() []map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)

	list := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		list = append(list, map[string]interface{}{
			"name":        name,
			"description": r.strategies[name].Description(),
			"enabled":     r.enabled[name],
		})
	}
	return list
}

// sizeForMode computes the order value from capital, mode sizing and
// signal confidence. Sizes under the mode's minimum trade amount (or
// under a dollar, the exchange floor) are not worth placing.
func sizeForMode(capital float64, mode modes.Mode, confidence float64) float64 {
	size := capital * mode.PositionSizePct * confidence
	if size < 1 || size < mode.MinTradeUSD {
		return 0
	}
	return size
}
