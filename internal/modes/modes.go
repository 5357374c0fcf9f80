package modes

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Mode is a named bundle of trading parameters. Switching modes retunes
// every strategy at once instead of editing each one by hand.
type Mode struct {
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	PositionSizePct float64 `json:"position_size_pct"`
	StopLossPct     float64 `json:"stop_loss_pct"`
	TakeProfitPct   float64 `json:"take_profit_pct"`
	// MinTradeUSD is the smallest order the mode will place
	MinTradeUSD     float64 `json:"min_trade_usd"`
	MaxTradesPerDay int     `json:"max_trades_per_day"`
	// TradeFrequency is the fraction of buy signals acted on; scalping
	// takes every other signal, conservative one in ten
	TradeFrequency      float64 `json:"trade_frequency"`
	RequireConfirmation bool    `json:"require_confirmation"`
}

// Preset mode names
const (
	ModeConservative = "conservative"
	ModeNormal       = "normal"
	ModeAggressive   = "aggressive"
	ModeScalping     = "scalping"
)

// Presets returns the built-in mode definitions
func Presets() map[string]Mode {
	return map[string]Mode{
		ModeConservative: {
			Name:                ModeConservative,
			Description:         "Small positions, tight stops, requires confirmation before entry",
			PositionSizePct:     0.02,
			StopLossPct:         0.015,
			TakeProfitPct:       0.025,
			MinTradeUSD:         0.50,
			MaxTradesPerDay:     3,
			TradeFrequency:      0.1,
			RequireConfirmation: true,
		},
		ModeNormal: {
			Name:            ModeNormal,
			Description:     "Balanced risk and reward, the default operating mode",
			PositionSizePct: 0.03,
			StopLossPct:     0.02,
			TakeProfitPct:   0.04,
			MinTradeUSD:     0.30,
			MaxTradesPerDay: 5,
			TradeFrequency:  0.2,
		},
		ModeAggressive: {
			Name:            ModeAggressive,
			Description:     "Larger positions and wider targets, more trades per day",
			PositionSizePct: 0.05,
			StopLossPct:     0.03,
			TakeProfitPct:   0.06,
			MinTradeUSD:     0.20,
			MaxTradesPerDay: 8,
			TradeFrequency:  0.3,
		},
		ModeScalping: {
			Name:            ModeScalping,
			Description:     "Many tiny trades chasing sub-percent moves",
			PositionSizePct: 0.01,
			StopLossPct:     0.005,
			TakeProfitPct:   0.01,
			MinTradeUSD:     0.25,
			MaxTradesPerDay: 20,
			TradeFrequency:  0.5,
		},
	}
}

// Override adjusts selected fields of a preset from configuration.
// Nil pointers leave the preset value untouched.
type Override struct {
	PositionSizePct *float64 `json:"position_size_pct,omitempty"`
	StopLossPct     *float64 `json:"stop_loss_pct,omitempty"`
	TakeProfitPct   *float64 `json:"take_profit_pct,omitempty"`
	MinTradeUSD     *float64 `json:"min_trade_usd,omitempty"`
	MaxTradesPerDay *int     `json:"max_trades_per_day,omitempty"`
	TradeFrequency  *float64 `json:"trade_frequency,omitempty"`
}

func (o Override) apply(mode Mode) Mode {
	if o.PositionSizePct != nil {
		mode.PositionSizePct = *o.PositionSizePct
	}
	if o.StopLossPct != nil {
		mode.StopLossPct = *o.StopLossPct
	}
	if o.TakeProfitPct != nil {
		mode.TakeProfitPct = *o.TakeProfitPct
	}
	if o.MinTradeUSD != nil {
		mode.MinTradeUSD = *o.MinTradeUSD
	}
	if o.MaxTradesPerDay != nil {
		mode.MaxTradesPerDay = *o.MaxTradesPerDay
	}
	if o.TradeFrequency != nil {
		mode.TradeFrequency = *o.TradeFrequency
	}
	return mode
}

// Manager holds the available modes and which one is active
type Manager struct {
	mu        sync.RWMutex
	modes     map[string]Mode
	active    string
	changedAt time.Time
}

// NewManager builds a manager from the presets plus config overrides.
// Returns an error if the initial mode is unknown.
func NewManager(initial string, overrides map[string]Override) (*Manager, error) {
	available := Presets()
	for name, override := range overrides {
		preset, ok := available[name]
		if !ok {
			return nil, fmt.Errorf("modes: override for unknown mode %q", name)
		}
		available[name] = override.apply(preset)
	}

	initial = strings.ToLower(initial)
	if initial == "" {
		initial = ModeNormal
	}
	if _, ok := available[initial]; !ok {
		return nil, fmt.Errorf("modes: unknown initial mode %q", initial)
	}

	return &Manager{
		modes:     available,
		active:    initial,
		changedAt: time.Now(),
	}, nil
}

// Active returns the currently active mode
func (m *Manager) Active() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.modes[m.active]
}

// ActiveName returns just the active mode's name
func (m *Manager) ActiveName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Set switches the active mode. Returns the previous mode name.
func (m *Manager) Set(name string) (string, error) {
	name = strings.ToLower(name)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.modes[name]; !ok {
		return "", fmt.Errorf("modes: unknown mode %q", name)
	}

	previous := m.active
	m.active = name
	m.changedAt = time.Now()
	return previous, nil
}

// List returns all modes sorted by name
func (m *Manager) List() []Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.modes))
	for name := range m.modes {
		names = append(names, name)
	}
	sort.Strings(names)

	list := make([]Mode, 0, len(names))
	for _, name := range names {
		list = append(list, m.modes[name])
	}
	return list
}

// Status returns the mode manager state for the status endpoint
func (m *Manager) Status() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"active":     m.active,
		"changed_at": m.changedAt.Format(time.RFC3339),
		"available":  len(m.modes),
	}
}
