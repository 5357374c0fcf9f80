package risk

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Limits are the hard risk limits the manager enforces. Zero values are
// replaced with defaults by NewManager.
type Limits struct {
	MaxPositionSizePct float64 `json:"max_position_size_pct"`
	MaxDailyLossPct    float64 `json:"max_daily_loss_pct"`
	MaxDrawdownPct     float64 `json:"max_drawdown_pct"`
	MaxCorrelation     float64 `json:"max_correlation"`
	MaxTradesPerDay    int     `json:"max_trades_per_day"`
	StopLossPct        float64 `json:"stop_loss_pct"`
	TakeProfitPct      float64 `json:"take_profit_pct"`
}

// DefaultLimits returns the standard limit set
func DefaultLimits() Limits {
	return Limits{
		MaxPositionSizePct: 0.10,
		MaxDailyLossPct:    0.05,
		MaxDrawdownPct:     0.15,
		MaxCorrelation:     0.7,
		MaxTradesPerDay:    1000,
		StopLossPct:        0.02,
		TakeProfitPct:      0.05,
	}
}

// TradeRecord is one closed trade's outcome as the risk manager sees it
type TradeRecord struct {
	Symbol     string    `json:"symbol"`
	ProfitLoss float64   `json:"profit_loss"`
	ReturnPct  float64   `json:"return_pct"`
	ClosedAt   time.Time `json:"closed_at"`
}

// ValidationResult is the outcome of a pre-trade check. When Approved is
// false, Reason names the violated limit; there is no silent approval path.
type ValidationResult struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// Metrics is a snapshot of the portfolio risk state
type Metrics struct {
	DailyPnL       float64   `json:"daily_pnl"`
	DailyLossPct   float64   `json:"daily_loss_pct"`
	TradesToday    int       `json:"trades_today"`
	CurrentValue   float64   `json:"current_value"`
	PeakValue      float64   `json:"peak_value"`
	DrawdownPct    float64   `json:"drawdown_pct"`
	VaR95          float64   `json:"var_95"`
	SharpeRatio    float64   `json:"sharpe_ratio"`
	WinRate        float64   `json:"win_rate"`
	TotalTrades    int       `json:"total_trades"`
	EmergencyState bool      `json:"emergency_stop"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Manager enforces risk limits and computes portfolio risk metrics.
// All methods are safe for concurrent use.
type Manager struct {
	mu sync.RWMutex

	limits Limits

	portfolioValue float64
	peakValue      float64

	dailyPnL    float64
	tradesToday int
	dayStart    time.Time

	history []TradeRecord

	emergencyStopped bool
	emergencyReason  string
	emergencyAt      time.Time
}

// NewManager creates a risk manager with the given limits and starting
// portfolio value
func NewManager(limits Limits, initialValue float64) *Manager {
	defaults := DefaultLimits()
	if limits.MaxPositionSizePct <= 0 {
		limits.MaxPositionSizePct = defaults.MaxPositionSizePct
	}
	if limits.MaxDailyLossPct <= 0 {
		limits.MaxDailyLossPct = defaults.MaxDailyLossPct
	}
	if limits.MaxDrawdownPct <= 0 {
		limits.MaxDrawdownPct = defaults.MaxDrawdownPct
	}
	if limits.MaxCorrelation <= 0 {
		limits.MaxCorrelation = defaults.MaxCorrelation
	}
	if limits.MaxTradesPerDay <= 0 {
		limits.MaxTradesPerDay = defaults.MaxTradesPerDay
	}
	if limits.StopLossPct <= 0 {
		limits.StopLossPct = defaults.StopLossPct
	}
	if limits.TakeProfitPct <= 0 {
		limits.TakeProfitPct = defaults.TakeProfitPct
	}

	return &Manager{
		limits:         limits,
		portfolioValue: initialValue,
		peakValue:      initialValue,
		dayStart:       startOfDay(time.Now()),
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// rollDayLocked resets daily counters when the calendar day changes.
// Callers must hold mu.
func (m *Manager) rollDayLocked() {
	today := startOfDay(time.Now())
	if today.After(m.dayStart) {
		m.dayStart = today
		m.dailyPnL = 0
		m.tradesToday = 0
	}
}

// Limits returns a copy of the active limits
func (m *Manager) Limits() Limits {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limits
}

// ValidateTrade checks a proposed trade against every limit. A rejected
// trade gets the first violated limit as the reason.
func (m *Manager) ValidateTrade(symbol string, tradeValueUSD float64) ValidationResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked()

	if m.emergencyStopped {
		return ValidationResult{Reason: fmt.Sprintf("emergency stop active: %s", m.emergencyReason)}
	}
	if tradeValueUSD <= 0 {
		return ValidationResult{Reason: "trade value must be positive"}
	}
	if m.portfolioValue <= 0 {
		return ValidationResult{Reason: "portfolio value unknown"}
	}

	positionPct := tradeValueUSD / m.portfolioValue
	if positionPct > m.limits.MaxPositionSizePct {
		return ValidationResult{Reason: fmt.Sprintf(
			"position %.1f%% of portfolio exceeds limit %.1f%%",
			positionPct*100, m.limits.MaxPositionSizePct*100)}
	}

	if m.tradesToday >= m.limits.MaxTradesPerDay {
		return ValidationResult{Reason: fmt.Sprintf("daily trade limit %d reached", m.limits.MaxTradesPerDay)}
	}

	if m.dailyPnL < 0 && -m.dailyPnL/m.portfolioValue >= m.limits.MaxDailyLossPct {
		return ValidationResult{Reason: fmt.Sprintf(
			"daily loss %.2f%% at limit %.1f%%",
			-m.dailyPnL/m.portfolioValue*100, m.limits.MaxDailyLossPct*100)}
	}

	if drawdown := m.drawdownLocked(); drawdown >= m.limits.MaxDrawdownPct {
		return ValidationResult{Reason: fmt.Sprintf(
			"drawdown %.2f%% at limit %.1f%%",
			drawdown*100, m.limits.MaxDrawdownPct*100)}
	}

	return ValidationResult{Approved: true}
}

// RecordTrade registers a closed trade's outcome
func (m *Manager) RecordTrade(record TradeRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked()

	if record.ClosedAt.IsZero() {
		record.ClosedAt = time.Now()
	}

	m.history = append(m.history, record)
	m.dailyPnL += record.ProfitLoss
	m.tradesToday++
}

// UpdatePortfolioValue feeds the latest portfolio valuation in; peak
// tracking drives the drawdown limit
func (m *Manager) UpdatePortfolioValue(value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.portfolioValue = value
	if value > m.peakValue {
		m.peakValue = value
	}
}

func (m *Manager) drawdownLocked() float64 {
	if m.peakValue <= 0 {
		return 0
	}
	return (m.peakValue - m.portfolioValue) / m.peakValue
}

// CalculateVaR returns the 95% one-trade value at risk in USD, computed
// as the historical quantile over the last 30 trades. Returns 0 until
// enough history exists.
func (m *Manager) CalculateVaR() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.varLocked()
}

func (m *Manager) varLocked() float64 {
	window := m.history
	if len(window) > 30 {
		window = window[len(window)-30:]
	}
	if len(window) < 5 {
		return 0
	}

	losses := make([]float64, len(window))
	for i, record := range window {
		losses[i] = record.ProfitLoss
	}
	sort.Float64s(losses)

	// worst observation inside the 5% tail, so 20 trades look at the
	// single worst outcome rather than the second-worst
	idx := int(math.Ceil(0.05*float64(len(losses)))) - 1
	if idx < 0 {
		idx = 0
	}
	var95 := losses[idx]
	if var95 >= 0 {
		return 0
	}
	return -var95
}

// CalculateSharpeRatio returns the annualized Sharpe ratio over the last
// 252 trade returns. Returns 0 until enough history exists or when the
// returns have no variance.
func (m *Manager) CalculateSharpeRatio() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sharpeLocked()
}

func (m *Manager) sharpeLocked() float64 {
	window := m.history
	if len(window) > 252 {
		window = window[len(window)-252:]
	}
	if len(window) < 10 {
		return 0
	}

	var sum float64
	for _, record := range window {
		sum += record.ReturnPct
	}
	mean := sum / float64(len(window))

	var variance float64
	for _, record := range window {
		diff := record.ReturnPct - mean
		variance += diff * diff
	}
	variance /= float64(len(window) - 1)

	stddev := math.Sqrt(variance)
	if stddev == 0 {
		return 0
	}
	return mean / stddev * math.Sqrt(252)
}

// GetMetrics builds a full risk snapshot
func (m *Manager) GetMetrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked()

	wins := 0
	for _, record := range m.history {
		if record.ProfitLoss > 0 {
			wins++
		}
	}
	winRate := 0.0
	if len(m.history) > 0 {
		winRate = float64(wins) / float64(len(m.history))
	}

	dailyLossPct := 0.0
	if m.dailyPnL < 0 && m.portfolioValue > 0 {
		dailyLossPct = -m.dailyPnL / m.portfolioValue
	}

	return Metrics{
		DailyPnL:       m.dailyPnL,
		DailyLossPct:   dailyLossPct,
		TradesToday:    m.tradesToday,
		CurrentValue:   m.portfolioValue,
		PeakValue:      m.peakValue,
		DrawdownPct:    m.drawdownLocked(),
		VaR95:          m.varLocked(),
		SharpeRatio:    m.sharpeLocked(),
		WinRate:        winRate,
		TotalTrades:    len(m.history),
		EmergencyState: m.emergencyStopped,
		UpdatedAt:      time.Now(),
	}
}

// TriggerEmergencyStop marks the manager stopped; all subsequent trade
// validations fail until ResetEmergencyStop
func (m *Manager) TriggerEmergencyStop(reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.emergencyStopped {
		return false
	}
	m.emergencyStopped = true
	m.emergencyReason = reason
	m.emergencyAt = time.Now()
	return true
}

// ResetEmergencyStop clears the emergency state. A deliberate operator
// action, never automatic.
func (m *Manager) ResetEmergencyStop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.emergencyStopped = false
	m.emergencyReason = ""
}

// IsEmergencyStopped reports the emergency state and its reason
func (m *Manager) IsEmergencyStopped() (bool, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.emergencyStopped, m.emergencyReason
}
