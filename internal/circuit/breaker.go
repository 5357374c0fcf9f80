package circuit

import (
	"fmt"
	"math"
	"sync"
	"time"

	"coinbase-trading-bot/internal/events"
)

// State represents the circuit breaker state
type State string

const (
	StateClosed   State = "closed"    // trading allowed
	StateOpen     State = "open"      // trading halted
	StateHalfOpen State = "half_open" // cooldown expired, one winning trade re-closes
)

// Config holds the circuit breaker thresholds
type Config struct {
	Enabled              bool    `json:"enabled"`
	MaxLossPerHourPct    float64 `json:"max_loss_per_hour_pct"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	CooldownMinutes      int     `json:"cooldown_minutes"`
	MaxTradesPerMinute   int     `json:"max_trades_per_minute"`
	MaxDailyLossPct      float64 `json:"max_daily_loss_pct"`
	MaxDailyTrades       int     `json:"max_daily_trades"`
}

// DefaultConfig returns conservative thresholds
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		MaxLossPerHourPct:    3.0,
		MaxConsecutiveLosses: 5,
		CooldownMinutes:      30,
		MaxTradesPerMinute:   10,
		MaxDailyLossPct:      5.0,
		MaxDailyTrades:       100,
	}
}

// Breaker halts trading after loss streaks or runaway trade rates. It is
// a faster, tactical layer under the risk manager's daily limits: the
// breaker reacts within the hour, the risk manager guards the day.
type Breaker struct {
	mu sync.RWMutex

	config   Config
	eventBus *events.EventBus

	state             State
	consecutiveLosses int
	hourlyLossPct     float64
	tradesLastMinute  int
	dailyLossPct      float64
	tradesToday       int

	hourlyReset time.Time
	minuteReset time.Time
	dayReset    time.Time

	trippedAt  time.Time
	tripReason string
}

// NewBreaker creates a breaker in the closed state
func NewBreaker(config Config, eventBus *events.EventBus) *Breaker {
	if config.MaxLossPerHourPct <= 0 {
		config.MaxLossPerHourPct = DefaultConfig().MaxLossPerHourPct
	}
	if config.MaxConsecutiveLosses <= 0 {
		config.MaxConsecutiveLosses = DefaultConfig().MaxConsecutiveLosses
	}
	if config.CooldownMinutes <= 0 {
		config.CooldownMinutes = DefaultConfig().CooldownMinutes
	}
	if config.MaxTradesPerMinute <= 0 {
		config.MaxTradesPerMinute = DefaultConfig().MaxTradesPerMinute
	}
	if config.MaxDailyLossPct <= 0 {
		config.MaxDailyLossPct = DefaultConfig().MaxDailyLossPct
	}
	if config.MaxDailyTrades <= 0 {
		config.MaxDailyTrades = DefaultConfig().MaxDailyTrades
	}

	now := time.Now()
	return &Breaker{
		config:      config,
		eventBus:    eventBus,
		state:       StateClosed,
		hourlyReset: now.Add(time.Hour),
		minuteReset: now.Add(time.Minute),
		dayReset:    nextMidnight(now),
	}
}

// CanTrade reports whether trading is allowed and, if not, why
func (b *Breaker) CanTrade() (bool, string) {
	if !b.config.Enabled {
		return true, ""
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollWindowsLocked()

	if b.state == StateOpen {
		cooldown := time.Duration(b.config.CooldownMinutes) * time.Minute
		elapsed := time.Since(b.trippedAt)
		if elapsed < cooldown {
			return false, fmt.Sprintf("circuit open, %v of cooldown remaining (%s)",
				(cooldown - elapsed).Round(time.Second), b.tripReason)
		}
		b.state = StateHalfOpen
	}

	if b.tradesLastMinute >= b.config.MaxTradesPerMinute {
		return false, fmt.Sprintf("trade rate limit: %d trades this minute", b.tradesLastMinute)
	}
	if b.tradesToday >= b.config.MaxDailyTrades {
		return false, fmt.Sprintf("daily trade limit: %d trades today", b.tradesToday)
	}

	return true, ""
}

// RecordTrade feeds one closed trade's return into the breaker. NaN and
// infinite values are ignored rather than poisoning the counters.
func (b *Breaker) RecordTrade(pnlPct float64) {
	if !b.config.Enabled || math.IsNaN(pnlPct) || math.IsInf(pnlPct, 0) {
		return
	}

	b.mu.Lock()
	b.rollWindowsLocked()
	b.tradesLastMinute++
	b.tradesToday++

	if pnlPct < 0 {
		b.consecutiveLosses++
		b.hourlyLossPct += -pnlPct
		b.dailyLossPct += -pnlPct
	} else {
		b.consecutiveLosses = 0
		if b.state == StateHalfOpen {
			b.state = StateClosed
			b.tripReason = ""
			b.publishLocked(events.EventCircuitReset, "winning_trade_after_cooldown")
		}
	}

	var reason string
	switch {
	case b.consecutiveLosses >= b.config.MaxConsecutiveLosses:
		reason = fmt.Sprintf("%d consecutive losses", b.consecutiveLosses)
	case b.hourlyLossPct >= b.config.MaxLossPerHourPct:
		reason = fmt.Sprintf("hourly loss %.2f%%", b.hourlyLossPct)
	case b.dailyLossPct >= b.config.MaxDailyLossPct:
		reason = fmt.Sprintf("daily loss %.2f%%", b.dailyLossPct)
	}
	if reason != "" && b.state != StateOpen {
		b.state = StateOpen
		b.trippedAt = time.Now()
		b.tripReason = reason
		b.publishLocked(events.EventCircuitTripped, reason)
	}
	b.mu.Unlock()
}

func (b *Breaker) publishLocked(eventType events.EventType, reason string) {
	if b.eventBus == nil {
		return
	}
	b.eventBus.Publish(eventType, map[string]interface{}{
		"state":              string(b.state),
		"reason":             reason,
		"consecutive_losses": b.consecutiveLosses,
		"hourly_loss_pct":    b.hourlyLossPct,
	})
}

func (b *Breaker) rollWindowsLocked() {
	now := time.Now()
	if now.After(b.minuteReset) {
		b.tradesLastMinute = 0
		b.minuteReset = now.Add(time.Minute)
	}
	if now.After(b.hourlyReset) {
		b.hourlyLossPct = 0
		b.hourlyReset = now.Add(time.Hour)
	}
	if now.After(b.dayReset) {
		b.dailyLossPct = 0
		b.tradesToday = 0
		b.dayReset = nextMidnight(now)
	}
}

func nextMidnight(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location()).Add(24 * time.Hour)
}

// ForceReset closes the breaker immediately, an operator action
func (b *Breaker) ForceReset() {
	b.mu.Lock()
	b.state = StateClosed
	b.consecutiveLosses = 0
	b.hourlyLossPct = 0
	b.dailyLossPct = 0
	b.tripReason = ""
	b.publishLocked(events.EventCircuitReset, "manual_reset")
	b.mu.Unlock()
}

// GetState returns the current state
func (b *Breaker) GetState() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Status returns the breaker state for the diagnostics endpoint
func (b *Breaker) Status() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	status := map[string]interface{}{
		"enabled":            b.config.Enabled,
		"state":              string(b.state),
		"consecutive_losses": b.consecutiveLosses,
		"hourly_loss_pct":    b.hourlyLossPct,
		"trades_last_minute": b.tradesLastMinute,
		"daily_loss_pct":     b.dailyLossPct,
		"trades_today":       b.tradesToday,
	}
	if b.tripReason != "" {
		status["trip_reason"] = b.tripReason
		status["tripped_at"] = b.trippedAt.Format(time.RFC3339)
	}
	return status
}
