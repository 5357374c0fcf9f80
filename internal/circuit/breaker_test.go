package circuit

import (
	"math"
	"strings"
	"testing"
	"time"

	"coinbase-trading-bot/internal/events"
)

func newTestBreaker(config Config) *Breaker {
	config.Enabled = true
	return NewBreaker(config, events.NewEventBus())
}

func TestBreakerTripsOnConsecutiveLosses(t *testing.T) {
	b := newTestBreaker(Config{MaxConsecutiveLosses: 3, MaxLossPerHourPct: 100})

	for i := 0; i < 2; i++ {
		b.RecordTrade(-0.1)
	}
	if b.GetState() != StateClosed {
		t.Fatal("tripped too early")
	}

	b.RecordTrade(-0.1)
	if b.GetState() != StateOpen {
		t.Fatal("should trip on third consecutive loss")
	}

	ok, reason := b.CanTrade()
	if ok {
		t.Error("trading allowed while open")
	}
	if !strings.Contains(reason, "cooldown") {
		t.Errorf("reason = %q", reason)
	}
}

func TestBreakerWinResetsStreak(t *testing.T) {
	b := newTestBreaker(Config{MaxConsecutiveLosses: 3, MaxLossPerHourPct: 100})

	b.RecordTrade(-0.1)
	b.RecordTrade(-0.1)
	b.RecordTrade(0.2)
	b.RecordTrade(-0.1)
	b.RecordTrade(-0.1)

	if b.GetState() != StateClosed {
		t.Error("streak should reset on a winning trade")
	}
}

func TestBreakerTripsOnHourlyLoss(t *testing.T) {
	b := newTestBreaker(Config{MaxConsecutiveLosses: 100, MaxLossPerHourPct: 2.0})

	b.RecordTrade(-1.5)
	if b.GetState() != StateClosed {
		t.Fatal("tripped below hourly limit")
	}
	b.RecordTrade(0.1) // win resets streak but loss total stays
	b.RecordTrade(-0.8)
	if b.GetState() != StateOpen {
		t.Error("should trip once hourly loss passes 2%")
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := newTestBreaker(Config{MaxConsecutiveLosses: 2, MaxLossPerHourPct: 100, CooldownMinutes: 30})

	b.RecordTrade(-0.1)
	b.RecordTrade(-0.1)
	if b.GetState() != StateOpen {
		t.Fatal("not tripped")
	}

	// simulate expired cooldown
	b.mu.Lock()
	b.trippedAt = b.trippedAt.Add(-31 * time.Minute)
	b.mu.Unlock()

	ok, _ := b.CanTrade()
	if !ok {
		t.Fatal("should allow a probe trade after cooldown")
	}
	if b.GetState() != StateHalfOpen {
		t.Fatalf("state = %s, want half_open", b.GetState())
	}

	b.RecordTrade(0.3)
	if b.GetState() != StateClosed {
		t.Error("winning probe trade should close the breaker")
	}
}

func TestBreakerTradeRateLimit(t *testing.T) {
	b := newTestBreaker(Config{MaxTradesPerMinute: 3, MaxConsecutiveLosses: 100, MaxLossPerHourPct: 100})

	for i := 0; i < 3; i++ {
		b.RecordTrade(0.01)
	}

	ok, reason := b.CanTrade()
	if ok {
		t.Error("trading allowed past per-minute rate")
	}
	if !strings.Contains(reason, "rate limit") {
		t.Errorf("reason = %q", reason)
	}
}

func TestBreakerTripsOnDailyLoss(t *testing.T) {
	b := newTestBreaker(Config{MaxConsecutiveLosses: 100, MaxLossPerHourPct: 100, MaxDailyLossPct: 4.0})

	b.RecordTrade(-2.0)
	if b.GetState() != StateClosed {
		t.Fatal("tripped below daily limit")
	}

	b.RecordTrade(-2.5)
	if b.GetState() != StateOpen {
		t.Fatal("should trip once daily loss passes 4%")
	}

	reason, _ := b.Status()["trip_reason"].(string)
	if !strings.Contains(reason, "daily loss") {
		t.Errorf("trip reason = %q", reason)
	}
}

func TestBreakerDailyTradeLimit(t *testing.T) {
	b := newTestBreaker(Config{MaxTradesPerMinute: 100, MaxDailyTrades: 5,
		MaxConsecutiveLosses: 100, MaxLossPerHourPct: 100})

	for i := 0; i < 5; i++ {
		b.RecordTrade(0.01)
	}

	ok, reason := b.CanTrade()
	if ok {
		t.Error("trading allowed past daily trade cap")
	}
	if !strings.Contains(reason, "daily trade limit") {
		t.Errorf("reason = %q", reason)
	}

	// counters roll at midnight
	b.mu.Lock()
	b.dayReset = time.Now().Add(-time.Second)
	b.mu.Unlock()

	if ok, _ := b.CanTrade(); !ok {
		t.Error("trading should resume on the next day")
	}
}

func TestBreakerIgnoresInvalidPnL(t *testing.T) {
	b := newTestBreaker(Config{MaxConsecutiveLosses: 1, MaxLossPerHourPct: 100})

	b.RecordTrade(math.NaN())
	b.RecordTrade(math.Inf(-1))
	if b.GetState() != StateClosed {
		t.Error("NaN/Inf trades should not trip the breaker")
	}
}

func TestBreakerForceReset(t *testing.T) {
	b := newTestBreaker(Config{MaxConsecutiveLosses: 1, MaxLossPerHourPct: 100})

	b.RecordTrade(-0.5)
	if b.GetState() != StateOpen {
		t.Fatal("not tripped")
	}

	b.ForceReset()
	if b.GetState() != StateClosed {
		t.Error("force reset should close the breaker")
	}
	if ok, _ := b.CanTrade(); !ok {
		t.Error("trading should be allowed after reset")
	}
}

func TestBreakerDisabled(t *testing.T) {
	b := NewBreaker(Config{Enabled: false}, nil)

	for i := 0; i < 50; i++ {
		b.RecordTrade(-1)
	}
	if ok, _ := b.CanTrade(); !ok {
		t.Error("disabled breaker should always allow trading")
	}
}
