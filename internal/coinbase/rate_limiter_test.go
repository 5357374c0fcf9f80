package coinbase

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsWithinBudget(t *testing.T) {
	limiter := NewRateLimiter()

	for i := 0; i < 5; i++ {
		res := limiter.TryAcquire(true, PriorityCritical)
		if !res.Acquired {
			t.Fatalf("request %d denied: %s", i, res.Reason)
		}
	}
}

func TestRateLimiterPriorityTiers(t *testing.T) {
	limiter := NewRateLimiter()

	// low priority gets 40% of 30 = 12 private slots
	granted := 0
	for i := 0; i < 30; i++ {
		if limiter.TryAcquire(true, PriorityLow).Acquired {
			granted++
		}
	}
	if granted != 12 {
		t.Errorf("low priority granted %d slots, want 12", granted)
	}

	// critical still has headroom after low is exhausted
	if !limiter.TryAcquire(true, PriorityCritical).Acquired {
		t.Error("critical request denied while budget remains")
	}
}

func TestRateLimiterPublicBudgetSeparate(t *testing.T) {
	limiter := NewRateLimiter()

	// public critical threshold is 95% of 10 = 9 slots
	granted := 0
	for i := 0; i < 20; i++ {
		if limiter.TryAcquire(false, PriorityCritical).Acquired {
			granted++
		}
	}
	if granted != 9 {
		t.Errorf("public granted %d, want 9", granted)
	}

	// private budget untouched
	if !limiter.TryAcquire(true, PriorityLow).Acquired {
		t.Error("private request denied after public exhaustion")
	}
}

func TestRateLimiterCircuitOnRepeated429(t *testing.T) {
	limiter := NewRateLimiter()

	limiter.RecordRateLimitError()
	if !limiter.IsCircuitOpen() {
		t.Fatal("circuit should open after a 429")
	}

	res := limiter.TryAcquire(true, PriorityCritical)
	if res.Acquired {
		t.Fatal("acquired while circuit open")
	}
	if res.Reason != "circuit_open" {
		t.Errorf("reason = %q", res.Reason)
	}
}

func TestRateLimiterBackoffCapped(t *testing.T) {
	limiter := NewRateLimiter()

	for i := 0; i < 10; i++ {
		limiter.RecordRateLimitError()
	}

	limiter.mu.RLock()
	until := limiter.circuitUntil
	limiter.mu.RUnlock()

	if until.After(time.Now().Add(61 * time.Second)) {
		t.Errorf("backoff exceeds one minute cap: %v", time.Until(until))
	}
}

func TestRateLimiterStatusSnapshot(t *testing.T) {
	limiter := NewRateLimiter()
	limiter.TryAcquire(true, PriorityNormal)
	limiter.TryAcquire(false, PriorityNormal)

	status := limiter.Status()
	if status["private_count"] != 1 {
		t.Errorf("private_count = %v", status["private_count"])
	}
	if status["public_count"] != 1 {
		t.Errorf("public_count = %v", status["public_count"])
	}
	if status["max_private"] != 30 || status["max_public"] != 10 {
		t.Errorf("limits = %v/%v", status["max_private"], status["max_public"])
	}
}
