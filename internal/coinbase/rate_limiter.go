package coinbase

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// RequestPriority defines priority levels for API requests. Higher priority
// requests get a larger share of the per-second budget, so an order
// placement is never starved by a background portfolio refresh.
type RequestPriority int

const (
	// PriorityCritical - order placement, cancellation, emergency liquidation
	PriorityCritical RequestPriority = iota

	// PriorityHigh - account balances, open order checks
	PriorityHigh

	// PriorityNormal - tickers and candles for active trading
	PriorityNormal

	// PriorityLow - background portfolio refresh, diagnostics
	PriorityLow
)

func (p RequestPriority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// AcquireResult is the outcome of a non-blocking TryAcquire attempt
type AcquireResult struct {
	Acquired bool
	WaitTime time.Duration
	Reason   string
}

// RateLimiter tracks request counts against Coinbase's per-second limits
// (30 req/s for private endpoints, 10 req/s for public ones) and opens a
// circuit after repeated 429 responses.
type RateLimiter struct {
	mu sync.RWMutex

	maxPrivate int
	maxPublic  int

	privateCount int
	publicCount  int
	windowReset  time.Time

	circuitOpen       bool
	circuitUntil      time.Time
	consecutiveErrors int
}

// NewRateLimiter creates a rate limiter with Coinbase's documented limits
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		maxPrivate:  30,
		maxPublic:   10,
		windowReset: time.Now().Add(time.Second),
	}
}

func (r *RateLimiter) thresholdFor(priority RequestPriority) float64 {
	switch priority {
	case PriorityCritical:
		return 0.95
	case PriorityHigh:
		return 0.80
	case PriorityNormal:
		return 0.60
	case PriorityLow:
		return 0.40
	default:
		return 0.50
	}
}

// TryAcquire atomically checks and records one request slot
func (r *RateLimiter) TryAcquire(private bool, priority RequestPriority) AcquireResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.After(r.windowReset) {
		r.privateCount = 0
		r.publicCount = 0
		r.windowReset = now.Add(time.Second)
	}

	if r.circuitOpen {
		if now.Before(r.circuitUntil) {
			return AcquireResult{
				Acquired: false,
				WaitTime: time.Until(r.circuitUntil),
				Reason:   "circuit_open",
			}
		}
		r.circuitOpen = false
		log.Printf("[RATE-LIMITER] Circuit closed, cooldown expired")
	}

	limit := r.maxPublic
	count := &r.publicCount
	if private {
		limit = r.maxPrivate
		count = &r.privateCount
	}

	threshold := int(float64(limit) * r.thresholdFor(priority))
	if *count >= threshold {
		wait := time.Until(r.windowReset)
		if wait < 0 {
			wait = 50 * time.Millisecond
		}
		return AcquireResult{
			Acquired: false,
			WaitTime: wait,
			Reason:   fmt.Sprintf("budget_exhausted_for_%s_priority", priority),
		}
	}

	*count++
	r.consecutiveErrors = 0
	return AcquireResult{Acquired: true}
}

// Wait blocks until a slot is available or the timeout elapses
func (r *RateLimiter) Wait(private bool, priority RequestPriority, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		res := r.TryAcquire(private, priority)
		if res.Acquired {
			return true
		}
		wait := res.WaitTime
		if wait > time.Second {
			wait = time.Second
		}
		time.Sleep(wait)
	}
	return false
}

// RecordRateLimitError opens the circuit with exponential backoff after a
// 429 response. Backoff doubles per consecutive error, capped at a minute.
func (r *RateLimiter) RecordRateLimitError() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.consecutiveErrors++
	backoff := time.Duration(1<<uint(r.consecutiveErrors)) * time.Second
	if backoff > time.Minute {
		backoff = time.Minute
	}

	r.circuitOpen = true
	r.circuitUntil = time.Now().Add(backoff)
	log.Printf("[RATE-LIMITER] Circuit open for %v after %d consecutive 429s", backoff, r.consecutiveErrors)
}

// IsCircuitOpen reports whether requests are currently blocked
func (r *RateLimiter) IsCircuitOpen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.circuitOpen && time.Now().Before(r.circuitUntil)
}

// Status returns a snapshot for the diagnostics endpoint
func (r *RateLimiter) Status() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := map[string]interface{}{
		"circuit_open":       r.circuitOpen,
		"private_count":      r.privateCount,
		"public_count":       r.publicCount,
		"max_private":        r.maxPrivate,
		"max_public":         r.maxPublic,
		"consecutive_errors": r.consecutiveErrors,
	}
	if r.circuitOpen {
		status["circuit_until"] = r.circuitUntil.Format(time.RFC3339)
	}
	return status
}
