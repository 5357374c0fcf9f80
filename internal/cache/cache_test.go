package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"coinbase-trading-bot/internal/logging"
	"coinbase-trading-bot/internal/portfolio"
)

// unreachableService builds a service whose client points at a port
// nothing listens on, so every call down the wire fails fast
func unreachableService() *Service {
	return &Service{
		client: redis.NewClient(&redis.Options{
			Addr:         "127.0.0.1:1",
			DialTimeout:  50 * time.Millisecond,
			ReadTimeout:  50 * time.Millisecond,
			WriteTimeout: 50 * time.Millisecond,
		}),
		logger: logging.WithComponent("cache"),
	}
}

func TestDisabledWithoutAddress(t *testing.T) {
	s := New("", "", 0)
	ctx := context.Background()

	if s.Enabled() {
		t.Error("service without an address should be disabled")
	}

	if _, ok := s.GetSnapshot(ctx); ok {
		t.Error("snapshot read should miss when disabled")
	}
	if _, ok := s.GetPrice(ctx, "BTC-USD"); ok {
		t.Error("price read should miss when disabled")
	}

	// writes are dropped, not errors
	s.SetSnapshot(ctx, &portfolio.Snapshot{TotalValueUSD: 100})
	s.SetPrice(ctx, "BTC-USD", 50000)

	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestNilServiceIsSafe(t *testing.T) {
	var s *Service

	if s.Enabled() {
		t.Error("nil service should report disabled")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestFailureThresholdDisables(t *testing.T) {
	s := unreachableService()
	defer s.Close()
	errDown := errors.New("connection refused")

	s.recordFailure(errDown)
	s.recordFailure(errDown)
	if !s.Enabled() {
		t.Fatal("disabled before the failure threshold")
	}

	s.recordFailure(errDown)
	if s.Enabled() {
		t.Fatal("three straight failures should disable the cache")
	}

	// while disabled, reads miss and writes are dropped without
	// touching redis
	ctx := context.Background()
	s.SetPrice(ctx, "BTC-USD", 50000)
	if _, ok := s.GetPrice(ctx, "BTC-USD"); ok {
		t.Error("read served while disabled")
	}

	// the retry window expiring re-enables the service
	s.mu.Lock()
	s.disabledTill = time.Now().Add(-time.Second)
	s.mu.Unlock()
	if !s.Enabled() {
		t.Error("should re-enable after the retry interval")
	}
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	s := unreachableService()
	defer s.Close()
	errDown := errors.New("connection refused")

	s.recordFailure(errDown)
	s.recordFailure(errDown)
	s.recordSuccess()
	s.recordFailure(errDown)

	if !s.Enabled() {
		t.Error("a success between failures should reset the streak")
	}
}

func TestUnreachableRedisDegradesGracefully(t *testing.T) {
	s := unreachableService()
	defer s.Close()
	ctx := context.Background()

	// each failed round trip counts toward the threshold; none of
	// them surfaces an error to the caller
	for i := 0; i < failureThreshold; i++ {
		if _, ok := s.GetPrice(ctx, "BTC-USD"); ok {
			t.Fatal("read against dead redis reported a hit")
		}
	}

	if s.Enabled() {
		t.Error("repeated redis failures should disable the cache")
	}
}
