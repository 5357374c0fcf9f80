package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"coinbase-trading-bot/internal/logging"
	"coinbase-trading-bot/internal/portfolio"
)

const (
	snapshotKey = "portfolio:snapshot"
	tickerKey   = "ticker:"

	snapshotTTL = 30 * time.Second
	tickerTTL   = 5 * time.Second

	// after this many consecutive failures, stop hitting redis for a while
	failureThreshold = 3
	retryInterval    = 30 * time.Second
)

// Service caches hot read paths in redis. Redis being down never fails a
// request: reads miss, writes are dropped, and the service probes again
// after a cooldown.
type Service struct {
	client *redis.Client
	logger *logging.Logger

	mu           sync.Mutex
	failures     int
	disabledTill time.Time
}

// New connects to redis and verifies the connection. Returns a disabled
// service (not an error) when redis is unreachable; caching is an
// optimization, not a dependency.
func New(addr, password string, db int) *Service {
	logger := logging.WithComponent("cache")

	service := &Service{logger: logger}
	if addr == "" {
		logger.Info("Redis not configured, caching disabled")
		return service
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unreachable at startup, will retry on use", "addr", addr, "error", err.Error())
	} else {
		logger.Info("Redis connected", "addr", addr)
	}

	service.client = client
	return service
}

// Enabled reports whether the service currently talks to redis
func (s *Service) Enabled() bool {
	if s == nil || s.client == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Now().After(s.disabledTill)
}

func (s *Service) recordFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures++
	if s.failures >= failureThreshold {
		s.disabledTill = time.Now().Add(retryInterval)
		s.failures = 0
		s.logger.Warn("Redis failing, cache disabled temporarily", "retry_in", retryInterval.String(), "error", err.Error())
	}
}

func (s *Service) recordSuccess() {
	s.mu.Lock()
	s.failures = 0
	s.mu.Unlock()
}

func (s *Service) get(ctx context.Context, key string, out interface{}) bool {
	if !s.Enabled() {
		return false
	}

	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		s.recordSuccess()
		return false
	}
	if err != nil {
		s.recordFailure(err)
		return false
	}

	if err := json.Unmarshal(raw, out); err != nil {
		// corrupt entry, drop it
		s.client.Del(ctx, key)
		return false
	}
	s.recordSuccess()
	return true
}

func (s *Service) set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if !s.Enabled() {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		s.recordFailure(err)
		return
	}
	s.recordSuccess()
}

// GetSnapshot implements portfolio.Cache
func (s *Service) GetSnapshot(ctx context.Context) (*portfolio.Snapshot, bool) {
	var snapshot portfolio.Snapshot
	if !s.get(ctx, snapshotKey, &snapshot) {
		return nil, false
	}
	return &snapshot, true
}

// SetSnapshot implements portfolio.Cache
func (s *Service) SetSnapshot(ctx context.Context, snapshot *portfolio.Snapshot) {
	s.set(ctx, snapshotKey, snapshot, snapshotTTL)
}

// GetPrice returns a cached product price
func (s *Service) GetPrice(ctx context.Context, productID string) (float64, bool) {
	var price float64
	if !s.get(ctx, tickerKey+productID, &price) {
		return 0, false
	}
	return price, true
}

// SetPrice caches a product price for a few seconds
func (s *Service) SetPrice(ctx context.Context, productID string, price float64) {
	s.set(ctx, tickerKey+productID, price, tickerTTL)
}

// Close releases the redis connection
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

var _ portfolio.Cache = (*Service)(nil)
