// Package cache provides Redis-backed persistence for dedupe state so a
// restart does not replay signals or realized-PnL records already acted
// on. Redis being down degrades to the in-memory bounded sets only.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"bybit-trading-bot/config"
	"bybit-trading-bot/internal/logging"
)

const (
	keyPrefix  = "coordinator:seen:"
	defaultTTL = 48 * time.Hour
	opTimeout  = 2 * time.Second
)

// DedupeStore marks and checks consumed ids in Redis. All methods are
// non-blocking best-effort: a Redis failure flips the store unhealthy
// and every call becomes a no-op until the next successful ping.
type DedupeStore struct {
	client *redis.Client
	logger *logging.Logger
	ttl    time.Duration

	mu      sync.RWMutex
	healthy bool
}

// NewDedupeStore connects to Redis and verifies the connection. Returns
// an error only on misconfiguration; an unreachable Redis yields a
// degraded store, not a startup failure.
func NewDedupeStore(cfg config.RedisConfig, logger *logging.Logger) (*DedupeStore, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address not configured")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
	})

	s := &DedupeStore{
		client: client,
		logger: logger.WithComponent("CACHE"),
		ttl:    defaultTTL,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		s.logger.Warn("redis unreachable, dedupe persistence degraded", "error", err)
		s.healthy = false
	} else {
		s.logger.Info("redis connected", "address", cfg.Address, "db", cfg.DB)
		s.healthy = true
	}

	return s, nil
}

// Healthy reports whether the last Redis operation succeeded
func (s *DedupeStore) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy
}

func (s *DedupeStore) setHealthy(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.healthy && !ok {
		s.logger.Warn("redis degraded")
	}
	if !s.healthy && ok {
		s.logger.Info("redis recovered")
	}
	s.healthy = ok
}

// Seen reports whether the id was previously marked. False on any Redis
// error so a degraded cache never blocks trading.
func (s *DedupeStore) Seen(kind, id string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	n, err := s.client.Exists(ctx, keyPrefix+kind+":"+id).Result()
	if err != nil {
		s.setHealthy(false)
		return false
	}
	s.setHealthy(true)
	return n > 0
}

// Mark records the id with a TTL bounding key growth
func (s *DedupeStore) Mark(kind, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := s.client.Set(ctx, keyPrefix+kind+":"+id, "1", s.ttl).Err(); err != nil {
		s.setHealthy(false)
		return
	}
	s.setHealthy(true)
}

// Close releases the Redis connection pool
func (s *DedupeStore) Close() error {
	return s.client.Close()
}
