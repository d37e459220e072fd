// Package cache stores search results in Redis, keyed by the index they
// were computed against and the normalized query plan.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "docsearch:search:"

// Store is the subset of the Redis client the cache needs. Get returns an
// error matching pkgredis.ErrMiss for absent keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// Option configures a QueryCache.
type Option func(*QueryCache)

// WithBreaker replaces the default circuit breaker guarding the store.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *QueryCache) { c.breaker = cb }
}

// WithMetrics records hits and misses on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *QueryCache) { c.metrics = m }
}

func New(store Store, ttl time.Duration, opts ...Option) *QueryCache {
	c := &QueryCache{
		store:  store,
		ttl:    ttl,
		logger: slog.Default().With("component", "query-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     10 * time.Second,
			IsFailure:        func(err error) bool { return !pkgredis.IsMiss(err) },
		})
	}
	return c
}

// Stats is a snapshot of the cache counters.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Total   int64   `json:"total"`
	HitRate float64 `json:"hit_rate"`
	Circuit string  `json:"circuit"`
}

// Get returns the cached result for plan against the index with the given
// fingerprint. Store failures and an open circuit count as misses.
func (c *QueryCache) Get(ctx context.Context, fingerprint string, plan *parser.QueryPlan, limit int) (*executor.SearchResult, bool) {
	result, ok := c.lookup(ctx, Key(fingerprint, plan, limit))
	if ok {
		c.recordHit()
		c.logger.Debug("cache hit", "query", plan.RawQuery)
	} else {
		c.recordMiss()
	}
	return result, ok
}

func (c *QueryCache) lookup(ctx context.Context, key string) (*executor.SearchResult, bool) {
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.store.Get(ctx, key)
		return err
	})
	if err != nil {
		if !pkgredis.IsMiss(err) && !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &result, true
}

// Set stores result. Failures are logged and otherwise ignored.
func (c *QueryCache) Set(ctx context.Context, fingerprint string, plan *parser.QueryPlan, limit int, result *executor.SearchResult) {
	key := Key(fingerprint, plan, limit)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or runs compute, collapsing
// concurrent misses for the same key into one computation. The boolean
// reports a cache hit. The returned result always carries plan's own query
// text, since plans that normalize equally share an entry.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	fingerprint string,
	plan *parser.QueryPlan,
	limit int,
	compute func(context.Context) (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, fingerprint, plan, limit); ok {
		result.Query = plan.RawQuery
		return result, true, nil
	}
	key := Key(fingerprint, plan, limit)
	val, err, _ := c.group.Do(key, func() (any, error) {
		// A computation that finished between the miss above and this call
		// has already stored its result.
		if result, ok := c.lookup(ctx, key); ok {
			return result, nil
		}
		result, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, fingerprint, plan, limit, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	result := *val.(*executor.SearchResult)
	result.Query = plan.RawQuery
	return &result, false, nil
}

// Invalidate deletes every cached result, for every index.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.store.FlushByPattern(ctx, keyPrefix+"*")
		return err
	})
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() Stats {
	s := Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Circuit: c.breaker.GetState().String(),
	}
	s.Total = s.Hits + s.Misses
	if s.Total > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Total)
	}
	return s
}

func (c *QueryCache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// Key returns the cache key for plan against the index with the given
// fingerprint. Plans that normalize equally share a key.
func Key(fingerprint string, plan *parser.QueryPlan, limit int) string {
	sum := sha256.Sum256([]byte(plan.Normalized() + "|limit=" + strconv.Itoa(limit)))
	return keyPrefix + fingerprint + ":" + hex.EncodeToString(sum[:16])
}
