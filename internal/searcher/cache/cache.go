// Package cache stores search results in Redis keyed by dataset version and
// normalized query, so results from different snapshots never mix.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pinnedref/pinnedref/internal/searcher/parser"
	"github.com/pinnedref/pinnedref/pkg/logger"
	"github.com/pinnedref/pinnedref/pkg/metrics"
	pkgredis "github.com/pinnedref/pinnedref/pkg/redis"
	"github.com/pinnedref/pinnedref/pkg/resilience"
)

const keyPrefix = "search:"

// Store is the key-value backend. Get returns pkgredis.ErrMiss for an
// absent key. *pkgredis.Client satisfies it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteMatching(ctx context.Context, pattern string) (int64, error)
}

// Stats reports cache activity since start.
type Stats struct {
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Errors  int64  `json:"errors"`
	Circuit string `json:"circuit"`
	Version string `json:"version"`
}

type Option func(*QueryCache)

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *QueryCache) {
		c.metrics = m
	}
}

// WithBreaker replaces the default circuit breaker around the store.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *QueryCache) {
		c.breaker = cb
	}
}

// QueryCache caches the sorted id list of a query. Store failures are logged
// and treated as misses; a run of failures opens the circuit and the cache
// is bypassed until it recovers.
type QueryCache struct {
	store   Store
	ttl     time.Duration
	version string
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
	errs    atomic.Int64
}

func New(store Store, ttl time.Duration, version string, opts ...Option) *QueryCache {
	c := &QueryCache{
		store:   store,
		ttl:     ttl,
		version: version,
		logger:  logger.WithComponent("query-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = resilience.NewCircuitBreaker("search-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			OnStateChange:    c.circuitChanged,
		})
	}
	return c
}

// Key returns the cache key for query. Matching is case-insensitive, so
// queries whose normalized forms differ only in case share a key.
func (c *QueryCache) Key(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(parser.Parse(query).Normalized)))
	return keyPrefix + c.version + ":" + hex.EncodeToString(sum[:])
}

// Get returns the cached ids for query.
func (c *QueryCache) Get(ctx context.Context, query string) ([]int64, bool) {
	key := c.Key(query)
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.store.Get(ctx, key)
		if errors.Is(err, pkgredis.ErrMiss) {
			data = nil
			return nil
		}
		return err
	})
	if err != nil {
		c.recordError("get", key, err)
		c.recordMiss()
		return nil, false
	}
	if data == nil {
		c.recordMiss()
		return nil, false
	}
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.recordMiss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "query", query, "key", key)
	return ids, true
}

// Set stores ids for query with the configured TTL.
func (c *QueryCache) Set(ctx context.Context, query string, ids []int64) {
	key := c.Key(query)
	if ids == nil {
		ids = []int64{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.recordError("set", key, err)
	}
}

// GetOrCompute returns the cached ids for query or computes and stores them.
// Concurrent misses for the same key share one computation. The bool
// reports a cache hit.
func (c *QueryCache) GetOrCompute(ctx context.Context, query string, compute func() ([]int64, error)) ([]int64, bool, error) {
	if ids, ok := c.Get(ctx, query); ok {
		return ids, true, nil
	}
	key := c.Key(query)
	val, err, _ := c.group.Do(key, func() (any, error) {
		ids, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, query, ids)
		return ids, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]int64), false, nil
}

// Invalidate deletes every cached search result, across dataset versions.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.DeleteMatching(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Errors:  c.errs.Load(),
		Circuit: c.breaker.GetState().String(),
		Version: c.version,
	}
}

func (c *QueryCache) circuitChanged(_ string, _, to resilience.State) {
	if c.metrics == nil {
		return
	}
	if to == resilience.StateOpen {
		c.metrics.CacheCircuitOpen.Set(1)
	} else {
		c.metrics.CacheCircuitOpen.Set(0)
	}
}

func (c *QueryCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *QueryCache) recordError(op, key string, err error) {
	c.errs.Add(1)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Debug("cache bypassed", "op", op, "error", err)
		return
	}
	c.logger.Warn("cache operation failed", "op", op, "key", key, "error", err)
}
