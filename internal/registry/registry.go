// Package registry keeps the provider's coin catalog in memory.
//
// The catalog is fetched wholesale, replaced atomically and served stale when a
// refresh fails after at least one successful fetch. Concurrent refreshes share
// a single in-flight fetch.
package registry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"priceadapter/internal/price"
)

// FetchFunc loads the full catalog from the provider.
type FetchFunc func(ctx context.Context) ([]price.Coin, error)

// Clock returns the current time.
type Clock func() time.Time

const (
	DefaultTTL          = 10 * time.Minute
	DefaultFetchTimeout = 30 * time.Second

	flightKey = "catalog"
)

type snapshot struct {
	coins     []price.Coin
	fetchedAt time.Time
}

// Cache is a process-scoped catalog cache.
type Cache struct {
	fetch        FetchFunc
	ttl          time.Duration
	fetchTimeout time.Duration
	now          Clock
	logger       *zap.Logger

	snap atomic.Pointer[snapshot]
	sf   singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets how long a fetched catalog is considered fresh.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now Clock) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithFetchTimeout bounds a single catalog fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// New creates a Cache around fetch. Nothing is fetched until the first Get,
// ForceRefresh or Run.
func New(fetch FetchFunc, opts ...Option) *Cache {
	c := &Cache{
		fetch:        fetch,
		ttl:          DefaultTTL,
		fetchTimeout: DefaultFetchTimeout,
		now:          time.Now,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "coin-registry"))
	return c
}

// Get returns the current catalog, refreshing it when missing or expired.
// A failed refresh falls back to the previous catalog without an error.
func (c *Cache) Get(ctx context.Context) ([]price.Coin, error) {
	prev := c.snap.Load()
	if c.fresh(prev) {
		return prev.coins, nil
	}

	coins, err := c.refresh(ctx, false)
	if err != nil {
		if prev != nil {
			c.logger.Warn("catalog refresh failed, serving stale copy",
				zap.Error(err),
				zap.Time("fetchedAt", prev.fetchedAt),
				zap.Int("coins", len(prev.coins)),
			)
			return prev.coins, nil
		}
		return nil, err
	}
	return coins, nil
}

// ForceRefresh fetches the catalog regardless of its age. On failure the
// previous catalog stays in place and the error is returned.
func (c *Cache) ForceRefresh(ctx context.Context) error {
	_, err := c.refresh(ctx, true)
	return err
}

// Run refreshes the catalog every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = c.ttl
	}
	if err := c.ForceRefresh(ctx); err != nil {
		c.logger.Error("initial catalog fetch failed", zap.Error(err))
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.ForceRefresh(ctx); err != nil {
				c.logger.Error("scheduled catalog refresh failed", zap.Error(err))
			}
		}
	}
}

// Len returns the number of coins in the current catalog.
func (c *Cache) Len() int {
	if s := c.snap.Load(); s != nil {
		return len(s.coins)
	}
	return 0
}

func (c *Cache) fresh(s *snapshot) bool {
	return s != nil && c.now().Sub(s.fetchedAt) < c.ttl
}

func (c *Cache) refresh(ctx context.Context, force bool) ([]price.Coin, error) {
	v, err, shared := c.sf.Do(flightKey, func() (any, error) {
		// A flight that started right after another committed reuses its result.
		if s := c.snap.Load(); !force && c.fresh(s) {
			return s.coins, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		started := c.now()
		coins, err := c.fetch(fetchCtx)
		if err != nil {
			refreshTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("%w: fetching coin catalog: %v", price.ErrUpstreamUnavailable, err)
		}
		if len(coins) == 0 {
			refreshTotal.WithLabelValues("empty").Inc()
			return nil, fmt.Errorf("%w: provider returned an empty coin catalog", price.ErrUpstreamUnavailable)
		}

		c.snap.Store(&snapshot{coins: coins, fetchedAt: c.now()})
		refreshTotal.WithLabelValues("ok").Inc()
		catalogSize.Set(float64(len(coins)))
		c.logger.Info("coin catalog refreshed",
			zap.Int("coins", len(coins)),
			zap.Duration("took", c.now().Sub(started)),
		)
		return coins, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("joined in-flight catalog refresh")
	}
	return v.([]price.Coin), nil
}
