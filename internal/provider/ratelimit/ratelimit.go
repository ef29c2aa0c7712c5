package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"priceadapter/internal/price"
	"priceadapter/internal/provider"
)

// Limited wraps a provider and gates every upstream call on a shared limiter.
// Concurrent calls wait for a token, or return early if the context is canceled.
type Limited struct {
	P       provider.Provider
	Limiter *rate.Limiter
}

var _ provider.Provider = (*Limited)(nil)

// TokenBucket allows requestsPerMinute calls with bursts of up to burst.
func TokenBucket(p provider.Provider, requestsPerMinute, burst int) *Limited {
	if burst <= 0 {
		burst = 1
	}
	return &Limited{P: p, Limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), burst)}
}

// MinInterval enforces at least interval between consecutive calls.
func MinInterval(p provider.Provider, interval time.Duration) *Limited {
	return &Limited{P: p, Limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wrap picks a limiter from the configured budget. A requests-per-minute
// budget takes precedence over a minimum interval; with neither p is returned
// as is.
func Wrap(p provider.Provider, requestsPerMinute, burst int, minInterval time.Duration) provider.Provider {
	switch {
	case requestsPerMinute > 0:
		return TokenBucket(p, requestsPerMinute, burst)
	case minInterval > 0:
		return MinInterval(p, minInterval)
	default:
		return p
	}
}

func (l *Limited) Name() string { return l.P.Name() }

func (l *Limited) ListCoins(ctx context.Context) ([]price.Coin, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.P.ListCoins(ctx)
}

func (l *Limited) SimplePrice(ctx context.Context, query url.Values) (price.Aggregated, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.P.SimplePrice(ctx, query)
}

func (l *Limited) wait(ctx context.Context) error {
	if l.Limiter == nil {
		return nil
	}
	if err := l.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limit wait: %v", price.ErrUpstreamUnavailable, err)
	}
	return nil
}
