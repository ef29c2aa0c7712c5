package provider

import (
	"context"
	"net/url"

	"priceadapter/internal/price"
)

// Provider is an upstream that lists its coin catalog and answers aggregated
// price queries keyed by its own ids.
type Provider interface {
	Name() string
	// ListCoins returns the full (id, symbol) catalog.
	ListCoins(ctx context.Context) ([]price.Coin, error)
	// SimplePrice runs one aggregated query built by batch.BuildQuery.
	SimplePrice(ctx context.Context, query url.Values) (price.Aggregated, error)
}
