package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"priceadapter/internal/price"
)

// ListCoins retrieves the full coin catalog from /coins/list.
//
//	[
//	  {"id": "bitcoin", "symbol": "btc", "name": "Bitcoin"},
//	  {"id": "ethereum", "symbol": "eth", "name": "Ethereum"}
//	]
func (c *Client) ListCoins(ctx context.Context) ([]price.Coin, error) {
	var coins []price.Coin
	err := c.get(ctx, "/coins/list", nil, func(r io.Reader) error {
		var raw []price.Coin
		if err := json.NewDecoder(r).Decode(&raw); err != nil {
			return fmt.Errorf("%w: decoding coin list: %v", price.ErrMalformedUpstreamResponse, err)
		}
		coins = make([]price.Coin, 0, len(raw))
		for _, coin := range raw {
			if coin.ID == "" || coin.Symbol == "" {
				continue
			}
			coins = append(coins, coin)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return coins, nil
}

// SimplePrice runs an aggregated /simple/price query.
func (c *Client) SimplePrice(ctx context.Context, query url.Values) (price.Aggregated, error) {
	var resp price.Aggregated
	err := c.get(ctx, "/simple/price", query, func(r io.Reader) error {
		var err error
		resp, err = price.DecodeAggregated(r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
