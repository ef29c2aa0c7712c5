package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"priceadapter/internal/price"
)

// get performs a GET against path, retrying transient failures, and hands the
// body of a 200 response to decode.
func (c *Client) get(ctx context.Context, path string, params url.Values, decode func(io.Reader) error) error {
	query := url.Values{}
	for key, values := range c.query {
		query[key] = append([]string(nil), values...)
	}
	for key, values := range params {
		for _, value := range values {
			query.Add(key, value)
		}
	}
	endpoint := fmt.Sprintf("%s%s?%s", c.baseURL, path, query.Encode())

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialBackoff
	bo.MaxInterval = c.maxBackoff
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.maxRetries)), ctx)

	op := func() error {
		return c.getOnce(ctx, endpoint, decode)
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("request failed, retrying",
			zap.String("path", path),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(op, policy, notify)
	if err == nil {
		return nil
	}
	if errors.Is(err, price.ErrUpstreamUnavailable) || errors.Is(err, price.ErrMalformedUpstreamResponse) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", price.ErrUpstreamUnavailable, path, err)
}

func (c *Client) getOnce(ctx context.Context, endpoint string, decode func(io.Reader) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header = c.header.Clone()
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: performing request: %v", price.ErrUpstreamUnavailable, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusOK:

	case res.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: rate limited", price.ErrUpstreamUnavailable)

	case res.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: server error (HTTP %d)", price.ErrUpstreamUnavailable, res.StatusCode)

	default:
		b, _ := io.ReadAll(io.LimitReader(res.Body, 2<<10))
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := string(b)
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return backoff.Permanent(fmt.Errorf("%w: unexpected status code %d: %s", price.ErrUpstreamUnavailable, res.StatusCode, msg))
	}

	if err := decode(res.Body); err != nil {
		return backoff.Permanent(err)
	}
	return nil
}
