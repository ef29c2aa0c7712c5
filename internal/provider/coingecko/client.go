package coingecko

import (
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"priceadapter/internal/provider"
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=coingecko_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	// PublicBaseURL is used when no API key is configured.
	PublicBaseURL = "https://api.coingecko.com/api/v3"
	// ProBaseURL is used with a pro API key.
	ProBaseURL = "https://pro-api.coingecko.com/api/v3"

	apiKeyParam = "x_cg_pro_api_key"
)

// Compile-time check that Client implements provider.Provider.
var _ provider.Provider = (*Client)(nil)

// Client is a client for the CoinGecko API.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient is the HTTP client.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// query contains additional query parameters to be sent with each request.
	query url.Values

	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration

	logger *zap.Logger
}

// ClientOption is a configuration option for the CoinGecko API client.
type ClientOption func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) ClientOption {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithRetry configures retries of transient failures (transport errors, 429, 5xx).
// maxRetries of 0 disables retrying.
func WithRetry(maxRetries int, initialBackoff, maxBackoff time.Duration) ClientOption {
	return func(c *Client) {
		if maxRetries >= 0 {
			c.maxRetries = maxRetries
		}
		if initialBackoff > 0 {
			c.initialBackoff = initialBackoff
		}
		if maxBackoff > 0 {
			c.maxBackoff = maxBackoff
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new CoinGecko API client. With a key the pro API is
// used, without one the public API.
func NewClient(key string, options ...ClientOption) (*Client, error) {
	var client = &Client{
		baseURL:        PublicBaseURL,
		httpClient:     http.DefaultClient,
		header:         http.Header{},
		query:          url.Values{},
		maxRetries:     3,
		initialBackoff: 500 * time.Millisecond,
		maxBackoff:     10 * time.Second,
		logger:         zap.NewNop(),
	}
	if key != "" {
		// https://docs.coingecko.com/reference/authentication
		client.baseURL = ProBaseURL
		client.query.Add(apiKeyParam, key)
	}
	for _, option := range options {
		option(client)
	}
	client.logger = client.logger.With(zap.String("component", "coingecko-client"))
	return client, nil
}

// Name returns the provider name.
func (c *Client) Name() string { return "coingecko" }
