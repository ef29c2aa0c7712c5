package coingecko_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"priceadapter/internal/price"
	coingecko "priceadapter/internal/provider/coingecko"
)

// respond builds a response whose body is the JSON encoding of body, or body
// itself when it is a string.
func respond(t *testing.T, status int, body any) *http.Response {
	t.Helper()
	buffer := &bytes.Buffer{}
	if s, ok := body.(string); ok {
		buffer.WriteString(s)
	} else {
		require.NoError(t, json.NewEncoder(buffer).Encode(body))
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(buffer),
	}
}

// fastRetry keeps retry tests quick.
func fastRetry(n int) coingecko.ClientOption {
	return coingecko.WithRetry(n, time.Millisecond, 2*time.Millisecond)
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	// Assert: a client is returned with or without a key.
	client, err := coingecko.NewClient("test")
	require.NoErrorf(t, err, "unexpected error: %v", err)
	require.NotNilf(t, client, "unexpected nil client")
	require.Equal(t, "coingecko", client.Name())

	client, err = coingecko.NewClient("")
	require.NoError(t, err)
	require.NotNil(t, client)
}

func TestNewClient_ProKeySelectsProAPI(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock http client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: the key is sent as a query parameter to the pro API
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Truef(t, strings.HasPrefix(req.URL.String(), coingecko.ProBaseURL), "unexpected url: %s", req.URL.String())
			require.Equal(t, "test-key", req.URL.Query().Get("x_cg_pro_api_key"))
			require.Equal(t, "application/json", req.Header.Get("Accept"))
			return respond(t, http.StatusOK, []price.Coin{{ID: "bitcoin", Symbol: "btc"}}), nil
		}).
		Times(1)

	client, err := coingecko.NewClient("test-key", coingecko.WithHTTPClient(httpClient))
	require.NoError(t, err)

	// Act
	_, err = client.ListCoins(t.Context())
	require.NoError(t, err)
}

func TestNewClient_NoKeySelectsPublicAPI(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Truef(t, strings.HasPrefix(req.URL.String(), coingecko.PublicBaseURL), "unexpected url: %s", req.URL.String())
			require.False(t, req.URL.Query().Has("x_cg_pro_api_key"))
			return respond(t, http.StatusOK, []price.Coin{{ID: "bitcoin", Symbol: "btc"}}), nil
		}).
		Times(1)

	client, err := coingecko.NewClient("", coingecko.WithHTTPClient(httpClient))
	require.NoError(t, err)

	_, err = client.ListCoins(t.Context())
	require.NoError(t, err)
}

func TestWithBaseURL(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock http client
	httpClient := NewMockHTTPClient(ctrl)

	// Arrange: define a base url
	baseURL := "http://localhost:8080"

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Truef(t, strings.HasPrefix(req.URL.String(), baseURL), "expected url to start with base url, received: %s", req.URL.String())
			return respond(t, http.StatusOK, map[string]any{"bitcoin": map[string]any{"usd": 1}}), nil
		}).
		Times(1)

	// Arrange: create a new client.
	client, err := coingecko.NewClient("test", coingecko.WithHTTPClient(httpClient), coingecko.WithBaseURL(baseURL))
	require.NoError(t, err)

	// Act: call SimplePrice with the overridden base URL.
	_, err = client.SimplePrice(t.Context(), url.Values{"ids": {"bitcoin"}, "vs_currencies": {"usd"}})
	require.NoError(t, err)
}

func TestWithHeader(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: the extra header is sent
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "bar", req.Header.Get("foo"))
			return respond(t, http.StatusOK, map[string]any{"bitcoin": map[string]any{"usd": 1}}), nil
		}).
		Times(1)

	client, err := coingecko.NewClient("test", coingecko.WithHTTPClient(httpClient), coingecko.WithHeader(http.Header{
		"foo": []string{"bar"},
	}))
	require.NoError(t, err)

	_, err = client.SimplePrice(t.Context(), url.Values{"ids": {"bitcoin"}, "vs_currencies": {"usd"}})
	require.NoError(t, err)
}

func TestListCoins(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, http.MethodGet, req.Method)
			require.Contains(t, req.URL.Path, "/coins/list")
			return respond(t, http.StatusOK, `[
				{"id":"bitcoin","symbol":"btc","name":"Bitcoin"},
				{"id":"","symbol":"bad","name":"No id"},
				{"id":"ethereum","symbol":"eth","name":"Ethereum"}
			]`), nil
		}).
		Times(1)
	client, err := coingecko.NewClient("test-key", coingecko.WithHTTPClient(httpClient))
	require.NoError(t, err)

	// Act
	coins, err := client.ListCoins(t.Context())

	// Assert: entries without an id are skipped, order is kept
	require.NoError(t, err)
	require.Equal(t, []price.Coin{
		{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin"},
		{ID: "ethereum", Symbol: "eth", Name: "Ethereum"},
	}, coins)
}

func TestSimplePrice(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Contains(t, req.URL.Path, "/simple/price")
			q := req.URL.Query()
			require.Equal(t, "bitcoin,ethereum", q.Get("ids"))
			require.Equal(t, "usd,eur", q.Get("vs_currencies"))
			require.Equal(t, "true", q.Get("include_market_cap"))
			require.Equal(t, "test-key", q.Get("x_cg_pro_api_key"))
			return respond(t, http.StatusOK, `{"bitcoin":{"usd":10,"usd_market_cap":500},"ethereum":{"usd":2000}}`), nil
		}).
		Times(1)
	client, err := coingecko.NewClient("test-key", coingecko.WithHTTPClient(httpClient))
	require.NoError(t, err)

	// Act
	resp, err := client.SimplePrice(t.Context(), url.Values{
		"ids":                {"bitcoin,ethereum"},
		"vs_currencies":      {"usd,eur"},
		"include_market_cap": {"true"},
	})

	// Assert
	require.NoError(t, err)
	v, ok := price.LookupLeaf(resp, "bitcoin", "usd_market_cap")
	require.True(t, ok)
	require.Equal(t, "500", v.String())
	v, ok = price.LookupLeaf(resp, "ethereum", "usd")
	require.True(t, ok)
	require.Equal(t, "2000", v.String())
}

func TestSimplePrice_ErrorEnvelopeIsMalformed(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: decode failures are not retried
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			return respond(t, http.StatusOK, `{"status":{"error_code":10002,"error_message":"API key missing"}}`), nil
		}).
		Times(1)
	client, err := coingecko.NewClient("", coingecko.WithHTTPClient(httpClient), fastRetry(3))
	require.NoError(t, err)

	resp, err := client.SimplePrice(t.Context(), url.Values{"ids": {"bitcoin"}})
	require.ErrorIs(t, err, price.ErrMalformedUpstreamResponse)
	require.Nil(t, resp)
}

func TestSimplePrice_ErrDecodingResponse(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			return respond(t, http.StatusOK, "invalid json"), nil
		}).
		Times(1)
	client, err := coingecko.NewClient("", coingecko.WithHTTPClient(httpClient))
	require.NoError(t, err)

	resp, err := client.SimplePrice(t.Context(), url.Values{"ids": {"bitcoin"}})
	require.ErrorIs(t, err, price.ErrMalformedUpstreamResponse)
	require.Nil(t, resp)
}

func TestSimplePrice_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	// Arrange: a 503 and a 429 followed by a success
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	gomock.InOrder(
		httpClient.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
			return respond(t, http.StatusServiceUnavailable, ""), nil
		}),
		httpClient.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
			return respond(t, http.StatusTooManyRequests, ""), nil
		}),
		httpClient.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
			return respond(t, http.StatusOK, `{"bitcoin":{"usd":10}}`), nil
		}),
	)
	client, err := coingecko.NewClient("", coingecko.WithHTTPClient(httpClient), fastRetry(3))
	require.NoError(t, err)

	// Act
	resp, err := client.SimplePrice(t.Context(), url.Values{"ids": {"bitcoin"}})

	// Assert
	require.NoError(t, err)
	v, ok := price.LookupLeaf(resp, "bitcoin", "usd")
	require.True(t, ok)
	require.Equal(t, "10", v.String())
}

func TestSimplePrice_ErrPerformingRequest(t *testing.T) {
	t.Parallel()

	// Arrange: every attempt fails at the transport level
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("connection reset by peer")
		}).
		Times(2)
	client, err := coingecko.NewClient("", coingecko.WithHTTPClient(httpClient), fastRetry(1))
	require.NoError(t, err)

	// Act
	resp, err := client.SimplePrice(t.Context(), url.Values{"ids": {"bitcoin"}})

	// Assert: retryable failure once the budget is spent
	require.ErrorIs(t, err, price.ErrUpstreamUnavailable)
	require.True(t, price.IsRetryable(err))
	require.Nil(t, resp)
}

func TestSimplePrice_ClientErrorNotRetried(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			return respond(t, http.StatusUnauthorized, `{"error":"invalid api key"}`), nil
		}).
		Times(1)
	client, err := coingecko.NewClient("bad-key", coingecko.WithHTTPClient(httpClient), fastRetry(3))
	require.NoError(t, err)

	_, err = client.SimplePrice(t.Context(), url.Values{"ids": {"bitcoin"}})
	require.ErrorIs(t, err, price.ErrUpstreamUnavailable)
	require.Contains(t, err.Error(), "invalid api key")
	require.Contains(t, err.Error(), "401")
}

func TestListCoins_ErrCreatingRequest(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock HTTP client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: no request is sent
	httpClient.EXPECT().
		Do(gomock.Any()).
		Times(0)

	client, err := coingecko.NewClient("", coingecko.WithHTTPClient(httpClient), coingecko.WithBaseURL(string([]rune{0x7f})))
	require.NoError(t, err)

	// Act
	coins, err := client.ListCoins(t.Context())
	require.Error(t, err)
	require.Nil(t, coins)
}
