package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"priceadapter/internal/batch"
	"priceadapter/internal/price"
	"priceadapter/internal/resolve"
)

// Registry supplies the provider coin catalog.
//
//go:generate mockgen -package=adapter_test -destination=mock_deps_test.go -source=service.go Registry,Upstream
type Registry interface {
	Get(ctx context.Context) ([]price.Coin, error)
}

// Upstream answers aggregated price queries.
type Upstream interface {
	SimplePrice(ctx context.Context, query url.Values) (price.Aggregated, error)
}

// Result is the outcome of one request: Value for a single pair, Envelope for
// a batch.
type Result struct {
	JobRunID string
	Value    *decimal.Decimal
	Envelope *batch.Envelope
}

// Service turns validated requests into exactly one upstream price query.
type Service struct {
	registry Registry
	upstream Upstream
	logger   *zap.Logger
}

func NewService(registry Registry, upstream Upstream, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry: registry,
		upstream: upstream,
		logger:   logger.With(zap.String("component", "adapter")),
	}
}

// Execute resolves the requested symbols, issues one aggregated query and
// decomposes the answer.
func (s *Service) Execute(ctx context.Context, req price.Request) (*Result, error) {
	res, err := s.execute(ctx, req)
	outcome := "success"
	if err != nil {
		outcome = price.ErrorName(err)
	}
	requestsTotal.WithLabelValues(string(req.Endpoint), mode(req), outcome).Inc()
	return res, err
}

func (s *Service) execute(ctx context.Context, req price.Request) (*Result, error) {
	if len(req.Base) == 0 && len(req.CoinID) == 0 {
		return nil, fmt.Errorf("%w: one of base, from, coin or coinid is required", price.ErrMissingRequiredSymbol)
	}
	if len(req.Quote) == 0 {
		return nil, fmt.Errorf("%w: one of quote, to or market is required", price.ErrInvalidRequest)
	}
	if req.Endpoint == "" {
		req.Endpoint = price.KindPrice
	}

	logger := s.logger.With(zap.String("jobRunID", req.ID), zap.String("endpoint", string(req.Endpoint)))

	idx, err := s.index(ctx, req, logger)
	if err != nil {
		return nil, err
	}
	if idx.Len() == 0 {
		return nil, fmt.Errorf("%w: no provider id for %s", price.ErrValueNotFound, strings.Join(req.Base, ","))
	}

	resp, err := s.upstream.SimplePrice(ctx, batch.BuildQuery(idx, req.Quote, req.Endpoint))
	if err != nil {
		return nil, err
	}

	if !req.Batch {
		v, err := batch.Single(resp, strings.Join(idx.IDs(), ","), req.Quote[0], req.Endpoint)
		if err != nil {
			return nil, err
		}
		return &Result{JobRunID: req.ID, Value: &v}, nil
	}

	env, err := batch.Decompose(resp, idx, req)
	if err != nil {
		return nil, err
	}
	if len(env.Missing) > 0 {
		missingLeaves.Add(float64(len(env.Missing)))
		logger.Debug("pairs missing from upstream response", zap.Any("missing", env.Missing))
	}
	return &Result{JobRunID: req.ID, Envelope: &env}, nil
}

// index builds the id index either from explicit coin ids or by resolving
// base symbols against the catalog.
func (s *Service) index(ctx context.Context, req price.Request, logger *zap.Logger) (resolve.Index, error) {
	if len(req.CoinID) > 0 {
		return resolve.FromCoinIDs(req.CoinID, req.Base), nil
	}

	coins, err := s.registry.Get(ctx)
	if err != nil {
		return resolve.Index{}, err
	}
	res := resolve.Resolve(req.Base, req.Overrides, coins)
	if len(res.Dropped) > 0 {
		droppedSymbols.Add(float64(len(res.Dropped)))
		logger.Warn("symbols without a provider id were dropped", zap.Strings("symbols", res.Dropped))
	}
	return res.Index, nil
}

func mode(req price.Request) string {
	if req.Batch {
		return "batch"
	}
	return "single"
}
