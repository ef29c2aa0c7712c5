package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"priceadapter/internal/adapter"
	"priceadapter/internal/batch"
	"priceadapter/internal/price"
)

// retryAfterSeconds is advertised on responses the caller may retry unchanged.
const retryAfterSeconds = "5"

type executor interface {
	Execute(ctx context.Context, req price.Request) (*adapter.Result, error)
}

type httpServer struct {
	exec    executor
	timeout time.Duration
	logger  *zap.Logger
}

type successResponse struct {
	JobRunID   string       `json:"jobRunID"`
	StatusCode int          `json:"statusCode"`
	Result     *json.Number `json:"result,omitempty"`
	Data       successData  `json:"data"`
}

type successData struct {
	Result  *json.Number   `json:"result,omitempty"`
	Results *[]resultEntry `json:"results,omitempty"`
}

type resultEntry struct {
	Request requestView `json:"request"`
	Base    string      `json:"base"`
	Quote   string      `json:"quote"`
	Value   json.Number `json:"value"`
}

// requestView echoes a request pinned to one pair in the inbound body shape.
type requestView struct {
	ID   string          `json:"id"`
	Data requestViewData `json:"data"`
}

type requestViewData struct {
	Endpoint  string            `json:"endpoint"`
	Base      string            `json:"base"`
	Quote     string            `json:"quote"`
	CoinID    string            `json:"coinid,omitempty"`
	Overrides map[string]string `json:"overrides,omitempty"`
}

type errorResponse struct {
	JobRunID   string    `json:"jobRunID"`
	Status     string    `json:"status"`
	StatusCode int       `json:"statusCode"`
	Error      errorBody `json:"error"`
}

type errorBody struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func newRouter(exec executor, timeout time.Duration, logger *zap.Logger) *mux.Router {
	s := &httpServer{exec: exec, timeout: timeout, logger: logger}
	r := mux.NewRouter()
	r.HandleFunc("/", s.handlePost).Methods(http.MethodPost)
	r.HandleFunc("/api/price", s.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	// responses are compressed by withGzip
	r.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		DisableCompression: true,
	})).Methods(http.MethodGet)
	return r
}

func (s *httpServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("health check")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *httpServer) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, "", fmt.Errorf("%w: reading body: %v", price.ErrInvalidRequest, err))
		return
	}
	req, err := adapter.Parse(body)
	if err != nil {
		s.writeError(w, "", err)
		return
	}
	s.serve(w, r, req)
}

func (s *httpServer) handleGet(w http.ResponseWriter, r *http.Request) {
	req, err := adapter.ParseQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r.URL.Query().Get("id"), err)
		return
	}
	s.serve(w, r, req)
}

func (s *httpServer) serve(w http.ResponseWriter, r *http.Request, req price.Request) {
	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	res, err := s.exec.Execute(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, price.ErrUpstreamUnavailable) {
			err = fmt.Errorf("%w: %v", price.ErrUpstreamUnavailable, err)
		}
		s.writeError(w, req.ID, err)
		return
	}
	writeJSON(w, http.StatusOK, toSuccess(res))
}

func toSuccess(res *adapter.Result) successResponse {
	out := successResponse{JobRunID: res.JobRunID, StatusCode: http.StatusOK}
	if res.Value != nil {
		n := json.Number(res.Value.String())
		out.Result = &n
		out.Data.Result = &n
	}
	if res.Envelope != nil {
		results := make([]resultEntry, 0, len(res.Envelope.Items))
		for _, it := range res.Envelope.Items {
			results = append(results, toEntry(it))
		}
		out.Data.Results = &results
	}
	return out
}

func toEntry(it batch.Item) resultEntry {
	view := requestView{ID: it.Request.ID, Data: requestViewData{
		Endpoint:  string(it.Request.Endpoint),
		Base:      it.Triple.Base,
		Quote:     it.Triple.Quote,
		Overrides: it.Request.Overrides,
	}}
	if len(it.Request.CoinID) > 0 {
		view.Data.CoinID = it.Request.CoinID[0]
	}
	return resultEntry{
		Request: view,
		Base:    it.Triple.Base,
		Quote:   it.Triple.Quote,
		Value:   json.Number(it.Triple.Value.String()),
	}
}

func (s *httpServer) writeError(w http.ResponseWriter, jobRunID string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("jobRunID", jobRunID), zap.Int("status", status), zap.Error(err))
	} else {
		s.logger.Info("request rejected", zap.String("jobRunID", jobRunID), zap.Int("status", status), zap.Error(err))
	}
	if price.IsRetryable(err) {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	writeJSON(w, status, errorResponse{
		JobRunID:   jobRunID,
		Status:     "errored",
		StatusCode: status,
		Error:      errorBody{Name: price.ErrorName(err), Message: err.Error()},
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, price.ErrMissingRequiredSymbol), errors.Is(err, price.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, price.ErrValueNotFound):
		return http.StatusNotFound
	case errors.Is(err, price.ErrMalformedUpstreamResponse):
		return http.StatusBadGateway
	case errors.Is(err, price.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
