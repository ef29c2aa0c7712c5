package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"priceadapter/internal/adapter"
	"priceadapter/internal/config"
	"priceadapter/internal/httpx"
	"priceadapter/internal/logger"
	"priceadapter/internal/provider/coingecko"
	"priceadapter/internal/provider/ratelimit"
	"priceadapter/internal/registry"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if cfg.CoinGecko.APIKey == "" {
		lg.Warn("no CoinGecko API key set, using the public API")
	}

	httpClient := httpx.New(cfg.RequestTimeout())
	cg, err := coingecko.NewClient(cfg.CoinGecko.APIKey,
		coingecko.WithHTTPClient(httpClient),
		coingecko.WithBaseURL(cfg.CoinGecko.ResolvedBaseURL()),
		coingecko.WithRetry(cfg.CoinGecko.MaxRetries, 0, 0),
		coingecko.WithLogger(lg),
	)
	if err != nil {
		lg.Fatal("coingecko client", zap.Error(err))
	}
	upstream := ratelimit.Wrap(cg, cfg.CoinGecko.MaxRequestsPerMinute, cfg.CoinGecko.Burst, cfg.CoinGecko.MinInterval())

	coins := registry.New(upstream.ListCoins,
		registry.WithTTL(cfg.CoinGecko.CatalogTTL()),
		registry.WithLogger(lg),
	)
	svc := adapter.NewService(coins, upstream, lg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if interval := cfg.CoinGecko.CatalogRefresh(); interval > 0 {
		go coins.Run(ctx, interval)
	}

	router := newRouter(svc, cfg.RequestTimeout(), lg)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           withJSONHeaders(withGzip(recoverPanic(lg, limitBody(router)))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout() + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		lg.Info("server listening", zap.String("addr", srv.Addr), zap.String("upstream", cfg.CoinGecko.ResolvedBaseURL()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
