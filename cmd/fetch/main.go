package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"priceadapter/internal/adapter"
	"priceadapter/internal/config"
	"priceadapter/internal/httpx"
	"priceadapter/internal/logger"
	"priceadapter/internal/price"
	"priceadapter/internal/provider/coingecko"
	"priceadapter/internal/provider/ratelimit"
	"priceadapter/internal/registry"
)

type options struct {
	base       []string
	quote      []string
	coinID     []string
	endpoint   string
	overrides  []string
	output     string
	configPath string
	timeout    time.Duration
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch CoinGecko prices, market caps or volumes for one or more pairs",
		Example: `  fetch --base BTC --quote USD
  fetch --base BTC,ETH --quote USD,EUR --endpoint marketcap --output json
  fetch --coinid bitcoin --quote USD --endpoint volume
  fetch --base BTC --quote USD --override BTC=wrapped-bitcoin`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&opts.base, "base", nil, "base symbols, comma separated")
	f.StringSliceVar(&opts.quote, "quote", []string{"USD"}, "quote currencies, comma separated")
	f.StringSliceVar(&opts.coinID, "coinid", nil, "CoinGecko coin ids, bypassing symbol resolution")
	f.StringVar(&opts.endpoint, "endpoint", "crypto", "crypto, price, marketcap or volume")
	f.StringArrayVar(&opts.overrides, "override", nil, "symbol override SYM=id (repeatable)")
	f.StringVarP(&opts.output, "output", "o", "table", "table or json")
	f.StringVar(&opts.configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.yaml or config.json")
	f.DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall timeout")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging to stderr")
	return cmd
}

func run(ctx context.Context, opts *options, out io.Writer) error {
	req, err := opts.request()
	if err != nil {
		return err
	}
	if opts.output != "table" && opts.output != "json" {
		return fmt.Errorf("unknown output %q", opts.output)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	lg, err := logger.NewLogger(level, "console")
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = lg.Sync() }()

	svc, err := buildService(cfg, opts.timeout, lg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	res, err := svc.Execute(ctx, req)
	if err != nil {
		return err
	}
	return render(out, opts.output, req, res)
}

func buildService(cfg config.Config, timeout time.Duration, lg *zap.Logger) (*adapter.Service, error) {
	cg, err := coingecko.NewClient(cfg.CoinGecko.APIKey,
		coingecko.WithHTTPClient(httpx.New(timeout)),
		coingecko.WithBaseURL(cfg.CoinGecko.ResolvedBaseURL()),
		coingecko.WithRetry(cfg.CoinGecko.MaxRetries, 0, 0),
		coingecko.WithLogger(lg),
	)
	if err != nil {
		return nil, fmt.Errorf("coingecko client: %w", err)
	}
	upstream := ratelimit.Wrap(cg, cfg.CoinGecko.MaxRequestsPerMinute, cfg.CoinGecko.Burst, cfg.CoinGecko.MinInterval())
	coins := registry.New(upstream.ListCoins, registry.WithLogger(lg), registry.WithFetchTimeout(timeout))
	return adapter.NewService(coins, upstream, lg), nil
}

// request turns the flags into a validated request. More than one base,
// quote or coin id makes it a batch.
func (o *options) request() (price.Request, error) {
	kind, err := price.ParseKind(o.endpoint)
	if err != nil {
		return price.Request{}, err
	}
	req := price.Request{
		ID:       uuid.NewString(),
		Endpoint: kind,
		Base:     o.base,
		Quote:    o.quote,
		CoinID:   o.coinID,
	}
	for _, pair := range o.overrides {
		sym, id, ok := strings.Cut(pair, "=")
		if !ok {
			return price.Request{}, fmt.Errorf("%w: override %q is not SYM=id", price.ErrInvalidRequest, pair)
		}
		if req.Overrides == nil {
			req.Overrides = price.Overrides{}
		}
		req.Overrides[sym] = id
	}
	req.Overrides = req.Overrides.Normalize()
	req.Batch = len(req.Base) > 1 || len(req.Quote) > 1 || len(req.CoinID) > 1
	return req, nil
}

type row struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
	Value string `json:"value"`
}

func render(out io.Writer, format string, req price.Request, res *adapter.Result) error {
	var rows []row
	switch {
	case res.Value != nil:
		base := strings.ToUpper(strings.Join(req.Base, ","))
		if base == "" {
			base = strings.Join(req.CoinID, ",")
		}
		rows = append(rows, row{Base: base, Quote: strings.ToUpper(req.Quote[0]), Value: res.Value.String()})
	case res.Envelope != nil:
		for _, tr := range res.Envelope.Triples() {
			rows = append(rows, row{Base: tr.Base, Quote: tr.Quote, Value: tr.Value.String()})
		}
	}

	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			JobRunID string `json:"jobRunID"`
			Endpoint string `json:"endpoint"`
			Results  []row  `json:"results"`
		}{res.JobRunID, string(req.Endpoint), rows})
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "BASE\tQUOTE\t%s\n", strings.ToUpper(string(req.Endpoint)))
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Base, r.Quote, r.Value)
	}
	if res.Envelope != nil && len(res.Envelope.Missing) > 0 {
		fmt.Fprintf(tw, "\n%d pair(s) missing from the response\n", len(res.Envelope.Missing))
	}
	return tw.Flush()
}
