package price

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind selects which value of an instrument is requested.
type Kind string

const (
	KindPrice     Kind = "price"
	KindMarketCap Kind = "marketcap"
	KindVolume    Kind = "volume"
)

// ParseKind maps an endpoint name to a Kind. "crypto" is an alias of price and
// an empty name defaults to it.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "crypto", "price":
		return KindPrice, nil
	case "marketcap":
		return KindMarketCap, nil
	case "volume":
		return KindVolume, nil
	}
	return "", fmt.Errorf("%w: unsupported endpoint %q", ErrInvalidRequest, s)
}

// Suffix is appended to the lower-cased quote to build the leaf key.
func (k Kind) Suffix() string {
	switch k {
	case KindMarketCap:
		return "_market_cap"
	case KindVolume:
		return "_24h_vol"
	}
	return ""
}

// LeafKey returns the key under which the value for quote is stored.
func (k Kind) LeafKey(quote string) string {
	return strings.ToLower(quote) + k.Suffix()
}

// Coin is one entry of the provider catalog.
type Coin struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name,omitempty"`
}

// Overrides maps an upper-cased symbol to the provider id that must be used for it.
type Overrides map[string]string

// Normalize returns a copy with upper-cased, trimmed symbols. Empty ids are dropped.
func (o Overrides) Normalize() Overrides {
	if len(o) == 0 {
		return nil
	}
	out := make(Overrides, len(o))
	for sym, id := range o {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		id = strings.TrimSpace(id)
		if sym == "" || id == "" {
			continue
		}
		out[sym] = id
	}
	return out
}

// Request is a validated caller request.
type Request struct {
	ID        string
	Endpoint  Kind
	Base      []string
	Quote     []string
	CoinID    []string
	Overrides Overrides
	// Batch is set when base, quote or coinid was supplied as a list.
	Batch bool
}

// Pin returns a copy of r narrowed to one base/quote pair. coinID is kept only
// when the original request carried explicit ids.
func (r Request) Pin(base, quote, coinID string) Request {
	out := r
	out.Base = []string{base}
	out.Quote = []string{quote}
	out.Batch = false
	out.CoinID = nil
	if len(r.CoinID) > 0 && coinID != "" {
		out.CoinID = []string{coinID}
	}
	return out
}

// Triple is one decomposed result.
type Triple struct {
	Base  string          `json:"base"`
	Quote string          `json:"quote"`
	Value decimal.Decimal `json:"value"`
}
