// Package batch builds the aggregated upstream query and splits the aggregated
// answer back into per-instrument results.
package batch

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"priceadapter/internal/price"
	"priceadapter/internal/resolve"
)

// BuildQuery returns the simple/price query parameters for idx and quotes.
func BuildQuery(idx resolve.Index, quotes []string, kind price.Kind) url.Values {
	lowered := make([]string, 0, len(quotes))
	for _, q := range quotes {
		if q = strings.TrimSpace(q); q != "" {
			lowered = append(lowered, strings.ToLower(q))
		}
	}
	v := url.Values{}
	v.Set("ids", strings.Join(idx.IDs(), ","))
	v.Set("vs_currencies", strings.Join(lowered, ","))
	switch kind {
	case price.KindMarketCap:
		v.Set("include_market_cap", "true")
	case price.KindVolume:
		v.Set("include_24hr_vol", "true")
	}
	return v
}

// Item ties one result to the single-pair request it answers.
type Item struct {
	Request price.Request
	Triple  price.Triple
}

// Pair names a (provider id, quote) combination absent from the response.
type Pair struct {
	ID    string
	Quote string
}

// Envelope is the decomposed batch result.
type Envelope struct {
	Items []Item
	// Missing lists pairs that were asked for but not answered.
	Missing []Pair
}

// Triples returns the results without routing metadata.
func (e Envelope) Triples() []price.Triple {
	out := make([]price.Triple, 0, len(e.Items))
	for _, it := range e.Items {
		out = append(out, it.Triple)
	}
	return out
}

// Decompose emits one item per (resolved id, requested quote) pair present in
// resp, ordered by index then by quote. Missing pairs are skipped.
func Decompose(resp price.Aggregated, idx resolve.Index, req price.Request) (Envelope, error) {
	if resp == nil {
		return Envelope{}, fmt.Errorf("%w: no data to decompose", price.ErrMalformedUpstreamResponse)
	}
	var env Envelope
	for _, id := range idx.IDs() {
		base, _ := idx.Symbol(id)
		for _, q := range req.Quote {
			quote := strings.ToUpper(strings.TrimSpace(q))
			if quote == "" {
				continue
			}
			v, ok := price.LookupLeaf(resp, id, req.Endpoint.LeafKey(quote))
			if !ok {
				env.Missing = append(env.Missing, Pair{ID: id, Quote: quote})
				continue
			}
			env.Items = append(env.Items, Item{
				Request: req.Pin(base, quote, id),
				Triple:  price.Triple{Base: base, Quote: quote, Value: v},
			})
		}
	}
	return env, nil
}

// Single looks up the one value of a non-batch request.
func Single(resp price.Aggregated, ids, quote string, kind price.Kind) (decimal.Decimal, error) {
	if resp == nil {
		return decimal.Decimal{}, fmt.Errorf("%w: no data", price.ErrMalformedUpstreamResponse)
	}
	key := kind.LeafKey(strings.TrimSpace(quote))
	v, ok := price.LookupLeaf(resp, strings.ToLower(ids), key)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s/%s", price.ErrValueNotFound, ids, key)
	}
	return v, nil
}
