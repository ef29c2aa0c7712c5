package price

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
)

// Aggregated is the batched upstream answer: provider id -> leaf key -> value.
//
//	{
//	  "bitcoin": {"usd": 64000.5, "usd_market_cap": 1.26e12},
//	  "ethereum": {"usd": 3100.2}
//	}
type Aggregated map[string]map[string]decimal.Decimal

// LookupLeaf returns the value stored for id under key.
func LookupLeaf(resp Aggregated, id, key string) (decimal.Decimal, bool) {
	leaves, ok := resp[id]
	if !ok {
		return decimal.Decimal{}, false
	}
	v, ok := leaves[key]
	return v, ok
}

// DecodeAggregated reads an aggregated response. Anything that is not a
// non-empty mapping of ids to objects is reported as ErrMalformedUpstreamResponse.
// Null and non-numeric leaves are left out.
func DecodeAggregated(r io.Reader) (Aggregated, error) {
	var top map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedUpstreamResponse, err)
	}
	if len(top) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedUpstreamResponse)
	}
	if msg, ok := errorEnvelope(top); ok {
		return nil, fmt.Errorf("%w: provider error: %s", ErrMalformedUpstreamResponse, msg)
	}

	out := make(Aggregated, len(top))
	for id, raw := range top {
		var leaves map[string]json.RawMessage
		if err := json.Unmarshal(raw, &leaves); err != nil || leaves == nil {
			return nil, fmt.Errorf("%w: %q is not an object", ErrMalformedUpstreamResponse, id)
		}
		values := make(map[string]decimal.Decimal, len(leaves))
		for key, v := range leaves {
			if d, ok := parseNumber(v); ok {
				values[key] = d
			}
		}
		out[id] = values
	}
	return out, nil
}

// errorEnvelope detects {"error": ...} and {"status": {"error_code": ...}} bodies.
func errorEnvelope(top map[string]json.RawMessage) (string, bool) {
	if raw, ok := top["error"]; ok {
		return string(raw), true
	}
	raw, ok := top["status"]
	if !ok {
		return "", false
	}
	var status struct {
		ErrorCode    *int   `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	}
	if err := json.Unmarshal(raw, &status); err != nil {
		return "", false
	}
	if status.ErrorCode == nil && status.ErrorMessage == "" {
		return "", false
	}
	code := 0
	if status.ErrorCode != nil {
		code = *status.ErrorCode
	}
	return fmt.Sprintf("code=%d msg=%q", code, status.ErrorMessage), true
}

func parseNumber(raw json.RawMessage) (decimal.Decimal, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return decimal.Decimal{}, false
	}
	n, ok := v.(json.Number)
	if !ok {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
