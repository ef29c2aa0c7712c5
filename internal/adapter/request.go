package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"priceadapter/internal/price"
)

// providerNamespace is the key of namespaced overrides meant for this adapter.
const providerNamespace = "coingecko"

type requestBody struct {
	ID   json.RawMessage `json:"id"`
	Data requestData     `json:"data"`
}

type requestData struct {
	Base      json.RawMessage `json:"base"`
	From      json.RawMessage `json:"from"`
	Coin      json.RawMessage `json:"coin"`
	Quote     json.RawMessage `json:"quote"`
	To        json.RawMessage `json:"to"`
	Market    json.RawMessage `json:"market"`
	CoinID    json.RawMessage `json:"coinid"`
	Endpoint  string          `json:"endpoint"`
	Overrides json.RawMessage `json:"overrides"`
}

// Parse validates an adapter request body and resolves its aliases.
//
//	{"id": "1", "data": {"base": ["BTC", "ETH"], "quote": "USD", "endpoint": "crypto",
//	 "overrides": {"coingecko": {"BTC": "bitcoin"}}}}
//
// base may also be given as from or coin, quote as to or market. Each accepts
// a string or a list of strings; a list makes the request a batch. A missing
// id is replaced by a random UUID.
func Parse(body []byte) (price.Request, error) {
	var in requestBody
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		return price.Request{}, fmt.Errorf("%w: decoding body: %v", price.ErrInvalidRequest, err)
	}

	req := price.Request{}
	var err error
	if req.ID, err = jobID(in.ID); err != nil {
		return price.Request{}, err
	}
	if req.Endpoint, err = price.ParseKind(in.Data.Endpoint); err != nil {
		return price.Request{}, err
	}

	var list bool
	if req.Base, list, err = firstOf("base", in.Data.Base, in.Data.From, in.Data.Coin); err != nil {
		return price.Request{}, err
	}
	req.Batch = req.Batch || list
	if req.Quote, list, err = firstOf("quote", in.Data.Quote, in.Data.To, in.Data.Market); err != nil {
		return price.Request{}, err
	}
	req.Batch = req.Batch || list
	if req.CoinID, list, err = stringOrList("coinid", in.Data.CoinID); err != nil {
		return price.Request{}, err
	}
	req.Batch = req.Batch || list
	if req.Overrides, err = overrides(in.Data.Overrides); err != nil {
		return price.Request{}, err
	}
	req.Batch = req.Batch || len(req.Base) > 1 || len(req.Quote) > 1 || len(req.CoinID) > 1
	return req, nil
}

// ParseQuery builds a request from query parameters. base, quote and coinid
// are comma separated; more than one value makes the request a batch.
// Overrides are given as override=SYM:id.
func ParseQuery(q url.Values) (price.Request, error) {
	kind, err := price.ParseKind(q.Get("endpoint"))
	if err != nil {
		return price.Request{}, err
	}
	req := price.Request{
		ID:       q.Get("id"),
		Endpoint: kind,
		Base:     splitCSV(firstNonEmpty(q.Get("base"), q.Get("from"), q.Get("coin"))),
		Quote:    splitCSV(firstNonEmpty(q.Get("quote"), q.Get("to"), q.Get("market"))),
		CoinID:   splitCSV(q.Get("coinid")),
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	for _, pair := range q["override"] {
		sym, id, ok := strings.Cut(pair, ":")
		if !ok {
			return price.Request{}, fmt.Errorf("%w: override %q is not SYM:id", price.ErrInvalidRequest, pair)
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

func jobID(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return uuid.NewString(), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s = strings.TrimSpace(s); s == "" {
			return uuid.NewString(), nil
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("%w: id must be a string or a number", price.ErrInvalidRequest)
}

// firstOf decodes the first non-null of the aliased fields.
func firstOf(field string, raws ...json.RawMessage) ([]string, bool, error) {
	for _, raw := range raws {
		if !isNull(raw) {
			return stringOrList(field, raw)
		}
	}
	return nil, false, nil
}

// stringOrList decodes a string or a list of strings and reports whether it
// was a list.
func stringOrList(field string, raw json.RawMessage) ([]string, bool, error) {
	if isNull(raw) {
		return nil, false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s = strings.TrimSpace(s); s == "" {
			return nil, false, nil
		}
		return []string{s}, false, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, false, fmt.Errorf("%w: %s must be a string or a list of strings", price.ErrInvalidRequest, field)
	}
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, true, nil
}

// overrides accepts a flat {SYM: id} table, a namespaced
// {"coingecko": {SYM: id}} one, or a mix. Tables of other providers are ignored.
func overrides(raw json.RawMessage) (price.Overrides, error) {
	if isNull(raw) {
		return nil, nil
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("%w: overrides must be an object", price.ErrInvalidRequest)
	}
	flat, namespaced := price.Overrides{}, price.Overrides{}
	for key, value := range top {
		var id string
		if err := json.Unmarshal(value, &id); err == nil {
			flat[key] = id
			continue
		}
		var nested map[string]string
		if err := json.Unmarshal(value, &nested); err != nil {
			return nil, fmt.Errorf("%w: override %q must be a string or an object of strings", price.ErrInvalidRequest, key)
		}
		if !strings.EqualFold(key, providerNamespace) {
			continue
		}
		for sym, id := range nested {
			namespaced[sym] = id
		}
	}
	// namespaced entries take precedence over flat ones
	out := flat.Normalize()
	if out == nil {
		out = price.Overrides{}
	}
	for sym, id := range namespaced.Normalize() {
		out[sym] = id
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
