// Package resolve maps requested ticker symbols to provider ids.
package resolve

import (
	"strings"

	"priceadapter/internal/price"
)

// Index maps provider ids to the caller-facing symbol. Ids are unique and kept
// in insertion order so the upstream query is deterministic.
type Index struct {
	ids     []string
	symbols map[string]string
}

// IDs returns the ids in insertion order.
func (x Index) IDs() []string { return append([]string(nil), x.ids...) }

// Symbol returns the symbol resolved for id.
func (x Index) Symbol(id string) (string, bool) {
	s, ok := x.symbols[id]
	return s, ok
}

// Len returns the number of resolved ids.
func (x Index) Len() int { return len(x.ids) }

// Result is the outcome of Resolve.
type Result struct {
	Index Index
	// Dropped lists requested symbols that ended up without an id.
	Dropped []string
}

type candidate struct {
	id       string
	symbol   string
	override bool
}

// Resolve maps requested base symbols to provider ids.
//
// Every symbol takes the first catalog entry with the same (case-insensitive)
// symbol. An override for a requested symbol replaces that id, and is used even
// when the catalog has no match. Overrides for symbols that were not requested
// are ignored. When two symbols land on the same id, an override beats a catalog
// match, otherwise the earlier symbol keeps it.
func Resolve(requested []string, overrides price.Overrides, coins []price.Coin) Result {
	symbols := normalize(requested)
	overrides = overrides.Normalize()

	want := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		want[s] = struct{}{}
	}
	auto := make(map[string]string, len(symbols))
	for _, c := range coins {
		sym := strings.ToUpper(c.Symbol)
		if _, ok := want[sym]; !ok {
			continue
		}
		if _, seen := auto[sym]; !seen {
			auto[sym] = c.ID
		}
	}

	cands := make([]candidate, 0, len(symbols))
	var dropped []string
	for _, s := range symbols {
		if id, ok := overrides[s]; ok {
			cands = append(cands, candidate{id: id, symbol: s, override: true})
			continue
		}
		if id, ok := auto[s]; ok {
			cands = append(cands, candidate{id: id, symbol: s})
			continue
		}
		dropped = append(dropped, s)
	}

	winners := make(map[string]candidate, len(cands))
	for _, c := range cands {
		cur, taken := winners[c.id]
		if !taken || (c.override && !cur.override) {
			winners[c.id] = c
		}
	}

	x := Index{ids: make([]string, 0, len(winners)), symbols: make(map[string]string, len(winners))}
	for _, c := range cands {
		w := winners[c.id]
		if w.symbol != c.symbol {
			dropped = append(dropped, c.symbol)
			continue
		}
		x.ids = append(x.ids, c.id)
		x.symbols[c.id] = c.symbol
	}
	return Result{Index: x, Dropped: dropped}
}

// FromCoinIDs builds an Index for explicitly supplied provider ids. Ids are
// paired with bases by position when both lists have the same length,
// otherwise the id itself is used as the symbol.
func FromCoinIDs(ids []string, bases []string) Index {
	x := Index{ids: make([]string, 0, len(ids)), symbols: make(map[string]string, len(ids))}
	paired := len(ids) == len(bases)
	for i, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := x.symbols[id]; dup {
			continue
		}
		sym := id
		if paired && strings.TrimSpace(bases[i]) != "" {
			sym = bases[i]
		}
		x.ids = append(x.ids, id)
		x.symbols[id] = strings.ToUpper(strings.TrimSpace(sym))
	}
	return x
}

// normalize upper-cases and de-duplicates symbols, keeping the first occurrence.
func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
