package discovery

import (
	"context"
	"sync"
)

// MemoryCatalogue serves offers from an in-process slice. It backs the chat
// REPL's fixture mode and the package tests; the production catalogue lives
// in the Postgres store.
type MemoryCatalogue struct {
	mu     sync.RWMutex
	offers []Offer
}

func NewMemoryCatalogue(offers []Offer) *MemoryCatalogue {
	return &MemoryCatalogue{offers: offers}
}

// Replace swaps the full offer set, for fixture reloads.
func (m *MemoryCatalogue) Replace(offers []Offer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers = offers
}

func (m *MemoryCatalogue) Search(ctx context.Context, q Query) ([]Offer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := filterHard(m.offers, &q.Constraints)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Lexicon derives the extractor vocabulary from the loaded offers.
func (m *MemoryCatalogue) Lexicon() Lexicon {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var lex Lexicon
	seen := map[string]map[string]bool{
		"brand": {}, "city": {}, "category": {},
	}
	add := func(kind, v string, dst *[]string) {
		if v == "" || seen[kind][v] {
			return
		}
		seen[kind][v] = true
		*dst = append(*dst, v)
	}
	for _, off := range m.offers {
		add("brand", off.Brand, &lex.Brands)
		add("city", off.City, &lex.Cities)
		add("category", off.Category, &lex.Categories)
	}
	return lex
}
