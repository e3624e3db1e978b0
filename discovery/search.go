package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nvakili/kashef/internal/metrics"
	"github.com/nvakili/kashef/shared/backoff"
)

const (
	// TopCandidates is the maximum number of ranked candidates a search
	// returns and the option-list ceiling for the planner.
	TopCandidates = 5

	// PriceBucketSize groups offer prices into bands for variance stats.
	PriceBucketSize = 500_000

	defaultFetchLimit = 500
)

// Offer is a single seller offer as stored in the catalogue.
type Offer struct {
	ID             string  `json:"id" msgpack:"id"`
	ProductID      string  `json:"product_id" msgpack:"product_id"`
	ShopID         string  `json:"shop_id" msgpack:"shop_id"`
	ProductName    string  `json:"product_name" msgpack:"product_name"`
	Brand          string  `json:"brand,omitempty" msgpack:"brand,omitempty"`
	Category       string  `json:"category,omitempty" msgpack:"category,omitempty"`
	City           string  `json:"city,omitempty" msgpack:"city,omitempty"`
	Price          int64   `json:"price" msgpack:"price"`
	WarrantyMonths int     `json:"warranty_months" msgpack:"warranty_months"`
	SellerScore    float64 `json:"seller_score" msgpack:"seller_score"`
	Features       string  `json:"features,omitempty" msgpack:"features,omitempty"`
}

// Query is the catalogue request for one retrieval. The catalogue applies
// only the hard filters; scoring and ranking happen in the Engine.
type Query struct {
	Constraints ConstraintSet
	Limit       int
}

// Catalogue is the read-only store collaborator. Implementations must apply
// the hard filters (price range, city, required brand/category) and may
// pre-narrow by keywords, but must never mutate anything.
type Catalogue interface {
	Search(ctx context.Context, q Query) ([]Offer, error)
}

// Candidate is an offer scored against the active constraints.
type Candidate struct {
	Offer
	MatchScore float64 `json:"match_score" msgpack:"match_score"`
	// Matched lists the active soft constraints this offer satisfies.
	Matched []Topic `json:"matched,omitempty" msgpack:"matched,omitempty"`
}

// Variance counts distinct values per unset structured attribute among all
// current matches. The planner uses it to pick the most differentiating
// question.
type Variance map[Topic]int

// SearchResult is the outcome of one scored retrieval.
type SearchResult struct {
	Total      int
	Candidates []Candidate
	Variance   Variance
}

// Engine executes one scored retrieval per coordinator turn: a single
// catalogue call followed by in-process scoring, ranking and variance
// statistics.
type Engine struct {
	catalogue Catalogue
	limit     int
	retry     backoff.Strategy
}

func NewEngine(c Catalogue) *Engine {
	return &Engine{catalogue: c, limit: defaultFetchLimit, retry: backoff.Search}
}

// Search runs the retrieval for the given constraints. The catalogue call is
// retried once on failure; a persistent failure is returned to the caller
// without consuming conversation state.
func (e *Engine) Search(ctx context.Context, cs ConstraintSet) (SearchResult, error) {
	started := time.Now()

	var offers []Offer
	err := backoff.Retry(ctx, e.retry, func(ctx context.Context, attempt int) error {
		var ferr error
		offers, ferr = e.catalogue.Search(ctx, Query{Constraints: cs, Limit: e.limit})
		return ferr
	})
	metrics.SearchDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.SearchFailures.Inc()
		return SearchResult{}, fmt.Errorf("catalogue search: %w", err)
	}

	matches := filterHard(offers, &cs)

	candidates := make([]Candidate, 0, len(matches))
	for _, off := range matches {
		candidates = append(candidates, score(off, &cs))
	}
	rank(candidates)

	result := SearchResult{
		Total:    len(candidates),
		Variance: variance(matches, &cs),
	}
	if len(candidates) > TopCandidates {
		candidates = candidates[:TopCandidates]
	}
	result.Candidates = candidates
	return result, nil
}

// filterHard drops offers violating hard constraints: price range, city, and
// brand/category when the user marked them required. The catalogue is
// expected to filter these too; re-applying keeps the engine correct with
// any Catalogue implementation.
func filterHard(offers []Offer, cs *ConstraintSet) []Offer {
	out := offers[:0:0]
	for _, off := range offers {
		if cs.Has(TopicPrice) {
			if cs.PriceMin != nil && off.Price < *cs.PriceMin {
				continue
			}
			if cs.PriceMax != nil && off.Price > *cs.PriceMax {
				continue
			}
		}
		if cs.Has(TopicCity) && !strings.EqualFold(off.City, cs.City) {
			continue
		}
		if cs.Has(TopicBrand) && cs.IsRequired(TopicBrand) && !strings.EqualFold(off.Brand, cs.Brand) {
			continue
		}
		if cs.Has(TopicCategory) && cs.IsRequired(TopicCategory) && !strings.EqualFold(off.Category, cs.Category) {
			continue
		}
		out = append(out, off)
	}
	return out
}

// score computes the weighted ranking score: lexical relevance of keywords
// against name and feature text, a seller-score bonus, and a bonus per
// satisfied soft constraint.
func score(off Offer, cs *ConstraintSet) Candidate {
	queryTokens := queryTokens(cs)

	nameRel := lexicalRelevance(queryTokens, off.ProductName)
	featRel := lexicalRelevance(queryTokens, off.Features)

	matched, softTotal := matchedSoft(off, cs)
	var softRel float64
	if softTotal > 0 {
		softRel = float64(len(matched)) / float64(softTotal)
	}

	s := nameRel*0.55 + featRel*0.15 + (off.SellerScore/5.0)*0.10 + softRel*0.20
	return Candidate{Offer: off, MatchScore: s, Matched: matched}
}

func queryTokens(cs *ConstraintSet) []string {
	var tokens []string
	if cs.Has(TopicKeywords) {
		tokens = append(tokens, cs.Keywords...)
	}
	if cs.Has(TopicAttributes) {
		keys := make([]string, 0, len(cs.Attributes))
		for k := range cs.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			tokens = append(tokens, cs.Attributes[k])
		}
	}
	return tokens
}

// lexicalRelevance measures token overlap between the query terms and the
// text, with a boost for whole-term substring hits. It stands in for the
// trigram similarity the SQL catalogue computes natively.
func lexicalRelevance(terms []string, text string) float64 {
	if len(terms) == 0 || text == "" {
		return 0
	}
	lower := strings.ToLower(text)
	textTokens := make(map[string]bool)
	for _, tok := range strings.Fields(lower) {
		textTokens[tok] = true
	}

	var hits float64
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		switch {
		case textTokens[term]:
			hits++
		case strings.Contains(lower, term):
			hits += 0.7
		}
	}
	return hits / float64(len(terms))
}

// matchedSoft returns the active soft constraints this offer satisfies and
// the number of active soft constraints overall. Soft constraints never
// reject a candidate; they only affect ranking.
func matchedSoft(off Offer, cs *ConstraintSet) (matched []Topic, total int) {
	check := func(t Topic, ok bool) {
		total++
		if ok {
			matched = append(matched, t)
		}
	}
	if cs.Has(TopicBrand) && !cs.IsRequired(TopicBrand) {
		check(TopicBrand, strings.EqualFold(off.Brand, cs.Brand))
	}
	if cs.Has(TopicCategory) && !cs.IsRequired(TopicCategory) {
		check(TopicCategory, strings.EqualFold(off.Category, cs.Category))
	}
	if cs.Has(TopicWarranty) {
		check(TopicWarranty, off.WarrantyMonths >= *cs.MinWarrantyMonths)
	}
	if cs.Has(TopicScore) {
		check(TopicScore, off.SellerScore >= *cs.MinSellerScore)
	}
	return matched, total
}

// rank orders candidates by score descending, ties broken by lower price,
// then higher seller score, then id, so results are fully deterministic.
func rank(candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.MatchScore != b.MatchScore {
			return a.MatchScore > b.MatchScore
		}
		if a.Price != b.Price {
			return a.Price < b.Price
		}
		if a.SellerScore != b.SellerScore {
			return a.SellerScore > b.SellerScore
		}
		return a.ID < b.ID
	})
}

// variance counts distinct values per unset structured attribute across all
// matches: price bucket, city, brand, warranty tier, score tier.
func variance(matches []Offer, cs *ConstraintSet) Variance {
	v := make(Variance)
	for _, t := range cs.UnsetTopics() {
		seen := make(map[string]bool)
		for _, off := range matches {
			seen[attributeBucket(t, off)] = true
		}
		v[t] = len(seen)
	}
	return v
}

func attributeBucket(t Topic, off Offer) string {
	switch t {
	case TopicPrice:
		return fmt.Sprintf("p%d", off.Price/PriceBucketSize)
	case TopicCity:
		return strings.ToLower(off.City)
	case TopicBrand:
		return strings.ToLower(off.Brand)
	case TopicWarranty:
		return warrantyTier(off.WarrantyMonths)
	case TopicScore:
		return fmt.Sprintf("s%d", int(off.SellerScore))
	}
	return ""
}

func warrantyTier(months int) string {
	switch {
	case months <= 0:
		return "none"
	case months <= 6:
		return "short"
	case months <= 12:
		return "standard"
	default:
		return "extended"
	}
}
