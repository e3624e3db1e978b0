package discovery

import (
	"context"
	"errors"
	"sync"
)

// testOffers is the shared six-offer catalogue fixture. Scores and prices
// are arranged so the default ranking (seller score only, absent keywords)
// is off-6, off-1, off-5, off-4, off-2, off-3.
func testOffers() []Offer {
	return []Offer{
		{ID: "off-1", ProductID: "prod-1", ShopID: "shop-1", ProductName: "acme zeta 10", Brand: "acme", Category: "phone", City: "tehran", Price: 900_000, WarrantyMonths: 12, SellerScore: 4.5},
		{ID: "off-2", ProductID: "prod-2", ShopID: "shop-2", ProductName: "acme zeta 10 pro", Brand: "acme", Category: "phone", City: "tabriz", Price: 1_500_000, WarrantyMonths: 6, SellerScore: 4.0},
		{ID: "off-3", ProductID: "prod-3", ShopID: "shop-3", ProductName: "bolt nova", Brand: "bolt", Category: "phone", City: "tehran", Price: 800_000, WarrantyMonths: 0, SellerScore: 3.5},
		{ID: "off-4", ProductID: "prod-4", ShopID: "shop-4", ProductName: "bolt nova plus", Brand: "bolt", Category: "phone", City: "shiraz", Price: 1_200_000, WarrantyMonths: 12, SellerScore: 4.3},
		{ID: "off-5", ProductID: "prod-5", ShopID: "shop-5", ProductName: "acme zeta 9", Brand: "acme", Category: "phone", City: "tehran", Price: 700_000, WarrantyMonths: 3, SellerScore: 4.4},
		{ID: "off-6", ProductID: "prod-6", ShopID: "shop-6", ProductName: "cano x1", Brand: "cano", Category: "tablet", City: "mashhad", Price: 2_000_000, WarrantyMonths: 24, SellerScore: 4.9},
	}
}

var errCatalogueDown = errors.New("catalogue unavailable")

// flakyCatalogue fails its first failures calls, then delegates.
type flakyCatalogue struct {
	mu       sync.Mutex
	failures int
	calls    int
	inner    Catalogue
}

func (f *flakyCatalogue) Search(ctx context.Context, q Query) ([]Offer, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return nil, errCatalogueDown
	}
	return f.inner.Search(ctx, q)
}

func (f *flakyCatalogue) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// blockingCatalogue never answers before the context expires.
type blockingCatalogue struct{}

func (blockingCatalogue) Search(ctx context.Context, q Query) ([]Offer, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// mapExtractor returns a fixed delta per exact utterance; unknown utterances
// yield an empty delta. Safe for concurrent use.
type mapExtractor struct {
	deltas map[string]Delta
}

func (m mapExtractor) Extract(_ context.Context, utterance string, _ ConstraintSet) (Delta, error) {
	return m.deltas[utterance], nil
}

type failingExtractor struct{}

func (failingExtractor) Extract(context.Context, string, ConstraintSet) (Delta, error) {
	return Delta{}, errors.New("model endpoint unreachable")
}

func testCoordinator(deltas map[string]Delta, opts ...CoordinatorOption) (*Coordinator, *StateStore) {
	states := NewStateStore(0)
	engine := NewEngine(NewMemoryCatalogue(testOffers()))
	coord := NewCoordinator(states, engine, mapExtractor{deltas: deltas}, opts...)
	return coord, states
}
