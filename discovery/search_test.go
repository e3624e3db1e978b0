package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func searchIDs(result SearchResult) []string {
	return candidateIDs(result.Candidates)
}

func TestFilterHardPriceAndCity(t *testing.T) {
	var cs ConstraintSet
	cs.Merge(Delta{PriceMin: i64(750_000), PriceMax: i64(1_000_000), City: "Tehran"})

	out := filterHard(testOffers(), &cs)

	require.Len(t, out, 2)
	assert.Equal(t, "off-1", out[0].ID)
	assert.Equal(t, "off-3", out[1].ID)
}

func TestFilterHardBrandOnlyWhenRequired(t *testing.T) {
	var soft ConstraintSet
	soft.Merge(Delta{Brand: "acme"})
	assert.Len(t, filterHard(testOffers(), &soft), 6, "soft brand never rejects")

	var hard ConstraintSet
	hard.Merge(Delta{Brand: "acme", Require: []Topic{TopicBrand}})
	out := filterHard(testOffers(), &hard)
	require.Len(t, out, 3)
	for _, off := range out {
		assert.Equal(t, "acme", off.Brand)
	}
}

func TestEngineSearchRanksDeterministically(t *testing.T) {
	engine := NewEngine(NewMemoryCatalogue(testOffers()))

	result, err := engine.Search(context.Background(), ConstraintSet{})
	require.NoError(t, err)

	assert.Equal(t, 6, result.Total)
	assert.Equal(t, []string{"off-6", "off-1", "off-5", "off-4", "off-2"}, searchIDs(result),
		"ranked by seller score, capped at five")
}

func TestEngineSearchTiesBreakByPriceThenID(t *testing.T) {
	offers := []Offer{
		{ID: "off-b", ProductName: "same", Price: 500, SellerScore: 4.0},
		{ID: "off-a", ProductName: "same", Price: 500, SellerScore: 4.0},
		{ID: "off-c", ProductName: "same", Price: 300, SellerScore: 4.0},
	}
	engine := NewEngine(NewMemoryCatalogue(offers))

	result, err := engine.Search(context.Background(), ConstraintSet{})
	require.NoError(t, err)
	assert.Equal(t, []string{"off-c", "off-a", "off-b"}, searchIDs(result))
}

func TestEngineSearchSoftConstraintsBoost(t *testing.T) {
	var cs ConstraintSet
	cs.Merge(Delta{Brand: "bolt", MinWarrantyMonths: iptr(12)})

	engine := NewEngine(NewMemoryCatalogue(testOffers()))
	result, err := engine.Search(context.Background(), cs)
	require.NoError(t, err)

	require.Equal(t, 6, result.Total, "soft constraints keep everything in play")
	assert.Equal(t, "off-4", result.Candidates[0].ID, "only offer matching both soft constraints")
	assert.ElementsMatch(t, []Topic{TopicBrand, TopicWarranty}, result.Candidates[0].Matched)
}

func TestEngineSearchKeywordRelevance(t *testing.T) {
	var cs ConstraintSet
	cs.Merge(Delta{Keywords: []string{"nova"}})

	engine := NewEngine(NewMemoryCatalogue(testOffers()))
	result, err := engine.Search(context.Background(), cs)
	require.NoError(t, err)

	assert.Equal(t, "off-4", result.Candidates[0].ID, "keyword hit plus higher seller score wins")
	assert.Equal(t, "off-3", result.Candidates[1].ID)
}

func TestVarianceBuckets(t *testing.T) {
	engine := NewEngine(NewMemoryCatalogue(testOffers()))
	result, err := engine.Search(context.Background(), ConstraintSet{})
	require.NoError(t, err)

	assert.Equal(t, 4, result.Variance[TopicPrice])
	assert.Equal(t, 4, result.Variance[TopicCity])
	assert.Equal(t, 3, result.Variance[TopicBrand])
	assert.Equal(t, 4, result.Variance[TopicWarranty])
	assert.Equal(t, 2, result.Variance[TopicScore])
}

func TestVarianceSkipsSetTopics(t *testing.T) {
	var cs ConstraintSet
	cs.Merge(Delta{City: "tehran"})

	engine := NewEngine(NewMemoryCatalogue(testOffers()))
	result, err := engine.Search(context.Background(), cs)
	require.NoError(t, err)

	_, ok := result.Variance[TopicCity]
	assert.False(t, ok, "a set topic is not askable")
}

func TestEngineRetriesOnceOnFailure(t *testing.T) {
	flaky := &flakyCatalogue{failures: 1, inner: NewMemoryCatalogue(testOffers())}
	engine := NewEngine(flaky)

	result, err := engine.Search(context.Background(), ConstraintSet{})
	require.NoError(t, err)
	assert.Equal(t, 6, result.Total)
	assert.Equal(t, 2, flaky.callCount())
}

func TestEngineSurfacesPersistentFailure(t *testing.T) {
	flaky := &flakyCatalogue{failures: 10, inner: NewMemoryCatalogue(testOffers())}
	engine := NewEngine(flaky)

	_, err := engine.Search(context.Background(), ConstraintSet{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errCatalogueDown)
	assert.Equal(t, 2, flaky.callCount(), "one retry only")
}

func TestWarrantyTiers(t *testing.T) {
	assert.Equal(t, "none", warrantyTier(0))
	assert.Equal(t, "short", warrantyTier(6))
	assert.Equal(t, "standard", warrantyTier(12))
	assert.Equal(t, "extended", warrantyTier(24))
}
