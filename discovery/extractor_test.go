package discovery

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLexicon() Lexicon {
	return Lexicon{
		Brands:     []string{"acme", "bolt", "cano"},
		Cities:     []string{"tehran", "tabriz", "shiraz", "mashhad"},
		Categories: []string{"phone", "tablet", "laptop"},
	}
}

func extract(t *testing.T, utterance string) Delta {
	t.Helper()
	d, err := NewRuleExtractor(testLexicon()).Extract(context.Background(), utterance, ConstraintSet{})
	require.NoError(t, err)
	return d
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "123 abc", NormalizeText("۱۲۳  ABC"))
	assert.Equal(t, "456", NormalizeText("٤٥٦"))
	assert.Equal(t, "a b c", NormalizeText("  a\tb\n c "))
}

func TestExtractPriceUpperBound(t *testing.T) {
	d := extract(t, "I want an Acme phone under 2 million in Tehran")

	require.NotNil(t, d.PriceMax)
	assert.Equal(t, int64(2_000_000), *d.PriceMax)
	assert.Nil(t, d.PriceMin)
	assert.Equal(t, "acme", d.Brand)
	assert.Equal(t, "tehran", d.City)
	assert.Equal(t, "phone", d.Category)
	assert.Empty(t, d.Keywords, "bound words and matched vocabulary are not keywords")
}

func TestExtractPriceRangeSharesUnit(t *testing.T) {
	d := extract(t, "somewhere between 1 to 2 million")

	require.NotNil(t, d.PriceMin)
	require.NotNil(t, d.PriceMax)
	assert.Equal(t, int64(1_000_000), *d.PriceMin)
	assert.Equal(t, int64(2_000_000), *d.PriceMax)
}

func TestExtractPriceLowerBound(t *testing.T) {
	d := extract(t, "at least 1.5 million please")

	require.NotNil(t, d.PriceMin)
	assert.Equal(t, int64(1_500_000), *d.PriceMin)
}

func TestExtractWarranty(t *testing.T) {
	d := extract(t, "it must have 18 months warranty")
	require.NotNil(t, d.MinWarrantyMonths)
	assert.Equal(t, 18, *d.MinWarrantyMonths)
	assert.Contains(t, d.Require, TopicWarranty)

	d = extract(t, "with 2 years warranty")
	require.NotNil(t, d.MinWarrantyMonths)
	assert.Equal(t, 24, *d.MinWarrantyMonths)

	d = extract(t, "something with warranty")
	require.NotNil(t, d.MinWarrantyMonths)
	assert.Equal(t, 1, *d.MinWarrantyMonths)
}

func TestExtractSellerScore(t *testing.T) {
	d := extract(t, "seller rating at least 4.5")
	require.NotNil(t, d.MinSellerScore)
	assert.Equal(t, 4.5, *d.MinSellerScore)

	d = extract(t, "from a reputable seller")
	require.NotNil(t, d.MinSellerScore)
	assert.Equal(t, 4.0, *d.MinSellerScore)
}

func TestExtractAttributes(t *testing.T) {
	d := extract(t, "colour: black, size large")

	assert.Equal(t, "black", d.Attributes["color"])
	assert.Equal(t, "large", d.Attributes["size"])
}

func TestExtractDismissals(t *testing.T) {
	d := extract(t, "any brand is fine, and price doesn't matter")

	assert.Contains(t, d.Dismiss, TopicBrand)
	assert.Contains(t, d.Dismiss, TopicPrice)
}

func TestExtractStrongPreference(t *testing.T) {
	d := extract(t, "it must be acme, nothing else")

	assert.Equal(t, "acme", d.Brand)
	assert.Contains(t, d.Require, TopicBrand)
}

func TestExtractKeywordsSkipKnown(t *testing.T) {
	current := ConstraintSet{Keywords: []string{"gaming"}}
	d, err := NewRuleExtractor(testLexicon()).Extract(context.Background(), "a gaming headset", current)
	require.NoError(t, err)

	assert.Equal(t, []string{"headset"}, d.Keywords)
}

func TestExtractEmptyUtterance(t *testing.T) {
	d := extract(t, "   ")
	assert.True(t, d.Empty())
}

func TestMatchLexiconPrefersLongestEntry(t *testing.T) {
	entries := []string{"galaxy", "galaxy tab"}
	assert.Equal(t, "galaxy tab", matchLexicon("i want a galaxy tab", entries))
	assert.Equal(t, "galaxy", matchLexicon("a galaxy phone", entries))
	assert.Equal(t, "", matchLexicon("galaxybrain ideas", entries), "whole words only")
}

func TestSummarizeCapsLength(t *testing.T) {
	long := strings.Repeat("word ", 100)
	s := summarize(long)
	assert.LessOrEqual(t, len([]rune(s)), summaryLimit)
	assert.True(t, strings.HasSuffix(s, "…"))

	assert.Equal(t, "short message", summarize("  short   message "))
}
