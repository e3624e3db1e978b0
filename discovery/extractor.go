package discovery

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// Extractor turns a free-text utterance into a constraint delta. It is an
// external collaborator from the coordinator's point of view: a failing
// extractor degrades to an empty delta, never to an aborted turn.
type Extractor interface {
	Extract(ctx context.Context, utterance string, current ConstraintSet) (Delta, error)
}

// easternDigits maps Persian and Arabic-Indic numerals to ASCII.
var easternDigits = strings.NewReplacer(
	"۰", "0", "۱", "1", "۲", "2", "۳", "3", "۴", "4",
	"۵", "5", "۶", "6", "۷", "7", "۸", "8", "۹", "9",
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
	"،", ",", "؛", ",",
)

// NormalizeText lower-cases, converts eastern numerals and collapses
// whitespace so downstream matching sees one canonical form.
func NormalizeText(s string) string {
	s = easternDigits.Replace(s)
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), " ")
}

var (
	priceRangeRe  = regexp.MustCompile(`(\d[\d,]*(?:\.\d+)?)\s*(million|mln|m|thousand|k)?\s*(?:to|-|–|till|until)\s*(\d[\d,]*(?:\.\d+)?)\s*(million|mln|m|thousand|k)?`)
	priceMaxRe    = regexp.MustCompile(`(?:under|below|at most|up to|cheaper than|less than|max(?:imum)?)\s*(\d[\d,]*(?:\.\d+)?)\s*(million|mln|m|thousand|k)?`)
	priceMinRe    = regexp.MustCompile(`(?:over|above|at least|more than|min(?:imum)?)\s*(\d[\d,]*(?:\.\d+)?)\s*(million|mln|m|thousand|k)?\b`)
	warrantyDurRe = regexp.MustCompile(`(\d+)\s*(month|year)s?\s+(?:of\s+)?warranty`)
	scoreRe       = regexp.MustCompile(`(?:score|rating)\s*(?:of|above|at least|over)?\s*([0-5](?:\.\d)?)`)
	attributeRe   = regexp.MustCompile(`(color|colour|material|size)\s*[:=]?\s*([a-z\x{0600}-\x{06ff}]+)`)
	tokenRe       = regexp.MustCompile(`[a-z0-9\x{0600}-\x{06ff}]+`)
)

// dismissPhrases map "don't care" statements to the dismissed topic.
var dismissPhrases = map[Topic][]string{
	TopicPrice:    {"price doesn't matter", "price does not matter", "any price", "no budget limit"},
	TopicBrand:    {"brand doesn't matter", "brand does not matter", "any brand", "no brand preference"},
	TopicCity:     {"city doesn't matter", "city does not matter", "any city", "anywhere"},
	TopicCategory: {"category doesn't matter", "any category"},
	TopicWarranty: {"warranty doesn't matter", "no warranty needed", "without warranty is fine"},
	TopicScore:    {"score doesn't matter", "rating doesn't matter", "any seller"},
}

var keywordStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "i": true, "im": true, "i'm": true,
	"want": true, "need": true, "looking": true, "for": true, "please": true,
	"hello": true, "hi": true, "would": true, "like": true, "me": true,
	"buy": true, "something": true, "and": true, "or": true, "with": true,
	"of": true, "in": true, "from": true, "to": true, "that": true,
	"is": true, "it": true, "my": true, "preferably": true, "can": true,
	"you": true, "find": true, "show": true, "some": true, "good": true,
	"best": true, "thanks": true, "thank": true, "month": true,
	"months": true, "year": true, "years": true, "warranty": true,
	"rating": true, "score": true, "seller": true, "color": true,
	"colour": true, "material": true, "size": true,
}

// Lexicon supplies the closed vocabularies the rule extractor matches
// against. In the served system it is derived from the catalogue's distinct
// brand/city/category values at startup.
type Lexicon struct {
	Brands     []string
	Cities     []string
	Categories []string
}

// RuleExtractor is a deterministic pattern-based extractor. It mirrors the
// behaviour of the LLM extractor closely enough for tests and for degraded
// operation when no model endpoint is configured.
type RuleExtractor struct {
	lexicon Lexicon
}

func NewRuleExtractor(lex Lexicon) *RuleExtractor {
	return &RuleExtractor{lexicon: lex}
}

func (e *RuleExtractor) Extract(_ context.Context, utterance string, current ConstraintSet) (Delta, error) {
	text := NormalizeText(utterance)
	if text == "" {
		return Delta{}, nil
	}

	var d Delta

	for topic, phrases := range dismissPhrases {
		for _, p := range phrases {
			if strings.Contains(text, p) {
				d.Dismiss = append(d.Dismiss, topic)
				break
			}
		}
	}

	consumed := e.parsePrice(text, &d)
	e.parseWarranty(text, &d)
	e.parseScore(text, &d)
	e.parseAttributes(text, &d)

	matchedLexicon := make(map[string]bool)
	if brand := matchLexicon(text, e.lexicon.Brands); brand != "" {
		d.Brand = brand
		matchedLexicon[strings.ToLower(brand)] = true
		if strongPreference(text, brand) {
			d.Require = append(d.Require, TopicBrand)
		}
	}
	if city := matchLexicon(text, e.lexicon.Cities); city != "" {
		d.City = city
		matchedLexicon[strings.ToLower(city)] = true
	}
	if cat := matchLexicon(text, e.lexicon.Categories); cat != "" {
		d.Category = cat
		matchedLexicon[strings.ToLower(cat)] = true
		if strongPreference(text, cat) {
			d.Require = append(d.Require, TopicCategory)
		}
	}

	for _, tok := range tokenRe.FindAllString(text, -1) {
		if len(tok) < 3 || keywordStopwords[tok] || matchedLexicon[tok] || consumed[tok] {
			continue
		}
		if _, err := strconv.Atoi(strings.ReplaceAll(tok, ",", "")); err == nil {
			continue
		}
		if alreadyKnown(current.Keywords, tok) {
			continue
		}
		d.Keywords = append(d.Keywords, tok)
	}

	d.Summary = summarize(utterance)
	return d, nil
}

// parsePrice extracts a range or a one-sided bound. It returns the tokens it
// consumed so they are not recycled as keywords.
func (e *RuleExtractor) parsePrice(text string, d *Delta) map[string]bool {
	consumed := map[string]bool{
		"million": true, "mln": true, "thousand": true,
		"toman": true, "tomans": true, "rial": true, "rials": true,
		"usd": true, "dollars": true,
		"under": true, "below": true, "over": true, "above": true,
		"least": true, "most": true, "than": true, "about": true,
		"around": true, "between": true, "cheaper": true, "less": true,
		"more": true, "max": true, "maximum": true, "min": true,
		"minimum": true, "budget": true, "price": true,
	}

	if m := priceRangeRe.FindStringSubmatch(text); m != nil {
		lowUnit, highUnit := m[2], m[4]
		// "1 to 2 million" shares the trailing unit across both bounds.
		if lowUnit == "" && highUnit != "" {
			lowUnit = highUnit
		}
		low := parseAmount(m[1], lowUnit)
		high := parseAmount(m[3], highUnit)
		if low > 0 && high > 0 {
			if low > high {
				low, high = high, low
			}
			d.PriceMin, d.PriceMax = &low, &high
			return consumed
		}
	}
	if m := priceMaxRe.FindStringSubmatch(text); m != nil {
		if v := parseAmount(m[1], m[2]); plausiblePrice(v) {
			d.PriceMax = &v
		}
	}
	if m := priceMinRe.FindStringSubmatch(text); m != nil {
		if v := parseAmount(m[1], m[2]); plausiblePrice(v) {
			d.PriceMin = &v
		}
	}
	return consumed
}

// plausiblePrice rejects tiny unitless amounts, which usually belong to a
// rating or a count rather than a price.
func plausiblePrice(v int64) bool { return v >= 1000 }

func (e *RuleExtractor) parseWarranty(text string, d *Delta) {
	if m := warrantyDurRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			if m[2] == "year" {
				n *= 12
			}
			d.MinWarrantyMonths = &n
			if strings.Contains(text, "must") {
				d.Require = append(d.Require, TopicWarranty)
			}
			return
		}
	}
	if strings.Contains(text, "with warranty") || strings.Contains(text, "warranty required") || strings.Contains(text, "has warranty") {
		one := 1
		d.MinWarrantyMonths = &one
	}
}

func (e *RuleExtractor) parseScore(text string, d *Delta) {
	if m := scoreRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			d.MinSellerScore = &v
			return
		}
	}
	if strings.Contains(text, "reputable seller") || strings.Contains(text, "trusted seller") || strings.Contains(text, "high rated") {
		v := 4.0
		d.MinSellerScore = &v
	}
}

func (e *RuleExtractor) parseAttributes(text string, d *Delta) {
	for _, m := range attributeRe.FindAllStringSubmatch(text, -1) {
		name, value := m[1], m[2]
		if name == "colour" {
			name = "color"
		}
		if d.Attributes == nil {
			d.Attributes = make(map[string]string)
		}
		d.Attributes[name] = value
	}
}

func parseAmount(raw, unit string) int64 {
	raw = strings.ReplaceAll(raw, ",", "")
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 {
		return 0
	}
	switch unit {
	case "million", "mln", "m":
		f *= 1_000_000
	case "thousand", "k":
		f *= 1_000
	}
	return int64(f)
}

// matchLexicon returns the first lexicon entry appearing in the text as a
// whole word, preferring longer entries so "galaxy tab" wins over "galaxy".
func matchLexicon(text string, entries []string) string {
	best := ""
	for _, entry := range entries {
		lower := strings.ToLower(strings.TrimSpace(entry))
		if lower == "" || len(lower) < len(best) {
			continue
		}
		if containsWord(text, lower) {
			best = entry
		}
	}
	return best
}

func containsWord(text, word string) bool {
	idx := strings.Index(text, word)
	for idx >= 0 {
		beforeOK := idx == 0 || !isWordChar(rune(text[idx-1]))
		end := idx + len(word)
		afterOK := end >= len(text) || !isWordChar(rune(text[end]))
		if beforeOK && afterOK {
			return true
		}
		next := strings.Index(text[idx+1:], word)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

func isWordChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

// strongPreference detects "must"/"only" statements tied to a matched value.
func strongPreference(text, value string) bool {
	lower := strings.ToLower(value)
	return strings.Contains(text, "must be "+lower) ||
		strings.Contains(text, "only "+lower) ||
		strings.Contains(text, lower+" only") ||
		(strings.Contains(text, "must") && strings.Contains(text, lower))
}

func alreadyKnown(keywords []string, token string) bool {
	for _, kw := range keywords {
		if strings.EqualFold(kw, token) {
			return true
		}
	}
	return false
}

const summaryLimit = 200

func summarize(utterance string) string {
	s := strings.Join(strings.Fields(utterance), " ")
	runes := []rune(s)
	if len(runes) <= summaryLimit {
		return s
	}
	return strings.TrimSpace(string(runes[:summaryLimit-1])) + "…"
}
