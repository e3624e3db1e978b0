package discovery

import (
	"sort"
	"strings"
)

// Topic identifies one clarifiable aspect of the desired offer. Topics are
// the unit of dismissal, relaxation and clarification questions.
type Topic string

const (
	TopicKeywords   Topic = "keywords"
	TopicAttributes Topic = "attributes"
	TopicPrice      Topic = "price"
	TopicBrand      Topic = "brand"
	TopicCity       Topic = "city"
	TopicCategory   Topic = "category"
	TopicScore      Topic = "score"
	TopicWarranty   Topic = "warranty"
)

// RelaxationOrder is the fixed order in which constraints are dropped when a
// search comes back empty. Dismissed topics are skipped because they are
// already inactive; required topics are never relaxed.
var RelaxationOrder = []Topic{
	TopicKeywords,
	TopicAttributes,
	TopicPrice,
	TopicBrand,
	TopicCity,
	TopicCategory,
	TopicScore,
	TopicWarranty,
}

// ConstraintSet aggregates everything learned about the desired offer.
// Zero values mean "unset"; pointer fields distinguish unset from zero.
type ConstraintSet struct {
	PriceMin *int64 `json:"price_min,omitempty" msgpack:"price_min,omitempty"`
	PriceMax *int64 `json:"price_max,omitempty" msgpack:"price_max,omitempty"`

	Brand    string `json:"brand,omitempty" msgpack:"brand,omitempty"`
	Category string `json:"category,omitempty" msgpack:"category,omitempty"`
	City     string `json:"city,omitempty" msgpack:"city,omitempty"`

	// Required marks constraints the user stated as non-negotiable. Such
	// topics are filtered hard and never relaxed.
	Required map[Topic]bool `json:"required,omitempty" msgpack:"required,omitempty"`

	MinWarrantyMonths *int     `json:"min_warranty_months,omitempty" msgpack:"min_warranty_months,omitempty"`
	MinSellerScore    *float64 `json:"min_seller_score,omitempty" msgpack:"min_seller_score,omitempty"`

	// Keywords preserve first-seen order and are deduplicated.
	Keywords   []string          `json:"keywords,omitempty" msgpack:"keywords,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" msgpack:"attributes,omitempty"`

	// Dismissed topics were declared irrelevant by the user. Dismissal is
	// irreversible for the remainder of the conversation.
	Dismissed map[Topic]bool `json:"dismissed,omitempty" msgpack:"dismissed,omitempty"`
}

// Delta is the structured diff extracted from a single utterance.
type Delta struct {
	PriceMin *int64
	PriceMax *int64

	Brand    string
	Category string
	City     string

	// Require lists topics the utterance marked as hard requirements.
	Require []Topic

	MinWarrantyMonths *int
	MinSellerScore    *float64

	Keywords   []string
	Attributes map[string]string

	Dismiss []Topic

	Summary string
}

// Empty reports whether the delta carries no information at all.
func (d Delta) Empty() bool {
	return d.PriceMin == nil && d.PriceMax == nil &&
		d.Brand == "" && d.Category == "" && d.City == "" &&
		len(d.Require) == 0 &&
		d.MinWarrantyMonths == nil && d.MinSellerScore == nil &&
		len(d.Keywords) == 0 && len(d.Attributes) == 0 &&
		len(d.Dismiss) == 0 && d.Summary == ""
}

// Merge applies a delta to the constraint set. Scalar fields are overwritten,
// keywords are appended deduplicated, attributes are merged, dismissals are
// recorded irreversibly. Merge never removes an existing field; removal only
// happens through Relax.
func (c *ConstraintSet) Merge(d Delta) {
	if d.PriceMin != nil {
		v := *d.PriceMin
		c.PriceMin = &v
	}
	if d.PriceMax != nil {
		v := *d.PriceMax
		c.PriceMax = &v
	}
	if c.PriceMin != nil && c.PriceMax != nil && *c.PriceMin > *c.PriceMax {
		c.PriceMin, c.PriceMax = c.PriceMax, c.PriceMin
	}

	if b := strings.TrimSpace(d.Brand); b != "" {
		c.Brand = b
	}
	if cat := strings.TrimSpace(d.Category); cat != "" {
		c.Category = cat
	}
	if city := strings.TrimSpace(d.City); city != "" {
		c.City = city
	}

	if d.MinWarrantyMonths != nil {
		v := *d.MinWarrantyMonths
		c.MinWarrantyMonths = &v
	}
	if d.MinSellerScore != nil {
		v := *d.MinSellerScore
		c.MinSellerScore = &v
	}

	for _, kw := range d.Keywords {
		c.addKeyword(kw)
	}

	if len(d.Attributes) > 0 {
		if c.Attributes == nil {
			c.Attributes = make(map[string]string, len(d.Attributes))
		}
		for k, v := range d.Attributes {
			k, v = strings.TrimSpace(k), strings.TrimSpace(v)
			if k != "" && v != "" {
				c.Attributes[k] = v
			}
		}
	}

	for _, t := range d.Require {
		if c.Required == nil {
			c.Required = make(map[Topic]bool)
		}
		c.Required[t] = true
	}

	for _, t := range d.Dismiss {
		if c.Dismissed == nil {
			c.Dismissed = make(map[Topic]bool)
		}
		c.Dismissed[t] = true
	}
}

func (c *ConstraintSet) addKeyword(kw string) {
	kw = strings.TrimSpace(kw)
	if kw == "" {
		return
	}
	for _, existing := range c.Keywords {
		if strings.EqualFold(existing, kw) {
			return
		}
	}
	c.Keywords = append(c.Keywords, kw)
}

// IsDismissed reports whether the user declared the topic irrelevant.
func (c *ConstraintSet) IsDismissed(t Topic) bool { return c.Dismissed[t] }

// IsRequired reports whether the user marked the topic as a hard requirement.
func (c *ConstraintSet) IsRequired(t Topic) bool { return c.Required[t] }

// Has reports whether the topic carries an active (set, non-dismissed) value.
func (c *ConstraintSet) Has(t Topic) bool {
	if c.IsDismissed(t) {
		return false
	}
	switch t {
	case TopicKeywords:
		return len(c.Keywords) > 0
	case TopicAttributes:
		return len(c.Attributes) > 0
	case TopicPrice:
		return c.PriceMin != nil || c.PriceMax != nil
	case TopicBrand:
		return c.Brand != ""
	case TopicCity:
		return c.City != ""
	case TopicCategory:
		return c.Category != ""
	case TopicScore:
		return c.MinSellerScore != nil
	case TopicWarranty:
		return c.MinWarrantyMonths != nil
	}
	return false
}

// Relax drops the value held for the topic. It returns false when the topic
// is unset, dismissed or required, i.e. when relaxing it changes nothing.
func (c *ConstraintSet) Relax(t Topic) bool {
	if !c.Has(t) || c.IsRequired(t) {
		return false
	}
	switch t {
	case TopicKeywords:
		c.Keywords = nil
	case TopicAttributes:
		c.Attributes = nil
	case TopicPrice:
		c.PriceMin, c.PriceMax = nil, nil
	case TopicBrand:
		c.Brand = ""
	case TopicCity:
		c.City = ""
	case TopicCategory:
		c.Category = ""
	case TopicScore:
		c.MinSellerScore = nil
	case TopicWarranty:
		c.MinWarrantyMonths = nil
	}
	return true
}

// UnsetTopics returns the structured attributes that are neither set nor
// dismissed, in relaxation order. These are the askable clarification topics.
func (c *ConstraintSet) UnsetTopics() []Topic {
	var unset []Topic
	for _, t := range []Topic{TopicPrice, TopicCity, TopicBrand, TopicWarranty, TopicScore} {
		if !c.Has(t) && !c.IsDismissed(t) {
			unset = append(unset, t)
		}
	}
	return unset
}

// Clone returns a deep copy.
func (c *ConstraintSet) Clone() ConstraintSet {
	out := *c
	if c.PriceMin != nil {
		v := *c.PriceMin
		out.PriceMin = &v
	}
	if c.PriceMax != nil {
		v := *c.PriceMax
		out.PriceMax = &v
	}
	if c.MinWarrantyMonths != nil {
		v := *c.MinWarrantyMonths
		out.MinWarrantyMonths = &v
	}
	if c.MinSellerScore != nil {
		v := *c.MinSellerScore
		out.MinSellerScore = &v
	}
	out.Keywords = append([]string(nil), c.Keywords...)
	if c.Attributes != nil {
		out.Attributes = make(map[string]string, len(c.Attributes))
		for k, v := range c.Attributes {
			out.Attributes[k] = v
		}
	}
	if c.Required != nil {
		out.Required = make(map[Topic]bool, len(c.Required))
		for k, v := range c.Required {
			out.Required[k] = v
		}
	}
	if c.Dismissed != nil {
		out.Dismissed = make(map[Topic]bool, len(c.Dismissed))
		for k, v := range c.Dismissed {
			out.Dismissed[k] = v
		}
	}
	return out
}

// DismissedTopics returns the dismissed topics sorted for stable output.
func (c *ConstraintSet) DismissedTopics() []Topic {
	out := make([]Topic, 0, len(c.Dismissed))
	for t := range c.Dismissed {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
