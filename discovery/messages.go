package discovery

import (
	"fmt"
	"strings"
)

// Message templates for the assistant side of the dialogue. Kept together so
// the tone stays consistent and tests can assert on stable fragments.

var topicQuestions = map[Topic]string{
	TopicBrand:    "Is there a brand you prefer, or should I keep all brands in play?",
	TopicPrice:    "Roughly what budget do you have in mind for this?",
	TopicCity:     "Which city would you like the seller to ship from?",
	TopicWarranty: "Does warranty matter to you, and if so for how long?",
	TopicScore:    "Do you care about the seller's rating, e.g. 4 and above?",
	TopicCategory: "What kind of product is this, exactly?",
}

var topicLabels = map[Topic]string{
	TopicKeywords:   "search terms",
	TopicAttributes: "descriptive features",
	TopicPrice:      "the price range",
	TopicBrand:      "the brand filter",
	TopicCity:       "the city filter",
	TopicCategory:   "the category",
	TopicScore:      "the minimum seller rating",
	TopicWarranty:   "the warranty requirement",
}

const (
	msgTimeout       = "That took longer than expected; please try again or add a short detail."
	msgSearchFailed  = "I hit a problem reaching the catalogue just now. Please send your message again; nothing was lost."
	msgNoMatch       = "I could not find any offer matching your requirements, even after loosening the optional ones. Try changing a requirement and I will look again."
	msgSelectionHint = "Please reply with the number of one of the listed options (for example 1 or 2):"
)

func questionFor(t Topic) string {
	if q, ok := topicQuestions[t]; ok {
		return q
	}
	return "Could you tell me a bit more about what you are looking for?"
}

// relaxationNotice describes which constraints were loosened to keep the
// search alive, so the user understands why an off-spec option appears.
func relaxationNotice(relaxed []Topic) string {
	if len(relaxed) == 0 {
		return ""
	}
	labels := make([]string, 0, len(relaxed))
	for _, t := range relaxed {
		labels = append(labels, topicLabels[t])
	}
	return "To keep searching I loosened " + strings.Join(labels, ", ") + ". "
}

func renderOptions(candidates []Candidate) string {
	var b strings.Builder
	b.WriteString("I found a few close options; please pick one by number:\n")
	for i, cand := range candidates {
		b.WriteString(formatOptionLine(i+1, cand))
		if i < len(candidates)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func formatOptionLine(index int, c Candidate) string {
	brand := c.Brand
	if brand == "" {
		brand = "no brand"
	}
	return fmt.Sprintf("%d) %s — %s — %s — seller %.1f", index, c.ProductName, brand, formatPrice(c.Price), c.SellerScore)
}

func formatPrice(p int64) string {
	// Group thousands for readability.
	s := fmt.Sprintf("%d", p)
	if len(s) <= 3 {
		return s
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	return strings.Join(parts, ",")
}

func selectedMessage(c Candidate) string {
	return "Noted, I have locked in this option for you:\n" + formatOptionLine(1, c)
}

func convergedMessage(notice string, c Candidate) string {
	return notice + "This offer matches your requirements exactly:\n" + formatOptionLine(1, c)
}

func budgetExhaustedMessage(notice string, c Candidate, relaxed []Topic) string {
	msg := notice + "We have used all five turns, so I picked the best available option:\n" + formatOptionLine(1, c)
	if len(relaxed) > 0 {
		labels := make([]string, 0, len(relaxed))
		for _, t := range relaxed {
			labels = append(labels, topicLabels[t])
		}
		msg += "\nNot every wish could be honoured: " + strings.Join(labels, ", ") + "."
	}
	return msg
}
