package discovery

import (
	"regexp"
	"strconv"
	"strings"
)

// The planner decides, per turn, whether to ask a clarifying question,
// present an option list, or hand the conversation to the finalizer.

type plannedAction int

const (
	actionAsk plannedAction = iota
	actionPresent
	actionConverged
)

type plan struct {
	action     plannedAction
	topic      Topic // set for actionAsk
	candidates []Candidate
}

// askPriority breaks variance ties deterministically.
var askPriority = []Topic{TopicBrand, TopicPrice, TopicCity, TopicWarranty, TopicScore}

var (
	bareIndexRe    = regexp.MustCompile(`^(\d{1,2})$`)
	ordinalIndexRe = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)\b`)
	pickIndexRe    = regexp.MustCompile(`\b(?:option|number)\s*#?\s*(\d{1,2})\b`)
)

var ordinalWords = map[string]int{
	"first":  1,
	"second": 2,
	"third":  3,
	"fourth": 4,
	"fifth":  5,
}

// parseSelection matches a user reply against the presented candidates: a
// 1-based index, an offer id, or a shop id. The utterance must already be
// normalized.
func parseSelection(normalized string, presented []Candidate) (Candidate, bool) {
	if len(presented) == 0 {
		return Candidate{}, false
	}
	for _, cand := range presented {
		if cand.ID != "" && strings.Contains(normalized, strings.ToLower(cand.ID)) {
			return cand, true
		}
		if cand.ShopID != "" && strings.Contains(normalized, strings.ToLower(cand.ShopID)) {
			return cand, true
		}
	}
	if idx, ok := selectionIndex(normalized); ok && idx >= 1 && idx <= len(presented) {
		return presented[idx-1], true
	}
	return Candidate{}, false
}

// selectionIndex reads an explicit 1-based pick out of the reply. A digit
// counts only when the whole reply is that number, or it carries pick or
// ordinal phrasing; numbers embedded in constraint phrases ("under 2
// million") are not selections.
func selectionIndex(normalized string) (int, bool) {
	for _, re := range []*regexp.Regexp{bareIndexRe, ordinalIndexRe, pickIndexRe} {
		if m := re.FindStringSubmatch(normalized); m != nil {
			if idx, err := strconv.Atoi(m[1]); err == nil {
				return idx, true
			}
		}
	}
	for _, word := range strings.Fields(normalized) {
		if idx, ok := ordinalWords[word]; ok {
			return idx, true
		}
	}
	return 0, false
}

// planTurn decides the next move for a non-empty search result.
func planTurn(conv *Conversation, result SearchResult) plan {
	if result.Total == 1 {
		return plan{action: actionConverged, candidates: result.Candidates}
	}

	ids := candidateIDs(result.Candidates)
	if result.Total <= TopCandidates && !sameList(conv.Presented, ids) {
		return plan{action: actionPresent, candidates: result.Candidates}
	}

	if conv.QuestionsAsked < MaxClarifyingQuestions {
		if topic, ok := nextQuestionTopic(conv, result.Variance); ok {
			return plan{action: actionAsk, topic: topic, candidates: result.Candidates}
		}
	}

	// Out of questions (or nothing left to ask): force a presentation of the
	// top-ranked candidates regardless of remaining ambiguity.
	return plan{action: actionPresent, candidates: result.Candidates}
}

// nextQuestionTopic picks the unset, non-dismissed attribute with the
// highest observed variance that has not been asked yet, breaking ties in a
// fixed order.
func nextQuestionTopic(conv *Conversation, v Variance) (Topic, bool) {
	best := Topic("")
	bestCount := 1 // a single distinct value cannot differentiate anything
	for _, t := range askPriority {
		count, ok := v[t]
		if !ok || conv.AskedTopics[t] || conv.Constraints.IsDismissed(t) {
			continue
		}
		if count > bestCount {
			best, bestCount = t, count
		}
	}
	return best, best != ""
}

func topicStrings(topics []Topic) []string {
	out := make([]string, len(topics))
	for i, t := range topics {
		out[i] = string(t)
	}
	return out
}

func candidateIDs(candidates []Candidate) []string {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	return ids
}

func sameList(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return len(a) > 0
}
