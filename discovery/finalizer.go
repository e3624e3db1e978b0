package discovery

import (
	"context"

	"github.com/nvakili/kashef/internal/metrics"
)

// searchWithRelaxation runs one scored retrieval and, when it comes back
// empty, walks RelaxationOrder dropping one constraint at a time until a
// step yields matches or the order is exhausted. Required and dismissed
// topics are never relaxed, so an all-required constraint set that matches
// nothing stays empty and becomes the explicit no-match terminal.
//
// The relaxation mutates the conversation's constraints: a dropped
// constraint stays dropped for the rest of the conversation.
func (c *Coordinator) searchWithRelaxation(ctx context.Context, cs *ConstraintSet) (SearchResult, []Topic, error) {
	result, err := c.engine.Search(ctx, *cs)
	if err != nil {
		return SearchResult{}, nil, err
	}
	if result.Total > 0 {
		return result, nil, nil
	}

	var relaxed []Topic
	for _, topic := range RelaxationOrder {
		if !cs.Relax(topic) {
			continue
		}
		relaxed = append(relaxed, topic)
		metrics.RelaxationsTotal.WithLabelValues(string(topic)).Inc()

		result, err = c.engine.Search(ctx, *cs)
		if err != nil {
			return SearchResult{}, relaxed, err
		}
		if result.Total > 0 {
			return result, relaxed, nil
		}
	}
	return result, relaxed, nil
}

// finalize concludes the conversation with exactly one candidate, or the
// explicit no-match terminal when even full relaxation of the optional
// constraints leaves the catalogue empty. It never fabricates an id.
func finalize(conv *Conversation, reason StopReason, cand Candidate, message string) {
	conv.StopReason = reason
	conv.FinalCandidateID = cand.ID
	conv.FinalMessage = message
	conv.Phase = PhaseFinalized
	metrics.TurnsTotal.WithLabelValues(string(reason)).Inc()
}

func finalizeNoMatch(conv *Conversation, notice string) {
	conv.StopReason = StopNoMatch
	conv.FinalCandidateID = ""
	conv.FinalMessage = notice + msgNoMatch
	conv.Phase = PhaseFinalized
	metrics.TurnsTotal.WithLabelValues(string(StopNoMatch)).Inc()
}
