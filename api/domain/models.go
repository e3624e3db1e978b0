package domain

import (
	"time"

	"github.com/nvakili/kashef/discovery"
)

// TurnRequest is the inbound body for POST /conversations/{id}/turns.
type TurnRequest struct {
	Message string `json:"message"`
}

// ConversationView is the read model returned by GET /conversations/{id}.
// It exposes the dialogue position without the internal candidate cache.
type ConversationView struct {
	ID               string                  `json:"id"`
	TurnCount        int                     `json:"turn_count"`
	RemainingTurns   int                     `json:"remaining_turns"`
	Phase            discovery.Phase         `json:"phase"`
	Constraints      discovery.ConstraintSet `json:"constraints"`
	Presented        []string                `json:"presented,omitempty"`
	StopReason       discovery.StopReason    `json:"stop_reason,omitempty"`
	FinalCandidateID string                  `json:"final_candidate_id,omitempty"`
	Summary          string                  `json:"summary,omitempty"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

func NewConversationView(conv *discovery.Conversation) ConversationView {
	return ConversationView{
		ID:               conv.ID,
		TurnCount:        conv.TurnCount,
		RemainingTurns:   conv.RemainingTurns(),
		Phase:            conv.Phase,
		Constraints:      conv.Constraints,
		Presented:        conv.Presented,
		StopReason:       conv.StopReason,
		FinalCandidateID: conv.FinalCandidateID,
		Summary:          conv.Summary,
		UpdatedAt:        conv.UpdatedAt,
	}
}
