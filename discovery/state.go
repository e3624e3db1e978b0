package discovery

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxTurns is the hard ceiling on dialogue turns per conversation. Reaching
// it forces finalization regardless of remaining ambiguity.
const MaxTurns = 5

// MaxClarifyingQuestions caps the broad clarification questions asked before
// the planner is forced to present options.
const MaxClarifyingQuestions = 2

// Phase is the coordinator state machine position.
type Phase string

const (
	PhaseCollecting        Phase = "collecting"
	PhasePresentingOptions Phase = "presenting_options"
	PhaseAwaitingSelection Phase = "awaiting_selection"
	PhaseFinalized         Phase = "finalized"
)

// StopReason classifies how a conversation concluded.
type StopReason string

const (
	StopNone            StopReason = ""
	StopUserSelected    StopReason = "user_selected"
	StopConvergedToOne  StopReason = "converged_to_one"
	StopBudgetExhausted StopReason = "budget_exhausted"
	StopNoMatch         StopReason = "no_match"
)

// Conversation is the per-conversation dialogue state. All mutation happens
// under the state store's per-id lock.
type Conversation struct {
	ID          string        `json:"id" msgpack:"id"`
	TurnCount   int           `json:"turn_count" msgpack:"turn_count"`
	Phase       Phase         `json:"phase" msgpack:"phase"`
	Constraints ConstraintSet `json:"constraints" msgpack:"constraints"`

	AskedTopics map[Topic]bool `json:"asked_topics,omitempty" msgpack:"asked_topics,omitempty"`
	// QuestionsAsked counts broad clarifying questions; capped at
	// MaxClarifyingQuestions before options are forced.
	QuestionsAsked int `json:"questions_asked" msgpack:"questions_asked"`

	// Presented is the ordered candidate id list last shown to the user.
	Presented []string `json:"presented,omitempty" msgpack:"presented,omitempty"`
	// PresentedCandidates caches the shown candidates so a selection can be
	// confirmed without re-running search.
	PresentedCandidates []Candidate `json:"presented_candidates,omitempty" msgpack:"presented_candidates,omitempty"`

	StopReason       StopReason `json:"stop_reason,omitempty" msgpack:"stop_reason,omitempty"`
	FinalCandidateID string     `json:"final_candidate_id,omitempty" msgpack:"final_candidate_id,omitempty"`
	FinalMessage     string     `json:"final_message,omitempty" msgpack:"final_message,omitempty"`

	// Summary is a compact rolling description of the dialogue.
	Summary string `json:"summary,omitempty" msgpack:"summary,omitempty"`

	UpdatedAt time.Time `json:"updated_at" msgpack:"updated_at"`
}

func NewConversation(id string) *Conversation {
	return &Conversation{
		ID:          id,
		Phase:       PhaseCollecting,
		AskedTopics: make(map[Topic]bool),
		UpdatedAt:   time.Now().UTC(),
	}
}

// Terminal reports whether the conversation has concluded.
func (c *Conversation) Terminal() bool { return c.StopReason != StopNone }

// RemainingTurns returns how many turns are left under the budget.
func (c *Conversation) RemainingTurns() int {
	if left := MaxTurns - c.TurnCount; left > 0 {
		return left
	}
	return 0
}

// Clone returns a deep copy used for snapshot/rollback around a turn.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Constraints = c.Constraints.Clone()
	if c.AskedTopics != nil {
		out.AskedTopics = make(map[Topic]bool, len(c.AskedTopics))
		for k, v := range c.AskedTopics {
			out.AskedTopics[k] = v
		}
	}
	out.Presented = append([]string(nil), c.Presented...)
	out.PresentedCandidates = append([]Candidate(nil), c.PresentedCandidates...)
	return &out
}

// Snapshot serialises the conversation for export or the ws feed.
func (c *Conversation) Snapshot() ([]byte, error) {
	return msgpack.Marshal(c)
}

// RestoreConversation rebuilds a conversation from a Snapshot payload.
func RestoreConversation(payload []byte) (*Conversation, error) {
	var conv Conversation
	if err := msgpack.Unmarshal(payload, &conv); err != nil {
		return nil, err
	}
	if conv.AskedTopics == nil {
		conv.AskedTopics = make(map[Topic]bool)
	}
	return &conv, nil
}
