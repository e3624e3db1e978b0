package discovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nvakili/kashef/internal/metrics"
	kotel "github.com/nvakili/kashef/pkg/otel"
)

const (
	// DefaultTurnTimeout bounds one turn end to end. On expiry the turn is
	// abandoned without mutating stored state.
	DefaultTurnTimeout = 25 * time.Second

	// DefaultIdempotencyWindow is how long a delivered final answer is
	// replayed verbatim for a retried identical message.
	DefaultIdempotencyWindow = time.Minute
)

// TurnResponse is the outbound payload for one turn. CandidateID is set only
// once the conversation has concluded.
type TurnResponse struct {
	ConversationID string      `json:"conversation_id" msgpack:"conversation_id"`
	Message        string      `json:"assistant_message" msgpack:"assistant_message"`
	CandidateID    string      `json:"candidate_id,omitempty" msgpack:"candidate_id,omitempty"`
	StopReason     StopReason  `json:"stop_reason,omitempty" msgpack:"stop_reason,omitempty"`
	Turn           int         `json:"turn" msgpack:"turn"`
	Options        []Candidate `json:"options,omitempty" msgpack:"options,omitempty"`
}

type completedTurn struct {
	normalized string
	resp       TurnResponse
	at         time.Time
}

// Coordinator owns the dialogue policy: it loads state, merges the extracted
// delta, searches, plans and responds, all under the conversation's lock.
type Coordinator struct {
	states    *StateStore
	engine    *Engine
	extractor Extractor

	turnTimeout time.Duration
	idemWindow  time.Duration

	completedMu sync.Mutex
	completed   map[string]completedTurn

	onTurn func(TurnResponse)
	tracer trace.Tracer
}

type CoordinatorOption func(*Coordinator)

func WithTurnTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.turnTimeout = d }
}

func WithIdempotencyWindow(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.idemWindow = d }
}

// WithTurnListener registers a callback invoked after every committed turn,
// e.g. to feed the websocket observer hub.
func WithTurnListener(fn func(TurnResponse)) CoordinatorOption {
	return func(c *Coordinator) { c.onTurn = fn }
}

func NewCoordinator(states *StateStore, engine *Engine, extractor Extractor, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		states:      states,
		engine:      engine,
		extractor:   extractor,
		turnTimeout: DefaultTurnTimeout,
		idemWindow:  DefaultIdempotencyWindow,
		completed:   make(map[string]completedTurn),
		tracer:      kotel.Tracer("kashef/discovery"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleTurn is the sole entry point for the router: one inbound user
// message in, one assistant reply out.
func (c *Coordinator) HandleTurn(ctx context.Context, conversationID, utterance string) (TurnResponse, error) {
	started := time.Now()
	ctx, span := c.tracer.Start(ctx, "discovery.turn",
		trace.WithAttributes(kotel.ConversationID(conversationID)))
	defer span.End()
	defer func() {
		metrics.TurnDuration.Observe(time.Since(started).Seconds())
	}()

	normalized := NormalizeText(utterance)
	if resp, ok := c.replayCompleted(conversationID, normalized); ok {
		span.SetAttributes(attribute.Bool("turn.replayed", true))
		return resp, nil
	}

	var resp TurnResponse
	err := c.states.WithLock(conversationID, func(conv *Conversation) error {
		if conv.Terminal() {
			// Terminal states are sticky: return the stored result verbatim
			// without re-running search or consuming budget.
			resp = c.respond(conv)
			metrics.TurnsTotal.WithLabelValues("repeat_terminal").Inc()
			return nil
		}

		work := conv.Clone()
		r, commit := c.runBounded(ctx, work, utterance, normalized)
		if commit {
			*conv = *work
		}
		resp = r
		return nil
	})
	if err != nil {
		return TurnResponse{}, err
	}

	span.SetAttributes(
		kotel.TurnNumber(resp.Turn),
		kotel.StopReason(string(resp.StopReason)),
	)

	if resp.StopReason != StopNone {
		c.rememberCompleted(conversationID, normalized, resp)
	}
	if c.onTurn != nil {
		c.onTurn(resp)
	}
	return resp, nil
}

// runBounded executes the turn under the turn timeout. On expiry the clone
// is discarded, so the stored state is exactly what it was before the turn.
func (c *Coordinator) runBounded(ctx context.Context, work *Conversation, utterance, normalized string) (TurnResponse, bool) {
	priorTurn := work.TurnCount
	convID := work.ID

	turnCtx, cancel := context.WithTimeout(ctx, c.turnTimeout)
	defer cancel()

	type outcome struct {
		resp   TurnResponse
		commit bool
	}
	done := make(chan outcome, 1)
	go func() {
		resp, commit := c.executeTurn(turnCtx, work, utterance, normalized)
		done <- outcome{resp, commit}
	}()

	select {
	case o := <-done:
		return o.resp, o.commit
	case <-turnCtx.Done():
		slog.Warn("turn timed out", "conversation_id", convID, "turn", priorTurn+1)
		metrics.TurnsTotal.WithLabelValues("timeout").Inc()
		return TurnResponse{
			ConversationID: convID,
			Message:        msgTimeout,
			Turn:           priorTurn,
		}, false
	}
}

func (c *Coordinator) executeTurn(ctx context.Context, work *Conversation, utterance, normalized string) (TurnResponse, bool) {
	work.TurnCount++
	work.UpdatedAt = time.Now().UTC()
	forced := work.TurnCount >= MaxTurns

	// Selection handling takes precedence when options were shown.
	if selecting := work.Phase == PhasePresentingOptions || work.Phase == PhaseAwaitingSelection; selecting && len(work.PresentedCandidates) > 0 {
		if cand, ok := parseSelection(normalized, work.PresentedCandidates); ok {
			finalize(work, StopUserSelected, cand, selectedMessage(cand))
			return c.respond(work), true
		}

		delta := c.extract(ctx, utterance, work)
		if !delta.structural() {
			return c.malformedSelection(work, forced), true
		}
		// The reply carried fresh constraints instead of a pick.
		work.Phase = PhaseCollecting
		return c.collectTurn(ctx, work, delta, forced)
	}

	delta := c.extract(ctx, utterance, work)
	return c.collectTurn(ctx, work, delta, forced)
}

// malformedSelection re-presents the same option list unchanged. The turn is
// consumed (the budget counts real clock turns) but asked topics do not
// advance. At the budget ceiling the top presented option is taken instead.
func (c *Coordinator) malformedSelection(work *Conversation, forced bool) TurnResponse {
	if forced {
		cand := work.PresentedCandidates[0]
		finalize(work, StopBudgetExhausted, cand, budgetExhaustedMessage("", cand, nil))
		return c.respond(work)
	}
	work.Phase = PhaseAwaitingSelection
	metrics.TurnsTotal.WithLabelValues("represent").Inc()
	return TurnResponse{
		ConversationID: work.ID,
		Message:        msgSelectionHint + "\n" + renderOptions(work.PresentedCandidates),
		Turn:           work.TurnCount,
		Options:        work.PresentedCandidates,
	}
}

func (c *Coordinator) collectTurn(ctx context.Context, work *Conversation, delta Delta, forced bool) (TurnResponse, bool) {
	work.Constraints.Merge(delta)
	if delta.Summary != "" {
		work.Summary = delta.Summary
	}

	result, relaxed, err := c.searchWithRelaxation(ctx, &work.Constraints)
	if err != nil {
		// The retry already happened inside the engine. Surface an apology
		// and roll back so the user's next attempt is not penalized.
		slog.Error("catalogue search failed", "conversation_id", work.ID, "error", err)
		metrics.TurnsTotal.WithLabelValues("search_failed").Inc()
		return TurnResponse{
			ConversationID: work.ID,
			Message:        msgSearchFailed,
			Turn:           work.TurnCount - 1,
		}, false
	}
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(kotel.SearchTotal(result.Total))
	if len(relaxed) > 0 {
		span.SetAttributes(kotel.RelaxedTopics(topicStrings(relaxed)))
	}
	notice := relaxationNotice(relaxed)

	if result.Total == 0 {
		finalizeNoMatch(work, notice)
		return c.respond(work), true
	}

	p := planTurn(work, result)

	if p.action == actionConverged {
		cand := p.candidates[0]
		finalize(work, StopConvergedToOne, cand, convergedMessage(notice, cand))
		return c.respond(work), true
	}
	if forced {
		cand := result.Candidates[0]
		finalize(work, StopBudgetExhausted, cand, budgetExhaustedMessage(notice, cand, relaxed))
		return c.respond(work), true
	}

	switch p.action {
	case actionPresent:
		work.Presented = candidateIDs(p.candidates)
		work.PresentedCandidates = p.candidates
		work.Phase = PhasePresentingOptions
		metrics.TurnsTotal.WithLabelValues("options").Inc()
		return TurnResponse{
			ConversationID: work.ID,
			Message:        notice + renderOptions(p.candidates),
			Turn:           work.TurnCount,
			Options:        p.candidates,
		}, true

	default: // actionAsk
		work.AskedTopics[p.topic] = true
		work.QuestionsAsked++
		work.Phase = PhaseCollecting
		metrics.TurnsTotal.WithLabelValues("question").Inc()
		return TurnResponse{
			ConversationID: work.ID,
			Message:        notice + questionFor(p.topic),
			Turn:           work.TurnCount,
		}, true
	}
}

func (c *Coordinator) extract(ctx context.Context, utterance string, work *Conversation) Delta {
	delta, err := c.extractor.Extract(ctx, utterance, work.Constraints)
	if err != nil {
		// Extraction failure never aborts the conversation.
		metrics.ExtractorFailures.Inc()
		slog.Warn("extractor failed, proceeding with empty delta",
			"conversation_id", work.ID, "error", err)
		return Delta{}
	}
	return delta
}

func (c *Coordinator) respond(conv *Conversation) TurnResponse {
	return TurnResponse{
		ConversationID: conv.ID,
		Message:        conv.FinalMessage,
		CandidateID:    conv.FinalCandidateID,
		StopReason:     conv.StopReason,
		Turn:           conv.TurnCount,
	}
}

// structural reports whether the delta carries anything beyond keywords and
// a summary. While awaiting a selection, stray keywords in a garbled reply
// do not count as new constraints; scalar fields, dismissals and
// requirement flags do.
func (d Delta) structural() bool {
	return d.PriceMin != nil || d.PriceMax != nil ||
		d.Brand != "" || d.Category != "" || d.City != "" ||
		d.MinWarrantyMonths != nil || d.MinSellerScore != nil ||
		len(d.Attributes) > 0 || len(d.Dismiss) > 0 || len(d.Require) > 0
}

func (c *Coordinator) replayCompleted(conversationID, normalized string) (TurnResponse, bool) {
	c.completedMu.Lock()
	defer c.completedMu.Unlock()
	rec, ok := c.completed[conversationID]
	if !ok {
		return TurnResponse{}, false
	}
	if time.Since(rec.at) > c.idemWindow {
		delete(c.completed, conversationID)
		return TurnResponse{}, false
	}
	if rec.normalized == "" || rec.normalized != normalized {
		return TurnResponse{}, false
	}
	metrics.TurnsTotal.WithLabelValues("replayed").Inc()
	return rec.resp, true
}

func (c *Coordinator) rememberCompleted(conversationID, normalized string, resp TurnResponse) {
	c.completedMu.Lock()
	defer c.completedMu.Unlock()
	c.completed[conversationID] = completedTurn{
		normalized: normalized,
		resp:       resp,
		at:         time.Now(),
	}
}
