package discovery

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleTurnConvergesToSingleMatch(t *testing.T) {
	coord, _ := testCoordinator(map[string]Delta{
		"an acme from tabriz": {Brand: "acme", City: "tabriz"},
	})

	resp, err := coord.HandleTurn(context.Background(), "conv-1", "an acme from tabriz")
	require.NoError(t, err)

	assert.Equal(t, StopConvergedToOne, resp.StopReason)
	assert.Equal(t, "off-2", resp.CandidateID)
	assert.Equal(t, 1, resp.Turn)
	assert.Contains(t, resp.Message, "matches your requirements exactly")
}

func TestHandleTurnPresentsThenAcceptsSelection(t *testing.T) {
	coord, states := testCoordinator(map[string]Delta{
		"something in tehran": {City: "tehran"},
	})
	ctx := context.Background()

	resp, err := coord.HandleTurn(ctx, "conv-1", "something in tehran")
	require.NoError(t, err)
	assert.Empty(t, resp.StopReason)
	assert.Equal(t, 1, resp.Turn)
	require.Len(t, resp.Options, 3)
	assert.Equal(t, "off-1", resp.Options[0].ID, "ranked by seller score")
	assert.Contains(t, resp.Message, "pick one by number")

	conv, ok := states.Get("conv-1")
	require.True(t, ok)
	assert.Equal(t, PhasePresentingOptions, conv.Phase)
	assert.Equal(t, []string{"off-1", "off-5", "off-3"}, conv.Presented)

	resp, err = coord.HandleTurn(ctx, "conv-1", "2")
	require.NoError(t, err)
	assert.Equal(t, StopUserSelected, resp.StopReason)
	assert.Equal(t, "off-5", resp.CandidateID)
	assert.Equal(t, 2, resp.Turn)
}

func TestHandleTurnMalformedSelectionRepresents(t *testing.T) {
	coord, states := testCoordinator(map[string]Delta{
		"something in tehran": {City: "tehran"},
	})
	ctx := context.Background()

	_, err := coord.HandleTurn(ctx, "conv-1", "something in tehran")
	require.NoError(t, err)

	resp, err := coord.HandleTurn(ctx, "conv-1", "hmm not sure honestly")
	require.NoError(t, err)
	assert.Empty(t, resp.StopReason)
	assert.Equal(t, 2, resp.Turn, "a garbled reply still consumes a turn")
	assert.Contains(t, resp.Message, msgSelectionHint)
	require.Len(t, resp.Options, 3)

	conv, ok := states.Get("conv-1")
	require.True(t, ok)
	assert.Equal(t, PhaseAwaitingSelection, conv.Phase)
	assert.Empty(t, conv.AskedTopics, "asked topics do not advance on a garbled reply")

	resp, err = coord.HandleTurn(ctx, "conv-1", "1")
	require.NoError(t, err)
	assert.Equal(t, StopUserSelected, resp.StopReason)
	assert.Equal(t, "off-1", resp.CandidateID)
}

func TestHandleTurnSelectionPhaseAcceptsNewConstraints(t *testing.T) {
	coord, _ := testCoordinator(map[string]Delta{
		"something in tehran": {City: "tehran"},
		"actually only acme":  {Brand: "acme", Require: []Topic{TopicBrand}},
	})
	ctx := context.Background()

	_, err := coord.HandleTurn(ctx, "conv-1", "something in tehran")
	require.NoError(t, err)

	resp, err := coord.HandleTurn(ctx, "conv-1", "actually only acme")
	require.NoError(t, err)
	assert.Empty(t, resp.StopReason)
	require.Len(t, resp.Options, 2, "tehran plus required acme leaves two offers")
	assert.Equal(t, "off-1", resp.Options[0].ID)
	assert.Equal(t, "off-5", resp.Options[1].ID)
}

func TestHandleTurnSelectionPhasePriceReplyIsNotAPick(t *testing.T) {
	coord, states := testCoordinator(map[string]Delta{
		"something in tehran": {City: "tehran"},
		"under 2 million":     {PriceMax: i64(2_000_000)},
	})
	ctx := context.Background()

	resp, err := coord.HandleTurn(ctx, "conv-1", "something in tehran")
	require.NoError(t, err)
	require.Len(t, resp.Options, 3)

	// The standalone "2" inside a price phrase must not select option 2.
	resp, err = coord.HandleTurn(ctx, "conv-1", "under 2 million")
	require.NoError(t, err)
	assert.Empty(t, resp.StopReason)
	assert.Empty(t, resp.CandidateID)
	assert.Equal(t, 2, resp.Turn)

	conv, ok := states.Get("conv-1")
	require.True(t, ok)
	assert.NotEqual(t, PhaseFinalized, conv.Phase)
	assert.Empty(t, conv.FinalCandidateID)
	require.NotNil(t, conv.Constraints.PriceMax)
	assert.Equal(t, int64(2_000_000), *conv.Constraints.PriceMax)
}

func TestHandleTurnExhaustsBudget(t *testing.T) {
	coord, states := testCoordinator(nil) // every utterance extracts nothing
	ctx := context.Background()

	var resp TurnResponse
	var err error
	for i := 1; i <= MaxTurns; i++ {
		resp, err = coord.HandleTurn(ctx, "conv-1", "no idea what i want")
		require.NoError(t, err)
		assert.Equal(t, i, resp.Turn)
	}

	assert.Equal(t, StopBudgetExhausted, resp.StopReason)
	assert.Equal(t, "off-6", resp.CandidateID, "best ranked offer wins the forced pick")
	assert.Contains(t, resp.Message, "all five turns")

	conv, ok := states.Get("conv-1")
	require.True(t, ok)
	assert.Equal(t, MaxTurns, conv.TurnCount)
	assert.True(t, conv.Terminal())
}

func TestHandleTurnAsksBeforePresenting(t *testing.T) {
	coord, _ := testCoordinator(nil)
	ctx := context.Background()

	resp, err := coord.HandleTurn(ctx, "conv-1", "show me something")
	require.NoError(t, err)
	assert.Contains(t, resp.Message, "budget", "price has the highest variance")

	resp, err = coord.HandleTurn(ctx, "conv-1", "whatever works")
	require.NoError(t, err)
	assert.Contains(t, resp.Message, "city")

	resp, err = coord.HandleTurn(ctx, "conv-1", "you pick")
	require.NoError(t, err)
	assert.Contains(t, resp.Message, "pick one by number", "question cap forces options")
	assert.Len(t, resp.Options, TopCandidates)
}

func TestHandleTurnNoMatchIsTerminal(t *testing.T) {
	coord, states := testCoordinator(map[string]Delta{
		"only nadir brand": {Brand: "nadir", Require: []Topic{TopicBrand}},
	})

	resp, err := coord.HandleTurn(context.Background(), "conv-1", "only nadir brand")
	require.NoError(t, err)

	assert.Equal(t, StopNoMatch, resp.StopReason)
	assert.Empty(t, resp.CandidateID, "no-match never fabricates a candidate")
	assert.Contains(t, resp.Message, "could not find any offer")

	conv, ok := states.Get("conv-1")
	require.True(t, ok)
	assert.Equal(t, PhaseFinalized, conv.Phase)
}

func TestHandleTurnRelaxesInOrderAndKeepsRequired(t *testing.T) {
	coord, states := testCoordinator(map[string]Delta{
		"acme in qom": {Brand: "acme", City: "qom", Require: []Topic{TopicBrand}},
	})

	resp, err := coord.HandleTurn(context.Background(), "conv-1", "acme in qom")
	require.NoError(t, err)

	assert.Contains(t, resp.Message, "loosened the city filter")
	assert.Empty(t, resp.StopReason)

	conv, ok := states.Get("conv-1")
	require.True(t, ok)
	assert.Empty(t, conv.Constraints.City, "a relaxed constraint stays dropped")
	assert.Equal(t, "acme", conv.Constraints.Brand, "required constraints survive relaxation")
}

func TestHandleTurnSearchFailureDoesNotConsumeTurn(t *testing.T) {
	states := NewStateStore(0)
	flaky := &flakyCatalogue{failures: 2, inner: NewMemoryCatalogue(testOffers())}
	coord := NewCoordinator(states, NewEngine(flaky), mapExtractor{deltas: map[string]Delta{
		"something in tehran": {City: "tehran"},
	}})
	ctx := context.Background()

	resp, err := coord.HandleTurn(ctx, "conv-1", "something in tehran")
	require.NoError(t, err, "a search failure is an apology, not an error")
	assert.Equal(t, msgSearchFailed, resp.Message)
	assert.Equal(t, 0, resp.Turn)

	conv, ok := states.Get("conv-1")
	require.True(t, ok)
	assert.Equal(t, 0, conv.TurnCount, "failed turn is not charged")
	assert.True(t, conv.Constraints.City == "", "no partial merge survives")

	resp, err = coord.HandleTurn(ctx, "conv-1", "something in tehran")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Turn)
	assert.Len(t, resp.Options, 3)
}

func TestHandleTurnExtractorFailureDegradesToEmptyDelta(t *testing.T) {
	states := NewStateStore(0)
	coord := NewCoordinator(states, NewEngine(NewMemoryCatalogue(testOffers())), failingExtractor{})

	resp, err := coord.HandleTurn(context.Background(), "conv-1", "anything at all")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Turn, "the turn proceeds without the extraction")
	assert.Empty(t, resp.StopReason)
}

func TestHandleTurnTerminalStateIsSticky(t *testing.T) {
	coord, _ := testCoordinator(map[string]Delta{
		"an acme from tabriz": {Brand: "acme", City: "tabriz"},
		"something in tehran": {City: "tehran"},
	})
	ctx := context.Background()

	first, err := coord.HandleTurn(ctx, "conv-1", "an acme from tabriz")
	require.NoError(t, err)
	require.Equal(t, StopConvergedToOne, first.StopReason)

	// A different follow-up message repeats the final answer verbatim.
	again, err := coord.HandleTurn(ctx, "conv-1", "something in tehran")
	require.NoError(t, err)
	assert.Equal(t, first.CandidateID, again.CandidateID)
	assert.Equal(t, first.Message, again.Message)
	assert.Equal(t, first.Turn, again.Turn, "terminal turns consume no budget")
}

func TestHandleTurnReplaysIdenticalRetry(t *testing.T) {
	coord, _ := testCoordinator(map[string]Delta{
		"an acme from tabriz": {Brand: "acme", City: "tabriz"},
	})
	ctx := context.Background()

	first, err := coord.HandleTurn(ctx, "conv-1", "an acme from tabriz")
	require.NoError(t, err)

	retry, err := coord.HandleTurn(ctx, "conv-1", "An ACME from  Tabriz")
	require.NoError(t, err)
	assert.Equal(t, first, retry, "normalized retry replays the cached answer")
}

func TestHandleTurnTimesOut(t *testing.T) {
	states := NewStateStore(0)
	coord := NewCoordinator(states, NewEngine(blockingCatalogue{}), mapExtractor{},
		WithTurnTimeout(30*time.Millisecond))

	resp, err := coord.HandleTurn(context.Background(), "conv-1", "anything")
	require.NoError(t, err)
	assert.Equal(t, msgTimeout, resp.Message)
	assert.Equal(t, 0, resp.Turn)

	conv, ok := states.Get("conv-1")
	require.True(t, ok)
	assert.Equal(t, 0, conv.TurnCount, "a timed-out turn leaves state untouched")
}

func TestHandleTurnSerializesConcurrentTurns(t *testing.T) {
	coord, states := testCoordinator(nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coord.HandleTurn(ctx, "conv-1", "no idea")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	conv, ok := states.Get("conv-1")
	require.True(t, ok)
	assert.Equal(t, MaxTurns, conv.TurnCount, "turn count never exceeds the budget")
	assert.True(t, conv.Terminal())
}

func TestHandleTurnNotifiesListener(t *testing.T) {
	var mu sync.Mutex
	var events []TurnResponse
	coord, _ := testCoordinator(map[string]Delta{
		"an acme from tabriz": {Brand: "acme", City: "tabriz"},
	}, WithTurnListener(func(r TurnResponse) {
		mu.Lock()
		events = append(events, r)
		mu.Unlock()
	}))

	_, err := coord.HandleTurn(context.Background(), "conv-1", "an acme from tabriz")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, "off-2", events[0].CandidateID)
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "900", formatPrice(900))
	assert.Equal(t, "1,500,000", formatPrice(1_500_000))
	assert.Equal(t, "12,345,678", formatPrice(12_345_678))
}

func TestConversationSnapshotRoundTrip(t *testing.T) {
	conv := NewConversation("conv-1")
	conv.TurnCount = 3
	conv.Phase = PhasePresentingOptions
	conv.Constraints.Merge(Delta{City: "tehran", Keywords: []string{"laptop"}})
	conv.Presented = []string{"off-1"}

	payload, err := conv.Snapshot()
	require.NoError(t, err)

	restored, err := RestoreConversation(payload)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, restored.ID)
	assert.Equal(t, conv.TurnCount, restored.TurnCount)
	assert.Equal(t, conv.Phase, restored.Phase)
	assert.Equal(t, conv.Constraints.City, restored.Constraints.City)
	assert.Equal(t, conv.Presented, restored.Presented)
}

func TestRenderOptionsNumbersEveryLine(t *testing.T) {
	out := renderOptions([]Candidate{
		{Offer: Offer{ID: "off-1", ProductName: "acme zeta 10", Brand: "acme", Price: 900_000, SellerScore: 4.5}},
		{Offer: Offer{ID: "off-3", ProductName: "bolt nova", Price: 800_000, SellerScore: 3.5}},
	})

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "1) "))
	assert.True(t, strings.HasPrefix(lines[2], "2) "))
	assert.Contains(t, lines[2], "no brand")
	assert.Contains(t, lines[1], "900,000")
}
