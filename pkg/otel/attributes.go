package otel

import "go.opentelemetry.io/otel/attribute"

// Standard attribute keys for kashef services.
const (
	AttrConversationID = "conversation.id"
	AttrRequestID      = "request.id"
	AttrTurnNumber     = "turn.number"
	AttrStopReason     = "turn.stop_reason"
	AttrSearchTotal    = "search.total"
	AttrRelaxedTopics  = "search.relaxed_topics"
)

func ConversationID(id string) attribute.KeyValue { return attribute.String(AttrConversationID, id) }
func RequestID(id string) attribute.KeyValue      { return attribute.String(AttrRequestID, id) }
func TurnNumber(n int) attribute.KeyValue         { return attribute.Int(AttrTurnNumber, n) }
func StopReason(r string) attribute.KeyValue      { return attribute.String(AttrStopReason, r) }
func SearchTotal(n int) attribute.KeyValue        { return attribute.Int(AttrSearchTotal, n) }

func RelaxedTopics(topics []string) attribute.KeyValue {
	return attribute.StringSlice(AttrRelaxedTopics, topics)
}
