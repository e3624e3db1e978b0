// Package protocol defines the msgpack wire envelope for the websocket
// observer feed.
package protocol

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

type MessageType string

const (
	// TypeTurn carries a committed TurnResponse for a conversation.
	TypeTurn MessageType = "turn"
	// TypeFinal carries the concluding TurnResponse of a conversation.
	TypeFinal MessageType = "final"
	// TypeSubscribe is sent by a client to follow one conversation.
	TypeSubscribe MessageType = "subscribe"
	// TypeUnsubscribe stops following a conversation.
	TypeUnsubscribe MessageType = "unsubscribe"
	// TypeError reports a transport-level problem to the client.
	TypeError MessageType = "error"
)

type Envelope struct {
	ConversationID string      `msgpack:"conversation_id,omitempty" json:"conversation_id,omitempty"`
	Type           MessageType `msgpack:"type" json:"type"`
	Body           any         `msgpack:"body,omitempty" json:"body,omitempty"`
}

type SubscribeBody struct {
	ConversationID string `msgpack:"conversation_id" json:"conversation_id"`
}

type ErrorBody struct {
	Message string `msgpack:"message" json:"message"`
}

func NewEnvelope(conversationID string, msgType MessageType, body any) *Envelope {
	return &Envelope{
		ConversationID: conversationID,
		Type:           msgType,
		Body:           body,
	}
}

func (e *Envelope) Encode() ([]byte, error) {
	data, err := msgpack.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &e, nil
}

// DecodeBody re-decodes the envelope body into a concrete type. Msgpack
// deserializes unknown bodies into generic maps, so a round trip through
// Marshal is the reliable way back to the typed form.
func DecodeBody[T any](e *Envelope) (*T, error) {
	raw, err := msgpack.Marshal(e.Body)
	if err != nil {
		return nil, fmt.Errorf("re-encode body: %w", err)
	}
	var out T
	if err := msgpack.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return &out, nil
}
