package hub

import (
	"encoding/json"
	"fmt"
	"io"
)

// Event names on the push channel. The client sends send-message and the
// server pushes receive-message, including the sender's own echo.
const (
	EventReceiveMessage = "receive-message"
	EventSendMessage    = "send-message"
)

// Envelope is the wire frame for every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewEnvelope marshals v into an envelope for the given event.
func NewEnvelope(event string, v any) (*Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return &Envelope{Event: event, Data: data}, nil
}

// SendPayload is the body of a send-message event.
type SendPayload struct {
	Text string `json:"text"`
}

// InPacket is an inbound envelope annotated with the verified identity of
// the connection it arrived on.
type InPacket struct {
	SenderID string
	CoupleID string
	Event    string
	Data     json.RawMessage
}

func decodeEnvelope(r io.Reader) (*Envelope, error) {
	var env Envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}
