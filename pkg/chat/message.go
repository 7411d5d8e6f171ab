package chat

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message represents a single chat message in a couple's conversation.
// The ID and CreatedAt are assigned by the server and are authoritative;
// the client never generates either.
type Message struct {
	ID        string    `json:"_id"`
	Text      string    `json:"text,omitempty"`
	Image     string    `json:"image,omitempty"`
	SenderID  string    `json:"senderId"`
	CreatedAt time.Time `json:"createdAt"`
}

// ParseMessage decodes and validates a message payload from the wire.
// It rejects payloads that are missing the server-assigned fields rather
// than letting a partially formed message into the store.
func ParseMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if err := m.validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

func (m Message) validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: missing _id", ErrInvalidMessage)
	}
	if m.SenderID == "" {
		return fmt.Errorf("%w: missing senderId", ErrInvalidMessage)
	}
	if m.CreatedAt.IsZero() {
		return fmt.Errorf("%w: missing createdAt", ErrInvalidMessage)
	}
	return nil
}
