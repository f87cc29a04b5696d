// Package notify defines the owner-changed message exchanged between
// processes that share one transaction store.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OwnerChangedMessage says that some record of OwnerID was written. It carries
// no record data: receivers reload from the store.
type OwnerChangedMessage struct {
	OwnerID   string    `json:"ownerId"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

func NewOwnerChangedMessage(ownerID, origin string) *OwnerChangedMessage {
	return &OwnerChangedMessage{
		OwnerID:   ownerID,
		Origin:    origin,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *OwnerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// OwnerChangedMessageFromJSON parses a message and rejects one without an
// owner.
func OwnerChangedMessageFromJSON(data []byte) (*OwnerChangedMessage, error) {
	var msg OwnerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.OwnerID == "" {
		return nil, fmt.Errorf("message without owner id")
	}
	return &msg, nil
}

// Handler processes one received message.
type Handler func(ctx context.Context, msg *OwnerChangedMessage) error

// Bus publishes owner changes and delivers those of every process sharing it.
type Bus interface {
	PublishOwnerChanged(ctx context.Context, ownerID string) error
	// Consume blocks, calling h for each message, until ctx is done or the
	// bus fails for good.
	Consume(ctx context.Context, h Handler) error
	// Origin identifies this process in published messages.
	Origin() string
	Close() error
}

// NewOrigin returns a fresh process identifier.
func NewOrigin() string {
	return uuid.NewString()
}
