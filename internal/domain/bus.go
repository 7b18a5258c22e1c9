package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
// All methods require a scope; Heron scopes by workspace key.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, scope string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, scope string, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Scope     string            `json:"scope"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings (Community tier)
	ChannelBufferSize int

	// NATS settings (Pro tier)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Topics published by the entity repositories.
const (
	TopicItemSaved   = "heron.item.saved"
	TopicItemDeleted = "heron.item.deleted"
)

// ItemEvent is the payload of TopicItemSaved and TopicItemDeleted.
// Item carries the already-mapped domain object.
type ItemEvent struct {
	Collection CollectionRef `json:"collection"`
	ItemType   string        `json:"itemType"`
	Action     string        `json:"action"` // created, updated, deleted
	ItemID     string        `json:"itemId"`
	Title      string        `json:"title"`
	Recipients []PersonRef   `json:"recipients,omitempty"`
	Actor      PersonRef     `json:"actor"`
	Item       any           `json:"item,omitempty"`
	Workspace  string        `json:"workspace"`
}
