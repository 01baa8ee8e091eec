package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// DefaultTopic is the topic auth lifecycle events are published on.
const DefaultTopic = "walletauth.events"

// AuthEvent is the payload of a lifecycle event. The session credential is
// never part of it.
type AuthEvent struct {
	Kind      string    `json:"kind"`
	Account   string    `json:"account"`
	AttemptID string    `json:"attempt_id,omitempty"`
	At        time.Time `json:"at"`
}

// WatermillPublisher implements ports.EventPublisher using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher, topic string) *WatermillPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillPublisher{
		publisher: publisher,
		topic:     topic,
	}
}

// PublishAuthEvent publishes a lifecycle event
func (p *WatermillPublisher) PublishAuthEvent(ctx context.Context, kind, account, attemptID string) error {
	event := AuthEvent{
		Kind:      kind,
		Account:   account,
		AttemptID: attemptID,
		At:        time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("kind", kind)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
