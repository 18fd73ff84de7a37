// Package events carries the domain events between the store gateway, the
// trigger and the aggregator, plus the operator-facing dead-letter queue.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cardworks/appraisal/pkg/contracts"
)

// Envelope is the wire shape of every event.
type Envelope struct {
	Source     string          `json:"source"`
	DetailType string          `json:"detailType"`
	Detail     json.RawMessage `json:"detail"`
}

// WrapCardCreated builds the wire envelope for a creation event.
func WrapCardCreated(ev contracts.CardCreated) (*Envelope, error) {
	detail, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal CardCreated: %w", err)
	}
	return &Envelope{Source: contracts.EventSource, DetailType: contracts.DetailCardCreated, Detail: detail}, nil
}

// WrapValuationCompleted builds the wire envelope for a completion event.
func WrapValuationCompleted(ev contracts.CardValuationCompleted) (*Envelope, error) {
	detail, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal CardValuationCompleted: %w", err)
	}
	return &Envelope{Source: contracts.EventSource, DetailType: contracts.DetailValuationCompleted, Detail: detail}, nil
}

// Handler consumes one CardCreated event. Returning an error leaves the
// event pending for redelivery.
type Handler func(ctx context.Context, ev contracts.CardCreated) error

// Bus publishes domain events and delivers creation events to the trigger.
type Bus interface {
	PublishCardCreated(ctx context.Context, ev contracts.CardCreated) error
	PublishValuationCompleted(ctx context.Context, ev contracts.CardValuationCompleted) error

	// ConsumeCardCreated blocks, delivering creation events to handler until
	// ctx is done.
	ConsumeCardCreated(ctx context.Context, handler Handler) error
}

// DeadLetterQueue records structured failure messages for operator review.
type DeadLetterQueue interface {
	Push(ctx context.Context, msg contracts.DeadLetter) error
}
