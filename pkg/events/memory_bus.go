package events

import (
	"context"
	"sync"

	"github.com/cardworks/appraisal/pkg/contracts"
)

// MemoryBus is an in-process Bus and DeadLetterQueue for development and
// tests.
type MemoryBus struct {
	mu        sync.Mutex
	created   chan contracts.CardCreated
	Completed []contracts.CardValuationCompleted
	Letters   []contracts.DeadLetter
}

// NewMemoryBus creates a bus with a bounded creation-event buffer.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{created: make(chan contracts.CardCreated, 64)}
}

func (b *MemoryBus) PublishCardCreated(ctx context.Context, ev contracts.CardCreated) error {
	select {
	case b.created <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBus) PublishValuationCompleted(ctx context.Context, ev contracts.CardValuationCompleted) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Completed = append(b.Completed, ev)
	return nil
}

func (b *MemoryBus) ConsumeCardCreated(ctx context.Context, handler Handler) error {
	for {
		select {
		case ev := <-b.created:
			// Redelivery semantics are the redis bus's concern; in memory a
			// failed handler simply drops the event.
			_ = handler(ctx, ev)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *MemoryBus) Push(ctx context.Context, msg contracts.DeadLetter) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Letters = append(b.Letters, msg)
	return nil
}

// DeadLetters returns a snapshot of recorded failure messages.
func (b *MemoryBus) DeadLetters() []contracts.DeadLetter {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]contracts.DeadLetter, len(b.Letters))
	copy(out, b.Letters)
	return out
}

// CompletedEvents returns a snapshot of emitted completion events.
func (b *MemoryBus) CompletedEvents() []contracts.CardValuationCompleted {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]contracts.CardValuationCompleted, len(b.Completed))
	copy(out, b.Completed)
	return out
}
