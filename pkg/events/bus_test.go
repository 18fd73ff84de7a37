package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cardworks/appraisal/pkg/contracts"
	"github.com/cardworks/appraisal/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWrapCardCreated verifies the wire envelope shape of creation events.
func TestWrapCardCreated(t *testing.T) {
	ev := contracts.CardCreated{
		OwnerID:   "alice",
		CardID:    "c1",
		FrontKey:  "uploads/alice/9f1c-front.jpg",
		Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}

	env, err := events.WrapCardCreated(ev)
	require.NoError(t, err)
	assert.Equal(t, "cards", env.Source)
	assert.Equal(t, "CardCreated", env.DetailType)

	var out contracts.CardCreated
	require.NoError(t, json.Unmarshal(env.Detail, &out))
	assert.Equal(t, ev, out)
}

// TestMemoryBus_DeliversCreationEvents verifies publish/consume ordering on
// the in-process bus.
func TestMemoryBus_DeliversCreationEvents(t *testing.T) {
	bus := events.NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan contracts.CardCreated, 2)
	go func() {
		_ = bus.ConsumeCardCreated(ctx, func(ctx context.Context, ev contracts.CardCreated) error {
			got <- ev
			return nil
		})
	}()

	require.NoError(t, bus.PublishCardCreated(ctx, contracts.CardCreated{CardID: "c1"}))
	require.NoError(t, bus.PublishCardCreated(ctx, contracts.CardCreated{CardID: "c2"}))

	assert.Equal(t, "c1", (<-got).CardID)
	assert.Equal(t, "c2", (<-got).CardID)
}

// TestMemoryBus_RecordsDeadLetters verifies dead letters accumulate for
// operator review.
func TestMemoryBus_RecordsDeadLetters(t *testing.T) {
	bus := events.NewMemoryBus()
	ctx := context.Background()

	require.NoError(t, bus.Push(ctx, contracts.DeadLetter{
		RequestID:   "req-1",
		FailedStage: contracts.StageExtract,
		ErrorKind:   string(contracts.KindInvalidContent),
	}))

	letters := bus.DeadLetters()
	require.Len(t, letters, 1)
	assert.Equal(t, contracts.StageExtract, letters[0].FailedStage)
}
