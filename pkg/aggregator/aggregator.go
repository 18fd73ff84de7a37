// Package aggregator assembles the stage outputs into a CardRecord update,
// persists it through the store gateway's conditional write, and announces
// the completed valuation.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cardworks/appraisal/pkg/contracts"
	"github.com/cardworks/appraisal/pkg/store"
)

// ValuationPublisher is the slice of the event bus the aggregator needs.
type ValuationPublisher interface {
	PublishValuationCompleted(ctx context.Context, ev contracts.CardValuationCompleted) error
}

// Aggregator is the final pipeline stage.
type Aggregator struct {
	gateway *store.Gateway
	bus     ValuationPublisher
	log     *slog.Logger
}

// New builds the aggregator. bus may be nil in tests.
func New(gateway *store.Gateway, bus ValuationPublisher) *Aggregator {
	return &Aggregator{
		gateway: gateway,
		bus:     bus,
		log:     slog.Default().With("component", "aggregator"),
	}
}

// Aggregate merges the three stage outputs into the stored record. The fetch
// failing with NotFound is an invariant violation (creation precedes
// aggregation) and is escalated, not retried; so is a conditional-write
// failure, which signals a concurrent deletion.
//
// clean reports whether every stage ran without a fallback substitution; a
// stale lastError marker is removed only then.
func (a *Aggregator) Aggregate(ctx context.Context, ownerID, cardID string, meta *contracts.CardMetadata, pricing *contracts.PricingResult, auth *contracts.AuthenticityResult, clean bool) (*contracts.CardRecord, error) {
	rec, err := a.gateway.Get(ctx, ownerID, cardID)
	if err != nil {
		return nil, fmt.Errorf("aggregate fetch %s/%s: %w", ownerID, cardID, err)
	}

	merge(rec, meta, pricing, auth, clean)

	if err := a.gateway.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("aggregate persist %s/%s: %w", ownerID, cardID, err)
	}

	if a.bus != nil {
		ev := contracts.CardValuationCompleted{
			OwnerID:           ownerID,
			CardID:            cardID,
			Name:              nameOf(meta),
			ValueMedianCents:  pricing.ValueMedianCents,
			AuthenticityScore: auth.Score,
			FakeDetected:      auth.FakeDetected,
			Timestamp:         time.Now().UTC(),
		}
		if err := a.bus.PublishValuationCompleted(ctx, ev); err != nil {
			// The record is persisted; the event is best-effort.
			a.log.ErrorContext(ctx, "valuation persisted but event emission failed",
				"owner_id", ownerID, "card_id", cardID, "error", err)
		}
	}
	return rec, nil
}

// merge overwrites the evolving sections wholesale. Fields outside these
// sections are left untouched.
func merge(rec *contracts.CardRecord, meta *contracts.CardMetadata, pricing *contracts.PricingResult, auth *contracts.AuthenticityResult, clean bool) {
	rec.Metadata = meta

	rec.ValueLowCents = pricing.ValueLowCents
	rec.ValueMedianCents = pricing.ValueMedianCents
	rec.ValueHighCents = pricing.ValueHighCents
	rec.CompsCount = pricing.CompsCount
	rec.Sources = pricing.Sources

	score := auth.Score
	fake := auth.FakeDetected
	rec.AuthenticityScore = &score
	rec.AuthenticitySignals = auth.Signals
	rec.FakeDetected = &fake

	if clean {
		rec.LastError = nil
	}
}

func nameOf(meta *contracts.CardMetadata) string {
	if meta != nil && meta.Name.Value != nil {
		return *meta.Name.Value
	}
	return ""
}
