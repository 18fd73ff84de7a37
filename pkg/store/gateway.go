package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cardworks/appraisal/pkg/contracts"
)

// EventPublisher is the slice of the event bus the gateway needs.
type EventPublisher interface {
	PublishCardCreated(ctx context.Context, ev contracts.CardCreated) error
}

// ObjectDeleter removes uploaded image objects on hard delete.
type ObjectDeleter interface {
	Delete(ctx context.Context, key string) error
}

// Gateway is the store gateway: it owns all card-record writes, scopes them
// by owner, and emits domain events on state change.
type Gateway struct {
	store   CardStore
	bus     EventPublisher
	objects ObjectDeleter
	log     *slog.Logger
}

// NewGateway wires a gateway over a CardStore. bus and objects may be nil in
// tests; event emission and image purging are then skipped.
func NewGateway(store CardStore, bus EventPublisher, objects ObjectDeleter) *Gateway {
	return &Gateway{
		store:   store,
		bus:     bus,
		objects: objects,
		log:     slog.Default().With("component", "store-gateway"),
	}
}

// Create persists a new record and emits CardCreated. A missing CardID is
// assigned here so every event and log line downstream carries one.
func (g *Gateway) Create(ctx context.Context, rec *contracts.CardRecord) error {
	if rec.CardID == "" {
		rec.CardID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	if err := g.store.Create(ctx, rec); err != nil {
		return err
	}

	if g.bus != nil {
		ev := contracts.CardCreated{
			OwnerID:   rec.OwnerID,
			CardID:    rec.CardID,
			FrontKey:  rec.FrontKey,
			BackKey:   rec.BackKey,
			Timestamp: rec.CreatedAt,
		}
		if err := g.bus.PublishCardCreated(ctx, ev); err != nil {
			// The record exists; a lost event is recoverable by re-emission,
			// a lost record is not.
			g.log.ErrorContext(ctx, "card created but event emission failed",
				"owner_id", rec.OwnerID, "card_id", rec.CardID, "error", err)
			return fmt.Errorf("emit CardCreated: %w", err)
		}
	}
	return nil
}

// Get fetches a record scoped by owner.
func (g *Gateway) Get(ctx context.Context, ownerID, cardID string) (*contracts.CardRecord, error) {
	return g.store.Get(ctx, ownerID, cardID)
}

// GetByCardID fetches through the secondary index.
func (g *Gateway) GetByCardID(ctx context.Context, cardID string) (*contracts.CardRecord, error) {
	return g.store.GetByCardID(ctx, cardID)
}

// List pages a user's records newest-first.
func (g *Gateway) List(ctx context.Context, ownerID string, limit int, cursor string) (*Page, error) {
	return g.store.List(ctx, ownerID, limit, cursor)
}

// Update performs the conditional overwrite of the evolving sections.
func (g *Gateway) Update(ctx context.Context, rec *contracts.CardRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	return g.store.Update(ctx, rec)
}

// Delete removes a record. Hard deletion also purges the referenced image
// objects.
func (g *Gateway) Delete(ctx context.Context, ownerID, cardID string, mode contracts.DeleteMode) error {
	var frontKey, backKey string
	if mode == contracts.DeleteHard && g.objects != nil {
		if rec, err := g.store.Get(ctx, ownerID, cardID); err == nil {
			frontKey, backKey = rec.FrontKey, rec.BackKey
		}
	}

	if err := g.store.Delete(ctx, ownerID, cardID, mode); err != nil {
		return err
	}

	if mode == contracts.DeleteHard && g.objects != nil {
		for _, key := range []string{frontKey, backKey} {
			if key == "" {
				continue
			}
			if err := g.objects.Delete(ctx, key); err != nil {
				g.log.WarnContext(ctx, "orphaned image object after hard delete",
					"owner_id", ownerID, "card_id", cardID, "key", key, "error", err)
			}
		}
	}
	return nil
}
