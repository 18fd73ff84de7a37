// Package store implements the card store gateway: key-scoped reads and
// writes of card records over a single table keyed on
// (PK=USER#{ownerId}, SK=CARD#{cardId}), with a secondary index on cardId.
//
// Every mutation is conditional on ownerId; the store's compare-and-set is
// the pipeline's only synchronization primitive.
package store

import (
	"context"

	"github.com/cardworks/appraisal/pkg/contracts"
)

// Page is one page of a listing, newest first, with an opaque cursor for the
// next page. An empty cursor means the listing is exhausted.
type Page struct {
	Items      []*contracts.CardRecord
	NextCursor string
}

// CardStore is the persistence interface for card records.
type CardStore interface {
	// Create inserts a new record. Fails with InvalidInput if the identity
	// already exists.
	Create(ctx context.Context, rec *contracts.CardRecord) error

	// Get fetches by identity. Fails with NotFound when absent or
	// soft-deleted, PermissionDenied on cross-tenant access.
	Get(ctx context.Context, ownerID, cardID string) (*contracts.CardRecord, error)

	// GetByCardID fetches through the secondary index without the partition
	// key.
	GetByCardID(ctx context.Context, cardID string) (*contracts.CardRecord, error)

	// List pages a user's records in createdAt-descending order.
	List(ctx context.Context, ownerID string, limit int, cursor string) (*Page, error)

	// Update overwrites the evolving sections conditionally on ownerId.
	// Fails with NotFound when the conditional write matches no live row.
	Update(ctx context.Context, rec *contracts.CardRecord) error

	// Delete soft-deletes (tombstone) or hard-deletes (purge) a record.
	Delete(ctx context.Context, ownerID, cardID string, mode contracts.DeleteMode) error
}

// UserKey renders the partition key for an owner.
func UserKey(ownerID string) string { return "USER#" + ownerID }

// CardKey renders the sort key for a card.
func CardKey(cardID string) string { return "CARD#" + cardID }
