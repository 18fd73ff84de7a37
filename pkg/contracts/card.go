package contracts

import "time"

// CardRecord is the persisted aggregate for a scanned trading card.
// Identity is (OwnerID, CardID); a record never changes owners.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type CardRecord struct {
	OwnerID string `json:"ownerId"`
	CardID  string `json:"cardId"`

	FrontKey string `json:"frontKey"`
	BackKey  string `json:"backKey,omitempty"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`

	// Evolving sections, populated by the pipeline.
	Metadata *CardMetadata `json:"ocrMetadata,omitempty"`

	ValueLowCents    *int64   `json:"valueLow,omitempty"`
	ValueMedianCents *int64   `json:"valueMedian,omitempty"`
	ValueHighCents   *int64   `json:"valueHigh,omitempty"`
	CompsCount       int      `json:"compsCount"`
	Sources          []string `json:"sources,omitempty"`

	AuthenticityScore   *float64           `json:"authenticityScore,omitempty"`
	AuthenticitySignals map[string]float64 `json:"authenticitySignals,omitempty"`
	FakeDetected        *bool              `json:"fakeDetected,omitempty"`

	LastError *StageError `json:"lastError,omitempty"`
}

// StageError records the most recent pipeline failure on a record.
type StageError struct {
	Stage     string    `json:"stage"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// DeleteMode selects soft (tombstone) or hard (purge) deletion.
type DeleteMode string

const (
	DeleteSoft DeleteMode = "soft"
	DeleteHard DeleteMode = "hard"
)

// Deleted reports whether the record carries a soft-delete tombstone.
func (r *CardRecord) Deleted() bool {
	return r.DeletedAt != nil
}
