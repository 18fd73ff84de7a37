package contracts

import "time"

// Event source and detail-type constants for the cards domain.
const (
	EventSource              = "cards"
	DetailCardCreated        = "CardCreated"
	DetailValuationCompleted = "CardValuationCompleted"
)

// CardCreated is emitted by the store gateway when a record is created and
// consumed by the event trigger. Its timestamp-derived ID doubles as the
// orchestrator's idempotency key.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type CardCreated struct {
	OwnerID   string     `json:"ownerId"`
	CardID    string     `json:"cardId"`
	FrontKey  string     `json:"frontKey"`
	BackKey   string     `json:"backKey,omitempty"`
	Hints     *CardHints `json:"hints,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// CardValuationCompleted is emitted by the aggregator after a successful
// persist.
type CardValuationCompleted struct {
	OwnerID           string    `json:"ownerId"`
	CardID            string    `json:"cardId"`
	Name              string    `json:"name"`
	ValueMedianCents  *int64    `json:"valueMedian"`
	AuthenticityScore float64   `json:"authenticityScore"`
	FakeDetected      bool      `json:"fakeDetected"`
	Timestamp         time.Time `json:"timestamp"`
}

// DeadLetter is the structured failure message the error persistor puts on
// the dead-letter queue for operator review.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type DeadLetter struct {
	RequestID     string    `json:"requestId"`
	OwnerID       string    `json:"ownerId"`
	CardID        string    `json:"cardId"`
	FailedStage   Stage     `json:"failedStage"`
	ErrorKind     string    `json:"errorKind"`
	ErrorDetail   string    `json:"errorDetail"`
	PartialStages []Stage   `json:"partialStages"`
	Timestamp     time.Time `json:"timestamp"`
}
