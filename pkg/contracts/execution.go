package contracts

import "time"

// Stage names the orchestrator's states.
type Stage string

const (
	StageExtract      Stage = "ExtractFeatures"
	StageReason       Stage = "ReasonOCR"
	StagePrice        Stage = "PriceCard"
	StageAuthenticity Stage = "VerifyAuthenticity"
	StageAggregate    Stage = "Aggregate"
)

// TerminalState is the outcome of a pipeline execution.
type TerminalState string

const (
	TerminalSuccess TerminalState = "success"
	TerminalPartial TerminalState = "partial"
	TerminalFailed  TerminalState = "failed"
)

// PipelineExecution is the transient per-run tracking state. It is never
// persisted; RequestID is the single correlation key across all stage logs
// and telemetry.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type PipelineExecution struct {
	RequestID string
	OwnerID   string
	CardID    string
	FrontKey  string
	BackKey   string
	Hints     *CardHints
	CreatedAt time.Time

	CurrentStage Stage
	Attempts     map[Stage]int
	Terminal     TerminalState
}

// CardHints are optional preliminary metadata hints carried on the creation
// event.
type CardHints struct {
	Name      string `json:"name,omitempty"`
	Set       string `json:"set,omitempty"`
	Number    string `json:"number,omitempty"`
	Rarity    string `json:"rarity,omitempty"`
	Condition string `json:"condition,omitempty"`
}

// RecordAttempt bumps the attempt counter for a stage and marks it current.
func (e *PipelineExecution) RecordAttempt(s Stage) int {
	if e.Attempts == nil {
		e.Attempts = make(map[Stage]int)
	}
	e.Attempts[s]++
	e.CurrentStage = s
	return e.Attempts[s]
}
