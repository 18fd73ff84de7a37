package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/cardworks/appraisal/pkg/contracts"
	"github.com/cardworks/appraisal/pkg/events"
	"github.com/cardworks/appraisal/pkg/store"
)

// PartialOutputs is whatever the pipeline produced before failing. The error
// persistor writes the present sections so a later read shows partial
// progress instead of nothing.
type PartialOutputs struct {
	Metadata     *contracts.CardMetadata
	Pricing      *contracts.PricingResult
	Authenticity *contracts.AuthenticityResult
}

// Stages lists the stages whose outputs are present.
func (p *PartialOutputs) Stages() []contracts.Stage {
	var out []contracts.Stage
	if p == nil {
		return out
	}
	if p.Metadata != nil {
		out = append(out, contracts.StageReason)
	}
	if p.Pricing != nil {
		out = append(out, contracts.StagePrice)
	}
	if p.Authenticity != nil {
		out = append(out, contracts.StageAuthenticity)
	}
	return out
}

// ErrorPersistor is the orchestrator's catch arm: it persists partial
// outputs, stamps lastError on the record and dead-letters the failure for
// operator review.
type ErrorPersistor struct {
	gateway *store.Gateway
	dlq     events.DeadLetterQueue
	log     *slog.Logger
}

// NewErrorPersistor builds the catch arm. dlq may be nil in tests.
func NewErrorPersistor(gateway *store.Gateway, dlq events.DeadLetterQueue) *ErrorPersistor {
	return &ErrorPersistor{
		gateway: gateway,
		dlq:     dlq,
		log:     slog.Default().With("component", "error-persistor"),
	}
}

// Persist records the failure. Moderation rejections out of the extract
// stage additionally hard-delete the record so no orphaned state survives.
// Persist itself is best-effort: it logs rather than fails, because it runs
// when the pipeline is already beyond saving.
func (p *ErrorPersistor) Persist(ctx context.Context, exec *contracts.PipelineExecution, failedStage contracts.Stage, cause error, partial *PartialOutputs) {
	kind := contracts.KindOf(cause)
	now := time.Now().UTC()

	p.log.ErrorContext(ctx, "pipeline execution failed",
		"request_id", exec.RequestID, "owner_id", exec.OwnerID, "card_id", exec.CardID,
		"failed_stage", string(failedStage), "kind", string(kind), "error", cause)

	if kind == contracts.KindInvalidContent && failedStage == contracts.StageExtract {
		if err := p.gateway.Delete(ctx, exec.OwnerID, exec.CardID, contracts.DeleteHard); err != nil {
			p.log.ErrorContext(ctx, "hard delete after content rejection failed",
				"owner_id", exec.OwnerID, "card_id", exec.CardID, "error", err)
		}
	} else {
		p.writePartial(ctx, exec, failedStage, kind, cause, partial)
	}

	if p.dlq != nil {
		msg := contracts.DeadLetter{
			RequestID:     exec.RequestID,
			OwnerID:       exec.OwnerID,
			CardID:        exec.CardID,
			FailedStage:   failedStage,
			ErrorKind:     string(kind),
			ErrorDetail:   cause.Error(),
			PartialStages: partial.Stages(),
			Timestamp:     now,
		}
		if err := p.dlq.Push(ctx, msg); err != nil {
			p.log.ErrorContext(ctx, "dead-letter push failed",
				"request_id", exec.RequestID, "error", err)
		}
	}
}

// writePartial stamps lastError and whatever stage outputs exist onto the
// record through the gateway's conditional update.
func (p *ErrorPersistor) writePartial(ctx context.Context, exec *contracts.PipelineExecution, failedStage contracts.Stage, kind contracts.Kind, cause error, partial *PartialOutputs) {
	rec, err := p.gateway.Get(ctx, exec.OwnerID, exec.CardID)
	if err != nil {
		p.log.WarnContext(ctx, "record unavailable for partial write",
			"owner_id", exec.OwnerID, "card_id", exec.CardID, "error", err)
		return
	}

	if partial != nil {
		if partial.Metadata != nil {
			rec.Metadata = partial.Metadata
		}
		if pr := partial.Pricing; pr != nil {
			rec.ValueLowCents = pr.ValueLowCents
			rec.ValueMedianCents = pr.ValueMedianCents
			rec.ValueHighCents = pr.ValueHighCents
			rec.CompsCount = pr.CompsCount
			rec.Sources = pr.Sources
		}
		if au := partial.Authenticity; au != nil {
			score := au.Score
			fake := au.FakeDetected
			rec.AuthenticityScore = &score
			rec.AuthenticitySignals = au.Signals
			rec.FakeDetected = &fake
		}
	}
	rec.LastError = &contracts.StageError{
		Stage:     string(failedStage),
		Kind:      string(kind),
		Detail:    cause.Error(),
		Timestamp: time.Now().UTC(),
	}

	if err := p.gateway.Update(ctx, rec); err != nil {
		p.log.ErrorContext(ctx, "partial write failed",
			"owner_id", exec.OwnerID, "card_id", exec.CardID, "error", err)
	}
}
