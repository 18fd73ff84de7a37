// Package trigger turns CardCreated events into pipeline executions. It is
// the only consumer of the creation stream and owns delivery concerns:
// idempotency, per-owner rate limiting and bounded execution concurrency.
package trigger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cardworks/appraisal/pkg/contracts"
	"github.com/cardworks/appraisal/pkg/events"
	"github.com/cardworks/appraisal/pkg/util/resiliency"
)

// Runner executes one pipeline run. Run errors are already persisted and
// dead-lettered by the orchestrator's catch arm.
type Runner interface {
	Run(ctx context.Context, exec *contracts.PipelineExecution) (contracts.TerminalState, error)
}

// Deduper reports whether a request id is seen for the first time. A degraded
// deduper fails open, so the pipeline must tolerate the odd duplicate run.
type Deduper interface {
	FirstDelivery(ctx context.Context, requestID string) bool
}

// Limiter bounds per-owner execution starts.
type Limiter interface {
	Allow(ctx context.Context, ownerID string) error
}

// Trigger consumes the creation stream and starts pipeline executions.
type Trigger struct {
	bus     events.Bus
	dedupe  Deduper
	limiter Limiter
	runner  Runner
	gate    *resiliency.Gate
	log     *slog.Logger
}

// New wires a trigger. maxInflight bounds concurrent pipeline executions
// across this instance's consumers; non-positive selects 8.
func New(bus events.Bus, dedupe Deduper, limiter Limiter, runner Runner, maxInflight int) *Trigger {
	if maxInflight <= 0 {
		maxInflight = 8
	}
	return &Trigger{
		bus:     bus,
		dedupe:  dedupe,
		limiter: limiter,
		runner:  runner,
		gate:    resiliency.NewGate("pipeline-executions", maxInflight, maxInflight*4),
		log:     slog.Default().With("component", "trigger"),
	}
}

// Start blocks, consuming creation events until ctx is done.
func (t *Trigger) Start(ctx context.Context) error {
	return t.bus.ConsumeCardCreated(ctx, t.handle)
}

// RequestIDFor derives the execution's correlation and idempotency key from
// the event. Redeliveries of one event map to one id.
func RequestIDFor(ev contracts.CardCreated) string {
	return fmt.Sprintf("req-%s-%d", ev.CardID, ev.Timestamp.UnixMilli())
}

// handle admits one creation event. An error return leaves the event pending
// for redelivery; admission checks that should retry therefore run before the
// duplicate marker is set.
func (t *Trigger) handle(ctx context.Context, ev contracts.CardCreated) error {
	requestID := RequestIDFor(ev)
	log := t.log.With("request_id", requestID, "owner_id", ev.OwnerID, "card_id", ev.CardID)

	if err := t.limiter.Allow(ctx, ev.OwnerID); err != nil {
		log.WarnContext(ctx, "execution deferred", "error", err)
		return err
	}
	if err := t.gate.Acquire(ctx); err != nil {
		log.WarnContext(ctx, "execution deferred", "error", err)
		return err
	}
	defer t.gate.Release()

	if !t.dedupe.FirstDelivery(ctx, requestID) {
		log.InfoContext(ctx, "duplicate delivery discarded")
		return nil
	}

	exec := &contracts.PipelineExecution{
		RequestID: requestID,
		OwnerID:   ev.OwnerID,
		CardID:    ev.CardID,
		FrontKey:  ev.FrontKey,
		BackKey:   ev.BackKey,
		Hints:     ev.Hints,
		CreatedAt: ev.Timestamp,
	}

	state, err := t.runner.Run(ctx, exec)
	if err != nil {
		// Persisted and dead-lettered downstream; redelivery would re-run a
		// pipeline that already failed terminally.
		log.ErrorContext(ctx, "pipeline execution failed", "error", err)
		return nil
	}
	log.InfoContext(ctx, "pipeline execution finished", "terminal", string(state))
	return nil
}
