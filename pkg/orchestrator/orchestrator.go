// Package orchestrator drives the five-state appraisal pipeline:
// ExtractFeatures, ReasonOCR, the parallel PriceCard/VerifyAuthenticity
// fork, and Aggregate. Stage budgets and fallback substitution live here;
// the stages themselves are pure functions of their inputs.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cardworks/appraisal/pkg/contracts"
	"github.com/cardworks/appraisal/pkg/observability"
	"github.com/cardworks/appraisal/pkg/reasoning"
	"github.com/cardworks/appraisal/pkg/util/resiliency"
)

// Per-stage hard deadlines.
const (
	extractDeadline      = 30 * time.Second
	reasonDeadline       = 30 * time.Second
	priceDeadline        = 45 * time.Second
	authenticityDeadline = 30 * time.Second
	aggregateDeadline    = 10 * time.Second

	defaultExecutionDeadline = 120 * time.Second
)

// FeatureExtractor is the vision stage.
type FeatureExtractor interface {
	Extract(ctx context.Context, ownerID, key string) (*contracts.FeatureEnvelope, error)
}

// Reasoner is the OCR reasoning stage. It carries its own fallback; an error
// return means the stage could not run at all.
type Reasoner interface {
	Reason(ctx context.Context, oc reasoning.OcrContext) (*reasoning.Outcome, error)
}

// Pricer is the pricing stage. It never fails.
type Pricer interface {
	Price(ctx context.Context, features *contracts.FeatureEnvelope, meta *contracts.CardMetadata) *contracts.PricingResult
}

// Verifier is the authenticity stage. It never fails.
type Verifier interface {
	Verify(ctx context.Context, features *contracts.FeatureEnvelope, meta *contracts.CardMetadata, imageKey string) *contracts.AuthenticityResult
}

// RecordAggregator is the final persistence stage.
type RecordAggregator interface {
	Aggregate(ctx context.Context, ownerID, cardID string, meta *contracts.CardMetadata, pricing *contracts.PricingResult, auth *contracts.AuthenticityResult, clean bool) (*contracts.CardRecord, error)
}

// Orchestrator coordinates one pipeline execution per Run call. It is safe
// for concurrent use; executions share only pooled clients.
type Orchestrator struct {
	extractor  FeatureExtractor
	reasoner   Reasoner
	pricer     Pricer
	verifier   Verifier
	aggregator RecordAggregator
	persistor  *ErrorPersistor
	obs        *observability.Provider
	deadline   time.Duration
	log        *slog.Logger
}

// New wires the orchestrator. A non-positive deadline selects the default
// execution deadline.
func New(extractor FeatureExtractor, reasoner Reasoner, pricer Pricer, verifier Verifier, agg RecordAggregator, persistor *ErrorPersistor, obs *observability.Provider, deadline time.Duration) *Orchestrator {
	if deadline <= 0 {
		deadline = defaultExecutionDeadline
	}
	return &Orchestrator{
		extractor:  extractor,
		reasoner:   reasoner,
		pricer:     pricer,
		verifier:   verifier,
		aggregator: agg,
		persistor:  persistor,
		obs:        obs,
		deadline:   deadline,
		log:        slog.Default().With("component", "orchestrator"),
	}
}

// Run executes the pipeline for one card. The terminal state is recorded on
// exec; the error return is non-nil only for failed executions.
func (o *Orchestrator) Run(ctx context.Context, exec *contracts.PipelineExecution) (contracts.TerminalState, error) {
	ctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	log := o.log.With("request_id", exec.RequestID, "owner_id", exec.OwnerID, "card_id", exec.CardID)
	log.InfoContext(ctx, "pipeline execution started")

	features, err := o.runExtract(ctx, exec)
	if err != nil {
		return o.fail(ctx, exec, contracts.StageExtract, err, nil)
	}

	outcome := o.runReason(ctx, exec, features)
	meta := &outcome.Metadata

	pricingRes, authRes := o.runFork(ctx, exec, features, meta)
	partial := &PartialOutputs{Metadata: meta, Pricing: pricingRes, Authenticity: authRes}

	if ctx.Err() != nil {
		return o.fail(ctx, exec, exec.CurrentStage, contracts.NewFault(contracts.KindDeadlineExceeded, ctx.Err()), partial)
	}

	clean := !outcome.FellBack
	if err := o.runAggregate(ctx, exec, meta, pricingRes, authRes, clean); err != nil {
		return o.fail(ctx, exec, contracts.StageAggregate, err, partial)
	}

	exec.Terminal = contracts.TerminalSuccess
	log.InfoContext(ctx, "pipeline execution completed",
		"fallback_used", outcome.FellBack, "overall_confidence", meta.OverallConfidence)
	return contracts.TerminalSuccess, nil
}

// runExtract runs the vision stage under its retry budget. The back image,
// when present, is processed independently; its failure is a warning since
// reasoning and authenticity key off the front envelope.
func (o *Orchestrator) runExtract(ctx context.Context, exec *contracts.PipelineExecution) (*contracts.FeatureEnvelope, error) {
	ctx, end := o.obs.StartStage(ctx, contracts.StageExtract, exec.RequestID, exec.OwnerID, exec.CardID)

	features, err := resiliency.Do(ctx, resiliency.StagePolicy(), func(ctx context.Context, attempt int) (*contracts.FeatureEnvelope, error) {
		exec.RecordAttempt(contracts.StageExtract)
		o.obs.RecordAttempt(ctx, contracts.StageExtract)
		ctx, cancel := context.WithTimeout(ctx, extractDeadline)
		defer cancel()
		return o.extractor.Extract(ctx, exec.OwnerID, exec.FrontKey)
	})
	if err != nil {
		end(observability.StatusFailed)
		return nil, fmt.Errorf("extract %s: %w", exec.FrontKey, err)
	}

	if exec.BackKey != "" {
		backCtx, cancel := context.WithTimeout(ctx, extractDeadline)
		back, backErr := o.extractor.Extract(backCtx, exec.OwnerID, exec.BackKey)
		cancel()
		if backErr != nil {
			o.log.WarnContext(ctx, "back image extraction failed",
				"request_id", exec.RequestID, "key", exec.BackKey, "error", backErr)
		} else {
			o.log.InfoContext(ctx, "back image processed",
				"request_id", exec.RequestID, "blocks", len(back.Blocks))
		}
	}

	end(observability.StatusOK)
	return features, nil
}

// runReason invokes the reasoning agent, whose client carries the inference
// retry budget. A stage that cannot run at all substitutes the deterministic
// fallback so downstream stages always see a metadata.
func (o *Orchestrator) runReason(ctx context.Context, exec *contracts.PipelineExecution, features *contracts.FeatureEnvelope) *reasoning.Outcome {
	ctx, end := o.obs.StartStage(ctx, contracts.StageReason, exec.RequestID, exec.OwnerID, exec.CardID)
	exec.RecordAttempt(contracts.StageReason)
	o.obs.RecordAttempt(ctx, contracts.StageReason)

	stageCtx, cancel := context.WithTimeout(ctx, reasonDeadline)
	defer cancel()

	outcome, err := o.reasoner.Reason(stageCtx, reasoning.OcrContext{
		Blocks: features.Blocks,
		Visual: reasoning.VisualContext{
			HoloVariance:   features.HoloVariance,
			BorderSymmetry: features.Borders.Symmetry,
			Quality:        features.Quality,
		},
		Hints: exec.Hints,
	})
	if err != nil {
		o.log.WarnContext(ctx, "reasoning stage aborted, substituting fallback metadata",
			"request_id", exec.RequestID, "error", err)
		outcome = &reasoning.Outcome{
			Metadata: reasoning.Fallback(features.Blocks),
			FellBack: true,
			Cause:    reasoning.CauseLLMTimeout,
		}
	}

	o.obs.RecordTokens(ctx, contracts.StageReason, outcome.Usage.InputTokens, outcome.Usage.OutputTokens)
	if outcome.FellBack {
		end(observability.StatusFallback)
	} else {
		end(observability.StatusOK)
	}
	return outcome
}

// runFork runs pricing and authenticity truly in parallel and joins both.
// Each branch owns its deadline; both agents degrade internally rather than
// fail, so the join always yields two results.
func (o *Orchestrator) runFork(ctx context.Context, exec *contracts.PipelineExecution, features *contracts.FeatureEnvelope, meta *contracts.CardMetadata) (*contracts.PricingResult, *contracts.AuthenticityResult) {
	var pricingRes *contracts.PricingResult
	var authRes *contracts.AuthenticityResult

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		stageCtx, end := o.obs.StartStage(ctx, contracts.StagePrice, exec.RequestID, exec.OwnerID, exec.CardID)
		exec.RecordAttempt(contracts.StagePrice)
		o.obs.RecordAttempt(stageCtx, contracts.StagePrice)
		stageCtx, cancel := context.WithTimeout(stageCtx, priceDeadline)
		defer cancel()
		pricingRes = o.pricer.Price(stageCtx, features, meta)
		end(observability.StatusOK)
	}()

	go func() {
		defer wg.Done()
		stageCtx, end := o.obs.StartStage(ctx, contracts.StageAuthenticity, exec.RequestID, exec.OwnerID, exec.CardID)
		exec.RecordAttempt(contracts.StageAuthenticity)
		o.obs.RecordAttempt(stageCtx, contracts.StageAuthenticity)
		stageCtx, cancel := context.WithTimeout(stageCtx, authenticityDeadline)
		defer cancel()
		authRes = o.verifier.Verify(stageCtx, features, meta, exec.FrontKey)
		end(observability.StatusOK)
	}()

	wg.Wait()

	if pricingRes == nil {
		pricingRes = substitutePricing()
	}
	if authRes == nil {
		authRes = substituteAuthenticity()
	}
	return pricingRes, authRes
}

// runAggregate performs the final conditional persist: one retry, then the
// catch arm.
func (o *Orchestrator) runAggregate(ctx context.Context, exec *contracts.PipelineExecution, meta *contracts.CardMetadata, pricingRes *contracts.PricingResult, authRes *contracts.AuthenticityResult, clean bool) error {
	ctx, end := o.obs.StartStage(ctx, contracts.StageAggregate, exec.RequestID, exec.OwnerID, exec.CardID)

	policy := resiliency.RetryPolicy{MaxAttempts: 2, BaseDelay: 2 * time.Second, Multiplier: 2.0, Jitter: 0.2}
	_, err := resiliency.Do(ctx, policy, func(ctx context.Context, attempt int) (*contracts.CardRecord, error) {
		exec.RecordAttempt(contracts.StageAggregate)
		o.obs.RecordAttempt(ctx, contracts.StageAggregate)
		ctx, cancel := context.WithTimeout(ctx, aggregateDeadline)
		defer cancel()
		return o.aggregator.Aggregate(ctx, exec.OwnerID, exec.CardID, meta, pricingRes, authRes, clean)
	})
	if err != nil {
		end(observability.StatusFailed)
		return err
	}
	end(observability.StatusOK)
	return nil
}

// fail routes a terminal failure through the catch arm.
func (o *Orchestrator) fail(ctx context.Context, exec *contracts.PipelineExecution, stage contracts.Stage, cause error, partial *PartialOutputs) (contracts.TerminalState, error) {
	// The catch arm must run even when the execution deadline killed ctx.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	o.persistor.Persist(persistCtx, exec, stage, cause, partial)
	exec.Terminal = contracts.TerminalFailed
	return contracts.TerminalFailed, fmt.Errorf("pipeline failed at %s: %w", stage, cause)
}

// substitutePricing is the null-priced result used when the pricing branch
// produced nothing.
func substitutePricing() *contracts.PricingResult {
	return &contracts.PricingResult{
		Summary: contracts.PriceSummary{
			Trend:     contracts.TrendStable,
			Rationale: "pricing unavailable",
		},
	}
}

// substituteAuthenticity is the zero-score result used when the verification
// branch produced nothing.
func substituteAuthenticity() *contracts.AuthenticityResult {
	return &contracts.AuthenticityResult{
		Score:        0,
		FakeDetected: false,
		VerifiedByAI: false,
		Signals: map[string]float64{
			contracts.SignalVisualHash:  0,
			contracts.SignalTextMatch:   0,
			contracts.SignalHoloPattern: 0,
		},
		Rationale: "authenticity verification unavailable",
	}
}
