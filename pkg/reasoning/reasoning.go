// Package reasoning turns an OCR context into a validated CardMetadata via a
// deterministic LLM call, with a rule-based fallback when inference cannot
// deliver schema-conformant output.
package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cardworks/appraisal/pkg/contracts"
	"github.com/cardworks/appraisal/pkg/llm"
)

// FailureCause classifies why inference did not produce usable metadata.
type FailureCause string

const (
	CauseNone             FailureCause = ""
	CauseLLMThrottled     FailureCause = "LLMThrottled"
	CauseLLMTimeout       FailureCause = "LLMTimeout"
	CauseLLMMalformed     FailureCause = "LLMMalformedOutput"
	CauseLLMSchemaInvalid FailureCause = "LLMSchemaInvalid"
)

// VisualContext is the quantified pixel evidence handed to the reasoner.
type VisualContext struct {
	HoloVariance   float64
	BorderSymmetry float64
	Quality        contracts.ImageQuality
}

// OcrContext is the full reasoning input for one card image.
type OcrContext struct {
	Blocks []contracts.OCRBlock
	Visual VisualContext
	Hints  *contracts.CardHints
}

// Outcome is the reasoning result. Exactly one of two shapes: a reasoned
// metadata (FellBack false, Cause empty) or a fallback metadata (FellBack
// true, Cause set). The pipeline branches on FellBack instead of on an error.
type Outcome struct {
	Metadata contracts.CardMetadata
	FellBack bool
	Cause    FailureCause
	Usage    llm.Usage
}

// Agent is the OCR reasoning stage. The wrapped client is expected to carry
// the inference retry policy; the agent itself never retries.
type Agent struct {
	client      llm.Client
	temperature float64
	maxTokens   int
	log         *slog.Logger
}

// inferenceSeed pins sampling for the determinism contract.
const inferenceSeed = 42

// NewAgent builds the reasoning agent. Temperature is expected pre-clamped to
// [0.1, 0.2] by configuration.
func NewAgent(client llm.Client, temperature float64, maxTokens int) *Agent {
	return &Agent{
		client:      client,
		temperature: temperature,
		maxTokens:   maxTokens,
		log:         slog.Default().With("component", "reasoning"),
	}
}

// Reason runs inference over the OCR context and returns either validated
// metadata or the deterministic fallback. It never returns a non-nil error
// for inference failures; the error return covers only context cancellation.
func (a *Agent) Reason(ctx context.Context, oc OcrContext) (*Outcome, error) {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: buildUserPrompt(oc)},
	}

	resp, err := a.client.Chat(ctx, msgs, &llm.SamplingOptions{
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
		Seed:        inferenceSeed,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		cause := causeFromError(err)
		a.log.WarnContext(ctx, "inference failed, using fallback",
			"cause", string(cause), "error", err)
		return &Outcome{Metadata: Fallback(oc.Blocks), FellBack: true, Cause: cause}, nil
	}

	meta, cause := a.parseAndValidate(resp.Content)
	if cause != CauseNone {
		a.log.WarnContext(ctx, "inference output rejected, using fallback",
			"cause", string(cause))
		return &Outcome{Metadata: Fallback(oc.Blocks), FellBack: true, Cause: cause, Usage: resp.Usage}, nil
	}

	applyHints(meta, oc.Hints)
	meta.VerifiedByAI = true
	return &Outcome{Metadata: *meta, Usage: resp.Usage}, nil
}

// parseAndValidate extracts JSON from the model output and checks it against
// the metadata schema plus the structural invariants the schema cannot
// express. Both failure modes are non-retryable.
func (a *Agent) parseAndValidate(content string) (*contracts.CardMetadata, FailureCause) {
	raw, err := llm.ExtractJSON(content)
	if err != nil {
		return nil, CauseLLMMalformed
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, CauseLLMMalformed
	}
	if err := metadataSchema.Validate(doc); err != nil {
		return nil, CauseLLMSchemaInvalid
	}

	var meta contracts.CardMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, CauseLLMMalformed
	}
	if err := meta.Validate(); err != nil {
		return nil, CauseLLMSchemaInvalid
	}
	return &meta, CauseNone
}

// causeFromError maps the fault taxonomy onto the reasoning failure causes.
func causeFromError(err error) FailureCause {
	switch contracts.KindOf(err) {
	case contracts.KindThrottled:
		return CauseLLMThrottled
	case contracts.KindDeadlineExceeded, contracts.KindTransient:
		return CauseLLMTimeout
	case contracts.KindSchemaViolation:
		return CauseLLMMalformed
	default:
		return CauseLLMTimeout
	}
}

// applyHints reconciles the reasoned name with a creation-event hint: a fuzzy
// match lifts a weak name confidence to the strong band floor.
func applyHints(meta *contracts.CardMetadata, hints *contracts.CardHints) {
	if hints == nil || hints.Name == "" || meta.Name.Value == nil {
		return
	}
	if Similarity(*meta.Name.Value, hints.Name) < MatchThreshold {
		return
	}
	if meta.Name.Confidence < 0.7 {
		meta.Name.Confidence = 0.7
		meta.Name.Rationale = fmt.Sprintf("%s; corroborated by owner-supplied hint %q",
			meta.Name.Rationale, hints.Name)
	}
}
