// Package authenticity fuses perceptual-hash, text and visual-consistency
// signals into a composite authenticity verdict for one card image.
package authenticity

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/cardworks/appraisal/pkg/contracts"
	"github.com/cardworks/appraisal/pkg/llm"
	"github.com/cardworks/appraisal/pkg/objectstore"
)

// fakeThreshold: composite scores below this flag the card as suspect.
const fakeThreshold = 0.5

// Agent is the authenticity stage.
type Agent struct {
	objects   objectstore.ObjectStore
	table     *ReferenceTable
	weights   map[string]float64
	fontLimit float64
	client    llm.Client
	log       *slog.Logger
}

// NewAgent builds the authenticity agent. The client carries the inference
// retry policy and may be nil to always use the synthesized rationale.
func NewAgent(store objectstore.ObjectStore, table *ReferenceTable, weights map[string]float64, fontLimit float64, client llm.Client) *Agent {
	return &Agent{
		objects:   store,
		table:     table,
		weights:   weights,
		fontLimit: fontLimit,
		client:    client,
		log:       slog.Default().With("component", "authenticity"),
	}
}

// Verify derives the composite authenticity score. It never returns an
// error: unavailable evidence degrades the affected signal to neutral.
func (a *Agent) Verify(ctx context.Context, features *contracts.FeatureEnvelope, meta *contracts.CardMetadata, imageKey string) *contracts.AuthenticityResult {
	signals := map[string]float64{
		contracts.SignalVisualHash:        a.hashSignal(ctx, meta, imageKey),
		contracts.SignalTextMatch:         textMatchScore(meta),
		contracts.SignalHoloPattern:       holoPatternScore(features.HoloVariance, meta),
		contracts.SignalBorderConsistency: features.Borders.Symmetry,
		contracts.SignalFontValidation:    fontValidationScore(features.Fonts.SizeVariance, a.fontLimit),
	}

	score := fuse(signals, a.weights)
	result := &contracts.AuthenticityResult{
		Score:        score,
		FakeDetected: score < fakeThreshold,
		Signals:      signals,
	}

	rationale, verified := a.rationale(ctx, signals, score)
	result.Rationale = rationale
	result.VerifiedByAI = verified
	return result
}

// hashSignal computes the perceptual hash of the stored image and scores it
// against the reference table. Any failure along the way is neutral.
func (a *Agent) hashSignal(ctx context.Context, meta *contracts.CardMetadata, imageKey string) float64 {
	set, _, ok := meta.Set.Best()
	if !ok || meta.CollectorNumber.Value == nil {
		return neutralScore
	}
	refs := a.table.Lookup(set, *meta.CollectorNumber.Value)
	if len(refs) == 0 {
		return neutralScore
	}

	data, err := a.objects.Get(ctx, imageKey)
	if err != nil {
		a.log.WarnContext(ctx, "image fetch failed, neutral hash signal", "key", imageKey, "error", err)
		return neutralScore
	}
	hash, err := PerceptualHash(data)
	if err != nil {
		a.log.WarnContext(ctx, "hash computation failed, neutral hash signal", "key", imageKey, "error", err)
		return neutralScore
	}
	return visualHashScore(hash, refs)
}

const rationaleSystemPrompt = `You are a trading-card authentication analyst. You receive named authenticity signals in [0,1] and a composite score. Write one or two sentences explaining the verdict, citing the strongest and weakest signals by name. Respond with plain text, no JSON.`

// rationale asks the model for a narrative and synthesizes one from the
// signal extremes when inference fails.
func (a *Agent) rationale(ctx context.Context, signals map[string]float64, score float64) (string, bool) {
	if a.client == nil {
		return synthesizeRationale(signals, score), false
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Composite score: %.2f\nSignals:\n", score)
	for _, name := range sortedSignalNames(signals) {
		fmt.Fprintf(&sb, "- %s: %.2f\n", name, signals[name])
	}

	resp, err := a.client.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: rationaleSystemPrompt},
		{Role: llm.RoleUser, Content: sb.String()},
	}, &llm.SamplingOptions{Temperature: 0.1, MaxTokens: 512})
	if err != nil {
		a.log.WarnContext(ctx, "rationale inference failed, synthesizing", "error", err)
		return synthesizeRationale(signals, score), false
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return synthesizeRationale(signals, score), false
	}
	return text, true
}

// synthesizeRationale names the strongest and weakest signals.
func synthesizeRationale(signals map[string]float64, score float64) string {
	names := sortedSignalNames(signals)
	if len(names) == 0 {
		return fmt.Sprintf("composite score %.2f with no usable signals", score)
	}
	high, low := names[0], names[0]
	for _, n := range names {
		if signals[n] > signals[high] {
			high = n
		}
		if signals[n] < signals[low] {
			low = n
		}
	}
	return fmt.Sprintf("composite score %.2f; strongest signal %s (%.2f), weakest %s (%.2f)",
		score, high, signals[high], low, signals[low])
}

func sortedSignalNames(signals map[string]float64) []string {
	names := make([]string, 0, len(signals))
	for n := range signals {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
