package pricing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cardworks/appraisal/pkg/contracts"
	"github.com/cardworks/appraisal/pkg/llm"
)

// summaryInput is the structured evidence handed to the summary call.
type summaryInput struct {
	CompsCount  int
	LowCents    int64
	MedianCents int64
	HighCents   int64
	Trend       contracts.Trend
	Confidence  float64
}

const summarySystemPrompt = `You are a trading-card market analyst. You receive aggregate sale statistics for one card and produce a short valuation summary. Use only the numbers provided; never invent sales.

Respond with a single JSON object:
{"fairValue": <integer USD cents>, "trend": "up"|"down"|"stable", "confidence": <number 0-1>, "rationale": <string>}

fairValue must lie within the given low-high range. trend must restate the computed trend unless the statistics plainly contradict it.`

// summarize asks the model for a narrative summary and falls back to a
// deterministic statistical summary when inference or parsing fails.
func (a *Agent) summarize(ctx context.Context, in summaryInput) contracts.PriceSummary {
	if a.client == nil {
		return statsSummary(in)
	}

	user := fmt.Sprintf(
		"Retained comparables: %d\n10th percentile: %d cents\nMedian: %d cents\n90th percentile: %d cents\nComputed trend: %s\nEvidence confidence: %.2f",
		in.CompsCount, in.LowCents, in.MedianCents, in.HighCents, in.Trend, in.Confidence)

	resp, err := a.client.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: summarySystemPrompt},
		{Role: llm.RoleUser, Content: user},
	}, &llm.SamplingOptions{Temperature: a.temperature, MaxTokens: a.maxTokens})
	if err != nil {
		a.log.WarnContext(ctx, "summary inference failed, using statistical summary", "error", err)
		return statsSummary(in)
	}

	summary, ok := parseSummary(resp.Content, in)
	if !ok {
		a.log.WarnContext(ctx, "summary output rejected, using statistical summary")
		return statsSummary(in)
	}
	return summary
}

// parseSummary decodes and bounds-checks the model output.
func parseSummary(content string, in summaryInput) (contracts.PriceSummary, bool) {
	raw, err := llm.ExtractJSON(content)
	if err != nil {
		return contracts.PriceSummary{}, false
	}
	var out struct {
		FairValue  int64   `json:"fairValue"`
		Trend      string  `json:"trend"`
		Confidence float64 `json:"confidence"`
		Rationale  string  `json:"rationale"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return contracts.PriceSummary{}, false
	}

	trend := contracts.Trend(out.Trend)
	if trend != contracts.TrendUp && trend != contracts.TrendDown && trend != contracts.TrendStable {
		return contracts.PriceSummary{}, false
	}
	if out.FairValue < in.LowCents || out.FairValue > in.HighCents {
		return contracts.PriceSummary{}, false
	}
	if out.Confidence < 0 || out.Confidence > 1 || out.Rationale == "" {
		return contracts.PriceSummary{}, false
	}
	return contracts.PriceSummary{
		FairValueCents: out.FairValue,
		Trend:          trend,
		Confidence:     out.Confidence,
		Rationale:      out.Rationale,
	}, true
}

// statsSummary is the deterministic fallback built from statistics alone.
func statsSummary(in summaryInput) contracts.PriceSummary {
	return contracts.PriceSummary{
		FairValueCents: in.MedianCents,
		Trend:          in.Trend,
		Confidence:     in.Confidence,
		Rationale: fmt.Sprintf("median of %d retained comparables, %s trend",
			in.CompsCount, in.Trend),
	}
}
