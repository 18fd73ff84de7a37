// Package pricing turns card metadata plus visual features into a valuation:
// concurrent market-adapter fan-out, outlier-fenced percentiles and an LLM
// summary with a purely statistical fallback. The agent never fails a
// pipeline run; absent market data degrades to an empty result.
package pricing

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cardworks/appraisal/pkg/contracts"
	"github.com/cardworks/appraisal/pkg/llm"
	"github.com/cardworks/appraisal/pkg/pricing/adapters"
)

// confidence shaping: full confidence needs twenty retained comparables
// across every configured source.
const fullConfidenceComps = 20

// Agent is the pricing stage.
type Agent struct {
	adapters    []adapters.MarketAdapter
	client      llm.Client
	temperature float64
	maxTokens   int
	log         *slog.Logger
}

// NewAgent builds the pricing agent over the configured adapter set. The
// client carries the inference retry policy; pass nil to always use the
// statistical summary.
func NewAgent(set []adapters.MarketAdapter, client llm.Client, temperature float64, maxTokens int) *Agent {
	return &Agent{
		adapters:    set,
		client:      client,
		temperature: temperature,
		maxTokens:   maxTokens,
		log:         slog.Default().With("component", "pricing"),
	}
}

// Price produces a PricingResult for the card. It never returns an error:
// adapter failures shrink the evidence set and an evidence-free run yields
// the empty result.
func (a *Agent) Price(ctx context.Context, features *contracts.FeatureEnvelope, meta *contracts.CardMetadata) *contracts.PricingResult {
	q, ok := buildQuery(features, meta)
	if !ok {
		a.log.InfoContext(ctx, "no card name available, skipping market search")
		return emptyResult("no card identity to search for")
	}

	comps := a.fanOut(ctx, q)
	if len(comps) == 0 {
		return emptyResult("no market data found for this card")
	}

	retained := dropOutliers(comps)
	if len(retained) == 0 {
		return emptyResult("all comparables rejected as outliers")
	}

	sorted := sortedPrices(retained)
	low := percentile(sorted, 0.10)
	median := percentile(sorted, 0.50)
	high := percentile(sorted, 0.90)
	sources := uniqueSources(retained)

	diversity := float64(len(sources)) / float64(len(a.adapters))
	confidence := minF(1, float64(len(retained))/fullConfidenceComps) * diversity

	result := &contracts.PricingResult{
		ValueLowCents:    &low,
		ValueMedianCents: &median,
		ValueHighCents:   &high,
		CompsCount:       len(retained),
		Sources:          sources,
		Confidence:       confidence,
	}
	result.Summary = a.summarize(ctx, summaryInput{
		CompsCount:  len(retained),
		LowCents:    low,
		MedianCents: median,
		HighCents:   high,
		Trend:       trendOf(retained),
		Confidence:  confidence,
	})
	return result
}

// fanOut queries every adapter concurrently. Bounded by construction: one
// goroutine per configured adapter. A failed adapter contributes nothing.
func (a *Agent) fanOut(ctx context.Context, q adapters.Query) []contracts.Comparable {
	var mu sync.Mutex
	var all []contracts.Comparable
	var wg sync.WaitGroup

	for _, ad := range a.adapters {
		wg.Add(1)
		go func(ad adapters.MarketAdapter) {
			defer wg.Done()
			comps, err := ad.Search(ctx, q)
			if err != nil {
				a.log.WarnContext(ctx, "market adapter failed, empty contribution",
					"adapter", ad.Name(), "error", err)
				return
			}
			mu.Lock()
			all = append(all, comps...)
			mu.Unlock()
		}(ad)
	}
	wg.Wait()
	return all
}

// buildQuery composes the search tuple from metadata, preferring the single
// set value and falling back to the top candidate. Without a name there is
// nothing to search.
func buildQuery(features *contracts.FeatureEnvelope, meta *contracts.CardMetadata) (adapters.Query, bool) {
	if meta == nil || meta.Name.Value == nil || *meta.Name.Value == "" {
		return adapters.Query{}, false
	}
	q := adapters.Query{
		Name:      *meta.Name.Value,
		Condition: conditionEstimate(features),
	}
	if set, _, ok := meta.Set.Best(); ok {
		q.Set = set
	}
	if meta.CollectorNumber.Value != nil {
		q.Number = *meta.CollectorNumber.Value
	}
	if meta.Rarity.Value != nil {
		q.Rarity = *meta.Rarity.Value
	}
	return q, true
}

// conditionEstimate maps capture quality onto a coarse condition band. The
// adapters use it as a search hint only.
func conditionEstimate(features *contracts.FeatureEnvelope) string {
	if features == nil {
		return ""
	}
	q := features.Quality
	if q.GlareDetected || q.Blur > 0.6 {
		return "" // capture too poor to infer condition
	}
	if features.Borders.Symmetry > 0.9 && q.Blur < 0.3 {
		return "near_mint"
	}
	return "played"
}

// emptyResult is the evidence-free valuation: absent percentiles, zero
// confidence, stable trend.
func emptyResult(reason string) *contracts.PricingResult {
	return &contracts.PricingResult{
		CompsCount: 0,
		Confidence: 0,
		Summary: contracts.PriceSummary{
			Trend:      contracts.TrendStable,
			Confidence: 0,
			Rationale:  reason,
		},
	}
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
