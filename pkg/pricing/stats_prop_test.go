package pricing

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/cardworks/appraisal/pkg/contracts"
)

func compsFromPrices(prices []int64) []contracts.Comparable {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	out := make([]contracts.Comparable, len(prices))
	for i, p := range prices {
		out[i] = contracts.Comparable{
			Source:     "auctionfeed",
			PriceCents: p,
			SoldAt:     base.Add(time.Duration(i) * time.Hour),
		}
	}
	return out
}

// TestStatsProperties checks the distribution invariants over arbitrary price
// sets instead of hand-picked ones.
func TestStatsProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	priceGen := gen.SliceOf(gen.Int64Range(1, 50_000_00))

	properties.Property("percentiles are ordered and bounded", prop.ForAll(
		func(prices []int64) bool {
			if len(prices) == 0 {
				return true
			}
			sorted := sortedPrices(compsFromPrices(prices))
			p10 := percentile(sorted, 0.10)
			p50 := percentile(sorted, 0.50)
			p90 := percentile(sorted, 0.90)
			return sorted[0] <= p10 && p10 <= p50 && p50 <= p90 && p90 <= sorted[len(sorted)-1]
		},
		priceGen,
	))

	properties.Property("outlier rejection keeps a non-empty subset", prop.ForAll(
		func(prices []int64) bool {
			if len(prices) == 0 {
				return true
			}
			comps := compsFromPrices(prices)
			kept := dropOutliers(comps)
			if len(kept) == 0 || len(kept) > len(comps) {
				return false
			}
			sorted := sortedPrices(comps)
			lo, hi := sorted[0], sorted[len(sorted)-1]
			for _, c := range kept {
				if c.PriceCents < lo || c.PriceCents > hi {
					return false
				}
			}
			return true
		},
		priceGen,
	))

	properties.Property("the interquartile half always survives the fence", prop.ForAll(
		func(prices []int64) bool {
			comps := compsFromPrices(prices)
			kept := dropOutliers(comps)
			if len(comps) < 4 {
				return len(kept) == len(comps)
			}
			sorted := sortedPrices(comps)
			q1 := percentile(sorted, 0.25)
			q3 := percentile(sorted, 0.75)
			for _, c := range kept {
				if c.PriceCents >= q1 && c.PriceCents <= q3 {
					return true
				}
			}
			return false
		},
		priceGen,
	))

	properties.Property("unique sources never repeat", prop.ForAll(
		func(prices []int64) bool {
			sources := uniqueSources(compsFromPrices(prices))
			seen := make(map[string]bool)
			for _, s := range sources {
				if seen[s] {
					return false
				}
				seen[s] = true
			}
			return len(prices) == 0 || len(sources) == 1
		},
		priceGen,
	))

	properties.TestingRun(t)
}
