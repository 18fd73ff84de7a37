package pricing

import (
	"math"
	"sort"

	"github.com/cardworks/appraisal/pkg/contracts"
)

// iqrFence is the Tukey fence multiplier for outlier rejection.
const iqrFence = 1.5

// stableTrendBand: relative median movement below this is reported stable.
const stableTrendBand = 0.05

// sortedPrices extracts prices ascending.
func sortedPrices(comps []contracts.Comparable) []int64 {
	prices := make([]int64, len(comps))
	for i, c := range comps {
		prices[i] = c.PriceCents
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })
	return prices
}

// percentile returns the p-th percentile (p in [0,1]) of ascending prices via
// linear interpolation.
func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return int64(math.Round(float64(sorted[lo]) + frac*float64(sorted[hi]-sorted[lo])))
}

// dropOutliers removes comparables outside the 1.5-IQR fence. With fewer than
// four points the fence is meaningless and everything is retained.
func dropOutliers(comps []contracts.Comparable) []contracts.Comparable {
	if len(comps) < 4 {
		return comps
	}
	sorted := sortedPrices(comps)
	q1 := percentile(sorted, 0.25)
	q3 := percentile(sorted, 0.75)
	iqr := float64(q3 - q1)
	low := float64(q1) - iqrFence*iqr
	high := float64(q3) + iqrFence*iqr

	out := make([]contracts.Comparable, 0, len(comps))
	for _, c := range comps {
		if p := float64(c.PriceCents); p >= low && p <= high {
			out = append(out, c)
		}
	}
	return out
}

// trendOf splits comparables into older and recent halves by sale date and
// compares their medians. Movement under the stable band, or insufficient
// data, reports stable.
func trendOf(comps []contracts.Comparable) contracts.Trend {
	if len(comps) < 4 {
		return contracts.TrendStable
	}
	byDate := make([]contracts.Comparable, len(comps))
	copy(byDate, comps)
	sort.Slice(byDate, func(i, j int) bool { return byDate[i].SoldAt.Before(byDate[j].SoldAt) })

	mid := len(byDate) / 2
	older := percentile(sortedPrices(byDate[:mid]), 0.5)
	recent := percentile(sortedPrices(byDate[mid:]), 0.5)
	if older == 0 {
		return contracts.TrendStable
	}

	rel := (float64(recent) - float64(older)) / float64(older)
	switch {
	case math.Abs(rel) < stableTrendBand:
		return contracts.TrendStable
	case rel > 0:
		return contracts.TrendUp
	default:
		return contracts.TrendDown
	}
}

// uniqueSources lists sources contributing at least one retained comparable,
// in first-seen order.
func uniqueSources(comps []contracts.Comparable) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range comps {
		if !seen[c.Source] {
			seen[c.Source] = true
			out = append(out, c.Source)
		}
	}
	return out
}
