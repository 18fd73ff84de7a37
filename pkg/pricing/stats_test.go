package pricing

import (
	"testing"
	"time"

	"github.com/cardworks/appraisal/pkg/contracts"
	"github.com/stretchr/testify/assert"
)

func comp(cents int64, source string, daysAgo int) contracts.Comparable {
	return contracts.Comparable{
		PriceCents: cents,
		Source:     source,
		SoldAt:     time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -daysAgo),
	}
}

// TestPercentile covers interpolation, single element and bounds.
func TestPercentile(t *testing.T) {
	sorted := []int64{100, 200, 300, 400, 500}

	assert.Equal(t, int64(300), percentile(sorted, 0.5))
	assert.Equal(t, int64(100), percentile(sorted, 0))
	assert.Equal(t, int64(500), percentile(sorted, 1))
	assert.Equal(t, int64(140), percentile(sorted, 0.10), "interpolated between first two")
	assert.Equal(t, int64(42), percentile([]int64{42}, 0.9))
	assert.Zero(t, percentile(nil, 0.5))
}

// TestDropOutliers verifies the 1.5-IQR fence rejects the spike and keeps the
// cluster.
func TestDropOutliers(t *testing.T) {
	comps := []contracts.Comparable{
		comp(10000, "a", 1), comp(10500, "a", 2), comp(11000, "b", 3),
		comp(10200, "b", 4), comp(9900, "c", 5),
		comp(95000, "c", 6), // fat-finger listing
	}

	retained := dropOutliers(comps)
	assert.Len(t, retained, 5)
	for _, c := range retained {
		assert.Less(t, c.PriceCents, int64(20000))
	}
}

// TestDropOutliers_SmallSample verifies tiny samples bypass the fence.
func TestDropOutliers_SmallSample(t *testing.T) {
	comps := []contracts.Comparable{comp(100, "a", 1), comp(900000, "b", 2)}
	assert.Len(t, dropOutliers(comps), 2)
}

// TestTrendOf covers rising, falling and stable series plus the small-sample
// floor.
func TestTrendOf(t *testing.T) {
	rising := []contracts.Comparable{
		comp(10000, "a", 60), comp(10100, "a", 50),
		comp(12000, "a", 10), comp(12100, "a", 5),
	}
	assert.Equal(t, contracts.TrendUp, trendOf(rising))

	falling := []contracts.Comparable{
		comp(12000, "a", 60), comp(12100, "a", 50),
		comp(10000, "a", 10), comp(10100, "a", 5),
	}
	assert.Equal(t, contracts.TrendDown, trendOf(falling))

	flat := []contracts.Comparable{
		comp(10000, "a", 60), comp(10100, "a", 50),
		comp(10200, "a", 10), comp(10150, "a", 5),
	}
	assert.Equal(t, contracts.TrendStable, trendOf(flat), "movement under 5% is stable")

	assert.Equal(t, contracts.TrendStable, trendOf(flat[:2]))
}

// TestUniqueSources preserves first-seen order.
func TestUniqueSources(t *testing.T) {
	comps := []contracts.Comparable{
		comp(1, "marketplace", 1), comp(2, "auctionfeed", 2),
		comp(3, "marketplace", 3),
	}
	assert.Equal(t, []string{"marketplace", "auctionfeed"}, uniqueSources(comps))
}
