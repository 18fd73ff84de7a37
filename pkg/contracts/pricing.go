package contracts

import "time"

// Trend classifies recent price direction.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// Comparable is a single historical sale used as pricing evidence.
// Prices are integer USD cents.
type Comparable struct {
	PriceCents int64     `json:"priceCents"`
	Condition  string    `json:"condition"`
	Source     string    `json:"source"`
	SoldAt     time.Time `json:"soldAt"`
}

// PriceSummary is the narrative layer over the percentile triple.
type PriceSummary struct {
	FairValueCents int64   `json:"fairValue"`
	Trend          Trend   `json:"trend"`
	Confidence     float64 `json:"confidence"`
	Rationale      string  `json:"rationale"`
}

// PricingResult is the valuation triple with provenance.
// Invariants: ValueLow <= ValueMedian <= ValueHigh when CompsCount > 0;
// CompsCount == 0 implies Confidence <= 0.3.
type PricingResult struct {
	ValueLowCents    *int64 `json:"valueLow"`
	ValueMedianCents *int64 `json:"valueMedian"`
	ValueHighCents   *int64 `json:"valueHigh"`

	CompsCount int      `json:"compsCount"`
	Sources    []string `json:"sources"`
	Confidence float64  `json:"confidence"`

	Summary PriceSummary `json:"summary"`
}

// Empty reports whether the result carries no market evidence.
func (p *PricingResult) Empty() bool {
	return p.CompsCount == 0
}
