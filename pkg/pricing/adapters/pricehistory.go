package adapters

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/cardworks/appraisal/pkg/config"
	"github.com/cardworks/appraisal/pkg/contracts"
)

// PriceHistory pulls daily aggregate medians from the historical price
// service. Each point stands in as one comparable at the day's median.
type PriceHistory struct {
	client *venueClient
	window int // days of history requested
}

// NewPriceHistory builds the adapter from its profile entry.
func NewPriceHistory(p config.AdapterProfile) *PriceHistory {
	return &PriceHistory{client: newVenueClient(p), window: 90}
}

func (h *PriceHistory) Name() string { return h.client.name }

type priceHistoryResponse struct {
	Points []struct {
		Median   float64 `json:"median"`
		Currency string  `json:"currency"`
		Date     string  `json:"date"` // YYYY-MM-DD
	} `json:"points"`
}

// Search returns one comparable per daily aggregate point.
func (h *PriceHistory) Search(ctx context.Context, q Query) ([]contracts.Comparable, error) {
	params := url.Values{}
	params.Set("name", q.Name)
	params.Set("days", strconv.Itoa(h.window))
	if q.Set != "" {
		params.Set("set", q.Set)
	}
	if q.Number != "" {
		params.Set("number", q.Number)
	}

	var resp priceHistoryResponse
	if err := h.client.getJSON(ctx, "/v2/history", params, &resp); err != nil {
		return nil, err
	}

	comps := make([]contracts.Comparable, 0, len(resp.Points))
	for _, p := range resp.Points {
		cents, ok := toCents(p.Median, p.Currency)
		if !ok {
			continue
		}
		soldAt, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			continue
		}
		comps = append(comps, contracts.Comparable{
			PriceCents: cents,
			Condition:  "aggregate",
			Source:     h.Name(),
			SoldAt:     soldAt,
		})
	}
	return comps, nil
}
