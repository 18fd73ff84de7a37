package adapters

import (
	"context"
	"net/url"
	"time"

	"github.com/cardworks/appraisal/pkg/config"
	"github.com/cardworks/appraisal/pkg/contracts"
)

// Marketplace pulls sold listings from the marketplace API. Unlike the
// auction feed it quotes integer cents directly.
type Marketplace struct {
	client *venueClient
}

// NewMarketplace builds the adapter from its profile entry.
func NewMarketplace(p config.AdapterProfile) *Marketplace {
	return &Marketplace{client: newVenueClient(p)}
}

func (m *Marketplace) Name() string { return m.client.name }

type marketplaceResponse struct {
	Results []struct {
		AmountCents int64  `json:"amount_cents"`
		Currency    string `json:"currency"`
		Condition   string `json:"condition"`
		SoldAt      int64  `json:"sold_at"` // unix seconds
	} `json:"results"`
}

// Search returns sold listings matching the card identity.
func (m *Marketplace) Search(ctx context.Context, q Query) ([]contracts.Comparable, error) {
	params := url.Values{}
	params.Set("q", q.Name)
	params.Set("status", "sold")
	if q.Set != "" {
		params.Set("set", q.Set)
	}
	if q.Rarity != "" {
		params.Set("rarity", q.Rarity)
	}
	if q.Condition != "" {
		params.Set("condition", q.Condition)
	}

	var resp marketplaceResponse
	if err := m.client.getJSON(ctx, "/listings/sold", params, &resp); err != nil {
		return nil, err
	}

	comps := make([]contracts.Comparable, 0, len(resp.Results))
	for _, r := range resp.Results {
		cents, ok := toCents(float64(r.AmountCents)/100.0, r.Currency)
		if !ok {
			continue
		}
		comps = append(comps, contracts.Comparable{
			PriceCents: cents,
			Condition:  r.Condition,
			Source:     m.Name(),
			SoldAt:     time.Unix(r.SoldAt, 0).UTC(),
		})
	}
	return comps, nil
}
