package adapters

import (
	"context"
	"net/url"
	"time"

	"github.com/cardworks/appraisal/pkg/config"
	"github.com/cardworks/appraisal/pkg/contracts"
)

// AuctionFeed pulls closed-auction results from the live auction feed.
type AuctionFeed struct {
	client *venueClient
}

// NewAuctionFeed builds the adapter from its profile entry.
func NewAuctionFeed(p config.AdapterProfile) *AuctionFeed {
	return &AuctionFeed{client: newVenueClient(p)}
}

func (a *AuctionFeed) Name() string { return a.client.name }

type auctionFeedResponse struct {
	Sales []struct {
		Price    float64   `json:"price"`
		Currency string    `json:"currency"`
		Grade    string    `json:"grade"`
		ClosedAt time.Time `json:"closed_at"`
	} `json:"sales"`
}

// Search returns closed auctions for the card, newest first per the venue.
func (a *AuctionFeed) Search(ctx context.Context, q Query) ([]contracts.Comparable, error) {
	params := url.Values{}
	params.Set("card", q.Name)
	if q.Set != "" {
		params.Set("set", q.Set)
	}
	if q.Number != "" {
		params.Set("number", q.Number)
	}

	var resp auctionFeedResponse
	if err := a.client.getJSON(ctx, "/v1/closed-auctions", params, &resp); err != nil {
		return nil, err
	}

	comps := make([]contracts.Comparable, 0, len(resp.Sales))
	for _, s := range resp.Sales {
		cents, ok := toCents(s.Price, s.Currency)
		if !ok {
			continue
		}
		comps = append(comps, contracts.Comparable{
			PriceCents: cents,
			Condition:  s.Grade,
			Source:     a.Name(),
			SoldAt:     s.ClosedAt,
		})
	}
	return comps, nil
}
