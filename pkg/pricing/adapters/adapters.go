// Package adapters holds the market data sources the pricing agent fans out
// to. Every adapter wraps its venue API with a rate limiter, a circuit
// breaker, bounded retries and a hard timeout; a venue that stays down yields
// an empty contribution, never an upstream error.
package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cardworks/appraisal/pkg/config"
	"github.com/cardworks/appraisal/pkg/contracts"
	"github.com/cardworks/appraisal/pkg/util/resiliency"
	"golang.org/x/time/rate"
)

// Query is the card identity tuple the agent searches comparables for.
type Query struct {
	Name      string
	Set       string
	Number    string
	Rarity    string
	Condition string
}

// MarketAdapter is one comparable-sales source.
type MarketAdapter interface {
	Name() string
	Search(ctx context.Context, q Query) ([]contracts.Comparable, error)
}

// adapterTimeout bounds one venue call end to end, retries included.
const adapterTimeout = 10 * time.Second

// usdRates converts venue currencies to USD cents. Fixed table; venues quote
// in a handful of currencies and the valuation is advisory, not settlement.
var usdRates = map[string]float64{
	"USD": 1.0,
	"EUR": 1.08,
	"GBP": 1.27,
	"JPY": 0.0068,
}

// venueClient is the shared guarded HTTP core under every adapter.
type venueClient struct {
	name    string
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	breaker *resiliency.CircuitBreaker
	retry   resiliency.RetryPolicy
}

func newVenueClient(p config.AdapterProfile) *venueClient {
	rps := p.RateRPS
	if rps <= 0 {
		rps = 5
	}
	burst := p.RateBurst
	if burst <= 0 {
		burst = 10
	}
	return &venueClient{
		name:    p.Name,
		baseURL: strings.TrimRight(p.BaseURL, "/"),
		apiKey:  p.APIKey,
		http:    &http.Client{Timeout: adapterTimeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		breaker: resiliency.NewCircuitBreaker(p.Name, 5, 30*time.Second),
		retry: resiliency.RetryPolicy{
			MaxAttempts: p.MaxRetries + 1,
			BaseDelay:   500 * time.Millisecond,
			Multiplier:  2.0,
			Jitter:      0.2,
		},
	}
}

// getJSON performs a guarded GET and decodes the body into out.
func (c *venueClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, adapterTimeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return contracts.NewFault(contracts.KindDeadlineExceeded, fmt.Errorf("%s: rate wait: %w", c.name, err))
	}
	if err := c.breaker.Allow(); err != nil {
		return err
	}

	_, err := resiliency.Do(ctx, c.retry, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, c.fetch(ctx, path, query, out)
	})
	if err != nil {
		c.breaker.Failure()
		return err
	}
	c.breaker.Success()
	return nil
}

func (c *venueClient) fetch(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", c.name, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return contracts.NewFault(contracts.KindDeadlineExceeded, fmt.Errorf("%s timed out: %w", c.name, err))
		}
		return contracts.NewFault(contracts.KindTransient, fmt.Errorf("%s call failed: %w", c.name, err))
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return contracts.Faultf(contracts.KindThrottled, "%s throttled: %d", c.name, resp.StatusCode)
	case resp.StatusCode >= 500:
		return contracts.Faultf(contracts.KindTransient, "%s server error: %d", c.name, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return contracts.Faultf(contracts.KindNotFound, "%s: no listings", c.name)
	case resp.StatusCode != http.StatusOK:
		return contracts.Faultf(contracts.KindInvalidInput, "%s rejected request: %d", c.name, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return contracts.NewFault(contracts.KindTransient, fmt.Errorf("%s: decode response: %w", c.name, err))
	}
	return nil
}

// toCents converts a venue price to USD cents. Unknown currencies are
// reported as unusable rather than silently assumed to be dollars.
func toCents(amount float64, currency string) (int64, bool) {
	r, ok := usdRates[strings.ToUpper(currency)]
	if !ok {
		return 0, false
	}
	cents := int64(amount*r*100 + 0.5)
	if cents <= 0 {
		return 0, false
	}
	return cents, true
}

// FromProfile instantiates the configured adapter set. Unknown names are an
// error so a profile typo fails at startup, not silently at runtime.
func FromProfile(profile *config.PipelineProfile, names []string) ([]MarketAdapter, error) {
	out := make([]MarketAdapter, 0, len(names))
	for _, name := range names {
		p := profile.Adapter(name)
		if p == nil {
			return nil, fmt.Errorf("adapter %q not in profile", name)
		}
		switch name {
		case "auctionfeed":
			out = append(out, NewAuctionFeed(*p))
		case "marketplace":
			out = append(out, NewMarketplace(*p))
		case "pricehistory":
			out = append(out, NewPriceHistory(*p))
		default:
			return nil, fmt.Errorf("unknown adapter %q", name)
		}
	}
	return out, nil
}
