package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/cardworks/appraisal/pkg/contracts"
	"github.com/cardworks/appraisal/pkg/llm"
	"github.com/cardworks/appraisal/pkg/pricing/adapters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	name  string
	comps []contracts.Comparable
	err   error
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Search(context.Context, adapters.Query) ([]contracts.Comparable, error) {
	return f.comps, f.err
}

type fakeSummaryClient struct {
	content string
	err     error
}

func (f *fakeSummaryClient) Chat(context.Context, []llm.Message, *llm.SamplingOptions) (*llm.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.content}, nil
}

func (f *fakeSummaryClient) ModelID() string { return "test-model" }

func strptr(s string) *string { return &s }

func metadataFor(name string) *contracts.CardMetadata {
	single := contracts.FieldResult{Value: strptr("Base Set"), Confidence: 0.8, Rationale: "r"}
	return &contracts.CardMetadata{
		Name:            contracts.FieldResult{Value: strptr(name), Confidence: 0.9, Rationale: "r"},
		Rarity:          contracts.FieldResult{Value: strptr("Holo Rare"), Confidence: 0.8, Rationale: "r"},
		Set:             contracts.SetField{Single: &single},
		CollectorNumber: contracts.FieldResult{Value: strptr("4/102"), Confidence: 0.9, Rationale: "r"},
	}
}

func cluster(source string, base int64, n int) []contracts.Comparable {
	comps := make([]contracts.Comparable, n)
	for i := range comps {
		comps[i] = contracts.Comparable{
			PriceCents: base + int64(i*100),
			Source:     source,
			SoldAt:     time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -i),
		}
	}
	return comps
}

// TestPrice_HappyPath verifies percentile ordering, source attribution and
// confidence shaping across two healthy adapters and one failing one.
func TestPrice_HappyPath(t *testing.T) {
	set := []adapters.MarketAdapter{
		&fakeAdapter{name: "auctionfeed", comps: cluster("auctionfeed", 10000, 8)},
		&fakeAdapter{name: "marketplace", comps: cluster("marketplace", 10400, 8)},
		&fakeAdapter{name: "pricehistory", err: contracts.Faultf(contracts.KindTransient, "down")},
	}
	agent := NewAgent(set, nil, 0.1, 1024)

	res := agent.Price(context.Background(), &contracts.FeatureEnvelope{}, metadataFor("Charizard"))

	require.NotNil(t, res)
	assert.Equal(t, 16, res.CompsCount)
	require.NotNil(t, res.ValueLowCents)
	require.NotNil(t, res.ValueMedianCents)
	require.NotNil(t, res.ValueHighCents)
	assert.LessOrEqual(t, *res.ValueLowCents, *res.ValueMedianCents)
	assert.LessOrEqual(t, *res.ValueMedianCents, *res.ValueHighCents)
	assert.ElementsMatch(t, []string{"auctionfeed", "marketplace"}, res.Sources)

	// 16 comps out of 20, two of three sources.
	assert.InDelta(t, (16.0/20.0)*(2.0/3.0), res.Confidence, 1e-9)
	assert.NotEmpty(t, res.Summary.Rationale)
	assert.Equal(t, *res.ValueMedianCents, res.Summary.FairValueCents,
		"statistical fallback uses the median")
}

// TestPrice_AllAdaptersEmpty verifies the evidence-free contract: absent
// percentiles, zero confidence, stable trend, no error.
func TestPrice_AllAdaptersEmpty(t *testing.T) {
	set := []adapters.MarketAdapter{
		&fakeAdapter{name: "auctionfeed"},
		&fakeAdapter{name: "marketplace", err: contracts.Faultf(contracts.KindThrottled, "429")},
	}
	agent := NewAgent(set, nil, 0.1, 1024)

	res := agent.Price(context.Background(), &contracts.FeatureEnvelope{}, metadataFor("Charizard"))

	assert.True(t, res.Empty())
	assert.Nil(t, res.ValueLowCents)
	assert.Nil(t, res.ValueMedianCents)
	assert.Nil(t, res.ValueHighCents)
	assert.Zero(t, res.Confidence)
	assert.Equal(t, contracts.TrendStable, res.Summary.Trend)
	assert.NotEmpty(t, res.Summary.Rationale)
}

// TestPrice_NoName verifies a metadata without a name skips the fan-out
// entirely.
func TestPrice_NoName(t *testing.T) {
	meta := metadataFor("x")
	meta.Name.Value = nil
	agent := NewAgent([]adapters.MarketAdapter{&fakeAdapter{name: "auctionfeed"}}, nil, 0.1, 1024)

	res := agent.Price(context.Background(), &contracts.FeatureEnvelope{}, meta)
	assert.True(t, res.Empty())
}

// TestPrice_LLMSummaryAccepted verifies a well-formed model summary within
// bounds replaces the statistical one.
func TestPrice_LLMSummaryAccepted(t *testing.T) {
	set := []adapters.MarketAdapter{
		&fakeAdapter{name: "auctionfeed", comps: cluster("auctionfeed", 10000, 10)},
	}
	client := &fakeSummaryClient{
		content: `{"fairValue": 10400, "trend": "stable", "confidence": 0.6, "rationale": "tight cluster of recent sales"}`,
	}
	agent := NewAgent(set, client, 0.1, 1024)

	res := agent.Price(context.Background(), &contracts.FeatureEnvelope{}, metadataFor("Charizard"))
	assert.Equal(t, int64(10400), res.Summary.FairValueCents)
	assert.Equal(t, "tight cluster of recent sales", res.Summary.Rationale)
}

// TestPrice_LLMSummaryRejected verifies out-of-range model output falls back
// to statistics.
func TestPrice_LLMSummaryRejected(t *testing.T) {
	set := []adapters.MarketAdapter{
		&fakeAdapter{name: "auctionfeed", comps: cluster("auctionfeed", 10000, 10)},
	}
	client := &fakeSummaryClient{
		content: `{"fairValue": 99999999, "trend": "up", "confidence": 0.9, "rationale": "moon"}`,
	}
	agent := NewAgent(set, client, 0.1, 1024)

	res := agent.Price(context.Background(), &contracts.FeatureEnvelope{}, metadataFor("Charizard"))
	assert.Equal(t, *res.ValueMedianCents, res.Summary.FairValueCents)
}

// TestPrice_LLMSummaryErrorFallsBack verifies exhausted inference still
// yields a summary.
func TestPrice_LLMSummaryErrorFallsBack(t *testing.T) {
	set := []adapters.MarketAdapter{
		&fakeAdapter{name: "auctionfeed", comps: cluster("auctionfeed", 10000, 10)},
	}
	client := &fakeSummaryClient{err: contracts.Faultf(contracts.KindThrottled, "429")}
	agent := NewAgent(set, client, 0.1, 1024)

	res := agent.Price(context.Background(), &contracts.FeatureEnvelope{}, metadataFor("Charizard"))
	assert.NotEmpty(t, res.Summary.Rationale)
	assert.Equal(t, *res.ValueMedianCents, res.Summary.FairValueCents)
}

// TestConditionEstimate maps capture quality onto the coarse bands.
func TestConditionEstimate(t *testing.T) {
	sharp := &contracts.FeatureEnvelope{
		Borders: contracts.BorderMetrics{Symmetry: 0.95},
		Quality: contracts.ImageQuality{Blur: 0.1},
	}
	assert.Equal(t, "near_mint", conditionEstimate(sharp))

	worn := &contracts.FeatureEnvelope{
		Borders: contracts.BorderMetrics{Symmetry: 0.6},
		Quality: contracts.ImageQuality{Blur: 0.4},
	}
	assert.Equal(t, "played", conditionEstimate(worn))

	glare := &contracts.FeatureEnvelope{Quality: contracts.ImageQuality{GlareDetected: true}}
	assert.Empty(t, conditionEstimate(glare))
}
