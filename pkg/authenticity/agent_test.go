package authenticity

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cardworks/appraisal/pkg/config"
	"github.com/cardworks/appraisal/pkg/contracts"
	"github.com/cardworks/appraisal/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	data map[string][]byte
}

func (f *fakeObjects) Get(_ context.Context, key string) ([]byte, error) {
	if d, ok := f.data[key]; ok {
		return d, nil
	}
	return nil, contracts.Faultf(contracts.KindNotFound, "object %q not found", key)
}

func (f *fakeObjects) Delete(context.Context, string) error { return nil }

func (f *fakeObjects) PresignPut(context.Context, string, string, int64, time.Duration) (string, error) {
	return "", contracts.Faultf(contracts.KindInvalidInput, "not supported in tests")
}

type fakeRationaleClient struct {
	content string
	err     error
}

func (f *fakeRationaleClient) Chat(context.Context, []llm.Message, *llm.SamplingOptions) (*llm.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.content}, nil
}

func (f *fakeRationaleClient) ModelID() string { return "test-model" }

func strptr(s string) *string { return &s }

func holoMetadata() *contracts.CardMetadata {
	single := contracts.FieldResult{Value: strptr("Base Set"), Confidence: 0.8, Rationale: "r"}
	return &contracts.CardMetadata{
		Name:            contracts.FieldResult{Value: strptr("Charizard"), Confidence: 0.9, Rationale: "r"},
		Rarity:          contracts.FieldResult{Value: strptr("Holo Rare"), Confidence: 0.8, Rationale: "r"},
		Set:             contracts.SetField{Single: &single},
		CollectorNumber: contracts.FieldResult{Value: strptr("4/102"), Confidence: 0.9, Rationale: "r"},
	}
}

func goodFeatures() *contracts.FeatureEnvelope {
	return &contracts.FeatureEnvelope{
		HoloVariance: 0.45,
		Borders:      contracts.BorderMetrics{Symmetry: 0.95},
		Fonts:        contracts.FontMetrics{SizeVariance: 0.0005},
	}
}

func defaultWeights() map[string]float64 {
	return config.DefaultProfile().Authenticity.Weights
}

func defaultFontLimit() float64 {
	return config.DefaultProfile().Authenticity.FontVarianceLimit
}

// TestVerify_GenuineCard verifies a consistent holo card scores above the
// fake threshold with all five signals present.
func TestVerify_GenuineCard(t *testing.T) {
	agent := NewAgent(&fakeObjects{}, &ReferenceTable{hashes: map[string][]uint64{}},
		defaultWeights(), defaultFontLimit(), nil)

	res := agent.Verify(context.Background(), goodFeatures(), holoMetadata(), "uploads/u/front.png")

	assert.False(t, res.FakeDetected)
	assert.GreaterOrEqual(t, res.Score, 0.5)
	assert.Len(t, res.Signals, 5)
	assert.InDelta(t, neutralScore, res.Signals[contracts.SignalVisualHash], 1e-9,
		"no reference entry is neutral")
	assert.False(t, res.VerifiedByAI, "nil client synthesizes the rationale")
	assert.Contains(t, res.Rationale, "composite score")
}

// TestVerify_ContradictorySignals verifies a matte-looking card claimed as
// holo with asymmetric borders lands under the threshold.
func TestVerify_ContradictorySignals(t *testing.T) {
	features := &contracts.FeatureEnvelope{
		HoloVariance: 0.05, // claimed holo but flat
		Borders:      contracts.BorderMetrics{Symmetry: 0.3},
		Fonts:        contracts.FontMetrics{SizeVariance: 0.05},
	}
	meta := holoMetadata()
	meta.Name.Value = nil
	meta.Name.Confidence = 0.1

	agent := NewAgent(&fakeObjects{}, &ReferenceTable{hashes: map[string][]uint64{}},
		defaultWeights(), defaultFontLimit(), nil)
	res := agent.Verify(context.Background(), features, meta, "uploads/u/front.png")

	assert.True(t, res.FakeDetected)
	assert.Less(t, res.Score, 0.5)
	assert.InDelta(t, 0.2, res.Signals[contracts.SignalHoloPattern], 1e-9,
		"flat holo contradiction scores 0.2")
}

// TestVerify_ReferenceHashMatch verifies a matching reference hash drives the
// visual signal to 1 and the image is actually fetched.
func TestVerify_ReferenceHashMatch(t *testing.T) {
	img := gradientImage(t, 200, 280, false)
	hash, err := PerceptualHash(img)
	require.NoError(t, err)

	objects := &fakeObjects{data: map[string][]byte{"uploads/u/front.png": img}}
	table := &ReferenceTable{hashes: map[string][]uint64{
		"base set|4/102": {hash, hash ^ 0xff},
	}}
	agent := NewAgent(objects, table, defaultWeights(), defaultFontLimit(), nil)

	res := agent.Verify(context.Background(), goodFeatures(), holoMetadata(), "uploads/u/front.png")
	assert.InDelta(t, 1.0, res.Signals[contracts.SignalVisualHash], 1e-9, "best match wins")
}

// TestVerify_MissingImageIsNeutral verifies a fetch failure degrades the hash
// signal to neutral instead of failing the stage.
func TestVerify_MissingImageIsNeutral(t *testing.T) {
	table := &ReferenceTable{hashes: map[string][]uint64{"base set|4/102": {42}}}
	agent := NewAgent(&fakeObjects{}, table, defaultWeights(), defaultFontLimit(), nil)

	res := agent.Verify(context.Background(), goodFeatures(), holoMetadata(), "uploads/u/missing.png")
	assert.InDelta(t, neutralScore, res.Signals[contracts.SignalVisualHash], 1e-9)
}

// TestVerify_RationaleFromModel verifies a successful inference marks the
// result AI-verified.
func TestVerify_RationaleFromModel(t *testing.T) {
	client := &fakeRationaleClient{content: "Strong border symmetry and text match support authenticity."}
	agent := NewAgent(&fakeObjects{}, &ReferenceTable{hashes: map[string][]uint64{}},
		defaultWeights(), defaultFontLimit(), client)

	res := agent.Verify(context.Background(), goodFeatures(), holoMetadata(), "uploads/u/front.png")
	assert.True(t, res.VerifiedByAI)
	assert.Equal(t, "Strong border symmetry and text match support authenticity.", res.Rationale)
}

// TestVerify_RationaleFallback verifies throttled inference synthesizes a
// rationale naming the signal extremes.
func TestVerify_RationaleFallback(t *testing.T) {
	client := &fakeRationaleClient{err: contracts.Faultf(contracts.KindThrottled, "429")}
	agent := NewAgent(&fakeObjects{}, &ReferenceTable{hashes: map[string][]uint64{}},
		defaultWeights(), defaultFontLimit(), client)

	res := agent.Verify(context.Background(), goodFeatures(), holoMetadata(), "uploads/u/front.png")
	assert.False(t, res.VerifiedByAI)
	assert.Contains(t, res.Rationale, "strongest signal")
}

// TestLoadReferenceTable round-trips a YAML table and rejects bad hashes.
func TestLoadReferenceTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refs.yaml")
	body := fmt.Sprintf("cards:\n  - set: Base Set\n    number: 4/102\n    hashes: [\"%016x\", \"0x%016x\"]\n", uint64(42), uint64(7))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	table, err := LoadReferenceTable(path)
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, []uint64{42, 7}, table.Lookup("base set", "4/102"))
	assert.Equal(t, []uint64{42, 7}, table.Lookup("BASE SET ", "4/102"), "keys fold case and space")
	assert.Nil(t, table.Lookup("jungle", "1/64"))

	require.NoError(t, os.WriteFile(path, []byte("cards:\n  - set: s\n    number: n\n    hashes: [zz]\n"), 0o600))
	_, err = LoadReferenceTable(path)
	assert.Error(t, err)

	empty, err := LoadReferenceTable("")
	require.NoError(t, err)
	assert.Zero(t, empty.Len())
}

// TestHoloPatternScore covers the rule table.
func TestHoloPatternScore(t *testing.T) {
	holo := contracts.FieldResult{Value: strptr("Holo Rare"), Confidence: 0.8, Rationale: "r"}
	matte := contracts.FieldResult{Value: strptr("Common"), Confidence: 0.8, Rationale: "r"}

	assert.InDelta(t, 0.2, holoPatternScore(0.1, &contracts.CardMetadata{Rarity: holo}), 1e-9)
	assert.InDelta(t, 0.3, holoPatternScore(0.8, &contracts.CardMetadata{Rarity: matte}), 1e-9)
	assert.InDelta(t, 0.9, holoPatternScore(0.45, &contracts.CardMetadata{Rarity: holo}), 1e-9)
	assert.InDelta(t, 0.8, holoPatternScore(0.1, &contracts.CardMetadata{Rarity: matte}), 1e-9)
}

// TestTextMatchScore verifies the weighted product and the absent-field zero.
func TestTextMatchScore(t *testing.T) {
	meta := holoMetadata()
	got := textMatchScore(meta)
	assert.Greater(t, got, 0.8)
	assert.Less(t, got, 1.0)

	meta.Name.Value = nil
	assert.Zero(t, textMatchScore(meta))
}

// TestFontValidationScore_DefaultLimitDiscriminates verifies the default
// variance limit sits on the scale the vision stage emits. Block heights are
// normalized to [0,1], so the size variance never exceeds 0.25; the worst
// observable variance has to zero the signal instead of leaving it near 1.
func TestFontValidationScore_DefaultLimitDiscriminates(t *testing.T) {
	limit := defaultFontLimit()

	assert.InDelta(t, 1.0, fontValidationScore(0, limit), 1e-9, "uniform fonts score full")
	assert.InDelta(t, 0.95, fontValidationScore(0.0005, limit), 1e-9)
	assert.Zero(t, fontValidationScore(0.25, limit), "maximal normalized variance zeroes the signal")
	assert.InDelta(t, neutralScore, fontValidationScore(0.1, 0), 1e-9, "unset limit is neutral")
}

// TestFuse verifies weight renormalization over missing signals.
func TestFuse(t *testing.T) {
	weights := map[string]float64{"a": 0.5, "b": 0.5}
	assert.InDelta(t, 0.75, fuse(map[string]float64{"a": 1, "b": 0.5}, weights), 1e-9)
	assert.InDelta(t, 1.0, fuse(map[string]float64{"a": 1}, weights), 1e-9)
	assert.InDelta(t, neutralScore, fuse(map[string]float64{}, weights), 1e-9)
}
