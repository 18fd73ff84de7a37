package contracts_test

import (
	"encoding/json"
	"testing"

	"github.com/cardworks/appraisal/pkg/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

// TestSetField_UnmarshalSingle verifies that a plain field result parses into
// the single-value variant.
func TestSetField_UnmarshalSingle(t *testing.T) {
	data := []byte(`{"value":"Base Set","confidence":0.9,"rationale":"symbol match"}`)

	var s contracts.SetField
	require.NoError(t, json.Unmarshal(data, &s))

	require.NotNil(t, s.Single)
	assert.Nil(t, s.Multi)
	assert.Equal(t, "Base Set", *s.Single.Value)

	v, conf, ok := s.Best()
	assert.True(t, ok)
	assert.Equal(t, "Base Set", v)
	assert.InDelta(t, 0.9, conf, 1e-9)
}

// TestSetField_UnmarshalMulti verifies that the presence of a candidates
// array selects the multi-candidate variant.
func TestSetField_UnmarshalMulti(t *testing.T) {
	data := []byte(`{"value":"Base Set","candidates":[{"value":"Base Set","confidence":0.6},{"value":"Jungle","confidence":0.4}],"rationale":"ambiguous copyright"}`)

	var s contracts.SetField
	require.NoError(t, json.Unmarshal(data, &s))

	require.NotNil(t, s.Multi)
	assert.Nil(t, s.Single)
	assert.Len(t, s.Multi.Candidates, 2)

	v, conf, ok := s.Best()
	assert.True(t, ok)
	assert.Equal(t, "Base Set", v)
	assert.InDelta(t, 0.6, conf, 1e-9)
}

func validMetadata() contracts.CardMetadata {
	f := func(v string, c float64) contracts.FieldResult {
		return contracts.FieldResult{Value: strptr(v), Confidence: c, Rationale: "seen in OCR"}
	}
	absent := contracts.FieldResult{Confidence: 0, Rationale: "not visible"}
	return contracts.CardMetadata{
		Name:              f("Charizard", 0.95),
		Rarity:            f("Holo Rare", 0.8),
		Set:               contracts.SetField{Single: &contracts.FieldResult{Value: strptr("Base Set"), Confidence: 0.85, Rationale: "copyright run"}},
		SetSymbol:         absent,
		CollectorNumber:   f("4/102", 0.9),
		CopyrightRun:      f("© 1999 Nintendo", 0.92),
		Illustrator:       absent,
		OverallConfidence: 0.88,
		ReasoningTrail:    "clear scan",
		VerifiedByAI:      true,
	}
}

// TestCardMetadata_Validate_OK verifies the happy path passes validation.
func TestCardMetadata_Validate_OK(t *testing.T) {
	m := validMetadata()
	assert.NoError(t, m.Validate())
}

// TestCardMetadata_Validate_AbsentHighConfidence verifies the invariant that
// an absent value may not carry confidence above 0.3.
func TestCardMetadata_Validate_AbsentHighConfidence(t *testing.T) {
	m := validMetadata()
	m.Illustrator = contracts.FieldResult{Confidence: 0.6, Rationale: "guessed"}
	assert.Error(t, m.Validate())
}

// TestCardMetadata_Validate_EmptyRationale verifies rationales are mandatory.
func TestCardMetadata_Validate_EmptyRationale(t *testing.T) {
	m := validMetadata()
	m.Name.Rationale = ""
	assert.Error(t, m.Validate())
}

// TestCardMetadata_Validate_CandidateOrder verifies candidates must be
// strictly descending and that value tracks the top candidate.
func TestCardMetadata_Validate_CandidateOrder(t *testing.T) {
	m := validMetadata()
	m.Set = contracts.SetField{Multi: &contracts.MultiCandidateResult{
		Value: strptr("Jungle"),
		Candidates: []contracts.Candidate{
			{Value: "Base Set", Confidence: 0.6},
			{Value: "Jungle", Confidence: 0.4},
		},
		Rationale: "ambiguous",
	}}
	assert.Error(t, m.Validate(), "value must equal top candidate")

	m.Set.Multi.Value = strptr("Base Set")
	assert.NoError(t, m.Validate())

	m.Set.Multi.Candidates[1].Confidence = 0.6
	assert.Error(t, m.Validate(), "ties are not strictly descending")
}

// TestKindOf_Classification verifies fault-kind extraction and the retry
// predicate over the taxonomy.
func TestKindOf_Classification(t *testing.T) {
	throttled := contracts.Faultf(contracts.KindThrottled, "429 from adapter")
	assert.Equal(t, contracts.KindThrottled, contracts.KindOf(throttled))
	assert.True(t, contracts.Retryable(throttled))

	invalid := contracts.Faultf(contracts.KindInvalidContent, "moderation rejected")
	assert.Equal(t, contracts.KindInvalidContent, contracts.KindOf(invalid))
	assert.False(t, contracts.Retryable(invalid))

	schema := contracts.NewFault(contracts.KindSchemaViolation, nil)
	assert.False(t, contracts.Retryable(schema))
}
