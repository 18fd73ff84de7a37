package contracts

import (
	"encoding/json"
	"fmt"
	"sort"
)

// FieldResult is one field of CardMetadata: an optional value with the
// reasoner's confidence and a non-empty rationale.
// Invariant: when Value is nil, Confidence must be <= 0.3.
type FieldResult struct {
	Value      *string `json:"value"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// Candidate is one alternative value with its confidence.
type Candidate struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// MultiCandidateResult is the variant of FieldResult used when the reasoner
// returns several plausible values, sorted strictly descending by confidence.
// Invariant: when Value is present it equals Candidates[0].Value.
type MultiCandidateResult struct {
	Value      *string     `json:"value"`
	Candidates []Candidate `json:"candidates"`
	Rationale  string      `json:"rationale"`
}

// SetField is the sum type for the `set` field: either a single value or a
// multi-candidate result. Exactly one of the two is non-nil.
type SetField struct {
	Single *FieldResult
	Multi  *MultiCandidateResult
}

// MarshalJSON emits the active variant.
func (s SetField) MarshalJSON() ([]byte, error) {
	switch {
	case s.Multi != nil:
		return json.Marshal(s.Multi)
	case s.Single != nil:
		return json.Marshal(s.Single)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON does a permissive first pass and then pattern-matches on the
// presence of a candidates array to pick the variant.
func (s *SetField) UnmarshalJSON(data []byte) error {
	var probe struct {
		Candidates []Candidate `json:"candidates"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("set field: %w", err)
	}
	if probe.Candidates != nil {
		var m MultiCandidateResult
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("set field (multi): %w", err)
		}
		s.Multi, s.Single = &m, nil
		return nil
	}
	var f FieldResult
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("set field (single): %w", err)
	}
	s.Single, s.Multi = &f, nil
	return nil
}

// Best returns the set value the pipeline should act on: the single value if
// present, else the top candidate.
func (s SetField) Best() (string, float64, bool) {
	if s.Single != nil && s.Single.Value != nil {
		return *s.Single.Value, s.Single.Confidence, true
	}
	if s.Multi != nil && len(s.Multi.Candidates) > 0 {
		return s.Multi.Candidates[0].Value, s.Multi.Candidates[0].Confidence, true
	}
	return "", 0, false
}

// CardMetadata is the output of the OCR reasoning stage.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type CardMetadata struct {
	Name            FieldResult `json:"name"`
	Rarity          FieldResult `json:"rarity"`
	Set             SetField    `json:"set"`
	SetSymbol       FieldResult `json:"setSymbol"`
	CollectorNumber FieldResult `json:"collectorNumber"`
	CopyrightRun    FieldResult `json:"copyrightRun"`
	Illustrator     FieldResult `json:"illustrator"`

	OverallConfidence float64 `json:"overallConfidence"`
	ReasoningTrail    string  `json:"reasoningTrail"`
	// VerifiedByAI is false only when the fallback path produced this metadata.
	VerifiedByAI bool `json:"verifiedByAI"`
}

// Validate enforces the structural invariants of the metadata contract beyond
// what the JSON schema can express.
func (m *CardMetadata) Validate() error {
	fields := map[string]FieldResult{
		"name":            m.Name,
		"rarity":          m.Rarity,
		"setSymbol":       m.SetSymbol,
		"collectorNumber": m.CollectorNumber,
		"copyrightRun":    m.CopyrightRun,
		"illustrator":     m.Illustrator,
	}
	for name, f := range fields {
		if err := validateField(name, f); err != nil {
			return err
		}
	}
	if m.OverallConfidence < 0 || m.OverallConfidence > 1 {
		return fmt.Errorf("overallConfidence %v out of [0,1]", m.OverallConfidence)
	}
	if m.Set.Single != nil {
		if err := validateField("set", *m.Set.Single); err != nil {
			return err
		}
	}
	if mc := m.Set.Multi; mc != nil {
		if mc.Rationale == "" {
			return fmt.Errorf("set: empty rationale")
		}
		if !sort.SliceIsSorted(mc.Candidates, func(i, j int) bool {
			return mc.Candidates[i].Confidence > mc.Candidates[j].Confidence
		}) {
			return fmt.Errorf("set: candidates not sorted by descending confidence")
		}
		for i := 1; i < len(mc.Candidates); i++ {
			if mc.Candidates[i].Confidence == mc.Candidates[i-1].Confidence {
				return fmt.Errorf("set: candidate confidences must be strictly descending")
			}
		}
		for _, c := range mc.Candidates {
			if c.Confidence < 0 || c.Confidence > 1 {
				return fmt.Errorf("set: candidate confidence %v out of [0,1]", c.Confidence)
			}
		}
		if mc.Value != nil {
			if len(mc.Candidates) == 0 || *mc.Value != mc.Candidates[0].Value {
				return fmt.Errorf("set: value must equal top candidate")
			}
		}
	}
	return nil
}

func validateField(name string, f FieldResult) error {
	if f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("%s: confidence %v out of [0,1]", name, f.Confidence)
	}
	if f.Value == nil && f.Confidence > 0.3 {
		return fmt.Errorf("%s: absent value with confidence %v > 0.3", name, f.Confidence)
	}
	if f.Rationale == "" {
		return fmt.Errorf("%s: empty rationale", name)
	}
	return nil
}
