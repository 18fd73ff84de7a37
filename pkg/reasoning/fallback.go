package reasoning

import (
	"github.com/cardworks/appraisal/pkg/contracts"
)

const fallbackRationale = "AI reasoning unavailable"

// fallback confidence levels: the name inherits a discounted OCR confidence,
// everything else is absent, and the overall score sits at the weak floor.
const (
	fallbackNameDiscount      = 0.7
	fallbackOverallConfidence = 0.3
)

// Fallback builds the deterministic reduced-confidence metadata used when
// inference fails: the topmost LINE block becomes the name at discounted
// confidence, every other field is absent, and VerifiedByAI is false.
func Fallback(blocks []contracts.OCRBlock) contracts.CardMetadata {
	absent := contracts.FieldResult{
		Value:      nil,
		Confidence: 0,
		Rationale:  fallbackRationale,
	}

	name := absent
	if top, ok := topmostLine(blocks); ok {
		v := top.Text
		name = contracts.FieldResult{
			Value:      &v,
			Confidence: top.Confidence * fallbackNameDiscount,
			Rationale:  fallbackRationale,
		}
	}

	return contracts.CardMetadata{
		Name:            name,
		Rarity:          absent,
		Set:             contracts.SetField{Single: &absent},
		SetSymbol:       absent,
		CollectorNumber: absent,
		CopyrightRun:    absent,
		Illustrator:     absent,

		OverallConfidence: fallbackOverallConfidence,
		ReasoningTrail:    fallbackRationale,
		VerifiedByAI:      false,
	}
}

// topmostLine returns the LINE block with the smallest top coordinate.
func topmostLine(blocks []contracts.OCRBlock) (contracts.OCRBlock, bool) {
	var best contracts.OCRBlock
	found := false
	for _, b := range blocks {
		if b.Type != contracts.BlockLine || b.Text == "" {
			continue
		}
		if !found || b.Box.Top < best.Box.Top {
			best = b
			found = true
		}
	}
	return best, found
}
