package authenticity

import (
	"math"
	"strings"

	"github.com/cardworks/appraisal/pkg/contracts"
)

// neutralScore is used whenever a signal has no evidence to judge by.
const neutralScore = 0.5

// holo variance interpretation bounds: a holographic finish should vary at
// least this much, a matte card at most that much.
const (
	holoLowVariance  = 0.2
	holoHighVariance = 0.5
)

// visualHashScore compares the computed hash against the card's reference
// hashes and keeps the best match. No reference means neutral.
func visualHashScore(hash uint64, refs []uint64) float64 {
	if len(refs) == 0 {
		return neutralScore
	}
	best := 0.0
	for _, ref := range refs {
		score := 1 - float64(HammingDistance(hash, ref))/64.0
		if score > best {
			best = score
		}
	}
	return best
}

// textMatchScore is the weighted geometric product of the name, set and
// rarity confidences. An absent field contributes zero confidence.
func textMatchScore(meta *contracts.CardMetadata) float64 {
	name := fieldConfidence(meta.Name)
	setConf := 0.0
	if _, c, ok := meta.Set.Best(); ok {
		setConf = c
	}
	rarity := fieldConfidence(meta.Rarity)
	return math.Pow(name, 0.5) * math.Pow(setConf, 0.3) * math.Pow(rarity, 0.2)
}

func fieldConfidence(f contracts.FieldResult) float64 {
	if f.Value == nil {
		return 0
	}
	return f.Confidence
}

// holoPatternScore checks the measured holographic variance against what the
// inferred rarity implies. Contradictions score low; consistency scales
// linearly.
func holoPatternScore(holoVariance float64, meta *contracts.CardMetadata) float64 {
	holo := impliesHolo(meta.Rarity)
	switch {
	case holo && holoVariance < holoLowVariance:
		return 0.2
	case !holo && holoVariance > holoHighVariance:
		return 0.3
	case holo:
		// Expected shine: scale variance over [low, 1].
		return clamp01(holoVariance / holoHighVariance)
	default:
		// Expected matte: reward low variance.
		return clamp01(1 - holoVariance/holoHighVariance)
	}
}

// impliesHolo reports whether the rarity wording implies a holographic
// finish.
func impliesHolo(rarity contracts.FieldResult) bool {
	if rarity.Value == nil {
		return false
	}
	r := strings.ToLower(*rarity.Value)
	for _, marker := range []string{"holo", "foil", "secret", "ultra", "shiny", "prism"} {
		if strings.Contains(r, marker) {
			return true
		}
	}
	return false
}

// fontValidationScore penalizes font-size variance above the profile limit.
func fontValidationScore(sizeVariance, limit float64) float64 {
	if limit <= 0 {
		return neutralScore
	}
	return clamp01(1 - sizeVariance/limit)
}

// fuse computes the weighted average of the signals. Weights for signals that
// are missing from the map are ignored and the rest renormalized.
func fuse(signals map[string]float64, weights map[string]float64) float64 {
	var sum, weightSum float64
	for name, w := range weights {
		v, ok := signals[name]
		if !ok {
			continue
		}
		sum += v * w
		weightSum += w
	}
	if weightSum == 0 {
		return neutralScore
	}
	return sum / weightSum
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
