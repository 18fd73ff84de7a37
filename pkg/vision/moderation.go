package vision

import (
	"strings"

	"github.com/cardworks/appraisal/pkg/contracts"
)

// Moderation and card-type thresholds.
const (
	moderationThreshold    = 0.6
	negativeLabelThreshold = 0.8
	positiveLabelThreshold = 0.7
)

// moderationBlocklist enumerates the kid-safety categories that reject an
// upload outright.
var moderationBlocklist = map[string]bool{
	"explicit nudity":     true,
	"suggestive":          true,
	"violence":            true,
	"visually disturbing": true,
	"rude gestures":       true,
	"drugs":               true,
	"tobacco":             true,
	"alcohol":             true,
	"gambling":            true,
	"hate symbols":        true,
	"exposed body parts":  true,
	"partial nudity":      true,
}

// positiveCardLabels indicate the image plausibly shows a card.
var positiveCardLabels = map[string]bool{
	"text": true, "document": true, "paper": true, "card": true,
	"poster": true, "flyer": true, "advertisement": true, "art": true,
	"drawing": true, "painting": true,
}

// negativeCardLabels indicate the image shows something else entirely.
var negativeCardLabels = map[string]bool{
	"person": true, "human": true, "face": true, "portrait": true,
	"animal": true, "pet": true, "dog": true, "cat": true, "bird": true,
	"food": true, "meal": true, "dish": true,
	"vehicle": true, "car": true, "truck": true,
	"building": true, "architecture": true, "nature": true, "landscape": true,
	"screen": true, "monitor": true, "television": true,
	"furniture": true, "chair": true, "table": true,
}

// checkModeration rejects images carrying any blocklisted moderation label
// above the confidence threshold. The failure is InvalidContent and causes a
// hard delete upstream.
func checkModeration(labels []Label) error {
	for _, l := range labels {
		if l.Confidence > moderationThreshold && moderationBlocklist[strings.ToLower(l.Name)] {
			return contracts.Faultf(contracts.KindInvalidContent,
				"moderation rejected image: %s (%.2f)", l.Name, l.Confidence)
		}
	}
	return nil
}

// checkCardType rejects images with strong not-a-card labels and no positive
// card labels.
func checkCardType(labels []Label) error {
	var negative string
	positive := false
	for _, l := range labels {
		name := strings.ToLower(l.Name)
		if negative == "" && l.Confidence > negativeLabelThreshold && negativeCardLabels[name] {
			negative = l.Name
		}
		if l.Confidence > positiveLabelThreshold && positiveCardLabels[name] {
			positive = true
		}
	}
	if negative != "" && !positive {
		return contracts.Faultf(contracts.KindInvalidContent,
			"image does not look like a card: %s detected", negative)
	}
	return nil
}

// hasReflectiveLabel reports whether the label set suggests a holographic
// finish worth sampling for.
func hasReflectiveLabel(labels []Label) bool {
	for _, l := range labels {
		switch strings.ToLower(l.Name) {
		case "reflective", "metallic", "shiny", "glossy":
			return true
		}
	}
	return false
}
