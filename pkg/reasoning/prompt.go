package reasoning

import (
	"fmt"
	"strings"

	"github.com/cardworks/appraisal/pkg/contracts"
)

// systemPrompt fixes the analyst role, the output schema and the confidence
// bands. External lookups are forbidden so identical inputs give identical
// outputs under pinned sampling.
const systemPrompt = `You are an expert trading-card analyst. You identify cards strictly from the OCR text and visual measurements provided; you never consult external knowledge sources, price guides, or databases.

Respond with a single JSON object and nothing else, following this schema exactly:
{
  "name":            {"value": string|null, "confidence": number, "rationale": string},
  "rarity":          {"value": string|null, "confidence": number, "rationale": string},
  "set":             {"value": string|null, "confidence": number, "rationale": string}
                     OR {"value": string|null, "candidates": [{"value": string, "confidence": number}, ...], "rationale": string},
  "setSymbol":       {"value": string|null, "confidence": number, "rationale": string},
  "collectorNumber": {"value": string|null, "confidence": number, "rationale": string},
  "copyrightRun":    {"value": string|null, "confidence": number, "rationale": string},
  "illustrator":     {"value": string|null, "confidence": number, "rationale": string},
  "overallConfidence": number,
  "reasoningTrail": string
}

Use the "candidates" form for "set" only when several sets are plausible; sort candidates by strictly descending confidence and put the top candidate in "value".

Confidence bands:
  0.9-1.0  exact, unambiguous evidence
  0.7-0.9  strong evidence
  0.5-0.7  moderate evidence
  0.3-0.5  weak evidence
  below 0.3  evidence absent; set "value" to null

A null value must never carry confidence above 0.3. Every rationale must be non-empty.`

// region buckets for the user prompt, split on the block's vertical center.
const (
	topRegionMax    = 0.3
	bottomRegionMin = 0.7
)

// buildUserPrompt lays out the OCR blocks grouped by vertical region plus the
// quantified visual context and any owner hints.
func buildUserPrompt(oc OcrContext) string {
	var top, middle, bottom []contracts.OCRBlock
	for _, b := range oc.Blocks {
		switch {
		case b.Box.Top < topRegionMax:
			top = append(top, b)
		case b.Box.Top >= bottomRegionMin:
			bottom = append(bottom, b)
		default:
			middle = append(middle, b)
		}
	}

	var sb strings.Builder
	sb.WriteString("Identify this trading card from the following evidence.\n")

	writeRegion(&sb, "TOP REGION (typically name, HP)", top)
	writeRegion(&sb, "MIDDLE REGION (typically abilities, attacks)", middle)
	writeRegion(&sb, "BOTTOM REGION (typically collector number, set symbol, copyright, illustrator)", bottom)

	fmt.Fprintf(&sb, "\nVISUAL CONTEXT:\n")
	fmt.Fprintf(&sb, "- holographic variance: %.3f\n", oc.Visual.HoloVariance)
	fmt.Fprintf(&sb, "- border symmetry: %.3f\n", oc.Visual.BorderSymmetry)
	fmt.Fprintf(&sb, "- blur: %.3f, brightness: %.3f, glare: %t\n",
		oc.Visual.Quality.Blur, oc.Visual.Quality.Brightness, oc.Visual.Quality.GlareDetected)

	if h := oc.Hints; h != nil {
		sb.WriteString("\nOWNER HINTS (unverified, weigh against OCR evidence):\n")
		writeHint(&sb, "name", h.Name)
		writeHint(&sb, "set", h.Set)
		writeHint(&sb, "number", h.Number)
		writeHint(&sb, "rarity", h.Rarity)
		writeHint(&sb, "condition", h.Condition)
	}
	return sb.String()
}

func writeRegion(sb *strings.Builder, title string, blocks []contracts.OCRBlock) {
	fmt.Fprintf(sb, "\n%s:\n", title)
	if len(blocks) == 0 {
		sb.WriteString("- (no text detected)\n")
		return
	}
	for _, b := range blocks {
		fmt.Fprintf(sb, "- [%s %.2f] %q at (%.2f, %.2f)\n",
			b.Type, b.Confidence, b.Text, b.Box.Left, b.Box.Top)
	}
}

func writeHint(sb *strings.Builder, name, value string) {
	if value != "" {
		fmt.Fprintf(sb, "- %s: %s\n", name, value)
	}
}
