package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/cardworks/appraisal/pkg/contracts"
	"github.com/stretchr/testify/assert"
)

func uniformImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// cardOnBackground draws a bright card-shaped rectangle on a dark field, the
// shape the Sobel detector should crop to.
func cardOnBackground(w, h int, card image.Rectangle) *image.RGBA {
	img := uniformImage(w, h, color.RGBA{10, 10, 10, 255})
	for y := card.Min.Y; y < card.Max.Y; y++ {
		for x := card.Min.X; x < card.Max.X; x++ {
			img.Set(x, y, color.RGBA{220, 220, 220, 255})
		}
	}
	return img
}

// TestDetectCardBounds_FindsCard verifies the gradient detector locates a
// card-shaped region with plausible padding.
func TestDetectCardBounds_FindsCard(t *testing.T) {
	card := image.Rect(40, 30, 112, 130) // aspect 0.72
	img := cardOnBackground(200, 200, card)

	plane, w, h := grayscalePlane(img)
	rect, ok := detectCardBounds(plane, w, h)

	assert.True(t, ok, "card edges should be detected")
	assert.LessOrEqual(t, rect.Min.X, card.Min.X)
	assert.GreaterOrEqual(t, rect.Max.X, card.Max.X-1)
	assert.False(t, aspectWarning(rect))
}

// TestDetectCardBounds_UniformImageFallsBack verifies a featureless image
// yields the full frame (warning path, not an error).
func TestDetectCardBounds_UniformImageFallsBack(t *testing.T) {
	img := uniformImage(100, 100, color.RGBA{128, 128, 128, 255})
	plane, w, h := grayscalePlane(img)

	rect, ok := detectCardBounds(plane, w, h)
	assert.False(t, ok)
	assert.Equal(t, image.Rect(0, 0, 100, 100), rect)
}

// TestBorderMetrics_UniformImageIsSymmetric verifies a uniform image scores
// full symmetry and equal band brightness.
func TestBorderMetrics_UniformImageIsSymmetric(t *testing.T) {
	img := uniformImage(100, 140, color.Gray{Y: 200})
	plane, w, h := grayscalePlane(img)

	m := borderMetrics(plane, w, h, image.Rect(0, 0, w, h))
	assert.InDelta(t, 1.0, m.Symmetry, 1e-6)
	assert.InDelta(t, m.Top, m.Bottom, 1e-6)
	assert.InDelta(t, 200.0/255.0, m.Top, 0.01)
}

// TestHoloVariance_RequiresReflectiveLabel verifies the gate on the label
// and that a flat image has near-zero variance even when sampled.
func TestHoloVariance_RequiresReflectiveLabel(t *testing.T) {
	img := uniformImage(100, 100, color.RGBA{100, 150, 200, 255})
	rect := image.Rect(0, 0, 100, 100)

	assert.Zero(t, holoVariance(img, rect, false))
	assert.InDelta(t, 0, holoVariance(img, rect, true), 1e-6)
}

// TestImageQuality_GlareDetection verifies the glare flag trips when most
// sampled pixels exceed the brightness ceiling.
func TestImageQuality_GlareDetection(t *testing.T) {
	img := uniformImage(100, 100, color.Gray{Y: 250})
	plane, w, h := grayscalePlane(img)

	q := imageQuality(plane, w, h, image.Rect(0, 0, w, h))
	assert.True(t, q.GlareDetected)
	assert.Greater(t, q.Brightness, 0.9)
	assert.Less(t, q.Blur, 0.1, "uniform image has no high-frequency content")
}

func block(text string, typ contracts.BlockType, left, top, width, height float64) contracts.OCRBlock {
	return contracts.OCRBlock{
		Text: text, Confidence: 0.9, Type: typ,
		Box: contracts.BoundingBox{Left: left, Top: top, Width: width, Height: height},
	}
}

// TestFontMetrics_AlignedLines verifies aligned lines score high and the
// word gaps land in the kerning sequence.
func TestFontMetrics_AlignedLines(t *testing.T) {
	blocks := []contracts.OCRBlock{
		block("Charizard", contracts.BlockLine, 0.10, 0.05, 0.5, 0.06),
		block("Fire Spin", contracts.BlockLine, 0.10, 0.40, 0.5, 0.06),
		block("Charizard", contracts.BlockWord, 0.10, 0.05, 0.20, 0.06),
		block("HP", contracts.BlockWord, 0.33, 0.05, 0.06, 0.06),
		block("120", contracts.BlockWord, 0.42, 0.05, 0.08, 0.06),
	}

	m := fontMetrics(blocks)
	assert.InDelta(t, 1.0, m.AlignmentScore, 1e-6, "identical edges align perfectly")
	assert.Zero(t, m.SizeVariance)
	assert.Len(t, m.Kerning, 2)
	assert.InDelta(t, 0.03, m.Kerning[0], 1e-9)
}

// TestCheckModeration_Blocklist verifies the enumerated blocklist and its
// confidence threshold.
func TestCheckModeration_Blocklist(t *testing.T) {
	err := checkModeration([]Label{{Name: "Violence", Confidence: 0.7}})
	assert.Equal(t, contracts.KindInvalidContent, contracts.KindOf(err))

	assert.NoError(t, checkModeration([]Label{{Name: "Violence", Confidence: 0.5}}),
		"below threshold passes")
	assert.NoError(t, checkModeration([]Label{{Name: "Sports", Confidence: 0.99}}),
		"unlisted labels pass")
}

// TestCheckCardType verifies negative labels reject only in the absence of
// positive card labels.
func TestCheckCardType(t *testing.T) {
	err := checkCardType([]Label{{Name: "Person", Confidence: 0.95}})
	assert.Equal(t, contracts.KindInvalidContent, contracts.KindOf(err))

	assert.NoError(t, checkCardType([]Label{
		{Name: "Person", Confidence: 0.95},
		{Name: "Card", Confidence: 0.8},
	}), "positive label rescues")

	assert.NoError(t, checkCardType([]Label{{Name: "Person", Confidence: 0.7}}),
		"weak negative passes")
}
