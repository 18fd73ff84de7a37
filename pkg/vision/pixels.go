package vision

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"sort"

	_ "image/jpeg"
	_ "image/png"

	"github.com/cardworks/appraisal/pkg/contracts"
)

// Boundary-detection constants: Sobel magnitude threshold on 0-255 grayscale,
// acceptable edge density and aspect-ratio windows, crop padding.
const (
	sobelThreshold   = 30.0
	minEdgeDensity   = 0.01
	maxEdgeDensity   = 0.50
	minAspect        = 0.5
	maxAspect        = 1.0
	warnAspectLow    = 0.65
	warnAspectHigh   = 0.80
	cropPaddingRatio = 0.05

	borderBandRatio = 0.05
	sampleStride    = 5
	glareBrightness = 240.0
	glareRatio      = 0.15
)

// decodeImage decodes the upload and captures its metadata. A failed decode
// is InvalidImage (not retryable).
func decodeImage(data []byte) (image.Image, contracts.ImageMetadata, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, contracts.ImageMetadata{}, contracts.NewFault(contracts.KindInvalidImage,
			fmt.Errorf("decode image: %w", err))
	}
	b := img.Bounds()
	meta := contracts.ImageMetadata{
		Width:     b.Dx(),
		Height:    b.Dy(),
		Format:    format,
		SizeBytes: int64(len(data)),
	}
	return img, meta, nil
}

// grayscalePlane converts the image to a 0-255 luminance plane.
func grayscalePlane(img image.Image) ([]float64, int, int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			// ITU-R BT.601 luma, 16-bit channels scaled to 0-255.
			plane[y*w+x] = (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 257.0
		}
	}
	return plane, w, h
}

// detectCardBounds locates the card via Sobel gradient thresholding. It
// returns the padded crop and whether detection was accepted; on rejection
// the caller uses the full image (warning, not an error).
func detectCardBounds(plane []float64, w, h int) (image.Rectangle, bool) {
	if w < 3 || h < 3 {
		return image.Rect(0, 0, w, h), false
	}

	minX, minY := w, h
	maxX, maxY := -1, -1
	edgeCount := 0

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -plane[(y-1)*w+x-1] + plane[(y-1)*w+x+1] +
				-2*plane[y*w+x-1] + 2*plane[y*w+x+1] +
				-plane[(y+1)*w+x-1] + plane[(y+1)*w+x+1]
			gy := -plane[(y-1)*w+x-1] - 2*plane[(y-1)*w+x] - plane[(y-1)*w+x+1] +
				plane[(y+1)*w+x-1] + 2*plane[(y+1)*w+x] + plane[(y+1)*w+x+1]
			if math.Sqrt(gx*gx+gy*gy) < sobelThreshold {
				continue
			}
			edgeCount++
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}

	if maxX < 0 {
		return image.Rect(0, 0, w, h), false
	}
	density := float64(edgeCount) / float64(w*h)
	if density < minEdgeDensity || density > maxEdgeDensity {
		return image.Rect(0, 0, w, h), false
	}

	boxW, boxH := maxX-minX+1, maxY-minY+1
	if boxH == 0 {
		return image.Rect(0, 0, w, h), false
	}
	aspect := float64(boxW) / float64(boxH)
	if aspect < minAspect || aspect > maxAspect {
		return image.Rect(0, 0, w, h), false
	}

	padX := int(float64(boxW) * cropPaddingRatio)
	padY := int(float64(boxH) * cropPaddingRatio)
	rect := image.Rect(
		max(0, minX-padX), max(0, minY-padY),
		min(w, maxX+padX+1), min(h, maxY+padY+1),
	)
	return rect, true
}

// aspectWarning reports whether an accepted crop is outside the typical
// trading-card aspect window.
func aspectWarning(rect image.Rectangle) bool {
	if rect.Dy() == 0 {
		return true
	}
	aspect := float64(rect.Dx()) / float64(rect.Dy())
	return aspect < warnAspectLow || aspect > warnAspectHigh
}

// borderMetrics averages brightness over four 5%-thick border bands and
// scores vertical/horizontal symmetry.
func borderMetrics(plane []float64, w, h int, rect image.Rectangle) contracts.BorderMetrics {
	bandW := max(1, int(float64(rect.Dx())*borderBandRatio))
	bandH := max(1, int(float64(rect.Dy())*borderBandRatio))

	band := func(x0, y0, x1, y1 int) float64 {
		var sum float64
		var n int
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				sum += plane[y*w+x]
				n++
			}
		}
		if n == 0 {
			return 0
		}
		return sum / float64(n) / 255.0
	}

	m := contracts.BorderMetrics{
		Top:    band(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+bandH),
		Bottom: band(rect.Min.X, rect.Max.Y-bandH, rect.Max.X, rect.Max.Y),
		Left:   band(rect.Min.X, rect.Min.Y, rect.Min.X+bandW, rect.Max.Y),
		Right:  band(rect.Max.X-bandW, rect.Min.Y, rect.Max.X, rect.Max.Y),
	}
	m.Symmetry = 1 - (math.Abs(m.Top-m.Bottom)+math.Abs(m.Left-m.Right))/2
	return m
}

// holoVariance samples the central 50% of the crop every 5th pixel and
// averages per-channel RGB variance, scaled into [0,1]. Without a reflective
// label the score is zero.
func holoVariance(img image.Image, rect image.Rectangle, reflective bool) float64 {
	if !reflective {
		return 0
	}

	cx0 := rect.Min.X + rect.Dx()/4
	cy0 := rect.Min.Y + rect.Dy()/4
	cx1 := rect.Max.X - rect.Dx()/4
	cy1 := rect.Max.Y - rect.Dy()/4

	var rs, gs, bs []float64
	b := img.Bounds()
	for y := cy0; y < cy1; y += sampleStride {
		for x := cx0; x < cx1; x += sampleStride {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			rs = append(rs, float64(r)/257.0)
			gs = append(gs, float64(g)/257.0)
			bs = append(bs, float64(bl)/257.0)
		}
	}
	if len(rs) == 0 {
		return 0
	}
	avg := (variance(rs) + variance(gs) + variance(bs)) / 3
	return math.Min(avg/10000.0, 1)
}

// imageQuality derives blur, glare and brightness from sampled luminance.
func imageQuality(plane []float64, w, h int, rect image.Rectangle) contracts.ImageQuality {
	var samples []float64
	bright := 0
	for y := rect.Min.Y; y < rect.Max.Y; y += sampleStride {
		for x := rect.Min.X; x < rect.Max.X; x += sampleStride {
			v := plane[y*w+x]
			samples = append(samples, v)
			if v > glareBrightness {
				bright++
			}
		}
	}
	if len(samples) == 0 {
		return contracts.ImageQuality{}
	}

	return contracts.ImageQuality{
		Blur:          math.Min(math.Sqrt(variance(samples))/100.0, 1),
		GlareDetected: float64(bright)/float64(len(samples)) > glareRatio,
		Brightness:    mean(samples) / 255.0,
	}
}

// fontMetrics derives kerning, edge alignment and size variance from OCR
// blocks. Alignment uses LINE edges; kerning uses WORD gaps within a line.
func fontMetrics(blocks []contracts.OCRBlock) contracts.FontMetrics {
	var lines, words []contracts.OCRBlock
	for _, b := range blocks {
		switch b.Type {
		case contracts.BlockLine:
			lines = append(lines, b)
		case contracts.BlockWord:
			words = append(words, b)
		}
	}

	m := contracts.FontMetrics{Kerning: kerning(words)}

	if len(lines) >= 2 {
		lefts := make([]float64, len(lines))
		rights := make([]float64, len(lines))
		heights := make([]float64, len(lines))
		for i, l := range lines {
			lefts[i] = l.Box.Left
			rights[i] = l.Box.Left + l.Box.Width
			heights[i] = l.Box.Height
		}
		edgeVar := (variance(lefts) + variance(rights)) / 2
		m.AlignmentScore = math.Max(0, 1-edgeVar*100)
		m.SizeVariance = variance(heights)
	}
	return m
}

// kerning computes horizontal gaps between consecutive words sharing a line.
func kerning(words []contracts.OCRBlock) []float64 {
	if len(words) < 2 {
		return nil
	}
	sorted := make([]contracts.OCRBlock, len(words))
	copy(sorted, words)
	sort.Slice(sorted, func(i, j int) bool {
		if math.Abs(sorted[i].Box.Top-sorted[j].Box.Top) > sorted[i].Box.Height/2 {
			return sorted[i].Box.Top < sorted[j].Box.Top
		}
		return sorted[i].Box.Left < sorted[j].Box.Left
	})

	var gaps []float64
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		sameLine := math.Abs(prev.Box.Top-cur.Box.Top) <= prev.Box.Height/2
		if !sameLine {
			continue
		}
		gap := cur.Box.Left - (prev.Box.Left + prev.Box.Width)
		if gap >= 0 {
			gaps = append(gaps, gap)
		}
	}
	return gaps
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return sum / float64(len(xs))
}
