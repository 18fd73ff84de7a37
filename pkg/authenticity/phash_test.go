package authenticity

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/cardworks/appraisal/pkg/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradientImage(t *testing.T, w, h int, invert bool) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(255 * x / w)
			if invert {
				v = 255 - v
			}
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// TestPerceptualHash_Deterministic verifies identical images hash equal and
// resolution changes barely move the hash.
func TestPerceptualHash_Deterministic(t *testing.T) {
	a, err := PerceptualHash(gradientImage(t, 200, 280, false))
	require.NoError(t, err)
	b, err := PerceptualHash(gradientImage(t, 200, 280, false))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	scaled, err := PerceptualHash(gradientImage(t, 100, 140, false))
	require.NoError(t, err)
	assert.LessOrEqual(t, HammingDistance(a, scaled), 8,
		"rescaling should barely change a perceptual hash")
}

// TestPerceptualHash_DistinguishesContent verifies an inverted gradient lands
// far away in hamming space.
func TestPerceptualHash_DistinguishesContent(t *testing.T) {
	a, err := PerceptualHash(gradientImage(t, 200, 280, false))
	require.NoError(t, err)
	b, err := PerceptualHash(gradientImage(t, 200, 280, true))
	require.NoError(t, err)
	assert.Greater(t, HammingDistance(a, b), 8)
}

// TestPerceptualHash_BadBytes maps decode failure to InvalidImage.
func TestPerceptualHash_BadBytes(t *testing.T) {
	_, err := PerceptualHash([]byte("junk"))
	assert.Equal(t, contracts.KindInvalidImage, contracts.KindOf(err))
}

// TestHammingDistance sanity.
func TestHammingDistance(t *testing.T) {
	assert.Zero(t, HammingDistance(0xff, 0xff))
	assert.Equal(t, 64, HammingDistance(0, ^uint64(0)))
	assert.Equal(t, 1, HammingDistance(0b1000, 0b0000))
}
