package authenticity

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"math/bits"

	_ "image/jpeg"
	_ "image/png"

	"github.com/cardworks/appraisal/pkg/contracts"
)

// pHash geometry: the image is reduced to a 32x32 luminance plane, DCT'd,
// and the low-frequency 8x8 block (minus the DC term) is thresholded against
// its mean into a 64-bit hash.
const (
	phashPlane = 32
	phashBlock = 8
)

// PerceptualHash computes the 64-bit DCT hash of an encoded image.
func PerceptualHash(data []byte) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, contracts.NewFault(contracts.KindInvalidImage, fmt.Errorf("phash decode: %w", err))
	}
	return hashImage(img), nil
}

func hashImage(img image.Image) uint64 {
	plane := downscaleGray(img, phashPlane)
	freq := dct2d(plane, phashPlane)

	// Mean over the low-frequency block, DC excluded so flat images do not
	// dominate the threshold.
	var sum float64
	for y := 0; y < phashBlock; y++ {
		for x := 0; x < phashBlock; x++ {
			if x == 0 && y == 0 {
				continue
			}
			sum += freq[y*phashPlane+x]
		}
	}
	mean := sum / float64(phashBlock*phashBlock-1)

	var hash uint64
	bit := 0
	for y := 0; y < phashBlock; y++ {
		for x := 0; x < phashBlock; x++ {
			if freq[y*phashPlane+x] > mean {
				hash |= 1 << uint(bit)
			}
			bit++
		}
	}
	return hash
}

// HammingDistance counts differing bits between two hashes.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// downscaleGray box-averages the image into an n x n luminance plane.
func downscaleGray(img image.Image, n int) []float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := make([]float64, n*n)

	for ty := 0; ty < n; ty++ {
		for tx := 0; tx < n; tx++ {
			x0 := b.Min.X + tx*w/n
			x1 := b.Min.X + (tx+1)*w/n
			y0 := b.Min.Y + ty*h/n
			y1 := b.Min.Y + (ty+1)*h/n
			if x1 <= x0 {
				x1 = x0 + 1
			}
			if y1 <= y0 {
				y1 = y0 + 1
			}

			var sum float64
			var cnt int
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					r, g, bl, _ := img.At(x, y).RGBA()
					sum += (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 257.0
					cnt++
				}
			}
			plane[ty*n+tx] = sum / float64(cnt)
		}
	}
	return plane
}

// dct2d applies a type-II DCT along rows then columns.
func dct2d(plane []float64, n int) []float64 {
	tmp := make([]float64, n*n)
	out := make([]float64, n*n)

	for y := 0; y < n; y++ {
		dct1d(plane[y*n:(y+1)*n], tmp[y*n:(y+1)*n], n)
	}
	col := make([]float64, n)
	res := make([]float64, n)
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			col[y] = tmp[y*n+x]
		}
		dct1d(col, res, n)
		for y := 0; y < n; y++ {
			out[y*n+x] = res[y]
		}
	}
	return out
}

func dct1d(in, out []float64, n int) {
	for k := 0; k < n; k++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += in[i] * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(n)))
		}
		scale := math.Sqrt(2.0 / float64(n))
		if k == 0 {
			scale = math.Sqrt(1.0 / float64(n))
		}
		out[k] = sum * scale
	}
}
