package capture

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/videoflow/types"
)

// noisyPNG builds a PNG that compresses poorly, so the optimized JPEG
// is reliably smaller.
func noisyPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x*7 + y*13) % 251)
			img.Set(x, y, color.RGBA{R: v, G: v ^ 0x5a, B: 255 - v, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestParamsFor(t *testing.T) {
	code := ParamsFor(types.StrategyCodeFocused)
	assert.True(t, code.Lossless)
	assert.Equal(t, 1920, code.MaxWidth)

	timeline := ParamsFor(types.StrategyTimeline)
	assert.False(t, timeline.Lossless)
	assert.Equal(t, 1024, timeline.MaxWidth)

	fallback := ParamsFor(types.StrategyFallback)
	assert.Equal(t, 1280, fallback.MaxWidth)
	assert.Equal(t, 75, fallback.Quality)
}

func TestOptimizeResizesOversizedFrame(t *testing.T) {
	original := noisyPNG(t, 400, 300)

	out, err := Optimize(original, Params{MaxWidth: 50, MaxHeight: 50, Quality: 80})
	require.NoError(t, err)
	require.Less(t, len(out), len(original))

	img, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)

	b := img.Bounds()
	assert.LessOrEqual(t, b.Dx(), 50)
	assert.LessOrEqual(t, b.Dy(), 50)
	// Aspect ratio 4:3 is preserved.
	assert.Equal(t, 50, b.Dx())
	assert.Equal(t, 37, b.Dy())
}

func TestOptimizeLosslessKeepsPNG(t *testing.T) {
	original := noisyPNG(t, 200, 100)

	out, err := Optimize(original, Params{
		MaxWidth: 80, MaxHeight: 80,
		CompressionLevel: png.BestCompression,
		Lossless:         true,
	})
	require.NoError(t, err)

	_, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
}

func TestOptimizeWithinBoundsKeepsDimensions(t *testing.T) {
	original := noisyPNG(t, 40, 40)

	out, err := Optimize(original, Params{MaxWidth: 100, MaxHeight: 100, Quality: 80})
	require.NoError(t, err)

	img, _, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 40, img.Bounds().Dy())
}

func TestOptimizeRejectsGarbage(t *testing.T) {
	_, err := Optimize([]byte("definitely not an image"), Params{MaxWidth: 100, MaxHeight: 100})
	require.Error(t, err)
}

func TestOptimizeKeepsOriginalWhenSmaller(t *testing.T) {
	// A tiny uniform PNG beats any JPEG re-encode; the original bytes
	// must come back untouched.
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	original := buf.Bytes()

	out, err := Optimize(original, Params{MaxWidth: 100, MaxHeight: 100, Quality: 90})
	require.NoError(t, err)
	assert.Equal(t, original, out)
}
