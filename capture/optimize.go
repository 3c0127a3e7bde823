package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	_ "image/gif" // register decoder

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder

	"github.com/BaSui01/videoflow/internal/pool"
	"github.com/BaSui01/videoflow/types"
)

// Params control post-capture image optimization for one strategy.
// Lossless keeps PNG output for text-heavy frames where JPEG artifacts
// would hurt legibility.
type Params struct {
	MaxWidth         int
	MaxHeight        int
	Quality          int
	CompressionLevel png.CompressionLevel
	Lossless         bool
}

// ParamsFor selects optimization parameters by the plan's optimize tag.
// Code-focused capture keeps the highest fidelity; basic coverage
// trades resolution for smaller inference payloads.
func ParamsFor(optimizeFor types.CaptureStrategy) Params {
	switch optimizeFor {
	case types.StrategyCodeFocused:
		return Params{MaxWidth: 1920, MaxHeight: 1080, Quality: 92, CompressionLevel: png.BestCompression, Lossless: true}
	case types.StrategySlideTransitions:
		return Params{MaxWidth: 1600, MaxHeight: 900, Quality: 88}
	case types.StrategyEducational:
		return Params{MaxWidth: 1440, MaxHeight: 810, Quality: 85}
	case types.StrategyTimeline:
		return Params{MaxWidth: 1024, MaxHeight: 576, Quality: 75}
	case types.StrategySummary, types.StrategyComprehensive:
		return Params{MaxWidth: 1280, MaxHeight: 720, Quality: 80}
	default:
		return Params{MaxWidth: 1280, MaxHeight: 720, Quality: 75}
	}
}

// Optimize resizes and recompresses one captured image. The input may
// be JPEG, PNG, GIF, or WebP; output is JPEG, or PNG when the params
// ask for lossless. If the optimized form would be larger than the
// original, the original is returned unchanged.
func Optimize(data []byte, p Params) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	img = scaleDown(img, p.MaxWidth, p.MaxHeight)

	// 编码缓冲复用自进程级池,返回前必须拷出字节
	buf := pool.Buffers.Get()
	defer pool.Buffers.Put(buf)

	if p.Lossless {
		enc := png.Encoder{CompressionLevel: p.CompressionLevel}
		if err := enc.Encode(buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	} else {
		quality := p.Quality
		if quality <= 0 || quality > 100 {
			quality = 80
		}
		if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	}

	if buf.Len() >= len(data) {
		return data, nil
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// scaleDown shrinks img to fit within the given bounds, preserving
// aspect ratio. Images already within bounds pass through untouched.
func scaleDown(img image.Image, maxWidth, maxHeight int) image.Image {
	if maxWidth <= 0 || maxHeight <= 0 {
		return img
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxWidth && h <= maxHeight {
		return img
	}

	scaleW := float64(maxWidth) / float64(w)
	scaleH := float64(maxHeight) / float64(h)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}

	dstW := int(float64(w) * scale)
	dstH := int(float64(h) * scale)
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}
