package pipeline

import (
	"context"
	"fmt"
	"image"
	"math"

	"masterpost/internal/domain"
)

// Segmenter is the external background-segmentation contract. The premium
// tier delegates to a hosted model; the handle is constructed once at startup
// and injected here, never held as a package global.
type Segmenter interface {
	RemoveBackground(ctx context.Context, imageBytes []byte) ([]byte, error)
}

// BackgroundRemover is one strategy of the closed removal set.
type BackgroundRemover interface {
	Name() string
	Remove(ctx context.Context, img *image.NRGBA) (*image.NRGBA, error)
}

// WhiteThreshold turns near-white pixels transparent. It is the basic local
// strategy and the fallback when the hosted provider is unavailable.
type WhiteThreshold struct {
	Threshold uint8
}

const defaultWhiteThreshold = 240

func (w WhiteThreshold) Name() string { return "white_threshold" }

func (w WhiteThreshold) Remove(_ context.Context, img *image.NRGBA) (*image.NRGBA, error) {
	threshold := w.Threshold
	if threshold == 0 {
		threshold = defaultWhiteThreshold
	}
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	copy(out.Pix, img.Pix)
	for i := 0; i+3 < len(out.Pix); i += 4 {
		if out.Pix[i] >= threshold && out.Pix[i+1] >= threshold && out.Pix[i+2] >= threshold {
			out.Pix[i+3] = 0
		}
	}
	return out, nil
}

// EdgeDetect separates foreground from background with a color-model
// refinement seeded by a rectangle covering the central 80% of the image:
// everything outside the rectangle trains the background model, and pixels
// inside it that sit close to that model are cut away too.
type EdgeDetect struct{}

func (EdgeDetect) Name() string { return "edge_detection" }

func (EdgeDetect) Remove(_ context.Context, img *image.NRGBA) (*image.NRGBA, error) {
	b := img.Bounds()
	w := b.Dx()
	h := b.Dy()
	if w < 10 || h < 10 {
		return nil, fmt.Errorf("%w: image too small for edge detection", domain.ErrValidation)
	}

	rx0 := w / 10
	ry0 := h / 10
	rx1 := rx0 + w*8/10
	ry1 := ry0 + h*8/10

	// Background color model from the pixels outside the seed rectangle.
	var sumR, sumG, sumB float64
	var n float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x >= rx0 && x < rx1 && y >= ry0 && y < ry1 {
				continue
			}
			i := y*img.Stride + x*4
			sumR += float64(img.Pix[i])
			sumG += float64(img.Pix[i+1])
			sumB += float64(img.Pix[i+2])
			n++
		}
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: no background region available", domain.ErrValidation)
	}
	meanR := sumR / n
	meanG := sumG / n
	meanB := sumB / n

	var varSum float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x >= rx0 && x < rx1 && y >= ry0 && y < ry1 {
				continue
			}
			i := y*img.Stride + x*4
			dr := float64(img.Pix[i]) - meanR
			dg := float64(img.Pix[i+1]) - meanG
			db := float64(img.Pix[i+2]) - meanB
			varSum += dr*dr + dg*dg + db*db
		}
	}
	stddev := math.Sqrt(varSum / n)
	cut := 2 * stddev
	if cut < 30 {
		cut = 30
	}

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	copy(out.Pix, img.Pix)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*out.Stride + x*4
			inside := x >= rx0 && x < rx1 && y >= ry0 && y < ry1
			if !inside {
				out.Pix[i+3] = 0
				continue
			}
			dr := float64(out.Pix[i]) - meanR
			dg := float64(out.Pix[i+1]) - meanG
			db := float64(out.Pix[i+2]) - meanB
			if math.Sqrt(dr*dr+dg*dg+db*db) <= cut {
				out.Pix[i+3] = 0
			}
		}
	}
	return out, nil
}

// ExternalSegmentation delegates to the hosted segmentation provider. A
// failure is reported as a provider error tagged with the strategy name so
// the caller knows exactly which strategy ran; it never falls back silently.
type ExternalSegmentation struct {
	Provider Segmenter
}

func (ExternalSegmentation) Name() string { return "external_segmentation" }

func (e ExternalSegmentation) Remove(ctx context.Context, img *image.NRGBA) (*image.NRGBA, error) {
	if e.Provider == nil {
		return nil, fmt.Errorf("%w: external segmentation not configured", domain.ErrProviderFailure)
	}
	encoded, err := EncodePNG(img)
	if err != nil {
		return nil, fmt.Errorf("external_segmentation: encode input: %w", err)
	}
	result, err := e.Provider.RemoveBackground(ctx, encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: external_segmentation: %v", domain.ErrProviderFailure, err)
	}
	decoded, err := DecodeImage(result)
	if err != nil {
		return nil, fmt.Errorf("%w: external_segmentation: decode result: %v", domain.ErrProviderFailure, err)
	}
	return decoded, nil
}

// RefineEdges suppresses halo artifacts left by imprecise segmentation by
// eroding the alpha channel and smoothing the cut line.
func RefineEdges(img *image.NRGBA) *image.NRGBA {
	mask := alphaOf(img)
	mask = erodeAlpha(mask, 1)
	mask = blurAlpha(mask, 0.5)
	out := image.NewNRGBA(img.Bounds())
	copy(out.Pix, img.Pix)
	setAlpha(out, mask)
	return out
}
