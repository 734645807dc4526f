package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"masterpost/internal/domain"
)

// Transformer runs the per-image pipeline for one profile. It is stateless
// and safe for concurrent use across pool workers.
type Transformer struct {
	profile  Profile
	remover  BackgroundRemover
	fallback BackgroundRemover
	shadow   ShadowStyle
}

// TransformerOptions configure a Transformer beyond the profile defaults.
type TransformerOptions struct {
	// Remover is the background removal strategy. Defaults to WhiteThreshold.
	Remover BackgroundRemover
	// Fallback runs when Remover reports a provider failure. Leave nil to
	// surface provider errors directly.
	Fallback BackgroundRemover
	// Shadow overrides the profile's default shadow style.
	Shadow *ShadowStyle
}

// NewTransformer binds a profile and strategy set into a per-image transform.
func NewTransformer(profile Profile, opts TransformerOptions) *Transformer {
	t := &Transformer{
		profile: profile,
		remover: opts.Remover,
		shadow:  profile.Shadow,
	}
	if t.remover == nil {
		t.remover = WhiteThreshold{Threshold: defaultWhiteThreshold}
	}
	t.fallback = opts.Fallback
	if opts.Shadow != nil {
		t.shadow = *opts.Shadow
	}
	return t
}

// Process transforms the image at inputPath and writes the encoded result to
// outputPath. The returned method names the removal strategy that actually
// ran. All failures are per-image; the caller records them without aborting
// sibling tasks.
func (t *Transformer) Process(ctx context.Context, inputPath, outputPath string) (string, error) {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}

	img, err := DecodeImage(data)
	if err != nil {
		return "", err
	}

	cut, method, err := t.removeBackground(ctx, img)
	if err != nil {
		return method, err
	}

	out := t.Compose(cut)

	encoded, err := t.encode(out, outputPath)
	if err != nil {
		return method, err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return method, fmt.Errorf("ensure output dir: %w", err)
	}
	if err := os.WriteFile(outputPath, encoded, 0o644); err != nil {
		return method, fmt.Errorf("write output: %w", err)
	}
	return method, nil
}

func (t *Transformer) removeBackground(ctx context.Context, img *image.NRGBA) (*image.NRGBA, string, error) {
	cut, err := t.remover.Remove(ctx, img)
	if err == nil {
		return RefineEdges(cut), t.remover.Name(), nil
	}
	if t.fallback == nil || !errors.Is(err, domain.ErrProviderFailure) {
		return nil, t.remover.Name(), err
	}
	cut, ferr := t.fallback.Remove(ctx, img)
	if ferr != nil {
		return nil, t.fallback.Name(), ferr
	}
	return RefineEdges(cut), t.fallback.Name(), nil
}

// Compose takes a background-removed subject and produces the final canvas:
// downscale into the profile box, render the shadow, then center everything
// on an opaque white canvas of exactly the target dimensions.
func (t *Transformer) Compose(subject *image.NRGBA) *image.NRGBA {
	fitted := scaleToFit(subject, t.profile.Width, t.profile.Height)
	if t.shadow.Kind != ShadowNone {
		fitted = RenderShadow(fitted, t.shadow)
	}
	return PlaceOnCanvas(fitted, t.profile.Width, t.profile.Height)
}

// PlaceOnCanvas centers the subject on an opaque white canvas of exactly
// (w, h), downscaling first if the subject overflows the box.
func PlaceOnCanvas(subject *image.NRGBA, w, h int) *image.NRGBA {
	fitted := scaleToFit(subject, w, h)
	canvas := newWhiteCanvas(w, h)
	ox := (w - fitted.Bounds().Dx()) / 2
	oy := (h - fitted.Bounds().Dy()) / 2
	drawOver(canvas, fitted, ox, oy)
	return canvas
}

func (t *Transformer) encode(img *image.NRGBA, outputPath string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(outputPath)) {
	case ".png":
		return EncodePNG(img)
	case ".webp":
		return EncodeWebP(img, 90)
	default:
		return EncodeJPEG(img, t.profile.JPEGQuality)
	}
}
