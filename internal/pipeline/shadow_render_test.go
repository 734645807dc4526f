package pipeline

import (
	"image"
	"testing"
)

// opaqueSubject builds a fully opaque single-color test subject.
func opaqueSubject(w, h int, r, g, b uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = r
		img.Pix[i+1] = g
		img.Pix[i+2] = b
		img.Pix[i+3] = 255
	}
	return img
}

func TestRenderDropShadowDimensions(t *testing.T) {
	subject := opaqueSubject(500, 500, 40, 40, 40)
	out := renderDropShadow(subject, DropParams{
		Intensity:  0.2,
		OffsetX:    10,
		OffsetY:    10,
		BlurRadius: 15,
	})

	// margin = max(|10|,|10|) + 15 + 30 = 55 per side
	if got, want := out.Bounds().Dx(), 610; got != want {
		t.Fatalf("width = %d, want %d", got, want)
	}
	if got, want := out.Bounds().Dy(), 610; got != want {
		t.Fatalf("height = %d, want %d", got, want)
	}
	if !isOpaque(out) {
		t.Fatalf("drop shadow canvas must be fully opaque")
	}

	// The subject lands at (55, 55); a pixel inside it keeps its color.
	i := 100*out.Stride + 100*4
	if out.Pix[i] != 40 {
		t.Fatalf("subject pixel = %d, want 40", out.Pix[i])
	}

	// Below-right of the subject the blurred gray silhouette must show.
	found := false
	for y := 556; y < 610 && !found; y++ {
		for x := 60; x < 600; x++ {
			if out.Pix[y*out.Stride+x*4] < 255 {
				found = true
				break
			}
		}
	}
	if !found {
		t.Fatalf("expected shadow pixels below the subject")
	}
}

func TestRenderReflectionShadow(t *testing.T) {
	subject := opaqueSubject(100, 200, 200, 30, 30)
	out := renderReflectionShadow(subject, ReflectionParams{
		HeightFrac: 0.35,
		Opacity:    0.1,
		FadeStart:  0.1,
	})

	// reflH = 200 * 0.35 = 70; total = 200 + 10 + 70
	if got, want := out.Bounds().Dy(), 280; got != want {
		t.Fatalf("height = %d, want %d", got, want)
	}
	if got, want := out.Bounds().Dx(), 100; got != want {
		t.Fatalf("width = %d, want %d", got, want)
	}

	// The gap rows stay fully transparent.
	gapIdx := 205*out.Stride + 50*4
	if out.Pix[gapIdx+3] != 0 {
		t.Fatalf("gap row alpha = %d, want 0", out.Pix[gapIdx+3])
	}

	// First reflection row: fade is still 1.0, alpha = 255 * opacity.
	reflIdx := 210*out.Stride + 50*4
	if got, want := out.Pix[reflIdx+3], uint8(25); got != want {
		t.Fatalf("reflection alpha = %d, want %d", got, want)
	}
	if out.Pix[reflIdx] != 200 {
		t.Fatalf("reflection keeps subject color, got %d", out.Pix[reflIdx])
	}

	// Deep into the fade the alpha drops toward zero.
	deepIdx := 278*out.Stride + 50*4
	if out.Pix[deepIdx+3] >= 25 {
		t.Fatalf("faded alpha = %d, want < 25", out.Pix[deepIdx+3])
	}
}

func TestRenderNaturalShadowDimensions(t *testing.T) {
	subject := opaqueSubject(100, 100, 10, 10, 10)
	out := renderNaturalShadow(subject, NaturalParams{
		Intensity:  0.2,
		BlurRadius: 8,
		Direction:  DirectionBottomRight,
	})

	// margin = 8 + 15 = 23 per side
	if got, want := out.Bounds().Dx(), 146; got != want {
		t.Fatalf("width = %d, want %d", got, want)
	}
	if got, want := out.Bounds().Dy(), 146; got != want {
		t.Fatalf("height = %d, want %d", got, want)
	}

	// Corners stay transparent so the canvas shows through at placement.
	if out.Pix[3] != 0 {
		t.Fatalf("corner alpha = %d, want 0", out.Pix[3])
	}
}

func TestRenderShadowAutoPicksByAspect(t *testing.T) {
	style := ShadowStyle{
		Kind:       ShadowAuto,
		Drop:       DropParams{Intensity: 0.15, OffsetX: 5, OffsetY: 5, BlurRadius: 5},
		Reflection: ReflectionParams{HeightFrac: 0.5, Opacity: 0.2},
		Natural:    NaturalParams{Intensity: 0.2, BlurRadius: 4},
	}

	// Tall subject resolves to reflection: height grows by gap + reflH.
	tall := opaqueSubject(100, 300, 9, 9, 9)
	out := RenderShadow(tall, style)
	if got, want := out.Bounds().Dy(), 300+reflectionGap+150; got != want {
		t.Fatalf("tall height = %d, want %d", got, want)
	}

	// Wide subject resolves to natural: both sides grow by blur + 15.
	wide := opaqueSubject(300, 100, 9, 9, 9)
	out = RenderShadow(wide, style)
	if got, want := out.Bounds().Dx(), 300+2*(4+naturalExtraMarg); got != want {
		t.Fatalf("wide width = %d, want %d", got, want)
	}
}

func TestRenderShadowNoneIsIdentity(t *testing.T) {
	subject := opaqueSubject(50, 50, 1, 2, 3)
	out := RenderShadow(subject, ShadowStyle{Kind: ShadowNone})
	if out != subject {
		t.Fatalf("none style must return the subject unchanged")
	}
}
