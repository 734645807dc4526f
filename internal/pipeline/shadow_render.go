package pipeline

import "image"

// Shadow gray levels. Drop shadows use a light gray so the product still pops
// on the white marketplace canvas; natural shadows are darker but far more
// transparent.
const (
	dropShadowGray    = 150
	naturalShadowGray = 60
	reflectionGap     = 10
	dropExtraMargin   = 30
	naturalExtraMarg  = 15
)

// RenderShadow composites the subject with the requested shadow style and
// returns the enlarged result. Drop shadows return an opaque white canvas;
// reflection and natural shadows keep transparency for later placement.
func RenderShadow(subject *image.NRGBA, style ShadowStyle) *image.NRGBA {
	kind := style.Kind
	if kind == ShadowAuto {
		b := subject.Bounds()
		kind = ResolveAuto(b.Dx(), b.Dy())
	}
	switch kind {
	case ShadowDrop:
		return renderDropShadow(subject, style.Drop)
	case ShadowReflection:
		return renderReflectionShadow(subject, style.Reflection)
	case ShadowNatural:
		return renderNaturalShadow(subject, style.Natural)
	default:
		return subject
	}
}

// renderDropShadow paints a blurred gray silhouette beneath the subject on an
// enlarged white canvas. The margin guarantees the blur tail never clips:
// max(|ox|,|oy|) + blur + 30 on every side.
func renderDropShadow(subject *image.NRGBA, p DropParams) *image.NRGBA {
	w := subject.Bounds().Dx()
	h := subject.Bounds().Dy()

	margin := absInt(p.OffsetX)
	if m := absInt(p.OffsetY); m > margin {
		margin = m
	}
	margin += p.BlurRadius + dropExtraMargin

	canvas := newWhiteCanvas(w+2*margin, h+2*margin)

	mask := scaleAlpha(alphaOf(subject), p.Intensity, 5)
	mask = blurAlpha(mask, float64(p.BlurRadius))
	drawMaskColor(canvas, mask, dropShadowGray, dropShadowGray, dropShadowGray, margin+p.OffsetX, margin+p.OffsetY)

	drawOver(canvas, subject, margin, margin)
	return canvas
}

// renderReflectionShadow stacks a vertically flipped, fading copy of the
// subject beneath it with a fixed gap. The result keeps its alpha channel.
func renderReflectionShadow(subject *image.NRGBA, p ReflectionParams) *image.NRGBA {
	w := subject.Bounds().Dx()
	h := subject.Bounds().Dy()

	reflH := int(float64(h) * p.HeightFrac)
	if reflH < 1 {
		reflH = 1
	}
	canvas := image.NewNRGBA(image.Rect(0, 0, w, h+reflectionGap+reflH))
	drawOver(canvas, subject, 0, 0)

	flipped := flipVertical(subject)
	baseY := h + reflectionGap
	for y := 0; y < reflH; y++ {
		progress := float64(y) / float64(reflH)
		fade := 1.0
		if progress >= p.FadeStart && p.FadeStart < 1 {
			fade = 1 - (progress-p.FadeStart)/(1-p.FadeStart)
		}
		for x := 0; x < w; x++ {
			si := y*flipped.Stride + x*4
			if flipped.Pix[si+3] <= 10 {
				continue
			}
			di := (baseY+y)*canvas.Stride + x*4
			canvas.Pix[di] = flipped.Pix[si]
			canvas.Pix[di+1] = flipped.Pix[si+1]
			canvas.Pix[di+2] = flipped.Pix[si+2]
			canvas.Pix[di+3] = uint8(255 * p.Opacity * fade)
		}
	}
	return canvas
}

// renderNaturalShadow is a tighter, darker variant of the drop shadow with a
// direction picked from a small compass table and no oversized margin.
func renderNaturalShadow(subject *image.NRGBA, p NaturalParams) *image.NRGBA {
	w := subject.Bounds().Dx()
	h := subject.Bounds().Dy()

	dir := p.Direction
	if _, ok := naturalOffsets[dir]; !ok {
		dir = DirectionBottomRight
	}
	offset := naturalOffsets[dir]

	margin := p.BlurRadius + naturalExtraMarg
	canvas := image.NewNRGBA(image.Rect(0, 0, w+2*margin, h+2*margin))

	mask := scaleAlpha(alphaOf(subject), p.Intensity, 10)
	mask = blurAlpha(mask, float64(p.BlurRadius))
	drawMaskColor(canvas, mask, naturalShadowGray, naturalShadowGray, naturalShadowGray, margin+offset[0], margin+offset[1])

	drawOver(canvas, subject, margin, margin)
	return canvas
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
