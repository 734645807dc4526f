package pipeline

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// toNRGBA normalizes any decoded image to straight-alpha NRGBA, the working
// format of the whole transform stage.
func toNRGBA(src image.Image) *image.NRGBA {
	if n, ok := src.(*image.NRGBA); ok {
		return n
	}
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// alphaOf extracts the alpha channel as a grayscale mask.
func alphaOf(img *image.NRGBA) *image.Alpha {
	b := img.Bounds()
	mask := image.NewAlpha(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := b.Min.X; x < b.Max.X; x++ {
			mask.Pix[(y-b.Min.Y)*mask.Stride+(x-b.Min.X)] = row[(x-b.Min.X)*4+3]
		}
	}
	return mask
}

// setAlpha replaces the image's alpha channel with the given mask in place.
// Mask and image must share dimensions.
func setAlpha(img *image.NRGBA, mask *image.Alpha) {
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			img.Pix[y*img.Stride+x*4+3] = mask.Pix[y*mask.Stride+x]
		}
	}
}

// erodeAlpha applies a 3x3 minimum filter to the mask, shrinking opaque
// regions by about one pixel per pass.
func erodeAlpha(mask *image.Alpha, passes int) *image.Alpha {
	w := mask.Rect.Dx()
	h := mask.Rect.Dy()
	cur := mask
	for p := 0; p < passes; p++ {
		out := image.NewAlpha(cur.Rect)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				min := uint8(255)
				for dy := -1; dy <= 1; dy++ {
					yy := y + dy
					if yy < 0 || yy >= h {
						continue
					}
					for dx := -1; dx <= 1; dx++ {
						xx := x + dx
						if xx < 0 || xx >= w {
							continue
						}
						if v := cur.Pix[yy*cur.Stride+xx]; v < min {
							min = v
						}
					}
				}
				out.Pix[y*out.Stride+x] = min
			}
		}
		cur = out
	}
	return cur
}

// gaussianKernel builds a normalized 1D kernel for the given sigma.
func gaussianKernel(sigma float64) []float64 {
	if sigma <= 0 {
		return []float64{1}
	}
	radius := int(math.Ceil(sigma * 2.5))
	if radius < 1 {
		radius = 1
	}
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// blurAlpha applies a separable gaussian blur to the mask. Sigma follows the
// PIL convention where the configured radius is the standard deviation.
func blurAlpha(mask *image.Alpha, sigma float64) *image.Alpha {
	if sigma <= 0 {
		return mask
	}
	kernel := gaussianKernel(sigma)
	radius := len(kernel) / 2
	w := mask.Rect.Dx()
	h := mask.Rect.Dy()

	tmp := image.NewAlpha(mask.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0.0
			for k := -radius; k <= radius; k++ {
				xx := x + k
				if xx < 0 {
					xx = 0
				} else if xx >= w {
					xx = w - 1
				}
				acc += kernel[k+radius] * float64(mask.Pix[y*mask.Stride+xx])
			}
			tmp.Pix[y*tmp.Stride+x] = uint8(acc + 0.5)
		}
	}
	out := image.NewAlpha(mask.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0.0
			for k := -radius; k <= radius; k++ {
				yy := y + k
				if yy < 0 {
					yy = 0
				} else if yy >= h {
					yy = h - 1
				}
				acc += kernel[k+radius] * float64(tmp.Pix[yy*tmp.Stride+x])
			}
			out.Pix[y*out.Stride+x] = uint8(acc + 0.5)
		}
	}
	return out
}

// scaleAlpha multiplies every mask value by factor, zeroing values at or
// below cutoff first so stray semi-transparent noise does not cast a shadow.
func scaleAlpha(mask *image.Alpha, factor float64, cutoff uint8) *image.Alpha {
	out := image.NewAlpha(mask.Rect)
	for i, v := range mask.Pix {
		if v <= cutoff {
			continue
		}
		s := float64(v) * factor
		if s > 255 {
			s = 255
		}
		out.Pix[i] = uint8(s)
	}
	return out
}

// scaleToFit downscales src to fit within (maxW, maxH) preserving aspect
// ratio. Images already inside the box are returned unchanged; this stage
// never upscales.
func scaleToFit(src *image.NRGBA, maxW, maxH int) *image.NRGBA {
	w := src.Bounds().Dx()
	h := src.Bounds().Dy()
	if w <= maxW && h <= maxH {
		return src
	}
	ratio := math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := int(float64(w) * ratio)
	nh := int(float64(h) * ratio)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// Downscale shrinks img to fit within (maxW, maxH) preserving aspect ratio
// and transparency. Smaller images pass through untouched.
func Downscale(img *image.NRGBA, maxW, maxH int) *image.NRGBA {
	return scaleToFit(img, maxW, maxH)
}

// flipVertical returns the image mirrored top to bottom.
func flipVertical(src *image.NRGBA) *image.NRGBA {
	w := src.Bounds().Dx()
	h := src.Bounds().Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		copy(dst.Pix[(h-1-y)*dst.Stride:(h-1-y)*dst.Stride+w*4], src.Pix[y*src.Stride:y*src.Stride+w*4])
	}
	return dst
}

// drawOver alpha-composites src onto dst at (ox, oy) with straight alpha.
func drawOver(dst *image.NRGBA, src *image.NRGBA, ox, oy int) {
	sw := src.Bounds().Dx()
	sh := src.Bounds().Dy()
	dw := dst.Bounds().Dx()
	dh := dst.Bounds().Dy()
	for y := 0; y < sh; y++ {
		dy := oy + y
		if dy < 0 || dy >= dh {
			continue
		}
		for x := 0; x < sw; x++ {
			dx := ox + x
			if dx < 0 || dx >= dw {
				continue
			}
			si := y*src.Stride + x*4
			di := dy*dst.Stride + dx*4
			sa := uint32(src.Pix[si+3])
			if sa == 0 {
				continue
			}
			if sa == 255 {
				copy(dst.Pix[di:di+4], src.Pix[si:si+4])
				continue
			}
			da := uint32(dst.Pix[di+3])
			outA := sa + da*(255-sa)/255
			for c := 0; c < 3; c++ {
				sc := uint32(src.Pix[si+c])
				dc := uint32(dst.Pix[di+c])
				var v uint32
				if outA > 0 {
					v = (sc*sa + dc*da*(255-sa)/255) / outA
				}
				dst.Pix[di+c] = uint8(v)
			}
			dst.Pix[di+3] = uint8(outA)
		}
	}
}

// drawMaskColor composites a solid color through the mask onto dst at
// (ox, oy). Used to paint blurred shadow silhouettes.
func drawMaskColor(dst *image.NRGBA, mask *image.Alpha, r, g, b uint8, ox, oy int) {
	mw := mask.Rect.Dx()
	mh := mask.Rect.Dy()
	dw := dst.Bounds().Dx()
	dh := dst.Bounds().Dy()
	for y := 0; y < mh; y++ {
		dy := oy + y
		if dy < 0 || dy >= dh {
			continue
		}
		for x := 0; x < mw; x++ {
			dx := ox + x
			if dx < 0 || dx >= dw {
				continue
			}
			sa := uint32(mask.Pix[y*mask.Stride+x])
			if sa == 0 {
				continue
			}
			di := dy*dst.Stride + dx*4
			da := uint32(dst.Pix[di+3])
			outA := sa + da*(255-sa)/255
			src := [3]uint32{uint32(r), uint32(g), uint32(b)}
			for c := 0; c < 3; c++ {
				dc := uint32(dst.Pix[di+c])
				var v uint32
				if outA > 0 {
					v = (src[c]*sa + dc*da*(255-sa)/255) / outA
				}
				dst.Pix[di+c] = uint8(v)
			}
			dst.Pix[di+3] = uint8(outA)
		}
	}
}

// newWhiteCanvas allocates an opaque white NRGBA canvas.
func newWhiteCanvas(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i++ {
		img.Pix[i] = 255
	}
	return img
}

// isOpaque reports whether every pixel is fully opaque.
func isOpaque(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 255 {
			return false
		}
	}
	return true
}
