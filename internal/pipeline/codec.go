package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"masterpost/internal/domain"
)

// supportedExtensions lists the input formats the batch engine accepts.
var supportedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".bmp":  true,
	".tiff": true,
}

// SupportedInput reports whether a filename carries a processable extension.
func SupportedInput(name string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(name))]
}

// OutputName builds the deterministic short output filename for a task index,
// e.g. img_001.jpg. Unsupported source extensions collapse to .jpg.
func OutputName(index int, sourceExt string) string {
	ext := strings.ToLower(sourceExt)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp":
	default:
		ext = ".jpg"
	}
	return fmt.Sprintf("img_%03d%s", index, ext)
}

// DecodeImage decodes jpeg/png/bmp/tiff via the stdlib registry and webp via
// libwebp, returning a straight-alpha NRGBA raster.
func DecodeImage(data []byte) (*image.NRGBA, error) {
	if isWebP(data) {
		img, err := webp.Decode(bytes.NewReader(data), &decoder.Options{})
		if err != nil {
			return nil, fmt.Errorf("%w: decode webp: %v", domain.ErrValidation, err)
		}
		return toNRGBA(img), nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: unsupported image format: %v", domain.ErrValidation, err)
	}
	return toNRGBA(img), nil
}

func isWebP(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}

// EncodeJPEG encodes an opaque canvas. Any remaining transparency is
// flattened onto white first, since JPEG cannot carry alpha.
func EncodeJPEG(img *image.NRGBA, quality int) ([]byte, error) {
	if quality <= 0 {
		quality = 95
	}
	if !isOpaque(img) {
		flat := newWhiteCanvas(img.Bounds().Dx(), img.Bounds().Dy())
		drawOver(flat, img, 0, 0)
		img = flat
	}
	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodePNG encodes the image preserving transparency.
func EncodePNG(img *image.NRGBA) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeWebP encodes a lossy webp, used for editor previews where payload
// size matters more than fidelity.
func EncodeWebP(img *image.NRGBA, quality float32) ([]byte, error) {
	if quality <= 0 {
		quality = 80
	}
	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, quality)
	if err != nil {
		return nil, fmt.Errorf("webp encoder options: %w", err)
	}
	buf := &bytes.Buffer{}
	if err := webp.Encode(buf, img, options); err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return buf.Bytes(), nil
}
