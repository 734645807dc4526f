package pipeline

import (
	"context"
	"errors"
	"testing"

	"masterpost/internal/domain"
)

func TestWhiteThresholdRemove(t *testing.T) {
	img := opaqueSubject(4, 1, 0, 0, 0)
	set := func(x int, r, g, b uint8) {
		i := x * 4
		img.Pix[i] = r
		img.Pix[i+1] = g
		img.Pix[i+2] = b
	}
	set(0, 255, 255, 255) // pure white
	set(1, 245, 245, 245) // near white, above threshold
	set(2, 239, 245, 245) // one channel below threshold
	set(3, 30, 30, 30)    // subject

	out, err := WhiteThreshold{}.Remove(context.Background(), img)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}

	wantAlpha := []uint8{0, 0, 255, 255}
	for x, want := range wantAlpha {
		if got := out.Pix[x*4+3]; got != want {
			t.Fatalf("pixel %d alpha = %d, want %d", x, got, want)
		}
	}

	// The input image is never mutated.
	if img.Pix[3] != 255 {
		t.Fatalf("input image was mutated")
	}
}

func TestWhiteThresholdCustomCutoff(t *testing.T) {
	img := opaqueSubject(1, 1, 200, 200, 200)
	out, err := WhiteThreshold{Threshold: 190}.Remove(context.Background(), img)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if out.Pix[3] != 0 {
		t.Fatalf("alpha = %d, want 0 with lowered threshold", out.Pix[3])
	}
}

func TestEdgeDetectRejectsTinyImages(t *testing.T) {
	img := opaqueSubject(5, 5, 0, 0, 0)
	if _, err := (EdgeDetect{}).Remove(context.Background(), img); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEdgeDetectCutsUniformBorder(t *testing.T) {
	// Uniform light border, strongly different center square.
	img := opaqueSubject(50, 50, 230, 230, 230)
	for y := 15; y < 35; y++ {
		for x := 15; x < 35; x++ {
			i := y*img.Stride + x*4
			img.Pix[i] = 20
			img.Pix[i+1] = 20
			img.Pix[i+2] = 20
		}
	}
	out, err := EdgeDetect{}.Remove(context.Background(), img)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	// Border pixel outside the seed rectangle is always background.
	if out.Pix[2*4+3] != 0 {
		t.Fatalf("border pixel kept alpha %d", out.Pix[2*4+3])
	}
	// Center subject survives.
	center := 25*out.Stride + 25*4
	if out.Pix[center+3] != 255 {
		t.Fatalf("center subject alpha = %d, want 255", out.Pix[center+3])
	}
}

type fakeSegmenter struct {
	result []byte
	err    error
}

func (f fakeSegmenter) RemoveBackground(_ context.Context, _ []byte) ([]byte, error) {
	return f.result, f.err
}

func TestExternalSegmentationErrors(t *testing.T) {
	img := opaqueSubject(10, 10, 0, 0, 0)

	cases := []struct {
		name     string
		strategy ExternalSegmentation
	}{
		{"nil provider", ExternalSegmentation{}},
		{"provider error", ExternalSegmentation{Provider: fakeSegmenter{err: errors.New("boom")}}},
		{"bad result payload", ExternalSegmentation{Provider: fakeSegmenter{result: []byte("not an image")}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.strategy.Remove(context.Background(), img)
			if !errors.Is(err, domain.ErrProviderFailure) {
				t.Fatalf("expected provider failure, got %v", err)
			}
		})
	}
}

func TestExternalSegmentationRoundTrip(t *testing.T) {
	cut := opaqueSubject(8, 8, 10, 20, 30)
	cut.Pix[3] = 0 // provider already removed this pixel
	payload, err := EncodePNG(cut)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	strategy := ExternalSegmentation{Provider: fakeSegmenter{result: payload}}
	out, err := strategy.Remove(context.Background(), opaqueSubject(8, 8, 0, 0, 0))
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if out.Pix[3] != 0 {
		t.Fatalf("expected provider alpha to survive, got %d", out.Pix[3])
	}
	if strategy.Name() != "external_segmentation" {
		t.Fatalf("name = %q", strategy.Name())
	}
}

func TestRefineEdgesSoftensCut(t *testing.T) {
	// Single opaque pixel surrounded by transparency erodes away entirely.
	img := opaqueSubject(9, 9, 0, 0, 0)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0
	}
	img.Pix[4*img.Stride+4*4+3] = 255

	out := RefineEdges(img)
	if got := out.Pix[4*out.Stride+4*4+3]; got != 0 {
		t.Fatalf("isolated pixel alpha = %d, want 0 after erosion", got)
	}
}
