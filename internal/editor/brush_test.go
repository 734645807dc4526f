package editor

import "testing"

func TestRasterizeStrokeSinglePoint(t *testing.T) {
	mask := rasterizeStroke(20, 20, []Point{{X: 10, Y: 10}}, 6)

	if mask.Pix[10*mask.Stride+10] != 255 {
		t.Fatalf("center must be painted")
	}
	if mask.Pix[10*mask.Stride+13] != 255 {
		t.Fatalf("point inside radius must be painted")
	}
	if mask.Pix[10*mask.Stride+14] != 0 {
		t.Fatalf("point outside radius must stay clear")
	}
}

func TestRasterizeStrokeSegmentIsConnected(t *testing.T) {
	mask := rasterizeStroke(50, 50, []Point{{X: 5, Y: 5}, {X: 45, Y: 5}}, 4)

	// Every column along the segment is covered; discs are stamped at unit
	// steps so no gaps open up.
	for x := 5; x <= 45; x++ {
		if mask.Pix[5*mask.Stride+x] != 255 {
			t.Fatalf("gap in stroke at x=%d", x)
		}
	}
	if mask.Pix[20*mask.Stride+25] != 0 {
		t.Fatalf("far row must stay clear")
	}
}

func TestRasterizeStrokeClampsOutOfBounds(t *testing.T) {
	mask := rasterizeStroke(10, 10, []Point{{X: -50, Y: -50}, {X: 100, Y: 100}}, 2)

	painted := 0
	for _, v := range mask.Pix {
		if v == 255 {
			painted++
		}
	}
	if painted == 0 {
		t.Fatalf("clamped stroke must still paint inside the image")
	}
}

func TestRasterizeStrokeEmpty(t *testing.T) {
	mask := rasterizeStroke(10, 10, nil, 5)
	for _, v := range mask.Pix {
		if v != 0 {
			t.Fatalf("empty stroke must paint nothing")
		}
	}
}
