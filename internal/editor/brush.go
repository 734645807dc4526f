package editor

import "image"

// Point is one stroke coordinate in image space. Out-of-bounds coordinates
// are clamped, never rejected.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// BrushAction selects what a stroke does to the working buffer.
type BrushAction string

const (
	ActionErase   BrushAction = "erase"
	ActionRestore BrushAction = "restore"
)

// rasterizeStroke renders a brush stroke into a binary mask: consecutive
// points become line segments of width brushSize, a lone point becomes a
// filled circle of radius brushSize/2.
func rasterizeStroke(w, h int, stroke []Point, brushSize int) *image.Alpha {
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	if len(stroke) == 0 {
		return mask
	}
	radius := brushSize / 2
	if radius < 1 {
		radius = 1
	}
	if len(stroke) == 1 {
		p := clampPoint(stroke[0], w, h)
		stampDisc(mask, p.X, p.Y, radius)
		return mask
	}
	for i := 0; i < len(stroke)-1; i++ {
		a := clampPoint(stroke[i], w, h)
		b := clampPoint(stroke[i+1], w, h)
		stampSegment(mask, a, b, radius)
	}
	return mask
}

func clampPoint(p Point, w, h int) Point {
	if p.X < 0 {
		p.X = 0
	} else if p.X >= w {
		p.X = w - 1
	}
	if p.Y < 0 {
		p.Y = 0
	} else if p.Y >= h {
		p.Y = h - 1
	}
	return p
}

// stampSegment paints a thick line by stamping discs at sub-pixel intervals
// along the segment.
func stampSegment(mask *image.Alpha, a, b Point, radius int) {
	dx := b.X - a.X
	dy := b.Y - a.Y
	steps := absInt(dx)
	if s := absInt(dy); s > steps {
		steps = s
	}
	if steps == 0 {
		stampDisc(mask, a.X, a.Y, radius)
		return
	}
	for i := 0; i <= steps; i++ {
		x := a.X + dx*i/steps
		y := a.Y + dy*i/steps
		stampDisc(mask, x, y, radius)
	}
}

func stampDisc(mask *image.Alpha, cx, cy, radius int) {
	w := mask.Rect.Dx()
	h := mask.Rect.Dy()
	r2 := radius * radius
	for dy := -radius; dy <= radius; dy++ {
		y := cy + dy
		if y < 0 || y >= h {
			continue
		}
		for dx := -radius; dx <= radius; dx++ {
			x := cx + dx
			if x < 0 || x >= w {
				continue
			}
			if dx*dx+dy*dy <= r2 {
				mask.Pix[y*mask.Stride+x] = 255
			}
		}
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
