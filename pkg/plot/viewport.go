package plot

import (
	"math"

	"github.com/lemonberrylabs/i64-plotter/pkg/expr"
)

// Lower bounds of the visible half-extent of each axis. A plot whose values
// stay within ±lower is drawn at that scale.
const (
	MinHalfExtentY = 382
	MinHalfExtentX = 260
)

// Viewport maps value pairs onto a width × height pixel area. The visible
// ranges are symmetric around zero, so the origin is at the centre.
type Viewport struct {
	Width, Height int

	MinX, MaxX float64
	MinY, MaxY float64
}

// NewViewport computes the viewport for the given buffers.
func NewViewport(w, h int, xs, ys *expr.Values) Viewport {
	v := Viewport{Width: w, Height: h}
	v.MinX, v.MaxX = symmetricBounds(xs, MinHalfExtentX)
	v.MinY, v.MaxY = symmetricBounds(ys, MinHalfExtentY)
	return v
}

// symmetricBounds clamps max into [lower, MaxInt64] and min into
// [-MaxInt64, -lower]. The side with the larger magnitude wins and the other
// becomes its negation.
func symmetricBounds(vals *expr.Values, lower int64) (float64, float64) {
	lo, hi := vals.Min(), vals.Max()

	if hi < lower {
		hi = lower
	}
	if lo < -math.MaxInt64 {
		lo = -math.MaxInt64
	}
	if lo > -lower {
		lo = -lower
	}

	max, min := float64(hi), float64(lo)
	if math.Abs(max) > math.Abs(min) {
		min = -max
	} else {
		max = -min
	}
	return min, max
}

// Project maps a value pair to pixel coordinates, with y growing downwards.
func (v Viewport) Project(x, y int64) (int, int) {
	px := int(float64(v.Width) * (float64(x) - v.MinX) / (v.MaxX - v.MinX))
	py := v.Height - int(float64(v.Height)*(float64(y)-v.MinY)/(v.MaxY-v.MinY))
	return px, py
}

// Unproject maps pixel coordinates back to the value pair under them.
func (v Viewport) Unproject(px, py int) (int64, int64) {
	x := float64(px)*(v.MaxX-v.MinX)/float64(v.Width) + v.MinX
	y := float64(v.Height-py)*(v.MaxY-v.MinY)/float64(v.Height) + v.MinY
	return toInt64(x), toInt64(y)
}

// Origin returns the pixel coordinates of (0, 0).
func (v Viewport) Origin() (int, int) {
	return v.Width / 2, v.Height / 2
}

func toInt64(f float64) int64 {
	switch {
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}
