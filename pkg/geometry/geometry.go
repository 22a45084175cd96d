// Package geometry provides the coordinate math used when cutting detection
// regions out of source images.
package geometry

import (
	"errors"
	"image"
	"math"
)

// ErrInvalidCropGeometry reports a crop box with a non-positive width or
// height after clamping. Callers count the record as failed and continue.
var ErrInvalidCropGeometry = errors.New("invalid crop geometry")

// AxisBox is an axis-aligned rectangle in pixel coordinates.
type AxisBox struct {
	Xmin float64 `json:"xmin"`
	Ymin float64 `json:"ymin"`
	Xmax float64 `json:"xmax"`
	Ymax float64 `json:"ymax"`
}

// QuadBox is an arbitrary quadrilateral given by four vertices.
type QuadBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
	X3 float64 `json:"x3"`
	Y3 float64 `json:"y3"`
	X4 float64 `json:"x4"`
	Y4 float64 `json:"y4"`
}

// BoundingRect returns the smallest axis-aligned box containing the quad.
// A degenerate quad with all vertices coincident yields a zero-area box.
func (q QuadBox) BoundingRect() AxisBox {
	return AxisBox{
		Xmin: math.Min(math.Min(q.X1, q.X2), math.Min(q.X3, q.X4)),
		Ymin: math.Min(math.Min(q.Y1, q.Y2), math.Min(q.Y3, q.Y4)),
		Xmax: math.Max(math.Max(q.X1, q.X2), math.Max(q.X3, q.X4)),
		Ymax: math.Max(math.Max(q.Y1, q.Y2), math.Max(q.Y3, q.Y4)),
	}
}

// Clamp limits each coordinate independently to [0,width] and [0,height].
// Clamp is idempotent.
func (b AxisBox) Clamp(width, height float64) AxisBox {
	return AxisBox{
		Xmin: clamp(b.Xmin, 0, width),
		Ymin: clamp(b.Ymin, 0, height),
		Xmax: clamp(b.Xmax, 0, width),
		Ymax: clamp(b.Ymax, 0, height),
	}
}

// CropSize returns the crop width and height. Either dimension being
// non-positive is reported as ErrInvalidCropGeometry.
func (b AxisBox) CropSize() (float64, float64, error) {
	w := b.Xmax - b.Xmin
	h := b.Ymax - b.Ymin
	if w <= 0 || h <= 0 {
		return 0, 0, ErrInvalidCropGeometry
	}
	return w, h, nil
}

// Rect converts the box to an image.Rectangle, rounding each edge to the
// nearest pixel.
func (b AxisBox) Rect() image.Rectangle {
	return image.Rect(
		int(math.Round(b.Xmin)),
		int(math.Round(b.Ymin)),
		int(math.Round(b.Xmax)),
		int(math.Round(b.Ymax)),
	)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
