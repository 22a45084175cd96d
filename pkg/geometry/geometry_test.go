package geometry

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundingRect(t *testing.T) {
	q := QuadBox{X1: 10, Y1: 20, X2: 100, Y2: 25, X3: 95, Y3: 80, X4: 5, Y4: 75}

	box := q.BoundingRect()
	assert.Equal(t, AxisBox{Xmin: 5, Ymin: 20, Xmax: 100, Ymax: 80}, box)
}

func TestBoundingRectDegenerateQuad(t *testing.T) {
	q := QuadBox{X1: 50, Y1: 50, X2: 50, Y2: 50, X3: 50, Y3: 50, X4: 50, Y4: 50}

	box := q.BoundingRect()
	assert.Equal(t, AxisBox{Xmin: 50, Ymin: 50, Xmax: 50, Ymax: 50}, box)

	_, _, err := box.CropSize()
	require.ErrorIs(t, err, ErrInvalidCropGeometry)
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name string
		in   AxisBox
		want AxisBox
	}{
		{
			name: "inside bounds",
			in:   AxisBox{Xmin: 10, Ymin: 10, Xmax: 90, Ymax: 40},
			want: AxisBox{Xmin: 10, Ymin: 10, Xmax: 90, Ymax: 40},
		},
		{
			name: "negative origin",
			in:   AxisBox{Xmin: -5, Ymin: -20, Xmax: 50, Ymax: 30},
			want: AxisBox{Xmin: 0, Ymin: 0, Xmax: 50, Ymax: 30},
		},
		{
			name: "overflows extents",
			in:   AxisBox{Xmin: 10, Ymin: 10, Xmax: 500, Ymax: 600},
			want: AxisBox{Xmin: 10, Ymin: 10, Xmax: 100, Ymax: 50},
		},
		{
			name: "entirely outside",
			in:   AxisBox{Xmin: 200, Ymin: 300, Xmax: 400, Ymax: 500},
			want: AxisBox{Xmin: 100, Ymin: 50, Xmax: 100, Ymax: 50},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Clamp(100, 50)
			assert.Equal(t, tt.want, got)

			// Idempotence: clamping a clamped box changes nothing.
			assert.Equal(t, got, got.Clamp(100, 50))
		})
	}
}

func TestCropSize(t *testing.T) {
	w, h, err := AxisBox{Xmin: 10, Ymin: 20, Xmax: 60, Ymax: 90}.CropSize()
	require.NoError(t, err)
	assert.Equal(t, 50.0, w)
	assert.Equal(t, 70.0, h)

	_, _, err = AxisBox{Xmin: 60, Ymin: 20, Xmax: 10, Ymax: 90}.CropSize()
	assert.ErrorIs(t, err, ErrInvalidCropGeometry)

	_, _, err = AxisBox{Xmin: 10, Ymin: 90, Xmax: 60, Ymax: 90}.CropSize()
	assert.ErrorIs(t, err, ErrInvalidCropGeometry)
}

func TestRect(t *testing.T) {
	box := AxisBox{Xmin: 10.4, Ymin: 19.5, Xmax: 60.6, Ymax: 89.2}
	assert.Equal(t, image.Rect(10, 20, 61, 89), box.Rect())
}

func TestClampThenCrop(t *testing.T) {
	// A quad spilling past the right edge still crops once clamped.
	q := QuadBox{X1: 80, Y1: 10, X2: 140, Y2: 12, X3: 138, Y3: 45, X4: 82, Y4: 42}

	box := q.BoundingRect().Clamp(100, 50)
	w, h, err := box.CropSize()
	require.NoError(t, err)
	assert.Equal(t, 20.0, w)
	assert.Equal(t, 35.0, h)
}
