package extract

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/menta2k/vision-batch/pkg/geometry"
	"github.com/menta2k/vision-batch/pkg/processing"
	"github.com/menta2k/vision-batch/pkg/types"
)

func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{64, 64, 64, 255})
		}
	}
	return img
}

// writeSourceImage saves a decodable test image and returns a source set
// holding just that file.
func writeSourceImage(t *testing.T, dir, name string) *SourceSet {
	t.Helper()
	proc := processing.NewProcessor()
	path := filepath.Join(dir, name)
	require.NoError(t, proc.SaveImage(createTestImage(100, 80), path, "jpg", 95, false))

	sources := NewSourceSet(proc)
	sources.Add(path)
	return sources
}

func newTestExtractor(outDir string, annotate bool) *Extractor {
	return New(processing.NewProcessor(), Options{OutDir: outDir, Annotate: annotate}, zap.NewNop().Sugar())
}

func axisRecord(img string, box geometry.AxisBox) types.DetectionRecord {
	b := box
	return types.DetectionRecord{Image: img, Label: "cat", Axis: &b}
}

func TestRunSavesCrops(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	sources := writeSourceImage(t, srcDir, "photo.jpg")

	records := []types.DetectionRecord{
		axisRecord("photo.jpg", geometry.AxisBox{Xmin: 10, Ymin: 10, Xmax: 40, Ymax: 30}),
		axisRecord("photo.jpg", geometry.AxisBox{Xmin: 50, Ymin: 20, Xmax: 90, Ymax: 70}),
	}

	stats, err := newTestExtractor(outDir, false).Run(context.Background(), records, sources, nil)
	require.NoError(t, err)
	assert.Equal(t, &Stats{Saved: 2}, stats)

	assert.FileExists(t, filepath.Join(outDir, "photo", "photo_0.jpg"))
	assert.FileExists(t, filepath.Join(outDir, "photo", "photo_1.jpg"))
}

func TestRunUsesRecordID(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	sources := writeSourceImage(t, srcDir, "photo.jpg")

	id := 42
	rec := axisRecord("photo.jpg", geometry.AxisBox{Xmin: 10, Ymin: 10, Xmax: 40, Ymax: 30})
	rec.ID = &id

	stats, err := newTestExtractor(outDir, false).Run(context.Background(), []types.DetectionRecord{rec}, sources, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Saved)
	assert.FileExists(t, filepath.Join(outDir, "photo", "photo_42.jpg"))
}

func TestRunQuadUsesBoundingRect(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	sources := writeSourceImage(t, srcDir, "photo.jpg")

	quad := geometry.QuadBox{X1: 10, Y1: 10, X2: 40, Y2: 12, X3: 38, Y3: 30, X4: 12, Y4: 28}
	records := []types.DetectionRecord{{Image: "photo.jpg", Label: "text", Quad: &quad}}

	stats, err := newTestExtractor(outDir, false).Run(context.Background(), records, sources, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Saved)

	proc := processing.NewProcessor()
	img, err := proc.LoadImage(filepath.Join(outDir, "photo", "photo_0.jpg"))
	require.NoError(t, err)
	assert.Equal(t, 30, img.Bounds().Dx())
	assert.Equal(t, 20, img.Bounds().Dy())
}

func TestRunScoreGate(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	sources := writeSourceImage(t, srcDir, "photo.jpg")

	low := 0.3
	rec := axisRecord("photo.jpg", geometry.AxisBox{Xmin: 10, Ymin: 10, Xmax: 40, Ymax: 30})
	rec.Score = &low

	stats, err := newTestExtractor(outDir, false).Run(context.Background(), []types.DetectionRecord{rec}, sources, nil)
	require.NoError(t, err)
	assert.Equal(t, &Stats{Skipped: 1}, stats)
}

func TestRunMissingSourceSkipsGroup(t *testing.T) {
	outDir := t.TempDir()
	sources := NewSourceSet(processing.NewProcessor())

	records := []types.DetectionRecord{
		axisRecord("gone.jpg", geometry.AxisBox{Xmin: 0, Ymin: 0, Xmax: 10, Ymax: 10}),
		axisRecord("gone.jpg", geometry.AxisBox{Xmin: 5, Ymin: 5, Xmax: 15, Ymax: 15}),
	}

	stats, err := newTestExtractor(outDir, false).Run(context.Background(), records, sources, nil)
	require.NoError(t, err)
	assert.Equal(t, &Stats{Skipped: 2}, stats)
}

func TestRunDecodeFailureFailsGroup(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()

	path := filepath.Join(srcDir, "broken.jpg")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))
	sources := NewSourceSet(processing.NewProcessor())
	sources.Add(path)

	records := []types.DetectionRecord{
		axisRecord("broken.jpg", geometry.AxisBox{Xmin: 0, Ymin: 0, Xmax: 10, Ymax: 10}),
	}

	stats, err := newTestExtractor(outDir, false).Run(context.Background(), records, sources, nil)
	require.NoError(t, err)
	assert.Equal(t, &Stats{Failed: 1}, stats)
}

func TestRunUnknownBBoxFormat(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	sources := writeSourceImage(t, srcDir, "photo.jpg")

	records := []types.DetectionRecord{
		{Image: "photo.jpg", Label: "none"},
	}

	stats, err := newTestExtractor(outDir, false).Run(context.Background(), records, sources, nil)
	require.NoError(t, err)
	assert.Equal(t, &Stats{Skipped: 1}, stats)
}

func TestRunInvalidGeometryFails(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	sources := writeSourceImage(t, srcDir, "photo.jpg")

	// Entirely outside the 100x80 image; clamps to zero width
	records := []types.DetectionRecord{
		axisRecord("photo.jpg", geometry.AxisBox{Xmin: 200, Ymin: 10, Xmax: 300, Ymax: 30}),
	}

	stats, err := newTestExtractor(outDir, false).Run(context.Background(), records, sources, nil)
	require.NoError(t, err)
	assert.Equal(t, &Stats{Failed: 1}, stats)
}

func TestRunProgressPerGroup(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()

	proc := processing.NewProcessor()
	sources := NewSourceSet(proc)
	for _, name := range []string{"a.jpg", "b.jpg"} {
		path := filepath.Join(srcDir, name)
		require.NoError(t, proc.SaveImage(createTestImage(50, 50), path, "jpg", 95, false))
		sources.Add(path)
	}

	records := []types.DetectionRecord{
		axisRecord("a.jpg", geometry.AxisBox{Xmin: 0, Ymin: 0, Xmax: 10, Ymax: 10}),
		axisRecord("b.jpg", geometry.AxisBox{Xmin: 0, Ymin: 0, Xmax: 10, Ymax: 10}),
		axisRecord("a.jpg", geometry.AxisBox{Xmin: 5, Ymin: 5, Xmax: 20, Ymax: 20}),
	}

	var calls []int
	var totals []int
	progress := func(current, total int, message string) {
		calls = append(calls, current)
		totals = append(totals, total)
		assert.NotEmpty(t, message)
	}

	stats, err := newTestExtractor(outDir, false).Run(context.Background(), records, sources, progress)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Saved)
	assert.Equal(t, []int{1, 2}, calls)
	assert.Equal(t, []int{2, 2}, totals)
}

func TestRunAnnotate(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	sources := writeSourceImage(t, srcDir, "photo.jpg")

	records := []types.DetectionRecord{
		axisRecord("photo.jpg", geometry.AxisBox{Xmin: 10, Ymin: 10, Xmax: 40, Ymax: 30}),
	}

	stats, err := newTestExtractor(outDir, true).Run(context.Background(), records, sources, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Saved)
	assert.FileExists(t, filepath.Join(outDir, "photo", "photo_annotated.jpg"))
}

func TestRunCancelledContext(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	sources := writeSourceImage(t, srcDir, "photo.jpg")

	records := []types.DetectionRecord{
		axisRecord("photo.jpg", geometry.AxisBox{Xmin: 10, Ymin: 10, Xmax: 40, Ymax: 30}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := newTestExtractor(outDir, false).Run(ctx, records, sources, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stats.Saved)
}

func TestRunEmptyImageRecordSkipped(t *testing.T) {
	outDir := t.TempDir()
	sources := NewSourceSet(processing.NewProcessor())

	records := []types.DetectionRecord{{Label: "orphan"}}

	stats, err := newTestExtractor(outDir, false).Run(context.Background(), records, sources, nil)
	require.NoError(t, err)
	assert.Equal(t, &Stats{Skipped: 1}, stats)
}
