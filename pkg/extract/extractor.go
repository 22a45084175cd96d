// Package extract turns exported detection records back into cropped region
// images organized in one directory per source image.
package extract

import (
	"context"
	"fmt"
	"image"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/menta2k/vision-batch/internal/utils"
	"github.com/menta2k/vision-batch/pkg/geometry"
	"github.com/menta2k/vision-batch/pkg/processing"
	"github.com/menta2k/vision-batch/pkg/types"
)

const (
	// Records scoring below this are skipped; the gate is intentionally not
	// configurable.
	minScore = 0.5

	jpegQuality = 95
)

// Stats aggregates per-record outcomes of one extraction run.
type Stats struct {
	Saved   int
	Failed  int
	Skipped int
}

// ProgressFunc receives one update per source-image group.
type ProgressFunc func(current, total int, message string)

// Options configures an extraction run.
type Options struct {
	// OutDir is the root under which per-image crop directories are created.
	OutDir string
	// Annotate additionally writes a <baseName>_annotated.jpg overlay with
	// every cropped box outlined.
	Annotate bool
}

// Extractor crops detection regions out of source images.
type Extractor struct {
	proc   *processing.Processor
	opts   Options
	logger *zap.SugaredLogger

	dirs map[string]string
}

// New creates an extractor writing crops under opts.OutDir.
func New(proc *processing.Processor, opts Options, logger *zap.SugaredLogger) *Extractor {
	return &Extractor{
		proc:   proc,
		opts:   opts,
		logger: logger,
		dirs:   map[string]string{},
	}
}

// Run groups records by source image and crops every passing record. Failures
// are counted at record granularity and never abort the run; only context
// cancellation stops it early, between groups.
func (e *Extractor) Run(ctx context.Context, records []types.DetectionRecord, sources *SourceSet, progress ProgressFunc) (*Stats, error) {
	stats := &Stats{}

	var order []string
	groups := map[string][]types.DetectionRecord{}
	for _, rec := range records {
		if rec.Image == "" {
			stats.Skipped++
			continue
		}
		if _, ok := groups[rec.Image]; !ok {
			order = append(order, rec.Image)
		}
		groups[rec.Image] = append(groups[rec.Image], rec)
	}

	for gi, name := range order {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		group := groups[name]
		if progress != nil {
			progress(gi+1, len(order), fmt.Sprintf("extracting %d regions from %s", len(group), name))
		}

		if !sources.Has(name) {
			stats.Skipped += len(group)
			e.logger.Warnw("source image not found", "image", name, "records", len(group))
			continue
		}

		img, err := sources.Load(name)
		if err != nil {
			stats.Failed += len(group)
			e.logger.Warnw("failed to decode source image", "image", name, "error", err)
			continue
		}

		e.extractGroup(name, group, img, stats)
	}

	e.logger.Infow("extraction complete",
		"saved", stats.Saved, "failed", stats.Failed, "skipped", stats.Skipped)
	return stats, nil
}

func (e *Extractor) extractGroup(name string, group []types.DetectionRecord, img image.Image, stats *Stats) {
	base := utils.BaseName(name)
	bounds := img.Bounds()
	width, height := float64(bounds.Dx()), float64(bounds.Dy())

	var saved []geometry.AxisBox

	for i, rec := range group {
		if rec.Score != nil && *rec.Score < minScore {
			stats.Skipped++
			continue
		}

		var box geometry.AxisBox
		switch {
		case rec.Quad != nil && rec.Axis == nil:
			box = rec.Quad.BoundingRect()
		case rec.Axis != nil && rec.Quad == nil:
			box = *rec.Axis
		default:
			stats.Skipped++
			e.logger.Warnw("unknown bbox format", "image", name, "record", i)
			continue
		}

		box = box.Clamp(width, height)
		if _, _, err := box.CropSize(); err != nil {
			stats.Failed++
			e.logger.Warnw("invalid crop geometry", "image", name, "record", i, "error", err)
			continue
		}

		cropped, err := e.proc.Crop(img, box.Rect())
		if err != nil {
			stats.Failed++
			e.logger.Warnw("crop failed", "image", name, "record", i, "error", err)
			continue
		}

		dir, err := e.groupDir(base)
		if err != nil {
			stats.Failed++
			e.logger.Warnw("failed to create output directory", "image", name, "error", err)
			continue
		}

		idx := i
		if rec.ID != nil {
			idx = *rec.ID
		}

		path := filepath.Join(dir, fmt.Sprintf("%s_%d.jpg", base, idx))
		if err := e.proc.SaveImage(cropped, path, "jpg", jpegQuality, false); err != nil {
			stats.Failed++
			e.logger.Warnw("failed to save crop", "path", path, "error", err)
			continue
		}

		stats.Saved++
		saved = append(saved, box)
	}

	if e.opts.Annotate && len(saved) > 0 {
		e.annotateGroup(base, img, saved)
	}
}

// annotateGroup writes the overlay preview next to the crops. Failures here
// only log; they never count against the record stats.
func (e *Extractor) annotateGroup(base string, img image.Image, boxes []geometry.AxisBox) {
	dir, err := e.groupDir(base)
	if err != nil {
		e.logger.Warnw("failed to create output directory", "image", base, "error", err)
		return
	}

	overlay := e.proc.Annotate(img, boxes)
	path := filepath.Join(dir, base+"_annotated.jpg")
	if err := e.proc.SaveImage(overlay, path, "jpg", jpegQuality, false); err != nil {
		e.logger.Warnw("failed to save annotated image", "path", path, "error", err)
	}
}

func (e *Extractor) groupDir(base string) (string, error) {
	if dir, ok := e.dirs[base]; ok {
		return dir, nil
	}
	dir := filepath.Join(e.opts.OutDir, base)
	if err := utils.EnsureDir(dir); err != nil {
		return "", err
	}
	e.dirs[base] = dir
	return dir, nil
}
