// Package runner drives sequential batch inference over images and streams
// every result into a sink.
package runner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menta2k/vision-batch/pkg/processing"
	"github.com/menta2k/vision-batch/pkg/sink"
	"github.com/menta2k/vision-batch/pkg/types"
)

// ErrBatchRunning is returned by Run while another batch is active on the
// same runner.
var ErrBatchRunning = errors.New("runner: batch already running")

// Inferencer is the inference capability the runner consumes. Implemented by
// infer.Engine; stubbed in tests.
type Inferencer interface {
	Infer(ctx context.Context, imageB64 string, task types.Task, text string) (types.RawResult, error)
}

// Item is one batch input. A preloaded Image wins over Path; Path-backed
// items are loaded lazily, one at a time.
type Item struct {
	Filename string
	Path     string
	Image    image.Image
}

// PrepOptions controls how images are encoded before they reach the model.
// MaxDim 0 leaves images at their original size.
type PrepOptions struct {
	Format  string
	MaxDim  int
	Quality int
}

// DefaultPrep returns the send settings vision models tolerate well.
func DefaultPrep() PrepOptions {
	return PrepOptions{Format: "jpg", MaxDim: 1536, Quality: 85}
}

// Options configures one batch run.
type Options struct {
	Task     types.Task
	Text     string
	Progress func(types.ProgressEvent)
}

// Runner owns the per-item loop, the prepared-image cache for single-image
// mode, and the running-state guard.
type Runner struct {
	inf    Inferencer
	proc   *processing.Processor
	prep   PrepOptions
	logger *zap.SugaredLogger

	mu      sync.Mutex
	running bool

	cacheFilename string
	cacheB64      string
}

type Option func(*Runner)

// WithPrep overrides the default image preparation settings.
func WithPrep(prep PrepOptions) Option {
	return func(r *Runner) {
		r.prep = prep
	}
}

// New creates a runner on top of an inferencer.
func New(inf Inferencer, proc *processing.Processor, logger *zap.SugaredLogger, options ...Option) *Runner {
	r := &Runner{
		inf:    inf,
		proc:   proc,
		prep:   DefaultPrep(),
		logger: logger,
	}

	for _, option := range options {
		option(r)
	}

	if r.prep.Format == "" {
		r.prep.Format = "jpg"
	}
	if r.prep.Quality <= 0 {
		r.prep.Quality = 85
	}

	return r
}

// Run processes items in order, writing one ResultItem per input to out. A
// per-item failure is recorded on its ResultItem and the batch continues; a
// sink write error aborts the run. The sink is finalized even when the
// context is cancelled between items, so the output stays well-formed.
func (r *Runner) Run(ctx context.Context, items []Item, opts Options, out sink.Sink) (*types.Summary, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrBatchRunning
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	runID := uuid.NewString()
	start := time.Now()
	processed := 0

	r.logger.Infow("batch started", "run_id", runID, "items", len(items), "task", opts.Task)

	var runErr error
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		if opts.Progress != nil {
			opts.Progress(types.ProgressEvent{Current: i + 1, Total: len(items), Filename: item.Filename})
		}

		result := r.processItem(ctx, item, opts.Task, opts.Text)
		if err := out.WriteResult(result); err != nil {
			return nil, fmt.Errorf("failed to write result for %s: %w", item.Filename, err)
		}
		processed++
	}

	if err := out.Finalize(); err != nil {
		return nil, fmt.Errorf("failed to finalize output: %w", err)
	}

	if runErr != nil {
		r.logger.Warnw("batch cancelled", "run_id", runID, "processed", processed)
		return nil, runErr
	}

	summary := &types.Summary{
		RunID:     runID,
		Processed: processed,
		Elapsed:   time.Since(start),
	}
	r.logger.Infow("batch complete",
		"run_id", runID, "processed", processed, "elapsed", summary.Elapsed)
	return summary, nil
}

// processItem never fails the batch: load, prepare, and inference errors all
// land in the ResultItem's error field with TimeMS zero.
func (r *Runner) processItem(ctx context.Context, item Item, task types.Task, text string) types.ResultItem {
	res := types.ResultItem{Filename: item.Filename, Task: task}

	b64, err := r.prepare(item)
	if err != nil {
		r.logger.Warnw("failed to prepare image", "filename", item.Filename, "error", err)
		res.Error = err.Error()
		return res
	}

	start := time.Now()
	raw, err := r.inf.Infer(ctx, b64, task, text)
	if err != nil {
		r.logger.Warnw("inference failed", "filename", item.Filename, "error", err)
		res.Error = err.Error()
		return res
	}

	res.Result = raw
	res.TimeMS = time.Since(start).Milliseconds()

	if d, ok := raw.(*types.Detections); ok {
		rows := types.FlattenDetections(item.Filename, d)
		r.logger.Debugw("detections", "filename", item.Filename, "count", len(rows))
	}

	return res
}

// ProcessOne runs a single task against one image without a sink, returning
// the result plus the flattened convenience rows for detection tasks. The
// prepared model input is cached by filename so a second task against the
// same image skips preprocessing.
func (r *Runner) ProcessOne(ctx context.Context, item Item, task types.Task, text string) (*types.ResultItem, []types.DetectionRecord, error) {
	b64, err := r.preparedCached(item)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	raw, err := r.inf.Infer(ctx, b64, task, text)
	if err != nil {
		return nil, nil, err
	}

	res := &types.ResultItem{
		Filename: item.Filename,
		Task:     task,
		Result:   raw,
		TimeMS:   time.Since(start).Milliseconds(),
	}

	var rows []types.DetectionRecord
	if d, ok := raw.(*types.Detections); ok {
		rows = types.FlattenDetections(item.Filename, d)
	}

	return res, rows, nil
}

// InvalidateCache drops the cached prepared image.
func (r *Runner) InvalidateCache() {
	r.cacheFilename = ""
	r.cacheB64 = ""
}

func (r *Runner) preparedCached(item Item) (string, error) {
	if item.Filename != "" && item.Filename == r.cacheFilename {
		return r.cacheB64, nil
	}

	b64, err := r.prepare(item)
	if err != nil {
		return "", err
	}

	r.cacheFilename = item.Filename
	r.cacheB64 = b64
	return b64, nil
}

func (r *Runner) prepare(item Item) (string, error) {
	img := item.Image
	if img == nil {
		if item.Path == "" {
			return "", fmt.Errorf("item %s has neither image nor path", item.Filename)
		}
		loaded, err := r.proc.LoadImageSmart(item.Path)
		if err != nil {
			return "", fmt.Errorf("failed to load %s: %w", item.Path, err)
		}
		img = loaded
	}

	return r.proc.PrepareForModel(img, r.prep.Format, r.prep.MaxDim, r.prep.Quality)
}
