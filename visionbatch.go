// Package visionbatch runs vision-inference tasks over batches of images and
// exports the results incrementally.
//
// The pipeline sends each image to a vision model (Ollama or any
// OpenAI-compatible server), parses the response into a task-shaped result,
// and streams every result straight into an output sink so the full result
// set is never held in memory. Exported detection records can later be turned
// back into cropped region images.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		"go.uber.org/zap"
//
//		visionbatch "github.com/menta2k/vision-batch"
//		"github.com/menta2k/vision-batch/pkg/config"
//		"github.com/menta2k/vision-batch/pkg/sink"
//		"github.com/menta2k/vision-batch/pkg/types"
//	)
//
//	func main() {
//		logger := zap.Must(zap.NewProduction()).Sugar()
//
//		pipeline, err := visionbatch.New(config.Default(), logger)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		summary, err := pipeline.RunBatch(context.Background(), []string{"a.jpg", "b.jpg"}, visionbatch.BatchOptions{
//			Task:   types.TaskDetect,
//			Format: sink.FormatCSV,
//			OutDir: "./output",
//			Name:   "detections",
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		fmt.Printf("processed %d images in %s\n", summary.Processed, summary.Elapsed)
//	}
//
// The package consists of four main components:
//
// 1. Runner (pkg/runner): drives the sequential per-image inference loop
// 2. Sink (pkg/sink): streams results as one JSON array, flattened CSV, or per-item files
// 3. Extract (pkg/extract): crops exported detection records back out of the source images
// 4. Backends (pkg/ollama, pkg/openai): the vision clients behind pkg/infer's task engine
//
// Tasks: caption, ocr, tags, detect, ocr-regions, and ground (phrase
// grounding, which takes an extra text argument). Detection-shaped results
// carry parallel labels and axis or quad boxes in pixel coordinates.
package visionbatch

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/menta2k/vision-batch/pkg/client"
	"github.com/menta2k/vision-batch/pkg/config"
	"github.com/menta2k/vision-batch/pkg/extract"
	"github.com/menta2k/vision-batch/pkg/infer"
	"github.com/menta2k/vision-batch/pkg/ollama"
	"github.com/menta2k/vision-batch/pkg/openai"
	"github.com/menta2k/vision-batch/pkg/processing"
	"github.com/menta2k/vision-batch/pkg/runner"
	"github.com/menta2k/vision-batch/pkg/sink"
	"github.com/menta2k/vision-batch/pkg/types"
)

// Version of the vision-batch library
const Version = "1.0.0"

var _ runner.Inferencer = (*infer.Engine)(nil)

// Pipeline bundles a configured backend, the batch runner, and region
// extraction behind one high-level interface.
type Pipeline struct {
	proc   *processing.Processor
	runner *runner.Runner
	logger *zap.SugaredLogger
}

// New builds a pipeline from configuration.
func New(cfg *config.Config, logger *zap.SugaredLogger) (*Pipeline, error) {
	backend, err := NewBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}

	proc := processing.NewProcessor()
	prep := runner.PrepOptions{
		Format:  cfg.Send.Format,
		MaxDim:  cfg.Send.MaxDim,
		Quality: cfg.Send.Quality,
	}

	return &Pipeline{
		proc:   proc,
		runner: runner.New(infer.New(backend, logger), proc, logger, runner.WithPrep(prep)),
		logger: logger,
	}, nil
}

// NewBackend creates the configured vision client.
func NewBackend(cfg config.BackendConfig) (client.VisionClient, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.NewClient(cfg.URL, cfg.Model)
	case "openai":
		var options []openai.Option
		if cfg.Token != "" {
			options = append(options, openai.WithToken(cfg.Token))
		}
		return openai.New(cfg.URL, cfg.Model, options...)
	default:
		return nil, fmt.Errorf("unknown backend provider %q", cfg.Provider)
	}
}

// BatchOptions configures RunBatch.
type BatchOptions struct {
	Task     types.Task
	Text     string
	Format   sink.Format
	OutDir   string
	Name     string
	Progress func(types.ProgressEvent)
}

// RunBatch runs one task over the images at paths and streams the results
// into OutDir in the selected format. Per-image failures are recorded in
// their result items; the batch always runs to completion.
func (p *Pipeline) RunBatch(ctx context.Context, paths []string, opts BatchOptions) (*types.Summary, error) {
	out, err := sink.New(opts.Format, sink.NewFSDestination(opts.OutDir), opts.Name)
	if err != nil {
		return nil, err
	}

	items := make([]runner.Item, 0, len(paths))
	for _, path := range paths {
		items = append(items, runner.Item{Filename: filepath.Base(path), Path: path})
	}

	runOpts := runner.Options{Task: opts.Task, Text: opts.Text, Progress: opts.Progress}
	return p.runner.Run(ctx, items, runOpts, out)
}

// ProcessImage runs one task against a single image without any export.
func (p *Pipeline) ProcessImage(ctx context.Context, path string, task types.Task, text string) (*types.ResultItem, []types.DetectionRecord, error) {
	item := runner.Item{Filename: filepath.Base(path), Path: path}
	return p.runner.ProcessOne(ctx, item, task, text)
}

// InvalidateCache drops the single-image preprocessing cache.
func (p *Pipeline) InvalidateCache() {
	p.runner.InvalidateCache()
}

// ExtractOptions configures ExtractRegions.
type ExtractOptions struct {
	OutDir   string
	Annotate bool
	Progress extract.ProgressFunc
}

// ExtractRegions crops the regions recorded in a previously exported CSV or
// JSON detection file out of the source images found under imagesDir.
func (p *Pipeline) ExtractRegions(ctx context.Context, recordsPath, imagesDir string, opts ExtractOptions) (*extract.Stats, error) {
	records, skipped, err := extract.LoadRecords(recordsPath)
	if err != nil {
		return nil, err
	}

	sources := extract.NewSourceSet(p.proc)
	if err := sources.AddDir(imagesDir); err != nil {
		return nil, err
	}
	p.logger.Debugw("sources loaded", "dir", imagesDir, "count", sources.Len())

	ex := extract.New(p.proc, extract.Options{OutDir: opts.OutDir, Annotate: opts.Annotate}, p.logger)
	stats, err := ex.Run(ctx, records, sources, opts.Progress)
	if err != nil {
		return stats, err
	}

	stats.Skipped += skipped
	return stats, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
