// Package main is the vision-batch CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	visionbatch "github.com/menta2k/vision-batch"
	"github.com/menta2k/vision-batch/internal/utils"
	"github.com/menta2k/vision-batch/pkg/config"
	"github.com/menta2k/vision-batch/pkg/sink"
	"github.com/menta2k/vision-batch/pkg/tabular"
	"github.com/menta2k/vision-batch/pkg/types"
)

const (
	// Global flags.
	flagConfig   = "config"
	flagDebug    = "debug"
	flagProvider = "provider"
	flagURL      = "url"
	flagModel    = "model"
	flagToken    = "token"

	// Task flags.
	flagTask   = "task"
	flagText   = "text"
	flagFormat = "format"
	flagOut    = "out"
	flagName   = "name"

	// Extract flags.
	flagRecords  = "records"
	flagImages   = "images"
	flagAnnotate = "annotate"
)

var logger *zap.SugaredLogger

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "vision-batch",
		Usage: "run vision-model tasks over image batches",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagProvider,
				Usage: "backend provider: ollama or openai",
			},
			&cli.StringFlag{
				Name:  flagURL,
				Usage: "backend server URL",
			},
			&cli.StringFlag{
				Name:  flagModel,
				Usage: "model name",
			},
			&cli.StringFlag{
				Name:  flagToken,
				Usage: "API token for openai-compatible backends",
			},
		},
		Before: func(c *cli.Context) error {
			var err error
			logger, err = newLogger(c.Bool(flagDebug))
			return err
		},
		Commands: []*cli.Command{
			batchCommand(),
			singleCommand(),
			extractCommand(),
			configCommand(),
		},
	}
}

// newLogger builds a console logger writing to stderr so command output on
// stdout stays machine-readable.
func newLogger(debug bool) (*zap.SugaredLogger, error) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if debug {
		level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	cfg := zap.Config{
		Level:    level,
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}

	zl, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return zl.Sugar(), nil
}

// loadConfig resolves configuration: an explicit --config file or the default
// chain, then flag overrides, then validation.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if path := c.String(flagConfig); path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if v := c.String(flagProvider); v != "" {
		cfg.Backend.Provider = v
	}
	if v := c.String(flagURL); v != "" {
		cfg.Backend.URL = v
	}
	if v := c.String(flagModel); v != "" {
		cfg.Backend.Model = v
	}
	if v := c.String(flagToken); v != "" {
		cfg.Backend.Token = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// taskArgs validates the task selection shared by batch and single.
func taskArgs(c *cli.Context) (types.Task, string, error) {
	task := types.Task(c.String(flagTask))
	if !task.Valid() {
		return "", "", fmt.Errorf("unknown task %q (choose from %v)", c.String(flagTask), types.Tasks())
	}

	text := c.String(flagText)
	if task.NeedsText() && strings.TrimSpace(text) == "" {
		return "", "", fmt.Errorf("task %s requires --text", task)
	}
	return task, text, nil
}

// collectImages expands directory arguments into their image files and keeps
// explicit file paths as given.
func collectImages(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		switch {
		case utils.DirExists(arg):
			files, err := utils.ListImageFiles(arg)
			if err != nil {
				return nil, err
			}
			paths = append(paths, files...)
		case utils.FileExists(arg):
			paths = append(paths, arg)
		default:
			return nil, fmt.Errorf("no such file or directory: %s", arg)
		}
	}
	return paths, nil
}

func taskFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  flagTask,
			Value: string(types.TaskCaption),
			Usage: "task to run: caption|ocr|tags|detect|ocr-regions|ground",
		},
		&cli.StringFlag{
			Name:  flagText,
			Usage: "phrase to locate (ground task only)",
		},
	}
}

func batchCommand() *cli.Command {
	return &cli.Command{
		Name:      "batch",
		Usage:     "run one task over every image in the given paths",
		ArgsUsage: "<image-or-dir> [<image-or-dir> ...]",
		Flags: append(taskFlags(),
			&cli.StringFlag{
				Name:  flagFormat,
				Usage: "export format: json|csv|individual (default from config)",
			},
			&cli.StringFlag{
				Name:  flagOut,
				Usage: "output directory (default from config)",
			},
			&cli.StringFlag{
				Name:  flagName,
				Usage: "output base name (default from config)",
			},
		),
		Action: runBatch,
	}
}

func runBatch(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one image path or directory is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	task, text, err := taskArgs(c)
	if err != nil {
		return err
	}

	format := cfg.Export.Format
	if v := c.String(flagFormat); v != "" {
		format = v
	}
	sinkFormat, err := sink.ParseFormat(format)
	if err != nil {
		return err
	}

	outDir := cfg.Export.OutputDir
	if v := c.String(flagOut); v != "" {
		outDir = v
	}
	name := cfg.Export.Name
	if v := c.String(flagName); v != "" {
		name = v
	}

	paths, err := collectImages(c.Args().Slice())
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no images found in the given paths")
	}

	pipeline, err := visionbatch.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := pipeline.RunBatch(ctx, paths, visionbatch.BatchOptions{
		Task:   task,
		Text:   text,
		Format: sinkFormat,
		OutDir: outDir,
		Name:   name,
		Progress: func(ev types.ProgressEvent) {
			fmt.Fprintf(c.App.Writer, "[%d/%d] %s\n", ev.Current, ev.Total, ev.Filename)
		},
	})
	if err != nil {
		// an empty destination is a cancelled selection, not an error
		if errors.Is(err, sink.ErrDestinationNotSelected) {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(c.App.Writer, "batch interrupted, partial output finalized")
		}
		return err
	}

	fmt.Fprintf(c.App.Writer, "run %s: processed %d images in %s\n",
		summary.RunID, summary.Processed, summary.Elapsed.Round(time.Millisecond))

	if sinkFormat != sink.FormatIndividual {
		outPath := filepath.Join(outDir, name+"."+string(sinkFormat))
		if info, err := os.Stat(outPath); err == nil {
			fmt.Fprintf(c.App.Writer, "wrote %s (%s)\n", outPath, utils.FormatFileSize(info.Size()))
		}
	}
	return nil
}

func singleCommand() *cli.Command {
	return &cli.Command{
		Name:      "single",
		Usage:     "run one task against a single image and print the result",
		ArgsUsage: "<image-or-url>",
		Flags:     taskFlags(),
		Action:    runSingle,
	}
}

func runSingle(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("exactly one image path or URL is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	task, text, err := taskArgs(c)
	if err != nil {
		return err
	}

	pipeline, err := visionbatch.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	item, _, err := pipeline.ProcessImage(ctx, c.Args().First(), task, text)
	if err != nil {
		return err
	}

	data, err := tabular.MarshalIndent(item, "")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(data))
	return nil
}

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:  "extract",
		Usage: "crop exported detection records back out of their source images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     flagRecords,
				Required: true,
				Usage:    "CSV or JSON detection export to read",
			},
			&cli.StringFlag{
				Name:     flagImages,
				Required: true,
				Usage:    "directory holding the source images",
			},
			&cli.StringFlag{
				Name:  flagOut,
				Usage: "crop output directory (default from config)",
			},
			&cli.BoolFlag{
				Name:  flagAnnotate,
				Usage: "also write annotated copies of the source images",
			},
		},
		Action: runExtract,
	}
}

func runExtract(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	outDir := cfg.Extract.OutputDir
	if v := c.String(flagOut); v != "" {
		outDir = v
	}
	annotate := cfg.Extract.Annotate || c.Bool(flagAnnotate)

	pipeline, err := visionbatch.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := pipeline.ExtractRegions(ctx, c.String(flagRecords), c.String(flagImages), visionbatch.ExtractOptions{
		OutDir:   outDir,
		Annotate: annotate,
		Progress: func(current, total int, message string) {
			fmt.Fprintf(c.App.Writer, "[%d/%d] %s\n", current, total, message)
		},
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "saved %d crops (%d failed, %d skipped)\n", stats.Saved, stats.Failed, stats.Skipped)
	return nil
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "inspect and initialize configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "print the effective configuration",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					data, err := tabular.MarshalIndent(cfg, "")
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, string(data))
					return nil
				},
			},
			{
				Name:  "init",
				Usage: "write the default configuration file",
				Action: func(c *cli.Context) error {
					path := c.String(flagConfig)
					if path == "" {
						path = config.GetConfigPath()
					}
					if utils.FileExists(path) {
						return fmt.Errorf("config file already exists: %s", path)
					}
					if err := config.Default().SaveToFile(path); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "wrote %s\n", path)
					return nil
				},
			},
		},
	}
}
