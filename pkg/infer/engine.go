// Package infer turns tasks into model prompts and raw model text back into
// structured results.
package infer

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/menta2k/vision-batch/pkg/client"
	"github.com/menta2k/vision-batch/pkg/types"
)

// Engine runs vision-inference tasks against a backend client.
type Engine struct {
	client client.VisionClient
	logger *zap.SugaredLogger
}

// New creates an engine on top of a vision client.
func New(c client.VisionClient, logger *zap.SugaredLogger) *Engine {
	return &Engine{client: c, logger: logger}
}

// Infer builds the prompt for task, queries the backend with the prepared
// image, and parses the response into the task's result shape. Any failure
// here is an inference failure for the item; batch callers record it and
// continue.
func (e *Engine) Infer(ctx context.Context, imageB64 string, task types.Task, text string) (types.RawResult, error) {
	prompt, err := PromptFor(task, text)
	if err != nil {
		return nil, err
	}

	raw, err := e.client.Query(ctx, prompt, imageB64)
	if err != nil {
		return nil, err
	}
	e.logger.Debugw("model response", "task", task, "bytes", len(raw))

	return parseResult(task, raw)
}

func parseResult(task types.Task, raw string) (types.RawResult, error) {
	switch task {
	case types.TaskCaption, types.TaskOCR:
		return strings.TrimSpace(raw), nil
	case types.TaskTags:
		return parseStringArray(raw)
	case types.TaskDetect, types.TaskGround:
		return parseDetections(raw, false)
	case types.TaskOCRRegions:
		return parseDetections(raw, true)
	default:
		return strings.TrimSpace(raw), nil
	}
}
