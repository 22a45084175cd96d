package infer

import (
	"fmt"
	"strings"

	"github.com/menta2k/vision-batch/pkg/types"
)

const captionPrompt = `Describe this image in one or two factual sentences.
Plain text only. No markdown, no preamble.`

const ocrPrompt = `Transcribe all text visible in this image, top to bottom.
Reply with the transcribed text only. If there is no text, reply with an empty string.`

const tagsPrompt = `List up to 10 short tags describing this image.

Return JSON only:
["tag1", "tag2"]

HARD RULES
- Tags: lowercase, concise, no punctuation or duplicates.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

const detectPrompt = `You are an object detector.

Return JSON only:
{
  "labels": ["string"],
  "bboxes": [[xmin, ymin, xmax, ymax]]
}

HARD RULES
- Coordinates are pixels within the supplied image, xmin < xmax and ymin < ymax.
- labels and bboxes must be the same length, one entry per detected object.
- If nothing is detected, return {"labels":[],"bboxes":[]}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

const ocrRegionsPrompt = `You are a text region locator.

Return JSON only:
{
  "labels": ["string"],
  "quad_boxes": [[x1, y1, x2, y2, x3, y3, x4, y4]]
}

HARD RULES
- Each quad lists four vertices in pixel coordinates, clockwise from top-left.
- labels holds the transcribed text of each region; same length as quad_boxes.
- If there is no text, return {"labels":[],"quad_boxes":[]}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

const groundPromptFmt = `You are a phrase grounder. Locate every region matching this phrase: %q.

Return JSON only:
{
  "labels": ["string"],
  "bboxes": [[xmin, ymin, xmax, ymax]]
}

HARD RULES
- Coordinates are pixels within the supplied image.
- labels and bboxes must be the same length.
- If the phrase matches nothing, return {"labels":[],"bboxes":[]}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// PromptFor returns the model prompt for a task. Grounding interpolates the
// text phrase and fails without one; every other task ignores text.
func PromptFor(task types.Task, text string) (string, error) {
	switch task {
	case types.TaskCaption:
		return captionPrompt, nil
	case types.TaskOCR:
		return ocrPrompt, nil
	case types.TaskTags:
		return tagsPrompt, nil
	case types.TaskDetect:
		return detectPrompt, nil
	case types.TaskOCRRegions:
		return ocrRegionsPrompt, nil
	case types.TaskGround:
		if strings.TrimSpace(text) == "" {
			return "", fmt.Errorf("task %s requires a text phrase", task)
		}
		return fmt.Sprintf(groundPromptFmt, text), nil
	default:
		return "", fmt.Errorf("unknown task %q", task)
	}
}
