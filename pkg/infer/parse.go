package infer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/menta2k/vision-batch/pkg/types"
)

var (
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON strips code fences, comments, and trailing commas from a
// model response and slices out the outermost JSON object or array.
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...} or [...], whichever opens first
	objStart := strings.Index(raw, "{")
	arrStart := strings.Index(raw, "[")
	switch {
	case objStart >= 0 && (arrStart < 0 || objStart < arrStart):
		if end := strings.LastIndex(raw, "}"); end > objStart {
			raw = raw[objStart : end+1]
		}
	case arrStart >= 0:
		if end := strings.LastIndex(raw, "]"); end > arrStart {
			raw = raw[arrStart : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

func parseStringArray(raw string) ([]string, error) {
	clean := sanitizeModelJSON(raw)

	var tags []string
	if err := json.Unmarshal([]byte(clean), &tags); err != nil {
		return nil, fmt.Errorf("model returned malformed tag array: %w", err)
	}

	out := make([]string, 0, len(tags))
	seen := map[string]struct{}{}
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

func parseDetections(raw string, quads bool) (*types.Detections, error) {
	clean := sanitizeModelJSON(raw)

	var payload struct {
		Labels    []string    `json:"labels"`
		Bboxes    [][]float64 `json:"bboxes"`
		QuadBoxes [][]float64 `json:"quad_boxes"`
	}
	if err := json.Unmarshal([]byte(clean), &payload); err != nil {
		return nil, fmt.Errorf("model returned malformed detection JSON: %w", err)
	}

	d := &types.Detections{Labels: payload.Labels}
	if quads {
		if len(payload.QuadBoxes) != len(payload.Labels) {
			return nil, fmt.Errorf("labels and quad_boxes length mismatch: %d vs %d",
				len(payload.Labels), len(payload.QuadBoxes))
		}
		for _, q := range payload.QuadBoxes {
			if len(q) != 8 {
				return nil, fmt.Errorf("quad box needs 8 coordinates, got %d", len(q))
			}
			d.QuadBoxes = append(d.QuadBoxes,
				[8]float64{q[0], q[1], q[2], q[3], q[4], q[5], q[6], q[7]})
		}
		return d, nil
	}

	if len(payload.Bboxes) != len(payload.Labels) {
		return nil, fmt.Errorf("labels and bboxes length mismatch: %d vs %d",
			len(payload.Labels), len(payload.Bboxes))
	}
	for _, b := range payload.Bboxes {
		if len(b) != 4 {
			return nil, fmt.Errorf("bbox needs 4 coordinates, got %d", len(b))
		}
		d.Bboxes = append(d.Bboxes, [4]float64{b[0], b[1], b[2], b[3]})
	}
	return d, nil
}
