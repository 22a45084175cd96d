// Package types defines the data model shared by the batch pipeline, the
// export sinks, and the region extractor.
package types

import (
	"math"
	"time"

	"github.com/menta2k/vision-batch/pkg/geometry"
)

// Task identifies a vision-inference operation.
type Task string

const (
	TaskCaption    Task = "caption"
	TaskOCR        Task = "ocr"
	TaskTags       Task = "tags"
	TaskDetect     Task = "detect"
	TaskOCRRegions Task = "ocr-regions"
	TaskGround     Task = "ground"
)

// Tasks lists every supported task.
func Tasks() []Task {
	return []Task{TaskCaption, TaskOCR, TaskTags, TaskDetect, TaskOCRRegions, TaskGround}
}

// Valid reports whether t is a known task.
func (t Task) Valid() bool {
	switch t {
	case TaskCaption, TaskOCR, TaskTags, TaskDetect, TaskOCRRegions, TaskGround:
		return true
	}
	return false
}

// NeedsText reports whether the task requires the extra text parameter.
func (t Task) NeedsText() bool {
	return t == TaskGround
}

// RawResult is the opaque payload returned by inference. Detection-style
// tasks produce *Detections, caption/ocr produce string, tags produce
// []string; sinks sniff the shape, nothing else inspects it.
type RawResult = any

// Detections carries parallel label and box sequences. Exactly one of
// Bboxes or QuadBoxes is populated, and its length matches Labels.
type Detections struct {
	Labels    []string     `json:"labels"`
	Bboxes    [][4]float64 `json:"bboxes,omitempty"`
	QuadBoxes [][8]float64 `json:"quad_boxes,omitempty"`
}

// ResultItem is the outcome for a single input item. Produced once per item,
// immutable after creation, consumed exactly once by a sink. Failed items
// carry Error with a zero TimeMS and no Result.
type ResultItem struct {
	Filename string    `json:"filename"`
	Task     Task      `json:"task"`
	Result   RawResult `json:"result,omitempty"`
	TimeMS   int64     `json:"time"`
	Error    string    `json:"error,omitempty"`
}

// DetectionRecord is one detection row read back from an export for region
// extraction. Exactly one of Axis or Quad is expected; records violating
// that are skipped as unknown bbox format.
type DetectionRecord struct {
	Image string
	Label string
	Score *float64
	Axis  *geometry.AxisBox
	Quad  *geometry.QuadBox
	ID    *int
}

// ProgressEvent reports batch position before each item is processed.
// Current is monotonically non-decreasing within a run.
type ProgressEvent struct {
	Current  int
	Total    int
	Filename string
}

// Summary describes a completed batch run.
type Summary struct {
	RunID     string
	Processed int
	Elapsed   time.Duration
}

// FlattenDetections expands a detection result into one record per label
// with coordinates rounded to whole pixels. Record IDs are the 0-based
// detection positions.
func FlattenDetections(filename string, d *Detections) []DetectionRecord {
	if d == nil {
		return nil
	}

	records := make([]DetectionRecord, 0, len(d.Labels))
	for i, label := range d.Labels {
		id := i
		rec := DetectionRecord{Image: filename, Label: label, ID: &id}

		switch {
		case i < len(d.QuadBoxes):
			q := d.QuadBoxes[i]
			rec.Quad = &geometry.QuadBox{
				X1: math.Round(q[0]), Y1: math.Round(q[1]),
				X2: math.Round(q[2]), Y2: math.Round(q[3]),
				X3: math.Round(q[4]), Y3: math.Round(q[5]),
				X4: math.Round(q[6]), Y4: math.Round(q[7]),
			}
		case i < len(d.Bboxes):
			b := d.Bboxes[i]
			rec.Axis = &geometry.AxisBox{
				Xmin: math.Round(b[0]), Ymin: math.Round(b[1]),
				Xmax: math.Round(b[2]), Ymax: math.Round(b[3]),
			}
		default:
			continue
		}

		records = append(records, rec)
	}
	return records
}
