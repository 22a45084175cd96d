package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/multierr"

	"github.com/menta2k/vision-batch/pkg/tabular"
	"github.com/menta2k/vision-batch/pkg/types"
)

// csvSink flattens each result item into row objects and streams them as
// CSV. The first row written fixes the column set for the entire file; later
// rows render missing columns empty and extra fields are dropped. Row ids
// come from a writer-scoped counter assigned at flattening time, independent
// of any id on the source data.
type csvSink struct {
	st      state
	out     io.WriteCloser
	headers []string
	nextID  int
}

func newCSVSink(out io.WriteCloser) *csvSink {
	return &csvSink{st: stateReady, out: out}
}

func (s *csvSink) WriteResult(item types.ResultItem) error {
	if s.st != stateReady {
		return ErrNotInitialized
	}

	rows, order := s.flatten(item)
	if len(rows) == 0 {
		return nil
	}

	var b strings.Builder
	if s.headers == nil {
		s.headers = order
		b.WriteString(tabular.SerializeHeader(s.headers))
		b.WriteByte('\n')
	}
	for _, row := range rows {
		b.WriteString(tabular.SerializeRow(s.headers, row))
		b.WriteByte('\n')
	}

	_, err := io.WriteString(s.out, b.String())
	return err
}

func (s *csvSink) Finalize() error {
	if s.st != stateReady {
		return ErrNotInitialized
	}
	s.st = stateClosed
	return multierr.Combine(s.out.Close())
}

// flatten converts one item into rows plus the column order of the first
// row, which locks the file schema when this is the first item written.
func (s *csvSink) flatten(item types.ResultItem) ([]tabular.Row, []string) {
	switch r := item.Result.(type) {
	case *types.Detections:
		if r != nil {
			return s.flattenDetections(item.Filename, r)
		}
		// a nil detections pointer renders as an absent result
		item.Result = nil
	case []string:
		rows := make([]tabular.Row, 0, len(r))
		for _, el := range r {
			rows = append(rows, tabular.Row{"id": s.takeID(), "filename": item.Filename, "value": el})
		}
		return rows, []string{"id", "filename", "value"}
	case []any:
		return s.flattenArray(item.Filename, r)
	}

	row := tabular.Row{"id": s.takeID(), "filename": item.Filename, "result": stringifyResult(item.Result)}
	return []tabular.Row{row}, []string{"id", "filename", "result"}
}

func (s *csvSink) flattenDetections(filename string, d *types.Detections) ([]tabular.Row, []string) {
	quads := len(d.QuadBoxes) > 0

	var rows []tabular.Row
	for i, label := range d.Labels {
		row := tabular.Row{"id": s.takeID(), "filename": filename, "label": label}
		if quads {
			if i >= len(d.QuadBoxes) {
				break
			}
			q := d.QuadBoxes[i]
			row["x1"], row["y1"] = q[0], q[1]
			row["x2"], row["y2"] = q[2], q[3]
			row["x3"], row["y3"] = q[4], q[5]
			row["x4"], row["y4"] = q[6], q[7]
		} else {
			if i >= len(d.Bboxes) {
				break
			}
			b := d.Bboxes[i]
			row["xmin"], row["ymin"] = b[0], b[1]
			row["xmax"], row["ymax"] = b[2], b[3]
		}
		rows = append(rows, row)
	}

	if quads {
		return rows, []string{"id", "filename", "label", "x1", "y1", "x2", "y2", "x3", "y3", "x4", "y4"}
	}
	return rows, []string{"id", "filename", "label", "xmin", "ymin", "xmax", "ymax"}
}

// flattenArray emits one row per element. Object elements contribute their
// fields in sorted key order, scalars land in a value column.
func (s *csvSink) flattenArray(filename string, elements []any) ([]tabular.Row, []string) {
	var rows []tabular.Row
	var order []string

	for _, el := range elements {
		row := tabular.Row{"id": s.takeID(), "filename": filename}
		keys := []string{"id", "filename"}

		if m, ok := el.(map[string]any); ok {
			names := make([]string, 0, len(m))
			for k := range m {
				names = append(names, k)
			}
			sort.Strings(names)
			for _, k := range names {
				row[k] = m[k]
			}
			keys = append(keys, names...)
		} else {
			row["value"] = el
			keys = append(keys, "value")
		}

		if order == nil {
			order = keys
		}
		rows = append(rows, row)
	}
	return rows, order
}

func (s *csvSink) takeID() int {
	id := s.nextID
	s.nextID++
	return id
}

func stringifyResult(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return t
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}
