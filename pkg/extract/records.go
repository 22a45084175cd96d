package extract

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/menta2k/vision-batch/internal/utils"
	"github.com/menta2k/vision-batch/pkg/geometry"
	"github.com/menta2k/vision-batch/pkg/tabular"
	"github.com/menta2k/vision-batch/pkg/types"
)

// ParseRecords maps tabular rows to detection records. The group key comes
// from the image column, falling back to filename; rows with neither are
// dropped and counted in the returned skip count. Incomplete geometry columns
// leave the record's geometry nil; the extractor flags that per record.
func ParseRecords(rows []tabular.Row) ([]types.DetectionRecord, int) {
	records := make([]types.DetectionRecord, 0, len(rows))
	skipped := 0

	for _, row := range rows {
		image, ok := rowString(row, "image")
		if !ok {
			image, ok = rowString(row, "filename")
		}
		if !ok {
			skipped++
			continue
		}

		rec := types.DetectionRecord{Image: image}
		rec.Label, _ = rowString(row, "label")

		if score, ok := rowFloat(row, "score"); ok {
			rec.Score = &score
		}
		if id, ok := rowFloat(row, "id"); ok {
			n := int(id)
			rec.ID = &n
		}

		if quad, ok := rowQuad(row); ok {
			rec.Quad = &quad
		}
		if axis, ok := rowAxis(row); ok {
			rec.Axis = &axis
		}

		records = append(records, rec)
	}

	return records, skipped
}

// LoadRecords reads detection records from a .csv or .json export.
func LoadRecords(path string) ([]types.DetectionRecord, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read records: %w", err)
	}

	var rows []tabular.Row
	switch strings.ToLower(utils.GetFileExtension(path)) {
	case "csv":
		rows = tabular.ParseCSV(string(data))
	case "json":
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, 0, fmt.Errorf("failed to parse records JSON: %w", err)
		}
	default:
		return nil, 0, fmt.Errorf("unsupported records format: %s", path)
	}

	records, skipped := ParseRecords(rows)
	return records, skipped, nil
}

func rowString(row tabular.Row, key string) (string, bool) {
	v, ok := row[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func rowFloat(row tabular.Row, key string) (float64, bool) {
	v, ok := row[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func rowAxis(row tabular.Row) (geometry.AxisBox, bool) {
	var box geometry.AxisBox
	coords := []struct {
		key string
		dst *float64
	}{
		{"xmin", &box.Xmin},
		{"ymin", &box.Ymin},
		{"xmax", &box.Xmax},
		{"ymax", &box.Ymax},
	}
	for _, c := range coords {
		v, ok := rowFloat(row, c.key)
		if !ok {
			return geometry.AxisBox{}, false
		}
		*c.dst = v
	}
	return box, true
}

func rowQuad(row tabular.Row) (geometry.QuadBox, bool) {
	var box geometry.QuadBox
	coords := []struct {
		key string
		dst *float64
	}{
		{"x1", &box.X1}, {"y1", &box.Y1},
		{"x2", &box.X2}, {"y2", &box.Y2},
		{"x3", &box.X3}, {"y3", &box.Y3},
		{"x4", &box.X4}, {"y4", &box.Y4},
	}
	for _, c := range coords {
		v, ok := rowFloat(row, c.key)
		if !ok {
			return geometry.QuadBox{}, false
		}
		*c.dst = v
	}
	return box, true
}
