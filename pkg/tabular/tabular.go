// Package tabular implements the CSV dialect used for detection export and
// re-import, plus the JSON indentation convention shared by the sinks.
//
// Quoting follows RFC 4180 within a line: a field wrapped in double quotes
// may contain literal commas, and an embedded quote is escaped by doubling.
// Input is split into lines before quote-aware scanning, so raw newlines
// inside quoted fields do not survive a round trip. Known limitation.
package tabular

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Row is one parsed CSV row keyed by header name. Fields that are entirely
// numeric parse as float64, everything else stays string.
type Row = map[string]any

var numericRe = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// ParseCSV parses header-prefixed CSV text into rows. Header names are
// trimmed, blank lines are skipped, and short rows leave the remaining
// columns absent.
func ParseCSV(text string) []Row {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var headers []string
	var rows []Row
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := splitLine(line)

		if headers == nil {
			headers = make([]string, len(fields))
			for i, f := range fields {
				headers[i] = strings.TrimSpace(f)
			}
			continue
		}

		row := Row{}
		for i, name := range headers {
			if i >= len(fields) {
				break
			}
			row[name] = parseField(fields[i])
		}
		rows = append(rows, row)
	}
	return rows
}

// splitLine scans one line character by character, tracking quote state so
// quoted fields may contain commas.
func splitLine(line string) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			if inQuotes && i+1 < len(line) && line[i+1] == '"' {
				cur.WriteByte('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case c == ',' && !inQuotes:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	fields = append(fields, cur.String())
	return fields
}

func parseField(field string) any {
	if numericRe.MatchString(field) {
		if f, err := strconv.ParseFloat(field, 64); err == nil {
			return f
		}
	}
	return field
}

// SerializeHeader renders the header line for the given column names.
func SerializeHeader(headers []string) string {
	quoted := make([]string, len(headers))
	for i, h := range headers {
		quoted[i] = quoteField(h)
	}
	return strings.Join(quoted, ",")
}

// SerializeRow renders one row using the given column order. Missing or nil
// values render empty.
func SerializeRow(headers []string, row Row) string {
	fields := make([]string, len(headers))
	for i, h := range headers {
		fields[i] = formatField(row[h])
	}
	return strings.Join(fields, ",")
}

// SerializeRows renders a complete CSV document, header line first.
func SerializeRows(headers []string, rows []Row) string {
	var b strings.Builder
	b.WriteString(SerializeHeader(headers))
	b.WriteByte('\n')
	for _, row := range rows {
		b.WriteString(SerializeRow(headers, row))
		b.WriteByte('\n')
	}
	return b.String()
}

func formatField(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return quoteField(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return quoteField(fmt.Sprint(t))
	}
}

// quoteField wraps values containing commas or quotes, doubling embedded
// quotes.
func quoteField(s string) string {
	if strings.ContainsAny(s, `,"`) {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

// MarshalIndent renders v as two-space-indented JSON with every line,
// including the first, prefixed. Sinks use the prefix to nest items inside
// an enclosing array.
func MarshalIndent(v any, prefix string) ([]byte, error) {
	data, err := json.MarshalIndent(v, prefix, "  ")
	if err != nil {
		return nil, err
	}
	if prefix != "" {
		data = append([]byte(prefix), data...)
	}
	return data, nil
}
