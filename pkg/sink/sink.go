// Package sink streams result items to persistent storage without ever
// holding the full result set in memory. Three variants share one interface:
// a single JSON array built incrementally, a flattened CSV whose header is
// fixed by the first row, and one pretty-printed JSON file per item.
package sink

import (
	"errors"
	"fmt"

	"github.com/menta2k/vision-batch/pkg/types"
)

// ErrNotInitialized reports use of a sink outside its ready window: a
// zero-value sink, or a write after Finalize. It indicates a sequencing bug
// in the caller, not a runtime condition to recover from.
var ErrNotInitialized = errors.New("sink: writer not initialized")

// Sink consumes result items one at a time. Callers must serialize
// WriteResult calls and call Finalize exactly once after the last item.
type Sink interface {
	WriteResult(item types.ResultItem) error
	Finalize() error
}

// state tracks the sink lifecycle. The zero value is not ready; only the
// factory hands out ready sinks.
type state int

const (
	stateZero state = iota
	stateReady
	stateClosed
)

// Format selects a sink variant.
type Format string

const (
	FormatJSON       Format = "json"
	FormatCSV        Format = "csv"
	FormatIndividual Format = "individual"
)

// ParseFormat validates a format tag.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatCSV, FormatIndividual:
		return Format(s), nil
	}
	return "", fmt.Errorf("sink: unknown format %q", s)
}

// New acquires the destination for the given format and returns a ready
// sink. The name is the output base name: json and csv get an extension
// appended, individual names the per-item directory. Destination acquisition
// failures propagate as-is so ErrDestinationNotSelected stays recognizable.
func New(format Format, dest Destination, name string) (Sink, error) {
	switch format {
	case FormatJSON:
		f, err := dest.CreateFile(name + ".json")
		if err != nil {
			return nil, err
		}
		return newJSONSink(f)
	case FormatCSV:
		f, err := dest.CreateFile(name + ".csv")
		if err != nil {
			return nil, err
		}
		return newCSVSink(f), nil
	case FormatIndividual:
		dir, err := dest.CreateDir(name)
		if err != nil {
			return nil, err
		}
		return newFilesSink(dir), nil
	default:
		return nil, fmt.Errorf("sink: unknown format %q", format)
	}
}
