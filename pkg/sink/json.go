package sink

import (
	"io"

	"go.uber.org/multierr"

	"github.com/menta2k/vision-batch/pkg/tabular"
	"github.com/menta2k/vision-batch/pkg/types"
)

// jsonSink writes one syntactically valid JSON array incrementally: the
// opening bracket at construction, a comma separator before every item
// except the first, the closing bracket on Finalize. Items are re-indented
// so their lines nest inside the array.
type jsonSink struct {
	st    state
	out   io.WriteCloser
	first bool
}

func newJSONSink(out io.WriteCloser) (*jsonSink, error) {
	if _, err := io.WriteString(out, "[\n"); err != nil {
		return nil, multierr.Append(err, out.Close())
	}
	return &jsonSink{st: stateReady, out: out, first: true}, nil
}

func (s *jsonSink) WriteResult(item types.ResultItem) error {
	if s.st != stateReady {
		return ErrNotInitialized
	}

	data, err := tabular.MarshalIndent(item, "  ")
	if err != nil {
		return err
	}

	if !s.first {
		if _, err := io.WriteString(s.out, ",\n"); err != nil {
			return err
		}
	}
	s.first = false

	_, err = s.out.Write(data)
	return err
}

func (s *jsonSink) Finalize() error {
	if s.st != stateReady {
		return ErrNotInitialized
	}
	s.st = stateClosed

	_, err := io.WriteString(s.out, "\n]\n")
	return multierr.Append(err, s.out.Close())
}
