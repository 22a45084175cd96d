package sink

import (
	"github.com/menta2k/vision-batch/internal/utils"
	"github.com/menta2k/vision-batch/pkg/tabular"
	"github.com/menta2k/vision-batch/pkg/types"
)

// filesSink writes one pretty-printed JSON file per item into its directory,
// named <filename>.json. Finalize has nothing to close at the directory
// level and only seals the sink.
type filesSink struct {
	st  state
	dir DirWriter
}

func newFilesSink(dir DirWriter) *filesSink {
	return &filesSink{st: stateReady, dir: dir}
}

func (s *filesSink) WriteResult(item types.ResultItem) error {
	if s.st != stateReady {
		return ErrNotInitialized
	}

	data, err := tabular.MarshalIndent(item, "")
	if err != nil {
		return err
	}

	name := utils.SanitizeFilename(item.Filename) + ".json"
	return s.dir.WriteFile(name, append(data, '\n'))
}

func (s *filesSink) Finalize() error {
	if s.st != stateReady {
		return ErrNotInitialized
	}
	s.st = stateClosed
	return nil
}
