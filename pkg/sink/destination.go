package sink

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/menta2k/vision-batch/internal/utils"
)

// ErrDestinationNotSelected reports that no output destination was chosen.
// Callers treat it as user cancellation, not as an I/O failure.
var ErrDestinationNotSelected = errors.New("sink: no destination selected")

// Destination acquires the underlying output for a sink: a single file for
// the aggregate formats, a directory for the per-item format.
type Destination interface {
	CreateFile(name string) (io.WriteCloser, error)
	CreateDir(name string) (DirWriter, error)
}

// DirWriter writes named files into one directory.
type DirWriter interface {
	WriteFile(name string, data []byte) error
}

// FSDestination is a Destination rooted at a filesystem directory. An empty
// root means the user never selected one.
type FSDestination struct {
	Root string
}

// NewFSDestination returns a destination rooted at dir.
func NewFSDestination(dir string) *FSDestination {
	return &FSDestination{Root: dir}
}

// CreateFile creates name under the root, making the root if needed.
func (d *FSDestination) CreateFile(name string) (io.WriteCloser, error) {
	if d.Root == "" {
		return nil, ErrDestinationNotSelected
	}
	if err := utils.EnsureDir(d.Root); err != nil {
		return nil, err
	}
	return os.Create(filepath.Join(d.Root, name))
}

// CreateDir creates a subdirectory under the root and returns a writer for it.
func (d *FSDestination) CreateDir(name string) (DirWriter, error) {
	if d.Root == "" {
		return nil, ErrDestinationNotSelected
	}
	dir := filepath.Join(d.Root, name)
	if err := utils.EnsureDir(dir); err != nil {
		return nil, err
	}
	return &fsDirWriter{dir: dir}, nil
}

type fsDirWriter struct {
	dir string
}

func (w *fsDirWriter) WriteFile(name string, data []byte) error {
	return os.WriteFile(filepath.Join(w.dir, name), data, 0o644)
}
