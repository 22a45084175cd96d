package extract

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/menta2k/vision-batch/internal/utils"
	"github.com/menta2k/vision-batch/pkg/processing"
)

// SourceSet indexes source images by base filename so groups can be checked
// for membership without decoding anything.
type SourceSet struct {
	proc  *processing.Processor
	paths map[string]string
}

// NewSourceSet creates an empty source set.
func NewSourceSet(proc *processing.Processor) *SourceSet {
	return &SourceSet{
		proc:  proc,
		paths: map[string]string{},
	}
}

// Add registers a single image file under its base filename.
func (s *SourceSet) Add(path string) {
	s.paths[filepath.Base(path)] = path
}

// AddDir registers every image file found under dir.
func (s *SourceSet) AddDir(dir string) error {
	files, err := utils.ListImageFiles(dir)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	for _, f := range files {
		s.Add(f)
	}
	return nil
}

// Has reports whether a source image with this filename was registered.
func (s *SourceSet) Has(name string) bool {
	_, ok := s.paths[name]
	return ok
}

// Load decodes the named source image.
func (s *SourceSet) Load(name string) (image.Image, error) {
	path, ok := s.paths[name]
	if !ok {
		return nil, fmt.Errorf("source image %s not found", name)
	}
	return s.proc.LoadImage(path)
}

// Len returns the number of registered images.
func (s *SourceSet) Len() int {
	return len(s.paths)
}
