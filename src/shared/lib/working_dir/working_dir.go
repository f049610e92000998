package working_dir

import (
	"os"
	"path/filepath"

	"github.com/stemforge/stemforge-be/src/shared/lib/cerr"
)

// WorkingDir is an absolute scratch directory root for jobs that need
// to put intermediate files on disk.
type WorkingDir struct {
	root string
}

func NewWorkingDir(path string) (WorkingDir, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return WorkingDir{}, cerr.Field("path", path).Wrap(err).
			Error("Failed to convert working dir to absolute format")
	}

	if err := os.MkdirAll(absPath, os.ModePerm); err != nil {
		return WorkingDir{}, cerr.Field("path", absPath).Wrap(err).
			Error("Failed to create working dir")
	}

	return WorkingDir{root: absPath}, nil
}

func (w WorkingDir) Root() string {
	return w.root
}

// TempDir creates a fresh subdirectory under the root for one job.
func (w WorkingDir) TempDir(pattern string) (string, error) {
	dir, err := os.MkdirTemp(w.root, pattern)
	if err != nil {
		return "", cerr.Field("root", w.root).Wrap(err).
			Error("Failed to create temp dir")
	}

	return dir, nil
}
