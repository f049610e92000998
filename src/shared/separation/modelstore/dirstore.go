package modelstore

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/stemforge/stemforge-be/src/shared/lib/cerr"
	"github.com/stemforge/stemforge-be/src/shared/separation/markov"
	"github.com/stemforge/stemforge-be/src/shared/separation/seperrors"
)

const modelFileExt = ".model.json"

// DirStore persists one JSON record per instrument in a directory and
// keeps a read cache in front. Corrupt or unreadable records are logged
// and treated as absent - a missing model only disables refinement.
type DirStore struct {
	dir   string
	cache *MemoryStore
}

var _ Store = &DirStore{}

func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, cerr.Field("dir", dir).Wrap(err).
			Error("Failed to create the model directory")
	}

	store := &DirStore{
		dir:   dir,
		cache: NewMemoryStore(),
	}

	store.hydrate()
	return store, nil
}

func (s *DirStore) hydrate() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.WithError(err).WithField("dir", s.dir).
			Warn("Could not list model directory, starting empty")
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, modelFileExt) {
			continue
		}

		path := filepath.Join(s.dir, name)
		model, err := s.loadFile(path)
		if err != nil {
			log.WithError(err).WithField("path", path).
				Warn("Skipping unreadable model record")
			continue
		}

		_ = s.cache.Put(model)
		log.WithFields(log.Fields{
			"instrument": model.Instrument,
			"path":       path,
		}).Info("Loaded pretrained separation model")
	}
}

func (s *DirStore) loadFile(path string) (*markov.SeparationModel, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, cerr.Field("path", path).Wrap(err).
			Mark(seperrors.Persistence).
			Error("Failed to open model record")
	}
	defer file.Close()

	return markov.Load(file)
}

func (s *DirStore) Get(instrument string) (*markov.SeparationModel, bool) {
	return s.cache.Get(instrument)
}

func (s *DirStore) Put(model *markov.SeparationModel) error {
	path := filepath.Join(s.dir, model.Instrument+modelFileExt)

	file, err := os.Create(path)
	if err != nil {
		return cerr.Field("path", path).Wrap(err).
			Mark(seperrors.Persistence).
			Error("Failed to create model record file")
	}
	defer file.Close()

	if err := model.Save(file); err != nil {
		return cerr.Field("path", path).Wrap(err).
			Error("Failed to write model record")
	}

	return s.cache.Put(model)
}

func (s *DirStore) Instruments() []string {
	return s.cache.Instruments()
}
