package modelstore

import (
	"sync"

	"github.com/stemforge/stemforge-be/src/shared/separation/markov"
)

// Store is a pool of pretrained separation models keyed by instrument.
// Reads are concurrent; the orchestrator only ever reads. Training jobs
// are the single writer.
type Store interface {
	Get(instrument string) (*markov.SeparationModel, bool)
	Put(model *markov.SeparationModel) error
	Instruments() []string
}

// MemoryStore is the plain in-process pool. Also the read cache shared
// by the persistent backends.
type MemoryStore struct {
	lock   sync.RWMutex
	models map[string]*markov.SeparationModel
}

var _ Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		models: map[string]*markov.SeparationModel{},
	}
}

func (s *MemoryStore) Get(instrument string) (*markov.SeparationModel, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	model, ok := s.models[instrument]
	return model, ok
}

func (s *MemoryStore) Put(model *markov.SeparationModel) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.models[model.Instrument] = model
	return nil
}

func (s *MemoryStore) Instruments() []string {
	s.lock.RLock()
	defer s.lock.RUnlock()

	instruments := make([]string, 0, len(s.models))
	for instrument := range s.models {
		instruments = append(instruments, instrument)
	}

	return instruments
}
