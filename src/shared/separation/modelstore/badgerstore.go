package modelstore

import (
	"bytes"
	"encoding/json"

	"github.com/apex/log"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/stemforge/stemforge-be/src/shared/lib/cerr"
	"github.com/stemforge/stemforge-be/src/shared/separation/markov"
	"github.com/stemforge/stemforge-be/src/shared/separation/seperrors"
)

var modelKeyPrefix = []byte("separation-model/")

// BadgerStore keeps model records in an embedded badger database, with
// the same read cache in front as DirStore. Useful when the worker
// already carries a badger volume for other state.
type BadgerStore struct {
	db    *badger.DB
	cache *MemoryStore
}

var _ Store = &BadgerStore{}

func NewBadgerStore(db *badger.DB) *BadgerStore {
	store := &BadgerStore{
		db:    db,
		cache: NewMemoryStore(),
	}

	store.hydrate()
	return store
}

func (s *BadgerStore) hydrate() {
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = modelKeyPrefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			raw, err := item.ValueCopy(nil)
			if err != nil {
				log.WithError(err).WithField("key", string(item.Key())).
					Warn("Skipping unreadable model record")
				continue
			}

			model, err := markov.Load(bytes.NewReader(raw))
			if err != nil {
				log.WithError(err).WithField("key", string(item.Key())).
					Warn("Skipping corrupt model record")
				continue
			}

			_ = s.cache.Put(model)
			log.WithField("instrument", model.Instrument).
				Info("Loaded pretrained separation model")
		}

		return nil
	})

	if err != nil {
		log.WithError(err).Warn("Could not scan model records, starting empty")
	}
}

func (s *BadgerStore) Get(instrument string) (*markov.SeparationModel, bool) {
	return s.cache.Get(instrument)
}

func (s *BadgerStore) Put(model *markov.SeparationModel) error {
	record, err := model.ToRecord()
	if err != nil {
		return cerr.Wrap(err).Error("Failed to snapshot model for storage")
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return cerr.Field("instrument", model.Instrument).
			Wrap(err).Mark(seperrors.Persistence).
			Error("Failed to encode model record")
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(modelKey(model.Instrument), raw)
	})
	if err != nil {
		return cerr.Field("instrument", model.Instrument).
			Wrap(err).Mark(seperrors.Persistence).
			Error("Failed to store model record")
	}

	return s.cache.Put(model)
}

func (s *BadgerStore) Instruments() []string {
	return s.cache.Instruments()
}

func modelKey(instrument string) []byte {
	return append(append([]byte{}, modelKeyPrefix...), []byte(instrument)...)
}
