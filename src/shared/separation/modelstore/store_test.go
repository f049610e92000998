package modelstore_test

import (
	"os"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stemforge/stemforge-be/src/shared/separation/audio"
	"github.com/stemforge/stemforge-be/src/shared/separation/feature"
	"github.com/stemforge/stemforge-be/src/shared/separation/markov"
	"github.com/stemforge/stemforge-be/src/shared/separation/modelstore"
)

func trainedModel(instrument string) *markov.SeparationModel {
	model := markov.NewSeparationModel(instrument, 1, 4, feature.DefaultConfig())

	corpus := []audio.Buffer{
		audio.SineMix([]float64{220, 440}, 2.0, 8000),
		audio.SineMix([]float64{330, 660}, 2.0, 8000),
	}
	Expect(model.Train(corpus)).To(Succeed())

	return model
}

var _ = Describe("MemoryStore", func() {
	var store *modelstore.MemoryStore

	BeforeEach(func() {
		store = modelstore.NewMemoryStore()
	})

	It("misses on unknown instruments", func() {
		_, ok := store.Get("vocals")
		Expect(ok).To(BeFalse())
	})

	It("stores and retrieves models by instrument", func() {
		model := trainedModel("vocals")
		Expect(store.Put(model)).To(Succeed())

		got, ok := store.Get("vocals")
		Expect(ok).To(BeTrue())
		Expect(got).To(BeIdenticalTo(model))

		Expect(store.Instruments()).To(ConsistOf("vocals"))
	})
})

var _ = Describe("DirStore", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "modelstore-test-*")
		Expect(err).NotTo(HaveOccurred())

		DeferCleanup(func() {
			Expect(os.RemoveAll(dir)).To(Succeed())
		})
	})

	It("persists models across store instances", func() {
		first, err := modelstore.NewDirStore(dir)
		Expect(err).NotTo(HaveOccurred())

		model := trainedModel("drums")
		Expect(first.Put(model)).To(Succeed())

		heldOut := audio.SineMix([]float64{220, 550}, 1.0, 8000)
		originalScore, err := model.Score(heldOut)
		Expect(err).NotTo(HaveOccurred())

		second, err := modelstore.NewDirStore(dir)
		Expect(err).NotTo(HaveOccurred())

		restored, ok := second.Get("drums")
		Expect(ok).To(BeTrue())

		restoredScore, err := restored.Score(heldOut)
		Expect(err).NotTo(HaveOccurred())
		Expect(restoredScore).To(BeNumerically("~", originalScore, 1e-9))
	})

	It("treats corrupt records as absent", func() {
		corruptPath := filepath.Join(dir, "broken.model.json")
		Expect(os.WriteFile(corruptPath, []byte("{not json"), 0644)).To(Succeed())

		store, err := modelstore.NewDirStore(dir)
		Expect(err).NotTo(HaveOccurred())

		_, ok := store.Get("broken")
		Expect(ok).To(BeFalse())
		Expect(store.Instruments()).To(BeEmpty())
	})

	It("ignores unrelated files in the directory", func() {
		Expect(os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0644)).To(Succeed())

		store, err := modelstore.NewDirStore(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Instruments()).To(BeEmpty())
	})
})

var _ = Describe("BadgerStore", func() {
	var db *badger.DB

	BeforeEach(func() {
		var err error
		options := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
		db, err = badger.Open(options)
		Expect(err).NotTo(HaveOccurred())

		DeferCleanup(func() {
			Expect(db.Close()).To(Succeed())
		})
	})

	It("stores and retrieves models", func() {
		store := modelstore.NewBadgerStore(db)

		model := trainedModel("bass")
		Expect(store.Put(model)).To(Succeed())

		got, ok := store.Get("bass")
		Expect(ok).To(BeTrue())
		Expect(got.Instrument).To(Equal("bass"))
		Expect(store.Instruments()).To(ConsistOf("bass"))
	})

	It("hydrates from persisted records on startup", func() {
		first := modelstore.NewBadgerStore(db)
		Expect(first.Put(trainedModel("other"))).To(Succeed())

		second := modelstore.NewBadgerStore(db)
		restored, ok := second.Get("other")
		Expect(ok).To(BeTrue())
		Expect(restored.Trained()).To(BeTrue())
	})
})
