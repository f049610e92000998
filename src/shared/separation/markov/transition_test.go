package markov_test

import (
	"math"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stemforge/stemforge-be/src/shared/separation/markov"
	"github.com/stemforge/stemforge-be/src/shared/separation/quantize"
	"github.com/stemforge/stemforge-be/src/shared/separation/seperrors"
)

var _ = Describe("TransitionModel", func() {
	var model *markov.TransitionModel

	BeforeEach(func() {
		model = markov.NewTransitionModel(2, 3)
	})

	Describe("Before training", func() {
		It("rejects scoring with a not-trained error", func() {
			_, err := model.Score(quantize.StateSequence{0, 1, 2})
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, seperrors.NotTrained)).To(BeTrue())
		})
	})

	Describe("After training", func() {
		BeforeEach(func() {
			model.Train(quantize.StateSequence{0, 1, 2, 0, 1, 2, 0, 1})
			model.Train(quantize.StateSequence{2, 1, 0, 2, 1, 0})
			model.Finalize()
		})

		It("normalizes every observed row to sum to 1", func() {
			probs := model.Probabilities()
			totals := model.RowTotals()

			for h, row := range probs {
				if totals[h] == 0 {
					continue
				}

				sum := 0.0
				for _, p := range row {
					sum += p
				}
				Expect(sum).To(BeNumerically("~", 1.0, 1e-9))
			}
		})

		It("scores sequences shorter than order+1 as exactly zero", func() {
			score, err := model.Score(quantize.StateSequence{})
			Expect(err).NotTo(HaveOccurred())
			Expect(score).To(Equal(0.0))

			score, err = model.Score(quantize.StateSequence{1})
			Expect(err).NotTo(HaveOccurred())
			Expect(score).To(Equal(0.0))

			score, err = model.Score(quantize.StateSequence{1, 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(score).To(Equal(0.0))
		})

		It("scores observed patterns above unseen ones", func() {
			seen, err := model.Score(quantize.StateSequence{0, 1, 2, 0, 1, 2})
			Expect(err).NotTo(HaveOccurred())

			unseen, err := model.Score(quantize.StateSequence{2, 2, 2, 2, 2, 2})
			Expect(err).NotTo(HaveOccurred())

			Expect(seen).To(BeNumerically(">", unseen))
		})

		It("never scores negative infinity thanks to smoothing", func() {
			score, err := model.Score(quantize.StateSequence{2, 2, 2, 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(math.IsInf(score, -1)).To(BeFalse())
		})

		It("falls back to the uniform mean for unseen histories", func() {
			Expect(model.MeanOutgoing(quantize.StateSequence{2, 2})).
				To(BeNumerically("~", 1.0/3.0, 1e-9))
		})
	})

	Describe("Restore", func() {
		It("scores identically to the trained original", func() {
			model.Train(quantize.StateSequence{0, 1, 2, 0, 1, 2, 1, 0})
			model.Finalize()

			restored := markov.RestoreTransitionModel(2, 3, model.Probabilities(), model.RowTotals())

			heldOut := quantize.StateSequence{1, 2, 0, 1, 2, 0}

			original, err := model.Score(heldOut)
			Expect(err).NotTo(HaveOccurred())

			rebuilt, err := restored.Score(heldOut)
			Expect(err).NotTo(HaveOccurred())

			Expect(rebuilt).To(BeNumerically("~", original, 1e-12))
		})
	})
})
