package quality_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stemforge/stemforge-be/src/shared/separation/audio"
	"github.com/stemforge/stemforge-be/src/shared/separation/quality"
)

var _ = Describe("Assessor", func() {
	var (
		assessor quality.Assessor
		original audio.Buffer
	)

	BeforeEach(func() {
		assessor = quality.NewAssessor()
		original = audio.SineMix([]float64{220, 440}, 1.0, 8000)
	})

	It("scores a perfect copy at 100", func() {
		Expect(assessor.Score(original, original)).To(BeNumerically("~", 100, 1e-9))
	})

	It("scores silence at 0", func() {
		silent := audio.New(make([]float64, original.Len()), 8000)
		Expect(assessor.Score(silent, original)).To(Equal(0.0))
	})

	It("scores a silent original at 0", func() {
		silent := audio.New(make([]float64, 100), 8000)
		Expect(assessor.Score(original, silent)).To(Equal(0.0))
	})

	It("penalizes a stem with more energy than the source", func() {
		doubled := make([]float64, original.Len())
		for i, s := range original.Samples() {
			doubled[i] = s * 2
		}
		blownUp := audio.New(doubled, 8000)

		Expect(assessor.Score(blownUp, original)).To(BeNumerically("<", 100))
	})

	It("stays inside the 0 to 100 range", func() {
		half := make([]float64, original.Len())
		for i, s := range original.Samples() {
			half[i] = s * 0.5
		}

		score := assessor.Score(audio.New(half, 8000), original)
		Expect(score).To(BeNumerically(">=", 0))
		Expect(score).To(BeNumerically("<=", 100))
	})

	It("scores every stem in a set", func() {
		stems := map[string]audio.Buffer{
			"vocals": original,
			"other":  audio.New(make([]float64, original.Len()), 8000),
		}

		scores := assessor.ScoreAll(stems, original)
		Expect(scores).To(HaveLen(2))
		Expect(scores["vocals"]).To(BeNumerically(">", scores["other"]))
	})
})
