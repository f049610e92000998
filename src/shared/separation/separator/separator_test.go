package separator_test

import (
	"context"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stemforge/stemforge-be/src/shared/separation/audio"
	"github.com/stemforge/stemforge-be/src/shared/separation/separator"
	"github.com/stemforge/stemforge-be/src/shared/separation/seperrors"
)

// small analysis frames keep the iterative algorithms quick under test
func testConfig() separator.Config {
	return separator.Config{
		WindowSize:    512,
		HopSize:       256,
		Seed:          42,
		MaxIterations: 15,
	}
}

func testMix() audio.Buffer {
	return audio.SineMix([]float64{110, 440, 1760}, 1.0, 8000)
}

var _ = Describe("HPSSSeparator", func() {
	var hpss separator.HPSSSeparator

	BeforeEach(func() {
		hpss = separator.NewHPSSSeparator(testConfig())
	})

	It("is always available", func() {
		Expect(hpss.Available()).To(BeTrue())
	})

	It("produces vocals and other for two components", func() {
		stems, err := hpss.TrySeparate(context.Background(), testMix(), 2)
		Expect(err).NotTo(HaveOccurred())

		Expect(stems).To(HaveLen(2))
		Expect(stems).To(HaveKey("vocals"))
		Expect(stems).To(HaveKey("other"))
	})

	It("produces the four canonical stems for four components", func() {
		stems, err := hpss.TrySeparate(context.Background(), testMix(), 4)
		Expect(err).NotTo(HaveOccurred())

		Expect(stems).To(HaveLen(4))
		for _, name := range separator.CanonicalStems {
			Expect(stems).To(HaveKey(name))
		}
	})

	It("keeps every stem the same length as the input", func() {
		mix := testMix()
		stems, err := hpss.TrySeparate(context.Background(), mix, 4)
		Expect(err).NotTo(HaveOccurred())

		for _, stem := range stems {
			Expect(stem.Len()).To(Equal(mix.Len()))
			Expect(stem.SampleRate()).To(Equal(mix.SampleRate()))
		}
	})

	It("fails fast on a cancelled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := hpss.TrySeparate(ctx, testMix(), 2)
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, seperrors.AlgorithmFailure)).To(BeTrue())
	})
})

var _ = Describe("NMFSeparator", func() {
	var nmf separator.NMFSeparator

	BeforeEach(func() {
		nmf = separator.NewNMFSeparator(testConfig())
	})

	It("is always available", func() {
		Expect(nmf.Available()).To(BeTrue())
	})

	It("assigns canonical names positionally", func() {
		stems, err := nmf.TrySeparate(context.Background(), testMix(), 2)
		Expect(err).NotTo(HaveOccurred())

		Expect(stems).To(HaveLen(2))
		Expect(stems).To(HaveKey("vocals"))
		Expect(stems).To(HaveKey("drums"))
	})

	It("keeps every stem the same length as the input", func() {
		mix := testMix()
		stems, err := nmf.TrySeparate(context.Background(), mix, 2)
		Expect(err).NotTo(HaveOccurred())

		for _, stem := range stems {
			Expect(stem.Len()).To(Equal(mix.Len()))
		}
	})

	It("is deterministic for a fixed seed", func() {
		first, err := nmf.TrySeparate(context.Background(), testMix(), 2)
		Expect(err).NotTo(HaveOccurred())

		second, err := nmf.TrySeparate(context.Background(), testMix(), 2)
		Expect(err).NotTo(HaveOccurred())

		Expect(first["vocals"].Samples()).To(Equal(second["vocals"].Samples()))
	})

	It("conserves most of the mix energy across the stems", func() {
		mix := testMix()
		stems, err := nmf.TrySeparate(context.Background(), mix, 2)
		Expect(err).NotTo(HaveOccurred())

		recombined := make([]float64, mix.Len())
		for _, stem := range stems {
			for i, s := range stem.Samples() {
				recombined[i] += s
			}
		}

		var mixEnergy, recombinedEnergy float64
		for i := range recombined {
			mixEnergy += mix.Samples()[i] * mix.Samples()[i]
			recombinedEnergy += recombined[i] * recombined[i]
		}

		Expect(recombinedEnergy).To(BeNumerically(">", mixEnergy*0.5))
		Expect(recombinedEnergy).To(BeNumerically("<", mixEnergy*1.5))
	})

	It("rejects a non-positive component count", func() {
		_, err := nmf.TrySeparate(context.Background(), testMix(), 0)
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, seperrors.AlgorithmFailure)).To(BeTrue())
	})
})

var _ = Describe("ICASeparator", func() {
	var ica separator.ICASeparator

	BeforeEach(func() {
		ica = separator.NewICASeparator(testConfig())
	})

	It("keeps every stem the same length as the input", func() {
		// non-stationary content so the frames have spectral variance
		first := audio.Sine(440, 0.8, 0.5, 8000)
		second := audio.Sine(1760, 0.8, 0.5, 8000)
		samples := append(append([]float64{}, first.Samples()...), second.Samples()...)
		mix := audio.New(samples, 8000)

		stems, err := ica.TrySeparate(context.Background(), mix, 2)
		Expect(err).NotTo(HaveOccurred())

		Expect(stems).To(HaveLen(2))
		for _, stem := range stems {
			Expect(stem.Len()).To(Equal(mix.Len()))
		}
	})

	It("fails cleanly when there are too few frames", func() {
		tiny := audio.Sine(440, 0.5, 0.05, 8000)
		_, err := ica.TrySeparate(context.Background(), tiny, 4)
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, seperrors.AlgorithmFailure)).To(BeTrue())
	})
})
