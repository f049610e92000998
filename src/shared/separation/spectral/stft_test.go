package spectral_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stemforge/stemforge-be/src/shared/separation/audio"
	"github.com/stemforge/stemforge-be/src/shared/separation/spectral"
)

var _ = Describe("STFT", func() {
	var stft *spectral.STFT

	BeforeEach(func() {
		stft = spectral.NewDefaultSTFT()
	})

	Describe("FrameCount", func() {
		It("follows the hop formula for long inputs", func() {
			Expect(stft.FrameCount(2048)).To(Equal(1))
			Expect(stft.FrameCount(2048 + 512)).To(Equal(2))
			Expect(stft.FrameCount(2048 + 511)).To(Equal(1))
			Expect(stft.FrameCount(44100)).To(Equal((44100-2048)/512 + 1))
		})

		It("pads short inputs into a single frame", func() {
			Expect(stft.FrameCount(1)).To(Equal(1))
			Expect(stft.FrameCount(2047)).To(Equal(1))
		})
	})

	Describe("Analyze", func() {
		var buffer audio.Buffer

		BeforeEach(func() {
			buffer = audio.Sine(440, 0.8, 1.0, 8000)
		})

		It("produces matching magnitude and phase shapes", func() {
			spec := stft.Analyze(buffer.Samples(), buffer.SampleRate())

			Expect(spec.TimeFrames()).To(Equal(stft.FrameCount(buffer.Len())))
			Expect(spec.FreqBins()).To(Equal(2048/2 + 1))
			Expect(spec.Phase).To(HaveLen(spec.TimeFrames()))
			for f := range spec.Magnitude {
				Expect(spec.Phase[f]).To(HaveLen(spec.FreqBins()))
			}
		})

		It("is deterministic", func() {
			first := stft.Analyze(buffer.Samples(), buffer.SampleRate())
			second := stft.Analyze(buffer.Samples(), buffer.SampleRate())

			Expect(first.Magnitude).To(Equal(second.Magnitude))
			Expect(first.Phase).To(Equal(second.Phase))
		})

		It("concentrates a pure tone's energy around its frequency", func() {
			spec := stft.Analyze(buffer.Samples(), buffer.SampleRate())

			binHz := 8000.0 / 2048.0
			expectedBin := int(440.0 / binHz)

			midFrame := spec.Magnitude[spec.TimeFrames()/2]
			peakBin := 0
			for b, m := range midFrame {
				if m > midFrame[peakBin] {
					peakBin = b
				}
			}

			Expect(peakBin).To(BeNumerically("~", expectedBin, 2))
		})
	})

	Describe("Synthesize", func() {
		It("reconstructs exactly the requested length", func() {
			buffer := audio.Sine(220, 0.5, 0.7, 8000)
			spec := stft.Analyze(buffer.Samples(), buffer.SampleRate())

			out := stft.Synthesize(spec.Magnitude, spec.Phase, buffer.Len())
			Expect(out).To(HaveLen(buffer.Len()))
		})

		It("round-trips a tone without losing its energy", func() {
			buffer := audio.Sine(330, 0.5, 1.0, 8000)
			spec := stft.Analyze(buffer.Samples(), buffer.SampleRate())
			out := stft.Synthesize(spec.Magnitude, spec.Phase, buffer.Len())

			// skip the edges, overlap-add coverage thins out there
			start := 2048
			end := buffer.Len() - 2048

			var inEnergy, outEnergy float64
			for i := start; i < end; i++ {
				inEnergy += buffer.Samples()[i] * buffer.Samples()[i]
				outEnergy += out[i] * out[i]
			}

			Expect(outEnergy).To(BeNumerically("~", inEnergy, inEnergy*0.05))
		})
	})

	Describe("DynamicRangeDB", func() {
		It("reports a wide range for a signal with silence", func() {
			loud := audio.Sine(440, 0.9, 0.5, 8000)
			samples := make([]float64, loud.Len()*2)
			copy(samples, loud.Samples())
			for i := loud.Len(); i < len(samples); i++ {
				samples[i] = 1e-6 * math.Sin(float64(i))
			}

			spec := stft.Analyze(samples, 8000)
			Expect(spectral.DynamicRangeDB(spec)).To(BeNumerically(">", 40))
		})

		It("reports a narrow range for a steady tone", func() {
			buffer := audio.Sine(440, 0.9, 1.0, 8000)
			spec := stft.Analyze(buffer.Samples(), buffer.SampleRate())

			Expect(spectral.DynamicRangeDB(spec)).To(BeNumerically("<", 20))
		})
	})
})

var _ = Describe("Median filters", func() {
	It("smooths an impulse out of a constant series", func() {
		series := []float64{1, 1, 1, 9, 1, 1, 1}
		Expect(spectral.MedianFilter1D(series, 5)).To(Equal([]float64{1, 1, 1, 1, 1, 1, 1}))
	})

	It("keeps the input length", func() {
		series := []float64{3, 1, 4, 1, 5, 9, 2, 6}
		Expect(spectral.MedianFilter1D(series, 5)).To(HaveLen(len(series)))
	})
})
