package audio_test

import (
	"bytes"
	"math"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stemforge/stemforge-be/src/shared/separation/audio"
	"github.com/stemforge/stemforge-be/src/shared/separation/seperrors"
)

var _ = Describe("Buffer", func() {
	Describe("New", func() {
		It("copies the input samples", func() {
			samples := []float64{0.1, 0.2, 0.3}
			buffer := audio.New(samples, 8000)

			samples[0] = 99
			Expect(buffer.Samples()[0]).To(Equal(0.1))
		})
	})

	Describe("Validate", func() {
		It("accepts a normal buffer", func() {
			Expect(audio.Sine(440, 0.5, 1.0, 8000).Validate()).To(Succeed())
		})

		It("rejects an empty buffer", func() {
			err := audio.New(nil, 8000).Validate()
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, seperrors.Validation)).To(BeTrue())
		})

		It("rejects a non-positive sample rate", func() {
			err := audio.New([]float64{0.1}, 0).Validate()
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, seperrors.Validation)).To(BeTrue())
		})

		It("rejects input longer than the duration cap", func() {
			tooLong := make([]float64, 8000*601)
			err := audio.New(tooLong, 8000).Validate()
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, seperrors.Validation)).To(BeTrue())
		})
	})

	Describe("Measurements", func() {
		It("computes RMS of a full-scale sine near 1/sqrt(2)", func() {
			buffer := audio.Sine(100, 1.0, 1.0, 8000)
			Expect(buffer.RMS()).To(BeNumerically("~", 1/math.Sqrt2, 0.01))
		})

		It("computes the absolute peak", func() {
			buffer := audio.New([]float64{0.1, -0.8, 0.5}, 8000)
			Expect(buffer.Peak()).To(Equal(0.8))
		})

		It("reports the duration from the sample rate", func() {
			buffer := audio.Sine(440, 0.5, 2.0, 8000)
			Expect(buffer.Duration().Seconds()).To(BeNumerically("~", 2.0, 0.001))
		})
	})
})

var _ = Describe("WAV codec", func() {
	It("round-trips a buffer within 16-bit precision", func() {
		original := audio.SineMix([]float64{220, 440}, 0.5, 8000)

		var stream bytes.Buffer
		Expect(audio.EncodeWAV(&stream, original)).To(Succeed())

		decoded, err := audio.DecodeWAV(&stream)
		Expect(err).NotTo(HaveOccurred())

		Expect(decoded.SampleRate()).To(Equal(8000))
		Expect(decoded.Len()).To(Equal(original.Len()))

		for i := 0; i < original.Len(); i += 100 {
			Expect(decoded.Samples()[i]).To(BeNumerically("~", original.Samples()[i], 1.0/32000))
		}
	})

	It("rejects garbage input", func() {
		_, err := audio.DecodeWAV(bytes.NewReader([]byte("not a wav file at all")))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Mix utilities", func() {
	Describe("PeakNormalize", func() {
		It("scales the peak to the headroom", func() {
			buffer := audio.Sine(440, 0.3, 0.5, 8000)
			normalized := audio.PeakNormalize(buffer, 0.95)
			Expect(normalized.Peak()).To(BeNumerically("~", 0.95, 1e-9))
		})

		It("leaves silence untouched", func() {
			silent := audio.New(make([]float64, 100), 8000)
			Expect(audio.PeakNormalize(silent, 0.95).Peak()).To(Equal(0.0))
		})
	})

	Describe("MixDown", func() {
		It("sums tracks at their levels", func() {
			tracks := map[string]audio.Buffer{
				"a": audio.New([]float64{0.2, 0.2}, 8000),
				"b": audio.New([]float64{0.1, 0.1}, 8000),
			}
			levels := map[string]float64{"b": 2.0}

			mixed, err := audio.MixDown(tracks, levels)
			Expect(err).NotTo(HaveOccurred())
			Expect(mixed.Samples()[0]).To(BeNumerically("~", 0.4, 1e-9))
		})

		It("rejects an empty track set", func() {
			_, err := audio.MixDown(nil, nil)
			Expect(err).To(HaveOccurred())
		})
	})
})
