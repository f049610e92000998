package audio

import "math"

// Sine generates a pure tone. Primarily for tests and local tooling.
func Sine(freq float64, amplitude float64, duration float64, sampleRate int) Buffer {
	n := int(duration * float64(sampleRate))
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}

	return Buffer{samples: samples, sampleRate: sampleRate}
}

// SineMix sums equal-amplitude tones at the given frequencies, scaled to
// stay inside full scale.
func SineMix(freqs []float64, duration float64, sampleRate int) Buffer {
	n := int(duration * float64(sampleRate))
	samples := make([]float64, n)
	if len(freqs) == 0 {
		return Buffer{samples: samples, sampleRate: sampleRate}
	}

	amplitude := 0.9 / float64(len(freqs))
	for _, freq := range freqs {
		for i := range samples {
			samples[i] += amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		}
	}

	return Buffer{samples: samples, sampleRate: sampleRate}
}
