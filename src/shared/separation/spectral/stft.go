package spectral

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	DefaultWindowSize = 2048
	DefaultHopSize    = 512
)

// Spectrogram is a time-frequency representation, frames outermost.
// Magnitude and Phase always share the same shape.
type Spectrogram struct {
	Magnitude  [][]float64
	Phase      [][]float64
	WindowSize int
	HopSize    int
	SampleRate int
}

func (s *Spectrogram) TimeFrames() int {
	return len(s.Magnitude)
}

func (s *Spectrogram) FreqBins() int {
	if len(s.Magnitude) == 0 {
		return 0
	}
	return len(s.Magnitude[0])
}

// STFT performs windowed forward and inverse short-time transforms.
type STFT struct {
	windowSize int
	hopSize    int
	window     []float64
	fft        *fourier.FFT
}

func NewSTFT(windowSize, hopSize int) *STFT {
	return &STFT{
		windowSize: windowSize,
		hopSize:    hopSize,
		window:     Hann(windowSize),
		fft:        fourier.NewFFT(windowSize),
	}
}

func NewDefaultSTFT() *STFT {
	return NewSTFT(DefaultWindowSize, DefaultHopSize)
}

// FrameCount mirrors the analysis framing: floor((len-window)/hop)+1,
// or a single zero-padded frame when the input is shorter than one window.
func (s *STFT) FrameCount(sampleCount int) int {
	if sampleCount < s.windowSize {
		return 1
	}
	return (sampleCount-s.windowSize)/s.hopSize + 1
}

// Analyze computes the magnitude/phase spectrogram of a mono signal.
func (s *STFT) Analyze(samples []float64, sampleRate int) *Spectrogram {
	frameCount := s.FrameCount(len(samples))
	bins := s.windowSize/2 + 1

	magnitude := make([][]float64, frameCount)
	phase := make([][]float64, frameCount)

	windowed := make([]float64, s.windowSize)
	coeffs := make([]complex128, bins)

	for f := 0; f < frameCount; f++ {
		start := f * s.hopSize
		for i := 0; i < s.windowSize; i++ {
			if start+i < len(samples) {
				windowed[i] = samples[start+i] * s.window[i]
			} else {
				windowed[i] = 0
			}
		}

		s.fft.Coefficients(coeffs, windowed)

		magnitude[f] = make([]float64, bins)
		phase[f] = make([]float64, bins)
		for b := 0; b < bins; b++ {
			magnitude[f][b] = cmplx.Abs(coeffs[b])
			phase[f][b] = cmplx.Phase(coeffs[b])
		}
	}

	return &Spectrogram{
		Magnitude:  magnitude,
		Phase:      phase,
		WindowSize: s.windowSize,
		HopSize:    s.hopSize,
		SampleRate: sampleRate,
	}
}

// Synthesize reconstructs a time signal of exactly length samples from
// magnitude and phase via windowed overlap-add.
func (s *STFT) Synthesize(magnitude, phase [][]float64, length int) []float64 {
	out := make([]float64, length)
	windowSum := make([]float64, length)

	bins := s.windowSize/2 + 1
	coeffs := make([]complex128, bins)
	frame := make([]float64, s.windowSize)

	for f := 0; f < len(magnitude); f++ {
		for b := 0; b < bins && b < len(magnitude[f]); b++ {
			coeffs[b] = cmplx.Rect(magnitude[f][b], phase[f][b])
		}

		s.fft.Sequence(frame, coeffs)

		start := f * s.hopSize
		for i := 0; i < s.windowSize; i++ {
			if start+i >= length {
				break
			}
			// gonum's inverse is unnormalized
			out[start+i] += frame[i] / float64(s.windowSize) * s.window[i]
			windowSum[start+i] += s.window[i] * s.window[i]
		}
	}

	for i := range out {
		if windowSum[i] > 1e-9 {
			out[i] /= windowSum[i]
		}
	}

	return out
}

// DynamicRangeDB estimates the spread between the loudest and quietest
// active frames of the magnitude spectrogram, in dB.
func DynamicRangeDB(spec *Spectrogram) float64 {
	maxEnergy := 0.0
	minEnergy := math.Inf(1)

	for _, frame := range spec.Magnitude {
		energy := 0.0
		for _, m := range frame {
			energy += m * m
		}

		if energy > maxEnergy {
			maxEnergy = energy
		}
		if energy > 0 && energy < minEnergy {
			minEnergy = energy
		}
	}

	if maxEnergy == 0 || math.IsInf(minEnergy, 1) || minEnergy == 0 {
		return 0
	}

	return 10 * math.Log10(maxEnergy/minEnergy)
}
