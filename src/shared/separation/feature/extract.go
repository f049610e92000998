package feature

import (
	"math"

	"github.com/stemforge/stemforge-be/src/shared/lib/cerr"
	"github.com/stemforge/stemforge-be/src/shared/separation/audio"
	"github.com/stemforge/stemforge-be/src/shared/separation/seperrors"
	"github.com/stemforge/stemforge-be/src/shared/separation/spectral"
)

// Family selects which per-frame descriptors get extracted.
type Family string

const (
	// Cepstral is the primary family: 13 cepstra plus first and second
	// order deltas, 39 dimensions.
	Cepstral Family = "cepstral"

	// SpectralShape: centroid, rolloff, bandwidth, zero-crossing rate.
	SpectralShape Family = "spectral"

	// Chroma: energy folded onto the 12 pitch classes.
	Chroma Family = "chroma"
)

const (
	cepstraCount  = 13
	chromaBins    = 12
	rolloffenergy = 0.85
)

type Config struct {
	Family     Family
	WindowSize int
	HopSize    int
}

func DefaultConfig() Config {
	return Config{
		Family:     Cepstral,
		WindowSize: spectral.DefaultWindowSize,
		HopSize:    spectral.DefaultHopSize,
	}
}

// Matrix is an ordered sequence of fixed-length feature frames.
type Matrix struct {
	Frames [][]float64
	Family Family
}

func (m Matrix) FrameCount() int {
	return len(m.Frames)
}

func (m Matrix) Dims() int {
	if len(m.Frames) == 0 {
		return 0
	}
	return len(m.Frames[0])
}

// Extract converts a buffer into per-frame descriptors. Deterministic
// for a fixed input and config.
func Extract(buffer audio.Buffer, config Config) (Matrix, error) {
	errctx := cerr.Fields(cerr.F{
		"family":      config.Family,
		"window_size": config.WindowSize,
		"hop_size":    config.HopSize,
	})

	if buffer.Len() == 0 {
		return Matrix{}, errctx.Wrap(seperrors.Extraction).
			Error("Cannot extract features from an empty buffer")
	}

	if buffer.SampleRate() <= 0 {
		return Matrix{}, errctx.Field("sample_rate", buffer.SampleRate()).
			Wrap(seperrors.Extraction).
			Error("Cannot extract features with a non-positive sample rate")
	}

	stft := spectral.NewSTFT(config.WindowSize, config.HopSize)
	spec := stft.Analyze(buffer.Samples(), buffer.SampleRate())

	var frames [][]float64
	switch config.Family {
	case Cepstral:
		frames = cepstralFrames(spec)
	case SpectralShape:
		frames = spectralShapeFrames(spec, buffer.Samples(), config)
	case Chroma:
		frames = chromaFrames(spec)
	default:
		return Matrix{}, errctx.Wrap(seperrors.Extraction).
			Error("Unknown feature family")
	}

	return Matrix{Frames: frames, Family: config.Family}, nil
}

func cepstralFrames(spec *spectral.Spectrogram) [][]float64 {
	base := make([][]float64, spec.TimeFrames())
	for f, magFrame := range spec.Magnitude {
		base[f] = cepstrum(magFrame, cepstraCount)
	}

	deltas := deltaFrames(base)
	deltaDeltas := deltaFrames(deltas)

	out := make([][]float64, len(base))
	for f := range base {
		row := make([]float64, 0, cepstraCount*3)
		row = append(row, base[f]...)
		row = append(row, deltas[f]...)
		row = append(row, deltaDeltas[f]...)
		out[f] = row
	}

	return out
}

// cepstrum computes the first n coefficients of the DCT-II of the log
// magnitude spectrum.
func cepstrum(magnitude []float64, n int) []float64 {
	logMag := make([]float64, len(magnitude))
	for i, m := range magnitude {
		logMag[i] = math.Log(m + 1e-10)
	}

	out := make([]float64, n)
	scale := math.Pi / float64(len(logMag))
	for k := 0; k < n; k++ {
		sum := 0.0
		for i, v := range logMag {
			sum += v * math.Cos(scale*(float64(i)+0.5)*float64(k))
		}
		out[k] = sum
	}

	return out
}

// deltaFrames is the frame-to-frame first difference, zero for the
// first frame.
func deltaFrames(frames [][]float64) [][]float64 {
	out := make([][]float64, len(frames))
	for f := range frames {
		row := make([]float64, len(frames[f]))
		if f > 0 {
			for i := range row {
				row[i] = frames[f][i] - frames[f-1][i]
			}
		}
		out[f] = row
	}

	return out
}

func spectralShapeFrames(spec *spectral.Spectrogram, samples []float64, config Config) [][]float64 {
	binHz := float64(spec.SampleRate) / float64(spec.WindowSize)

	out := make([][]float64, spec.TimeFrames())
	for f, magFrame := range spec.Magnitude {
		total := 0.0
		weighted := 0.0
		for b, m := range magFrame {
			total += m
			weighted += m * float64(b) * binHz
		}

		centroid := 0.0
		if total > 0 {
			centroid = weighted / total
		}

		rolloff := 0.0
		cumulative := 0.0
		for b, m := range magFrame {
			cumulative += m
			if total > 0 && cumulative >= rolloffenergy*total {
				rolloff = float64(b) * binHz
				break
			}
		}

		bandwidth := 0.0
		if total > 0 {
			for b, m := range magFrame {
				diff := float64(b)*binHz - centroid
				bandwidth += m * diff * diff
			}
			bandwidth = math.Sqrt(bandwidth / total)
		}

		out[f] = []float64{
			centroid,
			rolloff,
			bandwidth,
			zeroCrossingRate(samples, f*config.HopSize, config.WindowSize),
		}
	}

	return out
}

func zeroCrossingRate(samples []float64, start, length int) float64 {
	end := start + length
	if end > len(samples) {
		end = len(samples)
	}
	if end-start < 2 {
		return 0
	}

	crossings := 0
	for i := start + 1; i < end; i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}

	return float64(crossings) / float64(end-start-1)
}

func chromaFrames(spec *spectral.Spectrogram) [][]float64 {
	binHz := float64(spec.SampleRate) / float64(spec.WindowSize)

	out := make([][]float64, spec.TimeFrames())
	for f, magFrame := range spec.Magnitude {
		row := make([]float64, chromaBins)
		for b, m := range magFrame {
			freq := float64(b) * binHz
			if freq < 20 {
				continue
			}

			// fold onto pitch classes relative to A440
			pitch := 12*math.Log2(freq/440.0) + 69
			class := int(math.Round(pitch)) % chromaBins
			if class < 0 {
				class += chromaBins
			}
			row[class] += m
		}
		out[f] = row
	}

	return out
}
