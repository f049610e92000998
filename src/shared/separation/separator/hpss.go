package separator

import (
	"context"

	"github.com/apex/log"
	"github.com/stemforge/stemforge-be/src/shared/lib/cerr"
	"github.com/stemforge/stemforge-be/src/shared/separation/audio"
	"github.com/stemforge/stemforge-be/src/shared/separation/seperrors"
	"github.com/stemforge/stemforge-be/src/shared/separation/spectral"
)

const (
	hpssMedianWidth = 17

	// harmonic content below this frequency is attributed to bass
	bassCutoffHz = 250.0
)

// HPSSSeparator splits the mix with Fitzgerald-style median filtering:
// median across time keeps sustained (harmonic) content, median across
// frequency keeps broadband (percussive) content. A vocal estimate
// comes from a ratio mask of the harmonic part against the full mix and
// the instrumental estimate by subtraction. Needs no trained model and
// no external tooling, so it is the fallback of last resort.
type HPSSSeparator struct {
	config Config
}

var _ Separator = HPSSSeparator{}

func NewHPSSSeparator(config Config) HPSSSeparator {
	return HPSSSeparator{config: config}
}

func (h HPSSSeparator) Name() string {
	return "harmonic_percussive"
}

func (h HPSSSeparator) Available() bool {
	return true
}

func (h HPSSSeparator) TrySeparate(ctx context.Context, buffer audio.Buffer, nComponents int) (map[string]audio.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, cerr.Wrap(err).Mark(seperrors.AlgorithmFailure).
			Error("Context cancelled before separation could happen")
	}

	log.WithFields(log.Fields{
		"separator":    h.Name(),
		"n_components": nComponents,
		"samples":      buffer.Len(),
	}).Info("Running harmonic/percussive separation")

	stft := h.config.stft()
	spec := stft.Analyze(buffer.Samples(), buffer.SampleRate())

	harmonic := spectral.MedianAcrossTime(spec.Magnitude, hpssMedianWidth)
	percussive := spectral.MedianAcrossFrequency(spec.Magnitude, hpssMedianWidth)

	frames := spec.TimeFrames()
	bins := spec.FreqBins()

	harmonicMask := make([][]float64, frames)
	percussiveMask := make([][]float64, frames)
	vocalMask := make([][]float64, frames)
	for f := 0; f < frames; f++ {
		harmonicMask[f] = make([]float64, bins)
		percussiveMask[f] = make([]float64, bins)
		vocalMask[f] = make([]float64, bins)
		for b := 0; b < bins; b++ {
			hp := harmonic[f][b] * harmonic[f][b]
			pp := percussive[f][b] * percussive[f][b]
			total := hp + pp + 1e-10

			harmonicMask[f][b] = hp / total
			percussiveMask[f][b] = pp / total

			// vocal estimate: how much of the full mix the enhanced
			// harmonic part explains
			ratio := harmonic[f][b] / (spec.Magnitude[f][b] + 1e-10)
			if ratio > 1 {
				ratio = 1
			}
			vocalMask[f][b] = ratio
		}
	}

	vocals := h.reconstruct(stft, spec, vocalMask, buffer)

	if nComponents <= 2 {
		instrumental := subtract(buffer, vocals, 0.5)
		return map[string]audio.Buffer{
			"vocals": vocals,
			"other":  instrumental,
		}, nil
	}

	binHz := float64(buffer.SampleRate()) / float64(h.config.WindowSize)
	bassBins := int(bassCutoffHz / binHz)

	bassMask := make([][]float64, frames)
	otherMask := make([][]float64, frames)
	for f := 0; f < frames; f++ {
		bassMask[f] = make([]float64, bins)
		otherMask[f] = make([]float64, bins)
		for b := 0; b < bins; b++ {
			if b <= bassBins {
				bassMask[f][b] = harmonicMask[f][b]
			} else {
				otherMask[f][b] = harmonicMask[f][b] * (1 - vocalMask[f][b])
			}
		}
	}

	return map[string]audio.Buffer{
		"vocals": vocals,
		"drums":  h.reconstruct(stft, spec, percussiveMask, buffer),
		"bass":   h.reconstruct(stft, spec, bassMask, buffer),
		"other":  h.reconstruct(stft, spec, otherMask, buffer),
	}, nil
}

func (h HPSSSeparator) reconstruct(stft *spectral.STFT, spec *spectral.Spectrogram, mask [][]float64, original audio.Buffer) audio.Buffer {
	masked := make([][]float64, len(spec.Magnitude))
	for f := range spec.Magnitude {
		masked[f] = make([]float64, len(spec.Magnitude[f]))
		for b := range spec.Magnitude[f] {
			masked[f][b] = spec.Magnitude[f][b] * mask[f][b]
		}
	}

	samples := stft.Synthesize(masked, spec.Phase, original.Len())
	return audio.New(samples, original.SampleRate())
}

func subtract(original, removed audio.Buffer, gain float64) audio.Buffer {
	out := make([]float64, original.Len())
	removedSamples := removed.Samples()
	for i, s := range original.Samples() {
		out[i] = s - gain*removedSamples[i]
	}

	return audio.New(out, original.SampleRate())
}
