package orchestrator

import (
	"strings"

	"github.com/apex/log"
	"github.com/stemforge/stemforge-be/src/shared/separation/audio"
	"github.com/stemforge/stemforge-be/src/shared/separation/separator"
	"github.com/stemforge/stemforge-be/src/shared/separation/spectral"
)

const (
	bassCentroidHz   = 300.0
	vocalCentroidHz  = 3500.0
	percussiveZCRate = 0.12
)

// relabel renames numbered overflow components onto free canonical stem
// names using a cheap spectral fingerprint. Components that match
// nothing free stay numbered.
func (o *Orchestrator) relabel(stems map[string]audio.Buffer) map[string]audio.Buffer {
	taken := map[string]bool{}
	for name := range stems {
		taken[name] = true
	}

	relabeled := map[string]audio.Buffer{}
	for name, stem := range stems {
		if !strings.HasPrefix(name, "component_") {
			relabeled[name] = stem
			continue
		}

		label := classifyStem(stem, o.config)
		if label == "" || taken[label] {
			relabeled[name] = stem
			continue
		}

		taken[label] = true
		relabeled[label] = stem
		log.WithFields(log.Fields{
			"component": name,
			"label":     label,
		}).Info("Relabeled unnamed component")
	}

	return relabeled
}

// classifyStem guesses the instrument class from spectral centroid and
// zero-crossing rate: noisy broadband is percussion, low centroid is
// bass, the midrange band is where voice lives.
func classifyStem(stem audio.Buffer, config separator.Config) string {
	if stem.Len() == 0 {
		return ""
	}

	zcr := zeroCrossingRate(stem.Samples())
	centroid := averageCentroidHz(stem, config)

	switch {
	case zcr > percussiveZCRate:
		return "drums"
	case centroid > 0 && centroid < bassCentroidHz:
		return "bass"
	case centroid >= bassCentroidHz && centroid < vocalCentroidHz:
		return "vocals"
	default:
		return "other"
	}
}

func zeroCrossingRate(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}

	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}

	return float64(crossings) / float64(len(samples)-1)
}

func averageCentroidHz(stem audio.Buffer, config separator.Config) float64 {
	stft := spectral.NewSTFT(config.WindowSize, config.HopSize)
	spec := stft.Analyze(stem.Samples(), stem.SampleRate())

	binHz := float64(stem.SampleRate()) / float64(config.WindowSize)

	total := 0.0
	weighted := 0.0
	for _, frame := range spec.Magnitude {
		for b, m := range frame {
			total += m
			weighted += m * float64(b) * binHz
		}
	}

	if total == 0 {
		return 0
	}

	return weighted / total
}
