package quality

import (
	"github.com/stemforge/stemforge-be/src/shared/separation/audio"
)

// Assessor grades separated stems without a ground truth reference. The
// score is a heuristic on the power a stem retains relative to the
// original mix, not a perceptual metric.
type Assessor struct{}

func NewAssessor() Assessor {
	return Assessor{}
}

// Score rates one stem against the original mix on a 0 to 100 scale.
// A stem holding a sane share of the mix energy scores high; silence
// and energy blowups both score low.
func (a Assessor) Score(stem, original audio.Buffer) float64 {
	stemPower := power(stem)
	originalPower := power(original)

	if originalPower == 0 {
		return 0
	}

	ratio := stemPower / originalPower
	if ratio > 1 {
		// more energy than the source means reconstruction artifacts,
		// penalize the overshoot
		ratio = 1 / ratio
	}

	return ratio * 100
}

// ScoreAll grades every stem in a separation result against the mix.
func (a Assessor) ScoreAll(stems map[string]audio.Buffer, original audio.Buffer) map[string]float64 {
	scores := make(map[string]float64, len(stems))
	for name, stem := range stems {
		scores[name] = a.Score(stem, original)
	}

	return scores
}

func power(b audio.Buffer) float64 {
	sum := 0.0
	for _, s := range b.Samples() {
		sum += s * s
	}

	if b.Len() == 0 {
		return 0
	}

	return sum / float64(b.Len())
}
