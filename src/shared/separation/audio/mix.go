package audio

import (
	"github.com/stemforge/stemforge-be/src/shared/lib/cerr"
)

// PeakNormalize scales the buffer so its peak sits at headroom of full
// scale. Silent buffers come back unchanged.
func PeakNormalize(b Buffer, headroom float64) Buffer {
	peak := b.Peak()
	if peak == 0 {
		return b
	}

	scale := headroom / peak
	out := make([]float64, b.Len())
	for i, s := range b.Samples() {
		out[i] = s * scale
	}

	return Buffer{samples: out, sampleRate: b.SampleRate()}
}

// Gate zeroes samples whose magnitude falls below threshold times the
// buffer peak. A gentle cleanup for separation bleed, not a real expander.
func Gate(b Buffer, threshold float64) Buffer {
	floor := b.Peak() * threshold

	out := make([]float64, b.Len())
	for i, s := range b.Samples() {
		if s > floor || -s > floor {
			out[i] = s
		}
	}

	return Buffer{samples: out, sampleRate: b.SampleRate()}
}

// MixDown sums named tracks at per-track levels into a single buffer.
// Missing levels default to unity. The result is normalized only if it
// would otherwise clip.
func MixDown(tracks map[string]Buffer, levels map[string]float64) (Buffer, error) {
	if len(tracks) == 0 {
		return Buffer{}, cerr.Error("No tracks provided for mixing")
	}

	maxLen := 0
	sampleRate := 0
	for _, track := range tracks {
		if track.Len() > maxLen {
			maxLen = track.Len()
		}
		sampleRate = track.SampleRate()
	}

	mixed := make([]float64, maxLen)
	for name, track := range tracks {
		level := 1.0
		if levels != nil {
			if l, ok := levels[name]; ok {
				level = l
			}
		}

		for i, s := range track.Samples() {
			mixed[i] += s * level
		}
	}

	out := Buffer{samples: mixed, sampleRate: sampleRate}
	if out.Peak() > 1.0 {
		out = PeakNormalize(out, 1.0)
	}

	return out, nil
}
