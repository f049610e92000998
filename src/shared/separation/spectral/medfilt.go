package spectral

import "sort"

// MedianFilter1D smooths values with a sliding median of odd width.
// Edges shrink the window rather than padding.
func MedianFilter1D(values []float64, width int) []float64 {
	if width < 3 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}

	half := width / 2
	out := make([]float64, len(values))
	scratch := make([]float64, 0, width)

	for i := range values {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half + 1
		if hi > len(values) {
			hi = len(values)
		}

		scratch = append(scratch[:0], values[lo:hi]...)
		sort.Float64s(scratch)
		out[i] = scratch[len(scratch)/2]
	}

	return out
}

// MedianAcrossTime median-filters each frequency bin along the frame
// axis. Sustained (harmonic) content survives, transients are removed.
func MedianAcrossTime(magnitude [][]float64, width int) [][]float64 {
	frames := len(magnitude)
	if frames == 0 {
		return nil
	}
	bins := len(magnitude[0])

	out := make([][]float64, frames)
	for f := range out {
		out[f] = make([]float64, bins)
	}

	column := make([]float64, frames)
	for b := 0; b < bins; b++ {
		for f := 0; f < frames; f++ {
			column[f] = magnitude[f][b]
		}

		filtered := MedianFilter1D(column, width)
		for f := 0; f < frames; f++ {
			out[f][b] = filtered[f]
		}
	}

	return out
}

// MedianAcrossFrequency median-filters each frame along the frequency
// axis. Broadband (percussive) content survives, tonal peaks are removed.
func MedianAcrossFrequency(magnitude [][]float64, width int) [][]float64 {
	out := make([][]float64, len(magnitude))
	for f, frame := range magnitude {
		out[f] = MedianFilter1D(frame, width)
	}

	return out
}
