package separator

import (
	"context"
	"fmt"

	"github.com/stemforge/stemforge-be/src/shared/separation/audio"
	"github.com/stemforge/stemforge-be/src/shared/separation/spectral"
)

// CanonicalStems are the standard output categories. Algorithms without
// semantic labels assign components to this list positionally.
var CanonicalStems = []string{"vocals", "drums", "bass", "other"}

// Separator is one decomposition algorithm in the bank. TrySeparate
// either produces named stems, all time-aligned and the same length as
// the input, or fails with an error marked AlgorithmUnavailable (the
// capability is absent, pick the next candidate) or AlgorithmFailure
// (the algorithm blew up, same consequence).
type Separator interface {
	Name() string

	// Available reports whether the algorithm can run at all in this
	// process. A cheap capability check, not a health check.
	Available() bool

	TrySeparate(ctx context.Context, buffer audio.Buffer, nComponents int) (map[string]audio.Buffer, error)
}

// Config carries the spectral framing and determinism knobs shared by
// the decomposition algorithms.
type Config struct {
	WindowSize    int
	HopSize       int
	Seed          int64
	MaxIterations int
}

func DefaultConfig() Config {
	return Config{
		WindowSize:    spectral.DefaultWindowSize,
		HopSize:       spectral.DefaultHopSize,
		Seed:          42,
		MaxIterations: 100,
	}
}

func (c Config) stft() *spectral.STFT {
	return spectral.NewSTFT(c.WindowSize, c.HopSize)
}

// stemNames maps n positional components onto the canonical list,
// numbering overflow components past the canonical four.
func stemNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		if i < len(CanonicalStems) {
			names[i] = CanonicalStems[i]
		} else {
			names[i] = fmt.Sprintf("component_%d", i+1)
		}
	}

	return names
}
