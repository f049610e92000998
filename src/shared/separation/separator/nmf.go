package separator

import (
	"context"
	"math/rand"

	"github.com/apex/log"
	"github.com/stemforge/stemforge-be/src/shared/lib/cerr"
	"github.com/stemforge/stemforge-be/src/shared/separation/audio"
	"github.com/stemforge/stemforge-be/src/shared/separation/seperrors"
	"gonum.org/v1/gonum/mat"
)

const nmfEpsilon = 1e-10

// NMFSeparator factorizes the magnitude spectrogram V (bins x frames)
// into nonnegative templates W (bins x k) and activations H (k x frames)
// with multiplicative updates, then carves the mix with one soft mask
// per component. Deterministic for a fixed seed.
type NMFSeparator struct {
	config Config
}

var _ Separator = NMFSeparator{}

func NewNMFSeparator(config Config) NMFSeparator {
	return NMFSeparator{config: config}
}

func (n NMFSeparator) Name() string {
	return "nmf_factorization"
}

func (n NMFSeparator) Available() bool {
	return true
}

func (n NMFSeparator) TrySeparate(ctx context.Context, buffer audio.Buffer, nComponents int) (map[string]audio.Buffer, error) {
	if nComponents < 1 {
		return nil, cerr.Field("n_components", nComponents).
			Wrap(seperrors.AlgorithmFailure).
			Error("Component count must be positive")
	}

	log.WithFields(log.Fields{
		"separator":    n.Name(),
		"n_components": nComponents,
		"samples":      buffer.Len(),
	}).Info("Running factorization separation")

	stft := n.config.stft()
	spec := stft.Analyze(buffer.Samples(), buffer.SampleRate())

	frames := spec.TimeFrames()
	bins := spec.FreqBins()

	v := mat.NewDense(bins, frames, nil)
	for f := 0; f < frames; f++ {
		for b := 0; b < bins; b++ {
			v.Set(b, f, spec.Magnitude[f][b])
		}
	}

	w, h, err := n.factorize(ctx, v, bins, frames, nComponents)
	if err != nil {
		return nil, err
	}

	// WH once, shared across the per-component masks
	var wh mat.Dense
	wh.Mul(w, h)

	names := stemNames(nComponents)
	stems := make(map[string]audio.Buffer, nComponents)

	masked := make([][]float64, frames)
	for f := range masked {
		masked[f] = make([]float64, bins)
	}

	for c := 0; c < nComponents; c++ {
		if err := ctx.Err(); err != nil {
			return nil, cerr.Wrap(err).Mark(seperrors.AlgorithmFailure).
				Error("Context cancelled during stem reconstruction")
		}

		for f := 0; f < frames; f++ {
			for b := 0; b < bins; b++ {
				component := w.At(b, c) * h.At(c, f)
				mask := component / (wh.At(b, f) + nmfEpsilon)
				if mask > 1 {
					mask = 1
				}
				masked[f][b] = spec.Magnitude[f][b] * mask
			}
		}

		samples := stft.Synthesize(masked, spec.Phase, buffer.Len())
		stems[names[c]] = audio.New(samples, buffer.SampleRate())
	}

	return stems, nil
}

func (n NMFSeparator) factorize(ctx context.Context, v *mat.Dense, bins, frames, k int) (*mat.Dense, *mat.Dense, error) {
	rng := rand.New(rand.NewSource(n.config.Seed))

	w := mat.NewDense(bins, k, nil)
	h := mat.NewDense(k, frames, nil)
	for i := 0; i < bins; i++ {
		for j := 0; j < k; j++ {
			w.Set(i, j, rng.Float64()+nmfEpsilon)
		}
	}
	for i := 0; i < k; i++ {
		for j := 0; j < frames; j++ {
			h.Set(i, j, rng.Float64()+nmfEpsilon)
		}
	}

	var (
		numerH, denomH, wtw mat.Dense
		numerW, denomW, hht mat.Dense
	)

	for iter := 0; iter < n.config.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, cerr.Field("iteration", iter).
				Wrap(err).Mark(seperrors.AlgorithmFailure).
				Error("Context cancelled during factorization")
		}

		// H <- H .* (W'V) ./ (W'WH + eps)
		numerH.Mul(w.T(), v)
		wtw.Mul(w.T(), w)
		denomH.Mul(&wtw, h)
		updateElementwise(h, &numerH, &denomH)

		// W <- W .* (VH') ./ (WHH' + eps)
		numerW.Mul(v, h.T())
		hht.Mul(h, h.T())
		denomW.Mul(w, &hht)
		updateElementwise(w, &numerW, &denomW)
	}

	return w, h, nil
}

func updateElementwise(target, numer, denom *mat.Dense) {
	rows, cols := target.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			target.Set(i, j, target.At(i, j)*numer.At(i, j)/(denom.At(i, j)+nmfEpsilon))
		}
	}
}
