package separator

import (
	"context"
	"math"
	"math/rand"

	"github.com/apex/log"
	"github.com/stemforge/stemforge-be/src/shared/lib/cerr"
	"github.com/stemforge/stemforge-be/src/shared/separation/audio"
	"github.com/stemforge/stemforge-be/src/shared/separation/seperrors"
	"gonum.org/v1/gonum/mat"
)

const icaConvergence = 1e-6

// ICASeparator runs symmetric FastICA over the magnitude spectrogram.
// Frequency bins are the observed mixtures and frames the samples, so
// whitening doubles as the dimensionality reduction down to the
// requested component count. The recovered sources are back-projected
// into bin space and turned into soft masks like the other algorithms.
type ICASeparator struct {
	config Config
}

var _ Separator = ICASeparator{}

func NewICASeparator(config Config) ICASeparator {
	return ICASeparator{config: config}
}

func (s ICASeparator) Name() string {
	return "independent_components"
}

func (s ICASeparator) Available() bool {
	return true
}

func (s ICASeparator) TrySeparate(ctx context.Context, buffer audio.Buffer, nComponents int) (map[string]audio.Buffer, error) {
	if nComponents < 1 {
		return nil, cerr.Field("n_components", nComponents).
			Wrap(seperrors.AlgorithmFailure).
			Error("Component count must be positive")
	}

	log.WithFields(log.Fields{
		"separator":    s.Name(),
		"n_components": nComponents,
		"samples":      buffer.Len(),
	}).Info("Running independent component separation")

	stft := s.config.stft()
	spec := stft.Analyze(buffer.Samples(), buffer.SampleRate())

	frames := spec.TimeFrames()
	bins := spec.FreqBins()
	if frames <= nComponents {
		return nil, cerr.Fields(cerr.F{
			"frames":       frames,
			"n_components": nComponents,
		}).Wrap(seperrors.AlgorithmFailure).
			Error("Too few frames to estimate independent components")
	}

	// center each bin over time
	rowMeans := make([]float64, bins)
	centered := mat.NewDense(bins, frames, nil)
	for b := 0; b < bins; b++ {
		sum := 0.0
		for f := 0; f < frames; f++ {
			sum += spec.Magnitude[f][b]
		}
		rowMeans[b] = sum / float64(frames)

		for f := 0; f < frames; f++ {
			centered.Set(b, f, spec.Magnitude[f][b]-rowMeans[b])
		}
	}

	whitening, dewhitening, err := whiten(centered, nComponents)
	if err != nil {
		return nil, err
	}

	var z mat.Dense
	z.Mul(whitening, centered)

	unmixing, err := s.fastICA(ctx, &z, nComponents, frames)
	if err != nil {
		return nil, err
	}

	var sources mat.Dense
	sources.Mul(unmixing, &z)

	// mixing matrix in bin space: dewhitening * unmixing', since the
	// unmixing matrix is orthogonal after symmetric decorrelation
	var mixing mat.Dense
	mixing.Mul(dewhitening, unmixing.T())

	names := stemNames(nComponents)
	stems := make(map[string]audio.Buffer, nComponents)

	componentMags := make([][][]float64, nComponents)
	totals := make([][]float64, frames)
	for f := range totals {
		totals[f] = make([]float64, bins)
	}

	for c := 0; c < nComponents; c++ {
		componentMags[c] = make([][]float64, frames)
		for f := 0; f < frames; f++ {
			componentMags[c][f] = make([]float64, bins)
			for b := 0; b < bins; b++ {
				m := mixing.At(b, c)*sources.At(c, f) + rowMeans[b]/float64(nComponents)
				if m < 0 {
					m = 0
				}
				componentMags[c][f][b] = m
				totals[f][b] += m
			}
		}
	}

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
				mask := componentMags[c][f][b] / (totals[f][b] + nmfEpsilon)
				masked[f][b] = spec.Magnitude[f][b] * mask
			}
		}

		samples := stft.Synthesize(masked, spec.Phase, buffer.Len())
		stems[names[c]] = audio.New(samples, buffer.SampleRate())
	}

	return stems, nil
}

// whiten computes the PCA whitening projection onto the top k principal
// directions and its pseudo-inverse for projecting back.
func whiten(centered *mat.Dense, k int) (*mat.Dense, *mat.Dense, error) {
	bins, frames := centered.Dims()
	if k > bins {
		return nil, nil, cerr.Fields(cerr.F{
			"n_components": k,
			"bins":         bins,
		}).Wrap(seperrors.AlgorithmFailure).
			Error("More components requested than frequency bins")
	}

	var cov mat.SymDense
	cov.SymOuterK(1/float64(frames), centered)

	var eig mat.EigenSym
	if !eig.Factorize(&cov, true) {
		return nil, nil, cerr.Wrap(seperrors.AlgorithmFailure).
			Error("Covariance eigendecomposition did not converge")
	}

	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// eigenvalues come back ascending, take the trailing k
	whitening := mat.NewDense(k, bins, nil)
	dewhitening := mat.NewDense(bins, k, nil)
	for i := 0; i < k; i++ {
		idx := bins - 1 - i
		lambda := values[idx]
		if lambda < icaConvergence {
			return nil, nil, cerr.Field("eigenvalue", lambda).
				Wrap(seperrors.AlgorithmFailure).
				Error("Spectrogram is rank deficient for the requested component count")
		}

		scale := 1 / math.Sqrt(lambda)
		for b := 0; b < bins; b++ {
			whitening.Set(i, b, vectors.At(b, idx)*scale)
			dewhitening.Set(b, i, vectors.At(b, idx)*math.Sqrt(lambda))
		}
	}

	return whitening, dewhitening, nil
}

// fastICA estimates an orthogonal unmixing matrix with the symmetric
// fixed-point iteration and tanh nonlinearity.
func (s ICASeparator) fastICA(ctx context.Context, z *mat.Dense, k, frames int) (*mat.Dense, error) {
	rng := rand.New(rand.NewSource(s.config.Seed))

	w := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			w.Set(i, j, rng.NormFloat64())
		}
	}

	if err := decorrelate(w); err != nil {
		return nil, err
	}

	var wz, gwz mat.Dense
	prev := mat.NewDense(k, k, nil)

	for iter := 0; iter < s.config.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, cerr.Field("iteration", iter).
				Wrap(err).Mark(seperrors.AlgorithmFailure).
				Error("Context cancelled during component estimation")
		}

		prev.Copy(w)

		wz.Mul(w, z)

		gwz.CloneFrom(&wz)
		gwz.Apply(func(_, _ int, v float64) float64 {
			return math.Tanh(v)
		}, &gwz)

		// E[g(wx)x'] term
		var update mat.Dense
		update.Mul(&gwz, z.T())
		update.Scale(1/float64(frames), &update)

		// E[g'(wx)] w term, g'(u) = 1 - tanh(u)^2
		for i := 0; i < k; i++ {
			mean := 0.0
			for f := 0; f < frames; f++ {
				t := gwz.At(i, f)
				mean += 1 - t*t
			}
			mean /= float64(frames)

			for j := 0; j < k; j++ {
				update.Set(i, j, update.At(i, j)-mean*w.At(i, j))
			}
		}

		w.Copy(&update)
		if err := decorrelate(w); err != nil {
			return nil, err
		}

		if converged(w, prev) {
			break
		}
	}

	return w, nil
}

// decorrelate replaces w with (ww')^(-1/2) w, keeping the rows from
// collapsing onto the same component.
func decorrelate(w *mat.Dense) error {
	k, _ := w.Dims()

	var wwt mat.SymDense
	wwt.SymOuterK(1, w)

	var eig mat.EigenSym
	if !eig.Factorize(&wwt, true) {
		return cerr.Wrap(seperrors.AlgorithmFailure).
			Error("Decorrelation eigendecomposition did not converge")
	}

	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	invRoot := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		if values[i] < icaConvergence {
			return cerr.Field("eigenvalue", values[i]).
				Wrap(seperrors.AlgorithmFailure).
				Error("Unmixing estimate is singular")
		}

		scale := 1 / math.Sqrt(values[i])
		for r := 0; r < k; r++ {
			for c := 0; c < k; c++ {
				invRoot.Set(r, c, invRoot.At(r, c)+vectors.At(r, i)*scale*vectors.At(c, i))
			}
		}
	}

	var result mat.Dense
	result.Mul(invRoot, w)
	w.Copy(&result)

	return nil
}

func converged(w, prev *mat.Dense) bool {
	k, _ := w.Dims()

	// rows may flip sign between iterations, compare |w_i . prev_i|
	for i := 0; i < k; i++ {
		dot := 0.0
		for j := 0; j < k; j++ {
			dot += w.At(i, j) * prev.At(i, j)
		}
		if math.Abs(math.Abs(dot)-1) > icaConvergence {
			return false
		}
	}

	return true
}
