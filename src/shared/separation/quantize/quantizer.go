package quantize

import (
	"math"
	"math/rand"

	"github.com/stemforge/stemforge-be/src/shared/lib/cerr"
	"github.com/stemforge/stemforge-be/src/shared/separation/feature"
	"github.com/stemforge/stemforge-be/src/shared/separation/seperrors"
)

const (
	DefaultStates = 16

	// fixed seed keeps fitting deterministic for a fixed corpus
	clusterSeed   = 42
	maxIterations = 100
)

// StateSequence is one discrete state id per feature frame.
type StateSequence []int

// Quantizer discretizes continuous feature vectors into a finite state
// alphabet. Lifecycle: untrained -> Fit once -> read-only Predict.
type Quantizer struct {
	nStates int

	mean      []float64
	scale     []float64
	centroids [][]float64
	trained   bool
}

func New(nStates int) *Quantizer {
	return &Quantizer{nStates: nStates}
}

// Restore rebuilds a fitted quantizer from persisted statistics.
func Restore(mean, scale []float64, centroids [][]float64) *Quantizer {
	return &Quantizer{
		nStates:   len(centroids),
		mean:      mean,
		scale:     scale,
		centroids: centroids,
		trained:   true,
	}
}

func (q *Quantizer) NStates() int {
	return q.nStates
}

func (q *Quantizer) Trained() bool {
	return q.trained
}

// Mean and Scale expose the normalization statistics for persistence.
func (q *Quantizer) Mean() []float64 {
	return q.mean
}

func (q *Quantizer) Scale() []float64 {
	return q.scale
}

func (q *Quantizer) Centroids() [][]float64 {
	return q.centroids
}

// Fit learns corpus-wide normalization statistics and cluster centroids.
func (q *Quantizer) Fit(corpus []feature.Matrix) error {
	frames := [][]float64{}
	for _, matrix := range corpus {
		frames = append(frames, matrix.Frames...)
	}

	if len(frames) == 0 {
		return cerr.Error("Cannot fit a quantizer on an empty corpus")
	}

	dims := len(frames[0])
	q.mean, q.scale = standardStats(frames, dims)

	normalized := make([][]float64, len(frames))
	for i, frame := range frames {
		normalized[i] = q.normalize(frame)
	}

	q.centroids = kMeans(normalized, q.nStates)
	q.trained = true

	return nil
}

// Predict assigns each frame to its nearest centroid. Deterministic
// once fitted.
func (q *Quantizer) Predict(matrix feature.Matrix) (StateSequence, error) {
	if !q.trained {
		return nil, cerr.Wrap(seperrors.NotTrained).
			Error("Quantizer must be fitted before prediction")
	}

	states := make(StateSequence, len(matrix.Frames))
	for i, frame := range matrix.Frames {
		states[i] = q.nearest(q.normalize(frame))
	}

	return states, nil
}

func (q *Quantizer) normalize(frame []float64) []float64 {
	out := make([]float64, len(frame))
	for i := range frame {
		if i >= len(q.mean) {
			break
		}
		out[i] = (frame[i] - q.mean[i]) / q.scale[i]
	}

	return out
}

func (q *Quantizer) nearest(frame []float64) int {
	best := 0
	bestDist := math.Inf(1)
	for c, centroid := range q.centroids {
		dist := squaredDistance(frame, centroid)
		if dist < bestDist {
			bestDist = dist
			best = c
		}
	}

	return best
}

func standardStats(frames [][]float64, dims int) ([]float64, []float64) {
	mean := make([]float64, dims)
	scale := make([]float64, dims)

	for _, frame := range frames {
		for d := 0; d < dims; d++ {
			mean[d] += frame[d]
		}
	}
	for d := range mean {
		mean[d] /= float64(len(frames))
	}

	for _, frame := range frames {
		for d := 0; d < dims; d++ {
			diff := frame[d] - mean[d]
			scale[d] += diff * diff
		}
	}
	for d := range scale {
		scale[d] = math.Sqrt(scale[d] / float64(len(frames)))
		if scale[d] == 0 {
			// constant dimension, avoid dividing by zero
			scale[d] = 1
		}
	}

	return mean, scale
}

// kMeans is plain Lloyd's algorithm with seeded random init. Always
// returns exactly k centroids, duplicating frames when the corpus has
// fewer distinct points than clusters.
func kMeans(frames [][]float64, k int) [][]float64 {
	rng := rand.New(rand.NewSource(clusterSeed))
	dims := len(frames[0])

	centroids := make([][]float64, k)
	for c := range centroids {
		centroids[c] = append([]float64{}, frames[rng.Intn(len(frames))]...)
	}

	assignment := make([]int, len(frames))
	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, frame := range frames {
			best := 0
			bestDist := math.Inf(1)
			for c, centroid := range centroids {
				dist := squaredDistance(frame, centroid)
				if dist < bestDist {
					bestDist = dist
					best = c
				}
			}
			if assignment[i] != best {
				assignment[i] = best
				changed = true
			}
		}

		if !changed && iter > 0 {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, frame := range frames {
			c := assignment[i]
			counts[c]++
			for d, v := range frame {
				sums[c][d] += v
			}
		}

		for c := range centroids {
			if counts[c] == 0 {
				// reseed empty clusters deterministically
				centroids[c] = append([]float64{}, frames[rng.Intn(len(frames))]...)
				continue
			}
			for d := range centroids[c] {
				centroids[c][d] = sums[c][d] / float64(counts[c])
			}
		}
	}

	return centroids
}

func squaredDistance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		if i >= len(b) {
			break
		}
		diff := a[i] - b[i]
		sum += diff * diff
	}

	return sum
}
