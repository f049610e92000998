package markov

import (
	"math"

	"github.com/apex/log"
	"github.com/stemforge/stemforge-be/src/shared/lib/cerr"
	"github.com/stemforge/stemforge-be/src/shared/separation/audio"
	"github.com/stemforge/stemforge-be/src/shared/separation/feature"
	"github.com/stemforge/stemforge-be/src/shared/separation/quantize"
	"github.com/stemforge/stemforge-be/src/shared/separation/seperrors"
	"github.com/stemforge/stemforge-be/src/shared/separation/spectral"
)

// SeparationModel bundles a trained transition model with the fitted
// quantizer and the feature configuration that produced its state
// alphabet. Lifecycle: untrained -> Train once -> read-only queries.
// Retraining requires a fresh instance.
type SeparationModel struct {
	Instrument    string
	FeatureConfig feature.Config

	quantizer  *quantize.Quantizer
	transition *TransitionModel

	trainingSamples int
}

func NewSeparationModel(instrument string, order, nStates int, featureConfig feature.Config) *SeparationModel {
	return &SeparationModel{
		Instrument:    instrument,
		FeatureConfig: featureConfig,
		quantizer:     quantize.New(nStates),
		transition:    NewTransitionModel(order, nStates),
	}
}

func (m *SeparationModel) Trained() bool {
	return m.transition.Trained()
}

func (m *SeparationModel) TrainingSamples() int {
	return m.trainingSamples
}

func (m *SeparationModel) Quantizer() *quantize.Quantizer {
	return m.quantizer
}

func (m *SeparationModel) Transition() *TransitionModel {
	return m.transition
}

// Train fits the quantizer on the whole corpus, then accumulates and
// finalizes transition statistics.
func (m *SeparationModel) Train(corpus []audio.Buffer) error {
	logger := log.WithFields(log.Fields{
		"instrument":  m.Instrument,
		"corpus_size": len(corpus),
	})
	logger.Info("Training separation model")

	if m.Trained() {
		return cerr.Field("instrument", m.Instrument).
			Error("Separation model is already trained")
	}

	if len(corpus) == 0 {
		return cerr.Field("instrument", m.Instrument).
			Error("Cannot train a separation model on an empty corpus")
	}

	matrices := make([]feature.Matrix, 0, len(corpus))
	for _, buffer := range corpus {
		matrix, err := feature.Extract(buffer, m.FeatureConfig)
		if err != nil {
			return cerr.Wrap(err).Error("Failed to extract training features")
		}
		matrices = append(matrices, matrix)
	}

	if err := m.quantizer.Fit(matrices); err != nil {
		return cerr.Wrap(err).Error("Failed to fit the state quantizer")
	}

	for _, matrix := range matrices {
		states, err := m.quantizer.Predict(matrix)
		if err != nil {
			return cerr.Wrap(err).Error("Failed to quantize training features")
		}
		m.transition.Train(states)
	}

	m.transition.Finalize()
	m.trainingSamples = len(corpus)

	logger.Info("Separation model training complete")
	return nil
}

// Score is the smoothed log probability that the buffer follows this
// instrument's temporal patterns.
func (m *SeparationModel) Score(buffer audio.Buffer) (float64, error) {
	states, err := m.stateSequence(buffer)
	if err != nil {
		return 0, err
	}

	return m.transition.Score(states)
}

// GenerateMask synthesizes a time-frequency mask shaped exactly like
// the given spectrogram. Per-frame weight is the mean outgoing
// transition probability of that frame's history, optionally binarized
// at threshold, median filtered across time, then broadcast across the
// frequency axis.
func (m *SeparationModel) GenerateMask(buffer audio.Buffer, spec FrameShape, threshold float64) ([][]float64, error) {
	states, err := m.stateSequence(buffer)
	if err != nil {
		return nil, err
	}

	order := m.transition.Order()
	frameProbs := []float64{}
	for i := order; i < len(states); i++ {
		frameProbs = append(frameProbs, m.transition.MeanOutgoing(states[i-order:i]))
	}

	frames := spec.TimeFrames()
	bins := spec.FreqBins()

	// correct any frame-count mismatch against the spectrogram: pad
	// with the mean probability or truncate, never emit a mismatched
	// shape
	if len(frameProbs) < frames {
		mean := meanOf(frameProbs)
		for len(frameProbs) < frames {
			frameProbs = append(frameProbs, mean)
		}
	} else if len(frameProbs) > frames {
		frameProbs = frameProbs[:frames]
	}

	if threshold > 0 {
		for i, p := range frameProbs {
			if p > threshold {
				frameProbs[i] = 1
			} else {
				frameProbs[i] = 0
			}
		}
	}

	frameProbs = spectral.MedianFilter1D(frameProbs, 5)

	mask := make([][]float64, frames)
	for f := range mask {
		row := make([]float64, bins)
		for b := range row {
			row[b] = frameProbs[f]
		}
		mask[f] = row
	}

	return mask, nil
}

// PatternStats summarizes the temporal structure of a buffer under this
// model's state alphabet.
type PatternStats struct {
	Entropy        float64 `json:"entropy"`
	Complexity     float64 `json:"complexity"`
	Predictability float64 `json:"predictability"`
	UniqueStates   int     `json:"unique_states"`
}

// AnalyzePatterns computes state distribution entropy and derived
// complexity/predictability statistics.
func (m *SeparationModel) AnalyzePatterns(buffer audio.Buffer) (PatternStats, error) {
	states, err := m.stateSequence(buffer)
	if err != nil {
		return PatternStats{}, err
	}

	if len(states) == 0 {
		return PatternStats{}, nil
	}

	histogram := map[int]int{}
	for _, s := range states {
		histogram[s]++
	}

	entropy := 0.0
	for _, count := range histogram {
		p := float64(count) / float64(len(states))
		entropy -= p * math.Log2(p)
	}

	transitionEntropy := 0.0
	order := m.transition.Order()
	for i := order; i < len(states); i++ {
		row := m.transition.codec.Encode(states[i-order : i])
		if m.transition.rowTotals[row] == 0 {
			continue
		}
		for _, p := range m.transition.probs[row] {
			if p > 0 {
				transitionEntropy -= p * math.Log2(p)
			}
		}
	}

	predictability := 1.0 - transitionEntropy/float64(len(states))
	if predictability < 0 {
		predictability = 0
	}

	return PatternStats{
		Entropy:        entropy,
		Complexity:     entropy / math.Log2(float64(m.transition.NStates())),
		Predictability: predictability,
		UniqueStates:   len(histogram),
	}, nil
}

func (m *SeparationModel) stateSequence(buffer audio.Buffer) (quantize.StateSequence, error) {
	if !m.Trained() {
		return nil, cerr.Field("instrument", m.Instrument).
			Wrap(seperrors.NotTrained).
			Error("Separation model must be trained before querying")
	}

	matrix, err := feature.Extract(buffer, m.FeatureConfig)
	if err != nil {
		return nil, cerr.Wrap(err).Error("Failed to extract features for query")
	}

	return m.quantizer.Predict(matrix)
}

// FrameShape is the slice of a spectrogram the mask generator needs.
type FrameShape interface {
	TimeFrames() int
	FreqBins() int
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}
