package markov

import (
	"math"

	"github.com/stemforge/stemforge-be/src/shared/lib/cerr"
	"github.com/stemforge/stemforge-be/src/shared/separation/quantize"
	"github.com/stemforge/stemforge-be/src/shared/separation/seperrors"
)

const (
	DefaultOrder = 2

	// Laplace smoothing constant for unseen transitions
	smoothing = 1e-10
)

// TransitionModel is an order-k Markov table over the quantized state
// alphabet. Counts accumulate during training; Finalize normalizes each
// observed row into a probability distribution. Queries smooth unseen
// histories rather than returning zero.
type TransitionModel struct {
	order   int
	nStates int
	codec   HistoryCodec

	counts    [][]float64
	rowTotals []float64
	probs     [][]float64
	trained   bool
}

func NewTransitionModel(order, nStates int) *TransitionModel {
	codec := NewHistoryCodec(order, nStates)

	counts := make([][]float64, codec.Size())
	for i := range counts {
		counts[i] = make([]float64, nStates)
	}

	return &TransitionModel{
		order:     order,
		nStates:   nStates,
		codec:     codec,
		counts:    counts,
		rowTotals: make([]float64, codec.Size()),
	}
}

// RestoreTransitionModel rebuilds a finalized model from persisted
// probabilities and row totals.
func RestoreTransitionModel(order, nStates int, probs [][]float64, rowTotals []float64) *TransitionModel {
	m := NewTransitionModel(order, nStates)
	m.probs = probs
	m.rowTotals = rowTotals

	for h := range probs {
		for s, p := range probs[h] {
			m.counts[h][s] = p * rowTotals[h]
		}
	}

	m.trained = true
	return m
}

func (m *TransitionModel) Order() int {
	return m.order
}

func (m *TransitionModel) NStates() int {
	return m.nStates
}

func (m *TransitionModel) Trained() bool {
	return m.trained
}

// Probabilities exposes the normalized rows for persistence. Nil until
// Finalize has run.
func (m *TransitionModel) Probabilities() [][]float64 {
	return m.probs
}

func (m *TransitionModel) RowTotals() []float64 {
	return m.rowTotals
}

// Train accumulates transition counts from one state sequence. May be
// called once per training sequence before Finalize.
func (m *TransitionModel) Train(states quantize.StateSequence) {
	for i := m.order; i < len(states); i++ {
		row := m.codec.Encode(states[i-m.order : i])
		m.counts[row][states[i]]++
		m.rowTotals[row]++
	}
}

// Finalize normalizes every observed row to sum to 1 and freezes the
// model for querying.
func (m *TransitionModel) Finalize() {
	m.probs = make([][]float64, len(m.counts))
	for h := range m.counts {
		m.probs[h] = make([]float64, m.nStates)
		if m.rowTotals[h] == 0 {
			continue
		}
		for s := range m.counts[h] {
			m.probs[h][s] = m.counts[h][s] / m.rowTotals[h]
		}
	}

	m.trained = true
}

// Score sums smoothed log transition probabilities over the sequence.
// Sequences shorter than order+1 observe no transitions and score 0 by
// convention.
func (m *TransitionModel) Score(states quantize.StateSequence) (float64, error) {
	if !m.trained {
		return 0, cerr.Wrap(seperrors.NotTrained).
			Error("Transition model must be trained before scoring")
	}

	if len(states) < m.order+1 {
		return 0, nil
	}

	logProb := 0.0
	for i := m.order; i < len(states); i++ {
		row := m.codec.Encode(states[i-m.order : i])
		prob := (m.counts[row][states[i]] + smoothing) /
			(m.rowTotals[row] + smoothing*float64(m.nStates))
		logProb += math.Log(prob)
	}

	return logProb, nil
}

// MeanOutgoing is the mean next-state probability for the history
// ending at position i. Unobserved histories fall back to the uniform
// distribution's mean.
func (m *TransitionModel) MeanOutgoing(history quantize.StateSequence) float64 {
	row := m.codec.Encode(history)
	if m.rowTotals[row] == 0 {
		return 1.0 / float64(m.nStates)
	}

	sum := 0.0
	for _, p := range m.probs[row] {
		sum += p
	}

	return sum / float64(m.nStates)
}
