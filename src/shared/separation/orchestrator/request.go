package orchestrator

import (
	"time"

	"github.com/stemforge/stemforge-be/src/shared/separation/audio"
	"github.com/stemforge/stemforge-be/src/shared/separation/markov"
)

// Strategy picks how aggressively the pipeline trades time for quality.
type Strategy string

const (
	// StrategyAuto lets the orchestrator pick based on the input.
	StrategyAuto Strategy = "auto"

	// StrategyFast runs the cheapest general-purpose algorithm.
	StrategyFast Strategy = "fast"

	// StrategyBalanced splits harmonic from percussive content first,
	// then factorizes only the harmonic part.
	StrategyBalanced Strategy = "balanced"

	// StrategyQuality prefers the neural engine and the heavier
	// statistical algorithms.
	StrategyQuality Strategy = "quality"
)

// Request describes one separation job.
type Request struct {
	JobID  string
	Buffer audio.Buffer

	// Stems restricts the output to the named stems. Empty means all
	// canonical stems.
	Stems []string

	Strategy Strategy

	// MaskThreshold binarizes refinement masks when positive.
	MaskThreshold float64

	// ApplyGate enables the gentle post-separation noise gate.
	ApplyGate bool
}

// Analysis is what preprocessing learned about the input.
type Analysis struct {
	Duration       time.Duration `json:"duration"`
	SampleRate     int           `json:"sample_rate"`
	RMS            float64       `json:"rms"`
	Peak           float64       `json:"peak"`
	DynamicRangeDB float64       `json:"dynamic_range_db"`
}

// Result is the terminal outcome of a job. Stems and Quality are only
// populated on COMPLETED.
type Result struct {
	JobID  string
	Status Status

	Stems    map[string]audio.Buffer
	Quality  map[string]float64
	Patterns map[string]markov.PatternStats

	MethodUsed     string
	ProcessingTime time.Duration
	SampleRate     int
	Analysis       Analysis

	// Warnings records the non-fatal trouble along the way: skipped
	// algorithms, failed refinements, requested stems that could not be
	// produced. A result can be COMPLETED and still carry warnings.
	Warnings []string
}
