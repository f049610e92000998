package seperrors

import (
	"github.com/cockroachdb/errors"
)

// Sentinels for the failure modes of the separation pipeline. Callers
// match them with errors.Is; messages stay free-form.
var (
	// Validation rejects malformed input before any stage runs.
	Validation = errors.New("input validation failed")

	// Extraction covers feature extraction failures on malformed audio.
	Extraction = errors.New("feature extraction failed")

	// AlgorithmUnavailable means an optional capability (e.g. a neural
	// separator binary) is absent. Never fatal on its own.
	AlgorithmUnavailable = errors.New("separation algorithm unavailable")

	// AlgorithmFailure means one separator blew up. Triggers fallback,
	// fatal only once every candidate is exhausted.
	AlgorithmFailure = errors.New("separation algorithm failed")

	// NotTrained is returned when querying an unfitted model or quantizer.
	NotTrained = errors.New("model is not trained")

	// Persistence covers corrupt or missing model records. Degrades to
	// "no model available".
	Persistence = errors.New("model persistence failed")
)
