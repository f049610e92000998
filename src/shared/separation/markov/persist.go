package markov

import (
	"encoding/json"
	"io"

	"github.com/stemforge/stemforge-be/src/shared/lib/cerr"
	"github.com/stemforge/stemforge-be/src/shared/separation/feature"
	"github.com/stemforge/stemforge-be/src/shared/separation/quantize"
	"github.com/stemforge/stemforge-be/src/shared/separation/seperrors"
)

// Record is the wire form of a trained SeparationModel. Probabilities
// and centroids are flattened row-major so the record stays a flat JSON
// document. Save then Load must reproduce identical query results.
type Record struct {
	Instrument      string    `json:"instrument"`
	Order           int       `json:"order"`
	NStates         int       `json:"n_states"`
	FeatureFamily   string    `json:"feature_family"`
	WindowSize      int       `json:"window_size"`
	HopSize         int       `json:"hop_size"`
	Probabilities   []float64 `json:"transition_probabilities"`
	RowTotals       []float64 `json:"row_totals"`
	Mean            []float64 `json:"normalization_mean"`
	Scale           []float64 `json:"normalization_scale"`
	Centroids       []float64 `json:"cluster_centroids"`
	CentroidDims    int       `json:"centroid_dims"`
	TrainingSamples int       `json:"training_samples"`
	Trained         bool      `json:"trained"`
}

// ToRecord snapshots a trained model for persistence.
func (m *SeparationModel) ToRecord() (Record, error) {
	if !m.Trained() {
		return Record{}, cerr.Field("instrument", m.Instrument).
			Wrap(seperrors.NotTrained).
			Error("Cannot persist an untrained separation model")
	}

	centroids := m.quantizer.Centroids()
	dims := 0
	if len(centroids) > 0 {
		dims = len(centroids[0])
	}

	flatCentroids := make([]float64, 0, len(centroids)*dims)
	for _, centroid := range centroids {
		flatCentroids = append(flatCentroids, centroid...)
	}

	probs := m.transition.Probabilities()
	flatProbs := make([]float64, 0, len(probs)*m.transition.NStates())
	for _, row := range probs {
		flatProbs = append(flatProbs, row...)
	}

	return Record{
		Instrument:      m.Instrument,
		Order:           m.transition.Order(),
		NStates:         m.transition.NStates(),
		FeatureFamily:   string(m.FeatureConfig.Family),
		WindowSize:      m.FeatureConfig.WindowSize,
		HopSize:         m.FeatureConfig.HopSize,
		Probabilities:   flatProbs,
		RowTotals:       append([]float64{}, m.transition.RowTotals()...),
		Mean:            append([]float64{}, m.quantizer.Mean()...),
		Scale:           append([]float64{}, m.quantizer.Scale()...),
		Centroids:       flatCentroids,
		CentroidDims:    dims,
		TrainingSamples: m.trainingSamples,
		Trained:         true,
	}, nil
}

// FromRecord rebuilds a queryable model from a persisted record.
func FromRecord(record Record) (*SeparationModel, error) {
	errctx := cerr.Field("instrument", record.Instrument)

	if !record.Trained {
		return nil, errctx.Wrap(seperrors.Persistence).
			Error("Model record is not marked as trained")
	}

	if record.NStates <= 0 || record.Order <= 0 {
		return nil, errctx.Wrap(seperrors.Persistence).
			Error("Model record has invalid dimensions")
	}

	codec := NewHistoryCodec(record.Order, record.NStates)
	if len(record.Probabilities) != codec.Size()*record.NStates {
		return nil, errctx.Wrap(seperrors.Persistence).
			Error("Transition table size does not match order and state count")
	}

	if len(record.RowTotals) != codec.Size() {
		return nil, errctx.Wrap(seperrors.Persistence).
			Error("Row totals size does not match the history space")
	}

	if record.CentroidDims <= 0 ||
		len(record.Centroids) != record.NStates*record.CentroidDims {
		return nil, errctx.Wrap(seperrors.Persistence).
			Error("Centroid block size does not match the state count")
	}

	probs := make([][]float64, codec.Size())
	for h := range probs {
		probs[h] = record.Probabilities[h*record.NStates : (h+1)*record.NStates]
	}

	centroids := make([][]float64, record.NStates)
	for c := range centroids {
		centroids[c] = record.Centroids[c*record.CentroidDims : (c+1)*record.CentroidDims]
	}

	model := &SeparationModel{
		Instrument: record.Instrument,
		FeatureConfig: feature.Config{
			Family:     feature.Family(record.FeatureFamily),
			WindowSize: record.WindowSize,
			HopSize:    record.HopSize,
		},
		quantizer:       quantize.Restore(record.Mean, record.Scale, centroids),
		transition:      RestoreTransitionModel(record.Order, record.NStates, probs, record.RowTotals),
		trainingSamples: record.TrainingSamples,
	}

	return model, nil
}

// Save writes the model as JSON.
func (m *SeparationModel) Save(w io.Writer) error {
	record, err := m.ToRecord()
	if err != nil {
		return err
	}

	if err := json.NewEncoder(w).Encode(record); err != nil {
		return cerr.Field("instrument", m.Instrument).
			Wrap(err).Mark(seperrors.Persistence).
			Error("Failed to encode model record")
	}

	return nil
}

// Load reads a JSON model record and rebuilds the model.
func Load(r io.Reader) (*SeparationModel, error) {
	record := Record{}
	if err := json.NewDecoder(r).Decode(&record); err != nil {
		return nil, cerr.Wrap(err).Mark(seperrors.Persistence).
			Error("Failed to decode model record")
	}

	return FromRecord(record)
}
