package train

import (
	"encoding/json"
	"os"

	"github.com/apex/log"
	"github.com/stemforge/stemforge-be/src/shared/lib/cerr"
	"github.com/stemforge/stemforge-be/src/shared/separation/audio"
	"github.com/stemforge/stemforge-be/src/shared/separation/feature"
	"github.com/stemforge/stemforge-be/src/shared/separation/markov"
	"github.com/stemforge/stemforge-be/src/shared/separation/modelstore"
	"github.com/stemforge/stemforge-be/src/shared/separation/quantize"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/jobs/job_message"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

const JobType string = "train_job"
const ErrorMessage string = "Failed to train the instrument model"

// the transition table has nStates^order rows, so unchecked message
// values can allocate without bound
const maxOrder = 3
const maxStates = 32

//counterfeiter:generate . TrainJobHandler
type TrainJobHandler interface {
	HandleTrainJob(message []byte) (Outcome, error)
}

type JobParams struct {
	job_message.JobIdentifier
	Instrument     string   `json:"instrument"`
	AudioFilePaths []string `json:"audio_file_paths"`
	Order          int      `json:"order,omitempty"`
	NStates        int      `json:"n_states,omitempty"`
}

type Outcome struct {
	JobID           string `json:"job_id"`
	Instrument      string `json:"instrument"`
	TrainingSamples int    `json:"training_samples"`
}

func NewJobHandler(models modelstore.Store) JobHandler {
	return JobHandler{
		models: models,
	}
}

type JobHandler struct {
	models modelstore.Store
}

// HandleTrainJob fits a fresh model for the instrument on the given
// corpus and replaces whatever the store held for it before.
func (t JobHandler) HandleTrainJob(message []byte) (Outcome, error) {
	params, err := unmarshalMessage(message)
	if err != nil {
		return Outcome{}, cerr.Wrap(err).Error("Failed to unmarshal message JSON")
	}

	errctx := cerr.Field("job_id", params.JobID).
		Field("instrument", params.Instrument)

	corpus := make([]audio.Buffer, 0, len(params.AudioFilePaths))
	for _, path := range params.AudioFilePaths {
		buffer, err := readAudioFile(path)
		if err != nil {
			return Outcome{}, errctx.Wrap(err).Error("Failed to read a training file")
		}
		corpus = append(corpus, buffer)
	}

	model := markov.NewSeparationModel(
		params.Instrument,
		params.Order,
		params.NStates,
		feature.DefaultConfig(),
	)

	if err := model.Train(corpus); err != nil {
		return Outcome{}, errctx.Wrap(err).Error("Model training failed")
	}

	if err := t.models.Put(model); err != nil {
		return Outcome{}, errctx.Wrap(err).Error("Failed to store the trained model")
	}

	log.WithFields(log.Fields{
		"job_id":           params.JobID,
		"instrument":       params.Instrument,
		"training_samples": model.TrainingSamples(),
	}).Info("Trained and stored instrument model")

	return Outcome{
		JobID:           params.JobID,
		Instrument:      params.Instrument,
		TrainingSamples: model.TrainingSamples(),
	}, nil
}

func readAudioFile(path string) (audio.Buffer, error) {
	file, err := os.Open(path)
	if err != nil {
		return audio.Buffer{}, cerr.Field("path", path).Wrap(err).
			Error("Failed to open a training file")
	}
	defer file.Close()

	return audio.DecodeWAV(file)
}

func unmarshalMessage(message []byte) (JobParams, error) {
	params := JobParams{}
	err := json.Unmarshal(message, &params)
	if err != nil {
		return JobParams{}, cerr.Wrap(err).Error("Failed to unmarshal message JSON")
	}

	errctx := cerr.Field("job_params", params)

	if params.JobID == "" {
		return JobParams{}, errctx.Error("Missing job ID")
	}

	if params.Instrument == "" {
		return JobParams{}, errctx.Error("Missing instrument")
	}

	if len(params.AudioFilePaths) == 0 {
		return JobParams{}, errctx.Error("Missing training file paths")
	}

	if params.Order <= 0 {
		params.Order = markov.DefaultOrder
	}
	if params.Order > maxOrder {
		params.Order = maxOrder
	}

	if params.NStates <= 0 {
		params.NStates = quantize.DefaultStates
	}
	if params.NStates > maxStates {
		params.NStates = maxStates
	}

	return params, nil
}
