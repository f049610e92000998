package start

import (
	"encoding/json"
	"os"

	"github.com/stemforge/stemforge-be/src/shared/lib/cerr"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/jobs/job_message"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

const JobType string = "start_job"
const ErrorMessage string = "Failed to start processing the separation request"

//counterfeiter:generate . StartJobHandler
type StartJobHandler interface {
	HandleStartJob(message []byte) (JobParams, error)
}

type JobParams struct {
	job_message.JobIdentifier
	AudioFilePath string   `json:"audio_file_path"`
	Stems         []string `json:"stems,omitempty"`
	Strategy      string   `json:"strategy,omitempty"`
}

func NewJobHandler() JobHandler {
	return JobHandler{}
}

type JobHandler struct{}

// HandleStartJob validates that the request is actionable before the
// expensive separation job gets enqueued.
func (d JobHandler) HandleStartJob(message []byte) (JobParams, error) {
	params, err := unmarshalMessage(message)
	if err != nil {
		return JobParams{}, cerr.Wrap(err).Error("Failed to unmarshal message JSON")
	}

	errctx := cerr.Field("job_id", params.JobID).
		Field("audio_file_path", params.AudioFilePath)

	info, err := os.Stat(params.AudioFilePath)
	if err != nil {
		return JobParams{}, errctx.Wrap(err).Error("Audio file is not readable")
	}

	if info.IsDir() || info.Size() == 0 {
		return JobParams{}, errctx.Error("Audio file is empty or not a file")
	}

	return params, nil
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

	if params.AudioFilePath == "" {
		return JobParams{}, errctx.Error("Missing audio file path")
	}

	return params, nil
}
