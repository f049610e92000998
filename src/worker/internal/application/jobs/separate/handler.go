package separate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/stemforge/stemforge-be/src/shared/lib/cerr"
	"github.com/stemforge/stemforge-be/src/shared/separation/audio"
	"github.com/stemforge/stemforge-be/src/shared/separation/orchestrator"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/jobs/job_message"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

const JobType string = "separation_job"
const ErrorMessage string = "Failed to separate the audio into stems"

//counterfeiter:generate . Pipeline
type Pipeline interface {
	Run(ctx context.Context, request orchestrator.Request) (orchestrator.Result, error)
}

//counterfeiter:generate . SeparateJobHandler
type SeparateJobHandler interface {
	HandleSeparateJob(ctx context.Context, message []byte) (Outcome, error)
}

type JobParams struct {
	job_message.JobIdentifier
	AudioFilePath string   `json:"audio_file_path"`
	Stems         []string `json:"stems,omitempty"`
	Strategy      string   `json:"strategy,omitempty"`
	MaskThreshold float64  `json:"mask_threshold,omitempty"`
	ApplyGate     bool     `json:"apply_gate,omitempty"`
}

// Outcome is what the router publishes back after a separation run.
// StemPaths maps stem names to the WAV files written for them.
type Outcome struct {
	JobID          string             `json:"job_id"`
	Status         string             `json:"status"`
	MethodUsed     string             `json:"method_used"`
	StemPaths      map[string]string  `json:"stem_paths"`
	Quality        map[string]float64 `json:"quality"`
	Warnings       []string           `json:"warnings,omitempty"`
	SampleRate     int                `json:"sample_rate"`
	ProcessingTime time.Duration      `json:"processing_time"`
}

func NewJobHandler(pipeline Pipeline, outputDir string) JobHandler {
	return JobHandler{
		pipeline:  pipeline,
		outputDir: outputDir,
	}
}

type JobHandler struct {
	pipeline  Pipeline
	outputDir string
}

func (s JobHandler) HandleSeparateJob(ctx context.Context, message []byte) (Outcome, error) {
	params, err := unmarshalMessage(message)
	if err != nil {
		return Outcome{}, cerr.Wrap(err).Error("Failed to unmarshal message JSON")
	}

	errctx := cerr.Field("job_id", params.JobID).
		Field("audio_file_path", params.AudioFilePath)

	buffer, err := readAudioFile(params.AudioFilePath)
	if err != nil {
		return Outcome{}, errctx.Wrap(err).Error("Failed to read the audio file")
	}

	result, err := s.pipeline.Run(ctx, orchestrator.Request{
		JobID:         params.JobID,
		Buffer:        buffer,
		Stems:         params.Stems,
		Strategy:      orchestrator.Strategy(params.Strategy),
		MaskThreshold: params.MaskThreshold,
		ApplyGate:     params.ApplyGate,
	})
	if err != nil {
		return Outcome{}, errctx.Wrap(err).Error("Separation pipeline failed")
	}

	stemPaths := map[string]string{}
	if result.Status == orchestrator.StatusCompleted {
		stemPaths, err = s.writeStems(params.JobID, result.Stems)
		if err != nil {
			return Outcome{}, errctx.Wrap(err).Error("Failed to write the separated stems")
		}
	}

	return Outcome{
		JobID:          params.JobID,
		Status:         string(result.Status),
		MethodUsed:     result.MethodUsed,
		StemPaths:      stemPaths,
		Quality:        result.Quality,
		Warnings:       result.Warnings,
		SampleRate:     result.SampleRate,
		ProcessingTime: result.ProcessingTime,
	}, nil
}

func (s JobHandler) writeStems(jobID string, stems map[string]audio.Buffer) (map[string]string, error) {
	jobDir := filepath.Join(s.outputDir, jobID)
	if err := os.MkdirAll(jobDir, os.ModePerm); err != nil {
		return nil, cerr.Field("dir", jobDir).Wrap(err).
			Error("Failed to create the stems output dir")
	}

	paths := map[string]string{}
	for name, stem := range stems {
		path := filepath.Join(jobDir, name+".wav")

		file, err := os.Create(path)
		if err != nil {
			return nil, cerr.Field("path", path).Wrap(err).
				Error("Failed to create a stem file")
		}

		err = audio.EncodeWAV(file, stem)
		closeErr := file.Close()
		if err != nil {
			return nil, cerr.Field("path", path).Wrap(err).
				Error("Failed to write a stem file")
		}
		if closeErr != nil {
			return nil, cerr.Field("path", path).Wrap(closeErr).
				Error("Failed to flush a stem file")
		}

		paths[name] = path
	}

	return paths, nil
}

func readAudioFile(path string) (audio.Buffer, error) {
	file, err := os.Open(path)
	if err != nil {
		return audio.Buffer{}, cerr.Field("path", path).Wrap(err).
			Error("Failed to open the audio file")
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

	if params.AudioFilePath == "" {
		return JobParams{}, errctx.Error("Missing audio file path")
	}

	return params, nil
}
