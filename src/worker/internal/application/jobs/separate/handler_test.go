package separate_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stemforge/stemforge-be/src/shared/separation/audio"
	"github.com/stemforge/stemforge-be/src/shared/separation/orchestrator"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/integration_test/dummy"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/jobs/job_message"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/jobs/separate"
)

var _ = Describe("HandleSeparateJob", func() {
	var (
		pipeline  *dummy.Pipeline
		handler   separate.JobHandler
		workDir   string
		outputDir string
		audioPath string
	)

	BeforeEach(func() {
		var err error
		workDir, err = os.MkdirTemp("", "separate-job-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() {
			Expect(os.RemoveAll(workDir)).To(Succeed())
		})

		audioPath = filepath.Join(workDir, "mix.wav")
		file, err := os.Create(audioPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(audio.EncodeWAV(file, audio.SineMix([]float64{220, 880}, 1.0, 8000))).To(Succeed())
		Expect(file.Close()).To(Succeed())

		outputDir = filepath.Join(workDir, "stems")

		pipeline = dummy.NewPipeline()
		pipeline.Result = orchestrator.Result{
			Status: orchestrator.StatusCompleted,
			Stems: map[string]audio.Buffer{
				"vocals": audio.Sine(440, 0.5, 1.0, 8000),
				"other":  audio.Sine(220, 0.5, 1.0, 8000),
			},
			Quality:        map[string]float64{"vocals": 61.0, "other": 48.0},
			MethodUsed:     "harmonic_percussive",
			SampleRate:     8000,
			ProcessingTime: 120 * time.Millisecond,
		}

		handler = separate.NewJobHandler(pipeline, outputDir)
	})

	message := func(params separate.JobParams) []byte {
		body, err := json.Marshal(params)
		Expect(err).NotTo(HaveOccurred())
		return body
	}

	Describe("A completed run", func() {
		var outcome separate.Outcome

		BeforeEach(func() {
			var err error
			outcome, err = handler.HandleSeparateJob(context.Background(), message(separate.JobParams{
				JobIdentifier: job_message.JobIdentifier{JobID: "job-1"},
				AudioFilePath: audioPath,
				Stems:         []string{"vocals", "other"},
				Strategy:      "fast",
			}))
			Expect(err).NotTo(HaveOccurred())
		})

		It("hands the decoded audio and options to the pipeline", func() {
			Expect(pipeline.Requests).To(HaveLen(1))

			request := pipeline.Requests[0]
			Expect(request.JobID).To(Equal("job-1"))
			Expect(request.Buffer.Len()).To(Equal(8000))
			Expect(request.Stems).To(ConsistOf("vocals", "other"))
			Expect(request.Strategy).To(Equal(orchestrator.StrategyFast))
		})

		It("writes one WAV file per stem", func() {
			Expect(outcome.StemPaths).To(HaveLen(2))

			for name, path := range outcome.StemPaths {
				Expect(path).To(Equal(filepath.Join(outputDir, "job-1", name+".wav")))

				file, err := os.Open(path)
				Expect(err).NotTo(HaveOccurred())

				stem, err := audio.DecodeWAV(file)
				Expect(file.Close()).To(Succeed())
				Expect(err).NotTo(HaveOccurred())
				Expect(stem.Len()).To(Equal(8000))
			}
		})

		It("carries the pipeline metadata through", func() {
			Expect(outcome.JobID).To(Equal("job-1"))
			Expect(outcome.Status).To(Equal("COMPLETED"))
			Expect(outcome.MethodUsed).To(Equal("harmonic_percussive"))
			Expect(outcome.Quality).To(HaveKey("vocals"))
			Expect(outcome.SampleRate).To(Equal(8000))
		})
	})

	Describe("A cancelled run", func() {
		It("writes no stems", func() {
			pipeline.Result = orchestrator.Result{Status: orchestrator.StatusCancelled}

			outcome, err := handler.HandleSeparateJob(context.Background(), message(separate.JobParams{
				JobIdentifier: job_message.JobIdentifier{JobID: "job-2"},
				AudioFilePath: audioPath,
			}))

			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Status).To(Equal("CANCELLED"))
			Expect(outcome.StemPaths).To(BeEmpty())

			_, err = os.Stat(filepath.Join(outputDir, "job-2"))
			Expect(os.IsNotExist(err)).To(BeTrue())
		})
	})

	Describe("A failing pipeline", func() {
		It("surfaces the error", func() {
			pipeline.Err = errors.New("everything fell apart")

			_, err := handler.HandleSeparateJob(context.Background(), message(separate.JobParams{
				JobIdentifier: job_message.JobIdentifier{JobID: "job-3"},
				AudioFilePath: audioPath,
			}))

			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Bad input", func() {
		It("rejects a missing audio file", func() {
			_, err := handler.HandleSeparateJob(context.Background(), message(separate.JobParams{
				JobIdentifier: job_message.JobIdentifier{JobID: "job-4"},
				AudioFilePath: filepath.Join(workDir, "nope.wav"),
			}))

			Expect(err).To(HaveOccurred())
			Expect(pipeline.Requests).To(BeEmpty())
		})

		It("rejects malformed JSON", func() {
			_, err := handler.HandleSeparateJob(context.Background(), []byte("{not json"))
			Expect(err).To(HaveOccurred())
		})

		It("rejects a message without a job ID", func() {
			_, err := handler.HandleSeparateJob(context.Background(), message(separate.JobParams{
				AudioFilePath: audioPath,
			}))

			Expect(err).To(HaveOccurred())
		})
	})
})
