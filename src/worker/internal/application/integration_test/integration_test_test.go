package integration_test_test

import (
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stemforge/stemforge-be/src/shared/separation/audio"
	"github.com/stemforge/stemforge-be/src/shared/separation/modelstore"
	"github.com/stemforge/stemforge-be/src/shared/separation/orchestrator"
	"github.com/stemforge/stemforge-be/src/shared/separation/separator"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/integration_test/dummy"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/jobs/job_message"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/jobs/job_router"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/jobs/separate"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/jobs/start"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/jobs/train"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/progress"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/worker"
)

var _ = Describe("IntegrationTest", func() {
	var (
		jobID     string
		audioPath string
		outputDir string

		jobsQueue   *dummy.RabbitMQ
		eventsQueue *dummy.RabbitMQ

		queueWorker worker.QueueWorker
		run         func()
	)

	// drainEvents empties everything published so far off the events
	// queue without blocking.
	drainEvents := func() []job_message.Event {
		events := []job_message.Event{}
		for {
			select {
			case delivery := <-eventsQueue.MessageChannel:
				event := job_message.Event{}
				Expect(json.Unmarshal(delivery.Body, &event)).To(Succeed())
				events = append(events, event)
			default:
				return events
			}
		}
	}

	BeforeEach(func() {
		jobID = "integration-job"

		By("Writing the input mix to disk", func() {
			workDir, err := os.MkdirTemp("", "worker-integration-*")
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(func() {
				Expect(os.RemoveAll(workDir)).To(Succeed())
			})

			audioPath = filepath.Join(workDir, "mix.wav")
			file, err := os.Create(audioPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(audio.EncodeWAV(file, audio.SineMix([]float64{110, 440, 1760}, 2.0, 8000))).To(Succeed())
			Expect(file.Close()).To(Succeed())

			outputDir = filepath.Join(workDir, "stems")
		})

		By("Instantiating the queues", func() {
			jobsQueue = dummy.NewRabbitMQ()
			eventsQueue = dummy.NewRabbitMQ()
		})

		By("Instantiating the worker", func() {
			models := modelstore.NewMemoryStore()

			pipeline := orchestrator.New(orchestrator.Deps{
				Models: models,
				Sink:   progress.NewQueueSink(eventsQueue),
				Config: separator.Config{
					WindowSize:    512,
					HopSize:       256,
					Seed:          42,
					MaxIterations: 15,
				},
			})

			router := job_router.NewJobRouter(
				jobsQueue,
				eventsQueue,
				start.NewJobHandler(),
				separate.NewJobHandler(pipeline, outputDir),
				train.NewJobHandler(models),
			)

			queueWorker = worker.NewQueueWorker(jobsQueue, "test-queue", router)
		})

		By("Setting up the run routine", func() {
			run = func() {
				go func() {
					defer GinkgoRecover()
					err := queueWorker.Start()
					Expect(err).NotTo(HaveOccurred())
				}()

				startJobParams := start.JobParams{
					JobIdentifier: job_message.JobIdentifier{JobID: jobID},
					AudioFilePath: audioPath,
					Strategy:      "fast",
				}

				jsonBytes, err := json.Marshal(startJobParams)
				Expect(err).NotTo(HaveOccurred())

				err = jobsQueue.Publish(amqp091.Publishing{
					Type: start.JobType,
					Body: jsonBytes,
				})
				Expect(err).NotTo(HaveOccurred())
			}
		})
	})

	Describe("The whole separation flow succeeds", func() {
		It("gets 2 acks", func() {
			run()

			Eventually(func() int {
				return jobsQueue.AckCounter
			}, "20s").Should(Equal(2))
		})

		It("gets no nacks", func() {
			run()

			Eventually(func() int {
				return jobsQueue.AckCounter
			}, "20s").Should(Equal(2))

			Consistently(func() int {
				return jobsQueue.NackCounter
			}).Should(Equal(0))
		})

		It("writes the separated stems to the output dir", func() {
			run()

			Eventually(func() int {
				return jobsQueue.AckCounter
			}, "20s").Should(Equal(2))

			entries, err := os.ReadDir(filepath.Join(outputDir, jobID))
			Expect(err).NotTo(HaveOccurred())
			Expect(len(entries)).To(BeNumerically(">=", 2))

			for _, entry := range entries {
				file, err := os.Open(filepath.Join(outputDir, jobID, entry.Name()))
				Expect(err).NotTo(HaveOccurred())

				stem, err := audio.DecodeWAV(file)
				Expect(file.Close()).To(Succeed())
				Expect(err).NotTo(HaveOccurred())
				Expect(stem.Len()).To(Equal(2 * 8000))
			}
		})

		It("publishes progress along the way and a terminal result event", func() {
			run()

			Eventually(func() int {
				return jobsQueue.AckCounter
			}, "20s").Should(Equal(2))

			events := drainEvents()
			Expect(events).NotTo(BeEmpty())

			progressCount := 0
			resultCount := 0
			for _, event := range events {
				Expect(event.JobID).To(Equal(jobID))

				switch event.Event {
				case job_message.ProgressEventType:
					progressCount++
				case job_message.ResultEventType:
					resultCount++
				}
			}

			Expect(progressCount).To(BeNumerically(">=", 2))
			Expect(resultCount).To(Equal(1))
		})
	})

	Describe("The input file is gone", func() {
		BeforeEach(func() {
			Expect(os.Remove(audioPath)).To(Succeed())
		})

		It("nacks the start job and publishes a failure event for the job", func() {
			run()

			Eventually(func() int {
				return jobsQueue.NackCounter
			}, "5s").Should(Equal(1))

			Eventually(func() bool {
				for _, event := range drainEvents() {
					if event.Event == job_message.FailureEventType && event.JobID == jobID {
						return true
					}
				}
				return false
			}, "5s").Should(BeTrue())
		})
	})
})
