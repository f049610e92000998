package application

import (
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stemforge/stemforge-be/src/shared/lib/cerr"
	"github.com/stemforge/stemforge-be/src/shared/lib/executor"
	"github.com/stemforge/stemforge-be/src/shared/lib/rabbitmq"
	"github.com/stemforge/stemforge-be/src/shared/separation/modelstore"
	"github.com/stemforge/stemforge-be/src/shared/separation/orchestrator"
	"github.com/stemforge/stemforge-be/src/shared/separation/separator"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/jobs/job_router"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/jobs/separate"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/jobs/start"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/jobs/train"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/progress"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/worker"
)

func must[T any](t T, err error) T {
	if err != nil {
		panic(err)
	}

	return t
}

type App struct {
	worker worker.QueueWorker
}

type Config struct {
	RabbitMQURL     string
	JobsQueueName   string
	EventsQueueName string

	ModelDirPath      string
	StemsOutputDir    string
	SeparationWorkDir string

	// DemucsBinPath empty means the neural engine is absent and the
	// built-in algorithms carry every job.
	DemucsBinPath   string
	ExternalTimeout time.Duration
}

func NewApp(config Config) App {
	consumerConn := must(amqp091.Dial(config.RabbitMQURL))

	return App{
		worker: newWorker(config, consumerConn),
	}
}

func (a *App) Start() error {
	err := a.worker.Start()
	if err != nil {
		return cerr.Wrap(err).Error("Failed to start worker")
	}

	return nil
}

func (a *App) Stop() {
	a.worker.Stop()
}

func newWorker(config Config, consumerConn *amqp091.Connection) worker.QueueWorker {
	jobPublisher := must(rabbitmq.NewQueuePublisher(config.RabbitMQURL, config.JobsQueueName))
	eventsPublisher := must(rabbitmq.NewQueuePublisher(config.RabbitMQURL, config.EventsQueueName))

	queueWorker := must(worker.NewQueueWorkerFromConnection(
		consumerConn,
		config.JobsQueueName,
		newJobRouter(config, jobPublisher, eventsPublisher)))

	return queueWorker
}

func newJobRouter(config Config, jobPublisher rabbitmq.Publisher, eventsPublisher rabbitmq.Publisher) job_router.JobRouter {
	models := must(modelstore.NewDirStore(config.ModelDirPath))

	pipeline := orchestrator.New(orchestrator.Deps{
		External: newExternalSeparator(config),
		Models:   models,
		Sink:     progress.NewQueueSink(eventsPublisher),
		Config:   separator.DefaultConfig(),
	})

	return job_router.NewJobRouter(
		jobPublisher,
		eventsPublisher,
		start.NewJobHandler(),
		separate.NewJobHandler(pipeline, config.StemsOutputDir),
		train.NewJobHandler(models),
	)
}

func newExternalSeparator(config Config) separator.Separator {
	if config.DemucsBinPath == "" {
		return nil
	}

	return must(separator.NewExternalSeparator(
		config.DemucsBinPath,
		config.SeparationWorkDir,
		executor.BinaryFileExecutor{},
		config.ExternalTimeout,
	))
}
