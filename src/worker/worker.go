package main

import (
	"path"

	"github.com/stemforge/stemforge-be/src/shared/config"
	"github.com/stemforge/stemforge-be/src/shared/config/dev"
	"github.com/stemforge/stemforge-be/src/shared/config/envvar"
	"github.com/stemforge/stemforge-be/src/shared/config/local"
	"github.com/stemforge/stemforge-be/src/shared/lib/env"
	"github.com/stemforge/stemforge-be/src/worker/application"
)

func main() {
	var appConfig application.Config

	switch env.Get() {
	case env.Production:
		appConfig = application.Config{
			RabbitMQURL:       envvar.MustGet(envvar.RABBITMQ_URL),
			JobsQueueName:     envvar.MustGet(envvar.RABBITMQ_QUEUE_NAME),
			EventsQueueName:   envvar.MustGet(envvar.RABBITMQ_EVENTS_QUEUE_NAME),
			ModelDirPath:      envvar.MustGet(envvar.MODEL_DIR_PATH),
			StemsOutputDir:    envvar.MustGet(envvar.STEMS_OUTPUT_DIR),
			SeparationWorkDir: envvar.MustGet(envvar.SEPARATION_WORKING_DIR),
			DemucsBinPath:     envvar.GetOr(envvar.DEMUCS_BIN_PATH, config.DemucsPath()),
		}

	case env.Development:
		appConfig = application.Config{
			RabbitMQURL:       dev.RabbitMQHost,
			JobsQueueName:     dev.RabbitMQQueueName,
			EventsQueueName:   dev.RabbitMQEventsQueueName,
			ModelDirPath:      path.Join(local.ProjectRoot(), "src/worker", dev.ModelDirName),
			StemsOutputDir:    path.Join(local.ProjectRoot(), "src/worker", dev.StemsDirName),
			SeparationWorkDir: path.Join(local.ProjectRoot(), "src/worker", dev.WorkingDirName),
			DemucsBinPath:     envvar.GetOr(envvar.DEMUCS_BIN_PATH, config.DemucsPath()),
		}

	default:
		panic("Unexpected environment")
	}

	app := application.NewApp(appConfig)
	if err := app.Start(); err != nil {
		panic(err)
	}
}
