package env

import (
	"os"

	"github.com/apex/log"
	"github.com/joho/godotenv"
)

type Environment string

const (
	Production  Environment = "production"
	Development Environment = "development"
	Test        Environment = "test"
)

const environmentKey = "ENVIRONMENT"

// Get resolves the runtime environment, defaulting to development.
// In development a .env file is loaded once if present.
func Get() Environment {
	switch os.Getenv(environmentKey) {
	case string(Production):
		return Production
	case string(Test):
		return Test
	default:
		loadDotEnv()
		return Development
	}
}

var dotEnvLoaded = false

func loadDotEnv() {
	if dotEnvLoaded {
		return
	}
	dotEnvLoaded = true

	if err := godotenv.Load(); err != nil {
		log.WithError(err).Debug("No .env file loaded")
	}
}
