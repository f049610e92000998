package envvar

import (
	"fmt"
	"os"
)

const (
	RABBITMQ_URL               = "RABBITMQ_URL"
	RABBITMQ_QUEUE_NAME        = "RABBITMQ_QUEUE_NAME"
	RABBITMQ_EVENTS_QUEUE_NAME = "RABBITMQ_EVENTS_QUEUE_NAME"
	MODEL_DIR_PATH             = "MODEL_DIR_PATH"
	DEMUCS_BIN_PATH            = "DEMUCS_BIN_PATH"
	SEPARATION_WORKING_DIR     = "SEPARATION_WORKING_DIR"
	STEMS_OUTPUT_DIR           = "STEMS_OUTPUT_DIR"
)

func MustGet(key string) string {
	val, isSet := os.LookupEnv(key)
	if !isSet {
		panic(fmt.Sprintf("No env variable found for key %s", key))
	}

	if val == "" {
		panic(fmt.Sprintf("Env variable is empty for key %s", key))
	}

	return val
}

// GetOr reads an optional variable with a fallback.
func GetOr(key string, fallback string) string {
	val, isSet := os.LookupEnv(key)
	if !isSet || val == "" {
		return fallback
	}

	return val
}
