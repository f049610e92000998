package job_message

// JobIdentifier is the common envelope of every queue message.
type JobIdentifier struct {
	JobID string `json:"job_id"`
}

// Event is the shape of every message published to the events queue.
type Event struct {
	JobID   string      `json:"job_id"`
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

const (
	ProgressEventType = "separation_progress"
	ResultEventType   = "separation_result"
	FailureEventType  = "separation_failed"
	TrainedEventType  = "model_trained"
)
