package orchestrator

// Status is the lifecycle of one separation job. Jobs move strictly
// forward through the processing stages and end in exactly one of the
// three terminal states.
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusPreprocessing  Status = "PREPROCESSING"
	StatusAnalyzing      Status = "ANALYZING"
	StatusSeparating     Status = "SEPARATING"
	StatusPostprocessing Status = "POSTPROCESSING"
	StatusCompleted      Status = "COMPLETED"
	StatusFailed         Status = "FAILED"
	StatusCancelled      Status = "CANCELLED"
)

var stagePercentage = map[Status]int{
	StatusPending:        0,
	StatusPreprocessing:  10,
	StatusAnalyzing:      30,
	StatusSeparating:     50,
	StatusPostprocessing: 80,
	StatusCompleted:      100,
	StatusFailed:         100,
	StatusCancelled:      100,
}

// Progress is one status event on the way through the pipeline.
type Progress struct {
	JobID      string `json:"job_id"`
	Stage      Status `json:"stage"`
	Percentage int    `json:"percentage"`
}

// ProgressSink receives progress events. A sink that errors never stops
// the pipeline, failures are logged and dropped.
type ProgressSink interface {
	Publish(progress Progress) error
}

// NoopSink discards progress. Handy default for library callers that
// do not care about status updates.
type NoopSink struct{}

var _ ProgressSink = NoopSink{}

func (NoopSink) Publish(Progress) error {
	return nil
}
