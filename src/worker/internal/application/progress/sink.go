package progress

import (
	"encoding/json"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stemforge/stemforge-be/src/shared/lib/cerr"
	"github.com/stemforge/stemforge-be/src/shared/lib/rabbitmq"
	"github.com/stemforge/stemforge-be/src/shared/separation/orchestrator"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/jobs/job_message"
)

// QueueSink forwards pipeline progress to the events queue. The
// orchestrator swallows sink errors, so a flaky broker degrades to
// missing progress updates rather than failed jobs.
type QueueSink struct {
	publisher rabbitmq.Publisher
}

var _ orchestrator.ProgressSink = QueueSink{}

func NewQueueSink(publisher rabbitmq.Publisher) QueueSink {
	return QueueSink{publisher: publisher}
}

func (s QueueSink) Publish(p orchestrator.Progress) error {
	event := job_message.Event{
		JobID:   p.JobID,
		Event:   job_message.ProgressEventType,
		Payload: p,
	}

	body, err := json.Marshal(event)
	if err != nil {
		return cerr.Field("job_id", p.JobID).
			Wrap(err).Error("Failed to marshal progress event")
	}

	return s.publisher.Publish(amqp091.Publishing{
		Type: event.Event,
		Body: body,
	})
}
