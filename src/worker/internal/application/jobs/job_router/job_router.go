package job_router

import (
	"context"
	"encoding/json"

	"github.com/apex/log"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stemforge/stemforge-be/src/shared/lib/cerr"
	"github.com/stemforge/stemforge-be/src/shared/lib/rabbitmq"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/jobs/job_message"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/jobs/separate"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/jobs/start"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/jobs/train"
)

// JobRouter dispatches queue messages to the matching handler and
// publishes follow-up jobs and outcome events. A start job that
// validates publishes the actual separation job; terminal outcomes go
// to the events queue either way.
type JobRouter struct {
	jobPublisher    rabbitmq.Publisher
	eventsPublisher rabbitmq.Publisher

	startHandler    start.StartJobHandler
	separateHandler separate.SeparateJobHandler
	trainHandler    train.TrainJobHandler
}

func NewJobRouter(
	jobPublisher rabbitmq.Publisher,
	eventsPublisher rabbitmq.Publisher,
	startHandler start.StartJobHandler,
	separateHandler separate.SeparateJobHandler,
	trainHandler train.TrainJobHandler,
) JobRouter {
	return JobRouter{
		jobPublisher:    jobPublisher,
		eventsPublisher: eventsPublisher,
		startHandler:    startHandler,
		separateHandler: separateHandler,
		trainHandler:    trainHandler,
	}
}

func (j JobRouter) HandleMessage(message amqp091.Delivery) error {
	switch message.Type {
	case start.JobType:
		return j.handleStartJob(message.Body)

	case separate.JobType:
		return j.handleSeparateJob(message.Body)

	case train.JobType:
		return j.handleTrainJob(message.Body)

	default:
		return cerr.Field("message_type", message.Type).
			Error("Unrecognized message type")
	}
}

func (j JobRouter) handleStartJob(body []byte) error {
	params, err := j.startHandler.HandleStartJob(body)
	if err != nil {
		j.publishFailure(jobID(body), start.ErrorMessage)
		return cerr.Wrap(err).Error(start.ErrorMessage)
	}

	nextParams := separate.JobParams{
		JobIdentifier: params.JobIdentifier,
		AudioFilePath: params.AudioFilePath,
		Stems:         params.Stems,
		Strategy:      params.Strategy,
	}

	if err := j.publishJob(separate.JobType, nextParams); err != nil {
		j.publishFailure(params.JobID, start.ErrorMessage)
		return cerr.Wrap(err).Error("Failed to enqueue the separation job")
	}

	return nil
}

func (j JobRouter) handleSeparateJob(body []byte) error {
	outcome, err := j.separateHandler.HandleSeparateJob(context.Background(), body)
	if err != nil {
		j.publishFailure(jobID(body), separate.ErrorMessage)
		return cerr.Wrap(err).Error(separate.ErrorMessage)
	}

	j.publishEvent(job_message.Event{
		JobID:   outcome.JobID,
		Event:   job_message.ResultEventType,
		Payload: outcome,
	})

	return nil
}

func (j JobRouter) handleTrainJob(body []byte) error {
	outcome, err := j.trainHandler.HandleTrainJob(body)
	if err != nil {
		j.publishFailure(jobID(body), train.ErrorMessage)
		return cerr.Wrap(err).Error(train.ErrorMessage)
	}

	j.publishEvent(job_message.Event{
		JobID:   outcome.JobID,
		Event:   job_message.TrainedEventType,
		Payload: outcome,
	})

	return nil
}

func (j JobRouter) publishJob(jobType string, params interface{}) error {
	body, err := json.Marshal(params)
	if err != nil {
		return cerr.Field("job_type", jobType).
			Wrap(err).Error("Failed to marshal job params")
	}

	err = j.jobPublisher.Publish(amqp091.Publishing{
		Type: jobType,
		Body: body,
	})
	if err != nil {
		return cerr.Field("job_type", jobType).
			Wrap(err).Error("Failed to publish job")
	}

	return nil
}

// jobID pulls the id straight off the raw message so failure events
// stay attributable even when the handler rejected the payload.
func jobID(body []byte) string {
	identifier := job_message.JobIdentifier{}
	_ = json.Unmarshal(body, &identifier)
	return identifier.JobID
}

// publishFailure is best effort - the job error is the one worth
// surfacing, not event delivery trouble.
func (j JobRouter) publishFailure(jobID string, errorMessage string) {
	j.publishEvent(job_message.Event{
		JobID: jobID,
		Event: job_message.FailureEventType,
		Payload: map[string]string{
			"error": errorMessage,
		},
	})
}

func (j JobRouter) publishEvent(event job_message.Event) {
	body, err := json.Marshal(event)
	if err != nil {
		log.WithError(err).WithField("job_id", event.JobID).
			Warn("Failed to marshal event, dropping it")
		return
	}

	err = j.eventsPublisher.Publish(amqp091.Publishing{
		Type: event.Event,
		Body: body,
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"job_id": event.JobID,
			"event":  event.Event,
		}).Warn("Failed to publish event, dropping it")
	}
}
