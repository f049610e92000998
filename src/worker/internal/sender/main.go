package main

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stemforge/stemforge-be/src/shared/config/envvar"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/jobs/job_message"
	"github.com/stemforge/stemforge-be/src/worker/internal/application/jobs/start"
)

// dev utility for dropping a separation job on the queue by hand

func main() {
	rabbitURL := envvar.MustGet(envvar.RABBITMQ_URL)

	conn, err := amqp091.Dial(rabbitURL)
	if err != nil {
		panic(err)
	}
	defer conn.Close()

	rabbitChannel, err := conn.Channel()
	if err != nil {
		panic(err)
	}
	defer rabbitChannel.Close()

	queue, err := rabbitChannel.QueueDeclare(
		"stemforge-jobs-dev",
		true,
		false,
		false,
		false,
		nil,
	)

	if err != nil {
		panic(err)
	}

	startJobParams := start.JobParams{
		JobIdentifier: job_message.JobIdentifier{
			JobID: uuid.New().String(),
		},
		AudioFilePath: "./testdata/mix.wav",
		Stems:         []string{"vocals", "drums", "bass", "other"},
		Strategy:      "auto",
	}

	jobBody, err := json.Marshal(startJobParams)

	if err != nil {
		panic(err)
	}

	job := amqp091.Publishing{Type: start.JobType, Body: jobBody}

	job.DeliveryMode = amqp091.Persistent
	job.ContentType = "application/json"

	err = rabbitChannel.Publish("", queue.Name, true, false, job)

	if err != nil {
		panic(err)
	}
}
