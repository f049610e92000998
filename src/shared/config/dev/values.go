package dev

// RabbitMQ
const (
	RabbitMQHost            = "amqp://localhost:5672"
	RabbitMQQueueName       = "stemforge-jobs-dev"
	RabbitMQEventsQueueName = "stemforge-events-dev"
)

// Separation engine
const (
	ModelDirName   = "models"
	WorkingDirName = "wd/separation"
	StemsDirName   = "wd/stems"
)
