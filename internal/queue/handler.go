package queue

import (
	"context"

	"github.com/OFFIS-RIT/tagrel/internal/metrics"
	"github.com/OFFIS-RIT/tagrel/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// HandleDelivery settles msg according to the outcome of processing err.
func HandleDelivery(ctx context.Context, ch Channel, msg amqp091.Delivery, queueName string, err error) {
	outcome := Classify(err)
	metrics.QueueMessagesTotal.WithLabelValues(queueName, outcome.String()).Inc()

	switch outcome {
	case OutcomeAck:
		if err != nil {
			logger.Warn("[Queue] Job finished with error", "queue", queueName, "err", err)
		}
		if ackErr := msg.Ack(false); ackErr != nil {
			logger.Error("[Queue] Failed to ack message", "err", ackErr)
		}
	case OutcomeDeadLetter:
		logger.Error("[Queue] Dropping unprocessable message", "queue", queueName, "err", err)
		deadLetter(ctx, ch, msg, queueName)
	default:
		logger.Error("[Queue] Error processing message", "queue", queueName, "err", err)
		handleProcessingError(ctx, ch, msg, queueName)
	}
}

func retryCount(headers amqp091.Table) int {
	switch v := headers["x-retries"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func handleProcessingError(ctx context.Context, ch Channel, msg amqp091.Delivery, queueName string) {
	retries := retryCount(msg.Headers)

	// If message has been retried too often, send to dead-letter
	if retries >= maxRetries {
		deadLetter(ctx, ch, msg, queueName)
		return
	}

	retryName := queueName + "_retry"
	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers["x-retries"] = int32(retries + 1)

	pubErr := ch.PublishWithContext(
		ctx,
		"",
		retryName,
		false,
		false,
		amqp091.Publishing{
			ContentType:  msg.ContentType,
			Body:         msg.Body,
			Headers:      headers,
			DeliveryMode: amqp091.Persistent,
		},
	)
	if pubErr != nil {
		logger.Error("[Queue] Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

func deadLetter(ctx context.Context, ch Channel, msg amqp091.Delivery, queueName string) {
	dlqName := queueName + "_dlq"
	logger.Info("[Queue] Sending message to DLQ", "dlq", dlqName)
	pubErr := ch.PublishWithContext(
		ctx,
		"",
		dlqName,
		false,
		false,
		amqp091.Publishing{
			ContentType:  msg.ContentType,
			Body:         msg.Body,
			Headers:      msg.Headers,
			DeliveryMode: amqp091.Persistent,
		},
	)
	if pubErr != nil {
		logger.Error("[Queue] Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}
