package notify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rabbitmq/amqp091-go"
)

const ForumExchange = "pubsub_exchange"

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// ForumMessage is the payload published for the forum service.
type ForumMessage struct {
	ID        string    `json:"id"`
	ThreadRef string    `json:"thread_ref"`
	Message   string    `json:"message"`
	Event     Event     `json:"event"`
	SentAt    time.Time `json:"sent_at"`
}

// AMQPNotifier publishes forum updates on the topic exchange under
// "forum.<event>" routing keys.
type AMQPNotifier struct {
	ch publisher
}

func NewAMQPNotifier(ch publisher) *AMQPNotifier {
	return &AMQPNotifier{ch: ch}
}

func (n *AMQPNotifier) Notify(ctx context.Context, threadRef, message string, event Event) error {
	id, err := gonanoid.New()
	if err != nil {
		return err
	}
	body, err := json.Marshal(ForumMessage{
		ID:        id,
		ThreadRef: threadRef,
		Message:   message,
		Event:     event,
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	return n.ch.PublishWithContext(
		ctx,
		ForumExchange,
		"forum."+strings.ToLower(string(event)),
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			MessageId:    id,
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
		},
	)
}
