package notification

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the part of *amqp.Channel the notifier needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier publishes events as persistent JSON messages on a topic
// exchange, routed by event kind.
type AMQPNotifier struct {
	ch       Publisher
	exchange string
}

// NewAMQPNotifier builds a notifier over an open channel. The exchange must
// already be declared.
func NewAMQPNotifier(ch Publisher, exchange string) *AMQPNotifier {
	return &AMQPNotifier{ch: ch, exchange: exchange}
}

// Publish encodes the event and sends it with the event kind as routing key.
func (n *AMQPNotifier) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	err = n.ch.PublishWithContext(ctx, n.exchange, event.Kind, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.TransactionID,
		Timestamp:    event.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Kind, err)
	}
	return nil
}
