package infra

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// WalletEventsExchange is the topic exchange committed movements are published on.
const WalletEventsExchange = "wallet_events"

// RabbitMQ holds the broker connection and the channel used for publishing.
type RabbitMQ struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
}

// NewRabbitMQ dials the broker and declares the durable wallet events exchange.
func NewRabbitMQ(url string) (*RabbitMQ, error) {
	if url == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		WalletEventsExchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", WalletEventsExchange, err)
	}

	return &RabbitMQ{Conn: conn, Channel: ch}, nil
}

// Healthy reports whether the connection is still open.
func (r *RabbitMQ) Healthy() bool {
	return r != nil && r.Conn != nil && !r.Conn.IsClosed()
}

// Close shuts down the channel and connection.
func (r *RabbitMQ) Close() error {
	if r == nil {
		return nil
	}
	if r.Channel != nil {
		_ = r.Channel.Close()
	}
	if r.Conn != nil {
		return r.Conn.Close()
	}
	return nil
}
