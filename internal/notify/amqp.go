package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/finbridge/ledger-service/internal/domain"
)

const (
	routingKeyEmail = "notification.email"
	routingKeyPush  = "notification.push"
)

// AMQPDispatcher publishes outbound notifications to a RabbitMQ topic
// exchange. Separate email and push workers bind their own routing
// keys; the ledger fans out to both and does not wait for delivery.
type AMQPDispatcher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewAMQPDispatcher connects to RabbitMQ and declares the topic
// exchange.
func NewAMQPDispatcher(url, exchange string, logger *zap.Logger) (*AMQPDispatcher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger.Info("notification dispatcher initialized", zap.String("exchange", exchange))

	return &AMQPDispatcher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// Dispatch fans the message out to the email and push routing keys.
// A failed channel counts as a dispatch failure; the caller decides
// whether that matters.
func (d *AMQPDispatcher) Dispatch(ctx context.Context, msg domain.OutboundMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for _, key := range []string{routingKeyEmail, routingKeyPush} {
		err := d.channel.PublishWithContext(ctx,
			d.exchange, // exchange
			key,        // routing key
			false,      // mandatory
			false,      // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now(),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("failed to publish to %s: %w", key, err)
		}
	}
	return nil
}

// Close shuts down the channel and connection.
func (d *AMQPDispatcher) Close() error {
	if err := d.channel.Close(); err != nil {
		return err
	}
	return d.conn.Close()
}
