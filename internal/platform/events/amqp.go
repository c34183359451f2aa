package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rabbitmq/amqp091-go"

	"github.com/hospitalos/hms/internal/lifecycle"
)

const statusExchange = "hms.status"

// AMQPPublisher publishes status-change events to a RabbitMQ topic exchange
// with routing keys of the form "<entity_type>.<to_status>" (lowercased),
// e.g. "encounter.finished".
type AMQPPublisher struct {
	ch *amqp091.Channel
}

// NewAMQPPublisher dials the broker and declares the status exchange.
func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(statusExchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{ch: ch}, nil
}

func (p *AMQPPublisher) Name() string { return "amqp-publisher" }

func (p *AMQPPublisher) Handle(ctx context.Context, evt lifecycle.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	key := routingKey(evt)
	return p.ch.PublishWithContext(ctx, statusExchange, key, false, false, amqp091.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   evt.Timestamp,
	})
}

func routingKey(evt lifecycle.Event) string {
	return strings.ToLower(evt.EntityType) + "." + strings.ToLower(evt.ToStatus)
}
