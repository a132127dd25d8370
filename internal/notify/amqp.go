package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/carebridge/healthplan-backend/internal/appointment"
)

// AMQPNotifier publishes events to a topic exchange, routed by event type.
// The delivery service consuming the queue (email, push) lives outside this
// repo.
type AMQPNotifier struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewAMQPNotifier(url, exchange string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPNotifier{conn: conn, ch: ch, exchange: exchange}, nil
}

func (n *AMQPNotifier) publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.ch.PublishWithContext(ctx, n.exchange, ev.Type, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        b,
	})
}

func (n *AMQPNotifier) BookingCreated(ctx context.Context, a *appointment.Appointment) error {
	return n.publish(ctx, eventFor(EventBookingCreated, a))
}

func (n *AMQPNotifier) StatusChanged(ctx context.Context, a *appointment.Appointment, previous appointment.Status) error {
	ev := eventFor(EventStatusChanged, a)
	ev.PrevStatus = string(previous)
	return n.publish(ctx, ev)
}

func (n *AMQPNotifier) ReminderDue(ctx context.Context, a *appointment.Appointment) error {
	return n.publish(ctx, eventFor(EventReminderDue, a))
}

func (n *AMQPNotifier) Close() error {
	if n.ch != nil {
		_ = n.ch.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
