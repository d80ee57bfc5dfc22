package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"fintrack/internal/remote"
)

// Notifier is the change-notification channel over RabbitMQ. Events are
// published to a topic exchange with the resource name as routing key; every
// subscriber gets its own exclusive queue, so each open session sees each
// event. Delivery is unordered and at-least-once; consumers treat an event
// as nothing more than "something changed".
type Notifier struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

func NewNotifier(url, exchange string) (*Notifier, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	n := &Notifier{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
	}

	if err := n.setup(); err != nil {
		n.Close()
		return nil, fmt.Errorf("setup exchange: %w", err)
	}

	return n, nil
}

func (n *Notifier) setup() error {
	err := n.channel.ExchangeDeclare(
		n.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	return nil
}

// Publish announces a change on the resource.
func (n *Notifier) Publish(ctx context.Context, resource string, ev remote.ChangeEvent) error {
	body, err := encodeChangeEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = n.channel.PublishWithContext(
		ctx,
		n.exchange, // exchange
		resource,   // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}

	slog.DebugContext(ctx, "Published change event",
		"resource", resource,
		"op", ev.Op,
		"event_id", ev.EventID)

	return nil
}

// Subscribe opens an exclusive queue bound to the resource and delivers each
// event to fn until the subscription is cancelled.
func (n *Notifier) Subscribe(ctx context.Context, resource string, fn func(remote.ChangeEvent)) (remote.Subscription, error) {
	channel, err := n.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open subscription channel: %w", err)
	}

	queue, err := channel.QueueDeclare(
		"",    // name (server-generated)
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		return nil, fmt.Errorf("declare subscription queue: %w", err)
	}

	if err := channel.QueueBind(queue.Name, resource, n.exchange, false, nil); err != nil {
		channel.Close()
		return nil, fmt.Errorf("bind subscription queue: %w", err)
	}

	deliveries, err := channel.Consume(
		queue.Name, // queue
		"",         // consumer
		true,       // auto-ack: notifications carry no state worth redelivering
		true,       // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		channel.Close()
		return nil, fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Subscribed to change events",
		"resource", resource, "queue", queue.Name)

	go func() {
		for delivery := range deliveries {
			ev, err := decodeChangeEvent(delivery.Body)
			if err != nil {
				slog.Warn("Failed to decode change event", "error", err)
				continue
			}
			fn(ev)
		}
	}()

	return &subscription{channel: channel}, nil
}

func (n *Notifier) Close() error {
	if n.channel != nil {
		n.channel.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}

type subscription struct {
	channel *amqp091.Channel
}

// Cancel closes the subscription channel; the exclusive queue is deleted
// with it and the delivery loop drains out.
func (s *subscription) Cancel() error {
	return s.channel.Close()
}

var _ remote.Notifier = (*Notifier)(nil)
