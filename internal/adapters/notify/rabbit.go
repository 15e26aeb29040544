package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"roomhub/internal/domain"
)

const DefaultQueue = "booking.events"

// Rabbit publishes persistent messages to a durable queue; the room id
// travels in the routing headers so consumers can fan out per room.
type Rabbit struct {
	inflight
	mu      sync.Mutex
	conn    *amqp.Connection
	ch      *amqp.Channel
	queue   string
	timeout time.Duration
}

func DialRabbit(url, queue string) (*Rabbit, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp declare %s: %w", queue, err)
	}
	return &Rabbit{conn: conn, ch: ch, queue: queue, timeout: defaultTimeout}, nil
}

func (r *Rabbit) Publish(ctx context.Context, ev domain.Event) {
	r.deliver(ctx, "rabbitmq", r.timeout, ev, func(ctx context.Context, body []byte) error {
		// amqp channels are not safe for concurrent publishing
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.ch.PublishWithContext(ctx, "", r.queue, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Type:         ev.Name,
			Timestamp:    time.Now().UTC(),
			Headers:      amqp.Table{"room_id": ev.RoomID, "channel": Channel(ev.RoomID)},
			Body:         body,
		})
	})
}

// Close waits up to the publish timeout for queued events, then closes
// the channel and the connection.
func (r *Rabbit) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	_ = r.Flush(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ch.Close(); err != nil {
		r.conn.Close()
		return err
	}
	return r.conn.Close()
}
