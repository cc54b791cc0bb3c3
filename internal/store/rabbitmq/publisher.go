// Package rabbitmq carries chat push notifications from the API process to
// the delivery worker. The API only enqueues; actual Expo delivery happens
// out of the message-send path.
package rabbitmq

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/printlink/print-platform/internal/notify"
)

const publishTimeout = 5 * time.Second

// Failed deliveries park on the retry queue for retryDelay, then dead-letter
// back to the main queue. After MaxDeliveryAttempts the worker gives up and
// the delivery goes to the DLQ instead.
const (
	retryDelay          = 30 * time.Second
	MaxDeliveryAttempts = 3
)

const retriesHeader = "x-retries"

// Publisher owns one connection and channel to the broker. It declares the
// full queue topology up front so either process can start first.
type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := DeclareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

// DeclareTopology declares the notification queue and its companions: a
// retry queue whose TTL dead-letters back to the main queue, and a DLQ that
// collects deliveries the worker gave up on.
func DeclareTopology(ch *amqp.Channel, queue string) error {
	retryQ := queue + ".retry"
	dlq := queue + ".dlq"

	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(retryQ, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
	}); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlq,
	}); err != nil {
		return err
	}
	return nil
}

// DeliveryRetries reads the retry counter stamped on a redelivered message.
// A message straight off the main queue has no counter.
func DeliveryRetries(d amqp.Delivery) int {
	switch v := d.Headers[retriesHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	}
	return 0
}

// PublishRetry parks a failed delivery on the retry queue with an incremented
// retry counter; the queue's TTL dead-letters it back to the main queue.
func PublishRetry(ctx context.Context, ch *amqp.Channel, queue string, d amqp.Delivery) error {
	cctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return ch.PublishWithContext(cctx,
		"",
		queue+".retry",
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         d.Body,
			Headers:      amqp.Table{retriesHeader: int32(DeliveryRetries(d) + 1)},
			Expiration:   strconv.FormatInt(retryDelay.Milliseconds(), 10),
			Timestamp:    time.Now(),
		},
	)
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// PublishNotification enqueues one push for the worker. Persistent so a
// broker restart does not lose queued notifications.
func (p *Publisher) PublishNotification(ctx context.Context, n *notify.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return p.ch.PublishWithContext(cctx,
		"",      // default exchange
		p.queue, // routing key = queue
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}
