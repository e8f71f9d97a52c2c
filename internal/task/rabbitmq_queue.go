package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/DenzelPenzel/ton-agent/pkg/logger"
)

const defaultRabbitMQQueue = "tonagent.invocations"

// RabbitMQConfig holds the connection settings of a RabbitMQ queue.
type RabbitMQConfig struct {
	URL        string
	Queue      string
	Prefetch   int
	Durable    bool
	AutoDelete bool
}

// amqpChannel is the part of *amqp.Channel the queue uses.
type amqpChannel interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQQueue publishes persistent messages to the default exchange and
// consumes with manual acks. Failed deliveries are nacked back onto the
// queue and empty ones rejected.
type RabbitMQQueue struct {
	conn  *amqp.Connection
	ch    amqpChannel
	queue string
	log   *slog.Logger
}

func NewRabbitMQQueue(cfg RabbitMQConfig) (*RabbitMQQueue, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is empty")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = defaultRabbitMQQueue
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("set rabbitmq qos: %w", err)
		}
	}
	if _, err := ch.QueueDeclare(queue, cfg.Durable, cfg.AutoDelete, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare rabbitmq queue: %w", err)
	}
	q := newRabbitMQQueue(ch, queue)
	q.conn = conn
	return q, nil
}

func newRabbitMQQueue(ch amqpChannel, queue string) *RabbitMQQueue {
	if queue == "" {
		queue = defaultRabbitMQQueue
	}
	return &RabbitMQQueue{ch: ch, queue: queue, log: logger.Named("task.queue.rabbitmq")}
}

func (q *RabbitMQQueue) Publish(ctx context.Context, taskID string) error {
	if q == nil || q.ch == nil {
		return errors.New("rabbitmq queue is not initialised")
	}
	return q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Persistent,
		MessageId:    taskID,
		Body:         []byte(taskID),
	})
}

// Consume returns when ctx is done or the broker closes the delivery stream.
func (q *RabbitMQQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if q == nil || q.ch == nil {
		return errors.New("rabbitmq queue is not initialised")
	}
	msgs, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("subscribe rabbitmq queue: %w", err)
	}

	in := make(chan delivery)
	closed := make(chan struct{})
	go func() {
		defer close(in)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					close(closed)
					return
				}
				select {
				case in <- rabbitDelivery(msg):
				case <-ctx.Done():
					// Unacked; the broker redelivers it after the channel closes.
					return
				}
			}
		}
	}()
	serve(ctx, workerCount, in, handler, q.log)

	select {
	case <-closed:
		if ctx.Err() == nil {
			return errors.New("rabbitmq delivery stream closed")
		}
	default:
	}
	return ctx.Err()
}

func rabbitDelivery(msg amqp.Delivery) delivery {
	return delivery{
		taskID:  string(msg.Body),
		ack:     func() error { return msg.Ack(false) },
		requeue: func() error { return msg.Nack(false, true) },
		drop:    func() error { return msg.Reject(false) },
	}
}

func (q *RabbitMQQueue) Close() error {
	if q == nil {
		return nil
	}
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

var _ Queue = (*RabbitMQQueue)(nil)
