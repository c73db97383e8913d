package queue

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	applog "github.com/brunao23/GerenciaIA-sub000/internal/logger"
	"github.com/brunao23/GerenciaIA-sub000/internal/model"
)

const DefaultExchange = "followup"

// channel is the subset of *amqp.Channel the queue uses.
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// AMQPQueue publishes events to a RabbitMQ topic exchange, using the topic as
// routing key.
type AMQPQueue struct {
	ch          channel
	openChannel func() (channel, error)
	closeConn   func() error
	exchange    string
	logger      *zap.Logger

	mu sync.Mutex
}

// NewAMQPQueue dials the broker and declares the exchange.
func NewAMQPQueue(url, exchange string, logger *zap.Logger) (*AMQPQueue, error) {
	logger = applog.OrNop(logger)
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open a channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // delete when unused
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &AMQPQueue{
		ch:          ch,
		openChannel: func() (channel, error) { return conn.Channel() },
		closeConn:   conn.Close,
		exchange:    exchange,
		logger:      logger,
	}, nil
}

func (q *AMQPQueue) Publish(topic string, event model.FollowUpEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ch.Publish(
		q.exchange,
		topic,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Type:         string(event.Type),
			Body:         body,
		},
	)
}

// Subscribe binds an exclusive server-named queue to the topic and consumes
// it on a dedicated channel. Failed deliveries are requeued once.
func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	ch, err := q.openChannel()
	if err != nil {
		return fmt.Errorf("open a channel: %w", err)
	}

	queue, err := ch.QueueDeclare(
		"",    // name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queue.Name, topic, q.exchange, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("bind queue to %s: %w", topic, err)
	}

	msgs, err := ch.Consume(
		queue.Name,
		"",
		false, // autoAck = false for reliability
		true,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("register consumer: %w", err)
	}

	go func() {
		defer ch.Close()
		for d := range msgs {
			var event model.FollowUpEvent
			if err := json.Unmarshal(d.Body, &event); err != nil {
				q.logger.Warn("invalid event payload", zap.Error(err))
				d.Ack(false)
				continue
			}
			if err := handler(event); err != nil {
				q.logger.Warn("event handler failed", zap.String("event", string(event.Type)), zap.Error(err))
				d.Nack(false, !d.Redelivered)
				continue
			}
			d.Ack(false)
		}
	}()
	return nil
}

func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ch != nil {
		q.ch.Close()
	}
	if q.closeConn != nil {
		return q.closeConn()
	}
	return nil
}

var (
	_ Queue = (*InMemoryQueue)(nil)
	_ Queue = (*AMQPQueue)(nil)
)
