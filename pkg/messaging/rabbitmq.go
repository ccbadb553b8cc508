package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/grigta/simgate/pkg/logger"
)

const (
	ExchangeEvents     = "ussd.events"
	ExchangeCommands   = "ussd.commands"
	ExchangeDeadLetter = "ussd.dead-letter"

	// QueueDispatch receives every created transaction; executors pick up USSD codes from it.
	QueueDispatch = "ussd.dispatch"
	// QueueResponses carries executor callbacks sent over AMQP instead of HTTP.
	QueueResponses = "ussd.responses"

	EventTransactionCreated    = "transaction.created"
	EventTransactionResolved   = "transaction.resolved"
	EventTransactionsCancelled = "transactions.cancelled"

	CommandResponse = "response"
)

// ErrDiscard tells the consumer to drop a message instead of requeueing it.
var ErrDiscard = errors.New("discard message")

type RabbitMQ struct {
	mu        sync.RWMutex
	conn      *amqp.Connection
	channel   *amqp.Channel
	url       string
	consumers []consumerRegistration
	stopCh    chan struct{}
	closeOnce sync.Once
}

type consumerRegistration struct {
	ctx          context.Context
	queueName    string
	consumerName string
	handler      func([]byte) error
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, ch, err := dial(url)
	if err != nil {
		return nil, err
	}

	logger.Info("Connected to RabbitMQ")

	r := &RabbitMQ{
		conn:    conn,
		channel: ch,
		url:     url,
		stopCh:  make(chan struct{}),
	}

	go r.monitorConnection()

	return r, nil
}

func dial(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return conn, ch, nil
}

func (r *RabbitMQ) Close() error {
	var closeErr error
	r.closeOnce.Do(func() {
		close(r.stopCh)

		r.mu.Lock()
		defer r.mu.Unlock()

		if err := r.channel.Close(); err != nil {
			closeErr = fmt.Errorf("failed to close channel: %w", err)
			return
		}
		if err := r.conn.Close(); err != nil {
			closeErr = fmt.Errorf("failed to close connection: %w", err)
		}
	})
	return closeErr
}

func (r *RabbitMQ) Publish(exchange, routingKey string, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.channel.Publish(exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
	})
}

// PublishEvent wraps data in a Message envelope and routes it on the events exchange.
func (r *RabbitMQ) PublishEvent(eventType string, data interface{}) error {
	return r.Publish(ExchangeEvents, eventType, NewMessage(eventType, data))
}

// ConsumeWithHandler acks on success, dead-letters on ErrDiscard and requeues other failures.
// The registration survives reconnects.
func (r *RabbitMQ) ConsumeWithHandler(ctx context.Context, queueName, consumerName string, handler func([]byte) error) error {
	reg := consumerRegistration{ctx: ctx, queueName: queueName, consumerName: consumerName, handler: handler}

	r.mu.Lock()
	r.consumers = append(r.consumers, reg)
	r.mu.Unlock()

	return r.startConsumer(reg)
}

func (r *RabbitMQ) startConsumer(reg consumerRegistration) error {
	r.mu.RLock()
	msgs, err := r.channel.Consume(reg.queueName, reg.consumerName, false, false, false, false, nil)
	r.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-reg.ctx.Done():
				logger.Info("Stopping consumer", logger.Field{Key: "queue", Value: reg.queueName})
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Warn("Consumer channel closed", logger.Field{Key: "queue", Value: reg.queueName})
					return
				}
				handleDelivery(msg, reg.handler)
			}
		}
	}()

	logger.Info("Started consuming messages", logger.Field{Key: "queue", Value: reg.queueName})
	return nil
}

func handleDelivery(msg amqp.Delivery, handler func([]byte) error) {
	err := handler(msg.Body)
	switch {
	case err == nil:
		_ = msg.Ack(false)
	case errors.Is(err, ErrDiscard):
		logger.Warn("Discarding message",
			logger.Field{Key: "routing_key", Value: msg.RoutingKey},
			logger.Field{Key: "error", Value: err.Error()},
		)
		_ = msg.Nack(false, false)
	default:
		logger.Error("Failed to process message",
			logger.Field{Key: "routing_key", Value: msg.RoutingKey},
			logger.Field{Key: "error", Value: err.Error()},
		)
		_ = msg.Nack(false, !msg.Redelivered)
	}
}

func (r *RabbitMQ) SetQos(prefetchCount int) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channel.Qos(prefetchCount, 0, false)
}

// SetupTopology declares the exchanges and queues of the USSD request flow.
func (r *RabbitMQ) SetupTopology() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return declareTopology(r.channel)
}

type topologyDeclarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

type binding struct {
	queue    string
	exchange string
	key      string
}

var topologyBindings = []binding{
	{QueueDispatch, ExchangeEvents, EventTransactionCreated},
	{QueueResponses, ExchangeCommands, CommandResponse},
}

func declareTopology(ch topologyDeclarer) error {
	exchanges := []struct{ name, kind string }{
		{ExchangeEvents, amqp.ExchangeTopic},
		{ExchangeCommands, amqp.ExchangeDirect},
		{ExchangeDeadLetter, amqp.ExchangeTopic},
	}
	for _, ex := range exchanges {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare %s exchange: %w", ex.name, err)
		}
	}

	for _, b := range topologyBindings {
		args := amqp.Table{"x-dead-letter-exchange": ExchangeDeadLetter}
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, args); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", b.queue, err)
		}
		if err := ch.QueueBind(b.queue, b.key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s to exchange %s: %w", b.queue, b.exchange, err)
		}

		dlq := b.queue + ".dlq"
		if _, err := ch.QueueDeclare(dlq, true, false, false, false, amqp.Table{"x-message-ttl": int32(86400000)}); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", dlq, err)
		}
		if err := ch.QueueBind(dlq, b.key, ExchangeDeadLetter, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s to exchange %s: %w", dlq, ExchangeDeadLetter, err)
		}
	}

	logger.Info("USSD topology setup completed")
	return nil
}

func (r *RabbitMQ) reconnect() error {
	conn, ch, err := dial(r.url)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.conn != nil && !r.conn.IsClosed() {
		r.conn.Close()
	}
	r.conn = conn
	r.channel = ch
	consumers := append([]consumerRegistration(nil), r.consumers...)
	r.mu.Unlock()

	logger.Info("Reconnected to RabbitMQ")

	if err := r.SetupTopology(); err != nil {
		logger.Error("Failed to setup topology after reconnect", logger.Field{Key: "error", Value: err.Error()})
	}

	for _, reg := range consumers {
		if reg.ctx.Err() != nil {
			continue
		}
		if err := r.startConsumer(reg); err != nil {
			logger.Error("Failed to restart consumer after reconnect",
				logger.Field{Key: "queue", Value: reg.queueName},
				logger.Field{Key: "error", Value: err.Error()},
			)
		}
	}

	return nil
}

func (r *RabbitMQ) monitorConnection() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.mu.RLock()
			closed := r.conn != nil && r.conn.IsClosed()
			r.mu.RUnlock()
			if !closed {
				continue
			}

			logger.Warn("RabbitMQ connection lost, attempting to reconnect...")
			for i := 0; i < 5; i++ {
				err := r.reconnect()
				if err == nil {
					break
				}
				logger.Error("Failed to reconnect to RabbitMQ",
					logger.Field{Key: "attempt", Value: i + 1},
					logger.Field{Key: "error", Value: err.Error()},
				)
				select {
				case <-r.stopCh:
					return
				case <-time.After(time.Duration(i+1) * time.Second):
				}
			}
		}
	}
}

type Message struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func NewMessage(msgType string, data interface{}) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventPublisher is the slice of RabbitMQ the services depend on.
type EventPublisher interface {
	PublishEvent(eventType string, data interface{}) error
}

type Consumer interface {
	ConsumeWithHandler(ctx context.Context, queueName, consumerName string, handler func([]byte) error) error
}

// NopPublisher drops events; used when RabbitMQ is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishEvent(string, interface{}) error { return nil }
