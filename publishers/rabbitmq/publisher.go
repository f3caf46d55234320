// Package rabbitmq provides a Publisher that hands jobs to downstream
// consumers through a RabbitMQ exchange, one routing key per topic.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ankit2020bhagat/JobQueueSystem/core"
	"github.com/ankit2020bhagat/JobQueueSystem/errors"
	"github.com/ankit2020bhagat/JobQueueSystem/job"
)

var _ core.Publisher = (*Publisher)(nil)

// Publisher publishes serialized jobs to an AMQP exchange.
type Publisher struct {
	mu         sync.Mutex
	connection *amqp.Connection
	channel    *amqp.Channel
	options    Options
}

// NewPublisher creates a RabbitMQ publisher.
func NewPublisher(options Options) *Publisher {
	return &Publisher{options: options}
}

// Connect dials the broker, opens a channel, and declares the exchange.
func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, err := amqp.Dial(p.options.URI)
	if err != nil {
		return errors.NewConnectionError(p.options.URI,
			fmt.Errorf("failed to connect to RabbitMQ: %w", err))
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return errors.NewConnectionError(p.options.URI,
			fmt.Errorf("failed to open channel: %w", err))
	}

	if err := ch.ExchangeDeclare(
		p.options.Exchange,
		p.options.ExchangeType,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return errors.NewConnectionError(p.options.URI,
			fmt.Errorf("failed to declare exchange: %w", err))
	}

	p.connection = conn
	p.channel = ch
	return nil
}

// Publish sends the job to the exchange with the topic as routing key.
func (p *Publisher) Publish(ctx context.Context, topic string, j *job.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil {
		return errors.ErrNotConnected
	}

	data, err := json.Marshal(j)
	if err != nil {
		return errors.NewPublishError(topic, fmt.Errorf("marshal job: %w", err))
	}

	deliveryMode := amqp.Transient
	if p.options.Persistent {
		deliveryMode = amqp.Persistent
	}

	if err := p.channel.PublishWithContext(ctx,
		p.options.Exchange,
		topic, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: deliveryMode,
			MessageId:    j.ID,
			Type:         j.Type,
			Body:         data,
		},
	); err != nil {
		return errors.NewPublishError(topic, err)
	}
	return nil
}

// Health checks the connection state.
func (p *Publisher) Health() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connection == nil || p.connection.IsClosed() {
		return errors.ErrNotConnected
	}
	return nil
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.connection != nil {
		err := p.connection.Close()
		p.connection = nil
		return err
	}
	return nil
}
