// Package redis provides a Publisher that hands jobs to downstream
// consumers through Redis lists, one list per topic.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gomodule/redigo/redis"

	"github.com/ankit2020bhagat/JobQueueSystem/core"
	"github.com/ankit2020bhagat/JobQueueSystem/errors"
	redisUtils "github.com/ankit2020bhagat/JobQueueSystem/internal/redis"
	"github.com/ankit2020bhagat/JobQueueSystem/job"
)

var _ core.Publisher = (*Publisher)(nil)

// Publisher pushes serialized jobs onto namespaced Redis lists.
type Publisher struct {
	pool      *redis.Pool
	namespace string
	options   Options
}

// NewPublisher creates a Redis publisher.
func NewPublisher(options Options) *Publisher {
	return &Publisher{
		namespace: options.Namespace,
		options:   options,
	}
}

// Connect establishes the connection pool and verifies it with a ping.
func (p *Publisher) Connect(ctx context.Context) error {
	pool, err := redisUtils.CreatePool(p.options)
	if err != nil {
		return errors.NewConnectionError(p.options.URI,
			fmt.Errorf("failed to create Redis pool: %w", err))
	}
	p.pool = pool

	conn := p.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("PING"); err != nil {
		return errors.NewConnectionError(p.options.URI,
			fmt.Errorf("ping failed: %w", err))
	}
	return nil
}

// Publish appends the job to the topic's list.
func (p *Publisher) Publish(ctx context.Context, topic string, j *job.Job) error {
	if p.pool == nil {
		return errors.ErrNotConnected
	}

	data, err := json.Marshal(j)
	if err != nil {
		return errors.NewPublishError(topic, fmt.Errorf("marshal job: %w", err))
	}

	conn, err := p.pool.GetContext(ctx)
	if err != nil {
		return errors.NewPublishError(topic, err)
	}
	defer conn.Close()

	if _, err := conn.Do("RPUSH", p.topicKey(topic), data); err != nil {
		return errors.NewPublishError(topic, err)
	}
	return nil
}

// Health checks the Redis connection health.
func (p *Publisher) Health() error {
	if p.pool == nil {
		return errors.ErrNotConnected
	}

	conn := p.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("PING"); err != nil {
		return errors.NewConnectionError(p.options.URI,
			fmt.Errorf("health check failed: %w", err))
	}
	return nil
}

// Close closes the connection pool.
func (p *Publisher) Close() error {
	if p.pool != nil {
		return p.pool.Close()
	}
	return nil
}

func (p *Publisher) topicKey(topic string) string {
	return p.namespace + topic
}
