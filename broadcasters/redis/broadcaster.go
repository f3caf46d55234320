// Package redis provides a Broadcaster that pushes status and metrics
// snapshots to live listeners over Redis pub/sub.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/ankit2020bhagat/JobQueueSystem/core"
	"github.com/ankit2020bhagat/JobQueueSystem/errors"
	redisUtils "github.com/ankit2020bhagat/JobQueueSystem/internal/redis"
)

var _ core.Broadcaster = (*Broadcaster)(nil)

// Options for the Redis broadcaster
type Options struct {
	// URI is the Redis connection URI
	URI string

	// Namespace prefixes every pub/sub channel
	Namespace string

	// MaxConnections is the maximum number of connections in the pool
	MaxConnections int

	// MaxIdle is the maximum number of idle connections
	MaxIdle int

	// IdleTimeout is the timeout for idle connections
	IdleTimeout time.Duration

	// ConnectTimeout is the timeout for establishing connections
	ConnectTimeout time.Duration

	// ReadTimeout is the timeout for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for write operations
	WriteTimeout time.Duration

	// TLS options
	UseTLS        bool
	TLSSkipVerify bool
	TLSCertPath   string
}

// ConnectionOptions interface implementation
func (o Options) GetURI() string                   { return o.URI }
func (o Options) GetMaxConnections() int           { return o.MaxConnections }
func (o Options) GetMaxIdle() int                  { return o.MaxIdle }
func (o Options) GetIdleTimeout() time.Duration    { return o.IdleTimeout }
func (o Options) GetConnectTimeout() time.Duration { return o.ConnectTimeout }
func (o Options) GetReadTimeout() time.Duration    { return o.ReadTimeout }
func (o Options) GetWriteTimeout() time.Duration   { return o.WriteTimeout }
func (o Options) GetUseTLS() bool                  { return o.UseTLS }
func (o Options) GetTLSSkipVerify() bool           { return o.TLSSkipVerify }
func (o Options) GetTLSCertPath() string           { return o.TLSCertPath }

// DefaultOptions returns default Redis broadcaster options
func DefaultOptions() Options {
	return Options{
		URI:            "redis://localhost:6379/",
		Namespace:      "jobqueue:",
		MaxConnections: 10,
		MaxIdle:        2,
		IdleTimeout:    240 * time.Second,
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// Broadcaster publishes payloads to namespaced Redis pub/sub channels.
type Broadcaster struct {
	pool    *redis.Pool
	options Options
}

// NewBroadcaster creates a Redis broadcaster.
func NewBroadcaster(options Options) *Broadcaster {
	return &Broadcaster{options: options}
}

// Connect establishes the connection pool and verifies it with a ping.
func (b *Broadcaster) Connect(ctx context.Context) error {
	pool, err := redisUtils.CreatePool(b.options)
	if err != nil {
		return errors.NewConnectionError(b.options.URI,
			fmt.Errorf("failed to create Redis pool: %w", err))
	}
	b.pool = pool

	conn := b.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("PING"); err != nil {
		return errors.NewConnectionError(b.options.URI,
			fmt.Errorf("ping failed: %w", err))
	}
	return nil
}

// Broadcast publishes the payload as JSON to the channel.
func (b *Broadcaster) Broadcast(ctx context.Context, channel string, payload any) error {
	if b.pool == nil {
		return errors.ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal broadcast payload: %w", err)
	}

	conn, err := b.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Do("PUBLISH", b.options.Namespace+channel, data)
	return err
}

// Close closes the connection pool.
func (b *Broadcaster) Close() error {
	if b.pool != nil {
		return b.pool.Close()
	}
	return nil
}
