// Package noop provides a Publisher that discards everything. Useful for
// embedding the engine without downstream consumers.
package noop

import (
	"context"

	"github.com/ankit2020bhagat/JobQueueSystem/core"
	"github.com/ankit2020bhagat/JobQueueSystem/job"
)

var _ core.Publisher = (*Publisher)(nil)

// Publisher discards all published jobs.
type Publisher struct{}

// NewPublisher creates a no-op publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish discards the job.
func (p *Publisher) Publish(_ context.Context, _ string, _ *job.Job) error {
	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
