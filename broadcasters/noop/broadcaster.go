// Package noop provides a Broadcaster that discards everything.
package noop

import (
	"context"

	"github.com/ankit2020bhagat/JobQueueSystem/core"
)

var _ core.Broadcaster = (*Broadcaster)(nil)

// Broadcaster discards all broadcasts.
type Broadcaster struct{}

// NewBroadcaster creates a no-op broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Broadcast discards the payload.
func (b *Broadcaster) Broadcast(_ context.Context, _ string, _ any) error {
	return nil
}

// Close is a no-op.
func (b *Broadcaster) Close() error {
	return nil
}
