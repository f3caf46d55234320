// Package jobqueue is a priority job queue engine with scheduled and
// recurring jobs, exponential backoff retries, and dead letter routing.
//
// The engine claims pending jobs in priority order, executes their
// registered handlers on a bounded worker pool, and drives every record
// through an atomic, versioned state machine. Storage, downstream
// hand-off, and live updates are injected behind small interfaces.
//
// # Example
//
//	package main
//
//	import (
//		"context"
//
//		"github.com/ankit2020bhagat/JobQueueSystem/core"
//		"github.com/ankit2020bhagat/JobQueueSystem/job"
//		"github.com/ankit2020bhagat/JobQueueSystem/publishers/noop"
//		noopb "github.com/ankit2020bhagat/JobQueueSystem/broadcasters/noop"
//		"github.com/ankit2020bhagat/JobQueueSystem/registry"
//		"github.com/ankit2020bhagat/JobQueueSystem/store/memory"
//	)
//
//	func main() {
//		reg := registry.NewRegistry()
//		reg.Register("EMAIL", sendEmail)
//
//		engine := core.NewEngine(
//			memory.NewStore(),
//			noop.NewPublisher(),
//			noopb.NewBroadcaster(),
//			reg,
//			core.WithWorkerPoolSize(10),
//		)
//
//		ctx := context.Background()
//		engine.Submit(ctx, "EMAIL", []byte(`{"to":"a@b.c"}`), job.PriorityHigh)
//		engine.Run(ctx)
//	}
package jobqueue
