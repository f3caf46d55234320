package core

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ankit2020bhagat/JobQueueSystem/errors"
	"github.com/ankit2020bhagat/JobQueueSystem/job"
)

// Engine owns the job lifecycle: it wires the state machine, dispatcher,
// retry policy, scheduler, and metrics aggregator over the injected
// collaborators and runs their four periodic loops plus the worker pool.
type Engine struct {
	store       Store
	publisher   Publisher
	broadcaster Broadcaster
	registry    Registry
	config      *Config

	machine    *StateMachine
	dispatcher *Dispatcher
	retry      *RetryPolicy
	scheduler  *Scheduler
	metrics    *MetricsAggregator

	clock func() time.Time

	// mu guards ctx and cancel; listeners read the context from
	// goroutines racing Start and Stop.
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates a new engine with dependency injection
func NewEngine(
	store Store,
	publisher Publisher,
	broadcaster Broadcaster,
	registry Registry,
	options ...EngineOption,
) *Engine {
	config := defaultConfig()
	for _, opt := range options {
		opt(config)
	}

	e := &Engine{
		store:       store,
		publisher:   publisher,
		broadcaster: broadcaster,
		registry:    registry,
		config:      config,
		clock:       time.Now,
	}

	e.machine = NewStateMachine(store)
	e.metrics = NewMetricsAggregator()
	e.machine.AddListener(e.metrics)
	e.machine.AddListener(statusBroadcaster{engine: e})

	e.retry = NewRetryPolicy(store, e.machine, publisher,
		config.InitialDelay, config.Multiplier, config.MaxDelay)
	e.dispatcher = NewDispatcher(store, e.machine, registry, e.retry,
		config.WorkerPoolSize, config.DispatchBatchSize)
	e.scheduler = NewScheduler(store, e.machine, func(ctx context.Context, j *job.Job) {
		e.metrics.OnCreated(j)
		e.announce(ctx, j)
	})

	return e
}

// statusBroadcaster forwards every transition to the Broadcaster.
type statusBroadcaster struct {
	engine *Engine
}

func (b statusBroadcaster) OnTransition(ev TransitionEvent) {
	e := b.engine
	if e.broadcaster == nil {
		return
	}
	if err := e.broadcaster.Broadcast(e.context(), ChannelJobStatus, ev.Job); err != nil {
		slog.Debug("Status broadcast failed", "id", ev.Job.ID, "error", err)
	}
}

// context returns the engine's run context, or a background context when
// the engine has not started.
func (e *Engine) context() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

// accepting reports whether the engine still takes new work. A stopped
// engine rejects submissions with errors.ErrShutdown.
func (e *Engine) accepting() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx != nil && e.ctx.Err() != nil {
		return errors.ErrShutdown
	}
	return nil
}

// Start launches the dispatcher, scheduler, retry, and metrics loops.
func (e *Engine) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.ctx, e.cancel = runCtx, cancel
	e.mu.Unlock()

	if err := e.store.Ping(runCtx); err != nil {
		return errors.NewConnectionError("store", err)
	}

	// Seed counters from whatever the store already holds.
	if err := e.metrics.Reconcile(runCtx, e.store); err != nil {
		slog.Warn("Metrics reconcile failed", "error", err)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.dispatcher.Pool().Start(runCtx); err != nil {
			slog.Error("Worker pool error", "error", err)
		}
	}()

	e.loop(runCtx, e.config.DispatchInterval, e.dispatcher.Dispatch)
	e.loop(runCtx, e.config.SchedulerInterval, e.scheduler.Tick)
	e.loop(runCtx, e.config.RetryCheckInterval, e.retry.CheckRetries)
	e.loop(runCtx, e.config.MetricsInterval, e.broadcastMetrics)

	slog.Info("Engine started",
		"workers", e.config.WorkerPoolSize,
		"dispatch_interval", e.config.DispatchInterval)
	return nil
}

// loop runs fn on a ticker until the run context is cancelled.
func (e *Engine) loop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

func (e *Engine) broadcastMetrics(ctx context.Context) {
	if e.broadcaster == nil {
		return
	}
	if err := e.broadcaster.Broadcast(ctx, ChannelMetrics, e.metrics.Snapshot()); err != nil {
		slog.Debug("Metrics broadcast failed", "error", err)
	}
}

// Stop gracefully shuts down the engine
func (e *Engine) Stop() error {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Engine stopped gracefully")
	case <-time.After(e.config.ShutdownTimeout):
		slog.Warn("Engine shutdown timeout exceeded")
	}

	if e.publisher != nil {
		if err := e.publisher.Close(); err != nil {
			slog.Error("Error closing publisher", "error", err)
		}
	}
	if e.broadcaster != nil {
		if err := e.broadcaster.Close(); err != nil {
			slog.Error("Error closing broadcaster", "error", err)
		}
	}
	if err := e.store.Close(); err != nil {
		slog.Error("Error closing store", "error", err)
	}

	return nil
}

// Run starts the engine and blocks until shutdown signals are received.
// This is a convenience method that combines Start() + signal handling + Stop().
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
	}

	return e.Stop()
}

// Submit validates and persists an immediately dispatchable job.
func (e *Engine) Submit(ctx context.Context, jobType string, payload []byte, priority job.Priority) (*job.Job, error) {
	if err := e.accepting(); err != nil {
		return nil, err
	}
	if _, ok := e.registry.Resolve(jobType); !ok {
		return nil, errors.NewValidationError("jobType", errors.ErrUnknownJobType)
	}

	j, err := job.New(jobType, payload, priority, e.config.DefaultMaxRetries, e.clock())
	if err != nil {
		return nil, err
	}
	if err := e.store.Save(ctx, j); err != nil {
		return nil, err
	}

	e.metrics.OnCreated(j)
	e.announce(ctx, j)

	slog.Info("Job submitted", "id", j.ID, "type", j.Type, "priority", j.Priority.String())
	return j, nil
}

// Schedule validates and persists a job that runs at the given time.
func (e *Engine) Schedule(ctx context.Context, jobType string, payload []byte, priority job.Priority, at time.Time) (*job.Job, error) {
	if err := e.accepting(); err != nil {
		return nil, err
	}
	if _, ok := e.registry.Resolve(jobType); !ok {
		return nil, errors.NewValidationError("jobType", errors.ErrUnknownJobType)
	}

	j, err := job.NewScheduled(jobType, payload, priority, e.config.DefaultMaxRetries, at, e.clock())
	if err != nil {
		return nil, err
	}
	if err := e.store.Save(ctx, j); err != nil {
		return nil, err
	}

	e.metrics.OnCreated(j)
	e.announce(ctx, j)

	slog.Info("Job scheduled", "id", j.ID, "type", j.Type, "at", at)
	return j, nil
}

// CreateRecurring validates the cron expression and persists a recurring
// template. Templates are never dispatched; the scheduler expands them.
func (e *Engine) CreateRecurring(ctx context.Context, jobType string, payload []byte, priority job.Priority, cronExpr string) (*job.Job, error) {
	if err := e.accepting(); err != nil {
		return nil, err
	}
	if _, ok := e.registry.Resolve(jobType); !ok {
		return nil, errors.NewValidationError("jobType", errors.ErrUnknownJobType)
	}
	if _, err := ParseCron(cronExpr); err != nil {
		return nil, errors.NewValidationError("cronExpression", err)
	}

	j, err := job.NewTemplate(jobType, payload, priority, e.config.DefaultMaxRetries, cronExpr, e.clock())
	if err != nil {
		return nil, err
	}
	if err := e.store.Save(ctx, j); err != nil {
		return nil, err
	}

	e.metrics.OnCreated(j)

	slog.Info("Recurring job created", "id", j.ID, "type", j.Type, "cron", cronExpr)
	return j, nil
}

// Get retrieves a job by ID.
func (e *Engine) Get(ctx context.Context, id string) (*job.Job, error) {
	return e.store.FindByID(ctx, id)
}

// Cancel cancels a job waiting in PENDING, SCHEDULED, or FAILED. A job
// already PROCESSING finishes its current execution and keeps its outcome;
// cancelling it returns a TransitionError.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	j, err := e.store.FindByID(ctx, id)
	if err != nil {
		return err
	}

	switch j.Status {
	case job.StatusPending, job.StatusScheduled, job.StatusFailed:
		_, err = e.machine.Transition(ctx, j, job.StatusCancelled, TransitionMeta{})
		return err
	default:
		return errors.NewTransitionError(j.ID, string(j.Status), string(job.StatusCancelled))
	}
}

// MetricsSnapshot returns the current metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// Register adds a handler for a job type.
func (e *Engine) Register(jobType string, handler HandlerFunc) error {
	return e.registry.Register(jobType, handler)
}

// Health returns the current health status
func (e *Engine) Health(ctx context.Context) HealthStatus {
	storeHealth := e.store.Ping(ctx)

	counts, err := e.store.CountByStatus(ctx)
	if err != nil {
		counts = nil
	}

	return HealthStatus{
		Healthy:       storeHealth == nil,
		StoreHealth:   storeHealth,
		ActiveWorkers: e.dispatcher.Pool().Active(),
		CountsByState: counts,
		LastCheck:     e.clock(),
	}
}

// announce publishes a newly created job downstream and broadcasts it.
// Both are best-effort; failures are logged, never fatal.
func (e *Engine) announce(ctx context.Context, j *job.Job) {
	if e.publisher != nil {
		if err := e.publisher.Publish(ctx, TopicJobs, j); err != nil {
			slog.Error("Failed to publish job", "id", j.ID, "error", err)
		}
	}
	if e.broadcaster != nil {
		if err := e.broadcaster.Broadcast(ctx, ChannelJobs, j); err != nil {
			slog.Debug("Job broadcast failed", "id", j.ID, "error", err)
		}
	}
}
