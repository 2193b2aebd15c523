package runner

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/aldersea/questor/internal/agent"
	"github.com/aldersea/questor/internal/events"
	"github.com/aldersea/questor/internal/store"
	"go.uber.org/zap"
)

// RunStore persists run state transitions.
type RunStore interface {
	MarkRunning(ctx context.Context, id string) error
	FinishRun(ctx context.Context, id, status, response string, steps []agent.StepTrace, stepsTaken int) error
}

// EventSink receives run progress notifications.
type EventSink interface {
	Publish(ctx context.Context, ev *events.RunEvent) error
}

// Job is one queued goal execution.
type Job struct {
	RunID    string
	Goal     string
	MaxSteps int
}

// Runner executes queued jobs one at a time against a single agent. The
// agent's memory is scoped to a run, so jobs must never overlap.
type Runner struct {
	agent  *agent.Agent
	store  RunStore
	bus    EventSink
	jobs   chan Job
	wg     sync.WaitGroup
	cancel context.CancelFunc
	logger *zap.Logger
}

// New creates a Runner with a bounded job queue.
func New(ag *agent.Agent, st RunStore, bus EventSink, queueSize int, logger *zap.Logger) *Runner {
	if queueSize <= 0 {
		queueSize = 32
	}
	return &Runner{
		agent:  ag,
		store:  st,
		bus:    bus,
		jobs:   make(chan Job, queueSize),
		logger: logger,
	}
}

// Start launches the worker loop. Call Stop to drain and shut down.
func (r *Runner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-r.jobs:
				r.execute(ctx, job)
			}
		}
	}()
}

// Stop halts the worker. The job in flight is interrupted via its context.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// ErrQueueFull reports a rejected submission.
type ErrQueueFull struct{}

func (ErrQueueFull) Error() string { return "run queue is full" }

// Submit enqueues a job without blocking.
func (r *Runner) Submit(job Job) error {
	select {
	case r.jobs <- job:
		return nil
	default:
		return ErrQueueFull{}
	}
}

func (r *Runner) execute(ctx context.Context, job Job) {
	logger := r.logger.With(zap.String("run_id", job.RunID))
	logger.Info("run started", zap.String("goal", job.Goal))

	if err := r.store.MarkRunning(ctx, job.RunID); err != nil {
		logger.Error("marking run running failed", zap.Error(err))
	}
	r.publish(ctx, &events.RunEvent{
		RunID: job.RunID, Type: events.EventStarted, Detail: job.Goal,
	})

	obs := &progressObserver{runner: r, ctx: ctx, runID: job.RunID}
	result, err := r.agent.Run(ctx, job.Goal, job.MaxSteps, obs)
	if err != nil {
		logger.Error("run aborted", zap.Error(err))
		// ctx may already be canceled; persistence gets its own deadline.
		persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if ferr := r.store.FinishRun(persistCtx, job.RunID, store.RunFailed, err.Error(), nil, 0); ferr != nil {
			logger.Error("finishing run failed", zap.Error(ferr))
		}
		r.publish(persistCtx, &events.RunEvent{
			RunID: job.RunID, Type: events.EventFailed, Detail: err.Error(),
		})
		return
	}

	if err := r.store.FinishRun(ctx, job.RunID, store.RunDone, result.Response, result.Steps, result.StepsTaken); err != nil {
		logger.Error("finishing run failed", zap.Error(err))
	}
	r.publish(ctx, &events.RunEvent{
		RunID: job.RunID, Type: events.EventFinished, Detail: result.Response,
	})
	logger.Info("run finished",
		zap.Int("steps", result.StepsTaken),
		zap.Duration("duration", result.Duration))
}

// progressObserver relays loop progress to the event bus while the run is
// still executing, so stream subscribers see steps as they happen.
type progressObserver struct {
	runner *Runner
	ctx    context.Context
	runID  string
}

func (o *progressObserver) PlanCreated(steps []string) {
	o.runner.publish(o.ctx, &events.RunEvent{
		RunID: o.runID, Type: events.EventPlanned,
		Detail: strings.Join(steps, "\n"),
	})
}

func (o *progressObserver) StepExecuted(trace agent.StepTrace) {
	o.runner.publish(o.ctx, &events.RunEvent{
		RunID: o.runID, Type: events.EventStep,
		Step: trace.Index, Detail: trace.Description,
	})
}

func (r *Runner) publish(ctx context.Context, ev *events.RunEvent) {
	if r.bus == nil {
		return
	}
	if err := r.bus.Publish(ctx, ev); err != nil {
		r.logger.Warn("publishing run event failed", zap.Error(err))
	}
}
