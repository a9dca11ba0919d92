// Package worker implements the per-lane task execution loop.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/content-harvester/internal/harvest"
	"github.com/JakeFAU/content-harvester/internal/lane"
	"github.com/JakeFAU/content-harvester/internal/metrics"
	"github.com/JakeFAU/content-harvester/internal/progress"
	"github.com/JakeFAU/content-harvester/internal/queue/memory"
)

// Throttle spaces consecutive requests to one host.
type Throttle interface {
	Wait(ctx context.Context, rawURL string) (time.Duration, error)
}

// RetryPolicy bounds and spaces attempts.
type RetryPolicy interface {
	MaxAttempts() int
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Result is the terminal outcome of one task.
type Result struct {
	Task *harvest.Task
	// Records is the number of Records the task's attempts emitted.
	Records int
	// Discovered accumulates outbound links across attempts.
	Discovered []string
	// Skipped is set when the run was canceled before the task started.
	Skipped bool
}

// Handler receives every Result. It runs on the worker goroutine.
type Handler func(ctx context.Context, res Result)

// Worker consumes one lane queue and runs each task to a terminal state.
type Worker struct {
	lane      harvest.Lane
	queue     *memory.Queue
	processor lane.Processor
	throttle  Throttle
	policy    RetryPolicy
	tracker   *progress.Tracker
	handle    Handler
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	laneName harvest.Lane,
	queue *memory.Queue,
	processor lane.Processor,
	throttle Throttle,
	policy RetryPolicy,
	tracker *progress.Tracker,
	handle Handler,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracker == nil {
		tracker = progress.NewTracker()
	}
	return &Worker{
		lane:      laneName,
		queue:     queue,
		processor: processor,
		throttle:  throttle,
		policy:    policy,
		tracker:   tracker,
		handle:    handle,
		logger:    logger.With(zap.String("lane", string(laneName))),
	}
}

// Run blocks, consuming tasks until the queue is closed and drained. Queued
// tasks are still handed back, as skipped, once ctx is done.
func (w *Worker) Run(ctx context.Context) {
	drainCtx := context.WithoutCancel(ctx)
	for {
		task, err := w.queue.Dequeue(drainCtx)
		if err != nil {
			if !errors.Is(err, memory.ErrClosed) {
				w.logger.Error("queue dequeue failed", zap.Error(err))
			}
			return
		}
		if ctx.Err() != nil {
			w.emit(ctx, Result{Task: task, Skipped: true})
			continue
		}
		w.emit(ctx, w.Process(ctx, task))
	}
}

func (w *Worker) emit(ctx context.Context, res Result) {
	if w.handle != nil {
		w.handle(ctx, res)
	}
}

// Process runs attempts until one succeeds or the retry policy gives up.
// A task in flight always reaches a terminal state.
func (w *Worker) Process(ctx context.Context, task *harvest.Task) Result {
	laneName := string(w.lane)
	metrics.IncBusyWorkers(laneName)
	defer metrics.DecBusyWorkers(laneName)
	w.tracker.Begin()

	res := Result{Task: task}
	target := task.Address.Canonical
	for {
		task.Attempts++
		if w.throttle != nil {
			if _, err := w.throttle.Wait(ctx, target); err != nil {
				task.State = harvest.TaskFailed
				task.LastErr = err
				break
			}
		}

		out := w.processor.Process(ctx, task)
		metrics.ObserveAttempt(laneName, string(out.State))
		w.tracker.Attempt(out.Record != nil)
		if out.Record != nil {
			res.Records++
		}
		res.Discovered = append(res.Discovered, out.Discovered...)
		task.LastErr = out.Err

		if out.State == harvest.TaskSucceeded {
			task.State = harvest.TaskSucceeded
			break
		}
		if w.policy == nil || !w.policy.ShouldRetry(out.Err, task.Attempts) {
			task.State = out.State
			break
		}

		delay := w.policy.Backoff(task.Attempts)
		w.logger.Info("attempt failed, retrying",
			zap.String("url", target),
			zap.String("state", string(out.State)),
			zap.Int("attempt", task.Attempts),
			zap.Duration("backoff", delay),
			zap.Error(out.Err),
		)
		if !sleep(ctx, delay) {
			task.State = out.State
			break
		}
	}

	w.tracker.End(task.State)
	if task.State != harvest.TaskSucceeded {
		metrics.ObserveFailure(laneName, string(task.State))
	}
	return res
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
