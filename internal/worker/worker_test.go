package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/content-harvester/internal/harvest"
	"github.com/JakeFAU/content-harvester/internal/lane"
	"github.com/JakeFAU/content-harvester/internal/policy/retry"
	"github.com/JakeFAU/content-harvester/internal/progress"
	"github.com/JakeFAU/content-harvester/internal/queue/memory"
)

// scriptedProcessor replays outcomes in order, repeating the last one.
type scriptedProcessor struct {
	mu       sync.Mutex
	outcomes []lane.Outcome
	calls    int
}

func (p *scriptedProcessor) Process(context.Context, *harvest.Task) lane.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	if i >= len(p.outcomes) {
		i = len(p.outcomes) - 1
	}
	p.calls++
	return p.outcomes[i]
}

type countingThrottle struct {
	mu    sync.Mutex
	hosts []string
	err   error
}

func (c *countingThrottle) Wait(_ context.Context, rawURL string) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hosts = append(c.hosts, rawURL)
	return 0, c.err
}

func fastRetry(maxAttempts int) *retry.ExponentialPolicy {
	return retry.NewExponentialPolicy(retry.Config{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Microsecond,
		MaxDelay:    time.Microsecond,
	})
}

func newTask() *harvest.Task {
	return harvest.NewTask(harvest.Address{Canonical: "https://example.com/", Platform: harvest.PlatformGeneric})
}

func blockedOutcome() lane.Outcome {
	rec := harvest.Record{URL: "https://example.com/", Blocked: true}
	return lane.Outcome{
		State:  harvest.TaskBlocked,
		Record: &rec,
		Err:    &harvest.BlockedError{URL: rec.URL, Verdict: harvest.BlockVerdict{Blocked: true, Reason: "status 403"}},
	}
}

func TestWorkerProcessRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	rec := harvest.Record{URL: "https://example.com/"}
	proc := &scriptedProcessor{outcomes: []lane.Outcome{
		{State: harvest.TaskFailed, Err: &harvest.FetchError{URL: "https://example.com/", StatusCode: 503}},
		{State: harvest.TaskSucceeded, Record: &rec, Discovered: []string{"https://example.com/next"}},
	}}
	throttle := &countingThrottle{}
	tracker := progress.NewTracker()
	w := New(harvest.LaneStatic, nil, proc, throttle, fastRetry(3), tracker, nil, zap.NewNop())

	task := newTask()
	res := w.Process(context.Background(), task)

	require.Equal(t, harvest.TaskSucceeded, task.State)
	require.Equal(t, 2, task.Attempts)
	require.NoError(t, task.LastErr)
	require.Equal(t, 1, res.Records)
	require.Equal(t, []string{"https://example.com/next"}, res.Discovered)
	require.Len(t, throttle.hosts, 2)

	snap := tracker.Snapshot()
	require.EqualValues(t, 2, snap.Attempts)
	require.EqualValues(t, 1, snap.Succeeded)
	require.Zero(t, snap.InFlight)
}

func TestWorkerProcessBlockedConsumesRetries(t *testing.T) {
	t.Parallel()

	proc := &scriptedProcessor{outcomes: []lane.Outcome{blockedOutcome()}}
	w := New(harvest.LaneDynamic, nil, proc, nil, fastRetry(2), nil, nil, nil)

	task := newTask()
	res := w.Process(context.Background(), task)

	require.Equal(t, harvest.TaskBlocked, task.State)
	require.Equal(t, 2, task.Attempts)
	require.Equal(t, 2, proc.calls)
	require.Equal(t, 2, res.Records)
	require.ErrorIs(t, task.LastErr, harvest.ErrBlocked)
}

func TestWorkerProcessFetchFailureExhausts(t *testing.T) {
	t.Parallel()

	proc := &scriptedProcessor{outcomes: []lane.Outcome{
		{State: harvest.TaskFailed, Err: &harvest.FetchError{URL: "https://example.com/", StatusCode: 429}},
	}}
	w := New(harvest.LaneStatic, nil, proc, nil, fastRetry(2), nil, nil, nil)

	task := newTask()
	res := w.Process(context.Background(), task)

	require.Equal(t, harvest.TaskFailed, task.State)
	require.Equal(t, 2, task.Attempts)
	require.Zero(t, res.Records)
	require.ErrorIs(t, task.LastErr, harvest.ErrFetchFailure)
}

func TestWorkerProcessThrottleErrorFailsTask(t *testing.T) {
	t.Parallel()

	proc := &scriptedProcessor{outcomes: []lane.Outcome{{State: harvest.TaskSucceeded}}}
	throttle := &countingThrottle{err: context.Canceled}
	w := New(harvest.LaneStatic, nil, proc, throttle, fastRetry(2), nil, nil, nil)

	task := newTask()
	w.Process(context.Background(), task)

	require.Equal(t, harvest.TaskFailed, task.State)
	require.ErrorIs(t, task.LastErr, context.Canceled)
	require.Zero(t, proc.calls)
}

func TestWorkerRunDrainsQueue(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(context.Background(), newTask()))
	}
	q.Close()

	rec := harvest.Record{}
	proc := &scriptedProcessor{outcomes: []lane.Outcome{{State: harvest.TaskSucceeded, Record: &rec}}}
	var mu sync.Mutex
	var results []Result
	w := New(harvest.LaneStatic, q, proc, nil, fastRetry(1), nil, func(_ context.Context, res Result) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, res)
	}, nil)

	w.Run(context.Background())

	require.Len(t, results, 3)
	for _, res := range results {
		require.False(t, res.Skipped)
		require.Equal(t, harvest.TaskSucceeded, res.Task.State)
	}
}

func TestWorkerRunSkipsAfterCancel(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(2)
	require.NoError(t, q.Enqueue(context.Background(), newTask()))
	require.NoError(t, q.Enqueue(context.Background(), newTask()))
	q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	proc := &scriptedProcessor{outcomes: []lane.Outcome{{State: harvest.TaskSucceeded}}}
	skipped := 0
	w := New(harvest.LaneStatic, q, proc, nil, nil, nil, func(_ context.Context, res Result) {
		if res.Skipped {
			skipped++
		}
	}, nil)

	w.Run(ctx)

	require.Equal(t, 2, skipped)
	require.Zero(t, proc.calls)
}

func TestSleepHonorsContext(t *testing.T) {
	t.Parallel()

	require.True(t, sleep(context.Background(), time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.False(t, sleep(ctx, time.Hour))
	require.False(t, sleep(ctx, 0))
	require.True(t, errors.Is(ctx.Err(), context.Canceled))
}
