// Package dispatcher routes admitted addresses to per-lane worker pools and
// enforces the run budget.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/content-harvester/internal/address"
	"github.com/JakeFAU/content-harvester/internal/harvest"
	"github.com/JakeFAU/content-harvester/internal/lane"
	"github.com/JakeFAU/content-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/content-harvester/internal/progress"
	"github.com/JakeFAU/content-harvester/internal/queue/memory"
	"github.com/JakeFAU/content-harvester/internal/report"
	"github.com/JakeFAU/content-harvester/internal/worker"
)

var (
	// ErrNotRunning is returned by Enqueue outside of Run.
	ErrNotRunning = errors.New("dispatcher not running")
	// ErrBudgetExhausted is returned by Enqueue once the run budget is spent.
	ErrBudgetExhausted = errors.New("address budget exhausted")
	// ErrLaneDisabled is returned by Enqueue for an address whose lane has no processor.
	ErrLaneDisabled = errors.New("lane disabled")
)

// Config bounds a run.
type Config struct {
	// Budget caps the addresses admitted across both lanes.
	Budget int
	// Concurrency is the worker count per lane.
	Concurrency map[harvest.Lane]int
	// Politeness configures the per-host throttle of each lane.
	Politeness ratelimit.Config
}

// Summary describes a finished run.
type Summary struct {
	RunID     string                  `json:"runId"`
	Admitted  int                     `json:"admitted"`
	Succeeded int                     `json:"succeeded"`
	Blocked   int                     `json:"blocked"`
	Failed    int                     `json:"failed"`
	Skipped   int                     `json:"skipped"`
	Records   int                     `json:"records"`
	Failures  []harvest.FailureReport `json:"failures"`
}

// Dispatcher owns the lane queues of a run.
type Dispatcher struct {
	normalizer *address.Normalizer
	processors map[harvest.Lane]lane.Processor
	policy     worker.RetryPolicy
	reporter   harvest.Reporter
	ids        harvest.IDGenerator
	clock      harvest.Clock
	tracker    *progress.Tracker
	cfg        Config
	logger     *zap.Logger

	mu     sync.Mutex
	active *run
}

// run is the mutable state of one Run call.
type run struct {
	id       string
	tracker  *address.Tracker
	queues   map[harvest.Lane]*memory.Queue
	pending  sync.WaitGroup
	admitted int
	closed   bool

	summaryMu sync.Mutex
	summary   Summary
}

// New creates a Dispatcher. A lane without a processor is disabled and its
// addresses are skipped.
func New(
	normalizer *address.Normalizer,
	processors map[harvest.Lane]lane.Processor,
	policy worker.RetryPolicy,
	reporter harvest.Reporter,
	ids harvest.IDGenerator,
	clock harvest.Clock,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if normalizer == nil {
		normalizer = address.NewNormalizer(nil, logger)
	}
	if reporter == nil {
		reporter = report.NewLog(logger)
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 100
	}
	return &Dispatcher{
		normalizer: normalizer,
		processors: processors,
		policy:     policy,
		reporter:   reporter,
		ids:        ids,
		clock:      clock,
		tracker:    progress.NewTracker(),
		cfg:        cfg,
		logger:     logger,
	}
}

// Progress returns the live counters of the current or last run.
func (d *Dispatcher) Progress() progress.Snapshot {
	return d.tracker.Snapshot()
}

// Plan normalizes seeds and groups them by lane without fetching anything.
func (d *Dispatcher) Plan(seeds []any) (map[harvest.Lane][]harvest.Address, error) {
	addrs, err := d.normalizer.Normalize(seeds)
	if err != nil {
		return nil, fmt.Errorf("normalize seeds: %w", err)
	}
	plan := make(map[harvest.Lane][]harvest.Address, 2)
	for _, a := range addrs {
		l := harvest.LaneFor(a.Platform)
		plan[l] = append(plan[l], a)
	}
	return plan, nil
}

// Run processes seeds until every admitted task is terminal. Only
// harvest.ErrInvalidInput aborts, before any network access. A canceled ctx
// skips queued tasks and is returned alongside the partial summary.
func (d *Dispatcher) Run(ctx context.Context, seeds []any) (Summary, error) {
	addrs, err := d.normalizer.Normalize(seeds)
	if err != nil {
		return Summary{}, fmt.Errorf("normalize seeds: %w", err)
	}

	r, err := d.start()
	if err != nil {
		return Summary{}, err
	}
	d.logger.Info("run started",
		zap.String("run_id", r.id),
		zap.Int("addresses", len(addrs)),
		zap.Int("budget", d.cfg.Budget),
	)

	// Seeds take the budget before any discovered link can. Queue capacity
	// equals the budget, so admission never blocks without workers.
	for _, a := range addrs {
		if err := d.admit(ctx, r, a); err != nil {
			d.logger.Debug("seed not admitted", zap.String("url", a.Canonical), zap.Error(err))
		}
	}

	var workers sync.WaitGroup
	for laneName, q := range r.queues {
		throttle := ratelimit.New(d.cfg.Politeness)
		n := d.concurrency(laneName)
		for i := 0; i < n; i++ {
			w := worker.New(laneName, q, d.processors[laneName], throttle, d.policy, d.tracker, d.handler(r), d.logger)
			workers.Add(1)
			go func() {
				defer workers.Done()
				w.Run(ctx)
			}()
		}
	}

	r.pending.Wait()
	d.mu.Lock()
	r.closed = true
	d.mu.Unlock()
	for _, q := range r.queues {
		q.Close()
	}
	workers.Wait()

	d.finish(r)
	summary := r.snapshot()
	d.logger.Info("run finished",
		zap.String("run_id", summary.RunID),
		zap.Int("admitted", summary.Admitted),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("blocked", summary.Blocked),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("records", summary.Records),
	)
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("run interrupted: %w", err)
	}
	return summary, nil
}

// Enqueue admits a discovered address into the running run. Duplicates are
// dropped silently.
func (d *Dispatcher) Enqueue(ctx context.Context, raw string) error {
	addr, err := d.normalizer.Admit(raw)
	if err != nil {
		return fmt.Errorf("admit %q: %w", raw, err)
	}
	d.mu.Lock()
	r := d.active
	d.mu.Unlock()
	if r == nil {
		return ErrNotRunning
	}
	return d.admit(ctx, r, addr)
}

func (d *Dispatcher) start() (*run, error) {
	id := ""
	if d.ids != nil {
		var err error
		if id, err = d.ids.NewID(); err != nil {
			return nil, fmt.Errorf("generate run id: %w", err)
		}
	}
	r := &run{
		id:      id,
		tracker: address.NewTracker(),
		queues:  make(map[harvest.Lane]*memory.Queue, len(d.processors)),
	}
	r.summary.RunID = id
	for laneName, p := range d.processors {
		if p != nil {
			r.queues[laneName] = memory.NewQueue(d.cfg.Budget)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != nil {
		return nil, errors.New("dispatcher already running")
	}
	d.active = r
	d.tracker.Start(id, d.now())
	return r, nil
}

func (d *Dispatcher) finish(r *run) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tracker.Finish(d.now())
	if d.active == r {
		d.active = nil
	}
}

// admit applies dedup, lane availability and the budget, in that order.
func (d *Dispatcher) admit(ctx context.Context, r *run, addr harvest.Address) error {
	if !r.tracker.MarkIfNew(addr.Canonical) {
		return nil
	}
	laneName := harvest.LaneFor(addr.Platform)

	d.mu.Lock()
	q, ok := r.queues[laneName]
	switch {
	case r.closed:
		d.mu.Unlock()
		return ErrNotRunning
	case !ok:
		d.mu.Unlock()
		r.skip()
		d.tracker.Skip()
		return fmt.Errorf("%w: %s", ErrLaneDisabled, laneName)
	case r.admitted >= d.cfg.Budget:
		d.mu.Unlock()
		r.skip()
		d.tracker.Skip()
		return ErrBudgetExhausted
	}
	r.admitted++
	r.pending.Add(1)
	d.mu.Unlock()

	if err := q.Enqueue(context.WithoutCancel(ctx), harvest.NewTask(addr)); err != nil {
		r.pending.Done()
		return fmt.Errorf("enqueue %s: %w", addr.Canonical, err)
	}
	r.count(func(s *Summary) { s.Admitted++ })
	d.tracker.Admit()
	d.logger.Debug("address admitted",
		zap.String("url", addr.Canonical),
		zap.String("platform", string(addr.Platform)),
		zap.String("lane", string(laneName)),
	)
	return nil
}

// handler folds worker results into the run and follows discovered links.
// Discovered links are admitted before the parent task is released so the
// run cannot finish underneath them.
func (d *Dispatcher) handler(r *run) worker.Handler {
	return func(ctx context.Context, res worker.Result) {
		defer r.pending.Done()
		task := res.Task
		if res.Skipped {
			r.count(func(s *Summary) { s.Skipped++ })
			d.tracker.Skip()
			return
		}

		for _, link := range res.Discovered {
			if err := d.Enqueue(ctx, link); err != nil {
				d.logEnqueueFailure(link, err)
			}
		}

		r.count(func(s *Summary) {
			s.Records += res.Records
			switch task.State {
			case harvest.TaskSucceeded:
				s.Succeeded++
			case harvest.TaskBlocked:
				s.Blocked++
			default:
				s.Failed++
			}
		})
		if task.State == harvest.TaskSucceeded {
			return
		}

		rep := harvest.FailureReport{
			URL:      task.Address.Canonical,
			Platform: task.Address.Platform,
			Lane:     task.Lane,
			State:    task.State,
			Attempts: task.Attempts,
			Reason:   reason(task.LastErr),
			At:       d.now(),
		}
		r.count(func(s *Summary) { s.Failures = append(s.Failures, rep) })
		d.reporter.Report(ctx, rep)
	}
}

func (d *Dispatcher) logEnqueueFailure(link string, err error) {
	switch {
	case errors.Is(err, ErrBudgetExhausted), errors.Is(err, ErrLaneDisabled):
		d.logger.Debug("discovered link dropped", zap.String("url", link), zap.Error(err))
	case errors.Is(err, ErrNotRunning), errors.Is(err, memory.ErrClosed):
		d.logger.Warn("enqueue discovered link failed", zap.String("url", link), zap.Error(err))
	default:
		// Rejected by normalization: off-platform or garbage.
		d.logger.Debug("discovered link rejected", zap.String("url", link), zap.Error(err))
	}
}

func (d *Dispatcher) concurrency(l harvest.Lane) int {
	if n := d.cfg.Concurrency[l]; n > 0 {
		return n
	}
	if l == harvest.LaneDynamic {
		return 1
	}
	return 4
}

func (d *Dispatcher) now() time.Time {
	if d.clock != nil {
		return d.clock.Now()
	}
	return time.Now().UTC()
}

func (r *run) skip() {
	r.count(func(s *Summary) { s.Skipped++ })
}

func (r *run) count(fn func(*Summary)) {
	r.summaryMu.Lock()
	defer r.summaryMu.Unlock()
	fn(&r.summary)
}

func (r *run) snapshot() Summary {
	r.summaryMu.Lock()
	defer r.summaryMu.Unlock()
	s := r.summary
	s.Failures = append([]harvest.FailureReport(nil), r.summary.Failures...)
	return s
}

func reason(err error) string {
	if err == nil {
		return "unknown"
	}
	return err.Error()
}
