// Package report delivers terminal failure reports.
package report

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/content-harvester/internal/harvest"
)

// Log writes each report as a structured warning.
type Log struct {
	logger *zap.Logger
}

// NewLog creates a Log reporter.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

// Report implements harvest.Reporter.
func (l *Log) Report(_ context.Context, r harvest.FailureReport) {
	l.logger.Warn("task ended without success",
		zap.String("url", r.URL),
		zap.String("platform", string(r.Platform)),
		zap.String("lane", string(r.Lane)),
		zap.String("state", string(r.State)),
		zap.Int("attempts", r.Attempts),
		zap.String("reason", r.Reason),
	)
}

// Collector keeps reports in memory.
type Collector struct {
	mu      sync.Mutex
	reports []harvest.FailureReport
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Report implements harvest.Reporter.
func (c *Collector) Report(_ context.Context, r harvest.FailureReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, r)
}

// Reports returns a copy of the collected reports.
func (c *Collector) Reports() []harvest.FailureReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]harvest.FailureReport, len(c.reports))
	copy(out, c.reports)
	return out
}

// Fanout forwards each report to every reporter.
type Fanout []harvest.Reporter

// Report implements harvest.Reporter.
func (f Fanout) Report(ctx context.Context, r harvest.FailureReport) {
	for _, rep := range f {
		if rep != nil {
			rep.Report(ctx, r)
		}
	}
}
