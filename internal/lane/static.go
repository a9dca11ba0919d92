package lane

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/content-harvester/internal/detector"
	"github.com/JakeFAU/content-harvester/internal/extract"
	"github.com/JakeFAU/content-harvester/internal/harvest"
	"github.com/JakeFAU/content-harvester/internal/record"
)

// StaticConfig tunes the static lane.
type StaticConfig struct {
	Limits      extract.Limits
	FollowLinks bool
}

// StaticLane fetches raw HTML and applies selector heuristics.
type StaticLane struct {
	fetcher  harvest.Fetcher
	detector *detector.Heuristic
	emitter  *record.Emitter
	cfg      StaticConfig
	logger   *zap.Logger
}

// NewStatic builds the static lane.
func NewStatic(
	fetcher harvest.Fetcher,
	det *detector.Heuristic,
	emitter *record.Emitter,
	cfg StaticConfig,
	logger *zap.Logger,
) *StaticLane {
	if logger == nil {
		logger = zap.NewNop()
	}
	if det == nil {
		det = detector.NewHeuristic(nil, nil)
	}
	return &StaticLane{fetcher: fetcher, detector: det, emitter: emitter, cfg: cfg, logger: logger}
}

// Process fetches the task address. Transport errors and non-success statuses
// fail the attempt without a Record.
func (l *StaticLane) Process(ctx context.Context, task *harvest.Task) Outcome {
	target := task.Address.Canonical
	resp, err := l.fetcher.Fetch(ctx, target)
	if err != nil {
		return failed(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failed(&harvest.FetchError{URL: target, StatusCode: resp.StatusCode})
	}

	finalURL := resp.URL
	if finalURL == "" {
		finalURL = target
	}
	base, err := url.Parse(finalURL)
	if err != nil {
		return failed(&harvest.FetchError{URL: target, StatusCode: resp.StatusCode, Err: err})
	}
	doc, err := extract.Parse(resp.Body, base)
	if err != nil {
		return failed(&harvest.FetchError{URL: target, StatusCode: resp.StatusCode, Err: err})
	}

	title := doc.Title()
	snap := harvest.Snapshot{URL: finalURL, Content: doc.Text()}
	if title != nil {
		snap.Title = *title
	}
	verdict := l.detector.Evaluate(resp.StatusCode, snap)

	draft := record.Draft{
		Address: task.Address,
		Title:   title,
		Verdict: verdict,
	}
	if !verdict.Blocked {
		draft.Posts = doc.Posts(task.Address.Platform, l.cfg.Limits.MaxPosts)
		draft.Comments = doc.Comments(task.Address.Platform, l.cfg.Limits)
	}
	rec, err := l.emitter.Emit(ctx, draft)
	if err != nil {
		l.logger.Warn("record not persisted", zap.String("url", target), zap.Error(err))
	}

	out := finished(rec, verdict)
	if !verdict.Blocked && l.cfg.FollowLinks {
		out.Discovered = doc.Links()
	}
	return out
}
