// Package record assembles uniform Records from lane output and hands them to
// the sink.
package record

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/content-harvester/internal/extract"
	"github.com/JakeFAU/content-harvester/internal/harvest"
	"github.com/JakeFAU/content-harvester/internal/metrics"
	"github.com/JakeFAU/content-harvester/internal/sentiment"
)

// Draft is what a lane observed during one attempt.
type Draft struct {
	Address  harvest.Address
	Title    *string
	Posts    []harvest.Post
	Comments []harvest.Comment
	// Text is a free-form blob that feeds sentiment and keyword stats but is
	// not stored on the Record.
	Text    string
	Verdict harvest.BlockVerdict
}

// Builder turns drafts into Records.
type Builder struct {
	analyzer *sentiment.Analyzer
	limits   extract.Limits
	clock    harvest.Clock
}

// NewBuilder creates a Builder. A nil analyzer disables keyword stats.
func NewBuilder(analyzer *sentiment.Analyzer, limits extract.Limits, clock harvest.Clock) *Builder {
	return &Builder{analyzer: analyzer, limits: limits, clock: clock}
}

// Build caps the collections, derives sentiment and keyword stats, and keeps
// blocked and blockReason consistent.
func (b *Builder) Build(d Draft) harvest.Record {
	posts := capPosts(d.Posts, b.limits.MaxPosts)
	comments := capComments(d.Comments, b.limits)

	rec := harvest.Record{
		Platform:  d.Address.Platform,
		URL:       d.Address.Canonical,
		Title:     cleanTitle(d.Title),
		Posts:     posts,
		Comments:  comments,
		Blocked:   d.Verdict.Blocked,
		ScrapedAt: b.clock.Now(),
	}
	if rec.Blocked {
		reason := strings.TrimSpace(d.Verdict.Reason)
		if reason == "" {
			reason = "blocked"
		}
		rec.BlockReason = &reason
	}

	rec.Sentiment = sentiment.Score(extract.Truncate(sentimentText(rec, d.Text), b.limits.MaxTextLength))
	rec.KeywordStats = b.analyzer.KeywordStats(keywordUnits(rec, d.Text))
	return rec
}

func sentimentText(rec harvest.Record, blob string) string {
	parts := make([]string, 0, 2+len(rec.Posts)+len(rec.Comments))
	if rec.Title != nil {
		parts = append(parts, *rec.Title)
	}
	for _, p := range rec.Posts {
		parts = append(parts, p.Title)
	}
	for _, c := range rec.Comments {
		parts = append(parts, c.Text)
	}
	if blob != "" {
		parts = append(parts, blob)
	}
	return strings.Join(parts, " ")
}

func keywordUnits(rec harvest.Record, blob string) []string {
	units := make([]string, 0, 1+len(rec.Posts)+len(rec.Comments))
	for _, p := range rec.Posts {
		units = append(units, p.Title)
	}
	for _, c := range rec.Comments {
		units = append(units, c.Text)
	}
	if blob != "" {
		units = append(units, blob)
	}
	return units
}

func cleanTitle(title *string) *string {
	if title == nil {
		return nil
	}
	t := extract.Clean(*title)
	if t == "" {
		return nil
	}
	return &t
}

func capPosts(posts []harvest.Post, limit int) []harvest.Post {
	out := make([]harvest.Post, 0, len(posts))
	for _, p := range posts {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, p)
	}
	return out
}

func capComments(comments []harvest.Comment, limits extract.Limits) []harvest.Comment {
	out := make([]harvest.Comment, 0, len(comments))
	for _, c := range comments {
		if limits.MaxComments > 0 && len(out) >= limits.MaxComments {
			break
		}
		out = append(out, harvest.Comment{Text: extract.Truncate(c.Text, limits.MaxCommentLength)})
	}
	return out
}

// Emitter builds Records and appends them to a sink.
type Emitter struct {
	builder *Builder
	sink    harvest.Sink
	logger  *zap.Logger
}

// NewEmitter creates an Emitter.
func NewEmitter(builder *Builder, sink harvest.Sink, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{builder: builder, sink: sink, logger: logger}
}

// Emit builds the Record for d and appends it. The built Record is returned
// even when the append fails.
func (e *Emitter) Emit(ctx context.Context, d Draft) (harvest.Record, error) {
	rec := e.builder.Build(d)
	if err := e.sink.Append(ctx, rec); err != nil {
		e.logger.Error("append record failed", zap.String("url", rec.URL), zap.Error(err))
		return rec, fmt.Errorf("append record: %w", err)
	}
	metrics.ObserveRecord(string(rec.Platform), rec.Blocked)
	e.logger.Info("record emitted",
		zap.String("url", rec.URL),
		zap.String("platform", string(rec.Platform)),
		zap.Int("posts", rec.PostsCount()),
		zap.Int("comments", rec.CommentsCount()),
		zap.Bool("blocked", rec.Blocked),
	)
	return rec, nil
}
