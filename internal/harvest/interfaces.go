package harvest

import (
	"context"
	"time"
)

// Fetcher fetches a URL over plain HTTP and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (FetchResponse, error)
}

// Browser opens rendering sessions.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
}

// Page is a single rendering session (one browser tab).
// Read methods never mutate the page.
type Page interface {
	// Navigate loads rawURL and returns the main document status (0 if unknown).
	Navigate(ctx context.Context, rawURL string) (int, error)
	Snapshot(ctx context.Context) (Snapshot, error)
	Title(ctx context.Context) (string, error)
	// Content returns the rendered document markup.
	Content(ctx context.Context) (string, error)
	// Texts returns trimmed, non-empty text of up to limit elements matching selector.
	Texts(ctx context.Context, selector string, limit int) ([]string, error)
	// Links returns up to limit anchors matching selector with absolute hrefs.
	Links(ctx context.Context, selector string, limit int) ([]Link, error)
	Scroll(ctx context.Context) error
	Wait(ctx context.Context, d time.Duration) error
	Close() error
}

// Sink accepts Records one at a time. Implementations must tolerate
// concurrent appends.
type Sink interface {
	Append(ctx context.Context, record Record) error
	Close(ctx context.Context) error
}

// Reporter receives terminal failure reports.
type Reporter interface {
	Report(ctx context.Context, report FailureReport)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
