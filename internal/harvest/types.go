// Package harvest defines core types shared across the harvesting subsystems.
package harvest

import (
	"encoding/json"
	"time"
)

// Platform tags a canonical address with the family of site it belongs to.
type Platform string

// Platform values carried on every Address and Record.
const (
	PlatformAggregator Platform = "aggregator"
	PlatformVideo      Platform = "video"
	PlatformPhoto      Platform = "photo"
	PlatformGeneric    Platform = "generic"
)

// Platforms lists every known platform in a stable order.
func Platforms() []Platform {
	return []Platform{PlatformAggregator, PlatformVideo, PlatformPhoto, PlatformGeneric}
}

// Valid reports whether p is one of the known platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformAggregator, PlatformVideo, PlatformPhoto, PlatformGeneric:
		return true
	default:
		return false
	}
}

// Lane identifies which extraction pipeline handles an address.
type Lane string

// Lane values.
const (
	LaneStatic  Lane = "static"
	LaneDynamic Lane = "dynamic"
)

// LaneFor routes a platform to its lane. Script-heavy platforms go dynamic.
func LaneFor(p Platform) Lane {
	switch p {
	case PlatformVideo, PlatformPhoto:
		return LaneDynamic
	default:
		return LaneStatic
	}
}

// Address is a normalized, classified input address.
type Address struct {
	Raw       string   `json:"raw"`
	Canonical string   `json:"canonical"`
	Platform  Platform `json:"platform"`
}

// TaskState is the lifecycle state of a crawl task.
type TaskState string

// Task states. Succeeded, Failed and Blocked are terminal.
const (
	TaskPending   TaskState = "pending"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
	TaskBlocked   TaskState = "blocked"
)

// Terminal reports whether the state ends the task.
func (s TaskState) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed || s == TaskBlocked
}

// Task is one unit of dispatcher work built from a canonical Address.
type Task struct {
	Address  Address
	Lane     Lane
	Attempts int
	State    TaskState
	// LastErr holds the reason for the most recent failed or blocked attempt.
	LastErr error
}

// NewTask builds a pending task with its lane resolved from the platform.
func NewTask(addr Address) *Task {
	return &Task{
		Address: addr,
		Lane:    LaneFor(addr.Platform),
		State:   TaskPending,
	}
}

// Post is a post-like item found on a page.
type Post struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// Comment is a comment-like text unit found on a page.
type Comment struct {
	Text string `json:"text"`
}

// KeywordStat aggregates mentions of one tracked keyword.
type KeywordStat struct {
	Mentions       int     `json:"mentions"`
	AvgScore       float64 `json:"avgScore"`
	AvgComparative float64 `json:"avgComparative"`
}

// Sentiment is a lexicon polarity score.
type Sentiment struct {
	Score       int     `json:"score"`
	Comparative float64 `json:"comparative"`
}

// BlockVerdict is the outcome of anti-bot inspection for one attempt.
type BlockVerdict struct {
	Blocked bool
	Reason  string
}

// Record is the uniform output document for one processed attempt.
// Counts are derived from the slices when the record is serialized.
type Record struct {
	Platform     Platform               `json:"platform"`
	URL          string                 `json:"url"`
	Title        *string                `json:"title"`
	Posts        []Post                 `json:"posts"`
	Comments     []Comment              `json:"comments"`
	KeywordStats map[string]KeywordStat `json:"keywordStats"`
	Blocked      bool                   `json:"blocked"`
	BlockReason  *string                `json:"blockReason"`
	Sentiment    Sentiment              `json:"sentiment"`
	ScrapedAt    time.Time              `json:"scrapedAt"`
}

// PostsCount returns the number of posts.
func (r Record) PostsCount() int {
	return len(r.Posts)
}

// CommentsCount returns the number of comments.
func (r Record) CommentsCount() int {
	return len(r.Comments)
}

// MarshalJSON emits the record schema with derived counts and non-null arrays.
func (r Record) MarshalJSON() ([]byte, error) {
	type wire struct {
		Platform      Platform               `json:"platform"`
		URL           string                 `json:"url"`
		Title         *string                `json:"title"`
		Posts         []Post                 `json:"posts"`
		PostsCount    int                    `json:"postsCount"`
		Comments      []Comment              `json:"comments"`
		CommentsCount int                    `json:"commentsCount"`
		KeywordStats  map[string]KeywordStat `json:"keywordStats"`
		Blocked       bool                   `json:"blocked"`
		BlockReason   *string                `json:"blockReason"`
		Sentiment     Sentiment              `json:"sentiment"`
		ScrapedAt     time.Time              `json:"scrapedAt"`
	}
	posts := r.Posts
	if posts == nil {
		posts = []Post{}
	}
	comments := r.Comments
	if comments == nil {
		comments = []Comment{}
	}
	return json.Marshal(wire{
		Platform:      r.Platform,
		URL:           r.URL,
		Title:         r.Title,
		Posts:         posts,
		PostsCount:    len(posts),
		Comments:      comments,
		CommentsCount: len(comments),
		KeywordStats:  r.KeywordStats,
		Blocked:       r.Blocked,
		BlockReason:   r.BlockReason,
		Sentiment:     r.Sentiment,
		ScrapedAt:     r.ScrapedAt,
	})
}

// FailureReport describes a task that ended without success.
type FailureReport struct {
	URL      string    `json:"url"`
	Platform Platform  `json:"platform"`
	Lane     Lane      `json:"lane"`
	State    TaskState `json:"state"`
	Attempts int       `json:"attempts"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Link is an anchor found on a rendered page.
type Link struct {
	Title string `json:"title"`
	Href  string `json:"href"`
}

// Snapshot is the part of a rendered page the block detector inspects.
type Snapshot struct {
	URL     string
	Title   string
	Content string
}
