package lane

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/content-harvester/internal/address"
	"github.com/JakeFAU/content-harvester/internal/detector"
	"github.com/JakeFAU/content-harvester/internal/extract"
	"github.com/JakeFAU/content-harvester/internal/harvest"
	"github.com/JakeFAU/content-harvester/internal/record"
)

// Rendered-page selectors, most specific first.
var (
	videoCommentSelectors = []string{
		"ytd-comment-thread-renderer #content-text",
		"ytd-comment-renderer #content-text",
		"ytd-comment-view-model #content-text",
		"#comments #content-text",
	}
	videoOwnerSelectors = []string{
		"ytd-video-owner-renderer a.yt-simple-endpoint[href]",
		"#owner ytd-channel-name a[href]",
		"#upload-info ytd-channel-name a[href]",
		`a[href^="/@"]`,
	}
	videoListingSelectors = []string{
		"a#video-title-link",
		"ytd-rich-grid-media a#video-title-link",
		"a#video-title",
		`ytd-grid-video-renderer a[href*="/watch"]`,
	}
	photoTextSelectors = []string{
		"ul li > div > div > div > span",
		`article ul span[dir="auto"]`,
		`article span[dir="auto"]`,
		"article h1",
	}
)

// DynamicConfig tunes the dynamic lane.
type DynamicConfig struct {
	Limits      extract.Limits
	ScrollSteps int
	ScrollWait  time.Duration
	SettleWait  time.Duration
}

// DynamicLane renders pages in a browser session.
type DynamicLane struct {
	browser  harvest.Browser
	detector *detector.Heuristic
	emitter  *record.Emitter
	cfg      DynamicConfig
	logger   *zap.Logger
}

// NewDynamic builds the dynamic lane.
func NewDynamic(
	browser harvest.Browser,
	det *detector.Heuristic,
	emitter *record.Emitter,
	cfg DynamicConfig,
	logger *zap.Logger,
) *DynamicLane {
	if logger == nil {
		logger = zap.NewNop()
	}
	if det == nil {
		det = detector.NewHeuristic(nil, nil)
	}
	return &DynamicLane{browser: browser, detector: det, emitter: emitter, cfg: cfg, logger: logger}
}

// Process renders the task address. A navigation failure before any content
// is observed fails the attempt; a block emits a partial Record.
func (l *DynamicLane) Process(ctx context.Context, task *harvest.Task) Outcome {
	target := task.Address.Canonical
	page, err := l.browser.NewPage(ctx)
	if err != nil {
		return failed(&harvest.FetchError{URL: target, Err: err})
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			l.logger.Debug("close page failed", zap.String("url", target), zap.Error(cerr))
		}
	}()

	status, err := page.Navigate(ctx, target)
	if err != nil {
		return failed(err)
	}

	verdict := l.detector.Inspect(ctx, status, page.Snapshot)
	draft := record.Draft{Address: task.Address, Verdict: verdict}
	if !verdict.Blocked {
		switch task.Address.Platform {
		case harvest.PlatformVideo:
			l.extractVideo(ctx, page, target, &draft)
		case harvest.PlatformPhoto:
			l.extractPhoto(ctx, page, &draft)
		default:
			l.extractGeneric(ctx, page, &draft)
		}
	}
	if draft.Title == nil {
		draft.Title = l.readTitle(ctx, page)
	}

	rec, err := l.emitter.Emit(ctx, draft)
	if err != nil {
		l.logger.Warn("record not persisted", zap.String("url", target), zap.Error(err))
	}
	return finished(rec, draft.Verdict)
}

// extractVideo collects comments on the first visit, then detours to the
// owner's listing for posts and navigates back. A channel address is a
// listing already, so its posts are read in place.
func (l *DynamicLane) extractVideo(ctx context.Context, page harvest.Page, target string, draft *record.Draft) {
	l.scroll(ctx, page)

	if isChannel(target) {
		draft.Posts = l.listingPosts(ctx, page)
		return
	}

	draft.Comments = l.texts(ctx, page, videoCommentSelectors, l.cfg.Limits.MaxComments)
	draft.Title = l.readTitle(ctx, page)

	owner := l.ownerLink(ctx, page)
	if owner == "" || owner == target {
		return
	}
	listing := listingURL(owner)
	if _, err := page.Navigate(ctx, listing); err != nil {
		l.logger.Debug("channel detour failed", zap.String("url", target), zap.String("channel", listing), zap.Error(err))
	} else {
		l.scroll(ctx, page)
		draft.Posts = l.listingPosts(ctx, page)
	}

	status, err := page.Navigate(ctx, target)
	if err != nil {
		l.logger.Debug("return navigation failed", zap.String("url", target), zap.Error(err))
		return
	}
	draft.Verdict = l.detector.Inspect(ctx, status, page.Snapshot)
}

func (l *DynamicLane) extractPhoto(ctx context.Context, page harvest.Page, draft *record.Draft) {
	if err := page.Wait(ctx, l.cfg.SettleWait); err != nil {
		l.logger.Debug("settle wait interrupted", zap.Error(err))
	}
	draft.Comments = l.texts(ctx, page, photoTextSelectors, l.cfg.Limits.MaxComments)
}

// extractGeneric keeps the rendered text as a blob for the signal scores.
func (l *DynamicLane) extractGeneric(ctx context.Context, page harvest.Page, draft *record.Draft) {
	draft.Title = l.readTitle(ctx, page)
	snap, err := page.Snapshot(ctx)
	if err != nil {
		l.logger.Debug("read rendered content failed", zap.Error(err))
		return
	}
	draft.Text = extract.Truncate(extract.Clean(snap.Content), l.cfg.Limits.MaxTextLength)
}

func (l *DynamicLane) scroll(ctx context.Context, page harvest.Page) {
	for i := 0; i < l.cfg.ScrollSteps; i++ {
		if err := page.Scroll(ctx); err != nil {
			l.logger.Debug("scroll failed", zap.Int("step", i), zap.Error(err))
			return
		}
		if err := page.Wait(ctx, l.cfg.ScrollWait); err != nil {
			return
		}
	}
}

func (l *DynamicLane) texts(ctx context.Context, page harvest.Page, selectors []string, limit int) []harvest.Comment {
	strategies := make([]extract.Strategy[string], 0, len(selectors))
	for _, sel := range selectors {
		strategies = append(strategies, func() ([]string, error) {
			return page.Texts(ctx, sel, limit)
		})
	}
	texts := extract.FirstOf(strategies...)
	comments := make([]harvest.Comment, 0, len(texts))
	for _, t := range texts {
		if t = extract.Clean(t); t != "" {
			comments = append(comments, harvest.Comment{Text: t})
		}
	}
	return comments
}

func (l *DynamicLane) listingPosts(ctx context.Context, page harvest.Page) []harvest.Post {
	limit := l.cfg.Limits.MaxPosts
	strategies := make([]extract.Strategy[harvest.Link], 0, len(videoListingSelectors))
	for _, sel := range videoListingSelectors {
		strategies = append(strategies, func() ([]harvest.Link, error) {
			return page.Links(ctx, sel, limit)
		})
	}
	links := extract.FirstOf(strategies...)
	posts := make([]harvest.Post, 0, len(links))
	for _, link := range links {
		title := extract.Clean(link.Title)
		if title == "" && link.Href == "" {
			continue
		}
		posts = append(posts, harvest.Post{Title: title, URL: link.Href})
	}
	return posts
}

func (l *DynamicLane) ownerLink(ctx context.Context, page harvest.Page) string {
	strategies := make([]extract.Strategy[harvest.Link], 0, len(videoOwnerSelectors))
	for _, sel := range videoOwnerSelectors {
		strategies = append(strategies, func() ([]harvest.Link, error) {
			return page.Links(ctx, sel, 1)
		})
	}
	for _, link := range extract.FirstOf(strategies...) {
		if u, err := url.Parse(link.Href); err == nil && isChannel(link.Href) && u.IsAbs() {
			return link.Href
		}
	}
	return ""
}

func (l *DynamicLane) readTitle(ctx context.Context, page harvest.Page) *string {
	title, err := page.Title(ctx)
	if err != nil {
		return nil
	}
	if title = extract.Clean(title); title == "" {
		return nil
	}
	return &title
}

func isChannel(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return address.IsChannelPath(u.Path)
}

// listingURL points a channel address at its uploads listing.
func listingURL(channel string) string {
	u, err := url.Parse(channel)
	if err != nil {
		return channel
	}
	u.RawQuery = ""
	u.Fragment = ""
	path := strings.TrimSuffix(u.Path, "/")
	if !strings.HasSuffix(path, "/videos") {
		path += "/videos"
	}
	u.Path = path
	return u.String()
}
