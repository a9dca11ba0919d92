package lane

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/content-harvester/internal/detector"
	"github.com/JakeFAU/content-harvester/internal/extract"
	"github.com/JakeFAU/content-harvester/internal/harvest"
)

const blogHTML = `<html><head><title>My Blog</title></head><body>
<h1>Post one</h1><h2><a href="/blog/post2">Next post</a></h2>
<p>An ordinary article.</p><a href="https://other.example.org/x">elsewhere</a>
</body></html>`

func genericTask(u string) *harvest.Task {
	return harvest.NewTask(harvest.Address{Raw: u, Canonical: u, Platform: harvest.PlatformGeneric})
}

func staticLane(f harvest.Fetcher) (*StaticLane, func() []harvest.Record) {
	emitter, mem := newTestEmitter()
	l := NewStatic(f, nil, emitter, StaticConfig{Limits: extract.DefaultLimits(), FollowLinks: true}, nil)
	return l, mem.Records
}

func TestStaticLaneGenericPage(t *testing.T) {
	t.Parallel()

	l, records := staticLane(fakeFetcher{resp: harvest.FetchResponse{StatusCode: http.StatusOK, Body: []byte(blogHTML)}})
	out := l.Process(context.Background(), genericTask("https://example.com/blog/post1"))

	require.Equal(t, harvest.TaskSucceeded, out.State)
	require.NoError(t, out.Err)
	require.NotNil(t, out.Record)
	require.Equal(t, harvest.PlatformGeneric, out.Record.Platform)
	require.False(t, out.Record.Blocked)
	require.Nil(t, out.Record.BlockReason)
	require.Equal(t, "My Blog", *out.Record.Title)
	require.Equal(t, []harvest.Post{
		{Title: "Post one"},
		{Title: "Next post", URL: "https://example.com/blog/post2"},
	}, out.Record.Posts)
	require.Equal(t, []string{"https://example.com/blog/post2", "https://other.example.org/x"}, out.Discovered)
	require.Len(t, records(), 1)
}

func TestStaticLaneFetchFailureEmitsNothing(t *testing.T) {
	t.Parallel()

	l, records := staticLane(fakeFetcher{err: &harvest.FetchError{URL: "https://example.com/", StatusCode: http.StatusTooManyRequests}})
	out := l.Process(context.Background(), genericTask("https://example.com/"))
	require.Equal(t, harvest.TaskFailed, out.State)
	require.ErrorIs(t, out.Err, harvest.ErrFetchFailure)
	require.Nil(t, out.Record)
	require.Empty(t, records())

	l, records = staticLane(fakeFetcher{resp: harvest.FetchResponse{StatusCode: http.StatusNotFound}})
	out = l.Process(context.Background(), genericTask("https://example.com/missing"))
	require.Equal(t, harvest.TaskFailed, out.State)
	require.ErrorIs(t, out.Err, harvest.ErrFetchFailure)
	require.Empty(t, records())
}

func TestStaticLaneChallengePageIsBlocked(t *testing.T) {
	t.Parallel()

	body := `<html><head><title>Just a moment</title></head><body><p>Checking your browser before accessing</p><h2>x</h2></body></html>`
	l, records := staticLane(fakeFetcher{resp: harvest.FetchResponse{StatusCode: http.StatusOK, Body: []byte(body)}})
	out := l.Process(context.Background(), genericTask("https://example.com/"))

	require.Equal(t, harvest.TaskBlocked, out.State)
	require.ErrorIs(t, out.Err, harvest.ErrBlocked)
	require.True(t, out.Record.Blocked)
	require.Equal(t, detector.DetectionReason, *out.Record.BlockReason)
	require.Equal(t, "Just a moment", *out.Record.Title)
	require.Empty(t, out.Record.Posts)
	require.Empty(t, out.Discovered)
	require.Len(t, records(), 1)
}

const (
	watchURL   = "https://www.youtube.com/watch?v=XYZ123"
	channelURL = "https://www.youtube.com/@gopher"
)

func videoTask(u string) *harvest.Task {
	return harvest.NewTask(harvest.Address{Raw: u, Canonical: u, Platform: harvest.PlatformVideo})
}

func dynamicLane(b harvest.Browser) (*DynamicLane, func() []harvest.Record) {
	emitter, mem := newTestEmitter()
	cfg := DynamicConfig{
		Limits:      extract.DefaultLimits(),
		ScrollSteps: 3,
		ScrollWait:  time.Millisecond,
		SettleWait:  2 * time.Millisecond,
	}
	return NewDynamic(b, nil, emitter, cfg, nil), mem.Records
}

func TestDynamicLaneChallengeContentIsBlocked(t *testing.T) {
	t.Parallel()

	b := &fakeBrowser{sites: map[string]*fakeSite{
		watchURL: {status: http.StatusOK, title: "YouTube", content: "Please verify you are a human to continue"},
	}}
	l, records := dynamicLane(b)
	out := l.Process(context.Background(), videoTask(watchURL))

	require.Equal(t, harvest.TaskBlocked, out.State)
	require.ErrorIs(t, out.Err, harvest.ErrBlocked)
	require.True(t, out.Record.Blocked)
	require.Contains(t, *out.Record.BlockReason, "detected")
	require.Equal(t, "YouTube", *out.Record.Title)
	require.Empty(t, out.Record.Comments)
	require.Len(t, records(), 1)
	require.Zero(t, b.pages[0].scrolls)
	require.True(t, b.pages[0].closed)
}

func TestDynamicLaneBlockedStatusAndRedirect(t *testing.T) {
	t.Parallel()

	b := &fakeBrowser{sites: map[string]*fakeSite{
		watchURL:                           {status: http.StatusTooManyRequests},
		"https://www.instagram.com/p/abc/": {status: http.StatusOK, redirect: "https://www.instagram.com/accounts/login/?next=/p/abc/"},
	}}
	l, _ := dynamicLane(b)

	out := l.Process(context.Background(), videoTask(watchURL))
	require.Equal(t, harvest.TaskBlocked, out.State)
	require.Equal(t, "status 429", *out.Record.BlockReason)

	photo := harvest.NewTask(harvest.Address{Canonical: "https://www.instagram.com/p/abc/", Platform: harvest.PlatformPhoto})
	out = l.Process(context.Background(), photo)
	require.Equal(t, harvest.TaskBlocked, out.State)
	require.Contains(t, *out.Record.BlockReason, "redirected to https://www.instagram.com/accounts/login/")
}

func TestDynamicLaneNavigationFailure(t *testing.T) {
	t.Parallel()

	b := &fakeBrowser{sites: map[string]*fakeSite{}}
	l, records := dynamicLane(b)
	out := l.Process(context.Background(), videoTask(watchURL))

	require.Equal(t, harvest.TaskFailed, out.State)
	require.ErrorIs(t, out.Err, harvest.ErrFetchFailure)
	require.Nil(t, out.Record)
	require.Empty(t, records())
	require.True(t, b.pages[0].closed)

	l, _ = dynamicLane(&fakeBrowser{pageErr: context.DeadlineExceeded})
	out = l.Process(context.Background(), videoTask(watchURL))
	require.Equal(t, harvest.TaskFailed, out.State)
	require.ErrorIs(t, out.Err, harvest.ErrFetchFailure)
}

func TestDynamicLaneVideoDetourAndReturn(t *testing.T) {
	t.Parallel()

	listing := channelURL + "/videos"
	b := &fakeBrowser{sites: map[string]*fakeSite{
		watchURL: {
			status: http.StatusOK,
			title:  "Great Go talk - YouTube",
			texts: map[string][]string{
				"ytd-comment-renderer #content-text": {" great talk ", "", "I love rust"},
			},
			links: map[string][]harvest.Link{
				"#owner ytd-channel-name a[href]": {{Title: "Gopher", Href: channelURL}},
			},
			failSelectors: map[string]bool{
				"ytd-comment-thread-renderer #content-text":           true,
				"ytd-video-owner-renderer a.yt-simple-endpoint[href]": true,
			},
		},
		listing: {
			status: http.StatusOK,
			title:  "Gopher - YouTube",
			links: map[string][]harvest.Link{
				"a#video-title-link": {
					{Title: "Episode 1", Href: "https://www.youtube.com/watch?v=e1"},
					{Title: "Episode 2", Href: "https://www.youtube.com/watch?v=e2"},
				},
			},
		},
	}}
	l, records := dynamicLane(b)
	out := l.Process(context.Background(), videoTask(watchURL))

	require.Equal(t, harvest.TaskSucceeded, out.State)
	rec := out.Record
	require.Equal(t, "Great Go talk - YouTube", *rec.Title)
	require.Equal(t, []harvest.Comment{{Text: "great talk"}, {Text: "I love rust"}}, rec.Comments)
	require.Equal(t, []harvest.Post{
		{Title: "Episode 1", URL: "https://www.youtube.com/watch?v=e1"},
		{Title: "Episode 2", URL: "https://www.youtube.com/watch?v=e2"},
	}, rec.Posts)
	require.Equal(t, watchURL, rec.URL)

	page := b.pages[0]
	require.Equal(t, []string{watchURL, listing, watchURL}, page.visits)
	require.Equal(t, 6, page.scrolls)
	require.Len(t, records(), 1)
}

func TestDynamicLaneBlockedOnReturn(t *testing.T) {
	t.Parallel()

	listing := channelURL + "/videos"
	b := &fakeBrowser{sites: map[string]*fakeSite{
		watchURL: {
			status: http.StatusOK,
			title:  "video",
			texts:  map[string][]string{"ytd-comment-thread-renderer #content-text": {"first"}},
			links: map[string][]harvest.Link{
				"ytd-video-owner-renderer a.yt-simple-endpoint[href]": {{Href: channelURL}},
			},
			// The return visit lands on a consent wall.
			revisit: &fakeSite{status: http.StatusOK, redirect: "https://consent.youtube.com/m?continue=x"},
		},
		listing: {
			status: http.StatusOK,
			links:  map[string][]harvest.Link{"a#video-title": {{Title: "Only", Href: "https://www.youtube.com/watch?v=o"}}},
		},
	}}
	l, records := dynamicLane(b)
	out := l.Process(context.Background(), videoTask(watchURL))

	require.Equal(t, harvest.TaskBlocked, out.State)
	require.ErrorIs(t, out.Err, harvest.ErrBlocked)
	require.Equal(t, "redirected to https://consent.youtube.com/m?continue=x", *out.Record.BlockReason)
	require.Equal(t, []harvest.Comment{{Text: "first"}}, out.Record.Comments)
	require.Equal(t, []harvest.Post{{Title: "Only", URL: "https://www.youtube.com/watch?v=o"}}, out.Record.Posts)
	require.Equal(t, "video", *out.Record.Title)
	require.Len(t, records(), 1)
}

func TestDynamicLaneChannelInPlace(t *testing.T) {
	t.Parallel()

	b := &fakeBrowser{sites: map[string]*fakeSite{
		channelURL: {
			status: http.StatusOK,
			title:  "Gopher - YouTube",
			links: map[string][]harvest.Link{
				"a#video-title-link": {{Title: "Episode 1", Href: "https://www.youtube.com/watch?v=e1"}},
			},
		},
	}}
	l, _ := dynamicLane(b)
	out := l.Process(context.Background(), videoTask(channelURL))

	require.Equal(t, harvest.TaskSucceeded, out.State)
	require.Equal(t, []harvest.Post{{Title: "Episode 1", URL: "https://www.youtube.com/watch?v=e1"}}, out.Record.Posts)
	require.Empty(t, out.Record.Comments)
	require.Equal(t, []string{channelURL}, b.pages[0].visits)
}

func TestDynamicLanePhoto(t *testing.T) {
	t.Parallel()

	photoURL := "https://www.instagram.com/p/abc/"
	b := &fakeBrowser{sites: map[string]*fakeSite{
		photoURL: {
			status: http.StatusOK,
			title:  "Instagram",
			texts: map[string][]string{
				`article span[dir="auto"]`: {"so good", "best photo"},
			},
			failSelectors: map[string]bool{"ul li > div > div > div > span": true},
		},
	}}
	l, _ := dynamicLane(b)
	task := harvest.NewTask(harvest.Address{Canonical: photoURL, Platform: harvest.PlatformPhoto})
	out := l.Process(context.Background(), task)

	require.Equal(t, harvest.TaskSucceeded, out.State)
	require.Equal(t, []harvest.Comment{{Text: "so good"}, {Text: "best photo"}}, out.Record.Comments)
	require.Empty(t, out.Record.Posts)
	require.Equal(t, []time.Duration{2 * time.Millisecond}, b.pages[0].waits)
	require.Positive(t, out.Record.Sentiment.Score)
}

func TestDynamicLaneGenericTextBlob(t *testing.T) {
	t.Parallel()

	u := "https://app.example.com/"
	b := &fakeBrowser{sites: map[string]*fakeSite{
		u: {status: http.StatusOK, title: "App", content: "an awful   terrible experience"},
	}}
	l, _ := dynamicLane(b)
	out := l.Process(context.Background(), genericTask(u))

	require.Equal(t, harvest.TaskSucceeded, out.State)
	require.Equal(t, "App", *out.Record.Title)
	require.Empty(t, out.Record.Posts)
	require.Empty(t, out.Record.Comments)
	require.Equal(t, -2, out.Record.Sentiment.Score)
}

func TestListingURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://www.youtube.com/@gopher/videos", listingURL("https://www.youtube.com/@gopher/"))
	require.Equal(t, "https://www.youtube.com/channel/UC1/videos", listingURL("https://www.youtube.com/channel/UC1/videos?view=0"))
	require.True(t, isChannel("https://www.youtube.com/c/gopher"))
	require.False(t, isChannel(watchURL))
}
