package lane

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/content-harvester/internal/extract"
	"github.com/JakeFAU/content-harvester/internal/harvest"
	"github.com/JakeFAU/content-harvester/internal/record"
	"github.com/JakeFAU/content-harvester/internal/sink/memory"
)

type fakeFetcher struct {
	resp harvest.FetchResponse
	err  error
}

func (f fakeFetcher) Fetch(_ context.Context, rawURL string) (harvest.FetchResponse, error) {
	if f.err != nil {
		return harvest.FetchResponse{}, f.err
	}
	resp := f.resp
	if resp.URL == "" {
		resp.URL = rawURL
	}
	return resp, nil
}

// fakeSite describes what the fake browser renders for one address.
type fakeSite struct {
	status  int
	navErr  error
	title   string
	content string
	// redirect is the address reported by Snapshot, if different.
	redirect string
	texts    map[string][]string
	links    map[string][]harvest.Link
	// failSelectors make Texts/Links return an error.
	failSelectors map[string]bool
	// revisit replaces the site on every visit after the first.
	revisit *fakeSite
}

type fakeBrowser struct {
	mu      sync.Mutex
	sites   map[string]*fakeSite
	pageErr error
	pages   []*fakePage
}

func (b *fakeBrowser) NewPage(context.Context) (harvest.Page, error) {
	if b.pageErr != nil {
		return nil, b.pageErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p := &fakePage{browser: b}
	b.pages = append(b.pages, p)
	return p, nil
}

type fakePage struct {
	browser *fakeBrowser
	current *fakeSite
	url     string
	visits  []string
	scrolls int
	waits   []time.Duration
	closed  bool
}

func (p *fakePage) site() *fakeSite {
	if p.current == nil {
		return &fakeSite{}
	}
	return p.current
}

func (p *fakePage) Navigate(_ context.Context, rawURL string) (int, error) {
	seen := 0
	for _, v := range p.visits {
		if v == rawURL {
			seen++
		}
	}
	p.visits = append(p.visits, rawURL)
	s, ok := p.browser.sites[rawURL]
	if !ok {
		return 0, &harvest.FetchError{URL: rawURL, Err: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	}
	if seen > 0 && s.revisit != nil {
		s = s.revisit
	}
	if s.navErr != nil {
		return s.status, &harvest.FetchError{URL: rawURL, Err: s.navErr}
	}
	p.current, p.url = s, rawURL
	return s.status, nil
}

func (p *fakePage) Snapshot(context.Context) (harvest.Snapshot, error) {
	s := p.site()
	u := p.url
	if s.redirect != "" {
		u = s.redirect
	}
	return harvest.Snapshot{URL: u, Title: s.title, Content: s.content}, nil
}

func (p *fakePage) Title(context.Context) (string, error) {
	return p.site().title, nil
}

func (p *fakePage) Content(context.Context) (string, error) {
	return "<html><body>" + p.site().content + "</body></html>", nil
}

func (p *fakePage) Texts(_ context.Context, selector string, limit int) ([]string, error) {
	s := p.site()
	if s.failSelectors[selector] {
		return nil, errors.New("execution context destroyed")
	}
	out := s.texts[selector]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (p *fakePage) Links(_ context.Context, selector string, limit int) ([]harvest.Link, error) {
	s := p.site()
	if s.failSelectors[selector] {
		return nil, errors.New("execution context destroyed")
	}
	out := s.links[selector]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (p *fakePage) Scroll(context.Context) error {
	p.scrolls++
	return nil
}

func (p *fakePage) Wait(_ context.Context, d time.Duration) error {
	p.waits = append(p.waits, d)
	return nil
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }

func newTestEmitter() (*record.Emitter, *memory.Sink) {
	mem := memory.New()
	return record.NewEmitter(record.NewBuilder(nil, extract.DefaultLimits(), fixedClock{}), mem, nil), mem
}
