// Package headless renders script-heavy pages in headless Chrome via chromedp.
package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/content-harvester/internal/harvest"
)

// ErrBrowserClosed is returned when a page is requested after Close.
var ErrBrowserClosed = errors.New("browser closed")

// blockedResourceTypes are refused before they reach the network.
var blockedResourceTypes = map[network.ResourceType]struct{}{
	network.ResourceTypeImage: {},
	network.ResourceTypeMedia: {},
	network.ResourceTypeFont:  {},
}

// Config controls the headless browser.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	// ProxyServer is passed to Chrome as --proxy-server. Credentials are
	// answered through the fetch domain.
	ProxyServer   string
	ProxyUsername string
	ProxyPassword string
}

// Browser implements harvest.Browser with a single shared Chrome process.
type Browser struct {
	cfg             Config
	logger          *zap.Logger
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewChromedp starts Chrome and returns a Browser.
func NewChromedp(cfg Config, logger *zap.Logger) (*Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ProxyServer != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.ProxyServer))
	}
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Browser{
		cfg:             cfg,
		logger:          logger,
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
	}, nil
}

// Close tears down the browser and allocator contexts.
func (b *Browser) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.browserCancel()
	b.allocatorCancel()
	return nil
}

// NewPage opens a tab with heavy resource types blocked.
func (b *Browser) NewPage(ctx context.Context) (harvest.Page, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, ErrBrowserClosed
	}

	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	p := &Page{
		tabCtx:     tabCtx,
		cancel:     cancelTab,
		meta:       newResponseMeta(),
		navTimeout: b.cfg.NavigationTimeout,
		logger:     b.logger,
		username:   b.cfg.ProxyUsername,
		password:   b.cfg.ProxyPassword,
	}
	creds := b.cfg.ProxyUsername != ""
	chromedp.ListenTarget(tabCtx, p.listen(creds))

	// The first Run creates the target and ties it to tabCtx, so it must not
	// carry a deadline.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		return nil, fmt.Errorf("create tab: %w", err)
	}
	if err := p.run(ctx, b.setupAction(creds)); err != nil {
		cancelTab()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return p, nil
}

func (b *Browser) setupAction(creds bool) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		enable := fetch.Enable().WithPatterns(interceptPatterns(creds))
		if creds {
			enable = enable.WithHandleAuthRequests(true)
		}
		if err := enable.Do(ctx); err != nil {
			return fmt.Errorf("enable fetch domain: %w", err)
		}
		return nil
	})
}

// interceptPatterns pauses only blocked resource types, unless proxy auth
// requires every request to pass through the fetch domain.
func interceptPatterns(creds bool) []*fetch.RequestPattern {
	if creds {
		return []*fetch.RequestPattern{{URLPattern: "*", RequestStage: fetch.RequestStageRequest}}
	}
	patterns := make([]*fetch.RequestPattern, 0, len(blockedResourceTypes))
	for _, rt := range []network.ResourceType{network.ResourceTypeImage, network.ResourceTypeMedia, network.ResourceTypeFont} {
		patterns = append(patterns, &fetch.RequestPattern{
			URLPattern:   "*",
			ResourceType: rt,
			RequestStage: fetch.RequestStageRequest,
		})
	}
	return patterns
}

// Page implements harvest.Page over one chromedp tab.
type Page struct {
	tabCtx     context.Context
	cancel     context.CancelFunc
	meta       *responseMeta
	navTimeout time.Duration
	logger     *zap.Logger
	username   string
	password   string
}

func (p *Page) listen(creds bool) func(ev any) {
	return func(ev any) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			p.meta.capture(e)
		case *fetch.EventRequestPaused:
			go p.resolvePaused(e)
		case *fetch.EventAuthRequired:
			if creds {
				go p.answerAuth(e)
			}
		}
	}
}

func (p *Page) executor() context.Context {
	c := chromedp.FromContext(p.tabCtx)
	if c == nil || c.Target == nil {
		return p.tabCtx
	}
	return cdp.WithExecutor(p.tabCtx, c.Target)
}

func (p *Page) resolvePaused(e *fetch.EventRequestPaused) {
	ctx := p.executor()
	var err error
	if _, blocked := blockedResourceTypes[e.ResourceType]; blocked {
		err = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(ctx)
	} else {
		err = fetch.ContinueRequest(e.RequestID).Do(ctx)
	}
	if err != nil && p.tabCtx.Err() == nil {
		p.logger.Debug("resolve paused request failed", zap.String("type", string(e.ResourceType)), zap.Error(err))
	}
}

func (p *Page) answerAuth(e *fetch.EventAuthRequired) {
	err := fetch.ContinueWithAuth(e.RequestID, &fetch.AuthChallengeResponse{
		Response: fetch.AuthChallengeResponseResponseProvideCredentials,
		Username: p.username,
		Password: p.password,
	}).Do(p.executor())
	if err != nil && p.tabCtx.Err() == nil {
		p.logger.Debug("answer proxy auth failed", zap.Error(err))
	}
}

// run executes actions on the tab, bounded by the navigation timeout and the
// caller's context.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.tabCtx, p.navTimeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("chromedp run: %w", ctxErr)
		}
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

// Navigate loads rawURL and returns the main document status, 0 if none was seen.
func (p *Page) Navigate(ctx context.Context, rawURL string) (int, error) {
	p.meta.reset()
	err := p.run(ctx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		status, _ := p.meta.snapshot()
		return status, &harvest.FetchError{URL: rawURL, StatusCode: status, Err: err}
	}
	status, _ := p.meta.snapshot()
	return status, nil
}

// Snapshot reads the current address, title and visible text.
func (p *Page) Snapshot(ctx context.Context) (harvest.Snapshot, error) {
	var snap harvest.Snapshot
	err := p.run(ctx,
		chromedp.Location(&snap.URL),
		chromedp.Title(&snap.Title),
		chromedp.Evaluate(visibleTextScript, &snap.Content),
	)
	if err != nil {
		return harvest.Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	return snap, nil
}

// Title returns the document title.
func (p *Page) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("read title: %w", err)
	}
	return title, nil
}

// Content returns the rendered markup.
func (p *Page) Content(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	return html, nil
}

// Texts evaluates selector in the page. Elements that fail to read are skipped.
func (p *Page) Texts(ctx context.Context, selector string, limit int) ([]string, error) {
	script, err := textsScript(selector, limit)
	if err != nil {
		return nil, err
	}
	var out []string
	if err := p.run(ctx, chromedp.Evaluate(script, &out)); err != nil {
		return nil, fmt.Errorf("read texts %q: %w", selector, err)
	}
	return out, nil
}

// Links returns anchors matching selector with browser-resolved hrefs.
func (p *Page) Links(ctx context.Context, selector string, limit int) ([]harvest.Link, error) {
	script, err := linksScript(selector, limit)
	if err != nil {
		return nil, err
	}
	var out []harvest.Link
	if err := p.run(ctx, chromedp.Evaluate(script, &out)); err != nil {
		return nil, fmt.Errorf("read links %q: %w", selector, err)
	}
	return out, nil
}

// Scroll moves the viewport down by one screen.
func (p *Page) Scroll(ctx context.Context) error {
	var ok bool
	if err := p.run(ctx, chromedp.Evaluate(scrollScript, &ok)); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

// Wait pauses for d or until ctx is done.
func (p *Page) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("wait: %w", ctx.Err())
	case <-p.tabCtx.Done():
		return fmt.Errorf("wait: %w", p.tabCtx.Err())
	case <-timer.C:
		return nil
	}
}

// Close closes the tab.
func (p *Page) Close() error {
	p.cancel()
	return nil
}

const (
	visibleTextScript = `(() => document.body ? (document.body.innerText || "") : "")()`
	scrollScript      = `(() => { window.scrollBy(0, window.innerHeight || 800); return true; })()`
)

func textsScript(selector string, limit int) (string, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return "", fmt.Errorf("encode selector: %w", err)
	}
	return fmt.Sprintf(`(() => {
  const out = [];
  let nodes = [];
  try { nodes = Array.from(document.querySelectorAll(%s)); } catch (e) { return out; }
  for (const n of nodes) {
    if (%d > 0 && out.length >= %d) break;
    try {
      const t = (n.innerText || n.textContent || "").trim();
      if (t) out.push(t);
    } catch (e) {}
  }
  return out;
})()`, sel, limit, limit), nil
}

func linksScript(selector string, limit int) (string, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return "", fmt.Errorf("encode selector: %w", err)
	}
	return fmt.Sprintf(`(() => {
  const out = [];
  let nodes = [];
  try { nodes = Array.from(document.querySelectorAll(%s)); } catch (e) { return out; }
  for (const n of nodes) {
    if (%d > 0 && out.length >= %d) break;
    try {
      const href = n.href || "";
      const title = (n.innerText || n.getAttribute("title") || n.getAttribute("aria-label") || "").trim();
      if (href) out.push({title: title, href: String(href)});
    } catch (e) {}
  }
  return out;
})()`, sel, limit, limit), nil
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
	seen   bool
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

// capture keeps the first document response after a reset.
func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen {
		return
	}
	m.seen = true
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
}

func (m *responseMeta) reset() {
	m.mu.Lock()
	m.status, m.url, m.seen = 0, "", false
	m.mu.Unlock()
}

func (m *responseMeta) snapshot() (int, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.url
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
