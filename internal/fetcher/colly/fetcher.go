// Package collyfetcher implements harvest.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/proxy"

	"github.com/JakeFAU/content-harvester/internal/harvest"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Proxies rotate round-robin per request. Empty disables proxying.
	Proxies []string
}

// Fetcher implements harvest.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) (*Fetcher, error) {
	c := colly.NewCollector(colly.Async(false))
	// Retries visit the same address again.
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())

	if len(cfg.Proxies) > 0 {
		switcher, err := proxy.RoundRobinProxySwitcher(cfg.Proxies...)
		if err != nil {
			return nil, fmt.Errorf("configure proxy rotation: %w", err)
		}
		c.SetProxyFunc(switcher)
	}

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}, nil
}

// Fetch executes a single HTTP GET. Transport errors and non-2xx statuses
// come back as *harvest.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (harvest.FetchResponse, error) {
	var (
		result   harvest.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector()
	f.configureCollectorHooks(collector, rawURL, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		return harvest.FetchResponse{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	rawURL string,
	start time.Time,
	result *harvest.FetchResponse,
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		*result = harvest.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		fe := &harvest.FetchError{URL: rawURL, Err: err}
		if r != nil && r.StatusCode != 0 {
			fe.StatusCode = r.StatusCode
			if r.StatusCode < 200 || r.StatusCode >= 300 {
				fe.Err = nil
			}
		}
		*fetchErr = fe
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, rawURL string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return &harvest.FetchError{URL: rawURL, Err: fmt.Errorf("colly fetch canceled: %w", ctx.Err())}
	case err := <-done:
		if *fetchErr != nil {
			return *fetchErr
		}
		if err != nil {
			return &harvest.FetchError{URL: rawURL, Err: fmt.Errorf("colly visit failed: %w", err)}
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
