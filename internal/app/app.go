// Package app builds the long-lived services of a harvest run from
// configuration and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/content-harvester/internal/address"
	"github.com/JakeFAU/content-harvester/internal/api"
	"github.com/JakeFAU/content-harvester/internal/clock/system"
	"github.com/JakeFAU/content-harvester/internal/config"
	"github.com/JakeFAU/content-harvester/internal/detector"
	"github.com/JakeFAU/content-harvester/internal/dispatcher"
	"github.com/JakeFAU/content-harvester/internal/extract"
	collyfetcher "github.com/JakeFAU/content-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/content-harvester/internal/fetcher/headless"
	"github.com/JakeFAU/content-harvester/internal/harvest"
	"github.com/JakeFAU/content-harvester/internal/id/uuid"
	"github.com/JakeFAU/content-harvester/internal/lane"
	"github.com/JakeFAU/content-harvester/internal/metrics"
	"github.com/JakeFAU/content-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/content-harvester/internal/policy/retry"
	"github.com/JakeFAU/content-harvester/internal/proxy"
	"github.com/JakeFAU/content-harvester/internal/record"
	"github.com/JakeFAU/content-harvester/internal/report"
	"github.com/JakeFAU/content-harvester/internal/sentiment"
	"github.com/JakeFAU/content-harvester/internal/sink"
	gcssink "github.com/JakeFAU/content-harvester/internal/sink/gcs"
	"github.com/JakeFAU/content-harvester/internal/sink/jsonl"
	memorysink "github.com/JakeFAU/content-harvester/internal/sink/memory"
	"github.com/JakeFAU/content-harvester/internal/sink/postgres"
	pubsubsink "github.com/JakeFAU/content-harvester/internal/sink/pubsub"
)

// App contains the run's dependencies.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	dispatcher *dispatcher.Dispatcher
	sink       harvest.Sink
	status     *api.Server
	closers    []closer
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// Option overrides a collaborator built from configuration.
type Option func(*options)

type options struct {
	fetcher  harvest.Fetcher
	browser  harvest.Browser
	sink     harvest.Sink
	reporter harvest.Reporter
}

// WithFetcher replaces the colly fetcher of the static lane.
func WithFetcher(f harvest.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithBrowser replaces the chromedp browser of the dynamic lane.
func WithBrowser(b harvest.Browser) Option {
	return func(o *options) { o.browser = b }
}

// WithSink replaces the sinks named in sink.kinds.
func WithSink(s harvest.Sink) Option {
	return func(o *options) { o.sink = s }
}

// WithReporter adds a failure reporter next to the log reporter.
func WithReporter(r harvest.Reporter) Option {
	return func(o *options) { o.reporter = r }
}

// Build creates the application's dependencies. Resources opened before a
// failure are released.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (app *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
				logger.Warn("release after failed build", zap.Error(cerr))
			}
		}
	}()

	normalizer, err := newNormalizer(cfg, logger)
	if err != nil {
		return nil, err
	}
	pool, err := proxy.New(cfg.Proxy)
	if err != nil {
		return nil, fmt.Errorf("proxy pool: %w", err)
	}

	a.sink = o.sink
	if a.sink == nil {
		if a.sink, err = a.buildSinks(ctx); err != nil {
			return nil, err
		}
	}
	a.closers = append(a.closers, closer{name: "sink", fn: a.sink.Close})

	limits := extract.Limits{
		MaxPosts:         cfg.Extract.MaxPosts,
		MaxComments:      cfg.Extract.MaxComments,
		MaxCommentLength: cfg.Extract.MaxCommentLength,
		MaxTextLength:    cfg.Extract.MaxTextLength,
	}
	analyzer := sentiment.NewAnalyzer(cfg.Keywords)
	if kept := len(analyzer.Keywords()); kept < len(cfg.Keywords) {
		logger.Warn("keyword list trimmed",
			zap.Int("given", len(cfg.Keywords)),
			zap.Int("tracked", kept),
			zap.Int("max", sentiment.MaxKeywords),
		)
	}
	builder := record.NewBuilder(analyzer, limits, system.New())
	emitter := record.NewEmitter(builder, a.sink, logger)
	det := detector.NewHeuristic(nil, nil)

	processors := make(map[harvest.Lane]lane.Processor, 2)

	fetcher := o.fetcher
	if fetcher == nil {
		if fetcher, err = collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.HTTP.UserAgent,
			Timeout:   cfg.HTTP.Timeout,
			Proxies:   pool.URLs(),
		}); err != nil {
			return nil, fmt.Errorf("static fetcher: %w", err)
		}
	}
	processors[harvest.LaneStatic] = lane.NewStatic(fetcher, det, emitter, lane.StaticConfig{
		Limits:      limits,
		FollowLinks: cfg.Extract.FollowLinks,
	}, logger.Named("static"))

	if cfg.Dynamic.Enabled {
		browser := o.browser
		if browser == nil {
			if browser, err = a.launchBrowser(pool); err != nil {
				return nil, err
			}
		}
		processors[harvest.LaneDynamic] = lane.NewDynamic(browser, det, emitter, lane.DynamicConfig{
			Limits:      limits,
			ScrollSteps: cfg.Dynamic.ScrollSteps,
			ScrollWait:  cfg.Dynamic.ScrollWait,
			SettleWait:  cfg.Dynamic.SettleWait,
		}, logger.Named("dynamic"))
	} else {
		logger.Info("dynamic lane disabled; video and photo addresses will be skipped")
	}

	reporter := harvest.Reporter(report.NewLog(logger))
	if o.reporter != nil {
		reporter = report.Fanout{reporter, o.reporter}
	}
	policy := retry.NewExponentialPolicy(retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	})
	a.dispatcher = dispatcher.New(normalizer, processors, policy, reporter, uuid.New(), system.New(), dispatcher.Config{
		Budget: cfg.Budget.MaxAddresses,
		Concurrency: map[harvest.Lane]int{
			harvest.LaneStatic:  cfg.Static.Concurrency,
			harvest.LaneDynamic: cfg.Dynamic.Concurrency,
		},
		Politeness: ratelimit.Config{PerHostDelay: cfg.Politeness.PerHostDelay},
	}, logger)

	if cfg.Metrics.Addr != "" {
		a.status = api.NewServer(a.dispatcher, logger.Named("status"))
	}
	return a, nil
}

// Plan normalizes seeds and groups them by lane without touching the network.
func Plan(cfg config.Config, seeds []any, logger *zap.Logger) (map[harvest.Lane][]harvest.Address, error) {
	normalizer, err := newNormalizer(cfg, logger)
	if err != nil {
		return nil, err
	}
	plan, err := dispatcher.New(normalizer, nil, nil, nil, nil, nil, dispatcher.Config{}, logger).Plan(seeds)
	if err != nil {
		return nil, fmt.Errorf("plan seeds: %w", err)
	}
	return plan, nil
}

// Dispatcher exposes the run's dispatcher.
func (a *App) Dispatcher() *dispatcher.Dispatcher {
	return a.dispatcher
}

// Run harvests seeds, serving the status API while the run lasts when
// metrics.addr is set.
func (a *App) Run(ctx context.Context, seeds []any) (dispatcher.Summary, error) {
	if a.status == nil {
		return a.dispatcher.Run(ctx, seeds)
	}

	statusCtx, stop := context.WithCancel(ctx)
	statusDone := make(chan error, 1)
	go func() {
		statusDone <- a.status.ListenAndServe(statusCtx, a.cfg.Metrics.Addr)
	}()

	summary, err := a.dispatcher.Run(ctx, seeds)
	stop()
	if serr := <-statusDone; serr != nil {
		a.logger.Warn("status server stopped with error", zap.Error(serr))
	}
	return summary, err
}

// Close releases every resource in reverse build order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newNormalizer(cfg config.Config, logger *zap.Logger) (*address.Normalizer, error) {
	platforms, err := cfg.AllowedPlatforms()
	if err != nil {
		return nil, fmt.Errorf("platform allow-list: %w", err)
	}
	return address.NewNormalizer(platforms, logger), nil
}

func (a *App) launchBrowser(pool *proxy.Pool) (*headless.Browser, error) {
	hcfg := headless.Config{
		UserAgent:         a.cfg.HTTP.UserAgent,
		NavigationTimeout: a.cfg.Dynamic.NavTimeout,
	}
	if server, creds, ok := pool.Server(); ok {
		hcfg.ProxyServer = server
		hcfg.ProxyUsername = creds.Username
		hcfg.ProxyPassword = creds.Password
	}
	browser, err := headless.NewChromedp(hcfg, a.logger.Named("browser"))
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	a.closers = append(a.closers, closer{name: "browser", fn: func(context.Context) error {
		return browser.Close()
	}})
	return browser, nil
}

func (a *App) buildSinks(ctx context.Context) (harvest.Sink, error) {
	named := make([]sink.Named, 0, len(a.cfg.Sink.Kinds))
	for _, kind := range a.cfg.Sink.Kinds {
		kind = strings.ToLower(strings.TrimSpace(kind))
		s, err := a.openSink(ctx, kind)
		if err != nil {
			for _, opened := range named {
				if cerr := opened.Sink.Close(ctx); cerr != nil {
					a.logger.Warn("close sink after failed build", zap.String("sink", opened.Name), zap.Error(cerr))
				}
			}
			return nil, fmt.Errorf("open %s sink: %w", kind, err)
		}
		a.logger.Info("sink ready", zap.String("sink", kind))
		named = append(named, sink.Named{Name: kind, Sink: s})
	}
	return sink.NewMulti(a.logger, named...), nil
}

func (a *App) openSink(ctx context.Context, kind string) (harvest.Sink, error) {
	switch kind {
	case config.SinkJSONL:
		return jsonl.New(a.cfg.Sink.JSONL)
	case config.SinkPostgres:
		return postgres.New(ctx, a.cfg.Sink.Postgres)
	case config.SinkGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage client: %w", err)
		}
		s, err := gcssink.New(client, a.cfg.Sink.GCS)
		if err != nil {
			_ = client.Close() //nolint:errcheck // already failing
			return nil, err
		}
		return s, nil
	case config.SinkPubSub:
		return pubsubsink.New(ctx, a.cfg.Sink.PubSub)
	case config.SinkMemory:
		return memorysink.New(), nil
	default:
		return nil, fmt.Errorf("unknown sink %q", kind)
	}
}
