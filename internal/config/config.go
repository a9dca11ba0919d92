// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/content-harvester/internal/harvest"
	"github.com/JakeFAU/content-harvester/internal/proxy"
	"github.com/JakeFAU/content-harvester/internal/sink/gcs"
	"github.com/JakeFAU/content-harvester/internal/sink/jsonl"
	"github.com/JakeFAU/content-harvester/internal/sink/postgres"
	"github.com/JakeFAU/content-harvester/internal/sink/pubsub"
)

// EnvPrefix scopes environment overrides, e.g. HARVESTER_BUDGET_MAX_ADDRESSES.
const EnvPrefix = "HARVESTER"

// DefaultUserAgent is sent by both lanes unless overridden.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0 Safari/537.36"

// Sink kinds accepted in sink.kinds.
const (
	SinkJSONL    = "jsonl"
	SinkPostgres = "postgres"
	SinkGCS      = "gcs"
	SinkPubSub   = "pubsub"
	SinkMemory   = "memory"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Seeds      []any            `mapstructure:"seeds"`
	Platforms  []string         `mapstructure:"platforms"`
	Keywords   []string         `mapstructure:"keywords"`
	Budget     BudgetConfig     `mapstructure:"budget"`
	Extract    ExtractConfig    `mapstructure:"extract"`
	Static     StaticConfig     `mapstructure:"static"`
	Dynamic    DynamicConfig    `mapstructure:"dynamic"`
	Politeness PolitenessConfig `mapstructure:"politeness"`
	Retry      RetryConfig      `mapstructure:"retry"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Proxy      proxy.Config     `mapstructure:"proxy"`
	Sink       SinkConfig       `mapstructure:"sink"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// BudgetConfig caps the work of one run.
type BudgetConfig struct {
	MaxAddresses int `mapstructure:"max_addresses"`
}

// ExtractConfig bounds extracted content.
type ExtractConfig struct {
	MaxPosts         int  `mapstructure:"max_posts"`
	MaxComments      int  `mapstructure:"max_comments"`
	MaxCommentLength int  `mapstructure:"max_comment_length"`
	MaxTextLength    int  `mapstructure:"max_text_length"`
	FollowLinks      bool `mapstructure:"follow_links"`
}

// StaticConfig governs the static lane.
type StaticConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// DynamicConfig governs the dynamic lane and its browser.
type DynamicConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Concurrency int           `mapstructure:"concurrency"`
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
	ScrollSteps int           `mapstructure:"scroll_steps"`
	ScrollWait  time.Duration `mapstructure:"scroll_wait"`
	SettleWait  time.Duration `mapstructure:"settle_wait"`
}

// PolitenessConfig spaces requests per host.
type PolitenessConfig struct {
	PerHostDelay time.Duration `mapstructure:"per_host_delay"`
}

// RetryConfig bounds attempts per task.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// HTTPConfig configures the static fetcher.
type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// SinkConfig selects and configures record sinks.
type SinkConfig struct {
	Kinds    []string        `mapstructure:"kinds"`
	JSONL    jsonl.Config    `mapstructure:"jsonl"`
	Postgres postgres.Config `mapstructure:"postgres"`
	GCS      gcs.Config      `mapstructure:"gcs"`
	PubSub   pubsub.Config   `mapstructure:"pubsub"`
}

// MetricsConfig enables the status server.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("budget.max_addresses", 100)
	v.SetDefault("extract.max_posts", 50)
	v.SetDefault("extract.max_comments", 100)
	v.SetDefault("extract.max_comment_length", 2000)
	v.SetDefault("extract.max_text_length", 20000)
	v.SetDefault("extract.follow_links", true)
	v.SetDefault("static.concurrency", 4)
	v.SetDefault("dynamic.enabled", true)
	v.SetDefault("dynamic.concurrency", 1)
	v.SetDefault("dynamic.nav_timeout", "45s")
	v.SetDefault("dynamic.scroll_steps", 4)
	v.SetDefault("dynamic.scroll_wait", "1500ms")
	v.SetDefault("dynamic.settle_wait", "2s")
	v.SetDefault("politeness.per_host_delay", "2s")
	v.SetDefault("retry.max_attempts", 2)
	v.SetDefault("retry.base_delay", "500ms")
	v.SetDefault("retry.max_delay", "5s")
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.user_agent", DefaultUserAgent)
	// Keys without a real default are still registered so AutomaticEnv
	// overrides reach Unmarshal.
	v.SetDefault("proxy.endpoint", "")
	v.SetDefault("proxy.group", "")
	v.SetDefault("proxy.region", "")
	v.SetDefault("proxy.password", "")
	v.SetDefault("proxy.urls", []string{})
	v.SetDefault("sink.kinds", []string{SinkJSONL})
	v.SetDefault("sink.jsonl.path", "data/records.jsonl")
	v.SetDefault("sink.postgres.dsn", "")
	v.SetDefault("sink.postgres.table", "records")
	v.SetDefault("sink.gcs.bucket", "")
	v.SetDefault("sink.gcs.prefix", "records")
	v.SetDefault("sink.pubsub.project_id", "")
	v.SetDefault("sink.pubsub.topic", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Budget.MaxAddresses <= 0 {
		errs = append(errs, errors.New("budget.max_addresses must be > 0"))
	}
	if c.Static.Concurrency <= 0 {
		errs = append(errs, errors.New("static.concurrency must be > 0"))
	}
	if c.Dynamic.Enabled && c.Dynamic.Concurrency <= 0 {
		errs = append(errs, errors.New("dynamic.concurrency must be > 0 when the dynamic lane is enabled"))
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry.max_attempts must be > 0"))
	}
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("http.timeout must be > 0"))
	}
	if c.Politeness.PerHostDelay < 0 {
		errs = append(errs, errors.New("politeness.per_host_delay must be >= 0"))
	}
	if _, err := c.AllowedPlatforms(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, c.Sink.validate()...)
	if c.Proxy.Endpoint != "" && c.Proxy.Group == "" {
		errs = append(errs, errors.New("proxy.group must be set when proxy.endpoint is set"))
	}
	return errors.Join(errs...)
}

func (s SinkConfig) validate() []error {
	var errs []error
	if len(s.Kinds) == 0 {
		errs = append(errs, errors.New("sink.kinds must name at least one sink"))
	}
	for _, kind := range s.Kinds {
		switch strings.ToLower(strings.TrimSpace(kind)) {
		case SinkJSONL:
			if s.JSONL.Path == "" {
				errs = append(errs, errors.New("sink.jsonl.path must be set"))
			}
		case SinkPostgres:
			if s.Postgres.DSN == "" {
				errs = append(errs, errors.New("sink.postgres.dsn must be set"))
			}
		case SinkGCS:
			if s.GCS.Bucket == "" {
				errs = append(errs, errors.New("sink.gcs.bucket must be set"))
			}
		case SinkPubSub:
			if s.PubSub.ProjectID == "" || s.PubSub.Topic == "" {
				errs = append(errs, errors.New("sink.pubsub.project_id and sink.pubsub.topic must be set"))
			}
		case SinkMemory:
		default:
			errs = append(errs, fmt.Errorf("sink.kinds: unknown sink %q", kind))
		}
	}
	return errs
}

// AllowedPlatforms parses the platform allow-list. Empty means all.
func (c Config) AllowedPlatforms() ([]harvest.Platform, error) {
	out := make([]harvest.Platform, 0, len(c.Platforms))
	for _, raw := range c.Platforms {
		p := harvest.Platform(strings.ToLower(strings.TrimSpace(raw)))
		if !p.Valid() {
			return nil, fmt.Errorf("platforms: unknown platform %q", raw)
		}
		out = append(out, p)
	}
	return out, nil
}
