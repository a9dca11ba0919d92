package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/content-harvester/internal/harvest"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 100, cfg.Budget.MaxAddresses)
	require.Equal(t, 50, cfg.Extract.MaxPosts)
	require.Equal(t, 100, cfg.Extract.MaxComments)
	require.Equal(t, 2000, cfg.Extract.MaxCommentLength)
	require.Equal(t, 20000, cfg.Extract.MaxTextLength)
	require.True(t, cfg.Extract.FollowLinks)
	require.Equal(t, 4, cfg.Static.Concurrency)
	require.True(t, cfg.Dynamic.Enabled)
	require.Equal(t, 1, cfg.Dynamic.Concurrency)
	require.Equal(t, 45*time.Second, cfg.Dynamic.NavTimeout)
	require.Equal(t, 1500*time.Millisecond, cfg.Dynamic.ScrollWait)
	require.Equal(t, 2*time.Second, cfg.Politeness.PerHostDelay)
	require.Equal(t, 2, cfg.Retry.MaxAttempts)
	require.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	require.Equal(t, DefaultUserAgent, cfg.HTTP.UserAgent)
	require.Equal(t, []string{SinkJSONL}, cfg.Sink.Kinds)
	require.Equal(t, "data/records.jsonl", cfg.Sink.JSONL.Path)
	require.Equal(t, "records", cfg.Sink.Postgres.Table)
	require.Empty(t, cfg.Metrics.Addr)
	require.True(t, cfg.Logging.Development)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
seeds:
  - https://www.reddit.com/r/golang/
  - url: https://youtu.be/XYZ123
platforms: [aggregator, video]
keywords: [rust, go]
budget:
  max_addresses: 10
extract:
  max_posts: 5
  follow_links: false
dynamic:
  enabled: false
  nav_timeout: 20s
politeness:
  per_host_delay: 250ms
retry:
  max_attempts: 3
proxy:
  endpoint: proxy.example.net:8000
  group: RESIDENTIAL
  region: US
  password: s3cret
sink:
  kinds: [jsonl, postgres]
  jsonl:
    path: /tmp/out.jsonl
  postgres:
    dsn: postgres://localhost/harvest
metrics:
  addr: ":9090"
logging:
  development: false
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Seeds, 2)
	require.Equal(t, "https://www.reddit.com/r/golang/", cfg.Seeds[0])
	require.Equal(t, map[string]any{"url": "https://youtu.be/XYZ123"}, cfg.Seeds[1])
	require.Equal(t, []string{"rust", "go"}, cfg.Keywords)
	require.Equal(t, 10, cfg.Budget.MaxAddresses)
	require.Equal(t, 5, cfg.Extract.MaxPosts)
	require.False(t, cfg.Extract.FollowLinks)
	require.False(t, cfg.Dynamic.Enabled)
	require.Equal(t, 20*time.Second, cfg.Dynamic.NavTimeout)
	require.Equal(t, 250*time.Millisecond, cfg.Politeness.PerHostDelay)
	require.Equal(t, 3, cfg.Retry.MaxAttempts)
	require.Equal(t, "RESIDENTIAL", cfg.Proxy.Group)
	require.Equal(t, "s3cret", cfg.Proxy.Password)
	require.Equal(t, []string{"jsonl", "postgres"}, cfg.Sink.Kinds)
	require.Equal(t, "postgres://localhost/harvest", cfg.Sink.Postgres.DSN)
	require.Equal(t, "records", cfg.Sink.Postgres.Table)
	require.Equal(t, ":9090", cfg.Metrics.Addr)
	require.Equal(t, "debug", cfg.Logging.Level)

	platforms, err := cfg.AllowedPlatforms()
	require.NoError(t, err)
	require.Equal(t, []harvest.Platform{harvest.PlatformAggregator, harvest.PlatformVideo}, platforms)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("HARVESTER_BUDGET_MAX_ADDRESSES", "7")
	t.Setenv("HARVESTER_RETRY_MAX_ATTEMPTS", "4")
	t.Setenv("HARVESTER_PROXY_PASSWORD", "from-env")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Budget.MaxAddresses)
	require.Equal(t, 4, cfg.Retry.MaxAttempts)
	require.Equal(t, "from-env", cfg.Proxy.Password)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"budget", func(c *Config) { c.Budget.MaxAddresses = 0 }, "budget.max_addresses"},
		{"static concurrency", func(c *Config) { c.Static.Concurrency = 0 }, "static.concurrency"},
		{"dynamic concurrency", func(c *Config) { c.Dynamic.Concurrency = 0 }, "dynamic.concurrency"},
		{"attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
		{"timeout", func(c *Config) { c.HTTP.Timeout = 0 }, "http.timeout"},
		{"platform", func(c *Config) { c.Platforms = []string{"forum"} }, `unknown platform "forum"`},
		{"sink kind", func(c *Config) { c.Sink.Kinds = []string{"s3"} }, `unknown sink "s3"`},
		{"no sinks", func(c *Config) { c.Sink.Kinds = nil }, "sink.kinds"},
		{"postgres dsn", func(c *Config) { c.Sink.Kinds = []string{SinkPostgres} }, "sink.postgres.dsn"},
		{"gcs bucket", func(c *Config) { c.Sink.Kinds = []string{SinkGCS} }, "sink.gcs.bucket"},
		{"pubsub topic", func(c *Config) { c.Sink.Kinds = []string{SinkPubSub} }, "sink.pubsub.topic"},
		{"proxy group", func(c *Config) { c.Proxy.Endpoint = "proxy.example.net:8000" }, "proxy.group"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestConfigAcceptsLongKeywordList(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Keywords = make([]string, 0, 30)
	for i := range 26 {
		cfg.Keywords = append(cfg.Keywords, fmt.Sprintf("kw%d", i))
	}
	cfg.Keywords = append(cfg.Keywords, "kw0", " ", "KW1")
	require.NoError(t, cfg.Validate())
}

func TestConfigValidateDisabledDynamicLane(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Dynamic.Enabled = false
	cfg.Dynamic.Concurrency = 0
	cfg.Sink.Kinds = []string{SinkMemory}
	require.NoError(t, cfg.Validate())
}
