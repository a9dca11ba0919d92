// Package postgres stores Records as rows in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/content-harvester/internal/harvest"
	"github.com/JakeFAU/content-harvester/internal/hash/sha256"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for record rows.
type Config struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Sink writes Record rows into Postgres.
type Sink struct {
	pool   execCloser
	table  string
	hasher *sha256.Hasher
}

// New connects a pool and makes sure the table exists.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sink.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.EnsureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a sink from an existing pool (primarily for testing).
func NewWithPool(pool execCloser, table string) (*Sink, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "records"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Sink{pool: pool, table: table, hasher: sha256.New()}, nil
}

// EnsureTable creates the record table when it is missing.
func (s *Sink) EnsureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	platform TEXT NOT NULL,
	url TEXT NOT NULL,
	title TEXT,
	posts JSONB NOT NULL,
	posts_count INTEGER NOT NULL,
	comments JSONB NOT NULL,
	comments_count INTEGER NOT NULL,
	keyword_stats JSONB,
	blocked BOOLEAN NOT NULL,
	block_reason TEXT,
	sentiment_score INTEGER NOT NULL,
	sentiment_comparative DOUBLE PRECISION NOT NULL,
	scraped_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Append inserts rec. Re-appending the same Record is a no-op.
func (s *Sink) Append(ctx context.Context, rec harvest.Record) error {
	posts := rec.Posts
	if posts == nil {
		posts = []harvest.Post{}
	}
	postsJSON, err := json.Marshal(posts)
	if err != nil {
		return fmt.Errorf("marshal posts: %w", err)
	}
	comments := rec.Comments
	if comments == nil {
		comments = []harvest.Comment{}
	}
	commentsJSON, err := json.Marshal(comments)
	if err != nil {
		return fmt.Errorf("marshal comments: %w", err)
	}
	var statsJSON []byte
	if rec.KeywordStats != nil {
		if statsJSON, err = json.Marshal(rec.KeywordStats); err != nil {
			return fmt.Errorf("marshal keyword stats: %w", err)
		}
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	platform,
	url,
	title,
	posts,
	posts_count,
	comments,
	comments_count,
	keyword_stats,
	blocked,
	block_reason,
	sentiment_score,
	sentiment_comparative,
	scraped_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
) ON CONFLICT (id) DO NOTHING`, s.table)

	args := []any{
		s.hasher.RecordKey(rec),
		string(rec.Platform),
		rec.URL,
		rec.Title,
		postsJSON,
		len(posts),
		commentsJSON,
		len(comments),
		statsJSON,
		rec.Blocked,
		rec.BlockReason,
		rec.Sentiment.Score,
		rec.Sentiment.Comparative,
		rec.ScrapedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Sink) Close(context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
