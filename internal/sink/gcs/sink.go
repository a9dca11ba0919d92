// Package gcs writes each Record as a JSON object in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/content-harvester/internal/harvest"
	"github.com/JakeFAU/content-harvester/internal/hash/sha256"
)

// Config captures the parameters required to write to GCS.
type Config struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

type writerFactory interface {
	NewWriter(ctx context.Context, bucket, object string) io.WriteCloser
}

type clientWriters struct {
	client *storage.Client
}

func (c clientWriters) NewWriter(ctx context.Context, bucket, object string) io.WriteCloser {
	w := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/json"
	return w
}

// Sink uploads one object per Record.
type Sink struct {
	writers writerFactory
	client  *storage.Client
	bucket  string
	prefix  string
	hasher  *sha256.Hasher
}

// New creates a GCS-backed sink. The sink owns client and closes it.
func New(client *storage.Client, cfg Config) (*Sink, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	s, err := newWithWriters(clientWriters{client: client}, cfg)
	if err != nil {
		return nil, err
	}
	s.client = client
	return s, nil
}

func newWithWriters(writers writerFactory, cfg Config) (*Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = "records"
	}
	return &Sink{
		writers: writers,
		bucket:  cfg.Bucket,
		prefix:  prefix,
		hasher:  sha256.New(),
	}, nil
}

// ObjectName returns the object path a Record is stored under:
// <prefix>/<platform>/<yyyy>/<mm>/<dd>/<key>.json.
func (s *Sink) ObjectName(rec harvest.Record) string {
	day := rec.ScrapedAt.UTC().Format("2006/01/02")
	return path.Join(s.prefix, string(rec.Platform), day, s.hasher.RecordKey(rec)+".json")
}

// Append uploads rec.
func (s *Sink) Append(ctx context.Context, rec harvest.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	name := s.ObjectName(rec)
	writer := s.writers.NewWriter(ctx, s.bucket, name)
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object %s: %w (close writer: %v)", name, err, closeErr)
		}
		return fmt.Errorf("write object %s: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// Close closes the storage client.
func (s *Sink) Close(context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close storage client: %w", err)
	}
	return nil
}
