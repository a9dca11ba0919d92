// Package jsonl appends Records to a newline-delimited JSON file.
package jsonl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/JakeFAU/content-harvester/internal/harvest"
)

// Config captures the parameters for the JSONL sink.
type Config struct {
	// Path is the output file. Parent directories are created.
	Path string `mapstructure:"path"`
}

// Sink writes one JSON object per line. Appends are serialized so lines
// never interleave.
type Sink struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// New opens (or creates) the output file for appending.
func New(cfg Config) (*Sink, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("jsonl path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open jsonl file: %w", err)
	}
	return &Sink{file: f, path: cfg.Path}, nil
}

// Path returns the output file path.
func (s *Sink) Path() string {
	return s.path
}

// Append writes rec as a single line.
func (s *Sink) Append(_ context.Context, rec harvest.Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("jsonl sink is closed")
	}
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// Close syncs and closes the file.
func (s *Sink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	f := s.file
	s.file = nil
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync jsonl file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close jsonl file: %w", err)
	}
	return nil
}
