// Package memory keeps Records in process, for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/content-harvester/internal/harvest"
)

// Sink stores appended Records in order.
type Sink struct {
	mu      sync.RWMutex
	records []harvest.Record
	closed  bool
}

// New creates an empty Sink.
func New() *Sink {
	return &Sink{}
}

// Append stores rec.
func (s *Sink) Append(_ context.Context, rec harvest.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Close marks the sink closed.
func (s *Sink) Close(context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Records returns a copy of everything appended so far.
func (s *Sink) Records() []harvest.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]harvest.Record(nil), s.records...)
}

// Closed reports whether Close was called.
func (s *Sink) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
