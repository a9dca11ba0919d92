// Package sink fans Records out to the configured destinations.
package sink

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/content-harvester/internal/harvest"
)

// Named pairs a sink with the name it is logged under.
type Named struct {
	Name string
	Sink harvest.Sink
}

// Multi appends every Record to each of its sinks. A failing sink does not
// stop the others.
type Multi struct {
	sinks  []Named
	logger *zap.Logger
}

// NewMulti creates a fan-out sink.
func NewMulti(logger *zap.Logger, sinks ...Named) *Multi {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Multi{sinks: sinks, logger: logger}
}

// Append writes rec to every sink. It fails only when every sink failed.
func (m *Multi) Append(ctx context.Context, rec harvest.Record) error {
	if len(m.sinks) == 0 {
		return nil
	}
	var errs []error
	for _, s := range m.sinks {
		if err := s.Sink.Append(ctx, rec); err != nil {
			m.logger.Warn("sink append failed", zap.String("sink", s.Name), zap.String("url", rec.URL), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	if len(errs) == len(m.sinks) {
		return errors.Join(errs...)
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m *Multi) Close(ctx context.Context) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Sink.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}
