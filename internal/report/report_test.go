package report

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/content-harvester/internal/harvest"
)

func failure() harvest.FailureReport {
	return harvest.FailureReport{
		URL:      "https://example.com/",
		Platform: harvest.PlatformGeneric,
		Lane:     harvest.LaneStatic,
		State:    harvest.TaskFailed,
		Attempts: 2,
		Reason:   "fetch https://example.com/: status 429",
	}
}

func TestLogReporterWritesWarning(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	NewLog(zap.New(core)).Report(context.Background(), failure())

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "https://example.com/", fields["url"])
	require.Equal(t, "failed", fields["state"])
	require.EqualValues(t, 2, fields["attempts"])
}

func TestCollectorAndFanout(t *testing.T) {
	t.Parallel()

	a, b := NewCollector(), NewCollector()
	Fanout{a, nil, b}.Report(context.Background(), failure())

	require.Equal(t, []harvest.FailureReport{failure()}, a.Reports())
	require.Len(t, b.Reports(), 1)

	got := a.Reports()
	got[0].URL = "mutated"
	require.Equal(t, "https://example.com/", a.Reports()[0].URL)
}
