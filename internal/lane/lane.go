// Package lane implements the two extraction pipelines. The static lane
// parses fetched HTML; the dynamic lane drives a rendering session.
package lane

import (
	"context"

	"github.com/JakeFAU/content-harvester/internal/harvest"
)

// Outcome is the result of one attempt at a task.
type Outcome struct {
	State harvest.TaskState
	// Record is set when the attempt emitted one (success or blocked).
	Record *harvest.Record
	// Err is a *harvest.FetchError or *harvest.BlockedError for failed and
	// blocked attempts.
	Err error
	// Discovered holds outbound links for the dispatcher to enqueue.
	Discovered []string
}

// Processor runs one attempt of a task.
type Processor interface {
	Process(ctx context.Context, task *harvest.Task) Outcome
}

func failed(err error) Outcome {
	return Outcome{State: harvest.TaskFailed, Err: err}
}

func finished(rec harvest.Record, verdict harvest.BlockVerdict) Outcome {
	out := Outcome{State: harvest.TaskSucceeded, Record: &rec}
	if verdict.Blocked {
		out.State = harvest.TaskBlocked
		out.Err = &harvest.BlockedError{URL: rec.URL, Verdict: verdict}
	}
	return out
}
