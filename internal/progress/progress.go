// Package progress reports dataset generation progress to logs, to an
// in-memory tracker served over HTTP, and optionally to a socket.io server.
package progress

import (
	"context"
	"time"

	"github.com/vk/qorgraph/internal/ctxlog"
)

// EventType names a point in the life of a run.
type EventType string

const (
	KernelStarted  EventType = "kernel_started"
	SampleDone     EventType = "sample"
	KernelFinished EventType = "kernel_finished"
	RunFinished    EventType = "run_finished"
)

// Event is one progress notification. Counters are cumulative for the
// kernel (or the run, for RunFinished).
type Event struct {
	Type      EventType     `json:"type"`
	RunID     string        `json:"run_id"`
	Variant   string        `json:"variant"`
	Kernel    string        `json:"kernel,omitempty"`
	Position  int           `json:"position,omitempty"`
	Index     int64         `json:"index,omitempty"`
	Outcome   string        `json:"outcome,omitempty"`
	Total     int           `json:"total"`
	Generated int           `json:"generated"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Elapsed   time.Duration `json:"elapsed"`
	Time      time.Time     `json:"time"`
}

// Reporter receives progress events. Implementations must be safe for
// concurrent use; workers report samples in parallel.
type Reporter interface {
	Report(ctx context.Context, ev Event)
}

// Multi fans an event out to several reporters in order.
type Multi []Reporter

func (m Multi) Report(ctx context.Context, ev Event) {
	for _, r := range m {
		if r != nil {
			r.Report(ctx, ev)
		}
	}
}

// Log writes events to the context logger. Per-sample events are logged at
// debug level only.
type Log struct{}

func (Log) Report(ctx context.Context, ev Event) {
	logger := ctxlog.FromContext(ctx)
	switch ev.Type {
	case KernelStarted:
		logger.Info("Kernel started.", "variant", ev.Variant, "kernel", ev.Kernel, "candidates", ev.Total)
	case SampleDone:
		logger.Debug("Candidate processed.", "variant", ev.Variant, "kernel", ev.Kernel,
			"candidate", ev.Position, "index", ev.Index, "outcome", ev.Outcome)
	case KernelFinished:
		logger.Info("Kernel finished.", "variant", ev.Variant, "kernel", ev.Kernel,
			"generated", ev.Generated, "failed", ev.Failed, "skipped", ev.Skipped, "elapsed", ev.Elapsed)
	case RunFinished:
		logger.Info("Variant finished.", "variant", ev.Variant, "run_id", ev.RunID,
			"generated", ev.Generated, "failed", ev.Failed, "skipped", ev.Skipped, "elapsed", ev.Elapsed)
	}
}
