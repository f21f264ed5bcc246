package evaluator

import (
	"time"

	"github.com/thomasrohde/tern/pkg/ast"
)

// TraceEventType identifies the type of a trace event.
type TraceEventType string

const (
	TraceRunStart         TraceEventType = "run_start"
	TraceRunEnd           TraceEventType = "run_end"
	TraceCallStart        TraceEventType = "call_start"
	TraceCallEnd          TraceEventType = "call_end"
	TraceEffect           TraceEventType = "effect"
	TraceCapabilityDenied TraceEventType = "capability_denied"
	TraceBudgetExceeded   TraceEventType = "budget_exceeded"
	TraceDeferredRun      TraceEventType = "deferred_run"
)

// TraceEvent represents a single trace event emitted during execution.
type TraceEvent struct {
	Timestamp string         `json:"ts"`
	RunID     string         `json:"runId"`
	Event     TraceEventType `json:"event"`
	Pos       *ast.Pos       `json:"pos,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

func (ev *evaluator) tracing() bool {
	return ev.opts.Trace != nil
}

func (ev *evaluator) emit(event TraceEventType, pos *ast.Pos, data map[string]any) {
	if ev.opts.Trace == nil {
		return
	}
	ev.opts.Trace(TraceEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		RunID:     ev.opts.RunID,
		Event:     event,
		Pos:       pos,
		Data:      data,
	})
}
