package evaluator

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/thomasrohde/tern/pkg/ast"
)

// hardNestingLimit caps evaluator recursion even when the profile sets no
// stack budget, so deeply nested programs fail with StackOverflow instead of
// exhausting the Go stack.
const hardNestingLimit = 10_000

// stringHeapUnit is the number of string bytes that weigh as one heap value.
const stringHeapUnit = 64

// Stats summarises the resources one run consumed.
type Stats struct {
	Nodes        int64         `json:"nodes"`
	MaxCallDepth int           `json:"maxCallDepth"`
	PeakHeap     int           `json:"peakHeap"`
	Effects      int           `json:"effects"`
	Deferred     int           `json:"deferred"`
	Elapsed      time.Duration `json:"elapsedNs"`
}

// checkpoint runs before every node evaluation.
func (ev *evaluator) checkpoint(pos ast.Pos) error {
	ev.stats.Nodes++

	if ev.nesting > hardNestingLimit {
		return ev.budgetError(StackOverflow, pos, "evaluation nested deeper than %s levels",
			humanize.Comma(hardNestingLimit))
	}

	if limit := ev.prof.MaxTimeMs; limit != nil {
		// High-resolution timer for accurate sub-millisecond budget enforcement
		if elapsed := hiresSinceMs(ev.startHires); elapsed >= *limit {
			return ev.budgetError(TimeLimitExceeded, pos, "time budget of %dms exceeded", *limit)
		}
	}

	if limit := ev.prof.MaxHeapSize; limit != nil && ev.heapDirty {
		ev.heapDirty = false
		n := ev.measureHeap()
		if n > ev.stats.PeakHeap {
			ev.stats.PeakHeap = n
		}
		if n > *limit {
			return ev.budgetError(HeapLimitExceeded, pos, "%s live values exceed the heap budget of %s",
				humanize.Comma(int64(n)), humanize.Comma(int64(*limit)))
		}
	}
	return nil
}

// enterCall tracks closure call depth against max_stack_depth.
func (ev *evaluator) enterCall(pos ast.Pos) error {
	ev.callDepth++
	if ev.callDepth > ev.stats.MaxCallDepth {
		ev.stats.MaxCallDepth = ev.callDepth
	}
	if limit := ev.prof.MaxStackDepth; limit != nil && ev.callDepth > *limit {
		return ev.budgetError(StackOverflow, pos, "call depth exceeded max_stack_depth of %d", *limit)
	}
	return nil
}

func (ev *evaluator) leaveCall() {
	ev.callDepth--
}

func (ev *evaluator) budgetError(kind ErrorKind, pos ast.Pos, format string, args ...any) error {
	err := newError(kind, pos, format, args...)
	ev.emit(TraceBudgetExceeded, err.Pos, map[string]any{"kind": string(kind), "message": err.Message})
	return err
}

// markDirty records that the live value graph may have grown.
func (ev *evaluator) markDirty() {
	ev.heapDirty = true
}

// measureHeap counts the value nodes reachable from the active scope frames.
// Each scalar, list, map, closure, builtin and cell counts one, and strings
// add one more per stringHeapUnit bytes. Shared containers and scopes are
// visited once, so cycles terminate.
func (ev *evaluator) measureHeap() int {
	seen := make(map[any]struct{})
	var work []any
	for _, f := range ev.frames {
		work = append(work, f)
	}

	n := 0
	for len(work) > 0 {
		item := work[len(work)-1]
		work = work[:len(work)-1]

		switch v := item.(type) {
		case *Env:
			if v == nil {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			for _, c := range v.vars {
				n++ // the cell
				work = append(work, c.Value)
			}
			work = append(work, v.parent)

		case *List:
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			n++
			for _, item := range v.Items {
				work = append(work, item)
			}

		case *Map:
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			n++
			for _, kv := range v.Pairs {
				work = append(work, kv.Value)
			}

		case *Closure:
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			n++
			work = append(work, v.Env)

		case String:
			n += 1 + len(v.Value)/stringHeapUnit

		case Value:
			n++
		}
	}
	return n
}
