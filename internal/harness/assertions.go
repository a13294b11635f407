package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/readykit/internal/syncqueue"
)

// AssertionError is returned when an assertion fails.
// It includes the trace to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  %s\n", event)
	}
	return buf.String()
}

// check evaluates one assertion against the final state.
func (h *Harness) check(a Assertion) error {
	accepted, attempts, total := h.remote.snapshot()
	fail := func(expected, actual string) error {
		h.mu.Lock()
		trace := append([]TraceEvent{}, h.result.Trace...)
		h.mu.Unlock()
		return &AssertionError{Type: a.Type, Expected: expected, Actual: actual, Trace: trace}
	}

	switch a.Type {
	case AssertSubmittedOrder:
		if !slices.Equal(accepted, a.IDs) {
			return fail(fmt.Sprintf("%v", a.IDs), fmt.Sprintf("%v", accepted))
		}

	case AssertStatus:
		got := "absent"
		if e, ok := h.queue.Get(a.ID); ok {
			got = string(e.Status)
		} else if slices.Contains(accepted, a.ID) {
			got = string(syncqueue.StatusSynced)
		}
		if got != a.Status {
			return fail(a.ID+" "+a.Status, a.ID+" "+got)
		}

	case AssertSubmitCount:
		got := total
		if a.ID != "" {
			got = attempts[a.ID]
		}
		if got != *a.Count {
			return fail(fmt.Sprintf("%d submits", *a.Count), fmt.Sprintf("%d submits", got))
		}

	case AssertQueueLen:
		if got := h.queue.Pending(); got != *a.Count {
			return fail(fmt.Sprintf("%d queued", *a.Count), fmt.Sprintf("%d queued", got))
		}
	}
	return nil
}
