package harness

import (
	"fmt"
	"strings"
)

// TraceEvent is one observable event of a scenario run.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

func (e TraceEvent) String() string {
	if e.Detail == "" {
		return fmt.Sprintf("%03d %s", e.Seq, e.Kind)
	}
	return fmt.Sprintf("%03d %-9s %s", e.Seq, e.Kind, e.Detail)
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every flush expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace lists steps and remote submits in the order they happened.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// TraceText renders the trace one event per line.
func (r *Result) TraceText() string {
	var b strings.Builder
	for _, e := range r.Trace {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}
