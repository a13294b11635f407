package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/readykit/internal/netmon"
	"github.com/roach88/readykit/internal/report"
	"github.com/roach88/readykit/internal/store"
	"github.com/roach88/readykit/internal/syncqueue"
	"github.com/roach88/readykit/internal/testutil"
)

// epoch is the fake clock's starting time.
var epoch = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

// Option configures a run.
type Option func(*Harness)

// WithLogger sets the logger handed to the queue and monitor.
func WithLogger(l *zap.Logger) Option {
	return func(h *Harness) { h.log = l }
}

// Harness executes one scenario against a fresh store.
type Harness struct {
	path    string
	log     *zap.Logger
	clock   *testutil.FakeClock
	monitor *netmon.Monitor
	remote  *scriptedRemote

	store  *store.Store
	queue  *syncqueue.Queue
	detach func()

	mu     sync.Mutex
	seq    int64
	result *Result
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh on-disk database in a temporary
// directory so restart steps exercise real durability.
//
// Execution flow:
// 1. Create the store, monitor and scripted remote
// 2. Execute steps in order, tracing each one and every remote submit
// 3. Check assertions against the final queue and remote state
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	dir, err := os.MkdirTemp("", "readykit-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	h := &Harness{
		path:   filepath.Join(dir, "readykit.db"),
		log:    zap.NewNop(),
		clock:  testutil.NewFakeClock(epoch),
		result: NewResult(),
	}
	for _, opt := range opts {
		opt(h)
	}

	online := scenario.Online == nil || *scenario.Online
	h.monitor = netmon.New(online, h.log)
	h.remote = newScriptedRemote(h.monitor.Online, h.record)

	ctx := context.Background()
	if err := h.open(ctx); err != nil {
		return nil, err
	}
	defer h.close()

	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i, step); err != nil {
			return nil, fmt.Errorf("steps[%d] (%s): %w", i, step.Action, err)
		}
	}

	for _, a := range scenario.Assertions {
		if err := h.check(a); err != nil {
			h.result.AddError(err.Error())
		}
	}
	return h.result, nil
}

func (h *Harness) open(ctx context.Context) error {
	st, err := store.Open(h.path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	q := syncqueue.New(st, h.remote,
		syncqueue.WithClock(h.clock),
		syncqueue.WithLogger(h.log),
	)
	if err := q.Load(ctx); err != nil {
		st.Close()
		return fmt.Errorf("failed to load queue: %w", err)
	}
	h.store, h.queue = st, q
	h.detach = q.AttachMonitor(h.monitor)
	return nil
}

func (h *Harness) close() error {
	h.detach()
	_ = h.queue.Close()
	return h.store.Close()
}

// record appends a trace event. Safe to call from queue goroutines.
func (h *Harness) record(kind, detail string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	h.result.Trace = append(h.result.Trace, TraceEvent{Seq: h.seq, Kind: kind, Detail: detail})
}

func (h *Harness) execute(ctx context.Context, i int, step Step) error {
	switch step.Action {
	case StepEnqueue:
		r := report.Draft{IncidentType: step.Type, Description: step.Description}.
			Build(report.NewFixedGenerator(step.ID), h.clock.Now())
		e, err := h.queue.Enqueue(ctx, r)
		if err != nil {
			h.record(step.Action, fmt.Sprintf("%s error: %v", step.ID, err))
			return nil
		}
		h.record(step.Action, fmt.Sprintf("%s seq=%d", e.ID(), e.Seq))

	case StepOnline, StepOffline:
		h.record(step.Action, "")
		h.monitor.Set(step.Action == StepOnline)
		h.queue.Wait()

	case StepFlush:
		h.record(step.Action, "")
		res, err := h.queue.Flush(ctx)
		h.record("flushed", fmt.Sprintf("attempted=%d synced=%d failed=%d skipped=%d",
			res.Attempted, res.Synced, res.Failed, res.Skipped))
		if err != nil {
			return err
		}
		if x := step.Expect; x != nil && (x.Synced != res.Synced || x.Failed != res.Failed) {
			h.result.AddError(fmt.Sprintf("steps[%d]: flush synced=%d failed=%d, want synced=%d failed=%d",
				i, res.Synced, res.Failed, x.Synced, x.Failed))
		}

	case StepFailNext:
		n := step.Count
		if n == 0 {
			n = 1
		}
		h.remote.queueFailures(step.Reason, n)
		h.record(step.Action, fmt.Sprintf("%s x%d", step.Reason, n))

	case StepRestart:
		if err := h.close(); err != nil {
			return err
		}
		if err := h.open(ctx); err != nil {
			return err
		}
		h.record(step.Action, fmt.Sprintf("pending=%d", h.queue.Pending()))

	case StepRetry:
		if _, err := h.queue.Retry(ctx, step.ID); err != nil {
			h.record(step.Action, fmt.Sprintf("%s error: %v", step.ID, err))
			return nil
		}
		h.record(step.Action, step.ID)

	case StepDiscard:
		if err := h.queue.Discard(ctx, step.ID); err != nil {
			h.record(step.Action, fmt.Sprintf("%s error: %v", step.ID, err))
			return nil
		}
		h.record(step.Action, step.ID)
	}
	return nil
}
