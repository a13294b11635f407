package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/readykit/internal/netmon"
	"github.com/roach88/readykit/internal/syncqueue"
)

// probeTimeout bounds a single connectivity probe in "queue watch".
const probeTimeout = 5 * time.Second

// EntryView is a queue entry without its attachments.
type EntryView struct {
	ID            string                `json:"id"`
	Seq           int64                 `json:"seq"`
	IncidentType  string                `json:"incident_type"`
	Status        syncqueue.Status      `json:"status"`
	Attempts      int                   `json:"attempts"`
	Failure       syncqueue.FailureKind `json:"failure,omitempty"`
	LastError     string                `json:"last_error,omitempty"`
	Images        int                   `json:"images"`
	EnqueuedAt    time.Time             `json:"enqueued_at"`
	NextAttemptAt *time.Time            `json:"next_attempt_at,omitempty"`
}

func newEntryView(e syncqueue.Entry) EntryView {
	v := EntryView{
		ID:           e.ID(),
		Seq:          e.Seq,
		IncidentType: e.Report.IncidentType,
		Status:       e.Status,
		Attempts:     e.Attempts,
		Failure:      e.Failure,
		LastError:    e.LastError,
		Images:       len(e.Report.Images),
		EnqueuedAt:   e.EnqueuedAt,
	}
	if !e.NextAttemptAt.IsZero() {
		next := e.NextAttemptAt
		v.NextAttemptAt = &next
	}
	return v
}

// FlushView is the output of "queue flush".
type FlushView struct {
	Attempted int      `json:"attempted"`
	Synced    int      `json:"synced"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	SyncedIDs []string `json:"synced_ids"`
	FailedIDs []string `json:"failed_ids"`
	Remaining int      `json:"remaining"`
}

// WatchView is the output of "queue watch" when it stops.
type WatchView struct {
	Online    bool `json:"online"`
	Remaining int  `json:"remaining"`
}

func newQueueCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and deliver queued reports",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List queued reports in delivery order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueList(opts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "flush",
		Short: "Deliver every eligible queued report",
		Long: `Submit queued reports to the service in enqueue order.

Exits with status 1 when any delivery failed; failed reports stay queued.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueFlush(opts, cmd)
		},
	})
	cmd.AddCommand(newQueueWatchCommand(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "retry <id>",
		Short: "Clear a report's failure state so the next flush sends it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueEdit(opts, cmd, args[0], false)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "discard <id>",
		Short: "Remove a report from the queue without sending it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueEdit(opts, cmd, args[0], true)
		},
	})
	return cmd
}

func runQueueList(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	a, err := openApp(opts)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open database", err)
	}
	defer a.Close()

	q, err := a.openQueue(cmd.Context())
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to load queue", err)
	}

	views := make([]EntryView, 0)
	for _, e := range q.Entries() {
		views = append(views, newEntryView(e))
	}
	return formatter.Emit(views, func(w io.Writer) error {
		if len(views) == 0 {
			fmt.Fprintln(w, "Queue is empty")
			return nil
		}
		for _, v := range views {
			line := fmt.Sprintf("%4d  %s  %-18s %-8s attempts=%d", v.Seq, v.ID, v.IncidentType, v.Status, v.Attempts)
			if v.Failure != "" {
				line += fmt.Sprintf("  %s: %s", v.Failure, v.LastError)
			}
			fmt.Fprintln(w, line)
		}
		return nil
	})
}

func runQueueFlush(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	a, err := openApp(opts)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open database", err)
	}
	defer a.Close()

	q, err := a.openQueue(cmd.Context())
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to load queue", err)
	}

	res, flushErr := q.Flush(cmd.Context())
	view := FlushView{
		Attempted: res.Attempted,
		Synced:    res.Synced,
		Failed:    res.Failed,
		Skipped:   res.Skipped,
		SyncedIDs: append([]string{}, res.SyncedIDs...),
		FailedIDs: append([]string{}, res.FailedIDs...),
		Remaining: q.Pending(),
	}
	if err := formatter.Emit(view, func(w io.Writer) error {
		fmt.Fprintf(w, "Delivered %d of %d attempted (%d failed, %d skipped); %d remaining\n",
			view.Synced, view.Attempted, view.Failed, view.Skipped, view.Remaining)
		for _, id := range view.FailedIDs {
			if e, ok := q.Get(id); ok {
				fmt.Fprintf(w, "  ✗ %s: %s\n", id, e.LastError)
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if flushErr != nil {
		return WrapExitError(ExitFailure, ErrorCode(flushErr)+" flush incomplete", flushErr)
	}
	if res.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%s %d report(s) failed", ErrCodeNetwork, res.Failed))
	}
	return nil
}

func runQueueEdit(opts *RootOptions, cmd *cobra.Command, id string, discard bool) error {
	formatter := opts.formatter(cmd)
	a, err := openApp(opts)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open database", err)
	}
	defer a.Close()

	q, err := a.openQueue(cmd.Context())
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to load queue", err)
	}

	if discard {
		if err := q.Discard(cmd.Context(), id); err != nil {
			return formatter.Fail(ExitFailure, "discard failed", err)
		}
		return formatter.Emit(map[string]string{"id": id, "status": "discarded"}, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "✓ Report %s discarded\n", id)
			return err
		})
	}

	e, err := q.Retry(cmd.Context(), id)
	if err != nil {
		return formatter.Fail(ExitFailure, "retry failed", err)
	}
	return formatter.Emit(newEntryView(e), func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "✓ Report %s will be sent on the next flush\n", id)
		return err
	})
}

func newQueueWatchCommand(opts *RootOptions) *cobra.Command {
	var (
		interval   time.Duration
		untilEmpty bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Probe the service and deliver queued reports when it comes back",
		Long: `Probe the service every interval and flush the queue each time it
becomes reachable, then again on every interval while reports remain.
Runs until interrupted, or with --until-empty until no report is left for
automatic delivery (rejected reports wait for "queue retry").

Example:
  readykit queue watch --interval 10s
  readykit queue watch --until-empty`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				interval = opts.Config.ProbeInterval
			}
			return runQueueWatch(opts, cmd, interval, untilEmpty)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "probe interval (default probe_interval from config)")
	cmd.Flags().BoolVar(&untilEmpty, "until-empty", false, "stop once every queued report is delivered")
	return cmd
}

func runQueueWatch(opts *RootOptions, cmd *cobra.Command, interval time.Duration, untilEmpty bool) error {
	formatter := opts.formatter(cmd)
	a, err := openApp(opts)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open database", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	q, err := a.openQueue(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to load queue", err)
	}

	mon := netmon.New(false, a.log.Named("netmon"))
	detach := q.AttachMonitor(mon)
	defer detach()
	unsubscribe := mon.Subscribe(func(online bool) {
		formatter.VerboseLog("Network online=%t, %d report(s) queued", online, q.Pending())
	})
	defer unsubscribe()

	prober := netmon.HTTPProber{
		URL:     opts.Config.APIURL + "/api/",
		Client:  opts.HTTPClient,
		Timeout: probeTimeout,
	}
	probeCtx, cancelProbe := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		mon.RunProbe(probeCtx, prober, interval)
	}()

	// The monitor only reports transitions, so entries that fail while the
	// service stays reachable are flushed again on every tick.
	ticker := time.NewTicker(interval)
watch:
	for !untilEmpty || deliverable(q, opts.Config.Backoff) > 0 {
		select {
		case <-ctx.Done():
			break watch
		case <-ticker.C:
		}
		if !mon.Online() || deliverable(q, opts.Config.Backoff) == 0 {
			continue
		}
		if _, err := q.Flush(ctx); err != nil && ctx.Err() == nil {
			a.log.Warn("Flush failed", zap.Error(err))
		}
	}
	ticker.Stop()
	cancelProbe()
	wg.Wait()
	q.Wait()

	view := WatchView{Online: mon.Online(), Remaining: q.Pending()}
	return formatter.Emit(view, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Stopped watching; %d report(s) remaining\n", view.Remaining)
		return err
	})
}

// deliverable counts entries a flush may still send without a manual retry.
func deliverable(q *syncqueue.Queue, b syncqueue.Backoff) int {
	n := 0
	for _, e := range q.Entries() {
		if e.Status == syncqueue.StatusFailed && (e.Failure == syncqueue.FailureRejected || b.Exhausted(e.Attempts)) {
			continue
		}
		n++
	}
	return n
}
