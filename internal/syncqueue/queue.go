package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/readykit/internal/clock"
	"github.com/roach88/readykit/internal/report"
)

// StoreKey is the durable store key holding the queue document.
const StoreKey = "queue"

var (
	// ErrClosed is returned by operations on a closed queue.
	ErrClosed = errors.New("queue closed")

	// ErrNotFound is returned when no entry has the given report ID.
	ErrNotFound = errors.New("queue entry not found")

	// ErrInFlight is returned when an entry cannot change while a submit
	// for it is outstanding.
	ErrInFlight = errors.New("queue entry in flight")
)

// Submitter delivers a report to the remote service.
type Submitter interface {
	Submit(ctx context.Context, r report.IncidentReport) error
}

// Store is the durable document store backing the queue.
type Store interface {
	GetJSON(ctx context.Context, key string, v any) (bool, error)
	SetJSON(ctx context.Context, key string, v any) error
}

// Monitor reports connectivity transitions.
type Monitor interface {
	Online() bool
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock sets the clock used for enqueue timestamps and backoff.
func WithClock(c clock.Clock) Option {
	return func(q *Queue) { q.clock = c }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(q *Queue) { q.log = l }
}

// WithConcurrency bounds how many submits a flush runs at once.
// Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(q *Queue) {
		if n < 1 {
			n = 1
		}
		q.concurrency = n
	}
}

// WithBackoff sets the retry policy for failed entries.
func WithBackoff(b Backoff) Option {
	return func(q *Queue) { q.backoff = b }
}

// WithValidator replaces report.Validate as the enqueue check.
func WithValidator(fn func(report.IncidentReport) error) Option {
	return func(q *Queue) { q.validate = fn }
}

// Queue is the durable FIFO of reports awaiting delivery.
//
// The in-memory entry list is a cache of the store document; every state
// change is persisted before the method that made it returns.
//
// Thread-safety: Queue is safe for concurrent use.
type Queue struct {
	store       Store
	submitter   Submitter
	clock       clock.Clock
	log         *zap.Logger
	validate    func(report.IncidentReport) error
	concurrency int
	backoff     Backoff

	mu      sync.Mutex
	entries []*Entry // ascending Seq
	seq     *clock.Sequence
	closed  bool

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

// New creates an empty queue. Call Load to restore persisted entries.
func New(st Store, sub Submitter, opts ...Option) *Queue {
	bgCtx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		store:       st,
		submitter:   sub,
		clock:       clock.System{},
		log:         zap.NewNop(),
		validate:    report.Validate,
		concurrency: 1,
		seq:         clock.NewSequence(),
		bgCtx:       bgCtx,
		bgCancel:    cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Load replaces the in-memory queue with the persisted one.
//
// Entries left in_flight by an interrupted flush are reverted: to failed if
// they carry a previous failure, otherwise to pending. Call Load once,
// before any other operation.
func (q *Queue) Load(ctx context.Context) error {
	var stored []Entry
	if _, err := q.store.GetJSON(ctx, StoreKey, &stored); err != nil {
		return fmt.Errorf("load queue: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}

	entries := make([]*Entry, 0, len(stored))
	seen := make(map[string]bool, len(stored))
	var maxSeq int64
	reverted := 0
	for i := range stored {
		e := stored[i]
		if seen[e.ID()] || e.Status == StatusSynced {
			continue
		}
		seen[e.ID()] = true
		if e.Status == StatusInFlight {
			e.Status = StatusPending
			if e.Failure != "" {
				e.Status = StatusFailed
			}
			reverted++
		}
		if e.Seq > maxSeq {
			maxSeq = e.Seq
		}
		entries = append(entries, &e)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })

	q.entries = entries
	q.seq = clock.NewSequenceAt(maxSeq)

	if reverted > 0 {
		q.log.Info("Reverted interrupted deliveries", zap.Int("count", reverted))
		if err := q.persistLocked(ctx); err != nil {
			return fmt.Errorf("load queue: %w", err)
		}
	}
	q.log.Debug("Queue loaded", zap.Int("entries", len(entries)))
	return nil
}

// Enqueue validates r and persists it as pending.
//
// Enqueueing a report ID that is already queued returns the existing entry
// unchanged. A validation error leaves the queue untouched; so does a store
// error, in which case the report was not accepted.
func (q *Queue) Enqueue(ctx context.Context, r report.IncidentReport) (Entry, error) {
	if err := q.validate(r); err != nil {
		return Entry{}, fmt.Errorf("enqueue: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return Entry{}, ErrClosed
	}

	if existing := q.findLocked(r.ID); existing != nil {
		q.log.Debug("Duplicate enqueue", zap.String("report_id", r.ID))
		return *existing, nil
	}

	e := &Entry{
		Report:     r,
		Status:     StatusPending,
		Seq:        q.seq.Next(),
		EnqueuedAt: q.clock.Now(),
	}
	q.entries = append(q.entries, e)
	if err := q.persistLocked(ctx); err != nil {
		q.entries = q.entries[:len(q.entries)-1]
		return Entry{}, fmt.Errorf("enqueue: %w", err)
	}

	q.log.Info("Report queued", zap.String("report_id", r.ID), zap.Int64("seq", e.Seq))
	return *e, nil
}

// FlushResult summarizes one Flush.
type FlushResult struct {
	// Attempted counts entries a submit was started for.
	Attempted int

	// Synced and Failed partition Attempted.
	Synced int
	Failed int

	// Skipped counts entries that were not eligible: in flight elsewhere,
	// rejected, waiting out backoff, out of attempts, or released by
	// cancellation before their submit started.
	Skipped int

	// SyncedIDs lists delivered report IDs in completion order.
	SyncedIDs []string

	// FailedIDs lists report IDs whose submit failed, in completion order.
	FailedIDs []string
}

type claim struct {
	entry *Entry
	prev  Status
}

// Flush submits every eligible entry in Seq order.
//
// Delivery failures are recorded on the entries, not returned. The error
// is non-nil only when the queue could not persist its state or ctx was
// cancelled before every claimed submit started.
func (q *Queue) Flush(ctx context.Context) (FlushResult, error) {
	claims, skipped, err := q.claim(ctx)
	res := FlushResult{Skipped: skipped}
	if err != nil || len(claims) == 0 {
		return res, err
	}
	res.Attempted = len(claims)

	var errs []error
	var g errgroup.Group
	g.SetLimit(q.concurrency)

	// g.Go blocks once the limit is reached, so submits are dispatched in
	// Seq order; with a limit of one they also complete in that order.
	for _, c := range claims {
		c := c
		g.Go(func() error {
			if err := q.deliver(ctx, c, &res); err != nil {
				q.mu.Lock()
				errs = append(errs, err)
				q.mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	q.log.Info("Flush complete",
		zap.Int("attempted", res.Attempted),
		zap.Int("synced", res.Synced),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped))

	if ctx.Err() != nil && res.Attempted < len(claims) {
		errs = append(errs, ctx.Err())
	}
	if len(errs) > 0 {
		return res, fmt.Errorf("flush: %w", errors.Join(errs...))
	}
	return res, nil
}

// claim marks every eligible entry in_flight and persists the claim.
func (q *Queue) claim(ctx context.Context) ([]claim, int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, 0, ErrClosed
	}

	now := q.clock.Now()
	var claims []claim
	skipped := 0
	for _, e := range q.entries {
		if !q.eligibleLocked(e, now) {
			skipped++
			continue
		}
		claims = append(claims, claim{entry: e, prev: e.Status})
		e.Status = StatusInFlight
	}
	if len(claims) == 0 {
		return nil, skipped, nil
	}

	if err := q.persistLocked(ctx); err != nil {
		for _, c := range claims {
			c.entry.Status = c.prev
		}
		return nil, skipped, fmt.Errorf("flush: %w", err)
	}
	return claims, skipped, nil
}

func (q *Queue) eligibleLocked(e *Entry, now time.Time) bool {
	switch e.Status {
	case StatusPending:
		return true
	case StatusFailed:
		if e.Failure == FailureRejected || q.backoff.Exhausted(e.Attempts) {
			return false
		}
		return e.NextAttemptAt.IsZero() || !now.Before(e.NextAttemptAt)
	default:
		return false
	}
}

// deliver submits one claimed entry and records the outcome.
func (q *Queue) deliver(ctx context.Context, c claim, res *FlushResult) error {
	// State changes must reach the store even when the flush is cancelled.
	persistCtx := context.WithoutCancel(ctx)
	e := c.entry

	if ctx.Err() != nil {
		q.mu.Lock()
		defer q.mu.Unlock()
		e.Status = c.prev
		res.Attempted--
		res.Skipped++
		return q.persistLocked(persistCtx)
	}

	q.log.Debug("Submitting report", zap.String("report_id", e.ID()), zap.Int("attempts", e.Attempts))
	err := q.submitter.Submit(ctx, e.Report)

	q.mu.Lock()
	defer q.mu.Unlock()

	if err == nil {
		e.Status = StatusSynced
		q.removeLocked(e.ID())
		res.Synced++
		res.SyncedIDs = append(res.SyncedIDs, e.ID())
		q.log.Info("Report delivered", zap.String("report_id", e.ID()))
		if perr := q.persistLocked(persistCtx); perr != nil {
			// The store still holds the entry in_flight; Load will resubmit it.
			q.log.Error("Persist after delivery failed", zap.String("report_id", e.ID()), zap.Error(perr))
			return perr
		}
		return nil
	}

	e.Attempts++
	e.Status = StatusFailed
	e.Failure = classify(err)
	e.LastError = err.Error()
	e.NextAttemptAt = time.Time{}
	if d := q.backoff.Delay(e.Attempts); d > 0 {
		e.NextAttemptAt = q.clock.Now().Add(d)
	}
	res.Failed++
	res.FailedIDs = append(res.FailedIDs, e.ID())
	q.log.Warn("Report delivery failed",
		zap.String("report_id", e.ID()),
		zap.String("failure", string(e.Failure)),
		zap.Int("attempts", e.Attempts),
		zap.Error(err))
	return q.persistLocked(persistCtx)
}

// Retry clears the failure state of id so the next flush submits it,
// including rejected and exhausted entries. Returns the updated entry.
func (q *Queue) Retry(ctx context.Context, id string) (Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return Entry{}, ErrClosed
	}

	e := q.findLocked(id)
	if e == nil {
		return Entry{}, fmt.Errorf("retry %s: %w", id, ErrNotFound)
	}
	if e.Status == StatusInFlight {
		return Entry{}, fmt.Errorf("retry %s: %w", id, ErrInFlight)
	}

	before := *e
	e.Status = StatusPending
	e.Attempts = 0
	e.Failure = ""
	e.LastError = ""
	e.NextAttemptAt = time.Time{}
	if err := q.persistLocked(ctx); err != nil {
		*e = before
		return Entry{}, fmt.Errorf("retry %s: %w", id, err)
	}
	return *e, nil
}

// Discard removes id from the queue without delivering it.
func (q *Queue) Discard(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}

	idx := q.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("discard %s: %w", id, ErrNotFound)
	}
	if q.entries[idx].Status == StatusInFlight {
		return fmt.Errorf("discard %s: %w", id, ErrInFlight)
	}

	before := q.entries
	q.entries = append(append([]*Entry{}, before[:idx]...), before[idx+1:]...)
	if err := q.persistLocked(ctx); err != nil {
		q.entries = before
		return fmt.Errorf("discard %s: %w", id, err)
	}
	q.log.Info("Report discarded", zap.String("report_id", id))
	return nil
}

// Entries returns a snapshot of every queued entry in Seq order.
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, len(q.entries))
	for i, e := range q.entries {
		out[i] = *e
	}
	return out
}

// Get returns the entry for id.
func (q *Queue) Get(id string) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e := q.findLocked(id); e != nil {
		return *e, true
	}
	return Entry{}, false
}

// Pending returns the number of undelivered entries.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// OnNetworkRestored starts a background flush. Close waits for it.
func (q *Queue) OnNetworkRestored() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.bg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.bg.Done()
		if _, err := q.Flush(q.bgCtx); err != nil && !errors.Is(err, ErrClosed) {
			q.log.Warn("Background flush failed", zap.Error(err))
		}
	}()
}

// AttachMonitor flushes whenever m reports a transition to online.
// The returned function detaches.
func (q *Queue) AttachMonitor(m Monitor) (detach func()) {
	return m.Subscribe(func(online bool) {
		if online {
			q.OnNetworkRestored()
		}
	})
}

// Wait blocks until every background flush has finished.
func (q *Queue) Wait() {
	q.bg.Wait()
}

// Close stops accepting work, cancels background flushes and waits for
// them. Close does not close the underlying store.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	q.bgCancel()
	q.bg.Wait()
	return nil
}

func (q *Queue) findLocked(id string) *Entry {
	if i := q.indexLocked(id); i >= 0 {
		return q.entries[i]
	}
	return nil
}

func (q *Queue) indexLocked(id string) int {
	for i, e := range q.entries {
		if e.ID() == id {
			return i
		}
	}
	return -1
}

func (q *Queue) removeLocked(id string) {
	if i := q.indexLocked(id); i >= 0 {
		q.entries = append(q.entries[:i:i], q.entries[i+1:]...)
	}
}

func (q *Queue) persistLocked(ctx context.Context) error {
	snapshot := make([]Entry, len(q.entries))
	for i, e := range q.entries {
		snapshot[i] = *e
	}
	if err := q.store.SetJSON(ctx, StoreKey, snapshot); err != nil {
		return fmt.Errorf("persist queue: %w", err)
	}
	return nil
}
