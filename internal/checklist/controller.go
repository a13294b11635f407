// Package checklist keeps the preparedness checklist durable on the device
// and, when an account is configured, synchronized with the remote copy.
//
// Every edit is written to the local store immediately. Remote saves are
// debounced: a burst of edits inside the quiescence window produces one
// save of the final state. At most one save is in flight; an edit that
// lands during a save is picked up by a follow-up save.
//
// Conflict policy: on Pull the remote copy replaces the local one.
package checklist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/readykit/internal/clock"
	"github.com/roach88/readykit/internal/fault"
)

// StoreKey is the durable store key holding the checklist document.
const StoreKey = "checklist"

// DefaultDebounce is the quiescence window before a remote save.
const DefaultDebounce = time.Second

// Status is the synchronization state.
type Status string

const (
	StatusLocal     Status = "local"
	StatusSyncing   Status = "syncing"
	StatusSynced    Status = "synced"
	StatusSyncError Status = "sync_error"
)

var (
	// ErrNotFound is returned for an unknown item ID.
	ErrNotFound = errors.New("checklist item not found")

	// ErrNoRemote is returned by Pull and Push without a configured remote.
	ErrNoRemote = errors.New("no remote checklist configured")

	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("checklist controller closed")
)

// Remote is the authoritative per-account checklist copy.
type Remote interface {
	// Load returns the remote items; false when the account has none yet.
	Load(ctx context.Context) ([]Item, bool, error)
	Save(ctx context.Context, items []Item) error
}

// Store is the durable document store.
type Store interface {
	GetJSON(ctx context.Context, key string, v any) (bool, error)
	SetJSON(ctx context.Context, key string, v any) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithRemote enables remote synchronization.
func WithRemote(r Remote) Option {
	return func(c *Controller) { c.remote = r }
}

// WithClock sets the clock driving the debounce timer.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// WithDebounce sets the quiescence window.
func WithDebounce(d time.Duration) Option {
	return func(c *Controller) { c.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// Controller owns the checklist state.
//
// Thread-safety: Controller is safe for concurrent use. Subscribers are
// called without the controller lock held.
type Controller struct {
	store    Store
	remote   Remote
	clock    clock.Clock
	debounce time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	items   []Item
	status  Status
	lastErr error
	rev     uint64 // bumped by every local change
	timer   clock.Timer
	gen     uint64 // identifies the live timer
	saving  bool
	pending bool // timer fired or push requested during a save
	subs    map[int]func(Status)
	nextSub int
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a controller with an empty checklist. Call Load next.
func New(st Store, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		store:    st,
		clock:    clock.System{},
		debounce: DefaultDebounce,
		log:      zap.NewNop(),
		items:    []Item{},
		status:   StatusLocal,
		subs:     make(map[int]func(Status)),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load restores the persisted checklist, or installs and persists the
// defaults when none exists.
func (c *Controller) Load(ctx context.Context) error {
	var items []Item
	ok, err := c.store.GetJSON(ctx, StoreKey, &items)
	if err != nil {
		return fmt.Errorf("load checklist: %w", err)
	}
	if !ok {
		items = Defaults()
		if err := c.store.SetJSON(ctx, StoreKey, items); err != nil {
			return fmt.Errorf("load checklist: %w", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.items = dedupe(items)
	return nil
}

// Items returns a snapshot of the checklist.
func (c *Controller) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return clone(c.items)
}

// Status returns the synchronization state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastError returns the error of the most recent failed sync, or nil.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Toggle flips the checked state of item id.
func (c *Controller) Toggle(ctx context.Context, id int) (Item, error) {
	var toggled Item
	err := c.edit(ctx, "toggle", func(items []Item) ([]Item, error) {
		for i := range items {
			if items[i].ID == id {
				items[i].Checked = !items[i].Checked
				toggled = items[i]
				return items, nil
			}
		}
		return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
	})
	return toggled, err
}

// Add appends an unchecked item with ID max(id)+1.
// Blank text or an unknown category is a validation error.
func (c *Controller) Add(ctx context.Context, category, text string) (Item, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Item{}, fault.New(fault.KindValidation, "add checklist item", "blank_text")
	}
	if !knownCategory(category) {
		return Item{}, fault.Wrapf(fault.KindValidation, "add checklist item", "unknown_category",
			fmt.Errorf("category %q", category))
	}

	var added Item
	err := c.edit(ctx, "add", func(items []Item) ([]Item, error) {
		added = Item{ID: nextID(items), Category: category, Item: text}
		return append(items, added), nil
	})
	return added, err
}

// Delete removes item id.
func (c *Controller) Delete(ctx context.Context, id int) error {
	return c.edit(ctx, "delete", func(items []Item) ([]Item, error) {
		for i := range items {
			if items[i].ID == id {
				return append(items[:i], items[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
	})
}

// Reset replaces the checklist with the defaults, dropping custom items.
func (c *Controller) Reset(ctx context.Context) error {
	return c.edit(ctx, "reset", func([]Item) ([]Item, error) {
		return Defaults(), nil
	})
}

// UncheckAll clears every checked flag, keeping custom items.
func (c *Controller) UncheckAll(ctx context.Context) error {
	return c.edit(ctx, "uncheck all", func(items []Item) ([]Item, error) {
		for i := range items {
			items[i].Checked = false
		}
		return items, nil
	})
}

// edit applies fn to a copy of the items, persists the result, and only
// then makes it visible. With a remote configured the status drops to
// local and the debounce window restarts.
func (c *Controller) edit(ctx context.Context, op string, fn func([]Item) ([]Item, error)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	next, err := fn(clone(c.items))
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.store.SetJSON(ctx, StoreKey, next); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", op, err)
	}
	c.items = next
	c.rev++

	notify := func() {}
	if c.remote != nil {
		notify = c.setStatusLocked(StatusLocal)
		c.scheduleLocked()
	}
	c.mu.Unlock()

	notify()
	return nil
}

func (c *Controller) scheduleLocked() {
	c.stopTimerLocked()
	gen := c.gen
	c.timer = c.clock.AfterFunc(c.debounce, func() { c.fire(gen) })
}

// stopTimerLocked cancels the live timer; a callback already running sees
// a stale generation and does nothing.
func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

func (c *Controller) fire(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	if c.saving {
		c.pending = true
		c.mu.Unlock()
		return
	}

	items, rev, notify := c.beginSaveLocked()
	c.wg.Add(1)
	c.mu.Unlock()

	notify()
	go c.runSave(items, rev)
}

func (c *Controller) beginSaveLocked() ([]Item, uint64, func()) {
	c.saving = true
	return clone(c.items), c.rev, c.setStatusLocked(StatusSyncing)
}

// runSave saves items, then keeps saving the latest state for as long as
// follow-ups were requested during the previous save.
func (c *Controller) runSave(items []Item, rev uint64) {
	defer c.wg.Done()
	for {
		err := c.remote.Save(c.ctx, items)

		c.mu.Lock()
		next, nextRev, follow, notify := c.completeLocked(rev, err)
		c.mu.Unlock()
		notify()

		if !follow {
			return
		}
		items, rev = next, nextRev
	}
}

// completeLocked records the outcome of a save of revision rev. When a
// follow-up is due it stays in the saving state and returns the snapshot
// to save next.
func (c *Controller) completeLocked(rev uint64, err error) ([]Item, uint64, bool, func()) {
	if err != nil {
		c.lastErr = err
		c.log.Warn("Checklist sync failed", zap.Error(err))
	} else {
		c.lastErr = nil
		c.log.Debug("Checklist synced", zap.Int("items", len(c.items)))
	}

	if c.pending && !c.closed {
		c.pending = false
		items, nextRev, notify := c.beginSaveLocked()
		return items, nextRev, true, notify
	}
	c.pending = false
	c.saving = false

	// Newer edits are waiting on their own timer; the status they set
	// (local) stays until that save completes.
	if c.rev != rev {
		return nil, 0, false, func() {}
	}
	if err != nil {
		return nil, 0, false, c.setStatusLocked(StatusSyncError)
	}
	return nil, 0, false, c.setStatusLocked(StatusSynced)
}

// Push saves the current checklist immediately, cancelling any pending
// debounce. If a save is already in flight, a follow-up is queued behind
// it and Push returns nil.
func (c *Controller) Push(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.remote == nil {
		c.mu.Unlock()
		return ErrNoRemote
	}
	c.stopTimerLocked()
	if c.saving {
		c.pending = true
		c.mu.Unlock()
		return nil
	}
	items, rev, notify := c.beginSaveLocked()
	c.mu.Unlock()
	notify()

	err := c.remote.Save(ctx, items)

	c.mu.Lock()
	next, nextRev, follow, notify := c.completeLocked(rev, err)
	if follow {
		c.wg.Add(1)
		go c.runSave(next, nextRev)
	}
	c.mu.Unlock()
	notify()

	if err != nil {
		return fmt.Errorf("push checklist: %w", err)
	}
	return nil
}

// Retry pushes immediately after a sync error.
func (c *Controller) Retry(ctx context.Context) error {
	return c.Push(ctx)
}

// Pull fetches the remote copy. A present remote copy replaces the local
// one and is persisted; pending local edits are discarded. An absent copy
// leaves local state untouched. A save already in flight is followed by a
// save of the pulled copy, so the remote never keeps the replaced snapshot.
func (c *Controller) Pull(ctx context.Context) error {
	c.mu.Lock()
	closed, remote := c.closed, c.remote
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if remote == nil {
		return ErrNoRemote
	}

	items, ok, err := remote.Load(ctx)

	c.mu.Lock()
	if err != nil {
		c.lastErr = err
		notify := c.setStatusLocked(StatusSyncError)
		c.mu.Unlock()
		notify()
		return fmt.Errorf("pull checklist: %w", err)
	}
	if !ok {
		c.mu.Unlock()
		c.log.Debug("No remote checklist")
		return nil
	}

	items = dedupe(items)
	if err := c.store.SetJSON(ctx, StoreKey, items); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("pull checklist: %w", err)
	}
	c.stopTimerLocked()
	c.items = items
	c.rev++
	c.lastErr = nil
	status := StatusSynced
	if c.saving {
		c.pending = true
		status = StatusSyncing
	}
	notify := c.setStatusLocked(status)
	c.mu.Unlock()

	notify()
	c.log.Info("Checklist replaced from remote", zap.Int("items", len(items)))
	return nil
}

// Subscribe registers fn for status changes and returns a function that
// removes it.
func (c *Controller) Subscribe(fn func(Status)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// setStatusLocked updates the status and returns a function that notifies
// subscribers; call it after releasing the lock.
func (c *Controller) setStatusLocked(s Status) func() {
	if c.status == s {
		return func() {}
	}
	c.status = s
	subs := make([]func(Status), 0, len(c.subs))
	for id := 0; id < c.nextSub; id++ {
		if fn, ok := c.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	return func() {
		for _, fn := range subs {
			fn(s)
		}
	}
}

// Wait blocks until no save is running.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close cancels the pending debounce and any in-flight save, and waits for
// the save goroutine to exit. Local state is already durable.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopTimerLocked()
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}

func knownCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}
