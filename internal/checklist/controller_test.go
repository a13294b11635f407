package checklist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/readykit/internal/fault"
	"github.com/roach88/readykit/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2026, 7, 14, 9, 0, 0, 0, time.UTC)

type fakeRemote struct {
	mu       sync.Mutex
	saves    [][]Item
	saveErr  error
	items    []Item
	present  bool
	loadErr  error
	block    chan struct{}
	entered  chan struct{}
	inFlight int
	maxIn    int
}

func (r *fakeRemote) Load(ctx context.Context) ([]Item, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clone(r.items), r.present, r.loadErr
}

func (r *fakeRemote) Save(ctx context.Context, items []Item) error {
	r.mu.Lock()
	r.inFlight++
	if r.inFlight > r.maxIn {
		r.maxIn = r.inFlight
	}
	block, entered := r.block, r.entered
	r.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight--
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saves = append(r.saves, clone(items))
	return nil
}

func (r *fakeRemote) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saves)
}

func (r *fakeRemote) lastSave() []Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.saves) == 0 {
		return nil
	}
	return r.saves[len(r.saves)-1]
}

func newController(t *testing.T, opts ...Option) (*Controller, *testutil.MemStore) {
	t.Helper()
	st := testutil.NewMemStore()
	c := New(st, opts...)
	require.NoError(t, c.Load(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c, st
}

func checked(items []Item) []int {
	var ids []int
	for _, it := range items {
		if it.Checked {
			ids = append(ids, it.ID)
		}
	}
	return ids
}

func storedItems(t *testing.T, st *testutil.MemStore) []Item {
	t.Helper()
	var items []Item
	ok, err := st.GetJSON(context.Background(), StoreKey, &items)
	require.NoError(t, err)
	require.True(t, ok)
	return items
}

func TestDefaults(t *testing.T) {
	items := Defaults()
	require.Len(t, items, 27)
	assert.Equal(t, Item{ID: 1, Category: "Documents", Item: "Valid IDs (Photocopy)"}, items[0])
	assert.Equal(t, Item{ID: 27, Category: "Hygiene", Item: "Face masks"}, items[26])

	groups := GroupByCategory(items)
	require.Len(t, groups, len(Categories))
	for i, g := range groups {
		assert.Equal(t, Categories[i], g.Category)
	}
}

func TestLoad_InstallsDefaultsOnce(t *testing.T) {
	c, st := newController(t)
	assert.Len(t, c.Items(), 27)
	assert.Len(t, storedItems(t, st), 27)

	require.NoError(t, c.Delete(context.Background(), 1))

	again := New(st)
	defer again.Close()
	require.NoError(t, again.Load(context.Background()))
	assert.Len(t, again.Items(), 26)
}

func TestEdits_PersistImmediatelyWithoutRemote(t *testing.T) {
	clk := testutil.NewFakeClock(epoch)
	c, st := newController(t, WithClock(clk))
	ctx := context.Background()

	it, err := c.Toggle(ctx, 5)
	require.NoError(t, err)
	assert.True(t, it.Checked)
	assert.Equal(t, []int{5}, checked(storedItems(t, st)))

	added, err := c.Add(ctx, "Clothing", "  Extra socks ")
	require.NoError(t, err)
	assert.Equal(t, Item{ID: 28, Category: "Clothing", Item: "Extra socks"}, added)

	require.NoError(t, c.Delete(ctx, 28))
	assert.Len(t, storedItems(t, st), 27)

	assert.Equal(t, StatusLocal, c.Status())
	assert.Zero(t, clk.Pending(), "no debounce without an account")
}

func TestAdd_Validation(t *testing.T) {
	c, _ := newController(t)
	ctx := context.Background()

	_, err := c.Add(ctx, "Documents", "   ")
	assert.True(t, fault.IsValidation(err))

	_, err = c.Add(ctx, "Snacks", "Chips")
	assert.True(t, fault.IsValidation(err))
	assert.Len(t, c.Items(), 27)
}

func TestAdd_IDAfterDeletingMax(t *testing.T) {
	c, _ := newController(t)
	ctx := context.Background()

	require.NoError(t, c.Delete(ctx, 27))
	it, err := c.Add(ctx, "Hygiene", "Wet wipes")
	require.NoError(t, err)
	assert.Equal(t, 27, it.ID)
}

func TestToggleDelete_NotFound(t *testing.T) {
	c, _ := newController(t)
	_, err := c.Toggle(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, c.Delete(context.Background(), 999), ErrNotFound)
}

func TestEdit_StoreFailureKeepsState(t *testing.T) {
	c, st := newController(t)
	st.FailNext(errors.New("disk full"))

	_, err := c.Toggle(context.Background(), 1)
	require.Error(t, err)
	assert.Empty(t, checked(c.Items()))
	assert.Empty(t, checked(storedItems(t, st)))
}

func TestResetAndUncheckAll(t *testing.T) {
	c, _ := newController(t)
	ctx := context.Background()

	_, err := c.Toggle(ctx, 2)
	require.NoError(t, err)
	_, err = c.Add(ctx, "Documents", "Land title")
	require.NoError(t, err)

	require.NoError(t, c.UncheckAll(ctx))
	assert.Empty(t, checked(c.Items()))
	assert.Len(t, c.Items(), 28)

	require.NoError(t, c.Reset(ctx))
	assert.Equal(t, Defaults(), c.Items())
}

func TestDebounce_BurstProducesOneSave(t *testing.T) {
	clk := testutil.NewFakeClock(epoch)
	remote := &fakeRemote{}
	c, _ := newController(t, WithClock(clk), WithRemote(remote), WithDebounce(time.Second))
	ctx := context.Background()

	_, err := c.Toggle(ctx, 5)
	require.NoError(t, err)
	clk.Advance(200 * time.Millisecond)
	_, err = c.Toggle(ctx, 6)
	require.NoError(t, err)
	assert.Equal(t, StatusLocal, c.Status())

	clk.Advance(999 * time.Millisecond)
	c.Wait()
	assert.Zero(t, remote.saveCount(), "window restarts on each edit")

	clk.Advance(time.Millisecond)
	c.Wait()

	require.Equal(t, 1, remote.saveCount())
	assert.Equal(t, []int{5, 6}, checked(remote.lastSave()))
	assert.Equal(t, StatusSynced, c.Status())
}

func TestDebounce_EditDuringSaveSchedulesFollowUp(t *testing.T) {
	clk := testutil.NewFakeClock(epoch)
	remote := &fakeRemote{block: make(chan struct{}), entered: make(chan struct{}, 4)}
	c, _ := newController(t, WithClock(clk), WithRemote(remote))
	ctx := context.Background()

	_, err := c.Toggle(ctx, 1)
	require.NoError(t, err)
	clk.Advance(time.Second)
	<-remote.entered
	assert.Equal(t, StatusSyncing, c.Status())

	_, err = c.Toggle(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusLocal, c.Status())

	// Window elapses while the first save is still running.
	clk.Advance(time.Second)

	close(remote.block)
	c.Wait()

	require.Equal(t, 2, remote.saveCount())
	assert.Equal(t, []int{1, 2}, checked(remote.lastSave()))
	assert.Equal(t, 1, remote.maxIn, "at most one save in flight")
	assert.Equal(t, StatusSynced, c.Status())
}

func TestDebounce_SaveErrorThenRetry(t *testing.T) {
	clk := testutil.NewFakeClock(epoch)
	remote := &fakeRemote{saveErr: errors.New("HTTP 502")}
	c, _ := newController(t, WithClock(clk), WithRemote(remote))
	ctx := context.Background()

	_, err := c.Toggle(ctx, 3)
	require.NoError(t, err)
	clk.Advance(time.Second)
	c.Wait()

	assert.Equal(t, StatusSyncError, c.Status())
	assert.EqualError(t, c.LastError(), "HTTP 502")

	remote.mu.Lock()
	remote.saveErr = nil
	remote.mu.Unlock()

	require.NoError(t, c.Retry(ctx))
	assert.Equal(t, StatusSynced, c.Status())
	assert.NoError(t, c.LastError())
	assert.Equal(t, []int{3}, checked(remote.lastSave()))
}

func TestPush_CancelsPendingDebounce(t *testing.T) {
	clk := testutil.NewFakeClock(epoch)
	remote := &fakeRemote{}
	c, _ := newController(t, WithClock(clk), WithRemote(remote))
	ctx := context.Background()

	_, err := c.Toggle(ctx, 4)
	require.NoError(t, err)
	require.NoError(t, c.Push(ctx))
	assert.Equal(t, 1, remote.saveCount())

	clk.Advance(5 * time.Second)
	c.Wait()
	assert.Equal(t, 1, remote.saveCount())
}

func TestPushPull_RequireRemote(t *testing.T) {
	c, _ := newController(t)
	assert.ErrorIs(t, c.Push(context.Background()), ErrNoRemote)
	assert.ErrorIs(t, c.Pull(context.Background()), ErrNoRemote)
}

func TestPull_RemoteWins(t *testing.T) {
	clk := testutil.NewFakeClock(epoch)
	remoteItems := []Item{
		{ID: 1, Category: "Documents", Item: "Passport", Checked: true},
		{ID: 1, Category: "Documents", Item: "Duplicate"},
		{ID: 9, Category: "Hygiene", Item: "Soap"},
	}
	remote := &fakeRemote{items: remoteItems, present: true}
	c, st := newController(t, WithClock(clk), WithRemote(remote))
	ctx := context.Background()

	_, err := c.Toggle(ctx, 20)
	require.NoError(t, err)

	require.NoError(t, c.Pull(ctx))
	want := []Item{remoteItems[0], remoteItems[2]}
	assert.Equal(t, want, c.Items())
	assert.Equal(t, want, storedItems(t, st))
	assert.Equal(t, StatusSynced, c.Status())

	// The local edit's debounce was cancelled.
	clk.Advance(5 * time.Second)
	c.Wait()
	assert.Zero(t, remote.saveCount())
}

func TestPull_DuringSaveResavesPulledCopy(t *testing.T) {
	clk := testutil.NewFakeClock(epoch)
	pulled := []Item{{ID: 1, Category: "Documents", Item: "Passport", Checked: true}}
	remote := &fakeRemote{
		items:   pulled,
		present: true,
		block:   make(chan struct{}),
		entered: make(chan struct{}, 4),
	}
	c, st := newController(t, WithClock(clk), WithRemote(remote))
	ctx := context.Background()

	_, err := c.Toggle(ctx, 2)
	require.NoError(t, err)
	clk.Advance(time.Second)
	<-remote.entered

	require.NoError(t, c.Pull(ctx))
	assert.Equal(t, pulled, c.Items())
	assert.Equal(t, StatusSyncing, c.Status())

	close(remote.block)
	c.Wait()

	require.Equal(t, 2, remote.saveCount())
	assert.Equal(t, pulled, remote.lastSave())
	assert.Equal(t, pulled, storedItems(t, st))
	assert.Equal(t, StatusSynced, c.Status())
}

func TestPull_AbsentKeepsLocal(t *testing.T) {
	remote := &fakeRemote{}
	c, _ := newController(t, WithRemote(remote), WithClock(testutil.NewFakeClock(epoch)))

	require.NoError(t, c.Pull(context.Background()))
	assert.Len(t, c.Items(), 27)
	assert.Equal(t, StatusLocal, c.Status())
}

func TestPull_ErrorSetsSyncError(t *testing.T) {
	remote := &fakeRemote{loadErr: fault.New(fault.KindNetwork, "load checklist", "")}
	c, _ := newController(t, WithRemote(remote), WithClock(testutil.NewFakeClock(epoch)))

	err := c.Pull(context.Background())
	require.Error(t, err)
	assert.True(t, fault.IsNetwork(err))
	assert.Equal(t, StatusSyncError, c.Status())
	assert.Len(t, c.Items(), 27)
}

func TestSubscribe_ObservesTransitions(t *testing.T) {
	clk := testutil.NewFakeClock(epoch)
	remote := &fakeRemote{}
	c, _ := newController(t, WithClock(clk), WithRemote(remote))
	ctx := context.Background()

	var mu sync.Mutex
	var seen []Status
	unsubscribe := c.Subscribe(func(s Status) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	})

	// Already local; the edit does not re-announce it.
	_, err := c.Toggle(ctx, 1)
	require.NoError(t, err)
	clk.Advance(time.Second)
	c.Wait()

	unsubscribe()
	_, err = c.Toggle(ctx, 2)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{StatusSyncing, StatusSynced}, seen)
}

func TestClose_StopsTimerAndCancelsSave(t *testing.T) {
	clk := testutil.NewFakeClock(epoch)
	remote := &fakeRemote{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	st := testutil.NewMemStore()
	c := New(st, WithClock(clk), WithRemote(remote))
	require.NoError(t, c.Load(context.Background()))
	ctx := context.Background()

	_, err := c.Toggle(ctx, 1)
	require.NoError(t, err)
	clk.Advance(time.Second)
	<-remote.entered

	require.NoError(t, c.Close())
	assert.Zero(t, remote.saveCount())

	_, err = c.Toggle(ctx, 2)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, clk.Pending())
}

func TestProgressOf(t *testing.T) {
	assert.Equal(t, Progress{}, ProgressOf(nil))

	items := Defaults()
	items[0].Checked = true
	items[1].Checked = true
	assert.Equal(t, Progress{Checked: 2, Total: 27, Percent: 7}, ProgressOf(items))
}
