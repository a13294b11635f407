package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestFakeClock_NowFrozenUntilAdvance(t *testing.T) {
	c := NewFakeClock(epoch)
	assert.Equal(t, epoch, c.Now())

	c.Advance(1500 * time.Millisecond)
	assert.Equal(t, epoch.Add(1500*time.Millisecond), c.Now())
}

func TestFakeClock_FiresDueTimersInOrder(t *testing.T) {
	c := NewFakeClock(epoch)
	var order []string

	c.AfterFunc(300*time.Millisecond, func() { order = append(order, "late") })
	c.AfterFunc(100*time.Millisecond, func() { order = append(order, "early") })
	c.AfterFunc(100*time.Millisecond, func() { order = append(order, "early-2") })

	c.Advance(50 * time.Millisecond)
	assert.Empty(t, order)
	assert.Equal(t, 3, c.Pending())

	c.Advance(300 * time.Millisecond)
	assert.Equal(t, []string{"early", "early-2", "late"}, order)
	assert.Equal(t, 0, c.Pending())
}

func TestFakeClock_StopPreventsFire(t *testing.T) {
	c := NewFakeClock(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	c.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestFakeClock_CallbackSeesDeadlineAndCanReschedule(t *testing.T) {
	c := NewFakeClock(epoch)
	var seen []time.Time

	c.AfterFunc(time.Second, func() {
		seen = append(seen, c.Now())
		c.AfterFunc(time.Second, func() { seen = append(seen, c.Now()) })
	})

	c.Advance(5 * time.Second)
	assert.Equal(t, []time.Time{epoch.Add(time.Second), epoch.Add(2 * time.Second)}, seen)
	assert.Equal(t, epoch.Add(5*time.Second), c.Now())
}

func TestFakeClock_StopAfterFire(t *testing.T) {
	c := NewFakeClock(epoch)
	timer := c.AfterFunc(time.Millisecond, func() {})
	c.Advance(time.Millisecond)
	assert.False(t, timer.Stop())
}
