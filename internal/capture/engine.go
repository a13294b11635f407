// Package capture acquires still frames from a front or back camera.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/readykit/internal/clock"
	"github.com/roach88/readykit/internal/fault"
)

// Facing selects a camera.
type Facing string

const (
	FacingEnvironment Facing = "environment" // back camera
	FacingUser        Facing = "user"        // front camera
)

// Opposite returns the other camera.
func (f Facing) Opposite() Facing {
	if f == FacingUser {
		return FacingEnvironment
	}
	return FacingUser
}

// ParseFacing accepts "back"/"environment" and "front"/"user".
func ParseFacing(s string) (Facing, error) {
	switch s {
	case "back", "environment", "":
		return FacingEnvironment, nil
	case "front", "user":
		return FacingUser, nil
	}
	return "", fmt.Errorf("unknown camera facing %q", s)
}

// State is the engine lifecycle state.
type State string

const (
	StateIdle     State = "idle"
	StateActive   State = "active"
	StateCaptured State = "captured"
)

var (
	// ErrNotActive is returned by Capture outside the active state.
	ErrNotActive = errors.New("camera not active")

	// ErrCaptured is returned by Start while a capture awaits Reset.
	ErrCaptured = errors.New("capture pending; reset first")
)

// Source opens camera streams.
type Source interface {
	Open(ctx context.Context, facing Facing) (Stream, error)
}

// Stream is an open camera.
type Stream interface {
	// Frame returns the current frame.
	Frame() (image.Image, error)
	Close() error
}

// Raw is a captured frame before annotation.
type Raw struct {
	Image      image.Image
	Facing     Facing
	CapturedAt time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used to stamp captures.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithFacing sets the initial facing preference. Defaults to the back camera.
func WithFacing(f Facing) Option {
	return func(e *Engine) { e.facing = f }
}

// Engine drives one camera through idle → active → captured.
//
// Thread-safety: Engine is safe for concurrent use; Stop may be called
// from any goroutine at any time.
type Engine struct {
	source Source
	clock  clock.Clock
	log    *zap.Logger

	mu     sync.Mutex
	state  State
	facing Facing
	stream Stream
	last   *Raw
}

// NewEngine creates an idle engine.
func NewEngine(src Source, opts ...Option) *Engine {
	e := &Engine{
		source: src,
		clock:  clock.System{},
		log:    zap.NewNop(),
		state:  StateIdle,
		facing: FacingEnvironment,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start opens the camera with the given facing. Starting while active
// restarts with the new facing. On failure the engine is idle and the
// error is a fault.KindDevice.
func (e *Engine) Start(ctx context.Context, facing Facing) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateCaptured {
		return ErrCaptured
	}
	e.facing = facing
	return e.openLocked(ctx)
}

func (e *Engine) openLocked(ctx context.Context) error {
	e.closeStreamLocked()

	stream, err := e.source.Open(ctx, e.facing)
	if err != nil {
		e.state = StateIdle
		var fe *fault.Error
		if !errors.As(err, &fe) {
			err = fault.Wrapf(fault.KindDevice, "open camera", fault.ReasonDeviceUnavailable, err)
		}
		e.log.Warn("Camera unavailable", zap.String("facing", string(e.facing)), zap.Error(err))
		return err
	}

	e.stream = stream
	e.state = StateActive
	e.log.Debug("Camera started", zap.String("facing", string(e.facing)))
	return nil
}

// Capture snapshots the current frame, stops the stream and moves to
// captured. Only valid while active.
func (e *Engine) Capture() (Raw, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateActive {
		return Raw{}, ErrNotActive
	}

	img, err := e.stream.Frame()
	if err != nil {
		return Raw{}, fault.Wrapf(fault.KindDevice, "capture frame", fault.ReasonDeviceUnavailable, err)
	}

	raw := Raw{Image: img, Facing: e.facing, CapturedAt: e.clock.Now()}
	e.last = &raw
	e.closeStreamLocked()
	e.state = StateCaptured
	return raw, nil
}

// SwitchFacing flips between front and back. While active the stream is
// stopped and reopened with the new facing; otherwise only the preference
// changes.
func (e *Engine) SwitchFacing(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.facing = e.facing.Opposite()
	if e.state != StateActive {
		return nil
	}
	return e.openLocked(ctx)
}

// Stop releases the camera. It is safe in every state and idempotent; a
// captured frame is kept.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closeStreamLocked()
	if e.state == StateActive {
		e.state = StateIdle
	}
}

// Reset discards the captured frame and returns to idle.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closeStreamLocked()
	e.last = nil
	e.state = StateIdle
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Facing returns the current facing preference.
func (e *Engine) Facing() Facing {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.facing
}

// Last returns the most recent capture, if one is held.
func (e *Engine) Last() (Raw, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return Raw{}, false
	}
	return *e.last, true
}

func (e *Engine) closeStreamLocked() {
	if e.stream == nil {
		return
	}
	if err := e.stream.Close(); err != nil {
		e.log.Debug("Camera close failed", zap.Error(err))
	}
	e.stream = nil
}
