package geo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/geo/s2"
	"go.uber.org/zap"

	"github.com/roach88/readykit/internal/clock"
	"github.com/roach88/readykit/internal/fault"
)

// Defaults for a capture reading and for the availability probe.
const (
	DefaultTimeout      = 8 * time.Second
	DefaultProbeTimeout = 3 * time.Second
	probeMaximumAge     = 30 * time.Second
)

// Position is a raw provider fix.
type Position struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64 // metres, 95% radius

	Altitude *float64
	Heading  *float64
	Speed    *float64

	// Timestamp is when the fix was taken; zero means "now".
	Timestamp time.Time
}

// Options tune a single provider request.
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaximumAge   time.Duration
}

// Provider produces position fixes. Implementations should return once
// ctx is done; Sensor never waits past its timeout either way.
type Provider interface {
	CurrentPosition(ctx context.Context, opts Options) (Position, error)
}

// Status is the outcome of an availability probe.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusUnavailable Status = "unavailable"
	StatusUnsupported Status = "unsupported"
)

// SensorOption configures a Sensor.
type SensorOption func(*Sensor)

// WithClock sets the clock used to stamp readings.
func WithClock(c clock.Clock) SensorOption {
	return func(s *Sensor) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) SensorOption {
	return func(s *Sensor) { s.log = l }
}

// WithTimeouts overrides the capture and probe timeouts.
func WithTimeouts(request, probe time.Duration) SensorOption {
	return func(s *Sensor) {
		if request > 0 {
			s.timeout = request
		}
		if probe > 0 {
			s.probeTimeout = probe
		}
	}
}

// Sensor wraps a Provider with timeouts and validation.
//
// Thread-safety: Sensor is safe for concurrent use if its Provider is.
type Sensor struct {
	provider     Provider
	clock        clock.Clock
	log          *zap.Logger
	timeout      time.Duration
	probeTimeout time.Duration
}

// NewSensor creates a sensor. A nil provider means the device has no
// location support.
func NewSensor(p Provider, opts ...SensorOption) *Sensor {
	s := &Sensor{
		provider:     p,
		clock:        clock.System{},
		log:          zap.NewNop(),
		timeout:      DefaultTimeout,
		probeTimeout: DefaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestReading asks for a fresh fix and waits at most timeout.
//
// Errors are fault.KindDevice with reason timeout, unsupported,
// permission_denied or device_unavailable. A provider result arriving
// after the timeout is discarded.
func (s *Sensor) RequestReading(ctx context.Context, timeout time.Duration, highAccuracy bool) (Reading, error) {
	return s.request(ctx, Options{HighAccuracy: highAccuracy, Timeout: timeout})
}

// Read is RequestReading with the configured timeout and high accuracy.
func (s *Sensor) Read(ctx context.Context) (Reading, error) {
	return s.RequestReading(ctx, s.timeout, true)
}

// ReadingOrUnavailable returns a fresh fix, or an Unavailable reading
// stamped with the current time together with the reason the fix failed.
// The reading is always usable.
func (s *Sensor) ReadingOrUnavailable(ctx context.Context) (Reading, error) {
	r, err := s.Read(ctx)
	if err != nil {
		s.log.Info("Location unavailable", zap.Error(err))
		return Unavailable(s.clock.Now()), err
	}
	return r, nil
}

// Probe performs a short, low-accuracy request accepting a cached fix.
// The result is an indicator only; capture never depends on it.
func (s *Sensor) Probe(ctx context.Context) Status {
	_, err := s.request(ctx, Options{Timeout: s.probeTimeout, MaximumAge: probeMaximumAge})
	switch {
	case err == nil:
		return StatusAvailable
	case fault.ReasonOf(err) == fault.ReasonUnsupported:
		return StatusUnsupported
	default:
		return StatusUnavailable
	}
}

const opRequest = "geo request"

func (s *Sensor) request(ctx context.Context, opts Options) (Reading, error) {
	if s.provider == nil {
		return Reading{}, fault.New(fault.KindDevice, opRequest, fault.ReasonUnsupported)
	}

	reqCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	type result struct {
		pos Position
		err error
	}
	// Buffered so a late provider never blocks.
	ch := make(chan result, 1)
	go func() {
		pos, err := s.provider.CurrentPosition(reqCtx, opts)
		ch <- result{pos, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return Reading{}, s.classify(ctx, res.err)
		}
		return s.toReading(res.pos)
	case <-reqCtx.Done():
		if err := ctx.Err(); err != nil {
			return Reading{}, fault.Wrap(fault.KindDevice, opRequest, err)
		}
		s.log.Debug("Location request timed out", zap.Duration("timeout", opts.Timeout))
		return Reading{}, fault.New(fault.KindDevice, opRequest, fault.ReasonTimeout)
	}
}

func (s *Sensor) classify(parent context.Context, err error) error {
	var fe *fault.Error
	switch {
	case errors.As(err, &fe):
		return err
	case errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil:
		return fault.New(fault.KindDevice, opRequest, fault.ReasonTimeout)
	default:
		return fault.Wrapf(fault.KindDevice, opRequest, fault.ReasonDeviceUnavailable, err)
	}
}

func (s *Sensor) toReading(p Position) (Reading, error) {
	if !s2.LatLngFromDegrees(p.Latitude, p.Longitude).IsValid() {
		return Reading{}, fault.Wrapf(fault.KindDevice, opRequest, fault.ReasonDeviceUnavailable,
			fmt.Errorf("invalid coordinate %v,%v", p.Latitude, p.Longitude))
	}

	at := p.Timestamp
	if at.IsZero() {
		at = s.clock.Now()
	}
	r := Reading{
		Latitude:   Some(p.Latitude),
		Longitude:  Some(p.Longitude),
		Altitude:   from(p.Altitude),
		Heading:    from(p.Heading),
		Speed:      from(p.Speed),
		CapturedAt: at,
	}
	if p.Accuracy > 0 {
		r.Accuracy = Some(p.Accuracy)
	}
	return r, nil
}
