package geo

import (
	"context"
	"time"

	"github.com/roach88/readykit/internal/fault"
)

// StaticProvider returns a fixed position after Delay, or Err.
type StaticProvider struct {
	Position Position
	Delay    time.Duration
	Err      error
}

// CurrentPosition implements Provider.
func (p StaticProvider) CurrentPosition(ctx context.Context, _ Options) (Position, error) {
	if p.Delay > 0 {
		t := time.NewTimer(p.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return Position{}, ctx.Err()
		}
	}
	if p.Err != nil {
		return Position{}, p.Err
	}
	return p.Position, nil
}

// UnsupportedProvider models a device without location hardware.
type UnsupportedProvider struct{}

// CurrentPosition always fails with reason unsupported.
func (UnsupportedProvider) CurrentPosition(context.Context, Options) (Position, error) {
	return Position{}, fault.New(fault.KindDevice, opRequest, fault.ReasonUnsupported)
}

// DeniedProvider models a user who refused location permission.
type DeniedProvider struct{}

// CurrentPosition always fails with reason permission_denied.
func (DeniedProvider) CurrentPosition(context.Context, Options) (Position, error) {
	return Position{}, fault.New(fault.KindDevice, opRequest, fault.ReasonPermissionDenied)
}
