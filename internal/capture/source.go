package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"sync"

	"github.com/roach88/readykit/internal/fault"
)

var errStreamClosed = errors.New("stream closed")

// FileSource serves still images from disk, one per facing. Frames are
// rotated upright according to EXIF and scaled to MaxDimension.
type FileSource struct {
	Paths        map[Facing]string
	MaxDimension int
}

// Open decodes the image configured for facing.
func (s FileSource) Open(ctx context.Context, facing Facing) (Stream, error) {
	const op = "open camera"
	if err := ctx.Err(); err != nil {
		return nil, fault.Wrap(fault.KindDevice, op, err)
	}

	path, ok := s.Paths[facing]
	if !ok || path == "" {
		return nil, fault.Wrapf(fault.KindDevice, op, fault.ReasonDeviceUnavailable,
			fmt.Errorf("no %s camera", facing))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		reason := fault.ReasonDeviceUnavailable
		if errors.Is(err, fs.ErrPermission) {
			reason = fault.ReasonPermissionDenied
		}
		return nil, fault.Wrapf(fault.KindDevice, op, reason, err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fault.Wrapf(fault.KindDevice, op, fault.ReasonDeviceUnavailable,
			fmt.Errorf("decode %s: %w", path, err))
	}
	img = fit(upright(img, orientation(data)), s.MaxDimension)

	return &stillStream{img: img}, nil
}

// StaticSource serves in-memory frames. Facings without a frame fail to
// open with Err, or device_unavailable when Err is nil.
type StaticSource struct {
	Frames map[Facing]image.Image
	Err    error

	mu     sync.Mutex
	opened []Facing
	open   int
}

// Open implements Source.
func (s *StaticSource) Open(ctx context.Context, facing Facing) (Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, ok := s.Frames[facing]
	if !ok {
		if s.Err != nil {
			return nil, s.Err
		}
		return nil, fault.New(fault.KindDevice, "open camera", fault.ReasonDeviceUnavailable)
	}
	s.opened = append(s.opened, facing)
	s.open++
	return &stillStream{img: img, onClose: s.released}, nil
}

func (s *StaticSource) released() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open--
}

// Opened lists every successful Open in order.
func (s *StaticSource) Opened() []Facing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Facing(nil), s.opened...)
}

// OpenStreams returns how many streams are currently open.
func (s *StaticSource) OpenStreams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

type stillStream struct {
	mu      sync.Mutex
	img     image.Image
	closed  bool
	onClose func()
}

func (s *stillStream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errStreamClosed
	}
	return s.img, nil
}

func (s *stillStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}
