package scan

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"wedge/internal/logging"
)

// Stream is a live camera capture. Codes yields decoded strings until the
// stream is closed or the device stops.
type Stream interface {
	Codes() <-chan string
	Close() error
}

// Camera acquires capture streams.
type Camera interface {
	Acquire(ctx context.Context) (Stream, error)
}

const (
	noticePermissionDenied  = "camera access was denied; scan with the keyboard scanner or type the code"
	noticeCameraUnavailable = "camera is unavailable; scan with the keyboard scanner or type the code"
)

// Surface is the explicit scanning surface bound to a classifier. While it is
// open the classifier runs in lenient mode, and an optional camera stream
// feeds decoded codes through the manual path.
type Surface struct {
	classifier *Classifier
	camera     Camera
	logger     *slog.Logger

	mu               sync.Mutex
	stream           Stream
	release          func()
	permissionDenied bool
	notice           string
}

// NewSurface binds a surface to c. camera may be nil when no capture device is
// available.
func NewSurface(c *Classifier, camera Camera, logger *slog.Logger) *Surface {
	s := &Surface{
		classifier: c,
		camera:     camera,
		logger:     logging.NewComponentLogger(logger, "scan-surface"),
	}
	c.setSurfaceHook(s.releaseStream)
	return s
}

// Open opens the surface. Opening an open surface is a no-op.
func (s *Surface) Open() {
	s.classifier.OpenSurface()
}

// Close closes the surface and releases the camera stream if one is held.
func (s *Surface) Close() {
	s.classifier.CloseSurface()
	s.releaseStream()
}

func (s *Surface) IsOpen() bool {
	return s.classifier.SurfaceOpen()
}

// RequestCameraCapture opens the surface if needed and starts forwarding
// decoded codes to the classifier. A denied or missing camera is recorded as a
// notice; the keyboard and manual paths keep working.
func (s *Surface) RequestCameraCapture(ctx context.Context) error {
	s.mu.Lock()
	if s.stream != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if s.camera == nil {
		s.recordFailure(ErrCameraUnavailable)
		return ErrCameraUnavailable
	}

	s.classifier.OpenSurface()
	stream, err := s.camera.Acquire(ctx)
	if err != nil {
		s.recordFailure(err)
		return err
	}

	s.mu.Lock()
	if !s.classifier.SurfaceOpen() || s.stream != nil {
		// Closed (or superseded) while the device was being acquired.
		s.mu.Unlock()
		_ = stream.Close()
		return nil
	}
	var once sync.Once
	s.stream = stream
	s.release = func() {
		once.Do(func() {
			if err := stream.Close(); err != nil {
				s.logger.Debug("camera stream close failed", logging.Error(err))
			}
		})
	}
	s.permissionDenied = false
	s.notice = ""
	s.mu.Unlock()

	s.logger.Info("camera capture started",
		logging.String(logging.FieldEventType, "camera_started"),
	)
	go s.forward(stream)
	return nil
}

// MarkPermissionDenied records a camera refusal reported by a remote surface
// host.
func (s *Surface) MarkPermissionDenied() {
	s.recordFailure(ErrPermissionDenied)
}

func (s *Surface) PermissionDenied() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permissionDenied
}

// Notice returns the user-facing message of the last camera failure.
func (s *Surface) Notice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notice
}

func (s *Surface) Capturing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

func (s *Surface) recordFailure(err error) {
	s.mu.Lock()
	if errors.Is(err, ErrPermissionDenied) {
		s.permissionDenied = true
		s.notice = noticePermissionDenied
	} else {
		s.notice = noticeCameraUnavailable
	}
	s.mu.Unlock()

	logging.Warn(s.logger, "camera capture unavailable", logging.Problem{
		Event:  "camera_failed",
		Impact: "camera scanning disabled for this surface",
		Hint:   "check video device permissions or use the keyboard scanner",
	}, logging.Error(err))
}

func (s *Surface) forward(stream Stream) {
	for code := range stream.Codes() {
		s.mu.Lock()
		current := s.stream == stream
		s.mu.Unlock()
		if !current {
			return
		}
		if _, err := s.classifier.SubmitDecoded(code); err != nil {
			if errors.Is(err, ErrClosed) {
				return
			}
		}
	}
}

func (s *Surface) releaseStream() {
	s.mu.Lock()
	release := s.release
	s.release = nil
	s.stream = nil
	s.mu.Unlock()
	if release != nil {
		release()
	}
}
