package scan_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wedge/internal/scan"
	"wedge/internal/testsupport"
)

type fakeStream struct {
	codes  chan string
	closes atomic.Int32
	once   sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{codes: make(chan string, 4)}
}

func (s *fakeStream) Codes() <-chan string { return s.codes }

func (s *fakeStream) Close() error {
	s.closes.Add(1)
	s.once.Do(func() { close(s.codes) })
	return nil
}

type fakeCamera struct {
	stream   *fakeStream
	err      error
	acquires atomic.Int32
}

func (c *fakeCamera) Acquire(context.Context) (scan.Stream, error) {
	c.acquires.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.stream, nil
}

func newSurfaceFixture(t *testing.T, camera scan.Camera, handler scan.Handler) (*scan.Classifier, *scan.Surface, *testsupport.FakeClock) {
	t.Helper()
	clock := testsupport.NewFakeClock()
	c, err := scan.NewClassifier(scan.DefaultParams(), scan.ModeReceiving, handler, scan.WithClock(clock))
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, scan.NewSurface(c, camera, nil), clock
}

func TestCameraPermissionDeniedKeepsOtherPaths(t *testing.T) {
	var got []string
	var mu sync.Mutex
	handler := func(code string, _ scan.Mode) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, code)
	}
	camera := &fakeCamera{err: scan.ErrPermissionDenied}
	c, surface, clock := newSurfaceFixture(t, camera, handler)

	err := surface.RequestCameraCapture(context.Background())
	if !errors.Is(err, scan.ErrPermissionDenied) {
		t.Fatalf("RequestCameraCapture error = %v", err)
	}
	if !surface.PermissionDenied() {
		t.Fatal("expected permission denied flag")
	}
	if surface.Notice() == "" {
		t.Fatal("expected a user-facing notice")
	}
	if surface.Capturing() {
		t.Fatal("no stream should be held after denial")
	}

	if _, err := c.SubmitManual("PO-5521"); err != nil {
		t.Fatalf("manual path broken after denial: %v", err)
	}

	surface.Open()
	for _, r := range "RCV9" {
		c.OnKeyDown(scan.KeyEvent{Key: string(r), Time: clock.Now()})
		clock.Advance(5 * time.Millisecond)
	}
	c.OnKeyDown(scan.KeyEvent{Key: scan.KeyEnter, Time: clock.Now()})

	mu.Lock()
	defer mu.Unlock()
	if !equalCodes(got, []string{"PO-5521", "RCV9"}) {
		t.Fatalf("dispatched %v", got)
	}
}

func TestSurfaceWithoutCamera(t *testing.T) {
	_, surface, _ := newSurfaceFixture(t, nil, nil)
	if err := surface.RequestCameraCapture(context.Background()); !errors.Is(err, scan.ErrCameraUnavailable) {
		t.Fatalf("error = %v, want ErrCameraUnavailable", err)
	}
	if surface.PermissionDenied() {
		t.Fatal("missing camera is not a permission denial")
	}
}

func TestSurfaceCloseReleasesStreamOnce(t *testing.T) {
	stream := newFakeStream()
	camera := &fakeCamera{stream: stream}
	c, surface, _ := newSurfaceFixture(t, camera, nil)

	if err := surface.RequestCameraCapture(context.Background()); err != nil {
		t.Fatalf("RequestCameraCapture: %v", err)
	}
	if !surface.IsOpen() || !surface.Capturing() {
		t.Fatal("capture should open the surface and hold the stream")
	}
	if err := surface.RequestCameraCapture(context.Background()); err != nil {
		t.Fatalf("second RequestCameraCapture: %v", err)
	}
	if camera.acquires.Load() != 1 {
		t.Fatalf("acquires = %d, want 1", camera.acquires.Load())
	}

	surface.Close()
	surface.Close()
	_ = c.Close()

	if n := stream.closes.Load(); n != 1 {
		t.Fatalf("stream closed %d times, want 1", n)
	}
	if surface.IsOpen() {
		t.Fatal("surface should be closed")
	}
}

func TestDecodedCodeDispatchesAndReleases(t *testing.T) {
	stream := newFakeStream()
	done := make(chan dispatched, 1)
	handler := func(code string, mode scan.Mode) {
		done <- dispatched{code: code, mode: mode}
	}
	c, surface, _ := newSurfaceFixture(t, &fakeCamera{stream: stream}, handler)

	if err := surface.RequestCameraCapture(context.Background()); err != nil {
		t.Fatalf("RequestCameraCapture: %v", err)
	}
	stream.codes <- "  4006381333931 "

	select {
	case got := <-done:
		if got.code != "4006381333931" || got.mode != scan.ModeReceiving {
			t.Fatalf("dispatched %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("decoded code was not dispatched")
	}

	deadline := time.Now().Add(2 * time.Second)
	for stream.closes.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := stream.closes.Load(); n != 1 {
		t.Fatalf("stream closed %d times, want 1", n)
	}
	if surface.IsOpen() {
		t.Fatal("scan should close the surface")
	}
	history := c.History()
	if len(history) != 1 || history[0].Source != scan.SourceCamera {
		t.Fatalf("history = %+v", history)
	}
}

func TestMarkPermissionDenied(t *testing.T) {
	_, surface, _ := newSurfaceFixture(t, nil, nil)
	surface.MarkPermissionDenied()
	if !surface.PermissionDenied() || surface.Notice() == "" {
		t.Fatal("expected denial to be recorded")
	}
}
