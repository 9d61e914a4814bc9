package evdev

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"wedge/internal/logging"
	"wedge/internal/scan"
)

// eviocgrab is _IOW('E', 0x90, int).
const eviocgrab = 0x40044590

// eventSize is sizeof(struct input_event) on 64-bit Linux.
const eventSize = 24

type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

func (e inputEvent) time() time.Time {
	return time.Unix(e.Sec, e.Usec*int64(time.Microsecond))
}

func decodeEvent(buf []byte) inputEvent {
	return inputEvent{
		Sec:   int64(binary.LittleEndian.Uint64(buf[0:8])),
		Usec:  int64(binary.LittleEndian.Uint64(buf[8:16])),
		Type:  binary.LittleEndian.Uint16(buf[16:18]),
		Code:  binary.LittleEndian.Uint16(buf[18:20]),
		Value: int32(binary.LittleEndian.Uint32(buf[20:24])),
	}
}

// Device is an open input event node. It implements scan.KeySource.
type Device struct {
	info   Info
	src    io.ReadCloser
	raw    syscall.RawConn
	logger *slog.Logger

	mu          sync.Mutex
	subscribers map[uint64]func(scan.KeyEvent)
	nextID      uint64
	grabbed     bool
	closed      bool

	leftShift  bool
	rightShift bool
}

// Open opens an event node. With grab set the device is captured exclusively
// so its keystrokes stop reaching other readers.
func Open(path string, grab bool, logger *slog.Logger) (*Device, error) {
	if !IsEventPath(path) {
		return nil, fmt.Errorf("open %s: %w", path, ErrNotEventDevice)
	}
	file, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("open %s: %w (add the user to the input group)", path, err)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	d := newDevice(Describe(path), file, logger)
	// SyscallConn keeps the file in non-blocking mode so Close can interrupt
	// a pending Read.
	if d.raw, err = file.SyscallConn(); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if grab {
		if err := setGrab(d.raw, 1); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("grab %s: %w", path, err)
		}
		d.grabbed = true
	}
	return d, nil
}

func newDevice(info Info, src io.ReadCloser, logger *slog.Logger) *Device {
	return &Device{
		info:        info,
		src:         src,
		logger:      logging.NewComponentLogger(logger, "evdev").With(logging.String(logging.FieldDevice, info.Path)),
		subscribers: make(map[uint64]func(scan.KeyEvent)),
	}
}

func (d *Device) Info() Info {
	return d.info
}

func (d *Device) Grabbed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.grabbed
}

// Subscribe registers fn for every translated key press.
func (d *Device) Subscribe(fn func(scan.KeyEvent)) func() {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.subscribers[id] = fn
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subscribers, id)
			d.mu.Unlock()
		})
	}
}

// Run reads events until ctx is cancelled, the device disappears or Close is
// called. A closed device returns nil.
func (d *Device) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = d.Close() })
	defer stop()

	err := d.consume(d.src)
	if d.isClosed() {
		return nil
	}
	return err
}

func (d *Device) consume(r io.Reader) error {
	buf := make([]byte, eventSize*64)
	var pending []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for len(pending) >= eventSize {
				d.handle(decodeEvent(pending[:eventSize]))
				pending = pending[eventSize:]
			}
			if len(pending) == 0 {
				pending = nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read %s: %w", d.info.Path, err)
		}
	}
}

func (d *Device) handle(ev inputEvent) {
	if ev.Type != evKey {
		return
	}
	pressed := ev.Value == 1
	if isShift(ev.Code) {
		switch ev.Code {
		case keyLeftShift:
			d.leftShift = ev.Value != 0
		case keyRightShift:
			d.rightShift = ev.Value != 0
		}
	}
	if !pressed {
		return
	}
	key, ok := translate(ev.Code, d.leftShift || d.rightShift)
	if !ok {
		d.logger.Debug("untranslated key code", logging.Int("code", int(ev.Code)))
		return
	}
	d.dispatch(scan.KeyEvent{Key: key, Time: ev.time()})
}

func (d *Device) dispatch(ev scan.KeyEvent) {
	d.mu.Lock()
	fns := make([]func(scan.KeyEvent), 0, len(d.subscribers))
	for _, fn := range d.subscribers {
		fns = append(fns, fn)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (d *Device) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Close releases the grab and closes the node, unblocking Run.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	grabbed := d.grabbed
	d.grabbed = false
	d.mu.Unlock()

	if grabbed && d.raw != nil {
		// Fails harmlessly when the device was already unplugged.
		_ = setGrab(d.raw, 0)
	}
	return d.src.Close()
}

func setGrab(raw syscall.RawConn, value int) error {
	var ioctlErr error
	if err := raw.Control(func(fd uintptr) {
		ioctlErr = unix.IoctlSetInt(int(fd), eviocgrab, value)
	}); err != nil {
		return err
	}
	return ioctlErr
}
