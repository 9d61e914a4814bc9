package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"wedge/internal/logging"
	"wedge/internal/scan"
)

const (
	codeBuffer   = 8
	stopWaitTime = 3 * time.Second
	stderrLimit  = 4096
)

// Decoder implements scan.Camera by spawning a decoder process per capture.
type Decoder struct {
	device  string
	command []string
	logger  *slog.Logger
}

// NewDecoder builds a decoder for device. command is the full argv, binary
// first; the device path is expected to be part of it.
func NewDecoder(device string, command []string, logger *slog.Logger) (*Decoder, error) {
	if strings.TrimSpace(device) == "" {
		return nil, errors.New("camera device is required")
	}
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, errors.New("decoder command is required")
	}
	return &Decoder{
		device:  device,
		command: append([]string(nil), command...),
		logger:  logging.NewComponentLogger(logger, "camera").With(logging.String(logging.FieldDevice, device)),
	}, nil
}

func (d *Decoder) Device() string {
	return d.device
}

// Acquire checks device access and starts the decoder process.
func (d *Decoder) Acquire(ctx context.Context) (scan.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkAccess(d.device); err != nil {
		return nil, err
	}
	binary, err := exec.LookPath(d.command[0])
	if err != nil {
		return nil, fmt.Errorf("%w: decoder %q not found", scan.ErrCameraUnavailable, d.command[0])
	}

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, binary, d.command[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Signal the whole group so helper processes release the device too.
		if err := unix.Kill(-cmd.Process.Pid, unix.SIGTERM); err != nil {
			if errors.Is(err, unix.ESRCH) {
				return os.ErrProcessDone
			}
			return err
		}
		return nil
	}
	cmd.WaitDelay = stopWaitTime
	stderr := &boundedBuffer{limit: stderrLimit}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("decoder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: start decoder: %v", scan.ErrCameraUnavailable, err)
	}

	s := &stream{
		cmd:        cmd,
		cancel:     cancel,
		stderr:     stderr,
		codes:      make(chan string, codeBuffer),
		readerDone: make(chan struct{}),
		logger:     d.logger,
	}
	go s.read(procCtx, bufio.NewScanner(stdout))

	d.logger.Info("camera decoder started",
		logging.String(logging.FieldEventType, "camera_decoder_started"),
		logging.Int("pid", cmd.Process.Pid),
	)
	return s, nil
}

// checkAccess maps device access failures onto the scan error taxonomy.
func checkAccess(device string) error {
	err := unix.Access(device, unix.R_OK|unix.W_OK)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return fmt.Errorf("%w: %s", scan.ErrPermissionDenied, device)
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENODEV), errors.Is(err, unix.ENXIO):
		return fmt.Errorf("%w: %s not present", scan.ErrCameraUnavailable, device)
	default:
		return fmt.Errorf("%w: %s: %v", scan.ErrCameraUnavailable, device, err)
	}
}

type stream struct {
	cmd        *exec.Cmd
	cancel     context.CancelFunc
	stderr     *boundedBuffer
	codes      chan string
	readerDone chan struct{}
	logger     *slog.Logger

	once     sync.Once
	closeErr error
}

func (s *stream) Codes() <-chan string {
	return s.codes
}

func (s *stream) read(ctx context.Context, scanner *bufio.Scanner) {
	defer close(s.readerDone)
	defer close(s.codes)
	for scanner.Scan() {
		code := normalizeLine(scanner.Text())
		if code == "" {
			continue
		}
		select {
		case s.codes <- code:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		s.logger.Debug("decoder output ended", logging.Error(err))
	}
}

// Close stops the decoder and waits for it to exit. It is safe to call from
// the goroutine consuming Codes.
func (s *stream) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.readerDone
		err := s.cmd.Wait()
		if err != nil && !isStopSignal(err) {
			s.closeErr = fmt.Errorf("decoder exited: %w (%s)", err, strings.TrimSpace(s.stderr.String()))
		}
		s.logger.Info("camera decoder stopped",
			logging.String(logging.FieldEventType, "camera_decoder_stopped"),
		)
	})
	return s.closeErr
}

func isStopSignal(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return errors.Is(err, context.Canceled)
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return false
	}
	return status.Signaled() && (status.Signal() == syscall.SIGTERM || status.Signal() == syscall.SIGKILL)
}

// normalizeLine strips whitespace and the "SYMBOLOGY:" prefix zbarcam prints
// when --raw is not given.
func normalizeLine(line string) string {
	line = strings.TrimSpace(line)
	if prefix, rest, ok := strings.Cut(line, ":"); ok && isSymbology(prefix) {
		line = strings.TrimSpace(rest)
	}
	return line
}

func isSymbology(prefix string) bool {
	switch strings.ToUpper(prefix) {
	case "EAN-13", "EAN-8", "UPC-A", "UPC-E", "ISBN-10", "ISBN-13", "CODE-128", "CODE-39", "CODE-93",
		"I2/5", "CODABAR", "QR-CODE", "DATABAR", "DATABAR-EXP", "PDF417":
		return true
	default:
		return false
	}
}

type boundedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
