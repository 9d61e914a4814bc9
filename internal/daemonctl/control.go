package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"wedge/internal/api"
	"wedge/internal/config"
	"wedge/internal/ipc"
)

const pollInterval = 200 * time.Millisecond

// ErrDaemonNotRunning indicates nothing answers on the daemon socket.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions are forwarded to the detached "run" command.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

func (o LaunchOptions) args() []string {
	args := []string{"run"}
	for _, flag := range [][2]string{{"--config", o.ConfigPath}, {"--log-level", o.LogLevel}} {
		if value := strings.TrimSpace(flag[1]); value != "" {
			args = append(args, flag[0], value)
		}
	}
	return args
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

type StartResult struct {
	State StartState
	PID   int
}

type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// probe dials the socket and asks for status. reachable is false when the
// socket is absent or refuses connections.
func probe(socketPath string) (status *api.DaemonStatus, reachable bool, err error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if IsDaemonUnavailable(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer client.Close()
	status, err = client.Status()
	return status, true, err
}

// poll calls check until it reports done or timeout elapses, returning the
// last error seen.
func poll(timeout time.Duration, check func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	var last error
	for {
		done, err := check()
		if done {
			return nil
		}
		if err != nil {
			last = err
		}
		if !time.Now().Add(pollInterval).Before(deadline) {
			if last == nil {
				last = errors.New("timed out")
			}
			return last
		}
		time.Sleep(pollInterval)
	}
}

// Launch starts "<executable> run" in its own session and detaches from it.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return errors.New("resolve executable: executable path is empty")
	}
	proc := exec.Command(executablePath, opts.args()...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient returns a connected client once the socket accepts
// connections.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	var client *ipc.Client
	err := poll(timeout, func() (bool, error) {
		c, err := ipc.Dial(socketPath)
		if err != nil {
			return false, err
		}
		client = c
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("daemon failed to start: %w", err)
	}
	return client, nil
}

// EnsureStarted launches the daemon unless one already answers on socketPath.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	if status, reachable, _ := probe(socketPath); reachable {
		result := StartResult{State: StartStateAlreadyRunning}
		if status != nil {
			result.PID = status.PID
		}
		return result, nil
	}

	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	client, err := WaitForClient(socketPath, waitTimeout)
	if err != nil {
		return StartResult{}, err
	}
	defer client.Close()

	result := StartResult{State: StartStateStarted}
	status, err := client.Status()
	if err != nil {
		return result, err
	}
	result.PID = status.PID
	return result, nil
}

// WaitForShutdown waits until the socket stops answering or the daemon
// reports it is no longer running.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	err := poll(timeout, func() (bool, error) {
		status, reachable, err := probe(socketPath)
		switch {
		case err != nil:
			return false, err
		case !reachable:
			return true, nil
		case status != nil && !status.Running:
			return true, nil
		}
		return false, errors.New("daemon still running")
	})
	if err != nil {
		return fmt.Errorf("daemon did not stop: %w", err)
	}
	return nil
}

// ProcessInfo reports whether the daemon answers and its PID when known.
func ProcessInfo(socketPath string) (bool, int, error) {
	status, reachable, err := probe(socketPath)
	if !reachable || status == nil {
		return reachable, 0, err
	}
	return true, status.PID, err
}

func readPID(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, nil
	}
	return pid, nil
}

// ForceKillProcess kills the daemon named by the PID file, or fallbackPID
// when the file is missing, then removes the PID and lock files.
func ForceKillProcess(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid, err := readPID(pidPath)
	if err != nil {
		return 0, err
	}
	if pid == 0 {
		pid = fallbackPID
	}
	switch {
	case pid <= 0:
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	case pid == os.Getpid():
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	return pid, nil
}

// StopAndTerminate asks the daemon to stop over IPC. A daemon still
// answering after gracePeriod is sent SIGTERM, and SIGKILL if that fails too.
func StopAndTerminate(cfg *config.Config, pidPath string, gracePeriod time.Duration) (StopResult, error) {
	socketPath := cfg.SocketPath()
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if IsDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	var result StopResult
	if status, statusErr := client.Status(); statusErr == nil {
		result.PID = status.PID
	}
	resp, err := client.Stop()
	_ = client.Close()
	if err != nil {
		return result, err
	}
	result.StopAcknowledged = resp.Stopped

	if WaitForShutdown(socketPath, gracePeriod) == nil {
		return result, nil
	}
	alive, livePID, _ := ProcessInfo(socketPath)
	if !alive {
		return result, nil
	}
	if livePID != 0 {
		result.PID = livePID
	}

	if result.PID > 0 && result.PID != os.Getpid() {
		if syscall.Kill(result.PID, syscall.SIGTERM) == nil && WaitForShutdown(socketPath, gracePeriod) == nil {
			return result, nil
		}
	}
	killed, err := ForceKillProcess(pidPath, cfg.LockPath(), result.PID)
	if err != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", err)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = killed
	return result, nil
}

// BuildStatusSnapshot returns the live daemon status, or a stopped snapshot
// derived from configuration when the daemon is not reachable.
func BuildStatusSnapshot(cfg *config.Config) (*api.DaemonStatus, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	if status, _, err := probe(cfg.SocketPath()); err == nil && status != nil {
		return status, nil
	}

	mode := cfg.DefaultMode()
	status := &api.DaemonStatus{
		Mode:         mode.String(),
		ModeLabel:    mode.Label(),
		State:        "stopped",
		Params:       api.FromParams(cfg.ScanParams()),
		Devices:      []api.Device{},
		Audit:        api.AuditStatus{Sinks: []string{}},
		LockFilePath: cfg.LockPath(),
		SocketPath:   cfg.SocketPath(),
	}
	if cfg.Audit.Journal {
		status.JournalPath = cfg.JournalPath()
	}
	return status, nil
}

// IsDaemonUnavailable reports whether err means nothing listens on the socket.
func IsDaemonUnavailable(err error) bool {
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
