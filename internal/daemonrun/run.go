package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"wedge/internal/config"
	"wedge/internal/daemon"
	"wedge/internal/ipc"
	"wedge/internal/logging"
	"wedge/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// ConfigPath is watched for threshold changes when api.watch_config is set.
	ConfigPath string
	// Stdout mirrors logs to standard output in addition to the log file.
	Stdout bool
}

// Run starts the wedge daemon and blocks until a signal or an IPC stop
// request ends it.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	outputs := []string{}
	if opts.Stdout {
		outputs = append(outputs, "stdout")
	}
	if logPath := cfg.LogPath(); logPath != "" {
		outputs = append(outputs, logPath)
	}
	levelVar := new(slog.LevelVar)
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputs,
		Development: opts.Development,
		LevelVar:    levelVar,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	runID := uuid.NewString()
	logger = logging.WithRunID(logger, runID)

	logEnvironmentSnapshot(logger, cfg)

	pidPath := PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	daemonOpts := []daemon.Option{daemon.WithLevelVar(levelVar)}
	if opts.ConfigPath != "" {
		daemonOpts = append(daemonOpts, daemon.WithConfigPath(opts.ConfigPath))
	}
	d, err := daemon.New(cfg, logger, daemonOpts...)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	// The lock is taken before the socket is touched so a second instance
	// cannot unlink the socket of the first.
	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "stop the running instance or remove a stale lock in the state directory"),
		)
		return fmt.Errorf("start daemon: %w", err)
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger, cancel)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	logger.Info("wedge daemon ready",
		logging.String(logging.FieldEventType, "daemon_ready"),
		logging.String("socket", cfg.SocketPath()),
		logging.String("api", d.APIAddress()),
	)

	<-signalCtx.Done()
	logger.Info("wedge daemon shutting down",
		logging.String(logging.FieldEventType, "daemon_shutdown"),
	)
	return nil
}

// PIDPath is where a running daemon records its process id.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.StateDir, "wedged.pid")
}

// ReadPID returns the pid recorded by a running daemon.
func ReadPID(cfg *config.Config) (int, error) {
	data, err := os.ReadFile(PIDPath(cfg))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file: %w", err)
	}
	return pid, nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logEnvironmentSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("environment snapshot",
		logging.String(logging.FieldEventType, "environment_snapshot"),
		logging.Int("device_patterns", len(cfg.Devices.Match)),
		logging.Bool("grab", cfg.Devices.Grab),
		logging.Bool("hotplug", cfg.Devices.Hotplug),
		logging.Bool("camera_enabled", cfg.Camera.Enabled),
		logging.Bool("audit_endpoint_set", strings.TrimSpace(cfg.Audit.Endpoint) != ""),
		logging.Bool("audit_journal", cfg.Audit.Journal),
	)
	if len(cfg.Devices.Match) == 0 {
		logging.Warn(logger, "no scanner devices configured", logging.Problem{
			Event:  "devices_unconfigured",
			Impact: "only browser sessions and manual entry produce scans",
			Hint:   "set devices.match to the scanner name or vendor:product id",
		})
	}
	for _, check := range preflight.Failed(preflight.RunLocal(cfg)) {
		logging.Warn(logger, "preflight check failed", logging.Problem{
			Event:  "preflight_failed",
			Impact: "the affected scan path may not produce events",
			Hint:   "fix the reported path or permission and restart the daemon",
		}, logging.String("check", check.Name), logging.String("detail", check.Detail))
	}
}
