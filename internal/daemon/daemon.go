package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"wedge/internal/api"
	"wedge/internal/audit"
	"wedge/internal/camera"
	"wedge/internal/config"
	"wedge/internal/logging"
	"wedge/internal/scan"
)

// ErrJournalDisabled is returned by AuditLog when the local journal is off.
var ErrJournalDisabled = errors.New("audit journal disabled")

// Option customizes a Daemon.
type Option func(*Daemon)

// WithHandler sets the host hook called for every scan.
func WithHandler(handler scan.Handler) Option {
	return func(d *Daemon) {
		if handler != nil {
			d.handler = handler
		}
	}
}

// WithClock replaces the classifier clock.
func WithClock(clock scan.Clock) Option {
	return func(d *Daemon) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithCamera overrides the configured camera.
func WithCamera(cam scan.Camera) Option {
	return func(d *Daemon) {
		d.camera = cam
	}
}

// WithConfigPath enables hot reload of the given file when the configuration
// asks for it.
func WithConfigPath(path string) Option {
	return func(d *Daemon) {
		d.configPath = strings.TrimSpace(path)
	}
}

// WithLevelVar lets configuration reloads change the log level.
func WithLevelVar(level *slog.LevelVar) Option {
	return func(d *Daemon) {
		d.levelVar = level
	}
}

// WithSinks adds audit sinks beyond the configured ones.
func WithSinks(sinks ...audit.Sink) Option {
	return func(d *Daemon) {
		d.extraSinks = append(d.extraSinks, sinks...)
	}
}

// Daemon owns the global classifier, its key sources and every outer surface,
// and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	levelVar   *slog.LevelVar
	clock      scan.Clock
	handler    scan.Handler
	camera     scan.Camera
	extraSinks []audit.Sink

	recorder   *audit.Recorder
	journal    *audit.Journal
	hub        *hub
	classifier *scan.Classifier
	surface    *scan.Surface
	devices    *deviceManager
	monitor    *hotplugMonitor
	apiServer  *apiServer
	watcher    *configWatcher
	sessions   sessionSet

	mu            sync.RWMutex
	surfaceParams scan.Params
	defaultMode   scan.Mode

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:           cfg,
		logger:        logger,
		clock:         scan.SystemClock(),
		handler:       func(string, scan.Mode) {},
		surfaceParams: cfg.SurfaceParams(),
		defaultMode:   cfg.DefaultMode(),
		lockPath:      cfg.LockPath(),
		lock:          flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(d)
	}

	sinks, err := d.openSinks()
	if err != nil {
		return nil, err
	}
	d.recorder = audit.NewRecorder(audit.RecorderOptions{
		QueueSize: cfg.Audit.QueueSize,
		Timeout:   cfg.AuditTimeout(),
		UserID:    cfg.Audit.UserID,
	}, logger, sinks...)
	d.hub = newHub(logger)

	d.classifier, err = scan.NewClassifier(cfg.ScanParams(), d.defaultMode, d.handler,
		scan.WithAuditor(d.recorder),
		scan.WithActor(cfg.Audit.UserID),
		scan.WithLogger(logger),
		scan.WithClock(d.clock),
		scan.WithListener(func(ev scan.Event) {
			dto := api.FromEvent(ev)
			d.hub.broadcast(api.ServerMessage{Type: api.MessageScan, Origin: originDaemon, Scan: &dto})
		}),
	)
	if err != nil {
		d.closeAudit()
		return nil, fmt.Errorf("build classifier: %w", err)
	}

	if d.camera == nil && cfg.Camera.Enabled {
		decoder, err := camera.NewDecoder(cfg.Camera.Device, cfg.DecoderCommand(), logger)
		if err != nil {
			d.closeAudit()
			return nil, fmt.Errorf("configure camera: %w", err)
		}
		d.camera = decoder
	}
	d.surface = scan.NewSurface(d.classifier, d.camera, logger)

	d.devices = newDeviceManager(d.classifier, cfg.Devices.Match, cfg.Devices.Grab, logger)
	if cfg.Devices.Hotplug {
		d.monitor = newHotplugMonitor(logger, d.devices.HandleHotplug)
	}
	if d.apiServer, err = newAPIServer(cfg, d, logger); err != nil {
		d.closeAudit()
		return nil, err
	}
	if cfg.API.WatchConfig && d.configPath != "" {
		d.watcher = newConfigWatcher(d.configPath, d.reloadFromDisk, logger)
	}
	return d, nil
}

func (d *Daemon) openSinks() ([]audit.Sink, error) {
	sinks := make([]audit.Sink, 0, 2+len(d.extraSinks))
	if endpoint := strings.TrimSpace(d.cfg.Audit.Endpoint); endpoint != "" {
		httpSink, err := audit.NewHTTPSink(endpoint, d.cfg.Audit.Token, d.cfg.AuditTimeout())
		if err != nil {
			return nil, fmt.Errorf("configure audit endpoint: %w", err)
		}
		sinks = append(sinks, httpSink)
	}
	if d.cfg.Audit.Journal {
		journal, err := audit.OpenJournal(d.cfg.JournalPath())
		if err != nil {
			return nil, fmt.Errorf("open audit journal: %w", err)
		}
		d.journal = journal
		sinks = append(sinks, journal)
	}
	return append(sinks, d.extraSinks...), nil
}

// Start acquires the daemon lock and starts device capture and the outer
// surfaces.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another wedge daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.apiServer.start(d.ctx); err != nil {
		d.cancel()
		d.ctx, d.cancel = nil, nil
		_ = d.lock.Unlock()
		return fmt.Errorf("start api server: %w", err)
	}
	d.devices.Start(d.ctx)
	if err := d.monitor.Start(d.ctx); err != nil {
		logging.Warn(d.logger, "hot-plug monitor unavailable", logging.Problem{
			Event:  "netlink_start_failed",
			Impact: "hot-plugged scanners are not detected",
			Hint:   "restart the daemon after plugging in scanners",
		}, logging.Error(err))
	}
	if err := d.watcher.start(d.ctx); err != nil {
		logging.Warn(d.logger, "config watcher unavailable", logging.Problem{
			Event:  "config_watch_failed",
			Impact: "threshold changes require a restart",
			Hint:   "restart the daemon to apply configuration changes",
		}, logging.Error(err))
	}

	d.running.Store(true)
	d.logger.Info("wedge daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldMode, d.classifier.Mode().String()),
		logging.Int("devices", d.devices.AttachedCount()),
	)
	return nil
}

// Stop stops capture and the outer surfaces and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.watcher.stop()
	d.apiServer.stop()
	d.hub.closeAll()
	d.monitor.Stop()
	d.devices.Stop()
	d.surface.Close()
	if err := d.lock.Unlock(); err != nil {
		logging.Warn(d.logger, "failed to release daemon lock", logging.Problem{
			Event:  "lock_release_failed",
			Impact: "a stale lock file may remain",
			Hint:   "remove "+d.lockPath+" if the next start fails",
		}, logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("wedge daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon. Pending audit entries are
// drained for at most the configured shutdown timeout.
func (d *Daemon) Close() error {
	d.Stop()
	_ = d.classifier.Close()
	return d.closeAudit()
}

func (d *Daemon) closeAudit() error {
	var errs []error
	if d.recorder != nil {
		timeout := d.cfg.AuditShutdownTimeout()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := d.recorder.Close(ctx); err != nil {
			logging.Warn(d.logger, "audit queue not fully drained", logging.Problem{
				Event:  "audit_drain_incomplete",
				Impact: "recent scans may be missing from the scan log",
				Hint:   "raise audit.shutdown_timeout",
			}, logging.Error(err))
		}
		cancel()
	}
	if d.journal != nil {
		if err := d.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Running reports whether Start has succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Classifier exposes the global classifier.
func (d *Daemon) Classifier() *scan.Classifier {
	return d.classifier
}

// APIAddress returns the bound HTTP address, or "" when the API is disabled.
func (d *Daemon) APIAddress() string {
	return d.apiServer.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	mode := d.classifier.Mode()
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Mode:         mode.String(),
		ModeLabel:    mode.Label(),
		State:        d.classifier.State().String(),
		Params:       api.FromParams(d.classifier.Params()),
		Surface:      d.surfaceStatus(),
		Devices:      d.devices.Devices(),
		Hotplug:      d.monitor.Running(),
		Sessions:     len(d.liveSessions()),
		Audit:        api.FromAuditStats(d.recorder.Sinks(), d.recorder.Stats()),
		LockFilePath: d.lockPath,
		SocketPath:   d.cfg.SocketPath(),
		ConfigPath:   d.configPath,
	}
	if d.journal != nil {
		status.JournalPath = d.journal.Path()
	}
	if history := d.classifier.History(); len(history) > 0 {
		last := api.FromEvent(history[0])
		status.LastScan = &last
	}
	return status
}

// History returns the global classifier's recent scans, most recent first.
func (d *Daemon) History() []scan.Event {
	return d.classifier.History()
}

// Submit records a manually entered code. A non-empty mode is applied first
// and stays active for later scans.
func (d *Daemon) Submit(code, mode string) (scan.Event, error) {
	if strings.TrimSpace(mode) != "" {
		if _, err := d.SetMode(mode); err != nil {
			return scan.Event{}, err
		}
	}
	return d.classifier.SubmitManual(code)
}

// Mode returns the active mode.
func (d *Daemon) Mode() scan.Mode {
	return d.classifier.Mode()
}

// SetMode changes the active mode of the global classifier.
func (d *Daemon) SetMode(name string) (scan.Mode, error) {
	mode, err := scan.ParseMode(name)
	if err != nil {
		return d.classifier.Mode(), err
	}
	if err := d.classifier.SetMode(mode); err != nil {
		return d.classifier.Mode(), err
	}
	d.logger.Info("scan mode changed",
		logging.String(logging.FieldEventType, "mode_changed"),
		logging.String(logging.FieldMode, mode.String()),
	)
	return mode, nil
}

// Surface applies a surface action to the host surface.
func (d *Daemon) Surface(ctx context.Context, action string) (api.SurfaceStatus, error) {
	var err error
	switch strings.ToLower(strings.TrimSpace(action)) {
	case api.SurfaceOpen:
		d.surface.Open()
	case api.SurfaceClose:
		d.surface.Close()
	case api.SurfaceCamera:
		err = d.surface.RequestCameraCapture(ctx)
	default:
		return d.surfaceStatus(), fmt.Errorf("%w: unknown surface action %q", api.ErrInvalidRequest, action)
	}
	return d.surfaceStatus(), err
}

func (d *Daemon) surfaceStatus() api.SurfaceStatus {
	return api.SurfaceStatus{
		Open:             d.surface.IsOpen(),
		Capturing:        d.surface.Capturing(),
		PermissionDenied: d.surface.PermissionDenied(),
		Notice:           d.surface.Notice(),
	}
}

// Devices lists input devices and whether they feed the classifier.
func (d *Daemon) Devices() []api.Device {
	return d.devices.Devices()
}

// AuditLog returns journaled scan logs, newest first.
func (d *Daemon) AuditLog(ctx context.Context, limit int) ([]audit.Record, error) {
	if d.journal == nil {
		return nil, ErrJournalDisabled
	}
	return d.journal.List(ctx, limit)
}

// AuditStats reports audit delivery counters.
func (d *Daemon) AuditStats() api.AuditStatus {
	return api.FromAuditStats(d.recorder.Sinks(), d.recorder.Stats())
}

func (d *Daemon) reloadFromDisk() {
	cfg, _, _, err := config.Load(d.configPath)
	if err != nil {
		logging.Warn(d.logger, "config reload rejected", logging.Problem{
			Event:  "config_reload_failed",
			Impact: "threshold changes not applied",
			Hint:   "fix the configuration file; the previous settings stay active",
		}, logging.Error(err))
		return
	}
	if err := d.Reload(cfg); err != nil {
		logging.Warn(d.logger, "config reload failed", logging.Problem{
			Event:  "config_reload_failed",
			Impact: "threshold changes not applied",
			Hint:   "check scanner thresholds in the configuration",
		}, logging.Error(err))
	}
}

// Reload applies the scanner, device and logging sections of cfg to the
// running daemon. Paths, API bind and audit settings need a restart.
func (d *Daemon) Reload(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("reload requires config")
	}
	params := cfg.ScanParams()
	if err := params.Validate(); err != nil {
		return err
	}
	if err := d.classifier.SetParams(params); err != nil {
		return err
	}

	surfaceParams := cfg.SurfaceParams()
	newDefault := cfg.DefaultMode()
	d.mu.Lock()
	d.surfaceParams = surfaceParams
	modeChanged := newDefault != d.defaultMode
	d.defaultMode = newDefault
	d.mu.Unlock()

	if modeChanged {
		_ = d.classifier.SetMode(newDefault)
	}
	for _, s := range d.liveSessions() {
		if err := s.classifier.SetParams(surfaceParams); err != nil {
			return err
		}
		if modeChanged {
			_ = s.classifier.SetMode(newDefault)
		}
	}
	if d.levelVar != nil && cfg.Logging.Level != "" {
		d.levelVar.Set(logging.ParseLevel(cfg.Logging.Level))
	}
	if d.running.Load() {
		d.devices.Configure(cfg.Devices.Match, cfg.Devices.Grab)
	}

	d.logger.Info("configuration reloaded",
		logging.String(logging.FieldEventType, "config_reloaded"),
		logging.Int("min_length", params.MinLength),
		logging.Duration("inter_key_threshold", params.InterKeyThreshold),
		logging.Duration("quiet_period", params.QuietPeriod),
		logging.Duration("idle_timeout", params.IdleTimeout),
		logging.String(logging.FieldMode, d.classifier.Mode().String()),
	)
	return nil
}
