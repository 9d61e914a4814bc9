package daemon

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"wedge/internal/api"
	"wedge/internal/evdev"
	"wedge/internal/logging"
	"wedge/internal/scan"
)

// keyDevice is the subset of *evdev.Device the manager drives.
type keyDevice interface {
	scan.KeySource
	Info() evdev.Info
	Grabbed() bool
	Run(ctx context.Context) error
	Close() error
}

type attachedDevice struct {
	dev    keyDevice
	detach func()
}

// deviceManager attaches matching evdev nodes to the global classifier.
type deviceManager struct {
	classifier *scan.Classifier
	logger     *slog.Logger

	list func() ([]evdev.Info, error)
	open func(path string, grab bool) (keyDevice, error)

	mu       sync.Mutex
	patterns []string
	grab     bool
	ctx      context.Context
	attached map[string]*attachedDevice
	wg       sync.WaitGroup
}

func newDeviceManager(classifier *scan.Classifier, patterns []string, grab bool, logger *slog.Logger) *deviceManager {
	logger = logging.NewComponentLogger(logger, "device-manager")
	return &deviceManager{
		classifier: classifier,
		logger:     logger,
		list:       evdev.List,
		open: func(path string, grab bool) (keyDevice, error) {
			return evdev.Open(path, grab, logger)
		},
		patterns: append([]string(nil), patterns...),
		grab:     grab,
		attached: make(map[string]*attachedDevice),
	}
}

// Start attaches every matching device present now.
func (m *deviceManager) Start(ctx context.Context) {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()
	m.Rescan()
}

// Rescan attaches new matches and detaches devices that no longer match.
func (m *deviceManager) Rescan() {
	infos, err := m.list()
	if err != nil {
		logging.Warn(m.logger, "input device enumeration failed", logging.Problem{
			Event:  "device_scan_failed",
			Impact: "keyboard scanners will not be attached until hot-plugged",
			Hint:   "check that /dev/input is readable",
		}, logging.Error(err))
		return
	}
	m.mu.Lock()
	patterns := m.patterns
	m.mu.Unlock()

	present := make(map[string]bool, len(infos))
	for _, info := range infos {
		present[info.Path] = true
		if evdev.Match(info, patterns) {
			m.attach(info.Path)
		} else {
			m.Remove(info.Path)
		}
	}
	for _, path := range m.attachedPaths() {
		if !present[path] {
			m.Remove(path)
		}
	}
}

// Configure replaces the match patterns and grab setting, then rescans. A
// changed grab setting reopens every attached device so it takes effect now.
func (m *deviceManager) Configure(patterns []string, grab bool) {
	m.mu.Lock()
	m.patterns = append([]string(nil), patterns...)
	regrab := m.grab != grab
	m.grab = grab
	m.mu.Unlock()

	if regrab {
		for _, path := range m.attachedPaths() {
			m.Remove(path)
		}
		m.logger.Info("reopening scanner devices",
			logging.String(logging.FieldEventType, "device_regrab"),
			logging.Bool("grab", grab),
		)
	}
	m.Rescan()
}

// HandleHotplug reacts to a scanner being plugged in or removed.
func (m *deviceManager) HandleHotplug(ev hotplugEvent) {
	path := ev.Device
	switch ev.Action {
	case hotplugAdd:
		info := evdev.Describe(path)
		m.mu.Lock()
		patterns := m.patterns
		m.mu.Unlock()
		if !evdev.Match(info, patterns) {
			m.logger.Debug("ignoring unmatched input device",
				logging.String(logging.FieldDevice, path),
				logging.String("name", info.Name),
			)
			return
		}
		m.attach(path)
	case hotplugRemove:
		m.Remove(path)
	}
}

func (m *deviceManager) attach(path string) {
	m.mu.Lock()
	if _, ok := m.attached[path]; ok || m.ctx == nil {
		m.mu.Unlock()
		return
	}
	ctx, grab := m.ctx, m.grab
	m.mu.Unlock()

	dev, err := m.open(path, grab)
	if err != nil {
		logging.Warn(m.logger, "failed to open scanner device", logging.Problem{
			Event:  "device_open_failed",
			Impact: "scans from this device are not captured",
			Hint:   "add the daemon user to the input group",
		}, logging.Error(err), logging.String(logging.FieldDevice, path))
		return
	}
	detach, err := m.classifier.Attach(dev)
	if err != nil {
		_ = dev.Close()
		return
	}

	entry := &attachedDevice{dev: dev, detach: detach}
	m.mu.Lock()
	if _, ok := m.attached[path]; ok {
		m.mu.Unlock()
		detach()
		_ = dev.Close()
		return
	}
	m.attached[path] = entry
	m.wg.Add(1)
	m.mu.Unlock()

	info := dev.Info()
	m.logger.Info("scanner device attached",
		logging.String(logging.FieldEventType, "device_attached"),
		logging.String(logging.FieldDevice, path),
		logging.String("name", info.Name),
		logging.String("id", info.ID()),
		logging.Bool("grabbed", dev.Grabbed()),
	)

	go func() {
		defer m.wg.Done()
		err := dev.Run(ctx)
		m.release(path, entry)
		if err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Info("scanner device detached",
				logging.String(logging.FieldEventType, "device_lost"),
				logging.String(logging.FieldDevice, path),
				logging.Error(err),
			)
		}
	}()
}

// Remove detaches and closes the device at path, if attached.
func (m *deviceManager) Remove(path string) {
	m.mu.Lock()
	entry, ok := m.attached[path]
	m.mu.Unlock()
	if !ok {
		return
	}
	_ = entry.dev.Close()
	m.release(path, entry)
}

func (m *deviceManager) release(path string, entry *attachedDevice) {
	m.mu.Lock()
	current, ok := m.attached[path]
	if !ok || current != entry {
		m.mu.Unlock()
		return
	}
	delete(m.attached, path)
	m.mu.Unlock()

	entry.detach()
	m.logger.Info("scanner device released",
		logging.String(logging.FieldEventType, "device_detached"),
		logging.String(logging.FieldDevice, path),
	)
}

func (m *deviceManager) attachedPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.attached))
	for path := range m.attached {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Devices lists every event node with its attachment state.
func (m *deviceManager) Devices() []api.Device {
	infos, err := m.list()
	if err != nil {
		m.logger.Debug("input device enumeration failed", logging.Error(err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool, len(infos))
	out := make([]api.Device, 0, len(infos)+len(m.attached))
	for _, info := range infos {
		seen[info.Path] = true
		out = append(out, m.describeLocked(info))
	}
	for path, entry := range m.attached {
		if !seen[path] {
			out = append(out, m.describeLocked(entry.dev.Info()))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (m *deviceManager) describeLocked(info evdev.Info) api.Device {
	dto := api.Device{
		Path: info.Path,
		Name: info.Name,
		Phys: info.Phys,
		ID:   info.ID(),
	}
	if entry, ok := m.attached[info.Path]; ok {
		dto.Attached = true
		dto.Grabbed = entry.dev.Grabbed()
	}
	return dto
}

// AttachedCount reports how many devices feed the classifier.
func (m *deviceManager) AttachedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attached)
}

// Stop closes every attached device and waits for the readers to exit.
func (m *deviceManager) Stop() {
	for _, path := range m.attachedPaths() {
		m.Remove(path)
	}
	m.wg.Wait()
	m.mu.Lock()
	m.ctx = nil
	m.mu.Unlock()
}
