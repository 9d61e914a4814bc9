package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"wedge/internal/evdev"
	"wedge/internal/logging"
)

type hotplugAction string

const (
	hotplugAdd    hotplugAction = "add"
	hotplugRemove hotplugAction = "remove"
)

// hotplugEvent is an input event node appearing or disappearing.
type hotplugEvent struct {
	Action hotplugAction
	Device string
}

// parseInputUevent maps a kernel uevent to an event node path. Parent inputN
// devices and mouse/js nodes share the subsystem and are rejected.
func parseInputUevent(ev netlink.UEvent) (hotplugEvent, bool) {
	action := hotplugAction(ev.Action)
	if action != hotplugAdd && action != hotplugRemove {
		return hotplugEvent{}, false
	}
	var device string
	switch name, devpath := ev.Env["DEVNAME"], ev.Env["DEVPATH"]; {
	case strings.HasPrefix(name, "/"):
		device = name
	case name != "":
		device = "/dev/" + name
	case devpath != "":
		device = "/dev/input/" + path.Base(devpath)
	}
	if !evdev.IsEventPath(device) {
		return hotplugEvent{}, false
	}
	return hotplugEvent{Action: action, Device: device}, true
}

func inputRules() netlink.Matcher {
	actions := string(hotplugAdd) + "|" + string(hotplugRemove)
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &actions,
		Env:    map[string]string{"SUBSYSTEM": "input"},
	})
	return rules
}

// hotplugMonitor follows udev netlink for scanners being plugged in or
// removed, so no udev rule has to call back into the CLI.
type hotplugMonitor struct {
	logger  *slog.Logger
	handler func(hotplugEvent)

	mu     sync.Mutex
	conn   *netlink.UEventConn
	cancel context.CancelFunc
	done   chan struct{}
}

func newHotplugMonitor(logger *slog.Logger, handler func(hotplugEvent)) *hotplugMonitor {
	if handler == nil {
		return nil
	}
	return &hotplugMonitor{
		logger:  logging.NewComponentLogger(logger, "hotplug"),
		handler: handler,
	}
}

// Start connects to the kernel uevent socket. A nil or running monitor is a
// no-op.
func (m *hotplugMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return fmt.Errorf("connect netlink: %w", err)
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.conn, m.cancel, m.done = conn, cancel, make(chan struct{})
	go m.run(runCtx, conn, m.done)

	m.logger.Info("hot-plug monitor started",
		logging.String(logging.FieldEventType, "hotplug_started"),
	)
	return nil
}

func (m *hotplugMonitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	cancel, conn, done := m.cancel, m.conn, m.done
	m.cancel, m.conn, m.done = nil, nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	<-done
	_ = conn.Close()
	m.logger.Info("hot-plug monitor stopped",
		logging.String(logging.FieldEventType, "hotplug_stopped"),
	)
}

func (m *hotplugMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

func (m *hotplugMonitor) run(ctx context.Context, conn *netlink.UEventConn, done chan<- struct{}) {
	defer close(done)
	events := make(chan netlink.UEvent)
	errs := make(chan error)
	quit := conn.Monitor(events, errs, inputRules())
	defer close(quit)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			m.dispatch(ev)
		case err := <-errs:
			logging.Warn(m.logger, "netlink monitor error", logging.Problem{
				Event:  "hotplug_error",
				Impact: "scanner hot-plug detection may miss devices",
				Hint:   "run `wedge devices` to confirm attached scanners",
			}, logging.Error(err))
		}
	}
}

func (m *hotplugMonitor) dispatch(ev netlink.UEvent) {
	parsed, ok := parseInputUevent(ev)
	if !ok {
		return
	}
	m.logger.Info("input device "+string(parsed.Action),
		logging.String(logging.FieldEventType, "hotplug_"+string(parsed.Action)),
		logging.String(logging.FieldDevice, parsed.Device),
	)
	m.handler(parsed)
}
