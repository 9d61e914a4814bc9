package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"wedge/internal/config"
	"wedge/internal/ipc"
)

const skipConfigAnnotation = "skipConfigLoad"

// commandContext carries flag values and the lazily loaded configuration
// shared by every subcommand.
type commandContext struct {
	socketFlag *string
	configFlag *string

	load         func() (*config.Config, error)
	configPath   string
	configExists bool
}

func newCommandContext(socketFlag, configFlag *string) *commandContext {
	c := &commandContext{socketFlag: socketFlag, configFlag: configFlag}
	c.load = sync.OnceValues(func() (*config.Config, error) {
		cfg, resolved, exists, err := config.Load(flagValue(c.configFlag))
		if err != nil {
			return nil, err
		}
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, err
		}
		c.configPath, c.configExists = resolved, exists
		return cfg, nil
	})
	return c
}

func flagValue(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	return c.load()
}

// watchedConfigPath returns the config file a daemon should watch, or "" when
// it runs on defaults.
func (c *commandContext) watchedConfigPath() string {
	if _, err := c.load(); err != nil || !c.configExists {
		return ""
	}
	return c.configPath
}

func (c *commandContext) socketPath() string {
	if socket := flagValue(c.socketFlag); socket != "" {
		return socket
	}
	if cfg, err := c.load(); err == nil {
		return cfg.SocketPath()
	}
	fallback := config.Default()
	dir, err := config.ExpandPath(fallback.Paths.StateDir)
	if err != nil {
		return "wedge.sock"
	}
	fallback.Paths.StateDir = dir
	return fallback.SocketPath()
}

func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err != nil {
		return dialError(err, socket)
	}
	defer client.Close()
	return fn(client)
}

func dialError(err error, socket string) error {
	switch {
	case errors.Is(err, syscall.ENOENT):
		return fmt.Errorf("connect to daemon: socket %s not found; start the daemon with `wedge start`", socket)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to daemon: socket %s refused the connection; verify the daemon is running", socket)
	}
	return fmt.Errorf("connect to daemon: %w", err)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		if cmd.Annotations[skipConfigAnnotation] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
