package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"wedge/internal/api"
	"wedge/internal/daemonctl"
	"wedge/internal/daemonrun"
	"wedge/internal/preflight"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var runLogLevel string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the wedge daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:   runLogLevel,
				ConfigPath: ctx.watchedConfigPath(),
				Stdout:     true,
			})
		},
	}
	runCmd.Flags().StringVar(&runLogLevel, "log-level", "", "Override the configured log level")

	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the wedge daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonctl.LaunchOptions{
				ConfigPath: ctx.watchedConfigPath(),
				LogLevel:   startLogLevel,
			}, 10*time.Second)
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			default:
				if result.PID > 0 {
					fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
				} else {
					fmt.Fprintln(stdout, "Daemon started")
				}
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override the configured log level")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the wedge daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(cfg, daemonrun.PIDPath(cfg), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, scanner and audit status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			status, err := daemonctl.BuildStatusSnapshot(cfg)
			if err != nil {
				return err
			}
			if statusJSON {
				return writeJSON(cmd, status)
			}
			renderStatus(cmd.OutOrStdout(), status, preflight.RunAll(cmd.Context(), cfg))
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")

	return []*cobra.Command{runCmd, startCmd, stopCmd, statusCmd}
}

func renderStatus(w io.Writer, status *api.DaemonStatus, checks []preflight.Result) {
	colorize := shouldColorize(w)

	printSection(w, "Daemon", colorize)
	if status.Running {
		fmt.Fprintln(w, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
	} else {
		fmt.Fprintln(w, renderStatusLine("Daemon", statusWarn, "Not running", colorize))
	}
	fmt.Fprintln(w, renderStatusLine("State", statusInfo, status.State, colorize))
	fmt.Fprintln(w, renderStatusLine("Socket", statusInfo, status.SocketPath, colorize))
	if status.ConfigPath != "" {
		fmt.Fprintln(w, renderStatusLine("Config", statusInfo, status.ConfigPath, colorize))
	}
	if status.Running {
		fmt.Fprintln(w, renderStatusLine("Sessions", statusInfo, strconv.Itoa(status.Sessions), colorize))
	}
	fmt.Fprintln(w)

	printSection(w, "Scanner", colorize)
	fmt.Fprintln(w, renderStatusLine("Mode", statusInfo, status.ModeLabel, colorize))
	params := status.Params
	fmt.Fprintln(w, renderStatusLine("Thresholds", statusInfo, fmt.Sprintf(
		"min length %d, inter-key %dms, quiet %dms, idle %dms",
		params.MinLength, params.InterKeyThresholdMS, params.QuietPeriodMS, params.IdleTimeoutMS), colorize))
	fmt.Fprintln(w, renderStatusLine("Open surface only", statusInfo, yesNo(params.RequireOpenSurface), colorize))
	surfaceKind, surfaceText := statusInfo, "Closed"
	if status.Surface.Open {
		surfaceKind, surfaceText = statusOK, "Open"
		if status.Surface.Capturing {
			surfaceText = "Open (camera capturing)"
		}
	}
	fmt.Fprintln(w, renderStatusLine("Surface", surfaceKind, surfaceText, colorize))
	if status.Surface.PermissionDenied || status.Surface.Notice != "" {
		fmt.Fprintln(w, renderStatusLine("Camera", statusWarn, status.Surface.Notice, colorize))
	}
	if status.LastScan != nil {
		fmt.Fprintln(w, renderStatusLine("Last scan", statusOK, fmt.Sprintf("%s (%s, %s)",
			status.LastScan.Code, status.LastScan.ModeLabel, status.LastScan.Source), colorize))
	}
	fmt.Fprintln(w)

	printSection(w, "Devices", colorize)
	switch {
	case len(status.Devices) > 0:
		fmt.Fprint(w, renderDeviceTable(status.Devices))
	case status.Running:
		fmt.Fprintln(w, renderStatusLine("Devices", statusWarn, "No scanner attached", colorize))
	default:
		fmt.Fprintln(w, renderStatusLine("Devices", statusInfo, "Daemon not running", colorize))
	}
	fmt.Fprintln(w)

	printSection(w, "Audit", colorize)
	sinks := "none"
	if len(status.Audit.Sinks) > 0 {
		sinks = strings.Join(status.Audit.Sinks, ", ")
	}
	fmt.Fprintln(w, renderStatusLine("Sinks", statusInfo, sinks, colorize))
	if status.JournalPath != "" {
		fmt.Fprintln(w, renderStatusLine("Journal", statusInfo, status.JournalPath, colorize))
	}
	fmt.Fprintln(w, renderStatusLine("Delivery", auditKind(status.Audit), auditSummary(status.Audit), colorize))

	if len(checks) == 0 {
		return
	}
	fmt.Fprintln(w)
	printSection(w, "System Checks", colorize)
	for _, check := range checks {
		kind := statusOK
		if !check.Passed {
			kind = statusError
		}
		fmt.Fprintln(w, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}
}

func auditKind(status api.AuditStatus) statusKind {
	if status.Failed > 0 || status.Dropped > 0 {
		return statusWarn
	}
	return statusInfo
}

func auditSummary(status api.AuditStatus) string {
	return fmt.Sprintf("%d queued, %d delivered, %d failed, %d dropped",
		status.Queued, status.Delivered, status.Failed, status.Dropped)
}

func renderDeviceTable(devices []api.Device) string {
	tableRows := make([][]string, 0, len(devices))
	for _, dev := range devices {
		tableRows = append(tableRows, []string{
			dev.Path,
			dev.Name,
			dev.ID,
			yesNo(dev.Attached),
			yesNo(dev.Grabbed),
		})
	}
	return renderTable(
		[]string{"Path", "Name", "ID", "Attached", "Grabbed"},
		tableRows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
	)
}
