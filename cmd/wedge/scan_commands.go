package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"wedge/internal/api"
	"wedge/internal/ipc"
	"wedge/internal/scan"
)

func newScanCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newHistoryCommand(ctx),
		newScanCommand(ctx),
		newModeCommand(ctx),
		newSurfaceCommand(ctx),
		newDevicesCommand(ctx),
		newAuditCommand(ctx),
	}
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent scans, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.History(limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Items)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Items) == 0 {
					fmt.Fprintln(stdout, "No scans yet")
					return nil
				}
				rows := make([][]string, 0, len(resp.Items))
				for i, item := range resp.Items {
					rows = append(rows, []string{
						strconv.Itoa(i + 1),
						formatTimestamp(item.Timestamp),
						item.Code,
						item.ModeLabel,
						item.Source,
					})
				}
				fmt.Fprint(stdout, renderTable(
					[]string{"#", "Time", "Code", "Mode", "Source"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of scans to show (0 shows all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	var mode string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "scan CODE",
		Short: "Submit a code through the manual entry path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			requested := ""
			if mode != "" {
				parsed, err := scan.ParseMode(mode)
				if err != nil {
					return err
				}
				requested = parsed.String()
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Submit(args[0], requested)
				if errors.Is(err, scan.ErrEmptyInput) {
					return errors.New("enter a valid code")
				}
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Scan)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s (%s, %s)\n", resp.Scan.Code, resp.Scan.ModeLabel, resp.Scan.Source)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Switch to this mode before submitting")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newModeCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "mode [MODE]",
		Short: "Show or change the active scan mode",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			requested := ""
			if len(args) == 1 {
				parsed, err := scan.ParseMode(args[0])
				if err != nil {
					return err
				}
				requested = parsed.String()
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SetMode(requested)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				stdout := cmd.OutOrStdout()
				if requested != "" {
					fmt.Fprintf(stdout, "Mode set to %s\n", resp.Label)
					return nil
				}
				rows := make([][]string, 0, len(resp.Options))
				for _, opt := range resp.Options {
					marker := ""
					if opt.Name == resp.Mode {
						marker = "*"
					}
					rows = append(rows, []string{marker, opt.Name, opt.Description})
				}
				fmt.Fprint(stdout, renderTable(
					[]string{"", "Mode", "Description"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newSurfaceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "surface open|close|camera",
		Short:     "Open or close the host scanning surface, or start camera capture",
		ValidArgs: []string{api.SurfaceOpen, api.SurfaceClose, api.SurfaceCamera},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := args[0]
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Surface(action)
				stdout := cmd.OutOrStdout()
				switch {
				case errors.Is(err, scan.ErrPermissionDenied), errors.Is(err, scan.ErrCameraUnavailable):
					fmt.Fprintln(stdout, "Camera capture unavailable; keyboard and manual scans still work")
					return err
				case err != nil:
					return err
				}
				fmt.Fprintf(stdout, "Surface %s\n", describeSurface(resp.Surface))
				return nil
			})
		},
	}
}

func describeSurface(surface api.SurfaceStatus) string {
	switch {
	case surface.Capturing:
		return "open (camera capturing)"
	case surface.Open:
		return "open"
	default:
		return "closed"
	}
}

func newDevicesCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List input devices and their attachment state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Devices()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Devices)
				}
				if len(resp.Devices) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No input devices found")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderDeviceTable(resp.Devices))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newAuditCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show journaled scan logs and delivery counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("limit must be zero or positive")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.AuditLog(limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Delivery: %s\n", auditSummary(resp.Audit))
				if len(resp.Records) == 0 {
					fmt.Fprintln(stdout, "No scan logs recorded")
					return nil
				}
				rows := make([][]string, 0, len(resp.Records))
				for _, rec := range resp.Records {
					rows = append(rows, []string{
						strconv.FormatInt(rec.ID, 10),
						formatTimestamp(rec.ScannedAt),
						rec.Barcode,
						rec.ScanType,
						rec.UserID,
						rec.Source,
					})
				}
				fmt.Fprint(stdout, renderTable(
					[]string{"ID", "Time", "Barcode", "Type", "User", "Source"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of records to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// formatTimestamp renders an API timestamp in local time, or returns it
// unchanged when it does not parse.
func formatTimestamp(value string) string {
	if value == "" {
		return "-"
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return parsed.Local().Format("2006-01-02 15:04:05")
}
