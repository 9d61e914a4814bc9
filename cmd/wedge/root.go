package main

import (
	"github.com/spf13/cobra"
)

const (
	groupDaemon = "daemon"
	groupScan   = "scan"
)

func newRootCommand() *cobra.Command {
	var socketFlag, configFlag string
	ctx := newCommandContext(&socketFlag, &configFlag)

	root := &cobra.Command{
		Use:   "wedge",
		Short: "Keyboard-wedge barcode scan classifier",
		Long: "wedge tells barcode scanner bursts apart from human typing, labels each scan\n" +
			"with the active mode and reports it to the audit endpoint.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.AddGroup(
		&cobra.Group{ID: groupDaemon, Title: "Daemon Commands:"},
		&cobra.Group{ID: groupScan, Title: "Scanning Commands:"},
	)

	flags := root.PersistentFlags()
	flags.StringVar(&socketFlag, "socket", "", "Path to the wedge daemon socket")
	flags.StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	for _, cmd := range newDaemonCommands(ctx) {
		cmd.GroupID = groupDaemon
		root.AddCommand(cmd)
	}
	logsCmd := newLogsCommand(ctx)
	logsCmd.GroupID = groupDaemon
	root.AddCommand(logsCmd)
	for _, cmd := range newScanCommands(ctx) {
		cmd.GroupID = groupScan
		root.AddCommand(cmd)
	}
	root.AddCommand(newConfigCommand(ctx))
	return root
}
