// Command wedged runs the wedge daemon in the foreground. It reads the
// configuration from WEDGE_CONFIG or the default location.
package main

import (
	"context"
	"fmt"
	"os"

	"wedge/internal/config"
	"wedge/internal/daemonrun"
)

func main() {
	if err := run(context.Background(), os.Getenv("WEDGE_CONFIG")); err != nil {
		fmt.Fprintf(os.Stderr, "wedged: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	watched := ""
	if exists {
		watched = resolved
	}
	return daemonrun.Run(ctx, cfg, daemonrun.Options{ConfigPath: watched})
}
