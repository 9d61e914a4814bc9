package preflight

import (
	"context"
	"strings"

	"wedge/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunLocal executes the checks that only touch the local host.
func RunLocal(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	if len(cfg.Devices.Match) > 0 {
		results = append(results, CheckInputAccess(InputDir))
	}
	if cfg.Camera.Enabled {
		results = append(results,
			CheckBinary("Camera decoder", cfg.Camera.DecoderBinary),
			CheckDeviceAccess("Camera device", cfg.Camera.Device),
		)
	}
	return results
}

// RunAll executes the local checks plus the audit endpoint probe when an
// endpoint is configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	results := RunLocal(cfg)
	if cfg != nil && strings.TrimSpace(cfg.Audit.Endpoint) != "" {
		results = append(results, CheckAuditEndpoint(ctx, cfg.Audit.Endpoint, cfg.Audit.Token))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
