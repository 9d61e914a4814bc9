// Package config loads, normalizes, and validates wedge configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for secrets
// (WEDGE_API_TOKEN, WEDGE_AUDIT_TOKEN). Scanner thresholds are exposed as
// scan.Params so the daemon can hand them straight to classifiers, including
// after a hot reload.
package config
