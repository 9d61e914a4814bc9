// Package api defines wire-format types and converters shared by the HTTP API,
// the websocket surface protocol and the IPC layer. It translates scan,
// device and audit models into transport-friendly DTOs so the CLI and browser
// clients never couple to internal types.
//
// # Key Types
//
// ScanEvent: a completed scan with its mode, source and timestamp.
//
// DaemonStatus: running state, active mode, classifier thresholds, surface and
// camera state, attached devices and audit delivery counters.
//
// SubmitRequest/ModeRequest/SurfaceRequest: validated request bodies.
//
// ClientMessage/ServerMessage: websocket frames exchanged with a browser
// scanning surface.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Modes are exposed as their lowercase names.
// Timestamps use RFC3339 with milliseconds. Request validation goes through
// go-playground/validator with JSON field names in messages.
package api
