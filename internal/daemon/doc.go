// Package daemon coordinates the long-running wedge process and its system
// integration points.
//
// It wires configuration, the global scan classifier, evdev scanner devices,
// udev hot-plug events, the host camera surface and audit delivery into a
// single lifecycle with flock-based locking to prevent multiple instances.
// Outer surfaces live here too: a chi HTTP API, websocket scanning sessions
// that each own a classifier, a hub that broadcasts every scan, and an
// fsnotify watcher that applies threshold changes without a restart.
//
// Keep orchestration logic here: classification belongs to internal/scan and
// device decoding to internal/evdev and internal/camera.
package daemon
