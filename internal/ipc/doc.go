// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// Request and response types wrap the internal/api DTOs so the HTTP API and
// the socket speak the same shapes. Sentinel errors from the scan package are
// restored on the client side, letting commands branch with errors.Is.
package ipc
