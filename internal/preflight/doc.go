// Package preflight provides readiness checks for the host resources wedge
// depends on: its state directories, the input event nodes, the camera
// decoder and the audit endpoint.
//
// These checks run in two contexts:
//   - The daemon calls RunLocal at startup and logs every failure as a
//     warning; it never refuses to start because of one.
//   - The CLI "wedge status" command calls RunAll, which adds the audit
//     endpoint reachability probe.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
