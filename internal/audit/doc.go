// Package audit delivers scan log entries on a best-effort basis.
//
// A Recorder implements scan.Auditor: Record never blocks the classifier and
// hands entries to a single background worker that fans them out to the
// configured sinks. HTTPSink posts to the ERP backend's /scan-logs endpoint and
// Journal keeps a local SQLite copy for the CLI. Sink failures are logged and
// otherwise ignored.
package audit
