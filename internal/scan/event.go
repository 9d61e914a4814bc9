package scan

import "time"

// Source identifies which input path produced a scan.
type Source string

const (
	SourceKeyboard Source = "keyboard"
	SourceManual   Source = "manual"
	SourceCamera   Source = "camera"
)

// Event is a completed scan. Values are never mutated after creation.
type Event struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Mode      Mode      `json:"mode"`
	Source    Source    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler receives every completed scan. It is the host application's only
// required hook.
type Handler func(code string, mode Mode)

// AuditEntry is the record handed to the audit collaborator for each scan.
type AuditEntry struct {
	Code      string
	Mode      Mode
	Source    Source
	Timestamp time.Time
	ActorID   string
}

// Auditor records scans on a best-effort basis. Record must not block and
// never reports failure to the caller.
type Auditor interface {
	Record(entry AuditEntry)
}

type noopAuditor struct{}

func (noopAuditor) Record(AuditEntry) {}
