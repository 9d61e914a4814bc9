package audit

import (
	"context"
	"fmt"

	"wedge/internal/scan"
)

// Sink receives audit entries from the Recorder worker.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, entry scan.AuditEntry) error
}

// Payload is the scan-log body expected by the backend.
type Payload struct {
	Barcode  string `json:"barcode"`
	ScanType string `json:"scanType"`
	UserID   string `json:"userId"`
	Notes    string `json:"notes"`
}

// NewPayload converts an entry into the wire body.
func NewPayload(entry scan.AuditEntry) Payload {
	return Payload{
		Barcode:  entry.Code,
		ScanType: entry.Mode.String(),
		UserID:   entry.ActorID,
		Notes:    Notes(entry),
	}
}

// Notes describes how a scan was captured.
func Notes(entry scan.AuditEntry) string {
	source := entry.Source
	if source == "" {
		source = scan.SourceKeyboard
	}
	return fmt.Sprintf("%s scan via %s", entry.Mode.Label(), source)
}
