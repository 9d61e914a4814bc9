package api

import (
	"time"

	"wedge/internal/audit"
	"wedge/internal/scan"
)

// FromEvent converts a scan event to its API representation.
func FromEvent(ev scan.Event) ScanEvent {
	dto := ScanEvent{
		ID:        ev.ID,
		Code:      ev.Code,
		Mode:      ev.Mode.String(),
		ModeLabel: ev.Mode.Label(),
		Source:    string(ev.Source),
	}
	if !ev.Timestamp.IsZero() {
		dto.Timestamp = ev.Timestamp.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromEvents converts events, preserving order. It never returns nil so JSON
// clients always receive an array.
func FromEvents(events []scan.Event) []ScanEvent {
	out := make([]ScanEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, FromEvent(ev))
	}
	return out
}

// FromParams converts classifier thresholds to milliseconds.
func FromParams(p scan.Params) Params {
	return Params{
		RequireOpenSurface:  p.RequireOpenSurface,
		MinLength:           p.MinLength,
		InterKeyThresholdMS: p.InterKeyThreshold.Milliseconds(),
		QuietPeriodMS:       p.QuietPeriod.Milliseconds(),
		IdleTimeoutMS:       p.IdleTimeout.Milliseconds(),
	}
}

// ToParams converts API thresholds back to classifier params.
func (p Params) ToParams() scan.Params {
	return scan.Params{
		RequireOpenSurface: p.RequireOpenSurface,
		MinLength:          p.MinLength,
		InterKeyThreshold:  time.Duration(p.InterKeyThresholdMS) * time.Millisecond,
		QuietPeriod:        time.Duration(p.QuietPeriodMS) * time.Millisecond,
		IdleTimeout:        time.Duration(p.IdleTimeoutMS) * time.Millisecond,
	}
}

// FromRecord converts a journal record.
func FromRecord(rec audit.Record) AuditRecord {
	dto := AuditRecord{
		ID:       rec.ID,
		Barcode:  rec.Barcode,
		ScanType: rec.ScanType,
		UserID:   rec.UserID,
		Source:   rec.Source,
		Notes:    rec.Notes,
	}
	if !rec.ScannedAt.IsZero() {
		dto.ScannedAt = rec.ScannedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromRecords converts journal records, preserving order.
func FromRecords(records []audit.Record) []AuditRecord {
	out := make([]AuditRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, FromRecord(rec))
	}
	return out
}

// FromAuditStats converts recorder counters.
func FromAuditStats(sinks []string, stats audit.Stats) AuditStatus {
	if sinks == nil {
		sinks = []string{}
	}
	return AuditStatus{
		Sinks:     sinks,
		Queued:    stats.Queued,
		Delivered: stats.Delivered,
		Failed:    stats.Failed,
		Dropped:   stats.Dropped,
	}
}

// ModeOptions lists every mode in display order.
func ModeOptions() []ModeOption {
	modes := scan.Modes()
	out := make([]ModeOption, 0, len(modes))
	for _, m := range modes {
		out = append(out, ModeOption{Name: m.String(), Label: m.Label(), Description: m.Description()})
	}
	return out
}

// NewModeResponse describes the active mode m.
func NewModeResponse(m scan.Mode) ModeResponse {
	return ModeResponse{Mode: m.String(), Label: m.Label(), Options: ModeOptions()}
}

// ParseScanTime converts a client millisecond timestamp. Zero yields the zero
// time so the classifier substitutes its own clock.
func ParseScanTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
