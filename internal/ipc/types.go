package ipc

import "wedge/internal/api"

// StatusRequest requests the daemon status.
type StatusRequest struct{}

// StatusResponse carries the daemon status.
type StatusResponse struct {
	Status api.DaemonStatus `json:"status"`
}

// HistoryRequest requests recent scans. Limit zero returns the whole ring.
type HistoryRequest struct {
	Limit int `json:"limit" validate:"gte=0"`
}

// HistoryResponse lists scans, most recent first.
type HistoryResponse = api.HistoryResponse

// SubmitRequest submits a manually entered code.
type SubmitRequest = api.SubmitRequest

// SubmitResponse returns the recorded scan.
type SubmitResponse = api.SubmitResponse

// SetModeRequest changes the active mode. An empty mode only reports it.
type SetModeRequest struct {
	Mode string `json:"mode" validate:"omitempty,scanmode"`
}

// SetModeResponse reports the active mode and the available options.
type SetModeResponse = api.ModeResponse

// SurfaceRequest applies open, close or camera to the host surface.
type SurfaceRequest = api.SurfaceRequest

// SurfaceResponse reports the surface after the action.
type SurfaceResponse struct {
	Surface api.SurfaceStatus `json:"surface"`
}

// DevicesRequest lists input devices.
type DevicesRequest struct{}

// DevicesResponse lists input devices and their attachment state.
type DevicesResponse = api.DevicesResponse

// AuditLogRequest lists journaled scan logs.
type AuditLogRequest struct {
	Limit int `json:"limit" validate:"gte=0"`
}

// AuditLogResponse carries journaled scan logs and delivery counters.
type AuditLogResponse struct {
	Records []api.AuditRecord `json:"records"`
	Audit   api.AuditStatus   `json:"audit"`
}

// StopRequest asks the daemon process to shut down.
type StopRequest struct{}

// StopResponse acknowledges a stop request.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}
