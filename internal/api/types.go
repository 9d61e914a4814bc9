package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ScanEvent describes a completed scan in a transport-friendly format.
type ScanEvent struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Mode      string `json:"mode"`
	ModeLabel string `json:"modeLabel"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

// Params mirrors the classifier thresholds with millisecond durations.
type Params struct {
	RequireOpenSurface  bool  `json:"requireOpenSurface"`
	MinLength           int   `json:"minLength"`
	InterKeyThresholdMS int64 `json:"interKeyThresholdMs"`
	QuietPeriodMS       int64 `json:"quietPeriodMs"`
	IdleTimeoutMS       int64 `json:"idleTimeoutMs"`
}

// SurfaceStatus reports the scanning surface and camera state.
type SurfaceStatus struct {
	Open             bool   `json:"open"`
	Capturing        bool   `json:"capturing"`
	PermissionDenied bool   `json:"permissionDenied"`
	Notice           string `json:"notice,omitempty"`
}

// Device describes an input device known to the daemon.
type Device struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	Phys     string `json:"phys,omitempty"`
	ID       string `json:"id,omitempty"`
	Attached bool   `json:"attached"`
	Grabbed  bool   `json:"grabbed"`
}

// AuditStatus summarizes audit delivery since the daemon started.
type AuditStatus struct {
	Sinks     []string `json:"sinks"`
	Queued    uint64   `json:"queued"`
	Delivered uint64   `json:"delivered"`
	Failed    uint64   `json:"failed"`
	Dropped   uint64   `json:"dropped"`
}

// AuditRecord is a journaled scan log entry.
type AuditRecord struct {
	ID        int64  `json:"id"`
	Barcode   string `json:"barcode"`
	ScanType  string `json:"scanType"`
	UserID    string `json:"userId"`
	Source    string `json:"source"`
	Notes     string `json:"notes"`
	ScannedAt string `json:"scannedAt"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool          `json:"running"`
	PID          int           `json:"pid"`
	Mode         string        `json:"mode"`
	ModeLabel    string        `json:"modeLabel"`
	State        string        `json:"state"`
	Params       Params        `json:"params"`
	Surface      SurfaceStatus `json:"surface"`
	Devices      []Device      `json:"devices"`
	Hotplug      bool          `json:"hotplug"`
	Sessions     int           `json:"sessions"`
	Audit        AuditStatus   `json:"audit"`
	LastScan     *ScanEvent    `json:"lastScan,omitempty"`
	LockFilePath string        `json:"lockFilePath"`
	SocketPath   string        `json:"socketPath,omitempty"`
	JournalPath  string        `json:"journalPath,omitempty"`
	ConfigPath   string        `json:"configPath,omitempty"`
}

// HistoryResponse wraps recent scans, most recent first.
type HistoryResponse struct {
	Items []ScanEvent `json:"items"`
}

// DevicesResponse lists input devices.
type DevicesResponse struct {
	Devices []Device `json:"devices"`
}

// AuditLogResponse lists journaled scan logs, newest first.
type AuditLogResponse struct {
	Records []AuditRecord `json:"records"`
}

// SubmitRequest submits a code through the manual path.
type SubmitRequest struct {
	Code string `json:"code" validate:"required,max=256"`
	Mode string `json:"mode,omitempty" validate:"omitempty,scanmode"`
}

// SubmitResponse returns the scan created by a submission.
type SubmitResponse struct {
	Scan ScanEvent `json:"scan"`
}

// ModeRequest changes the active mode.
type ModeRequest struct {
	Mode string `json:"mode" validate:"required,scanmode"`
}

// ModeOption describes one selectable mode.
type ModeOption struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// ModeResponse reports the active mode and the available choices.
type ModeResponse struct {
	Mode    string       `json:"mode"`
	Label   string       `json:"label"`
	Options []ModeOption `json:"options"`
}

// Surface actions.
const (
	SurfaceOpen   = "open"
	SurfaceClose  = "close"
	SurfaceCamera = "camera"
)

// SurfaceRequest opens or closes the scanning surface or starts the camera.
type SurfaceRequest struct {
	Action string `json:"action" validate:"required,oneof=open close camera"`
}

// ErrorResponse is the body of every non-2xx HTTP reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}
