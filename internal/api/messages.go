package api

// Client message types sent by a browser scanning surface.
const (
	MessageKeyDown       = "keydown"
	MessageSurface       = "surface"
	MessageManual        = "manual"
	MessageDecoded       = "decoded"
	MessageCameraDenied  = "camera_denied"
	MessageMode          = "mode"
	MessageSnapshotQuery = "snapshot"
)

// Server message types.
const (
	MessageScan     = "scan"
	MessageNotice   = "notice"
	MessageSnapshot = "snapshot"
	MessageError    = "error"
)

// Key targets reported with keydown messages.
const (
	TargetSurface = "surface"
	TargetInput   = "input"
)

// ClientMessage is a frame received from a websocket client. Only the fields
// relevant to Type are populated.
type ClientMessage struct {
	Type string `json:"type" validate:"required,oneof=keydown surface manual decoded camera_denied mode snapshot"`
	// Key is the DOM KeyboardEvent.key value for keydown frames.
	Key string `json:"key,omitempty" validate:"required_if=Type keydown,max=32"`
	// Target is "input" when the key went to an ordinary text field.
	Target string `json:"target,omitempty" validate:"omitempty,oneof=surface input"`
	// TimeMS is the client event timestamp in Unix milliseconds. Zero means
	// the server receive time is used.
	TimeMS int64  `json:"timeMs,omitempty" validate:"gte=0"`
	Code   string `json:"code,omitempty" validate:"max=256"`
	Action string `json:"action,omitempty" validate:"omitempty,oneof=open close"`
	Mode   string `json:"mode,omitempty" validate:"omitempty,scanmode"`
}

// SessionSnapshot is the state of one websocket scanning session.
type SessionSnapshot struct {
	SessionID        string      `json:"sessionId"`
	Mode             string      `json:"mode"`
	ModeLabel        string      `json:"modeLabel"`
	State            string      `json:"state"`
	SurfaceOpen      bool        `json:"surfaceOpen"`
	PermissionDenied bool        `json:"permissionDenied"`
	Params           Params      `json:"params"`
	History          []ScanEvent `json:"history"`
}

// ServerMessage is a frame sent to websocket clients.
type ServerMessage struct {
	Type      string           `json:"type"`
	SessionID string           `json:"sessionId,omitempty"`
	Origin    string           `json:"origin,omitempty"`
	Scan      *ScanEvent       `json:"scan,omitempty"`
	Notice    string           `json:"notice,omitempty"`
	Snapshot  *SessionSnapshot `json:"snapshot,omitempty"`
	Error     string           `json:"error,omitempty"`
}
