package daemon

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"wedge/internal/api"
	"wedge/internal/logging"
	"wedge/internal/scan"
)

const (
	maxFrameBytes = 4096

	originDaemon  = "daemon"
	originSession = "session"
)

// session is one browser scanning surface. It owns a classifier that runs
// with the surface parameters, so only an open surface or a scanner-speed
// burst produces scans.
type session struct {
	id         string
	daemon     *Daemon
	client     *wsClient
	conn       *websocket.Conn
	classifier *scan.Classifier
	surface    *scan.Surface
	logger     *slog.Logger
}

func (d *Daemon) newSession(conn *websocket.Conn) (*session, error) {
	id := uuid.NewString()
	logger := d.logger.With(logging.String(logging.FieldSessionID, id))
	s := &session{
		id:     id,
		daemon: d,
		conn:   conn,
		logger: logging.NewComponentLogger(logger, "ws-session"),
	}

	d.mu.RLock()
	params, mode := d.surfaceParams, d.defaultMode
	d.mu.RUnlock()

	classifier, err := scan.NewClassifier(params, mode, d.handler,
		scan.WithAuditor(d.recorder),
		scan.WithActor(d.cfg.Audit.UserID),
		scan.WithLogger(logger),
		scan.WithClock(d.clock),
		scan.WithListener(func(ev scan.Event) {
			dto := api.FromEvent(ev)
			d.hub.broadcast(api.ServerMessage{Type: api.MessageScan, SessionID: id, Origin: originSession, Scan: &dto})
		}),
	)
	if err != nil {
		return nil, err
	}
	s.classifier = classifier
	s.surface = scan.NewSurface(classifier, nil, logger)
	s.client = d.hub.add(conn)
	d.registerSession(s)
	return s, nil
}

// serve reads client frames until the connection closes.
func (s *session) serve() {
	defer s.close()

	s.conn.SetReadLimit(maxFrameBytes)
	s.logger.Info("scanning session opened",
		logging.String(logging.FieldEventType, "session_opened"),
	)
	s.sendSnapshot()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read failed", logging.Error(err))
			}
			return
		}
		msg, err := api.DecodeClientMessage(data)
		if err != nil {
			s.sendError(err)
			continue
		}
		s.handle(msg)
	}
}

func (s *session) handle(msg api.ClientMessage) {
	switch msg.Type {
	case api.MessageKeyDown:
		s.classifier.OnKeyDown(scan.KeyEvent{
			Key:         msg.Key,
			Time:        api.ParseScanTime(msg.TimeMS),
			InTextInput: msg.Target == api.TargetInput,
		})
	case api.MessageSurface:
		if msg.Action == api.SurfaceOpen {
			s.surface.Open()
		} else {
			s.surface.Close()
		}
		s.sendSnapshot()
	case api.MessageManual:
		if _, err := s.classifier.SubmitManual(msg.Code); err != nil {
			s.sendError(err)
		}
	case api.MessageDecoded:
		if _, err := s.classifier.SubmitDecoded(msg.Code); err != nil {
			s.sendError(err)
		}
	case api.MessageCameraDenied:
		s.surface.MarkPermissionDenied()
		s.daemon.hub.send(s.client, api.ServerMessage{Type: api.MessageNotice, SessionID: s.id, Notice: s.surface.Notice()})
	case api.MessageMode:
		mode, err := scan.ParseMode(msg.Mode)
		if err == nil {
			err = s.classifier.SetMode(mode)
		}
		if err != nil {
			s.sendError(err)
			return
		}
		s.sendSnapshot()
	case api.MessageSnapshotQuery:
		s.sendSnapshot()
	}
}

func (s *session) snapshot() api.SessionSnapshot {
	mode := s.classifier.Mode()
	return api.SessionSnapshot{
		SessionID:        s.id,
		Mode:             mode.String(),
		ModeLabel:        mode.Label(),
		State:            s.classifier.State().String(),
		SurfaceOpen:      s.surface.IsOpen(),
		PermissionDenied: s.surface.PermissionDenied(),
		Params:           api.FromParams(s.classifier.Params()),
		History:          api.FromEvents(s.classifier.History()),
	}
}

func (s *session) sendSnapshot() {
	snap := s.snapshot()
	s.daemon.hub.send(s.client, api.ServerMessage{Type: api.MessageSnapshot, SessionID: s.id, Snapshot: &snap})
}

func (s *session) sendError(err error) {
	msg := err.Error()
	if errors.Is(err, scan.ErrEmptyInput) {
		msg = scan.ErrEmptyInput.Error()
	}
	s.daemon.hub.send(s.client, api.ServerMessage{Type: api.MessageError, SessionID: s.id, Error: msg})
}

func (s *session) close() {
	_ = s.classifier.Close()
	s.daemon.unregisterSession(s)
	s.daemon.hub.remove(s.client)
	s.logger.Info("scanning session closed",
		logging.String(logging.FieldEventType, "session_closed"),
	)
}

// sessionSet tracks live sessions so configuration reloads reach them.
type sessionSet struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func (d *Daemon) registerSession(s *session) {
	d.sessions.mu.Lock()
	defer d.sessions.mu.Unlock()
	if d.sessions.sessions == nil {
		d.sessions.sessions = make(map[string]*session)
	}
	d.sessions.sessions[s.id] = s
}

func (d *Daemon) unregisterSession(s *session) {
	d.sessions.mu.Lock()
	defer d.sessions.mu.Unlock()
	delete(d.sessions.sessions, s.id)
}

func (d *Daemon) liveSessions() []*session {
	d.sessions.mu.Lock()
	defer d.sessions.mu.Unlock()
	out := make([]*session, 0, len(d.sessions.sessions))
	for _, s := range d.sessions.sessions {
		out = append(out, s)
	}
	return out
}
