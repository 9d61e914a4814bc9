package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"wedge/internal/api"
	"wedge/internal/config"
	"wedge/internal/logging"
	"wedge/internal/scan"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	upgrader       websocket.Upgrader

	router   chi.Router
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:           bind,
		logger:         logging.NewComponentLogger(logger, "api-server"),
		daemon:         d,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
	}
	for _, origin := range cfg.API.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		srv.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			srv.allowedHosts[parsed.Host] = true
		}
	}
	srv.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     srv.checkOrigin,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.NoCache)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.API.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(chimw.Heartbeat("/health"))

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(strings.TrimSpace(cfg.Paths.APIToken)))
		r.Get("/status", srv.handleStatus)
		r.Get("/history", srv.handleHistory)
		r.Post("/scans", srv.handleSubmit)
		r.Get("/mode", srv.handleGetMode)
		r.Put("/mode", srv.handleSetMode)
		r.Post("/surface/{action}", srv.handleSurface)
		r.Get("/devices", srv.handleDevices)
		r.Get("/audit", srv.handleAudit)
		r.Get("/ws", srv.handleWS)
	})
	srv.router = r

	srv.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening",
		logging.String(logging.FieldEventType, "api_listening"),
		logging.String("address", listener.Addr().String()),
	)
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, api.HistoryResponse{Items: api.FromEvents(s.daemon.History())})
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	req, err := api.Decode[api.SubmitRequest](r.Body)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	ev, err := s.daemon.Submit(req.Code, req.Mode)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.SubmitResponse{Scan: api.FromEvent(ev)})
}

func (s *apiServer) handleGetMode(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, api.NewModeResponse(s.daemon.Mode()))
}

func (s *apiServer) handleSetMode(w http.ResponseWriter, r *http.Request) {
	req, err := api.Decode[api.ModeRequest](r.Body)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	mode, err := s.daemon.SetMode(req.Mode)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.NewModeResponse(mode))
}

func (s *apiServer) handleSurface(w http.ResponseWriter, r *http.Request) {
	req := api.SurfaceRequest{Action: chi.URLParam(r, "action")}
	if err := api.Validate(req); err != nil {
		s.writeFailure(w, err)
		return
	}
	status, err := s.daemon.Surface(r.Context(), req.Action)
	if err != nil {
		var (
			code    = statusForError(err)
			payload = api.ErrorResponse{Error: err.Error()}
		)
		if status.Notice != "" {
			payload.Error = status.Notice
		}
		s.writeJSON(w, code, payload)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleDevices(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, api.DevicesResponse{Devices: s.daemon.Devices()})
}

func (s *apiServer) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	records, err := s.daemon.AuditLog(r.Context(), limit)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.AuditLogResponse{Records: api.FromRecords(records)})
}

func (s *apiServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	sess, err := s.daemon.newSession(conn)
	if err != nil {
		s.logger.Error("websocket session setup failed", logging.Error(err))
		_ = conn.Close()
		return
	}
	go sess.serve()
}

func (s *apiServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if s.allowedOrigins["*"] || s.allowedOrigins[origin] {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if s.allowedHosts[parsed.Host] || parsed.Host == r.Host {
		return true
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, api.ErrInvalidRequest), errors.Is(err, scan.ErrEmptyInput), errors.Is(err, scan.ErrUnknownMode):
		return http.StatusBadRequest
	case errors.Is(err, scan.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, scan.ErrCameraUnavailable), errors.Is(err, ErrJournalDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, scan.ErrClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeFailure(w http.ResponseWriter, err error) {
	code := statusForError(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("api request failed", logging.Error(err))
	}
	payload := api.ErrorResponse{Error: err.Error()}
	var verr *api.ValidationError
	if errors.As(err, &verr) {
		payload.Field = verr.Field
	}
	s.writeJSON(w, code, payload)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: message})
}
