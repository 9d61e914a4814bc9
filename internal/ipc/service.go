package ipc

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"wedge/internal/api"
	"wedge/internal/daemon"
	"wedge/internal/logging"
)

// stopGrace lets the Stop reply reach the client before connections close.
const stopGrace = 100 * time.Millisecond

// service implements the Wedge RPC methods on top of the daemon.
type service struct {
	daemon   *daemon.Daemon
	logger   *slog.Logger
	ctx      context.Context
	shutdown func()
	stopOnce sync.Once
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	resp.Status = s.daemon.Status(s.ctx)
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	if err := api.Validate(req); err != nil {
		return err
	}
	items := api.FromEvents(s.daemon.History())
	if req.Limit > 0 && len(items) > req.Limit {
		items = items[:req.Limit]
	}
	resp.Items = items
	return nil
}

func (s *service) Submit(req SubmitRequest, resp *SubmitResponse) error {
	if err := api.Validate(req); err != nil {
		return err
	}
	ev, err := s.daemon.Submit(req.Code, req.Mode)
	if err != nil {
		return err
	}
	resp.Scan = api.FromEvent(ev)
	s.logger.Debug("scan submitted via IPC",
		logging.String(logging.FieldEventType, "ipc_submit"),
		logging.String(logging.FieldScanID, ev.ID),
	)
	return nil
}

func (s *service) SetMode(req SetModeRequest, resp *SetModeResponse) error {
	if err := api.Validate(req); err != nil {
		return err
	}
	mode := s.daemon.Mode()
	if req.Mode != "" {
		var err error
		if mode, err = s.daemon.SetMode(req.Mode); err != nil {
			return err
		}
	}
	*resp = api.NewModeResponse(mode)
	return nil
}

func (s *service) Surface(req SurfaceRequest, resp *SurfaceResponse) error {
	if err := api.Validate(req); err != nil {
		return err
	}
	status, err := s.daemon.Surface(s.ctx, req.Action)
	resp.Surface = status
	return err
}

func (s *service) Devices(_ DevicesRequest, resp *DevicesResponse) error {
	resp.Devices = s.daemon.Devices()
	return nil
}

func (s *service) AuditLog(req AuditLogRequest, resp *AuditLogResponse) error {
	if err := api.Validate(req); err != nil {
		return err
	}
	resp.Audit = s.daemon.AuditStats()
	records, err := s.daemon.AuditLog(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Records = api.FromRecords(records)
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.logger.Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	if s.shutdown != nil {
		s.stopOnce.Do(func() { time.AfterFunc(stopGrace, s.shutdown) })
	}
	return nil
}
