package ipc

import (
	"errors"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"wedge/internal/api"
	"wedge/internal/daemon"
	"wedge/internal/scan"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// knownErrors are restored from their wire text so callers can use errors.Is.
var knownErrors = []error{
	scan.ErrEmptyInput,
	scan.ErrPermissionDenied,
	scan.ErrCameraUnavailable,
	scan.ErrClosed,
	daemon.ErrJournalDisabled,
}

// remoteError converts a server-side error string back into a sentinel when
// one matches.
func remoteError(err error) error {
	var serverErr rpc.ServerError
	if !errors.As(err, &serverErr) {
		return err
	}
	msg := string(serverErr)
	for _, known := range knownErrors {
		if msg == known.Error() {
			return known
		}
	}
	return serverErr
}

func (c *Client) call(method string, req, resp any) error {
	if err := c.client.Call(ServiceName+"."+method, req, resp); err != nil {
		return remoteError(err)
	}
	return nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*api.DaemonStatus, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp.Status, nil
}

// History returns up to limit recent scans, most recent first.
func (c *Client) History(limit int) (*HistoryResponse, error) {
	var resp HistoryResponse
	if err := c.call("History", HistoryRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Submit records a manually entered code, optionally switching mode first.
func (c *Client) Submit(code, mode string) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.call("Submit", SubmitRequest{Code: code, Mode: mode}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetMode changes the active mode. An empty mode only reports it.
func (c *Client) SetMode(mode string) (*SetModeResponse, error) {
	var resp SetModeResponse
	if err := c.call("SetMode", SetModeRequest{Mode: mode}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Surface applies a surface action on the daemon host.
func (c *Client) Surface(action string) (*SurfaceResponse, error) {
	var resp SurfaceResponse
	if err := c.call("Surface", SurfaceRequest{Action: action}, &resp); err != nil {
		return &resp, err
	}
	return &resp, nil
}

// Devices lists input devices.
func (c *Client) Devices() (*DevicesResponse, error) {
	var resp DevicesResponse
	if err := c.call("Devices", DevicesRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AuditLog returns journaled scan logs, newest first.
func (c *Client) AuditLog(limit int) (*AuditLogResponse, error) {
	var resp AuditLogResponse
	if err := c.call("AuditLog", AuditLogRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop asks the daemon process to shut down.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.call("Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
