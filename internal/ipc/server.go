package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"wedge/internal/daemon"
	"wedge/internal/logging"
)

// ServiceName is the registered JSON-RPC service.
const ServiceName = "Wedge"

// Server answers JSON-RPC requests for the Wedge service on a Unix socket.
type Server struct {
	path     string
	logger   *slog.Logger
	listener net.Listener
	rpc      *rpc.Server
	done     <-chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

// NewServer replaces any stale socket at path and registers the service.
// shutdown runs after a Stop request has stopped the daemon; it may be nil.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger, shutdown func()) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	registry := rpc.NewServer()
	if err := registry.RegisterName(ServiceName, &service{
		daemon:   d,
		logger:   logger,
		ctx:      ctx,
		shutdown: shutdown,
	}); err != nil {
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serveCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:     path,
		logger:   logger,
		listener: listener,
		rpc:      registry,
		done:     serveCtx.Done(),
		cancel:   cancel,
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

func (s *Server) Path() string {
	return s.path
}

// Serve accepts connections in the background until Close.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Go(s.acceptLoop)
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logging.Warn(s.logger, "accept failed", logging.Problem{
				Event:  "ipc_accept_failed",
				Impact: "CLI commands may fail to reach the daemon",
				Hint:   "check socket permissions and restart the daemon if needed",
			}, logging.Error(err))
			continue
		}
		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		s.wg.Go(func() {
			defer s.untrack(conn)
			s.rpc.ServeCodec(jsonrpc.NewServerCodec(conn))
		})
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// Close stops accepting, disconnects clients and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	_ = s.listener.Close()

	s.mu.Lock()
	s.closed = true
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()

	if err := os.RemoveAll(s.path); err != nil {
		logging.Warn(s.logger, "failed to remove socket", logging.Problem{
			Event:  "ipc_socket_cleanup_failed",
			Impact: "a stale socket may confuse the next start",
			Hint:   "remove the socket file manually",
		}, logging.String("socket", s.path), logging.Error(err))
	}
}
