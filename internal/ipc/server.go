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

	"memsweep/internal/api"
	"memsweep/internal/daemon"
	"memsweep/internal/logging"
)

// ServiceName is the JSON-RPC service prefix.
const ServiceName = "Memsweep"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "CLI commands may fail to connect"),
					logging.String(logging.FieldErrorHint, "check control socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale control socket may confuse status checks"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	resp.Status = api.FromDaemonStatus(s.daemon.Status(s.ctx))
	return nil
}

func (s *service) Clean(req CleanRequest, resp *CleanResponse) error {
	s.logger.Debug("manual clean requested",
		logging.Strings("actions", req.Actions),
		logging.Bool("wait", req.Wait))
	outcome, err := s.daemon.Clean(s.ctx, req.Actions, req.Wait)
	if err != nil {
		return err
	}
	resp.Started = true
	resp.PassID = outcome.ID
	if req.Wait {
		pass := api.FromOutcome(outcome)
		resp.Pass = &pass
	}
	return nil
}

func (s *service) Configure(req ConfigureRequest, resp *ConfigureResponse) error {
	policy, err := s.daemon.Configure(daemon.PolicyUpdate{
		IntervalMinutes:  req.IntervalMinutes,
		HighUsageEnabled: req.HighUsageEnabled,
		ThresholdPercent: req.ThresholdPercent,
		CooldownMinutes:  req.CooldownMinutes,
		AutoActions:      req.AutoActions,
		ManualActions:    req.ManualActions,
	})
	if err != nil {
		return err
	}
	resp.Policy = api.FromPolicy(policy)
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	outcomes, totals, err := s.daemon.History(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Passes = api.FromOutcomes(outcomes)
	resp.Totals = api.FromTotals(totals)
	return nil
}

func (s *service) Capabilities(_ CapabilitiesRequest, resp *CapabilitiesResponse) error {
	resp.Names = s.daemon.Capabilities()
	return nil
}

func (s *service) Shutdown(_ ShutdownRequest, resp *ShutdownResponse) error {
	s.logger.Info("shutdown requested via IPC",
		logging.String(logging.FieldEventType, "daemon_shutdown_requested"))
	s.daemon.RequestShutdown()
	resp.Stopping = true
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	if err := s.daemon.TestNotification(s.ctx); err != nil {
		resp.Message = err.Error()
		return nil
	}
	resp.Sent = true
	resp.Message = "test notification sent"
	return nil
}
