// Package tcpserver accepts TCP connections and hands each one, wrapped in a
// protocol connection, to the tick loop. Accepting runs on its own goroutine so
// a slow tick loop never delays connection setup.
package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/cyberinferno/go-slp/connection"
	"github.com/cyberinferno/go-slp/idgenerator"
	"github.com/cyberinferno/go-slp/logger"
	"github.com/cyberinferno/go-slp/metrics"
)

// NewConnectionFunc builds a Connection for an accepted net.Conn. The returned
// Connection owns conn.
type NewConnectionFunc func(id uint32, conn net.Conn) *connection.Connection

// ConnectionSink receives newly accepted connections. Push reports false when the
// sink no longer accepts connections; the server then closes the connection.
type ConnectionSink interface {
	Push(c *connection.Connection) bool
}

// TCPServer listens on Addr and pushes one Connection per accepted socket into
// Sink. Ids come from IdGenerator. When Limiter is set, sockets accepted beyond
// its rate are closed before a Connection is built for them.
type TCPServer struct {
	Logger        logger.Logger
	Name          string
	Addr          string
	Listener      net.Listener
	Running       atomic.Bool
	NewConnection NewConnectionFunc
	Sink          ConnectionSink
	IdGenerator   *idgenerator.IdGenerator
	Limiter       *rate.Limiter
	Metrics       *metrics.Metrics
}

// Start binds Addr, unless Listener is already set, and runs the accept loop in a
// goroutine.
//
// Returns:
//   - An error if the server is already running or if listening on Addr fails
func (s *TCPServer) Start() error {
	if s.Running.Load() {
		s.Logger.Error("server already running")
		return fmt.Errorf("server %s already running", s.Name)
	}

	if s.Listener == nil {
		ln, err := net.Listen("tcp", s.Addr)
		if err != nil {
			s.Logger.Error("server failed to start", logger.Err(err))
			return fmt.Errorf("server %s failed to start: %w", s.Name, err)
		}

		s.Listener = ln
	}

	if s.IdGenerator == nil {
		s.IdGenerator = idgenerator.NewIdGenerator(0)
	}

	s.Running.Store(true)

	s.Logger.Info(fmt.Sprintf("%s server started", s.Name), logger.Str("addr", s.Listener.Addr().String()))
	go s.AcceptLoop()

	return nil
}

// Stop stops accepting and closes the listener, logging the last id handed out.
// Connections already handed to the sink are owned by it and are not touched.
// Safe to call when the server is not running.
func (s *TCPServer) Stop() {
	if !s.Running.Swap(false) {
		s.Logger.Info(fmt.Sprintf("%s server not running", s.Name))
		return
	}

	if s.Listener != nil {
		_ = s.Listener.Close()
	}

	s.Logger.Info(fmt.Sprintf("%s server stopped", s.Name), logger.Uint("last_conn_id", uint64(s.IdGenerator.Last())))
}

// Serve starts the server, blocks until ctx is done and then stops it.
//
// Parameters:
//   - ctx: Cancelling it stops the server
//
// Returns:
//   - The error from Start, or nil after a clean stop
func (s *TCPServer) Serve(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	s.Stop()
	return nil
}

// AcceptLoop accepts connections until the server is stopped. Each one that
// passes the limiter gets the next id, is wrapped by NewConnection and pushed
// into Sink.
func (s *TCPServer) AcceptLoop() {
	for s.Running.Load() {
		conn, err := s.Listener.Accept()
		if err != nil {
			if !s.Running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}

			s.Logger.Error(fmt.Sprintf("%s server accept error", s.Name), logger.Err(err))
			continue
		}

		if s.Limiter != nil && !s.Limiter.Allow() {
			s.Metrics.ConnectionRejected()
			s.Logger.Debug("accept rate exceeded", logger.Str("remote", conn.RemoteAddr().String()))
			_ = conn.Close()
			continue
		}

		id := s.IdGenerator.Id()
		c := s.NewConnection(id, conn)
		if !s.Sink.Push(c) {
			s.Logger.Warn("rejecting connection after shutdown", logger.Uint("conn_id", uint64(id)))
			_ = c.Close()
			continue
		}

		s.Metrics.ConnectionAccepted()
		s.Logger.Debug("connection accepted",
			logger.Uint("conn_id", uint64(id)),
			logger.Str("remote", conn.RemoteAddr().String()),
		)
	}
}
