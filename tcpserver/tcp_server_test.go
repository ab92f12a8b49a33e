package tcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/cyberinferno/go-slp/connection"
	"github.com/cyberinferno/go-slp/logger"
	"github.com/cyberinferno/go-slp/stream"
)

type recordingSink struct {
	mu     sync.Mutex
	conns  []*connection.Connection
	closed bool
}

func (s *recordingSink) Push(c *connection.Connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	s.conns = append(s.conns, c)
	return true
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func newTestServer(sink ConnectionSink) *TCPServer {
	return &TCPServer{
		Logger: logger.NewNopLogger(),
		Name:   "test",
		Addr:   "127.0.0.1:0",
		Sink:   sink,
		NewConnection: func(id uint32, conn net.Conn) *connection.Connection {
			return connection.New(id, stream.New(conn, stream.DefaultConfig()), conn.RemoteAddr())
		},
	}
}

func TestTCPServer_Start(t *testing.T) {
	t.Run("accepts connections and assigns ids", func(t *testing.T) {
		sink := &recordingSink{}
		s := newTestServer(sink)
		require.NoError(t, s.Start())
		defer s.Stop()

		for i := 0; i < 3; i++ {
			conn, err := net.Dial("tcp", s.Listener.Addr().String())
			require.NoError(t, err)
			defer conn.Close()
		}

		require.Eventually(t, func() bool { return sink.count() == 3 }, 2*time.Second, 10*time.Millisecond)

		sink.mu.Lock()
		defer sink.mu.Unlock()
		ids := make([]uint32, 0, 3)
		for _, c := range sink.conns {
			ids = append(ids, c.ID())
			assert.NotNil(t, c.RemoteAddr())
		}
		assert.ElementsMatch(t, []uint32{1, 2, 3}, ids)
	})

	t.Run("fails when already running", func(t *testing.T) {
		s := newTestServer(&recordingSink{})
		require.NoError(t, s.Start())
		defer s.Stop()

		assert.Error(t, s.Start())
	})

	t.Run("fails on an invalid address", func(t *testing.T) {
		s := newTestServer(&recordingSink{})
		s.Addr = "256.0.0.1:bad"

		assert.Error(t, s.Start())
		assert.False(t, s.Running.Load())
	})
}

func TestTCPServer_AcceptLoop(t *testing.T) {
	t.Run("closes connections the sink rejects", func(t *testing.T) {
		sink := &recordingSink{closed: true}
		s := newTestServer(sink)
		require.NoError(t, s.Start())
		defer s.Stop()

		conn, err := net.Dial("tcp", s.Listener.Addr().String())
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, err = conn.Read(make([]byte, 1))
		assert.Error(t, err)
		assert.Zero(t, sink.count())
	})
}

func TestTCPServer_Limiter(t *testing.T) {
	t.Run("closes connections beyond the burst", func(t *testing.T) {
		sink := &recordingSink{}
		s := newTestServer(sink)
		s.Limiter = rate.NewLimiter(0, 1)
		require.NoError(t, s.Start())
		defer s.Stop()

		first, err := net.Dial("tcp", s.Listener.Addr().String())
		require.NoError(t, err)
		defer first.Close()
		require.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 10*time.Millisecond)

		second, err := net.Dial("tcp", s.Listener.Addr().String())
		require.NoError(t, err)
		defer second.Close()

		require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, err = second.Read(make([]byte, 1))
		assert.Error(t, err)
		assert.Equal(t, 1, sink.count())
		assert.Equal(t, uint32(1), s.IdGenerator.Last())
	})
}

func TestTCPServer_Stop(t *testing.T) {
	t.Run("logs the last assigned id", func(t *testing.T) {
		var buf bytes.Buffer
		sink := &recordingSink{}
		s := newTestServer(sink)
		s.Logger = logger.NewZerologLogger(zerolog.New(&buf), "slp", zerolog.InfoLevel)
		require.NoError(t, s.Start())

		for i := 0; i < 2; i++ {
			conn, err := net.Dial("tcp", s.Listener.Addr().String())
			require.NoError(t, err)
			defer conn.Close()
		}
		require.Eventually(t, func() bool { return sink.count() == 2 }, 2*time.Second, 10*time.Millisecond)

		s.Stop()

		lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
		var entry map[string]any
		require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
		assert.Equal(t, "test server stopped", entry["message"])
		assert.Equal(t, float64(2), entry["last_conn_id"])
	})
}

func TestTCPServer_Serve(t *testing.T) {
	t.Run("stops when the context is cancelled", func(t *testing.T) {
		s := newTestServer(&recordingSink{})
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() { done <- s.Serve(ctx) }()

		require.Eventually(t, s.Running.Load, 2*time.Second, 10*time.Millisecond)
		addr := s.Listener.Addr().String()
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("server did not stop")
		}

		assert.False(t, s.Running.Load())
		_, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		assert.Error(t, err)
	})

	t.Run("stop is a no-op when not running", func(t *testing.T) {
		s := newTestServer(&recordingSink{})

		assert.NotPanics(t, s.Stop)
	})
}
