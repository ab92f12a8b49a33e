package stream

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/go-slp/protocol"
)

func newPair(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	c := New(server, Config{WriteTimeout: time.Second})
	t.Cleanup(func() {
		_ = c.Close()
		_ = client.Close()
	})

	return c, client
}

// readAll reads from c until n bytes arrived or the pump reports an error.
func readAll(t *testing.T, c *Conn, n int) ([]byte, error) {
	t.Helper()

	var got []byte
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < n && time.Now().Before(deadline) {
		buf := make([]byte, n-len(got))
		k, err := c.Read(buf)
		got = append(got, buf[:k]...)
		if err != nil && !errors.Is(err, protocol.ErrWouldBlock) {
			return got, err
		}
	}

	return got, nil
}

func TestConn_Read(t *testing.T) {
	t.Run("reports would-block at once when nothing arrived", func(t *testing.T) {
		c, _ := newPair(t)

		start := time.Now()
		n, err := c.Read(make([]byte, 1))

		assert.Equal(t, 0, n)
		assert.ErrorIs(t, err, protocol.ErrWouldBlock)
		assert.Less(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("returns bytes once they arrive", func(t *testing.T) {
		c, client := newPair(t)

		go func() {
			_, _ = client.Write([]byte{0x01, 0x00})
		}()

		got, err := readAll(t, c, 2)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x01, 0x00}, got)
	})

	t.Run("passes end of stream through after buffered bytes", func(t *testing.T) {
		c, client := newPair(t)

		go func() {
			_, _ = client.Write([]byte{0x07})
			_ = client.Close()
		}()

		got, err := readAll(t, c, 2)
		assert.Equal(t, []byte{0x07}, got)
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("codec sees no packet on an idle connection", func(t *testing.T) {
		c, _ := newPair(t)

		_, err := protocol.DecodeServerbound(protocol.StateStatus, c)
		assert.ErrorIs(t, err, protocol.ErrNoPacketAvailable)
	})
}

func TestConn_FrameReady(t *testing.T) {
	t.Run("waits for the whole frame", func(t *testing.T) {
		c, client := newPair(t)
		frame, err := protocol.MarshalPacket(&protocol.PingRequest{Payload: 99})
		require.NoError(t, err)

		assert.False(t, c.FrameReady())

		_, err = client.Write(frame[:4])
		require.NoError(t, err)
		time.Sleep(20 * time.Millisecond)
		assert.False(t, c.FrameReady())

		_, err = client.Write(frame[4:])
		require.NoError(t, err)
		require.Eventually(t, c.FrameReady, 2*time.Second, 5*time.Millisecond)

		p, err := protocol.DecodeServerbound(protocol.StateStatus, c)
		require.NoError(t, err)
		assert.Equal(t, &protocol.PingRequest{Payload: 99}, p)
	})

	t.Run("is ready once the peer hangs up", func(t *testing.T) {
		c, client := newPair(t)
		require.NoError(t, client.Close())

		require.Eventually(t, c.FrameReady, 2*time.Second, 5*time.Millisecond)
	})
}

func TestConn_Close(t *testing.T) {
	t.Run("stops the pump and fails later reads", func(t *testing.T) {
		c, _ := newPair(t)
		require.NoError(t, c.Close())

		require.Eventually(t, func() bool {
			_, err := c.Read(make([]byte, 1))
			return err != nil && !errors.Is(err, protocol.ErrWouldBlock)
		}, 2*time.Second, 5*time.Millisecond)
	})
}

func TestConn_WriteFlush(t *testing.T) {
	c, client := newPair(t)

	_, err := c.Write([]byte{0x09, 0x01})
	require.NoError(t, err)

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 2)
		_, _ = io.ReadFull(client, buf)
		done <- buf
	}()

	require.NoError(t, c.Flush())

	select {
	case got := <-done:
		assert.Equal(t, []byte{0x09, 0x01}, got)
	case <-time.After(time.Second):
		t.Fatal("flushed bytes never arrived")
	}
}

func TestConn_FlushEmpty(t *testing.T) {
	c, _ := newPair(t)
	assert.NoError(t, c.Flush())
}
