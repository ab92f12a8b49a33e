// Package stream adapts network connections to the non-blocking stream
// abstraction the protocol codec is written against.
package stream

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/cyberinferno/go-slp/protocol"
)

const (
	// DefaultWriteTimeout bounds a single Flush.
	DefaultWriteTimeout = 5 * time.Second

	// MaxBuffered is how many unread bytes the pump holds before it stops reading
	// from the socket: the largest frame plus its size prefix, so any valid
	// packet fits.
	MaxBuffered = protocol.MaxPacketSize + 5

	defaultBufferSize = 4096
)

// Config holds the timing settings of a Conn.
type Config struct {
	// WriteTimeout is the write deadline applied to each Flush; 0 disables it.
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with DefaultWriteTimeout.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: DefaultWriteTimeout,
	}
}

// Conn wraps a net.Conn for a single-threaded tick loop. A pump goroutine reads
// the socket into a buffer, so Read only ever copies what already arrived and
// reports protocol.ErrWouldBlock when nothing did. Only the pump waits on the
// network. Conn is owned by exactly one connection; Read, Write and Flush must
// not be called concurrently.
type Conn struct {
	conn   net.Conn
	config Config
	w      *bufio.Writer

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	err    error
	closed bool
}

// New wraps conn and starts its read pump.
//
// Parameters:
//   - conn: The accepted network connection; Conn takes ownership of it
//   - config: Timing settings
//
// Returns:
//   - A new *Conn
func New(conn net.Conn, config Config) *Conn {
	c := &Conn{
		conn:   conn,
		config: config,
		w:      bufio.NewWriterSize(conn, defaultBufferSize),
	}
	c.cond = sync.NewCond(&c.mu)

	go c.pump()
	return c
}

// pump reads the socket until it fails or the Conn is closed, pausing while
// MaxBuffered bytes are waiting to be read.
func (c *Conn) pump() {
	chunk := make([]byte, defaultBufferSize)
	for {
		c.mu.Lock()
		for len(c.buf) >= MaxBuffered && !c.closed {
			c.cond.Wait()
		}
		closed := c.closed
		c.mu.Unlock()

		if closed {
			return
		}

		n, err := c.conn.Read(chunk)

		c.mu.Lock()
		c.buf = append(c.buf, chunk[:n]...)
		if err != nil {
			c.err = err
		}
		c.mu.Unlock()

		if err != nil {
			return
		}
	}
}

// Read implements io.Reader without waiting. Buffered bytes are returned first;
// an empty buffer reports protocol.ErrWouldBlock while the socket is open and
// the pump's final error, such as io.EOF, once it has stopped.
func (c *Conn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buf) == 0 {
		if c.err != nil {
			return 0, c.err
		}

		return 0, protocol.ErrWouldBlock
	}

	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	if len(c.buf) == 0 {
		c.buf = nil
	}

	c.cond.Signal()
	return n, nil
}

// FrameReady reports whether decoding the next packet can finish without
// waiting: a whole frame is buffered, the buffered size prefix is already
// invalid, or the pump has stopped and no more bytes will come.
func (c *Conn) FrameReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.err != nil || protocol.FrameReady(c.buf)
}

// Write implements io.Writer. Bytes are buffered until Flush.
func (c *Conn) Write(p []byte) (int, error) {
	return c.w.Write(p)
}

// Flush writes any buffered bytes to the connection, bounded by WriteTimeout.
func (c *Conn) Flush() error {
	if c.w.Buffered() == 0 {
		return nil
	}

	if c.config.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
			return err
		}
	}

	return c.w.Flush()
}

// Close closes the underlying connection, which also stops the pump. Unflushed
// and unread bytes are discarded.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.buf = nil
	c.cond.Broadcast()
	c.mu.Unlock()

	return c.conn.Close()
}

// RemoteAddr returns the peer address of the underlying connection.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
