// Package connection implements the per-connection protocol state machine:
// one Tick decodes one packet for the current state, handles it and optionally
// answers, moving the connection forward from Handshake to Status.
package connection

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/cyberinferno/go-slp/logger"
	"github.com/cyberinferno/go-slp/protocol"
)

// DefaultTimeoutTicks is how many consecutive ticks without progress a connection
// may skip before it times out: 5 seconds at 20 ticks per second.
const DefaultTimeoutTicks = 20 * 5

// DefaultStatusTimeout bounds one status payload build: one tick at 20 ticks per
// second.
const DefaultStatusTimeout = 50 * time.Millisecond

// StatusSource supplies the pre-serialized JSON body of a status response.
type StatusSource interface {
	StatusPayload(ctx context.Context) ([]byte, error)
}

// StatusSourceFunc adapts a function to StatusSource.
type StatusSourceFunc func(ctx context.Context) ([]byte, error)

// StatusPayload implements StatusSource.
func (f StatusSourceFunc) StatusPayload(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

// frameReadier is implemented by streams that can tell whether the next packet
// can be decoded without waiting for more bytes.
type frameReadier interface {
	FrameReady() bool
}

// Observer is notified about packets a connection handles. It is optional.
type Observer interface {
	PacketHandled(state protocol.State, packet string)
}

// Info is a point-in-time snapshot of a connection for monitoring.
type Info struct {
	ID              uint32 `json:"id"`
	RemoteAddr      string `json:"remote_addr"`
	State           string `json:"state"`
	SkippedTicks    uint32 `json:"skipped_ticks"`
	ProtocolVersion uint64 `json:"protocol_version,omitempty"`
	ServerAddress   string `json:"server_address,omitempty"`
}

// Connection is one accepted stream and its protocol state. It is mutated only by
// its own Tick and must not be shared between goroutines.
type Connection struct {
	id           uint32
	stream       protocol.Stream
	addr         net.Addr
	state        protocol.State
	skippedTicks uint32
	timeoutTicks uint32
	handshake    *protocol.Handshake

	status        StatusSource
	statusTimeout time.Duration
	observer      Observer
	log      logger.Logger
}

// Option configures a Connection.
type Option func(*Connection)

// WithStatusSource sets the collaborator that builds status documents.
func WithStatusSource(s StatusSource) Option {
	return func(c *Connection) {
		c.status = s
	}
}

// WithStatusTimeout bounds how long a tick may wait for the StatusSource,
// normally one tick period. 0 removes the bound.
func WithStatusTimeout(d time.Duration) Option {
	return func(c *Connection) {
		c.statusTimeout = d
	}
}

// WithTimeoutTicks overrides DefaultTimeoutTicks.
func WithTimeoutTicks(n uint32) Option {
	return func(c *Connection) {
		if n > 0 {
			c.timeoutTicks = n
		}
	}
}

// WithLogger sets the logger; entries carry the connection id and remote address.
func WithLogger(l logger.Logger) Option {
	return func(c *Connection) {
		c.log = l
	}
}

// WithObserver sets an Observer.
func WithObserver(o Observer) Option {
	return func(c *Connection) {
		c.observer = o
	}
}

// New creates a Connection in the Handshake state with no skipped ticks.
//
// Parameters:
//   - id: Identifier used in logs and monitoring
//   - stream: The transport; the Connection takes exclusive ownership of it
//   - addr: The peer address, may be nil
//   - opts: Optional settings
//
// Returns:
//   - A new *Connection
func New(id uint32, stream protocol.Stream, addr net.Addr, opts ...Option) *Connection {
	c := &Connection{
		id:            id,
		stream:        stream,
		addr:          addr,
		state:         protocol.StateHandshake,
		timeoutTicks:  DefaultTimeoutTicks,
		statusTimeout: DefaultStatusTimeout,
		log:           logger.NewNopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.log = c.log.With(logger.Uint("conn_id", uint64(id)), logger.Str("remote", c.remote()))
	return c
}

// ID returns the connection id.
func (c *Connection) ID() uint32 { return c.id }

// State returns the current protocol state.
func (c *Connection) State() protocol.State { return c.state }

// SkippedTicks returns the number of consecutive ticks without progress.
func (c *Connection) SkippedTicks() uint32 { return c.skippedTicks }

// RemoteAddr returns the peer address.
func (c *Connection) RemoteAddr() net.Addr { return c.addr }

// Handshake returns the handshake the peer sent, or nil before it arrived.
func (c *Connection) Handshake() *protocol.Handshake { return c.handshake }

// Info returns a monitoring snapshot.
func (c *Connection) Info() Info {
	info := Info{
		ID:           c.id,
		RemoteAddr:   c.remote(),
		State:        c.state.String(),
		SkippedTicks: c.skippedTicks,
	}

	if c.handshake != nil {
		info.ProtocolVersion = c.handshake.ProtocolVersion
		info.ServerAddress = c.handshake.ServerAddress
	}

	return info
}

// Tick makes one attempt to decode, handle and answer a single packet.
//
// A successful tick resets the skipped tick counter. Every other tick except the
// final abort, including one that found no packet, increments it; once it reaches the timeout the tick
// fails with an error wrapping protocol.ErrTimedOut instead of the original error.
//
// Returns:
//   - nil on progress
//   - protocol.ErrNoPacketAvailable when nothing arrived
//   - a *protocol.ConnectionAbortedError once the exchange is complete
//   - an error wrapping protocol.ErrTimedOut, or any decode, handler or write error
func (c *Connection) Tick(ctx context.Context) error {
	var err error
	switch c.state {
	case protocol.StateHandshake:
		err = c.handleHandshake()
	case protocol.StateStatus:
		err = c.handleStatus(ctx)
	default:
		err = &protocol.UnsupportedStateError{State: c.state}
	}

	if err == nil {
		c.skippedTicks = 0
		return nil
	}

	if protocol.IsAborted(err) {
		return err
	}

	c.skippedTicks++
	if c.skippedTicks >= c.timeoutTicks {
		return fmt.Errorf("%w after %d skipped ticks (last: %v)", protocol.ErrTimedOut, c.skippedTicks, err)
	}

	return err
}

// Receive decodes the next packet for the current state. When the stream can
// tell that only part of a packet has arrived, nothing is consumed and
// protocol.ErrNoPacketAvailable is returned, so a tick never waits for the rest.
func (c *Connection) Receive() (protocol.Serverbound, error) {
	if fr, ok := c.stream.(frameReadier); ok && !fr.FrameReady() {
		return nil, protocol.ErrNoPacketAvailable
	}

	p, err := protocol.DecodeServerbound(c.state, c.stream)
	if err != nil {
		return nil, err
	}

	if c.observer != nil {
		c.observer.PacketHandled(c.state, p.String())
	}

	return p, nil
}

// Send writes p and flushes the stream.
func (c *Connection) Send(p protocol.Clientbound) error {
	if err := protocol.WritePacket(c.stream, p); err != nil {
		return err
	}

	if err := c.stream.Flush(); err != nil {
		return &protocol.IOError{Op: "flush", Err: err}
	}

	return nil
}

// Close closes the stream if it supports closing.
func (c *Connection) Close() error {
	if closer, ok := c.stream.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}

func (c *Connection) remote() string {
	if c.addr == nil {
		return ""
	}

	return c.addr.String()
}
