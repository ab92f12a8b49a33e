// Package pingclient queries a server the way a game client's server browser
// does: handshake, status request, then a ping whose echo measures latency.
package pingclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/cyberinferno/go-slp/protocol"
	"github.com/cyberinferno/go-slp/status"
)

// Phase is the step of the exchange a ping is in.
type Phase int

const (
	Connecting     Phase = iota // Dialing the server
	Handshaking                 // Sending the handshake and status request
	AwaitingStatus              // Waiting for the status response
	AwaitingPong                // Ping sent, waiting for the echo
	Done                        // Exchange finished, successfully or not
)

// String returns a human-readable name for the phase.
func (p Phase) String() string {
	switch p {
	case Connecting:
		return "Connecting"
	case Handshaking:
		return "Handshaking"
	case AwaitingStatus:
		return "AwaitingStatus"
	case AwaitingPong:
		return "AwaitingPong"
	case Done:
		return "Done"
	default:
		return "Unknown"
	}
}

// PhaseEvent is emitted whenever a ping moves to another phase.
type PhaseEvent struct {
	Phase     Phase     // The new phase
	Address   string    // The server address
	Timestamp time.Time // When the phase started
	Error     error     // Non-nil on the final event of a failed ping
}

// PhaseHandler is called synchronously from Ping for every phase change.
type PhaseHandler func(event PhaseEvent)

// ErrPongMismatch is returned when the server echoes a different ping payload.
var ErrPongMismatch = errors.New("pong payload does not match ping")

// Config holds the client settings.
type Config struct {
	// Address is the "host:port" to query.
	Address string
	// ProtocolVersion is sent in the handshake.
	ProtocolVersion uint64
	// ConnectionTimeout bounds dialing.
	ConnectionTimeout time.Duration
	// Timeout bounds the whole exchange after connecting; 0 means only ctx applies.
	Timeout time.Duration
}

// DefaultConfig returns a Config for address with 5 second timeouts and the
// default protocol version.
func DefaultConfig(address string) Config {
	return Config{
		Address:           address,
		ProtocolVersion:   status.DefaultProtocol,
		ConnectionTimeout: 5 * time.Second,
		Timeout:           5 * time.Second,
	}
}

// Result is the outcome of one successful ping.
type Result struct {
	Address string
	Status  status.Data
	RawJSON string
	Latency time.Duration
}

// Client pings one server. It is safe for concurrent use; every Ping uses its own
// connection.
type Client struct {
	config Config

	mu      sync.RWMutex
	onPhase PhaseHandler
}

// New creates a Client.
func New(config Config) *Client {
	return &Client{config: config}
}

// OnPhase registers the handler for phase changes, replacing any previous one.
// Pass nil to clear it.
func (c *Client) OnPhase(handler PhaseHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPhase = handler
}

// Ping performs one full exchange.
//
// Parameters:
//   - ctx: Cancels dialing and bounds the exchange through its deadline
//
// Returns:
//   - The decoded status and the measured round trip of the ping
//   - An error if any step fails or the pong does not echo the ping
func (c *Client) Ping(ctx context.Context) (*Result, error) {
	result, err := c.ping(ctx)
	c.emit(Done, err)
	return result, err
}

func (c *Client) ping(ctx context.Context) (*Result, error) {
	host, port, err := splitAddress(c.config.Address)
	if err != nil {
		return nil, err
	}

	c.emit(Connecting, nil)
	dialer := net.Dialer{Timeout: c.config.ConnectionTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.config.Address)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", c.config.Address, err)
	}
	defer conn.Close()

	if deadline, ok := c.deadline(ctx); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, err
		}
	}

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	c.emit(Handshaking, nil)
	handshake := &protocol.Handshake{
		ProtocolVersion: c.config.ProtocolVersion,
		ServerAddress:   host,
		ServerPort:      port,
		NextState:       protocol.StateStatus,
	}
	if err := send(w, handshake, &protocol.StatusRequest{}); err != nil {
		return nil, err
	}

	c.emit(AwaitingStatus, nil)
	response, err := receive[*protocol.StatusResponse](r, "StatusResponse")
	if err != nil {
		return nil, err
	}

	result := &Result{Address: c.config.Address, RawJSON: response.JSON}
	if err := json.Unmarshal([]byte(response.JSON), &result.Status); err != nil {
		return nil, fmt.Errorf("decode status document: %w", err)
	}

	c.emit(AwaitingPong, nil)
	start := time.Now()
	payload := uint64(start.UnixMilli())
	if err := send(w, &protocol.PingRequest{Payload: payload}); err != nil {
		return nil, err
	}

	pong, err := receive[*protocol.PongResponse](r, "PongResponse")
	if err != nil {
		return nil, err
	}

	result.Latency = time.Since(start)
	if pong.Payload != payload {
		return nil, fmt.Errorf("%w: sent %d, got %d", ErrPongMismatch, payload, pong.Payload)
	}

	return result, nil
}

func (c *Client) deadline(ctx context.Context) (time.Time, bool) {
	deadline, ok := ctx.Deadline()
	if c.config.Timeout > 0 {
		if own := time.Now().Add(c.config.Timeout); !ok || own.Before(deadline) {
			return own, true
		}
	}

	return deadline, ok
}

func (c *Client) emit(phase Phase, err error) {
	c.mu.RLock()
	handler := c.onPhase
	c.mu.RUnlock()

	if handler != nil {
		handler(PhaseEvent{Phase: phase, Address: c.config.Address, Timestamp: time.Now(), Error: err})
	}
}

func send(w *bufio.Writer, packets ...protocol.Packet) error {
	for _, p := range packets {
		if err := protocol.WritePacket(w, p); err != nil {
			return err
		}
	}

	if err := w.Flush(); err != nil {
		return &protocol.IOError{Op: "flush", Err: err}
	}

	return nil
}

// receive reads one clientbound packet and checks it is a T. The connection is
// blocking, so an empty first read means the server closed it.
func receive[T protocol.Clientbound](r *bufio.Reader, name string) (T, error) {
	var zero T

	p, err := protocol.DecodeClientbound(protocol.StateStatus, r)
	if errors.Is(err, protocol.ErrNoPacketAvailable) {
		return zero, fmt.Errorf("server closed the connection before sending %s", name)
	}

	if err != nil {
		return zero, err
	}

	typed, ok := p.(T)
	if !ok {
		return zero, &protocol.UnexpectedPacketError{Got: p.String(), Expected: name}
	}

	return typed, nil
}

func splitAddress(address string) (string, uint16, error) {
	host, portText, err := net.SplitHostPort(address)
	if err != nil {
		return "", 0, fmt.Errorf("invalid address %q: %w", address, err)
	}

	port, err := strconv.ParseUint(portText, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in %q: %w", address, err)
	}

	return host, uint16(port), nil
}
