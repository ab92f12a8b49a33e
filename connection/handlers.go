package connection

import (
	"context"
	"fmt"

	"github.com/cyberinferno/go-slp/logger"
	"github.com/cyberinferno/go-slp/protocol"
)

// handleHandshake reads the handshake and moves to the requested state. No
// response is sent in this phase.
func (c *Connection) handleHandshake() error {
	p, err := c.Receive()
	if err != nil {
		return err
	}

	handshake, ok := p.(*protocol.Handshake)
	if !ok {
		return &protocol.UnexpectedPacketError{Got: p.String(), Expected: "Handshake"}
	}

	c.handshake = handshake
	c.state = handshake.NextState

	c.log.Debug("handshake received",
		logger.Any("protocol", handshake.ProtocolVersion),
		logger.Str("server", handshake.ServerAddress),
		logger.Any("port", handshake.ServerPort),
		logger.Str("next_state", handshake.NextState.String()),
	)

	return nil
}

// handleStatus answers a status request, staying open for an optional ping, or
// answers a ping with a pong and ends the exchange.
func (c *Connection) handleStatus(ctx context.Context) error {
	p, err := c.Receive()
	if err != nil {
		return err
	}

	switch p := p.(type) {
	case *protocol.StatusRequest:
		payload, err := c.statusPayload(ctx)
		if err != nil {
			return err
		}

		return c.Send(&protocol.StatusResponse{JSON: string(payload)})
	case *protocol.PingRequest:
		if err := c.Send(&protocol.PongResponse{Payload: p.Payload}); err != nil {
			return err
		}

		return &protocol.ConnectionAbortedError{Reason: "status exchange complete"}
	default:
		return &protocol.UnexpectedPacketError{Got: p.String(), Expected: "StatusRequest or PingRequest"}
	}
}

// statusPayload asks the StatusSource for the document, giving it at most
// statusTimeout so a slow source cannot hold up the tick loop.
func (c *Connection) statusPayload(ctx context.Context) ([]byte, error) {
	if c.status == nil {
		return nil, fmt.Errorf("no status source configured")
	}

	if c.statusTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.statusTimeout)
		defer cancel()
	}

	payload, err := c.status.StatusPayload(ctx)
	if err != nil {
		return nil, fmt.Errorf("build status payload: %w", err)
	}

	return payload, nil
}
