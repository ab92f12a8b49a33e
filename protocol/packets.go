package protocol

import (
	"fmt"
	"io"
)

// Packet ids, scoped by state and direction.
const (
	HandshakeID      uint64 = 0x00
	StatusRequestID  uint64 = 0x00
	PingRequestID    uint64 = 0x01
	StatusResponseID uint64 = 0x00
	PongResponseID   uint64 = 0x01
)

// Serverbound is a packet sent by the client. The set of implementations is closed:
// Handshake, StatusRequest and PingRequest.
type Serverbound interface {
	Packet
	fmt.Stringer
	serverbound()
}

// Clientbound is a packet sent by the server. The set of implementations is closed:
// StatusResponse and PongResponse.
type Clientbound interface {
	Packet
	fmt.Stringer
	clientbound()
}

// Handshake opens every connection and selects the next state.
type Handshake struct {
	ProtocolVersion uint64
	ServerAddress   string
	ServerPort      uint16
	NextState       State
}

func (*Handshake) serverbound() {}

func (*Handshake) ID() uint64 { return HandshakeID }

func (p *Handshake) SizeOf() int {
	return VarIntLen(p.ProtocolVersion) + StringLen(p.ServerAddress) + 2 + VarIntLen(nextStateValue(p.NextState))
}

func (p *Handshake) WritePayload(w io.Writer) error {
	if _, err := WriteVarInt(w, p.ProtocolVersion); err != nil {
		return err
	}

	if err := WriteString(w, p.ServerAddress); err != nil {
		return err
	}

	if err := WriteUint16(w, p.ServerPort); err != nil {
		return err
	}

	_, err := WriteVarInt(w, nextStateValue(p.NextState))
	return err
}

func (p *Handshake) String() string { return "Handshake" }

// StatusRequest asks for the status document. It has no payload.
type StatusRequest struct{}

func (*StatusRequest) serverbound() {}

func (*StatusRequest) ID() uint64                   { return StatusRequestID }
func (*StatusRequest) SizeOf() int                  { return 0 }
func (*StatusRequest) WritePayload(io.Writer) error { return nil }
func (*StatusRequest) String() string               { return "StatusRequest" }

// PingRequest carries an opaque value the server must echo back.
type PingRequest struct {
	Payload uint64
}

func (*PingRequest) serverbound() {}

func (*PingRequest) ID() uint64                       { return PingRequestID }
func (*PingRequest) SizeOf() int                      { return 8 }
func (p *PingRequest) WritePayload(w io.Writer) error { return WriteUint64(w, p.Payload) }
func (*PingRequest) String() string                   { return "PingRequest" }

// StatusResponse carries the pre-serialized JSON status document.
type StatusResponse struct {
	JSON string
}

func (*StatusResponse) clientbound() {}

func (*StatusResponse) ID() uint64 { return StatusResponseID }

// SizeOf returns the length of the JSON string field, including its own VarInt
// length prefix.
func (p *StatusResponse) SizeOf() int { return StringLen(p.JSON) }

func (p *StatusResponse) WritePayload(w io.Writer) error { return WriteString(w, p.JSON) }
func (*StatusResponse) String() string                   { return "StatusResponse" }

// PongResponse echoes a PingRequest's payload verbatim.
type PongResponse struct {
	Payload uint64
}

func (*PongResponse) clientbound() {}

func (*PongResponse) ID() uint64                       { return PongResponseID }
func (*PongResponse) SizeOf() int                      { return 8 }
func (p *PongResponse) WritePayload(w io.Writer) error { return WriteUint64(w, p.Payload) }
func (*PongResponse) String() string                   { return "PongResponse" }
