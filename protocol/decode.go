package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// DecodeServerbound reads one envelope from r and decodes it as a packet of the
// given state. Ids are only looked up within that state.
//
// Parameters:
//   - state: The connection's current state
//   - r: The source reader
//
// Returns:
//   - The decoded packet
//   - ErrNoPacketAvailable when nothing has arrived, *UnknownPacketError for ids the
//     state does not define, *UnknownNextStateError for a bad handshake, or a read error
func DecodeServerbound(state State, r io.Reader) (Serverbound, error) {
	if state != StateHandshake && state != StateStatus {
		return nil, &UnsupportedStateError{State: state}
	}

	env, err := ReadEnvelope(r)
	if err != nil {
		return nil, err
	}

	var p Serverbound
	switch state {
	case StateHandshake:
		if env.ID != HandshakeID {
			return nil, &UnknownPacketError{State: state, ID: env.ID}
		}
		p = &Handshake{}
	case StateStatus:
		switch env.ID {
		case StatusRequestID:
			p = &StatusRequest{}
		case PingRequestID:
			p = &PingRequest{}
		default:
			return nil, &UnknownPacketError{State: state, ID: env.ID}
		}
	}

	if err := decodePayload(p, env.Payload); err != nil {
		return nil, err
	}

	return p, nil
}

// DecodeClientbound is the client-side mirror of DecodeServerbound.
func DecodeClientbound(state State, r io.Reader) (Clientbound, error) {
	if state != StateStatus {
		return nil, &UnsupportedStateError{State: state}
	}

	env, err := ReadEnvelope(r)
	if err != nil {
		return nil, err
	}

	var p Clientbound
	switch env.ID {
	case StatusResponseID:
		p = &StatusResponse{}
	case PongResponseID:
		p = &PongResponse{}
	default:
		return nil, &UnknownPacketError{State: state, ID: env.ID}
	}

	if err := decodePayload(p, env.Payload); err != nil {
		return nil, err
	}

	return p, nil
}

// decodePayload fills p from payload. A payload shorter than the packet's fields,
// or one with bytes left over, is malformed.
func decodePayload(p Packet, payload []byte) error {
	r := bytes.NewReader(payload)

	var err error
	switch p := p.(type) {
	case *Handshake:
		err = p.decode(r)
	case *StatusRequest:
	case *PingRequest:
		p.Payload, err = ReadUint64(r)
	case *StatusResponse:
		p.JSON, err = ReadString(r)
	case *PongResponse:
		p.Payload, err = ReadUint64(r)
	}

	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return &MalformedPacketError{Reason: fmt.Sprintf("%s payload is truncated", p)}
		}

		return err
	}

	if r.Len() > 0 {
		return &MalformedPacketError{Reason: fmt.Sprintf("%s payload has %d trailing bytes", p, r.Len())}
	}

	return nil
}

func (p *Handshake) decode(r io.Reader) error {
	var err error
	if p.ProtocolVersion, err = ReadVarInt(r); err != nil {
		return err
	}

	if p.ServerAddress, err = ReadString(r); err != nil {
		return err
	}

	if p.ServerPort, err = ReadUint16(r); err != nil {
		return err
	}

	next, err := ReadVarInt(r)
	if err != nil {
		return err
	}

	p.NextState, err = nextState(next)
	return err
}
