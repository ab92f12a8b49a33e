package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPacketAvailable reports that the stream produced no bytes for the start of
	// a packet. It is not a failure: the peer simply has not sent anything yet.
	ErrNoPacketAvailable = errors.New("no packet available")

	// ErrVarIntTooLarge is returned when a VarInt keeps its continuation flag past
	// its fifth byte.
	ErrVarIntTooLarge = errors.New("varint is too large")

	// ErrTimedOut is returned once a connection has skipped too many ticks in a row.
	ErrTimedOut = errors.New("connection timed out")

	// ErrWouldBlock is returned by non-blocking streams when no bytes are ready yet.
	ErrWouldBlock = errors.New("read would block")

	// ErrStalled is returned when a stream keeps producing empty reads in the middle
	// of a packet.
	ErrStalled = errors.New("stream stalled mid-packet")

	// ErrInvalidUTF8 is returned when a String field does not hold valid UTF-8.
	ErrInvalidUTF8 = errors.New("string is not valid utf-8")
)

// IOError wraps a transport failure observed while reading or writing a packet.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// UnexpectedPacketError is returned when a valid packet arrives on a path that
// expected another one.
type UnexpectedPacketError struct {
	Got      string
	Expected string
}

func (e *UnexpectedPacketError) Error() string {
	return fmt.Sprintf("unexpected packet: expected %s, got %s", e.Expected, e.Got)
}

// UnknownPacketError is returned for a packet id that means nothing in the
// current state.
type UnknownPacketError struct {
	State State
	ID    uint64
}

func (e *UnknownPacketError) Error() string {
	return fmt.Sprintf("unknown packet with id 0x%02x in state %s", e.ID, e.State)
}

// UnknownNextStateError is returned when a handshake asks for a state other than
// Status or Login.
type UnknownNextStateError struct {
	Value uint64
}

func (e *UnknownNextStateError) Error() string {
	return fmt.Sprintf("unknown next state: %d", e.Value)
}

// UnsupportedStateError is returned for protocol states this server does not
// implement.
type UnsupportedStateError struct {
	State State
}

func (e *UnsupportedStateError) Error() string {
	return fmt.Sprintf("state %s is not supported", e.State)
}

// MalformedPacketError is returned for envelopes or fields whose declared sizes
// are impossible or exceed protocol limits.
type MalformedPacketError struct {
	Reason string
}

func (e *MalformedPacketError) Error() string {
	return "malformed packet: " + e.Reason
}

// ConnectionAbortedError signals an intentional, expected close, for example after
// a Pong has been sent.
type ConnectionAbortedError struct {
	Reason string
}

func (e *ConnectionAbortedError) Error() string {
	return "connection aborted: " + e.Reason
}

// IsAborted reports whether err is an expected connection close.
func IsAborted(err error) bool {
	var aborted *ConnectionAbortedError
	return errors.As(err, &aborted)
}

// IsFatal reports whether err leaves the connection unusable: transport failures
// and protocol violations. Timeouts and aborts are classified separately by
// callers; ErrNoPacketAvailable is never fatal.
func IsFatal(err error) bool {
	if err == nil || errors.Is(err, ErrNoPacketAvailable) {
		return false
	}

	if errors.Is(err, ErrVarIntTooLarge) || errors.Is(err, ErrInvalidUTF8) {
		return true
	}

	var (
		ioErr         *IOError
		unexpected    *UnexpectedPacketError
		unknownPacket *UnknownPacketError
		unknownState  *UnknownNextStateError
		unsupported   *UnsupportedStateError
		malformed     *MalformedPacketError
	)

	switch {
	case errors.As(err, &ioErr),
		errors.As(err, &unexpected),
		errors.As(err, &unknownPacket),
		errors.As(err, &unknownState),
		errors.As(err, &unsupported),
		errors.As(err, &malformed):
		return true
	}

	return false
}
