package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// MaxPacketSize is the largest envelope size accepted: the largest value a
// three-byte VarInt can hold.
const MaxPacketSize = 1<<21 - 1

// Envelope is one framed packet: its id and the raw payload that follows it.
type Envelope struct {
	ID      uint64
	Payload []byte
}

// Stream is a bidirectional byte stream a connection is exclusively bound to.
// Reads may return ErrWouldBlock or (0, nil) when no bytes are ready; writes are
// buffered until Flush.
type Stream interface {
	io.Reader
	io.Writer
	Flush() error
}

// Packet is implemented by every encodable packet.
type Packet interface {
	// ID returns the packet id within the packet's state.
	ID() uint64

	// SizeOf returns the serialized payload length in bytes, excluding the id.
	SizeOf() int

	// WritePayload writes the payload fields to w.
	WritePayload(w io.Writer) error
}

// EnvelopeSize returns the value of the size field for p: the id's encoded length
// plus the payload length.
func EnvelopeSize(p Packet) int {
	return VarIntLen(p.ID()) + p.SizeOf()
}

// FrameReady reports whether b holds enough bytes to decode one envelope without
// waiting for more: the whole frame, or a size prefix that decoding rejects
// anyway (too long, or above MaxPacketSize). An empty b is never ready.
func FrameReady(b []byte) bool {
	var size uint64
	for i, c := range b {
		if i == maxVarIntLen {
			return true
		}

		size |= uint64(c&segmentBits) << (7 * i)
		if c&continueBit == 0 {
			return size > MaxPacketSize || uint64(len(b)-i-1) >= size
		}
	}

	return len(b) >= maxVarIntLen
}

// ReadEnvelopeSize decodes the size field that starts every packet. If the stream
// yields no byte at all for the first read (end of stream, would-block or an
// empty read) it reports ErrNoPacketAvailable instead of a transport failure.
// Failures after the first byte are hard errors.
//
// Parameters:
//   - r: The source reader
//
// Returns:
//   - The size of the id plus payload in bytes
//   - ErrNoPacketAvailable, ErrVarIntTooLarge or an *IOError
func ReadEnvelopeSize(r io.Reader) (uint64, error) {
	var buf [1]byte
	n, err := r.Read(buf[:])
	if n == 0 {
		if err == nil || errors.Is(err, ErrWouldBlock) || errors.Is(err, io.EOF) {
			return 0, ErrNoPacketAvailable
		}

		return 0, &IOError{Op: "read envelope size", Err: err}
	}

	size, _, err := continueVarInt(r, buf[0])
	return size, err
}

// ReadPacketID decodes the packet id that follows the size field. Every failure
// here is a hard error; the stream broke in the middle of a packet.
//
// Returns:
//   - The packet id
//   - The number of bytes the id occupied
//   - ErrVarIntTooLarge or an *IOError
func ReadPacketID(r io.Reader) (uint64, int, error) {
	return readVarInt(r)
}

// ReadEnvelope reads one complete packet: size, id and exactly size-len(id)
// payload bytes.
//
// Parameters:
//   - r: The source reader
//
// Returns:
//   - The envelope
//   - ErrNoPacketAvailable if nothing has arrived yet, a *MalformedPacketError for
//     impossible sizes, or the underlying read error
func ReadEnvelope(r io.Reader) (Envelope, error) {
	size, err := ReadEnvelopeSize(r)
	if err != nil {
		return Envelope{}, err
	}

	if size > MaxPacketSize {
		return Envelope{}, &MalformedPacketError{Reason: fmt.Sprintf("packet size %d exceeds %d", size, MaxPacketSize)}
	}

	id, idLen, err := ReadPacketID(r)
	if err != nil {
		return Envelope{}, err
	}

	if size < uint64(idLen) {
		return Envelope{}, &MalformedPacketError{Reason: fmt.Sprintf("packet size %d is smaller than its id", size)}
	}

	payload := make([]byte, size-uint64(idLen))
	if err := readFull(r, payload); err != nil {
		return Envelope{}, &IOError{Op: "read payload", Err: err}
	}

	return Envelope{ID: id, Payload: payload}, nil
}

// WriteEnvelope writes the size, the id and then lets payload write the body.
// size must equal VarIntLen(id) plus the number of bytes payload writes; it is not
// checked against what is actually written.
//
// Parameters:
//   - w: The destination writer
//   - id: The packet id
//   - size: The precomputed envelope size (see EnvelopeSize)
//   - payload: Writes the payload fields
//
// Returns:
//   - An error if any write fails
func WriteEnvelope(w io.Writer, id uint64, size int, payload func(io.Writer) error) error {
	if _, err := WriteVarInt(w, uint64(size)); err != nil {
		return err
	}

	if _, err := WriteVarInt(w, id); err != nil {
		return err
	}

	return payload(w)
}

// WritePacket frames p and writes it to w.
func WritePacket(w io.Writer, p Packet) error {
	return WriteEnvelope(w, p.ID(), EnvelopeSize(p), p.WritePayload)
}

// MarshalPacket returns the framed bytes of p.
func MarshalPacket(p Packet) ([]byte, error) {
	var buf bytes.Buffer
	if err := WritePacket(&buf, p); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
