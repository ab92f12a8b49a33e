// Package protocol implements the wire format of the server list ping protocol:
// VarInts, the length-prefixed packet envelope, the Handshake and Status packets
// and the error taxonomy used to classify read outcomes.
package protocol

import (
	"errors"
	"io"
)

const (
	segmentBits  = 0x7F
	continueBit  = 0x80
	maxVarIntLen = 5

	// MaxEmptyReads bounds how many consecutive empty reads are retried in the
	// middle of a packet before the read fails with ErrStalled.
	MaxEmptyReads = 64
)

// VarIntLen returns the number of bytes WriteVarInt produces for v.
//
// Parameters:
//   - v: The value to measure
//
// Returns:
//   - The encoded length in bytes, between 1 and 10
func VarIntLen(v uint64) int {
	n := 1
	for v&^segmentBits != 0 {
		v >>= 7
		n++
	}

	return n
}

// AppendVarInt appends the VarInt encoding of v to b and returns the extended slice.
func AppendVarInt(b []byte, v uint64) []byte {
	for v&^segmentBits != 0 {
		b = append(b, byte(v&segmentBits)|continueBit)
		v >>= 7
	}

	return append(b, byte(v))
}

// WriteVarInt writes the VarInt encoding of v to w.
//
// Parameters:
//   - w: The destination writer
//   - v: The value to encode
//
// Returns:
//   - The number of bytes written
//   - An *IOError if the write fails
func WriteVarInt(w io.Writer, v uint64) (int, error) {
	var buf [10]byte
	b := AppendVarInt(buf[:0], v)
	n, err := w.Write(b)
	if err != nil {
		return n, &IOError{Op: "write varint", Err: err}
	}

	return n, nil
}

// ReadVarInt decodes a VarInt from r, one byte at a time. At most five bytes are
// consumed; a fifth byte that still carries the continuation flag fails with
// ErrVarIntTooLarge.
//
// Parameters:
//   - r: The source reader
//
// Returns:
//   - The decoded value
//   - ErrVarIntTooLarge, or an *IOError if the reader fails
func ReadVarInt(r io.Reader) (uint64, error) {
	v, _, err := readVarInt(r)
	return v, err
}

// readVarInt decodes a VarInt and also reports how many bytes it consumed.
func readVarInt(r io.Reader) (uint64, int, error) {
	var buf [1]byte
	if err := readFull(r, buf[:]); err != nil {
		return 0, 0, &IOError{Op: "read varint", Err: err}
	}

	return continueVarInt(r, buf[0])
}

// continueVarInt decodes the rest of a VarInt whose first byte has already been
// read.
func continueVarInt(r io.Reader, first byte) (uint64, int, error) {
	var (
		value    = uint64(first & segmentBits)
		position uint
		buf      = [1]byte{first}
	)

	for n := 1; ; n++ {
		if buf[0]&continueBit == 0 {
			return value, n, nil
		}

		if n == maxVarIntLen {
			return 0, n, ErrVarIntTooLarge
		}

		if err := readFull(r, buf[:]); err != nil {
			return 0, n, &IOError{Op: "read varint", Err: err}
		}

		position += 7
		value |= uint64(buf[0]&segmentBits) << position
	}
}

// readFull fills p from r. Empty reads, either (0, nil) or ErrWouldBlock, are
// retried up to MaxEmptyReads times in a row; io.EOF and every other error end
// the read. A short read after some bytes arrived reports io.ErrUnexpectedEOF.
func readFull(r io.Reader, p []byte) error {
	read, empty := 0, 0
	for read < len(p) {
		n, err := r.Read(p[read:])
		read += n

		if n > 0 {
			empty = 0
		}

		if err != nil && !errors.Is(err, ErrWouldBlock) {
			if read >= len(p) {
				return nil
			}

			if errors.Is(err, io.EOF) && read > 0 {
				return io.ErrUnexpectedEOF
			}

			return err
		}

		if n == 0 {
			empty++
			if empty > MaxEmptyReads {
				return ErrStalled
			}
		}
	}

	return nil
}
