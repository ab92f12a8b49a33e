package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"
)

// MaxStringBytes is the largest byte length accepted for a String field:
// 32767 UTF-16 code units of at most three UTF-8 bytes each, plus slack.
const MaxStringBytes = 32767*3 + 3

// StringLen returns the encoded length of s as a String field.
func StringLen(s string) int {
	return VarIntLen(uint64(len(s))) + len(s)
}

// ReadString reads a VarInt length followed by that many UTF-8 bytes.
//
// Parameters:
//   - r: The source reader
//
// Returns:
//   - The decoded string
//   - ErrInvalidUTF8, a *MalformedPacketError for oversized lengths, or an *IOError
func ReadString(r io.Reader) (string, error) {
	length, err := ReadVarInt(r)
	if err != nil {
		return "", err
	}

	if length > MaxStringBytes {
		return "", &MalformedPacketError{Reason: fmt.Sprintf("string length %d exceeds %d", length, MaxStringBytes)}
	}

	data := make([]byte, length)
	if err := readFull(r, data); err != nil {
		return "", &IOError{Op: "read string", Err: err}
	}

	if !utf8.Valid(data) {
		return "", ErrInvalidUTF8
	}

	return string(data), nil
}

// WriteString writes s as a VarInt byte length followed by its bytes.
func WriteString(w io.Writer, s string) error {
	if _, err := WriteVarInt(w, uint64(len(s))); err != nil {
		return err
	}

	if _, err := io.WriteString(w, s); err != nil {
		return &IOError{Op: "write string", Err: err}
	}

	return nil
}

// ReadUint16 reads a big-endian unsigned 16-bit integer.
func ReadUint16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if err := readFull(r, buf[:]); err != nil {
		return 0, &IOError{Op: "read u16", Err: err}
	}

	return binary.BigEndian.Uint16(buf[:]), nil
}

// WriteUint16 writes v as a big-endian unsigned 16-bit integer.
func WriteUint16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	if _, err := w.Write(buf[:]); err != nil {
		return &IOError{Op: "write u16", Err: err}
	}

	return nil
}

// ReadUint64 reads a big-endian unsigned 64-bit integer.
func ReadUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if err := readFull(r, buf[:]); err != nil {
		return 0, &IOError{Op: "read u64", Err: err}
	}

	return binary.BigEndian.Uint64(buf[:]), nil
}

// WriteUint64 writes v as a big-endian unsigned 64-bit integer.
func WriteUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	if _, err := w.Write(buf[:]); err != nil {
		return &IOError{Op: "write u64", Err: err}
	}

	return nil
}
