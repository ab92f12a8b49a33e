package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEnvelopeSize(t *testing.T) {
	t.Run("empty stream means no packet", func(t *testing.T) {
		_, err := ReadEnvelopeSize(bytes.NewReader(nil))
		assert.ErrorIs(t, err, ErrNoPacketAvailable)
	})

	t.Run("would-block on first byte means no packet", func(t *testing.T) {
		r := &scriptedReader{steps: []step{{err: ErrWouldBlock}}}
		_, err := ReadEnvelopeSize(r)
		assert.ErrorIs(t, err, ErrNoPacketAvailable)
	})

	t.Run("transport error on first byte is an io error", func(t *testing.T) {
		r := &scriptedReader{steps: []step{{err: errors.New("connection reset")}}}
		_, err := ReadEnvelopeSize(r)

		var ioErr *IOError
		assert.ErrorAs(t, err, &ioErr)
		assert.NotErrorIs(t, err, ErrNoPacketAvailable)
	})

	t.Run("end of stream after first byte is a hard error", func(t *testing.T) {
		_, err := ReadEnvelopeSize(bytes.NewReader([]byte{0x80}))
		assert.NotErrorIs(t, err, ErrNoPacketAvailable)
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("decodes multi-byte size", func(t *testing.T) {
		size, err := ReadEnvelopeSize(bytes.NewReader([]byte{0xac, 0x02}))
		require.NoError(t, err)
		assert.Equal(t, uint64(300), size)
	})
}

func TestReadPacketID(t *testing.T) {
	t.Run("end of stream is never no packet", func(t *testing.T) {
		_, _, err := ReadPacketID(bytes.NewReader(nil))
		assert.NotErrorIs(t, err, ErrNoPacketAvailable)

		var ioErr *IOError
		assert.ErrorAs(t, err, &ioErr)
	})

	t.Run("reports consumed length", func(t *testing.T) {
		id, n, err := ReadPacketID(bytes.NewReader([]byte{0x80, 0x01}))
		require.NoError(t, err)
		assert.Equal(t, uint64(128), id)
		assert.Equal(t, 2, n)
	})
}

func TestReadEnvelope(t *testing.T) {
	t.Run("reads id and exact payload", func(t *testing.T) {
		data := append(rawEnvelope(0x01, []byte{1, 2, 3}), 0xff)
		r := bytes.NewReader(data)

		env, err := ReadEnvelope(r)
		require.NoError(t, err)
		assert.Equal(t, uint64(0x01), env.ID)
		assert.Equal(t, []byte{1, 2, 3}, env.Payload)
		assert.Equal(t, 1, r.Len(), "bytes of the next packet stay unread")
	})

	t.Run("truncated payload is an io error", func(t *testing.T) {
		data := rawEnvelope(0x01, []byte{1, 2, 3})
		_, err := ReadEnvelope(bytes.NewReader(data[:len(data)-1]))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		assert.True(t, IsFatal(err))
	})

	t.Run("size smaller than id is malformed", func(t *testing.T) {
		_, err := ReadEnvelope(bytes.NewReader([]byte{0x01, 0x80, 0x01}))

		var malformed *MalformedPacketError
		assert.ErrorAs(t, err, &malformed)
	})

	t.Run("oversized packet is malformed", func(t *testing.T) {
		data := AppendVarInt(nil, MaxPacketSize+1)
		_, err := ReadEnvelope(bytes.NewReader(data))

		var malformed *MalformedPacketError
		assert.ErrorAs(t, err, &malformed)
	})
}

func TestWriteEnvelope(t *testing.T) {
	t.Run("writes size, id then payload", func(t *testing.T) {
		var buf bytes.Buffer
		err := WriteEnvelope(&buf, 0x01, 9, func(w io.Writer) error {
			return WriteUint64(w, 12345)
		})
		require.NoError(t, err)
		assert.Equal(t, []byte{0x09, 0x01, 0, 0, 0, 0, 0, 0, 0x30, 0x39}, buf.Bytes())
	})

	t.Run("payload errors are returned", func(t *testing.T) {
		err := WriteEnvelope(io.Discard, 0x00, 1, func(io.Writer) error {
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("envelope size counts id and payload", func(t *testing.T) {
		pong := &PongResponse{Payload: 1}
		assert.Equal(t, 9, EnvelopeSize(pong))

		json := string(bytes.Repeat([]byte("a"), 200))
		status := &StatusResponse{JSON: json}
		assert.Equal(t, 1+2+200, EnvelopeSize(status))

		b := frame(t, status)
		size, err := ReadEnvelopeSize(bytes.NewReader(b))
		require.NoError(t, err)
		assert.Equal(t, uint64(EnvelopeSize(status)), size)
		assert.Len(t, b, VarIntLen(size)+int(size))
	})
}

func TestFrameReady(t *testing.T) {
	full, err := MarshalPacket(&PingRequest{Payload: 7})
	require.NoError(t, err)

	tests := []struct {
		name string
		b    []byte
		want bool
	}{
		{name: "empty buffer", b: nil, want: false},
		{name: "size prefix only", b: full[:1], want: false},
		{name: "partial payload", b: full[:len(full)-1], want: false},
		{name: "whole frame", b: full, want: true},
		{name: "whole frame and more", b: append(append([]byte{}, full...), 0x01), want: true},
		{name: "unterminated size prefix", b: []byte{0x80, 0x80}, want: false},
		{name: "size prefix too long", b: []byte{0x80, 0x80, 0x80, 0x80, 0x80}, want: true},
		{name: "size above the limit", b: AppendVarInt(nil, MaxPacketSize+1), want: true},
		{name: "zero size", b: []byte{0x00}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FrameReady(tt.b))
		})
	}
}
