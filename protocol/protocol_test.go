package protocol

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// step is one scripted result of a Read call.
type step struct {
	data []byte
	err  error
}

// scriptedReader replays a fixed sequence of read results, then reports io.EOF.
// Each step's data is returned whole, so steps model arrival boundaries.
type scriptedReader struct {
	steps []step
}

func (r *scriptedReader) Read(p []byte) (int, error) {
	if len(r.steps) == 0 {
		return 0, io.EOF
	}

	s := &r.steps[0]
	n := copy(p, s.data)
	s.data = s.data[n:]
	if len(s.data) > 0 {
		return n, nil
	}

	err := s.err
	r.steps = r.steps[1:]
	return n, err
}

// frame returns the wire bytes of p.
func frame(t *testing.T, p Packet) []byte {
	t.Helper()
	b, err := MarshalPacket(p)
	require.NoError(t, err)
	return b
}

// rawEnvelope frames an arbitrary id and payload.
func rawEnvelope(id uint64, payload []byte) []byte {
	b := AppendVarInt(nil, uint64(VarIntLen(id)+len(payload)))
	b = AppendVarInt(b, id)
	return append(b, payload...)
}
