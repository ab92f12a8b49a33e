package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		for _, s := range []string{"", "localhost", "§cHello §b§lWORLD!", "日本語のサーバー", "emoji 🎮"} {
			var buf bytes.Buffer
			require.NoError(t, WriteString(&buf, s))
			assert.Equal(t, StringLen(s), buf.Len())

			got, err := ReadString(&buf)
			require.NoError(t, err)
			assert.Equal(t, s, got)
		}
	})

	t.Run("invalid utf-8 fails", func(t *testing.T) {
		_, err := ReadString(bytes.NewReader([]byte{0x02, 0xc3, 0x28}))
		assert.ErrorIs(t, err, ErrInvalidUTF8)
		assert.True(t, IsFatal(err))
	})

	t.Run("oversized length fails before allocating", func(t *testing.T) {
		data := AppendVarInt(nil, MaxStringBytes+1)
		_, err := ReadString(bytes.NewReader(data))

		var malformed *MalformedPacketError
		assert.ErrorAs(t, err, &malformed)
	})
}

func TestFixedWidth(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteUint16(&buf, 25565))
	require.NoError(t, WriteUint64(&buf, 0x0102030405060708))
	assert.Equal(t, []byte{0x63, 0xdd, 1, 2, 3, 4, 5, 6, 7, 8}, buf.Bytes())

	port, err := ReadUint16(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(25565), port)

	v, err := ReadUint64(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), v)
}
