package safemap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSafeMap(t *testing.T) {
	m := NewSafeMap[uint32, string]()
	require.NotNil(t, m)
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.Values())
}

func TestSafeMap_Load(t *testing.T) {
	m := NewSafeMap[uint32, string]()
	m.Replace(map[uint32]string{1: "handshake"})

	t.Run("returns a present value", func(t *testing.T) {
		v, ok := m.Load(1)
		assert.True(t, ok)
		assert.Equal(t, "handshake", v)
	})

	t.Run("reports a missing key", func(t *testing.T) {
		v, ok := m.Load(99)
		assert.False(t, ok)
		assert.Empty(t, v)
	})
}

func TestSafeMap_Replace(t *testing.T) {
	t.Run("swaps the content", func(t *testing.T) {
		m := NewSafeMap[uint32, string]()
		m.Replace(map[uint32]string{1: "old"})

		m.Replace(map[uint32]string{2: "a", 3: "b"})

		_, ok := m.Load(1)
		assert.False(t, ok)
		assert.ElementsMatch(t, []string{"a", "b"}, m.Values())
	})

	t.Run("nil clears the map", func(t *testing.T) {
		m := NewSafeMap[uint32, string]()
		m.Replace(map[uint32]string{1: "old"})

		m.Replace(nil)

		assert.Equal(t, 0, m.Len())
		assert.Empty(t, m.Values())
	})
}

func TestSafeMap_Concurrent(t *testing.T) {
	m := NewSafeMap[uint32, int]()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Replace(map[uint32]int{uint32(i): j})
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.LessOrEqual(t, len(m.Values()), 1)
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, m.Len())
}
