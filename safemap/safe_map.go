// Package safemap provides a generic map guarded by a read/write mutex. One
// goroutine publishes entries while others read consistent snapshots.
package safemap

import "sync"

// SafeMap is a map safe for use by multiple goroutines. The zero value is not
// usable; create one with NewSafeMap.
type SafeMap[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

// NewSafeMap returns an empty SafeMap.
//
// Returns:
//   - A pointer to a new SafeMap[K, V]
func NewSafeMap[K comparable, V any]() *SafeMap[K, V] {
	return &SafeMap[K, V]{m: make(map[K]V)}
}

// Load returns the value for k and whether it was present.
func (m *SafeMap[K, V]) Load(k K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.m[k]
	return v, ok
}

// Len returns the number of entries.
func (m *SafeMap[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m)
}

// Replace swaps the whole content for entries in one step, so readers see
// either the old or the new set and never a mix. The map takes ownership of
// entries.
//
// Parameters:
//   - entries: The new content; nil clears the map
func (m *SafeMap[K, V]) Replace(entries map[K]V) {
	if entries == nil {
		entries = make(map[K]V)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.m = entries
}

// Values returns a copy of all values in unspecified order.
//
// Returns:
//   - A new slice the caller may modify
func (m *SafeMap[K, V]) Values() []V {
	m.mu.RLock()
	defer m.mu.RUnlock()

	values := make([]V, 0, len(m.m))
	for _, v := range m.m {
		values = append(values, v)
	}

	return values
}
