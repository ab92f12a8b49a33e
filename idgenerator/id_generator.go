// Package idgenerator hands out connection ids.
package idgenerator

import "sync/atomic"

// IdGenerator returns increasing uint32 ids and is safe for concurrent use.
// Zero is reserved to mean "no connection" and is skipped when the counter wraps.
type IdGenerator struct {
	id atomic.Uint32
}

// NewIdGenerator creates an IdGenerator whose first Id is startValue+1.
//
// Parameters:
//   - startValue: The counter's initial value
//
// Returns:
//   - A new IdGenerator instance
func NewIdGenerator(startValue uint32) *IdGenerator {
	gen := &IdGenerator{}
	gen.id.Store(startValue)
	return gen
}

// Id returns the next id, never zero.
func (l *IdGenerator) Id() uint32 {
	for {
		if id := l.id.Add(1); id != 0 {
			return id
		}
	}
}

// Last returns the most recently issued id, or the start value if none was issued.
func (l *IdGenerator) Last() uint32 {
	return l.id.Load()
}
