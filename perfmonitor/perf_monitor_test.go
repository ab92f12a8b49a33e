package perfmonitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// steppingClock returns instants that advance by step on every call.
func steppingClock(step time.Duration) func() time.Time {
	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		current = current.Add(step)
		return current
	}
}

func newTestMonitor(step time.Duration) *PerformanceMonitor {
	pm := NewPerformanceMonitor()
	pm.now = steppingClock(step)
	return pm
}

func TestNewPerformanceMonitor(t *testing.T) {
	t.Run("creates new instance with zero times", func(t *testing.T) {
		pm := NewPerformanceMonitor()

		assert.NotNil(t, pm)
		assert.True(t, pm.startTime.IsZero())
		assert.True(t, pm.endTime.IsZero())
	})
}

func TestPerformanceMonitor_Start(t *testing.T) {
	t.Run("clears a previous end time", func(t *testing.T) {
		pm := newTestMonitor(time.Millisecond)

		pm.Start()
		pm.Stop()
		pm.Start()

		assert.False(t, pm.startTime.IsZero())
		assert.True(t, pm.endTime.IsZero())
		assert.Zero(t, pm.Elapsed())
	})
}

func TestPerformanceMonitor_Stop(t *testing.T) {
	t.Run("does nothing without start", func(t *testing.T) {
		pm := newTestMonitor(time.Millisecond)

		pm.Stop()

		assert.True(t, pm.endTime.IsZero())
	})

	t.Run("moves the end forward on repeated calls", func(t *testing.T) {
		pm := newTestMonitor(10 * time.Millisecond)

		pm.Start()
		pm.Stop()
		first := pm.Elapsed()
		pm.Stop()

		assert.Equal(t, 10*time.Millisecond, first)
		assert.Equal(t, 20*time.Millisecond, pm.Elapsed())
	})

	t.Run("does nothing after reset", func(t *testing.T) {
		pm := newTestMonitor(time.Millisecond)

		pm.Start()
		pm.Reset()
		pm.Stop()

		assert.True(t, pm.startTime.IsZero())
		assert.True(t, pm.endTime.IsZero())
	})
}

func TestPerformanceMonitor_Elapsed(t *testing.T) {
	t.Run("returns the measured duration", func(t *testing.T) {
		pm := newTestMonitor(35 * time.Millisecond)

		pm.Start()
		pm.Stop()

		assert.Equal(t, 35*time.Millisecond, pm.Elapsed())
		assert.InDelta(t, 35.0, pm.ElapsedMilliseconds(), 0.0001)
	})

	t.Run("returns zero while running", func(t *testing.T) {
		pm := newTestMonitor(time.Millisecond)

		pm.Start()

		assert.Zero(t, pm.Elapsed())
		assert.Equal(t, 0.0, pm.ElapsedMilliseconds())
	})

	t.Run("returns zero after reset", func(t *testing.T) {
		pm := newTestMonitor(time.Millisecond)

		pm.Start()
		pm.Stop()
		pm.Reset()

		assert.Zero(t, pm.Elapsed())
	})

	t.Run("measures real time with the default clock", func(t *testing.T) {
		pm := NewPerformanceMonitor()

		pm.Start()
		time.Sleep(10 * time.Millisecond)
		pm.Stop()

		assert.GreaterOrEqual(t, pm.Elapsed(), 10*time.Millisecond)
	})
}
