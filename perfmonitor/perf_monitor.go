// Package perfmonitor measures how long a unit of work takes, such as one pass
// of the tick loop.
package perfmonitor

import "time"

// PerformanceMonitor records a start and end instant. It is not safe for
// concurrent use.
type PerformanceMonitor struct {
	startTime time.Time
	endTime   time.Time
	now       func() time.Time
}

// NewPerformanceMonitor creates a monitor with no recorded times.
//
// Returns:
//   - A new *PerformanceMonitor
func NewPerformanceMonitor() *PerformanceMonitor {
	return &PerformanceMonitor{now: time.Now}
}

// Start records the start instant and clears any previous end.
func (pm *PerformanceMonitor) Start() {
	pm.startTime = pm.now()
	pm.endTime = time.Time{}
}

// Stop records the end instant. It does nothing if Start was not called since
// the last Reset. Calling Stop again moves the end instant forward.
func (pm *PerformanceMonitor) Stop() {
	if pm.startTime.IsZero() {
		return
	}

	pm.endTime = pm.now()
}

// Reset clears both recorded instants.
func (pm *PerformanceMonitor) Reset() {
	pm.startTime = time.Time{}
	pm.endTime = time.Time{}
}

// Elapsed returns the time between Start and Stop, or zero if either is missing.
func (pm *PerformanceMonitor) Elapsed() time.Duration {
	if pm.startTime.IsZero() || pm.endTime.IsZero() {
		return 0
	}

	return pm.endTime.Sub(pm.startTime)
}

// ElapsedMilliseconds returns Elapsed as fractional milliseconds.
func (pm *PerformanceMonitor) ElapsedMilliseconds() float64 {
	return float64(pm.Elapsed()) / float64(time.Millisecond)
}
