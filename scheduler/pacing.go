package scheduler

import "time"

// NextSleep computes how long the loop should wait after a pass that took
// elapsed, given the overage carried from earlier passes. Time over the period
// carries forward and shortens later sleeps; sleep is never negative and no tick
// is ever skipped to catch up.
//
// Parameters:
//   - period: The tick period
//   - elapsed: Time spent on the pass just finished
//   - carry: Overage carried from previous passes
//
// Returns:
//   - How long to sleep before the next pass
//   - The overage to carry into the next call
func NextSleep(period, elapsed, carry time.Duration) (time.Duration, time.Duration) {
	total := carry + elapsed
	if total >= period {
		return 0, total - period
	}

	return period - total, 0
}

// PeriodFor returns the tick period for a rate in ticks per second.
func PeriodFor(tickRate int) time.Duration {
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}

	return time.Second / time.Duration(tickRate)
}
