package domain

import "time"

// RoundClock is the wall-clock anchored view of a round timer. Every client
// derives the same remaining time from these server-recorded timestamps.
type RoundClock struct {
	StartedAt *time.Time
	PausedAt  *time.Time
	Duration  time.Duration
}

func (c RoundClock) Started() bool {
	return c.StartedAt != nil
}

func (c RoundClock) Paused() bool {
	return c.PausedAt != nil
}

// Deadline is when the timer reaches zero, assuming no further pauses.
func (c RoundClock) Deadline() time.Time {
	if c.StartedAt == nil {
		return time.Time{}
	}
	return c.StartedAt.Add(c.Duration)
}

// Elapsed returns timer time consumed at now. A paused clock is frozen at
// the pause instant.
func (c RoundClock) Elapsed(now time.Time) time.Duration {
	if c.StartedAt == nil {
		return 0
	}
	ref := now
	if c.PausedAt != nil {
		ref = *c.PausedAt
	}
	elapsed := ref.Sub(*c.StartedAt)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Remaining returns the signed time left at now. Negative values mean the
// round is in overtime.
func (c RoundClock) Remaining(now time.Time) time.Duration {
	if c.StartedAt == nil {
		return c.Duration
	}
	return c.Duration - c.Elapsed(now)
}

// DisplayRemaining clamps Remaining at zero.
func (c RoundClock) DisplayRemaining(now time.Time) time.Duration {
	r := c.Remaining(now)
	if r < 0 {
		return 0
	}
	return r
}

func (c RoundClock) IsOvertime(now time.Time) bool {
	return c.StartedAt != nil && c.Remaining(now) < 0
}

// ShiftForResume moves the start forward by the time spent paused so the
// elapsed time is continuous across the pause.
func ShiftForResume(startedAt, pausedAt, now time.Time) time.Time {
	paused := now.Sub(pausedAt)
	if paused < 0 {
		paused = 0
	}
	return startedAt.Add(paused)
}
