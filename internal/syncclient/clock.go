package syncclient

import (
	"sync"
	"time"

	"github.com/tastelab/cupping-rooms/internal/domain"
)

// smoothing weight of a new offset sample
const offsetAlpha = 0.25

// Clock estimates the difference between the server clock and the local
// clock from the server timestamps carried by realtime events.
type Clock struct {
	offset  time.Duration
	samples int
	now     func() time.Time
	mu      sync.RWMutex
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Observe records a server timestamp received at local time receivedAt.
func (c *Clock) Observe(serverNow, receivedAt time.Time) {
	if serverNow.IsZero() {
		return
	}
	sample := serverNow.Sub(receivedAt)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.samples == 0 {
		c.offset = sample
	} else {
		c.offset += time.Duration(offsetAlpha * float64(sample-c.offset))
	}
	c.samples++
}

func (c *Clock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// Now is the local estimate of the server's current time.
func (c *Clock) Now() time.Time {
	return c.now().Add(c.Offset())
}

// Remaining reconciles a round timer against the estimated server time, so
// clients with skewed clocks still show the same countdown.
func (c *Clock) Remaining(startedAt time.Time, pausedAt *time.Time, duration time.Duration) time.Duration {
	rc := domain.RoundClock{StartedAt: &startedAt, PausedAt: pausedAt, Duration: duration}
	return rc.DisplayRemaining(c.Now())
}
