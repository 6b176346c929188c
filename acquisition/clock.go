package acquisition

import "time"

// Clock converts monotonic capture offsets to wall-clock time. Both clocks
// are sampled once at construction so later wall-clock steps do not move
// reported timestamps relative to each other.
type Clock struct {
	now    func() time.Time
	origin time.Time
}

func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now, origin: now()}
}

// Now returns the current time as epoch milliseconds together with the
// monotonic offset from the clock origin.
func (c *Clock) Now() (int64, time.Duration) {
	elapsed := c.now().Sub(c.origin)
	return c.origin.Add(elapsed).UnixMilli(), elapsed
}

func (c *Clock) Origin() time.Time {
	return c.origin
}

// Elapsed returns the monotonic offset from the clock origin.
func (c *Clock) Elapsed() time.Duration {
	return c.now().Sub(c.origin)
}
