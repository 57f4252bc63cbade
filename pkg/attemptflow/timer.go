package attemptflow

import (
	"fmt"
	"sync"
	"time"
)

// CriticalThreshold is the remaining time under which the countdown is
// flagged time-critical for emphasis.
const CriticalThreshold = 60 * time.Second

// Countdown derives remaining time from the server-reported start and the
// set's limit. Nothing is persisted: a reload recomputes from started_at, so
// refreshing never extends the deadline. Expiry is a one-way latch.
type Countdown struct {
	mu        sync.Mutex
	startedAt time.Time
	limit     time.Duration // 0 = untimed
	now       func() time.Time
	expired   bool
}

func NewCountdown(startedAt time.Time, timeLimitSec int) *Countdown {
	return &Countdown{
		startedAt: startedAt,
		limit:     time.Duration(timeLimitSec) * time.Second,
		now:       time.Now,
	}
}

// WithNow overrides the clock; tests use it to steer the deadline.
func (c *Countdown) WithNow(now func() time.Time) *Countdown {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

// Timed reports whether the attempt has a deadline at all.
func (c *Countdown) Timed() bool { return c.limit > 0 }

// Remaining is clamped to zero. Untimed countdowns always report zero and
// never expire.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainingLocked()
}

func (c *Countdown) remainingLocked() time.Duration {
	if c.limit <= 0 {
		return 0
	}
	r := c.startedAt.Add(c.limit).Sub(c.now())
	if r < 0 {
		return 0
	}
	return r
}

// Expired latches: once true it stays true even if the clock is re-read.
func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expired {
		return true
	}
	if c.limit > 0 && c.remainingLocked() <= 0 {
		c.expired = true
	}
	return c.expired
}

func (c *Countdown) Critical() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limit <= 0 {
		return false
	}
	return c.remainingLocked() <= CriticalThreshold
}

// Formatted renders the remaining time with the largest applicable unit
// pair. Untimed countdowns render empty.
func (c *Countdown) Formatted() string {
	if c.limit <= 0 {
		return ""
	}
	return FormatDuration(c.Remaining())
}

// FormatDuration renders a duration as days/hours, hours/minutes,
// minutes/seconds, or bare seconds, whichever pair applies.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int64(d / time.Second)
	switch {
	case sec >= 86400:
		return fmt.Sprintf("%dd %dh", sec/86400, sec%86400/3600)
	case sec >= 3600:
		return fmt.Sprintf("%dh %dm", sec/3600, sec%3600/60)
	case sec >= 60:
		return fmt.Sprintf("%dm %ds", sec/60, sec%60)
	default:
		return fmt.Sprintf("%ds", sec)
	}
}
