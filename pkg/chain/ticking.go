package chain

import "time"

// TickingClock derives the height from wall time at the process edge:
// one block per interval since the anchor. The pipeline itself never
// sees wall time, only the resulting height.
type TickingClock struct {
	start    uint64
	anchor   time.Time
	interval time.Duration
	now      func() time.Time
}

// NewTickingClock creates a clock at start height that advances one
// block per interval from now on.
func NewTickingClock(start uint64, interval time.Duration) *TickingClock {
	return &TickingClock{
		start:    start,
		anchor:   time.Now(),
		interval: interval,
		now:      time.Now,
	}
}

// Height returns the current derived height.
func (c *TickingClock) Height() uint64 {
	elapsed := c.now().Sub(c.anchor)
	if elapsed < 0 {
		return c.start
	}
	return c.start + uint64(elapsed/c.interval)
}
