package chain

import (
	"testing"
	"time"
)

func TestTickingClockDerivesHeight(t *testing.T) {
	c := NewTickingClock(1000, 10*time.Minute)
	base := c.anchor

	cases := []struct {
		elapsed time.Duration
		want    uint64
	}{
		{0, 1000},
		{9 * time.Minute, 1000},
		{10 * time.Minute, 1001},
		{25 * time.Minute, 1002},
		{100 * time.Minute, 1010},
	}
	for _, tc := range cases {
		c.now = func() time.Time { return base.Add(tc.elapsed) }
		if got := c.Height(); got != tc.want {
			t.Errorf("elapsed %v: height = %d, want %d", tc.elapsed, got, tc.want)
		}
	}
}

func TestTickingClockNeverRewinds(t *testing.T) {
	c := NewTickingClock(1000, time.Minute)
	c.now = func() time.Time { return c.anchor.Add(-time.Hour) }
	if got := c.Height(); got != 1000 {
		t.Fatalf("height before anchor = %d, want start 1000", got)
	}
}
