// Package chain provides the block-height clock the settlement pipeline
// runs on. The pipeline MUST NOT use wall-clock time: expiry and period
// arithmetic are computed against an injected, monotonically
// non-decreasing height counter supplied by the execution environment.
package chain

import (
	"fmt"
	"sync"
)

// HeightClock supplies the current block height.
type HeightClock interface {
	Height() uint64
}

// ManualClock is a mutex-guarded height source advanced by its owner.
// Used in tests and single-node deployments where the surrounding
// environment ticks the chain explicitly.
type ManualClock struct {
	mu     sync.Mutex
	height uint64
}

// NewManualClock creates a clock starting at the given height.
func NewManualClock(start uint64) *ManualClock {
	return &ManualClock{height: start}
}

// Height returns the current height.
func (c *ManualClock) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// Advance moves the clock forward by delta blocks.
func (c *ManualClock) Advance(delta uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height += delta
}

// Set moves the clock to an absolute height. Heights never go backward.
func (c *ManualClock) Set(height uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if height < c.height {
		return fmt.Errorf("height may not decrease: %d < %d", height, c.height)
	}
	c.height = height
	return nil
}
