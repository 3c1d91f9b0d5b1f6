// Package device holds the command bit the scanner polls to learn whether it
// should accept scans.
package device

import "sync/atomic"

type CommandBit struct {
	enabled atomic.Bool
}

func NewCommandBit(enabled bool) *CommandBit {
	c := &CommandBit{}
	c.enabled.Store(enabled)
	return c
}

func (c *CommandBit) Enabled() bool { return c.enabled.Load() }

func (c *CommandBit) Set(v bool) { c.enabled.Store(v) }

// Toggle flips the bit and returns the new value.
func (c *CommandBit) Toggle() bool {
	for {
		old := c.enabled.Load()
		if c.enabled.CompareAndSwap(old, !old) {
			return !old
		}
	}
}
