package acounter

import (
	"strconv"
	"sync/atomic"
)

// Type is a counter safe for concurrent use. The zero value is ready.
type Type struct {
	val atomic.Uint64
}

func (c *Type) Value() uint64 {
	return c.val.Load()
}

func (c *Type) Inc() uint64 {
	return c.Add(1)
}

func (c *Type) Add(val uint64) uint64 {
	return c.val.Add(val)
}

// Reset sets the counter to zero and returns the previous value.
func (c *Type) Reset() uint64 {
	return c.val.Swap(0)
}

func (c *Type) String() string {
	return strconv.FormatUint(c.Value(), 10)
}
