package stm

import "sync/atomic"

// versionClock is the process-wide monotonically increasing counter TL2
// calls the global version clock (§4.1). Every successful commit samples a
// strictly greater value than every earlier successful commit. 64 bits is
// wide enough that wraparound within a program's lifetime is not a practical
// concern, even at one incr per nanosecond.
type versionClock struct {
	v uint64
}

// load returns the current clock value without advancing it. Used to sample
// the read version RV at the start of a transaction.
func (c *versionClock) load() uint64 {
	return atomic.LoadUint64(&c.v)
}

// sampleAndAdvance atomically increments the clock and returns the new
// value. Used once per commit to sample the write version WV.
func (c *versionClock) sampleAndAdvance() uint64 {
	return atomic.AddUint64(&c.v, 1)
}
