package stm

import (
	"runtime"
	"sync/atomic"
)

// vlock packs a TL2 versioned write-lock into a single word: the top bit is
// the lock flag, the remaining 63 bits are the version (§3 Atom invariant b:
// version is non-decreasing; §4.2 atom operations lock/try_lock/unlock).
// Packing both into one word makes load-version-and-check-locked a single
// atomic read, which is what read-validation (§4.3) needs.
type vlock uint64

const lockedBit = uint64(1) << 63

// load reports whether the lock is currently held, and the version value
// underneath it.
func (l *vlock) load() (locked bool, version uint64) {
	v := atomic.LoadUint64((*uint64)(l))
	return v&lockedBit != 0, v &^ lockedBit
}

// tryAcquire attempts to set the lock bit without blocking. It fails if the
// lock is already held by another committer, or if a concurrent tryAcquire
// wins the compare-and-swap race.
func (l *vlock) tryAcquire() bool {
	v := atomic.LoadUint64((*uint64)(l))
	if v&lockedBit != 0 {
		return false
	}
	return atomic.CompareAndSwapUint64((*uint64)(l), v, v|lockedBit)
}

// lock blocks until the lock bit is acquired (§4.2 lock(atom); §5: "the only
// blocking call is lock() on an atom"). It spins, yielding the processor
// between attempts with runtime.Gosched, rather than parking the goroutine
// through a channel or sync.Mutex: a vlock is only ever held for the few
// atomic instructions of a commit's critical section, so a park/wake round
// trip would cost more than it saves. By policy (§5) the engine's own code
// uses tryAcquire everywhere except where blocking is deliberately chosen to
// guarantee forward progress — see writeSet.lockAllBlocking.
func (l *vlock) lock() {
	for !l.tryAcquire() {
		runtime.Gosched()
	}
}

// commit publishes a new version and releases the lock bit in one store.
// Must only be called by the holder of the lock.
func (l *vlock) commit(version uint64) {
	if locked, _ := l.load(); !locked {
		panic("stm: commit on unlocked vlock")
	}
	atomic.StoreUint64((*uint64)(l), version)
}

// release drops the lock bit without changing the version, used when a
// transaction aborts after acquiring locks but before committing.
func (l *vlock) release() {
	locked, version := l.load()
	if !locked {
		panic("stm: release on unlocked vlock")
	}
	atomic.StoreUint64((*uint64)(l), version)
}
