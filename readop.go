package stm

// readOp is the type-erased view of a readOpT[T] that readSet needs: an
// ordered collection that validates independently of the element type each
// entry carries (§4.3, §4.5).
type readOp interface {
	atomID() uint64

	// validate implements §4.3: try_lock the atom, check version <= rv,
	// release, and report success. Used right after a read is appended
	// (Read, and readSet.validateLast). Commit does not use it: it calls
	// readSet.validateAtCommit instead, because by then the committer may
	// already hold some of these atoms' locks.
	validate(rv uint64) bool

	// loadLockState reports whether the atom is currently locked and its
	// version, without attempting to acquire the lock. Used by
	// readSet.validateAtCommit, where the caller may already hold the lock
	// on this atom (self-lock, because it is also in the write set).
	loadLockState() (locked bool, version uint64)
}

// readOpT is a read operation descriptor for a single atom (§4.3): it
// records where the speculative value must land (dest, consulted by the
// caller, not stored here since Read returns the value directly) and the
// transaction's read version at read time.
type readOpT[T any] struct {
	atom *Atom[T]
	rv   uint64
}

func (r *readOpT[T]) atomID() uint64 { return r.atom.id }

func (r *readOpT[T]) validate(rv uint64) bool {
	if !r.atom.lock.tryAcquire() {
		return false
	}
	_, version := r.atom.lock.load()
	r.atom.lock.release()
	return version <= rv
}

func (r *readOpT[T]) loadLockState() (bool, uint64) {
	return r.atom.lock.load()
}

// read performs the payload copy (§4.3): it does not validate, the caller
// must have already validated via validate().
func (r *readOpT[T]) read() T {
	return r.atom.load()
}
