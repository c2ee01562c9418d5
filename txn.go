package stm

import (
	"time"

	"go.uber.org/zap"
)

// Tx is a running transaction (§3 Transaction, component #7). It holds the
// read set, write set, allocation log, and the read version RV sampled at
// the start of the current attempt. A Tx is owned by exactly one goroutine
// for its lifetime (§5) and must never be retained past the Atomically call
// that created it.
type Tx struct {
	engine *Engine
	name   string

	rv     uint64
	reads  *readSet
	writes *writeSet
	allocs *allocLog
}

func newTx(e *Engine, name string) *Tx {
	return &Tx{
		engine: e,
		name:   name,
		reads:  newReadSet(),
		writes: newWriteSet(),
		allocs: newAllocLog(),
	}
}

// beginAttempt implements §4.7 begin(): sample the global clock into rv and
// start with empty read set, write set, and allocation log. Called once per
// attempt, including the first.
func (tx *Tx) beginAttempt() {
	tx.rv = tx.engine.clock.load()
	tx.reads.reset()
	tx.reads.setRV(tx.rv)
	tx.writes.reset()
}

// Read fetches the current transactional value of atom (§4.7 read()). If
// this transaction has already written atom, the buffered value is
// returned directly and no read op is recorded (read-your-own-writes,
// §4.6/§8 property 6). Otherwise a read op is appended and validated
// immediately; a validation failure returns ErrRetry.
func Read[T any](tx *Tx, atom *Atom[T]) (T, error) {
	var zero T
	if tx == nil || atom == nil {
		return zero, ErrOutsideTransaction
	}
	tx.engine.trackAtom(atom.id)
	if op, ok := tx.writes.lookup(atom.id); ok {
		return op.(*writeOpT[T]).buf, nil
	}

	ro := &readOpT[T]{atom: atom, rv: tx.rv}
	tx.reads.append(ro)
	if !ro.validate(tx.rv) {
		tx.engine.logger.Debug("stm: read conflict", fieldAtomName(atom.Name()), fieldRV(tx.rv))
		return zero, ErrRetry
	}
	v := ro.read()
	// A committer may have published a newer value between validate and the
	// load; re-check so the value returned is never newer than rv.
	if locked, version := ro.loadLockState(); locked || version > tx.rv {
		tx.engine.logger.Debug("stm: read conflict", fieldAtomName(atom.Name()), fieldRV(tx.rv))
		return zero, ErrRetry
	}
	return v, nil
}

// Write stages a write to atom (§4.7 write()). The size check (§4.4 new())
// runs first and is fatal, not a conflict: a size mismatch is a programmer
// error the caller must fix, not a race the engine can resolve by retrying.
// After staging, the write is checked against the atom's current version;
// this is a fast-fail optimization only. commit does not re-check written
// atoms' versions: an atom that was also read is covered by the read-set
// revalidation at commit, and a blind write does not depend on the value it
// replaces.
func Write[T any](tx *Tx, atom *Atom[T], val T) error {
	if tx == nil || atom == nil {
		return ErrOutsideTransaction
	}
	tx.engine.trackAtom(atom.id)
	wo, err := newWriteOpT(atom, val)
	if err != nil {
		return err
	}
	tx.writes.set(wo)

	if _, version := atom.lock.load(); version > tx.rv {
		tx.engine.logger.Debug("stm: write conflict", fieldAtomName(atom.Name()), fieldRV(tx.rv))
		return ErrRetry
	}
	return nil
}

// Allocate reserves n transaction-scoped bytes (§4.7 allocate(size), §6).
// The buffer is tracked in the allocation log so it can be released if the
// transaction aborts; on commit it graduates to the caller's ownership.
func Allocate(tx *Tx, n int) ([]byte, error) {
	if tx == nil {
		return nil, ErrOutsideTransaction
	}
	buf := make([]byte, n)
	tx.allocs.track(buf)
	tx.engine.addLiveBytes(int64(n))
	return buf, nil
}

// Free removes ptr from the allocation log and releases it early (§4.7
// free(ptr)). It is undefined behavior to call Free with a buffer this
// transaction did not obtain from Allocate; this implementation reports
// ErrOutsideTransaction-shaped confusion as a no-op rather than corrupting
// the log, but callers must not rely on that.
func Free(tx *Tx, ptr []byte) error {
	if tx == nil {
		return ErrOutsideTransaction
	}
	if n, ok := tx.allocs.release(ptr); ok {
		tx.engine.addLiveBytes(-int64(n))
	}
	return nil
}

// Assert retries the transaction unless cond holds (mirrors tx.Assert in
// other Go STM libraries, e.g. vsdmars-stm).
func Assert(cond bool) error {
	if !cond {
		return ErrRetry
	}
	return nil
}

// abortAttempt discards this attempt's logs and releases any allocations it
// made (§4.7 abort(): "free every pointer still present in the allocation
// log"). It does not touch any atom lock: by the time abortAttempt runs,
// either no lock was ever taken (validation failed before commit) or
// commit() has already unlocked everything it locked.
func (tx *Tx) abortAttempt() {
	tx.engine.addLiveBytes(-int64(tx.allocs.releaseAll()))
}

// commit implements §4.7's two-phase commit protocol. It returns false on
// any validation or locking failure, in which case the caller retries from
// the top; it never partially commits (§7: "a failed commit leaves every
// atom's payload and version unchanged"). forceLock is set by the caller
// only on a transaction's last permitted attempt (§5's forward-progress
// carve-out): step 1 then blocks on every lock in deterministic order
// instead of aborting on contention, so contention on its own write locks
// cannot reject this attempt. Step 3 still fails if another committer holds
// the lock of an atom in the read set.
func (tx *Tx) commit(forceLock bool) bool {
	if tx.writes.len() == 0 {
		// Read-only transaction: nothing to lock, validate under lock, or
		// publish. The read set was already validated incrementally as
		// each read happened (§4.6 optimisation is implicit here: there is
		// no write version to sample at all).
		tx.engine.addLiveBytes(-int64(tx.allocs.graduate()))
		return true
	}

	started := time.Now()

	// Step 1: lock_all.
	var locked []writeOp
	if forceLock {
		locked = tx.writes.lockAllBlocking()
	} else {
		var ok bool
		locked, ok = tx.writes.lockAll()
		if !ok {
			unlockAll(locked)
			tx.engine.logger.Debug("stm: lock conflict", zap.String("txn", tx.name), fieldRV(tx.rv))
			return false
		}
	}

	// Step 2: sample the write version.
	wv := tx.engine.clock.sampleAndAdvance()

	// Step 3: revalidate the read set, unless this transaction is
	// provably the only committer since it began (§4.7 step 3
	// optimisation).
	if wv != tx.rv+1 {
		if !tx.reads.validateAtCommit(tx.rv, tx.writes) {
			unlockAll(locked)
			tx.engine.logger.Debug("stm: read-set revalidation failed", zap.String("txn", tx.name), fieldRV(tx.rv), fieldWV(wv))
			return false
		}
	}

	// Step 4: commit_all — store buffered values, publish wv.
	tx.writes.commitAll(wv)

	// Step 5: commitAll has already released every lock (vlock.commit
	// publishes the version and clears the lock bit in one store), so only
	// the allocations remain to graduate.
	tx.engine.addLiveBytes(-int64(tx.allocs.graduate()))
	tx.engine.metrics.observeCommitDuration(time.Since(started).Seconds())
	tx.engine.logger.Debug("stm: committed", zap.String("txn", tx.name), fieldRV(tx.rv), fieldWV(wv))
	return true
}
