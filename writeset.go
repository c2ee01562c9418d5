package stm

import "sort"

// writeSet is the per-transaction buffered-write store (§4.6). It is keyed
// by atom identity so that lookup (read-your-own-writes, §4.6) and
// re-writing an already-written atom are both O(1); the design note in §9
// calls out exactly this shape ("a hashed table keyed by atom identity").
type writeSet struct {
	ops map[uint64]writeOp
}

func newWriteSet() *writeSet {
	return &writeSet{ops: make(map[uint64]writeOp)}
}

func (ws *writeSet) reset() {
	clear(ws.ops)
}

// set records or replaces the buffered write for an atom. A second write to
// the same atom within one transaction simply overwrites the buffer; only
// one lock acquisition and one commit per atom is needed either way.
func (ws *writeSet) set(op writeOp) {
	ws.ops[op.atomID()] = op
}

func (ws *writeSet) contains(id uint64) bool {
	_, ok := ws.ops[id]
	return ok
}

func (ws *writeSet) lookup(id uint64) (writeOp, bool) {
	op, ok := ws.ops[id]
	return op, ok
}

func (ws *writeSet) len() int {
	return len(ws.ops)
}

// lockAll acquires every atom's lock in deterministic id order (§4.6: "To
// avoid deadlock between two committing transactions the implementation
// MUST order acquisitions deterministically... e.g. atom memory address").
// Atom identity here is the creation-order sequence number from atom.go,
// which is just as good a total order as an address for this purpose. If
// any try_lock fails, locked reports what was already acquired so the
// caller can unlock exactly that and no more.
func (ws *writeSet) lockAll() (locked []writeOp, ok bool) {
	ids := make([]uint64, 0, len(ws.ops))
	for id := range ws.ops {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	locked = make([]writeOp, 0, len(ids))
	for _, id := range ids {
		op := ws.ops[id]
		if !op.tryLock() {
			return locked, false
		}
		locked = append(locked, op)
	}
	return locked, true
}

// lockAllBlocking acquires every write-set lock in the same deterministic
// id order as lockAll, but blocks on each one instead of aborting on
// contention (§4.2 lock(atom)). Because every committer — whether it calls
// lockAll or lockAllBlocking — acquires locks in that same total order,
// blocking here cannot deadlock: two committers blocked on the same atom are
// always trying to acquire their shared prefix of locks in the same
// sequence. This is the engine's one deliberate exception to its "try_lock
// everywhere" policy (§5), used only for a transaction's last permitted
// attempt, so that attempt cannot lose its write locks to a stream of
// optimistic committers that keep winning the race. Its read validation
// still uses try-lock and load checks and can fail.
func (ws *writeSet) lockAllBlocking() []writeOp {
	ids := make([]uint64, 0, len(ws.ops))
	for id := range ws.ops {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	locked := make([]writeOp, 0, len(ids))
	for _, id := range ids {
		op := ws.ops[id]
		op.lock()
		locked = append(locked, op)
	}
	return locked
}

// validateAll implements §4.6 validate_all: it reports whether every written
// atom's version is <= rv, assuming the caller holds their locks. Tx.commit
// does not call it; see the note on Write in txn.go.
func (ws *writeSet) validateAll(rv uint64) bool {
	for _, op := range ws.ops {
		if !op.validateLocked(rv) {
			return false
		}
	}
	return true
}

// commitAll implements §4.6 commit_all: store each buffered value and
// publish wv as the atom's new version.
func (ws *writeSet) commitAll(wv uint64) {
	for _, op := range ws.ops {
		op.commit(wv)
	}
}

// unlockAll releases exactly the write ops passed in (ordering does not
// matter for unlock, §4.6).
func unlockAll(ops []writeOp) {
	for _, op := range ops {
		op.unlock()
	}
}
