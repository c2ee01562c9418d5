package stm

// readSet is the ordered sequence of read operations a transaction has
// performed (§4.5). Duplicate entries for the same atom are permitted; each
// is validated independently, so there is no dedup/index here unlike
// writeSet.
type readSet struct {
	ops []readOp
	rv  uint64
}

func newReadSet() *readSet {
	return &readSet{}
}

func (rs *readSet) append(op readOp) {
	rs.ops = append(rs.ops, op)
}

func (rs *readSet) reset() {
	rs.ops = rs.ops[:0]
}

// validateLast re-validates the most recently appended entry, so a
// transaction fails fast on the read that actually conflicted instead of
// only discovering it at commit (§4.5 validate_last).
func (rs *readSet) validateLast() bool {
	if len(rs.ops) == 0 {
		return true
	}
	return rs.ops[len(rs.ops)-1].validate(rs.rv)
}

// setRV records the read version entries appended from now on were read
// under; set once per transaction attempt.
func (rs *readSet) setRV(rv uint64) { rs.rv = rv }

// validateAtCommit implements step 3 of §4.7's commit protocol: every entry
// must have version <= rv, and may be currently locked only if that lock is
// this transaction's own (i.e. the atom is also in the write set) — any
// other locked state means a concurrent committer got there first.
func (rs *readSet) validateAtCommit(rv uint64, ws *writeSet) bool {
	for _, op := range rs.ops {
		locked, version := op.loadLockState()
		if locked && !ws.contains(op.atomID()) {
			return false
		}
		if version > rv {
			return false
		}
	}
	return true
}
