// Package stm implements a Software Transactional Memory engine using the
// Transactional Locking II (TL2) protocol. It lets concurrent goroutines
// perform groups of reads and writes against shared memory cells as a single
// serializable transaction, retrying automatically on conflict instead of
// requiring callers to design a lock hierarchy.
//
// Wrap each shared cell in an Atom:
//
//	balance := stm.Atomize(100)
//
// Then read and write it inside Atomically. A transaction is a closure that
// receives a *Tx and returns a result; returning the sentinel ErrRetry (or
// calling Assert with a condition that does not yet hold) aborts the current
// attempt and reruns it:
//
//	_, err := stm.Atomically(func(tx *stm.Tx) (struct{}, error) {
//		cur, err := stm.Read(tx, balance)
//		if err != nil {
//			return struct{}{}, err
//		}
//		return struct{}{}, stm.Write(tx, balance, cur-1)
//	})
//
// Transactions must be free of side effects other than Read/Write/Allocate/
// Free on Atoms: the engine may run a transaction's closure more than once
// before it commits. A transaction retried because of a lost race is
// invisible to the caller; Atomically only returns an error for a fatal,
// non-retryable condition such as a size mismatch or exceeding the
// configured retry cap.
//
// Call Init once, before any transaction runs, to start the global version
// clock. Package-level Atomically uses a package-level default Engine; an
// embedder that wants its own clock, logger, or metrics registry can
// construct an *Engine directly with New.
package stm
