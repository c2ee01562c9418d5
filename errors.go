package stm

import "errors"

// Fatal errors. These are programmer errors (§7): the engine never retries
// them, and surfaces them to the caller of Atomically or Init.
var (
	// ErrSizeMismatch is returned when Write is called with a value whose
	// size does not match the size the Atom was Atomize'd with.
	ErrSizeMismatch = errors.New("stm: write size does not match atom size")

	// ErrDoubleInit is returned by Init if it is called more than once on
	// the same Engine.
	ErrDoubleInit = errors.New("stm: engine already initialized")

	// ErrNotInitialized is returned when a transactional primitive is used
	// on an Engine before Init has run.
	ErrNotInitialized = errors.New("stm: engine not initialized")

	// ErrOutsideTransaction is returned when a transactional primitive
	// (Read, Write, Allocate, Free) is used with a nil *Tx (or Read/Write
	// with a nil Atom). A *Tx retained past the Atomically call that
	// created it is not detected.
	ErrOutsideTransaction = errors.New("stm: transactional primitive used outside a transaction")

	// ErrRetryLimitExceeded is returned by Atomically when a transaction
	// aborts more times than its configured retry limit allows.
	ErrRetryLimitExceeded = errors.New("stm: transaction exceeded retry limit")
)

// ErrRetry is the conflict sentinel (§7 "Conflict (expected, recoverable)").
// Read and Write return it when validation fails, and user code may return
// it deliberately (mirroring tx.Retry()/tx.Assert() in other STM libraries)
// to force the current attempt to abort and rerun, e.g. because a
// precondition the transaction depends on does not hold yet. A transaction
// body never needs to distinguish "the engine detected a conflict" from
// "I am asking for a retry" — both unwind the same way. It is never
// returned from Atomically: the retry loop consumes it internally and either
// reruns the transaction or, past the retry cap, returns ErrRetryLimitExceeded.
var ErrRetry = errors.New("stm: conflict, retry")
