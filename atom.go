package stm

import (
	"reflect"
	"strconv"
	"sync/atomic"
)

// atomSeq hands out the monotonic identities used to order lock acquisition
// deterministically across atoms of different element types (§4.6: write_set
// lock_all must order by "a total order over atoms", the C original uses
// memory address; Go atoms are created independently of any backing address
// so a creation-order sequence number serves the same purpose).
var atomSeq uint64

// Atom is a versioned memory cell: the unit of transactional access (§3).
// Atom is generic over its element type so that a write's size always
// matches its atom's size by construction for fixed-size T (§4.4, §9 design
// note on type-punned read/write): the runtime ErrSizeMismatch check in
// writeop.go only fires for the variable-length element kinds (slices,
// strings) where two values of the same static type can still disagree on
// length.
type Atom[T any] struct {
	id   uint64
	name string
	lock vlock
	val  atomic.Value

	size        int
	sizeChecked bool
}

// AtomOption configures an Atom at Atomize time.
type AtomOption func(*atomConfig)

type atomConfig struct {
	name string
}

// WithAtomName attaches a debug name to an atom, threaded into log fields on
// abort (§C.4 of SPEC_FULL.md: named atoms for debug logging).
func WithAtomName(name string) AtomOption {
	return func(c *atomConfig) { c.name = name }
}

// Atomize wraps initial as a new Atom at version 0 with a fresh lock (§4.2).
// Every call produces storage owned exclusively by the returned Atom, which
// sidesteps the C original's open question about double-atomizing the same
// address (§9): there is no address to alias, since the Atom is the storage.
func Atomize[T any](initial T, opts ...AtomOption) *Atom[T] {
	var cfg atomConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	a := &Atom[T]{
		id:   atomic.AddUint64(&atomSeq, 1),
		name: cfg.name,
	}
	a.size, a.sizeChecked = sizeOf(initial)
	a.val.Store(boxValue(initial))
	return a
}

// Name returns the atom's debug name, or its identity if none was set.
func (a *Atom[T]) Name() string {
	if a.name != "" {
		return a.name
	}
	return "atom#" + strconv.FormatUint(a.id, 10)
}

// Version returns the atom's current version. Per §4.2 the caller is
// responsible for holding the lock if it needs version and payload to be
// observed together; this accessor is for diagnostics only.
func (a *Atom[T]) Version() uint64 {
	_, v := a.lock.load()
	return v
}

// load returns the atom's current payload without acquiring the lock (§4.3
// read(read_op): "does NOT validate; the caller is responsible").
func (a *Atom[T]) load() T {
	return unboxValue[T](a.val.Load())
}

// store publishes a new payload. Must only be called with the atom's lock
// held by the caller (§4.4 write(write_op)).
func (a *Atom[T]) store(v T) {
	a.val.Store(boxValue(v))
}

// boxed wraps atomic.Value's payload so that a zero-valued T whose dynamic
// type would otherwise panic atomic.Value.Store (nil interfaces, nil
// pointers on the very first store) stores consistently.
type boxed[T any] struct {
	v T
}

func boxValue[T any](v T) any   { return boxed[T]{v} }
func unboxValue[T any](v any) T { return v.(boxed[T]).v }

// sizeOf reports a runtime-checkable size for element types where two
// values of the same static type T can still disagree in length: slices
// and strings. For every other kind (arrays included) the type system already pins
// the size, so checkable is false and writeop.go's size check is skipped
// (§9 design note: typed atoms "remove the runtime fatal size check" for
// fixed-size element types; this keeps it exactly where Go's compiler
// cannot).
func sizeOf(v any) (n int, checkable bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.String:
		return rv.Len(), true
	default:
		return 0, false
	}
}
