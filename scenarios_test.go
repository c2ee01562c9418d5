package stm

// Literal end-to-end scenarios from §8 of spec.md.

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var errUnmatched = errors.New("ra != rb")

// S1 Increment race: two threads each read x then write x+1; after both
// join, x == 2.
func TestScenarioS1IncrementRace(t *testing.T) {
	e := New()
	require.NoError(t, e.Init())
	x := Atomize(0)

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			_, err := RunAtomically(e, func(tx *Tx) (struct{}, error) {
				y, err := Read(tx, x)
				if err != nil {
					return struct{}{}, err
				}
				return struct{}{}, Write(tx, x, y+1)
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := RunAtomically(e, func(tx *Tx) (int, error) { return Read(tx, x) })
	require.NoError(t, err)
	require.Equal(t, 2, got)
}

// S2 Conditional update: two threads read x; if 0 write 1, else write 2.
// After both join, x == 2 (at most one thread observes 0).
func TestScenarioS2ConditionalUpdate(t *testing.T) {
	e := New()
	require.NoError(t, e.Init())
	x := Atomize(0)

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			_, err := RunAtomically(e, func(tx *Tx) (struct{}, error) {
				cur, err := Read(tx, x)
				if err != nil {
					return struct{}{}, err
				}
				if cur == 0 {
					return struct{}{}, Write(tx, x, 1)
				}
				return struct{}{}, Write(tx, x, 2)
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := RunAtomically(e, func(tx *Tx) (int, error) { return Read(tx, x) })
	require.NoError(t, err)
	require.Equal(t, 2, got)
}

// S3 Paired update: thread A writes a:=1, b:=1 atomically; thread B reads a
// then b and asserts ra == rb. No interleaving may fail B's assertion.
func TestScenarioS3PairedUpdate(t *testing.T) {
	for iter := 0; iter < 200; iter++ {
		e := New()
		require.NoError(t, e.Init())
		a := Atomize(0)
		b := Atomize(0)

		var wg sync.WaitGroup
		wg.Add(2)
		var raErr error
		go func() {
			defer wg.Done()
			_, err := RunAtomically(e, func(tx *Tx) (struct{}, error) {
				if err := Write(tx, a, 1); err != nil {
					return struct{}{}, err
				}
				return struct{}{}, Write(tx, b, 1)
			})
			require.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := RunAtomically(e, func(tx *Tx) (struct{}, error) {
				ra, err := Read(tx, a)
				if err != nil {
					return struct{}{}, err
				}
				rb, err := Read(tx, b)
				if err != nil {
					return struct{}{}, err
				}
				if ra != rb {
					raErr = errUnmatched
				}
				return struct{}{}, nil
			})
			require.NoError(t, err)
		}()
		wg.Wait()
		require.NoError(t, raErr, "B must never observe a != b")
	}
}

// S4 Retry cap: cap = 3, force abort every attempt; the fourth attempt
// yields a terminal error, no leaked allocations.
func TestScenarioS4RetryCap(t *testing.T) {
	e := New()
	require.NoError(t, e.Init(WithRetryLimit(3)))

	attempts := 0
	_, err := RunAtomically(e, func(tx *Tx) (struct{}, error) {
		attempts++
		if _, allocErr := Allocate(tx, 1024); allocErr != nil {
			return struct{}{}, allocErr
		}
		return struct{}{}, ErrRetry
	})
	require.ErrorIs(t, err, ErrRetryLimitExceeded)
	require.Equal(t, 4, attempts, "3 tolerated retries plus the terminal 4th attempt")
	require.EqualValues(t, 0, e.Stats().LiveAllocBytes)
}

// S5 Allocation rollback: allocate 1 MiB, force abort before commit; heap
// residency attributable to it is zero.
func TestScenarioS5AllocationRollback(t *testing.T) {
	e := New()
	require.NoError(t, e.Init())

	attempts := 0
	_, err := RunAtomically(e, func(tx *Tx) (struct{}, error) {
		attempts++
		if _, allocErr := Allocate(tx, 1<<20); allocErr != nil {
			return struct{}{}, allocErr
		}
		if attempts == 1 {
			return struct{}{}, ErrRetry
		}
		return struct{}{}, nil
	})
	require.NoError(t, err)
	require.EqualValues(t, 0, e.Stats().LiveAllocBytes)
}

// S6 No deadlock under contention: 8 threads x 10000 transactions, each
// incrementing all 4 shared atoms in a random order; all 80000 transactions
// commit, so each atom ends at 80000 and the four sum to 320000.
func TestScenarioS6NoDeadlockUnderContention(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping contention scenario in -short mode")
	}
	e := New()
	require.NoError(t, e.Init())

	const threads = 8
	const perThread = 10000
	atoms := [4]*Atom[int]{Atomize(0), Atomize(0), Atomize(0), Atomize(0)}
	writeCount := make([]int64, 1)
	var mu sync.Mutex

	var wg sync.WaitGroup
	wg.Add(threads)
	for i := 0; i < threads; i++ {
		go func(seed int) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(int64(seed) + 1))
			for j := 0; j < perThread; j++ {
				order := rnd.Perm(len(atoms))
				_, err := RunAtomically(e, func(tx *Tx) (struct{}, error) {
					for _, idx := range order {
						cur, err := Read(tx, atoms[idx])
						if err != nil {
							return struct{}{}, err
						}
						if err := Write(tx, atoms[idx], cur+1); err != nil {
							return struct{}{}, err
						}
					}
					return struct{}{}, nil
				})
				require.NoError(t, err)
				mu.Lock()
				writeCount[0] += int64(len(order))
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, threads*perThread*len(atoms), writeCount[0])

	total := 0
	_, err := RunAtomically(e, func(tx *Tx) (struct{}, error) {
		total = 0
		for _, a := range atoms {
			v, err := Read(tx, a)
			if err != nil {
				return struct{}{}, err
			}
			total += v
		}
		return struct{}{}, nil
	})
	require.NoError(t, err)
	require.Equal(t, threads*perThread*len(atoms), total)
}
