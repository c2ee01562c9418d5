package stm

import (
	"testing"
	"time"
)

func TestVlockTryAcquireExclusive(t *testing.T) {
	var l vlock
	if !l.tryAcquire() {
		t.Fatal("first tryAcquire should succeed")
	}
	if l.tryAcquire() {
		t.Fatal("second tryAcquire should fail while locked")
	}
	locked, _ := l.load()
	if !locked {
		t.Fatal("load should report locked")
	}
	l.release()
	locked, _ = l.load()
	if locked {
		t.Fatal("load should report unlocked after release")
	}
}

func TestVlockCommitPublishesVersion(t *testing.T) {
	var l vlock
	if !l.tryAcquire() {
		t.Fatal("tryAcquire failed")
	}
	l.commit(42)
	locked, version := l.load()
	if locked {
		t.Fatal("commit should release the lock")
	}
	if version != 42 {
		t.Fatalf("version = %d, want 42", version)
	}
}

func TestVlockReleasePreservesVersion(t *testing.T) {
	var l vlock
	l.tryAcquire()
	l.commit(7)

	l.tryAcquire()
	l.release()

	_, version := l.load()
	if version != 7 {
		t.Fatalf("version = %d, want 7 (release must not change version)", version)
	}
}

func TestVlockCommitWithoutLockPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("commit on an unlocked vlock should panic")
		}
	}()
	var l vlock
	l.commit(1)
}

func TestVlockLockBlocksUntilReleased(t *testing.T) {
	var l vlock
	l.tryAcquire()

	acquired := make(chan struct{})
	go func() {
		l.lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("lock() should not succeed while the lock is held")
	case <-time.After(20 * time.Millisecond):
	}

	l.release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock() should succeed promptly once the lock is released")
	}
}

func TestVlockReleaseWithoutLockPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("release on an unlocked vlock should panic")
		}
	}()
	var l vlock
	l.release()
}
