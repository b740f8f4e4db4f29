package reactor

import (
	"testing"

	"golang.org/x/sys/unix"
)

// TestBarrierOrdering covers S3: a file event with a distinct read
// handler and a distinct write handler (the standard pattern for a
// connection needing its own flush-on-writable logic), registered
// Readable|Writable|Barrier, with both ready simultaneously, must
// invoke the Writable callback before the Readable one.
func TestBarrierOrdering(t *testing.T) {
	l, err := New(1024)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Destroy()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	a, b := fds[0], fds[1]
	defer unix.Close(a)
	defer unix.Close(b)
	if err := unix.SetNonblock(b, true); err != nil {
		t.Fatal(err)
	}

	// b is readable (a wrote to it) and writable (its send buffer is
	// empty), so both bits fire on the same pass.
	if _, err := unix.Write(a, []byte("x")); err != nil {
		t.Fatal(err)
	}

	var order []string
	if err := l.AddFile(b, Readable, func(_ *Loop, _ int, _ any, _ Mask) {
		order = append(order, "read")
	}, nil); err != nil {
		t.Fatal(err)
	}
	if err := l.AddFile(b, Writable|Barrier, func(_ *Loop, _ int, _ any, _ Mask) {
		order = append(order, "write")
	}, nil); err != nil {
		t.Fatal(err)
	}

	l.Process(FileEvents | DontWait)

	if len(order) != 2 || order[0] != "write" || order[1] != "read" {
		t.Fatalf("fired order = %v, want [write read]", order)
	}
}

// TestNoBarrierOrdering is Barrier's negative case: without it, the
// normal order is Readable then Writable.
func TestNoBarrierOrdering(t *testing.T) {
	l, err := New(1024)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Destroy()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	a, b := fds[0], fds[1]
	defer unix.Close(a)
	defer unix.Close(b)
	if err := unix.SetNonblock(b, true); err != nil {
		t.Fatal(err)
	}
	if _, err := unix.Write(a, []byte("x")); err != nil {
		t.Fatal(err)
	}

	var order []string
	if err := l.AddFile(b, Readable, func(_ *Loop, _ int, _ any, _ Mask) {
		order = append(order, "read")
	}, nil); err != nil {
		t.Fatal(err)
	}
	if err := l.AddFile(b, Writable, func(_ *Loop, _ int, _ any, _ Mask) {
		order = append(order, "write")
	}, nil); err != nil {
		t.Fatal(err)
	}

	l.Process(FileEvents | DontWait)

	if len(order) != 2 || order[0] != "read" || order[1] != "write" {
		t.Fatalf("fired order = %v, want [read write]", order)
	}
}

// TestAddFilePreservesOtherDirectionCallback is the regression case
// for the single-proc collapse bug: registering Writable with a new
// callback must not disturb an already-registered Readable callback
// for the same fd.
func TestAddFilePreservesOtherDirectionCallback(t *testing.T) {
	l, err := New(1024)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Destroy()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	a, b := fds[0], fds[1]
	defer unix.Close(a)
	defer unix.Close(b)
	if err := unix.SetNonblock(b, true); err != nil {
		t.Fatal(err)
	}
	if _, err := unix.Write(a, []byte("x")); err != nil {
		t.Fatal(err)
	}

	readFired, writeFired := false, false
	if err := l.AddFile(b, Readable, func(_ *Loop, _ int, _ any, _ Mask) {
		readFired = true
	}, nil); err != nil {
		t.Fatal(err)
	}
	if err := l.AddFile(b, Writable, func(_ *Loop, _ int, _ any, _ Mask) {
		writeFired = true
	}, nil); err != nil {
		t.Fatal(err)
	}

	l.Process(FileEvents | DontWait)

	if !readFired || !writeFired {
		t.Fatalf("readFired=%v writeFired=%v, want both true", readFired, writeFired)
	}
}

// TestSharedCallbackFiresOnce covers §4.1.2(d): when the same callback
// is registered for both Readable and Writable in one AddFile call, it
// must fire exactly once, with the combined mask, not once per bit.
func TestSharedCallbackFiresOnce(t *testing.T) {
	l, err := New(1024)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Destroy()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	a, b := fds[0], fds[1]
	defer unix.Close(a)
	defer unix.Close(b)
	if err := unix.SetNonblock(b, true); err != nil {
		t.Fatal(err)
	}
	if _, err := unix.Write(a, []byte("x")); err != nil {
		t.Fatal(err)
	}

	calls := 0
	var gotMask Mask
	if err := l.AddFile(b, Readable|Writable, func(_ *Loop, _ int, _ any, mask Mask) {
		calls++
		gotMask = mask
	}, nil); err != nil {
		t.Fatal(err)
	}

	l.Process(FileEvents | DontWait)

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if gotMask&Readable == 0 || gotMask&Writable == 0 {
		t.Fatalf("mask = %v, want both Readable and Writable set", gotMask)
	}
}

// TestTimeEventClockSkew covers S6: if the wall clock appears to move
// backward between time-event passes, every pending event must become
// due immediately rather than waiting out its original delay.
func TestTimeEventClockSkew(t *testing.T) {
	l, err := New(1024)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Destroy()

	fired := false
	l.CreateTimeEvent(10_000, func(*Loop, int64, any) int64 {
		fired = true
		return NoMore
	}, nil, nil)

	// Simulate the clock having moved 30s backward by pretending the
	// loop last observed a time far in the future.
	l.lastTimeMs = nowMs() + 30_000

	l.processTimeEvents()

	if !fired {
		t.Fatal("time event did not fire after simulated clock skew")
	}
}

// TestTimeEventReschedule covers normal (non-sentinel) rescheduling:
// the callback's return value becomes the next delay.
func TestTimeEventReschedule(t *testing.T) {
	l, err := New(1024)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Destroy()

	calls := 0
	id := l.CreateTimeEvent(0, func(loop *Loop, _ int64, _ any) int64 {
		calls++
		if calls >= 3 {
			return NoMore
		}
		return 0
	}, nil, nil)
	_ = id

	for i := 0; i < 3; i++ {
		l.processTimeEvents()
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}

	// A fourth pass must not fire again: the event tombstoned itself.
	l.processTimeEvents()
	if calls != 3 {
		t.Fatalf("calls after tombstone = %d, want 3", calls)
	}
}

// TestDeleteTimeEventRunsFinalizer covers the lazy-tombstone removal
// path: DeleteTimeEvent marks the event, and the finalizer runs on the
// next pass, not synchronously.
func TestDeleteTimeEventRunsFinalizer(t *testing.T) {
	l, err := New(1024)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Destroy()

	finalized := false
	id := l.CreateTimeEvent(60_000, func(*Loop, int64, any) int64 {
		t.Fatal("proc must not run for a deleted event")
		return NoMore
	}, nil, func(any) { finalized = true })

	l.DeleteTimeEvent(id)
	if finalized {
		t.Fatal("finalizer ran synchronously from DeleteTimeEvent")
	}

	l.processTimeEvents()
	if !finalized {
		t.Fatal("finalizer did not run on the next time-event pass")
	}
}

// TestAddFileOutOfRange covers the §4.1.4 failure semantics: a fd at
// or past capacity is a programming error reported as ErrOutOfRange.
func TestAddFileOutOfRange(t *testing.T) {
	l, err := New(1024)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Destroy()

	if err := l.AddFile(1024, Readable, func(*Loop, int, any, Mask) {}, nil); err != ErrOutOfRange {
		t.Fatalf("AddFile(1024, ...) = %v, want ErrOutOfRange", err)
	}
}

// TestAddFileAfterDestroy covers ErrStopped: once Destroy has run, the
// loop must refuse further registration rather than touch a backend
// that is already gone.
func TestAddFileAfterDestroy(t *testing.T) {
	l, err := New(1024)
	if err != nil {
		t.Fatal(err)
	}
	l.Destroy()

	if err := l.AddFile(3, Readable, func(*Loop, int, any, Mask) {}, nil); err != ErrStopped {
		t.Fatalf("AddFile after Destroy = %v, want ErrStopped", err)
	}
	if err := l.RemoveFile(3, Readable); err != ErrStopped {
		t.Fatalf("RemoveFile after Destroy = %v, want ErrStopped", err)
	}
	if err := l.Resize(2048); err != ErrStopped {
		t.Fatalf("Resize after Destroy = %v, want ErrStopped", err)
	}
}

// TestTimeEventListDoublyLinked covers invariant 7: walking the
// time-event list forward from the head and backward from the tail
// must visit the same set of events.
func TestTimeEventListDoublyLinked(t *testing.T) {
	l, err := New(1024)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Destroy()

	want := map[int64]bool{}
	noop := func(*Loop, int64, any) int64 { return NoMore }
	for i := 0; i < 5; i++ {
		want[l.CreateTimeEvent(int64(60_000+i), noop, nil, nil)] = true
	}

	var tail *timeEvent
	forward := map[int64]bool{}
	for te := l.timeEventHead; te != nil; te = te.next {
		forward[te.id] = true
		tail = te
	}
	if len(forward) != len(want) {
		t.Fatalf("forward traversal visited %d events, want %d", len(forward), len(want))
	}

	backward := map[int64]bool{}
	for te := tail; te != nil; te = te.prev {
		backward[te.id] = true
	}
	if len(backward) != len(forward) {
		t.Fatalf("backward traversal visited %d events, forward visited %d", len(backward), len(forward))
	}
	for id := range forward {
		if !backward[id] {
			t.Fatalf("event %d visited forward but not backward", id)
		}
	}
}

// TestTimeEventPrevMaintainedAfterRemoval checks that tombstoning the
// middle of the list keeps prev/next consistent on both sides of the
// gap once the next time-event pass reaps it.
func TestTimeEventPrevMaintainedAfterRemoval(t *testing.T) {
	l, err := New(1024)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Destroy()

	noop := func(*Loop, int64, any) int64 { return NoMore }
	idA := l.CreateTimeEvent(60_000, noop, nil, nil)
	idB := l.CreateTimeEvent(60_000, noop, nil, nil)
	idC := l.CreateTimeEvent(60_000, noop, nil, nil)
	_, _ = idA, idC

	l.DeleteTimeEvent(idB)
	l.processTimeEvents()

	for te := l.timeEventHead; te != nil; te = te.next {
		if te.next != nil && te.next.prev != te {
			t.Fatalf("prev pointer mismatch after removing middle event")
		}
		if te.prev != nil && te.prev.next != te {
			t.Fatalf("next pointer mismatch after removing middle event")
		}
		if te.id == idB {
			t.Fatal("tombstoned event still in the list after a time-event pass")
		}
	}
}
