// Package reactor implements the single-threaded I/O multiplexing loop
// that drives the keyspace: file events (socket readiness) and time
// events (timers), dispatched in a policy-controlled order on whatever
// goroutine calls Run (§4.1). Apart from the stop flag, which Stop may
// set from any goroutine under its own mutex, the loop takes no lock;
// like dict.Table, it is owned by one goroutine for its whole lifetime.
package reactor

import (
	"sync"
	"time"
)

// Mask is a bitset of readiness conditions a file event is registered
// for. Barrier is not a readiness condition; it modifies delivery
// order when both Readable and Writable fire on the same pass.
type Mask uint8

const (
	Readable Mask = 1 << iota
	Writable
	Barrier
)

// NoMore is the sentinel a TimeProc returns to mean "do not
// reschedule me" (mirrors AE_NOMORE).
const NoMore int64 = -1

// FileProc is invoked once per fired readiness bit for a registered
// fd, except that a FileProc registered for both Readable and Writable
// is invoked once with both bits when both fire. clientData is
// whatever AddFile was called with.
type FileProc func(l *Loop, fd int, clientData any, mask Mask)

// TimeProc is invoked when a time event becomes due. Returning NoMore
// deletes the event; any other return value reschedules it that many
// milliseconds from now.
type TimeProc func(l *Loop, id int64, clientData any) int64

// FinalizerProc runs once, when a time event is actually removed
// (lazily, during the next time-event pass after DeleteTimeEvent).
type FinalizerProc func(clientData any)

// ProcessFlags selects what a single Process call does.
type ProcessFlags uint8

const (
	FileEvents ProcessFlags = 1 << iota
	TimeEvents
	DontWait
	CallAfterSleep

	All = FileEvents | TimeEvents
)

type fileEvent struct {
	mask       Mask
	readProc   FileProc
	writeProc  FileProc
	clientData any
}

type timeEvent struct {
	id         int64
	whenMs     int64
	proc       TimeProc
	clientData any
	finalizer  FinalizerProc
	deleted    bool
	prev       *timeEvent
	next       *timeEvent
}

// backend is the kernel-readiness source a Loop polls through (§4.1.1).
// epoll on Linux, a portable poll(2)-based fallback elsewhere.
type backend interface {
	create(capacity int) error
	resize(capacity int) error
	destroy()
	add(fd int, mask Mask) error
	del(fd int, mask Mask) error
	// poll blocks up to timeout (nil means forever) and appends fired
	// (fd, mask) pairs to dst, returning the extended slice.
	poll(timeout *time.Duration, dst []firedEvent) ([]firedEvent, error)
}

type firedEvent struct {
	fd   int
	mask Mask
}

// Loop is the reactor (§4.1). The zero Loop is not usable; construct
// with New.
type Loop struct {
	capacity int
	maxFD    int
	events   []fileEvent

	timeEventHead *timeEvent
	nextTimeID    int64
	lastTimeMs    int64

	beforeSleep func(*Loop)
	afterSleep  func(*Loop)

	backend backend
	fired   []firedEvent

	stop      bool
	stopMu    sync.Mutex
	wake      *wakePipe
	wakeProc  FileProc
	destroyed bool
}

// New allocates a Loop with fd slots 0..capacity-1 and registers its
// self-pipe wakeup file event (§4.1.6).
func New(capacity int) (*Loop, error) {
	l := &Loop{
		capacity:   capacity,
		maxFD:      -1,
		events:     make([]fileEvent, capacity),
		nextTimeID: 0,
		lastTimeMs: nowMs(),
		backend:    newBackend(),
	}
	if err := l.backend.create(capacity); err != nil {
		return nil, err
	}
	wp, err := newWakePipe()
	if err != nil {
		l.backend.destroy()
		return nil, err
	}
	l.wake = wp
	if err := l.AddFile(wp.readFD, Readable, func(loop *Loop, fd int, _ any, _ Mask) {
		wp.drain()
	}, nil); err != nil {
		wp.close()
		l.backend.destroy()
		return nil, err
	}
	return l, nil
}

// Resize shrinks the loop's capacity, failing if any registered fd is
// at or past the new capacity (§4.1 "resize").
func (l *Loop) Resize(capacity int) error {
	if l.destroyed {
		return ErrStopped
	}
	if l.maxFD >= capacity {
		return ErrOutOfRange
	}
	if err := l.backend.resize(capacity); err != nil {
		return err
	}
	events := make([]fileEvent, capacity)
	copy(events, l.events)
	l.events = events
	l.capacity = capacity
	return nil
}

// Destroy frees the backend and the self-pipe. No events fire as part
// of Destroy.
func (l *Loop) Destroy() {
	if l.destroyed {
		return
	}
	l.destroyed = true
	l.backend.destroy()
	l.wake.close()
}

// SetBeforeSleep installs the hook invoked immediately before each
// blocking poll.
func (l *Loop) SetBeforeSleep(cb func(*Loop)) { l.beforeSleep = cb }

// SetAfterSleep installs the hook invoked immediately after each
// blocking poll, when CallAfterSleep is requested.
func (l *Loop) SetAfterSleep(cb func(*Loop)) { l.afterSleep = cb }

// AddFile registers (or OR-merges) mask for fd. proc is assigned to
// readProc and/or writeProc independently, one assignment per bit
// present in this call's mask, mirroring aeCreateFileEvent's two
// separate "if (mask & AE_READABLE) ... if (mask & AE_WRITABLE) ..."
// checks. A second call that only sets Writable leaves an earlier
// call's Readable callback untouched.
func (l *Loop) AddFile(fd int, mask Mask, proc FileProc, clientData any) error {
	if l.destroyed {
		return ErrStopped
	}
	if fd >= l.capacity {
		return ErrOutOfRange
	}
	fe := &l.events[fd]
	if fe.mask == 0 {
		if err := l.backend.add(fd, mask); err != nil {
			return err
		}
	} else if fe.mask&mask != mask {
		if err := l.backend.add(fd, mask&^fe.mask); err != nil {
			return err
		}
	}
	fe.mask |= mask
	if mask&Readable != 0 {
		fe.readProc = proc
	}
	if mask&Writable != 0 {
		fe.writeProc = proc
	}
	fe.clientData = clientData
	if fd > l.maxFD {
		l.maxFD = fd
	}
	return nil
}

// RemoveFile clears those bits for fd. Removing Writable also clears
// Barrier, since Barrier only has meaning alongside a write interest.
func (l *Loop) RemoveFile(fd int, mask Mask) error {
	if l.destroyed {
		return ErrStopped
	}
	if fd >= l.capacity {
		return ErrOutOfRange
	}
	fe := &l.events[fd]
	if fe.mask == 0 {
		return nil
	}
	if mask&Writable != 0 {
		mask |= Barrier
	}
	removed := fe.mask & mask
	fe.mask &^= mask
	if removed != 0 {
		if err := l.backend.del(fd, removed&^Barrier); err != nil {
			return err
		}
	}
	if fe.mask == 0 && fd == l.maxFD {
		for l.maxFD >= 0 && l.events[l.maxFD].mask == 0 {
			l.maxFD--
		}
	}
	return nil
}

// CreateTimeEvent schedules proc to run after delayMs and returns its
// id. New events are inserted at the list head, an O(1) operation;
// deletion happens lazily via a tombstone (§4.1 "create_time"). The
// list is doubly linked (§3.2, §8.1 invariant 7), so the new head's
// former neighbor gets its prev pointer updated too.
func (l *Loop) CreateTimeEvent(delayMs int64, proc TimeProc, clientData any, finalizer FinalizerProc) int64 {
	id := l.nextTimeID
	l.nextTimeID++
	te := &timeEvent{
		id:         id,
		whenMs:     nowMs() + delayMs,
		proc:       proc,
		clientData: clientData,
		finalizer:  finalizer,
		next:       l.timeEventHead,
	}
	if l.timeEventHead != nil {
		l.timeEventHead.prev = te
	}
	l.timeEventHead = te
	return id
}

// DeleteTimeEvent tombstones a time event; actual removal (and the
// finalizer call) happens during the next time-event pass.
func (l *Loop) DeleteTimeEvent(id int64) {
	for te := l.timeEventHead; te != nil; te = te.next {
		if te.id == id {
			te.deleted = true
			return
		}
	}
}

// Stop requests that Run return after its current Process call. Safe
// to call from any goroutine; it wakes the loop if it is blocked in
// poll.
func (l *Loop) Stop() {
	l.stopMu.Lock()
	l.stop = true
	l.stopMu.Unlock()
	l.Wake()
}

func (l *Loop) shouldStop() bool {
	l.stopMu.Lock()
	defer l.stopMu.Unlock()
	return l.stop
}

// Wake unblocks a concurrent call to poll by writing to the self-pipe
// (§4.1.6). Safe to call from any goroutine.
func (l *Loop) Wake() { l.wake.signal() }

// Run loops Process(All|CallAfterSleep) until Stop is called.
func (l *Loop) Run() {
	for !l.shouldStop() {
		l.Process(All | CallAfterSleep)
	}
}

func nowMs() int64 { return time.Now().UnixMilli() }
