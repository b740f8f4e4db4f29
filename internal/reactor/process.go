package reactor

import (
	"reflect"
	"time"
)

// Process runs one pass of the algorithm in §4.1.2 and returns the
// number of file and time events fired.
func (l *Loop) Process(flags ProcessFlags) int {
	if flags&(FileEvents|TimeEvents) == 0 {
		return 0
	}

	fired := 0
	if l.maxFD >= 0 || (flags&TimeEvents != 0 && flags&DontWait == 0) {
		var timeout *time.Duration
		switch {
		case flags&TimeEvents != 0 && flags&DontWait == 0:
			d := l.nearestTimerDelay()
			timeout = &d
		case flags&DontWait != 0:
			d := time.Duration(0)
			timeout = &d
		default:
			timeout = nil // block forever
		}

		if l.beforeSleep != nil {
			l.beforeSleep(l)
		}

		var err error
		l.fired, err = l.backend.poll(timeout, l.fired[:0])
		_ = err // backend errors on poll are spurious per §4.1.4; ignored here

		if l.afterSleep != nil && flags&CallAfterSleep != 0 {
			l.afterSleep(l)
		}

		for _, fe := range l.fired {
			entry := &l.events[fe.fd]
			mask := fe.mask & entry.mask

			readDue := mask&Readable != 0 && entry.readProc != nil
			writeDue := mask&Writable != 0 && entry.writeProc != nil

			// When the same callback was registered for both
			// directions, invoke it once with the combined mask
			// rather than twice, mirroring ae.c's
			// "!fired || fe->wfileProc != fe->rfileProc" guard.
			if readDue && writeDue && sameFileProc(entry.readProc, entry.writeProc) {
				entry.readProc(l, fe.fd, entry.clientData, mask)
			} else if entry.mask&Barrier != 0 {
				if writeDue {
					entry.writeProc(l, fe.fd, entry.clientData, Writable)
				}
				if readDue {
					entry.readProc(l, fe.fd, entry.clientData, Readable)
				}
			} else {
				if readDue {
					entry.readProc(l, fe.fd, entry.clientData, Readable)
				}
				if writeDue {
					entry.writeProc(l, fe.fd, entry.clientData, Writable)
				}
			}
			fired++
		}
	}

	if flags&TimeEvents != 0 {
		fired += l.processTimeEvents()
	}
	return fired
}

// sameFileProc reports whether a and b are the same underlying
// function, the Go equivalent of ae.c's rfileProc/wfileProc pointer
// comparison. Func values can only be compared against nil directly,
// so identity is checked through reflect.
func sameFileProc(a, b FileProc) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

// nearestTimerDelay scans the time-event list for the closest
// deadline, per the linear-scan note in §4.1.2/§9 ("the source
// time-event list search is O(N)").
func (l *Loop) nearestTimerDelay() time.Duration {
	if l.timeEventHead == nil {
		return 100 * time.Millisecond
	}
	now := nowMs()
	nearest := l.timeEventHead.whenMs
	for te := l.timeEventHead.next; te != nil; te = te.next {
		if te.whenMs < nearest {
			nearest = te.whenMs
		}
	}
	if nearest <= now {
		return 0
	}
	return time.Duration(nearest-now) * time.Millisecond
}

// processTimeEvents implements §4.1.3: clock-skew correction, lazy
// tombstone removal, and due-event dispatch with rescheduling.
func (l *Loop) processTimeEvents() int {
	now := nowMs()
	if now < l.lastTimeMs {
		for te := l.timeEventHead; te != nil; te = te.next {
			te.whenMs = 0
		}
	}
	l.lastTimeMs = now

	maxID := l.nextTimeID - 1
	fired := 0

	var prev *timeEvent
	te := l.timeEventHead
	for te != nil {
		next := te.next
		if te.deleted {
			if te.finalizer != nil {
				te.finalizer(te.clientData)
			}
			if prev == nil {
				l.timeEventHead = next
			} else {
				prev.next = next
			}
			if next != nil {
				next.prev = prev
			}
			te = next
			continue
		}
		if te.id > maxID {
			prev = te
			te = next
			continue
		}
		if te.whenMs <= now {
			ret := te.proc(l, te.id, te.clientData)
			fired++
			if ret == NoMore {
				te.deleted = true
			} else {
				te.whenMs = nowMs() + ret
			}
		}
		prev = te
		te = next
	}
	return fired
}
