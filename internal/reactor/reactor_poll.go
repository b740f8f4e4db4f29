//go:build !linux

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

func newBackend() backend {
	return &pollBackend{current: make(map[int]Mask)}
}

// pollBackend is the portable fallback readiness source for platforms
// without an epoll binding in x/sys/unix (§4.1.1, §4.1.5): it rebuilds
// the poll(2) fd list from the tracked interest set on every call.
type pollBackend struct {
	current map[int]Mask
}

func (b *pollBackend) create(capacity int) error { return nil }
func (b *pollBackend) resize(capacity int) error { return nil }
func (b *pollBackend) destroy()                  {}

func (b *pollBackend) add(fd int, mask Mask) error {
	b.current[fd] |= mask
	return nil
}

func (b *pollBackend) del(fd int, mask Mask) error {
	remaining := b.current[fd] &^ mask
	if remaining == 0 {
		delete(b.current, fd)
	} else {
		b.current[fd] = remaining
	}
	return nil
}

func maskToPollEvents(mask Mask) int16 {
	var ev int16
	if mask&Readable != 0 {
		ev |= unix.POLLIN
	}
	if mask&Writable != 0 {
		ev |= unix.POLLOUT
	}
	return ev
}

func pollToMask(ev int16) Mask {
	var m Mask
	if ev&(unix.POLLIN|unix.POLLERR|unix.POLLHUP) != 0 {
		m |= Readable
	}
	if ev&(unix.POLLOUT|unix.POLLERR|unix.POLLHUP) != 0 {
		m |= Writable
	}
	return m
}

func (b *pollBackend) poll(timeout *time.Duration, dst []firedEvent) ([]firedEvent, error) {
	if len(b.current) == 0 {
		if timeout != nil {
			time.Sleep(*timeout)
		}
		return dst, nil
	}

	fds := make([]unix.PollFd, 0, len(b.current))
	order := make([]int, 0, len(b.current))
	for fd, mask := range b.current {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: maskToPollEvents(mask)})
		order = append(order, fd)
	}

	ms := -1
	if timeout != nil {
		ms = int(timeout.Milliseconds())
	}
	n, err := unix.Poll(fds, ms)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, err
	}
	if n <= 0 {
		return dst, nil
	}
	for i, pfd := range fds {
		if pfd.Revents != 0 {
			dst = append(dst, firedEvent{fd: order[i], mask: pollToMask(pfd.Revents)})
		}
	}
	return dst, nil
}
