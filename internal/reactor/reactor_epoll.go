//go:build linux

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

func newBackend() backend {
	return &epollBackend{current: make(map[int]Mask)}
}

// epollBackend is the Linux readiness source (§4.1.1, §4.1.5).
type epollBackend struct {
	fd      int
	events  []unix.EpollEvent
	current map[int]Mask
}

func (b *epollBackend) create(capacity int) error {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	b.fd = fd
	b.events = make([]unix.EpollEvent, capacity)
	return nil
}

func (b *epollBackend) resize(capacity int) error {
	b.events = make([]unix.EpollEvent, capacity)
	return nil
}

func (b *epollBackend) destroy() {
	_ = unix.Close(b.fd)
}

func maskToEpoll(mask Mask) uint32 {
	var ev uint32
	if mask&Readable != 0 {
		ev |= unix.EPOLLIN
	}
	if mask&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func epollToMask(ev uint32) Mask {
	var m Mask
	if ev&(unix.EPOLLIN|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		m |= Readable
	}
	if ev&(unix.EPOLLOUT|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		m |= Writable
	}
	return m
}

// add OR-merges mask into fd's interest set. epoll_ctl has no notion
// of incremental interest, so the backend tracks the combined mask
// per fd itself and issues MOD once ADD has already run.
func (b *epollBackend) add(fd int, mask Mask) error {
	existing, ok := b.current[fd]
	combined := existing | mask
	ev := &unix.EpollEvent{Fd: int32(fd), Events: maskToEpoll(combined)}
	var err error
	if ok {
		err = unix.EpollCtl(b.fd, unix.EPOLL_CTL_MOD, fd, ev)
	} else {
		err = unix.EpollCtl(b.fd, unix.EPOLL_CTL_ADD, fd, ev)
	}
	if err != nil {
		return err
	}
	b.current[fd] = combined
	return nil
}

func (b *epollBackend) del(fd int, mask Mask) error {
	existing := b.current[fd]
	remaining := existing &^ mask
	if remaining == 0 {
		delete(b.current, fd)
		return unix.EpollCtl(b.fd, unix.EPOLL_CTL_DEL, fd, nil)
	}
	ev := &unix.EpollEvent{Fd: int32(fd), Events: maskToEpoll(remaining)}
	if err := unix.EpollCtl(b.fd, unix.EPOLL_CTL_MOD, fd, ev); err != nil {
		return err
	}
	b.current[fd] = remaining
	return nil
}

func (b *epollBackend) poll(timeout *time.Duration, dst []firedEvent) ([]firedEvent, error) {
	ms := -1
	if timeout != nil {
		ms = int(timeout.Milliseconds())
	}
	n, err := unix.EpollWait(b.fd, b.events, ms)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, err
	}
	for i := 0; i < n; i++ {
		dst = append(dst, firedEvent{fd: int(b.events[i].Fd), mask: epollToMask(b.events[i].Events)})
	}
	return dst, nil
}
