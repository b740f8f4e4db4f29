package reactor

import "golang.org/x/sys/unix"

// wakePipe is the self-pipe a Loop registers as a Readable file event
// so that Wake, called from any goroutine, can unblock a concurrent
// backend.poll (§4.1.6).
type wakePipe struct {
	readFD  int
	writeFD int
}

func newWakePipe() (*wakePipe, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, err
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, err
	}
	return &wakePipe{readFD: fds[0], writeFD: fds[1]}, nil
}

func (w *wakePipe) signal() {
	var b [1]byte
	_, _ = unix.Write(w.writeFD, b[:])
}

func (w *wakePipe) drain() {
	var buf [64]byte
	for {
		n, err := unix.Read(w.readFD, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (w *wakePipe) close() {
	_ = unix.Close(w.readFD)
	_ = unix.Close(w.writeFD)
}
