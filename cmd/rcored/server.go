package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/TomeC/redis-note/internal/bio"
	"github.com/TomeC/redis-note/internal/config"
	"github.com/TomeC/redis-note/internal/dict"
	"github.com/TomeC/redis-note/internal/lazyfree"
	"github.com/TomeC/redis-note/internal/reactor"
)

// server owns the four subsystems and the one listening socket this
// harness exposes them through.
type server struct {
	loop    *reactor.Loop
	table   *dict.Table
	expires *dict.Table
	pool    *bio.Pool
	lazy    *lazyfree.Policy
	log     *slog.Logger

	listenFD int
	conns    map[int]*clientConn

	lastSlots uint64
}

// clientConn buffers a single accepted connection's unparsed input
// between readable events.
type clientConn struct {
	fd  int
	buf []byte
}

func newServer(cfg config.Config, log *slog.Logger) (*server, error) {
	loop, err := reactor.New(cfg.SetSize)
	if err != nil {
		return nil, fmt.Errorf("create reactor: %w", err)
	}

	keyType := dict.SelectKeyType(cfg.FastHash)
	table := dict.New(keyType)
	expires := dict.New(keyType)
	pool := bio.NewPool()
	lazy := lazyfree.New(pool)

	fd, err := listenFD(cfg.Listen)
	if err != nil {
		loop.Destroy()
		pool.KillAll()
		return nil, fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}

	s := &server{
		loop:      loop,
		table:     table,
		expires:   expires,
		pool:      pool,
		lazy:      lazy,
		log:       log,
		listenFD:  fd,
		conns:     make(map[int]*clientConn),
		lastSlots: table.Slots(),
	}

	if err := loop.AddFile(fd, reactor.Readable, s.onAcceptable, nil); err != nil {
		s.close()
		return nil, err
	}

	// Drive incremental rehashing and resize logging even when no
	// connection is currently generating keyspace traffic.
	loop.CreateTimeEvent(100, func(*reactor.Loop, int64, any) int64 {
		s.table.Rehash(1)
		s.expires.Rehash(1)
		s.logResizeIfChanged()
		return 100
	}, nil, nil)

	return s, nil
}

func (s *server) logResizeIfChanged() {
	if got := s.table.Slots(); got != s.lastSlots {
		s.log.Debug("keyspace resized", "slots", got, "previous_slots", s.lastSlots)
		s.lastSlots = got
	}
}

// listenFD opens a nonblocking TCP listening socket with raw unix
// syscalls instead of the net package, so its fd can be registered
// directly with the reactor's own backend rather than the Go
// runtime's separate netpoller.
func listenFD(addr string) (int, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp4", addr)
	if err != nil {
		return -1, err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, err
	}

	var sa unix.SockaddrInet4
	if ip := tcpAddr.IP.To4(); ip != nil {
		copy(sa.Addr[:], ip)
	}
	sa.Port = tcpAddr.Port
	if err := unix.Bind(fd, &sa); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func (s *server) run() { s.loop.Run() }

func (s *server) close() {
	for fd := range s.conns {
		unix.Close(fd)
	}
	if s.listenFD >= 0 {
		unix.Close(s.listenFD)
	}
	s.pool.KillAll()
	s.table.Destroy()
	s.expires.Destroy()
	s.loop.Destroy()
}

func (s *server) onAcceptable(l *reactor.Loop, fd int, _ any, _ reactor.Mask) {
	for {
		nfd, _, err := unix.Accept(fd)
		if err != nil {
			if err != unix.EAGAIN {
				s.log.Debug("accept", "err", err)
			}
			return
		}
		if err := unix.SetNonblock(nfd, true); err != nil {
			unix.Close(nfd)
			continue
		}

		c := &clientConn{fd: nfd}
		s.conns[nfd] = c
		if err := l.AddFile(nfd, reactor.Readable, s.onReadable, nil); err != nil {
			s.log.Debug("register connection", "fd", nfd, "err", err)
			unix.Close(nfd)
			delete(s.conns, nfd)
			continue
		}
		s.log.Debug("connection accepted", "fd", nfd)
	}
}

func (s *server) onReadable(l *reactor.Loop, fd int, _ any, _ reactor.Mask) {
	c := s.conns[fd]
	if c == nil {
		return
	}

	var tmp [4096]byte
	n, err := unix.Read(fd, tmp[:])
	if n == 0 || (err != nil && err != unix.EAGAIN) {
		s.closeConn(l, fd)
		return
	}
	if n > 0 {
		c.buf = append(c.buf, tmp[:n]...)
	}

	for {
		i := bytes.IndexByte(c.buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(c.buf[:i]), "\r")
		c.buf = c.buf[i+1:]
		reply := s.dispatch(line) + "\n"
		if _, werr := unix.Write(fd, []byte(reply)); werr != nil {
			s.closeConn(l, fd)
			return
		}
	}
}

func (s *server) closeConn(l *reactor.Loop, fd int) {
	_ = l.RemoveFile(fd, reactor.Readable|reactor.Writable)
	unix.Close(fd)
	delete(s.conns, fd)
	s.log.Debug("connection closed", "fd", fd)
}

// dispatch implements the harness's four-command line protocol
// (§2). It is deliberately not RESP: a real command table and wire
// codec are still a non-goal.
func (s *server) dispatch(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "ERR empty command"
	}

	switch strings.ToUpper(fields[0]) {
	case "GET":
		return s.cmdGet(fields)
	case "SET":
		return s.cmdSet(fields)
	case "DEL":
		return s.cmdDel(fields)
	case "SCAN":
		return s.cmdScan(fields)
	default:
		return "ERR unknown command"
	}
}

func (s *server) cmdGet(fields []string) string {
	if len(fields) != 2 {
		return "ERR usage: GET key"
	}
	v, ok := s.table.Find([]byte(fields[1]))
	if !ok {
		return "(nil)"
	}
	return formatValue(v)
}

func (s *server) cmdSet(fields []string) string {
	if len(fields) != 3 {
		return "ERR usage: SET key value"
	}
	var val dict.Value
	if n, err := strconv.ParseInt(fields[2], 10, 64); err == nil {
		val = dict.NewInt(n)
	} else {
		val = dict.NewBytes([]byte(fields[2]))
	}
	s.table.Replace([]byte(fields[1]), val)
	return "OK"
}

func (s *server) cmdDel(fields []string) string {
	if len(fields) != 2 {
		return "ERR usage: DEL key"
	}
	if s.lazy.AsyncDelete(s.table, s.expires, []byte(fields[1])) {
		return "1"
	}
	return "0"
}

func (s *server) cmdScan(fields []string) string {
	var cursor uint64
	if len(fields) == 2 {
		if c, err := strconv.ParseUint(fields[1], 10, 64); err == nil {
			cursor = c
		}
	}
	var keys []string
	next := s.table.Scan(cursor, func(ref dict.EntryRef) {
		keys = append(keys, string(ref.Key()))
	}, nil)
	return fmt.Sprintf("%d %s", next, strings.Join(keys, " "))
}

func formatValue(v dict.Value) string {
	switch t := v.(type) {
	case *dict.Int:
		return strconv.FormatInt(t.N, 10)
	case *dict.Uint:
		return strconv.FormatUint(t.N, 10)
	case *dict.Float:
		return strconv.FormatFloat(t.F, 'g', -1, 64)
	case *dict.Bytes:
		return string(t.Data)
	default:
		return "(unsupported)"
	}
}
