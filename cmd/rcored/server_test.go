package main

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/TomeC/redis-note/internal/config"
)

func startTestServer(t *testing.T) (*server, string) {
	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.SetSize = 256

	// listenFD needs a concrete port, so resolve an ephemeral one
	// first and rewrite cfg.Listen before the socket is actually
	// opened.
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()
	cfg.Listen = addr

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := newServer(cfg, logger)
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		srv.run()
		close(done)
	}()
	t.Cleanup(func() {
		srv.loop.Stop()
		<-done
		srv.close()
	})
	return srv, addr
}

func sendLine(t *testing.T, conn net.Conn, reader *bufio.Reader, line string) string {
	if _, err := conn.Write([]byte(line + "\n")); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	return reply[:len(reply)-1]
}

func TestGetSetDelRoundTrip(t *testing.T) {
	_, addr := startTestServer(t)

	conn, err := net.Dial("tcp4", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	reader := bufio.NewReader(conn)

	if got := sendLine(t, conn, reader, "GET missing"); got != "(nil)" {
		t.Fatalf("GET missing = %q, want (nil)", got)
	}
	if got := sendLine(t, conn, reader, "SET foo 42"); got != "OK" {
		t.Fatalf("SET = %q, want OK", got)
	}
	if got := sendLine(t, conn, reader, "GET foo"); got != "42" {
		t.Fatalf("GET foo = %q, want 42", got)
	}
	if got := sendLine(t, conn, reader, "DEL foo"); got != "1" {
		t.Fatalf("DEL foo = %q, want 1", got)
	}
	if got := sendLine(t, conn, reader, "DEL foo"); got != "0" {
		t.Fatalf("second DEL foo = %q, want 0", got)
	}
}

func TestScanReturnsInsertedKeys(t *testing.T) {
	_, addr := startTestServer(t)

	conn, err := net.Dial("tcp4", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	reader := bufio.NewReader(conn)

	sendLine(t, conn, reader, "SET a 1")
	sendLine(t, conn, reader, "SET b 2")

	seen := map[string]bool{}
	cursor := "0"
	for steps := 0; steps < 10; steps++ {
		reply := sendLine(t, conn, reader, "SCAN "+cursor)
		parts := strings.SplitN(reply, " ", 2)
		cursor = parts[0]
		if len(parts) == 2 {
			for _, k := range strings.Fields(parts[1]) {
				seen[k] = true
			}
		}
		if cursor == "0" {
			break
		}
	}

	if !seen["a"] || !seen["b"] {
		t.Fatalf("scan did not return both keys: %v", seen)
	}
}
