// Command rcored is a minimal harness that gives the reactor, the
// keyspace, the background worker pool, and the lazy-free policy a
// runnable home: a listening socket registered as a file event, one
// additional file event per accepted connection, and a trivial
// line-oriented GET/SET/DEL/SCAN dispatcher against the keyspace
// (§2). It is not a RESP server and must not grow into one.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/TomeC/redis-note/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		listen   string
		setSize  int
		cfgPath  string
		fastHash bool
	)
	flags := pflag.NewFlagSet("rcored", pflag.ContinueOnError)
	flags.StringVar(&listen, "listen", "", "address to listen on (host:port)")
	flags.IntVar(&setSize, "setsize", 0, "reactor file-event capacity")
	flags.StringVar(&cfgPath, "config", "", "path to a JSON-with-comments config file")
	flags.BoolVar(&fastHash, "fast-hash", false, "prefer xxhash over SipHash-1-3 when built with -tags dict_fasthash")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return 2
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(cfgPath, cfgPath != "")
	if err != nil {
		logger.Error("load config", "err", err)
		return 1
	}
	cfg = cfg.ApplyFlags(
		listen, flags.Changed("listen"),
		setSize, flags.Changed("setsize"),
		fastHash, flags.Changed("fast-hash"),
	)

	srv, err := newServer(cfg, logger)
	if err != nil {
		logger.Error("start server", "err", err)
		return 1
	}
	defer srv.close()

	// SIGINT/SIGTERM wake the loop's self-pipe (§4.1.6) instead of
	// killing the process, so close() still runs and tears the
	// keyspace, worker pool, and reactor backend down cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		srv.loop.Stop()
	}()

	logger.Info("rcored listening", "addr", cfg.Listen, "setsize", cfg.SetSize, "fast_hash", cfg.FastHash)
	srv.run()
	return 0
}
