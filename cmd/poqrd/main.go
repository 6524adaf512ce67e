// Command poqrd runs a single POQR relay daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/starboi-63/poqr/directory"
	"github.com/starboi-63/poqr/internal/logging"
	"github.com/starboi-63/poqr/ntru"
	"github.com/starboi-63/poqr/relay"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	port := flag.Int("port", 9001, "TCP port to listen on")
	logPath := flag.String("log", "poqrd.log", "debug log file path")
	flag.Parse()

	logger, logFile := logging.Setup(*logPath)
	defer func() { _ = logFile.Close() }()

	fmt.Printf("=== POQR Relay Daemon %s ===\n", Version)

	priv, pub, err := ntru.GenerateKeyPair(ntru.DefaultParams(), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate identity keypair: %v\n", err)
		os.Exit(1)
	}

	// The directory is a trusted test-bench service (spec §4.11); a
	// real deployment would register over the network instead of
	// in-process, which is out of scope here.
	dir := directory.New()
	rec := dir.Register(uint16(*port), pub)
	logger.Info("relay identity registered", "relayID", rec.RelayID, "port", *port)

	r := relay.New(uint16(*port), priv, pub, dir, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("listening on port %d (relay id %s)\n", *port, rec.RelayID)
	if err := r.ListenAndServe(ctx); err != nil {
		logger.Error("relay exited", "error", err)
		os.Exit(1)
	}
}
