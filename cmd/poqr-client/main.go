// Command poqr-client is a self-contained testbed: it starts three
// in-process relays registered with a local directory, builds a
// 3-hop circuit across them, sends one DATA cell, and tears the
// circuit down. It is the Go-native replacement for the original's
// unfinished REPL/vhost/vrouter example harness (out of scope: the
// virtual IP/RIP router and the REPL command surface).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/starboi-63/poqr/client"
	"github.com/starboi-63/poqr/directory"
	"github.com/starboi-63/poqr/internal/logging"
	"github.com/starboi-63/poqr/ntru"
	"github.com/starboi-63/poqr/relay"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	destPort := flag.Int("dest-port", 80, "destination port the circuit is built for")
	logPath := flag.String("log", "poqr-client.log", "debug log file path")
	flag.Parse()

	logger, logFile := logging.Setup(*logPath)
	defer func() { _ = logFile.Close() }()

	fmt.Printf("=== POQR Client %s ===\n", Version)

	dir := directory.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("starting 3 in-process relays...")
	for i := 0; i < 3; i++ {
		if err := startEmbeddedRelay(ctx, dir, logger); err != nil {
			fmt.Fprintf(os.Stderr, "start relay %d: %v\n", i, err)
			os.Exit(1)
		}
	}
	// Give the relays' listeners a moment to come up before dialing.
	time.Sleep(100 * time.Millisecond)

	priv, pub, err := ntru.GenerateKeyPair(ntru.DefaultParams(), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate client identity: %v\n", err)
		os.Exit(1)
	}
	c := client.New(priv, pub, dir, logger)

	fmt.Println("building circuit...")
	buildCtx, buildCancel := context.WithTimeout(ctx, 30*time.Second)
	defer buildCancel()
	circuit, err := c.BuildCircuit(buildCtx, uint16(*destPort))
	if err != nil {
		fmt.Fprintf(os.Stderr, "build circuit: %v\n", err)
		os.Exit(1)
	}
	defer circuit.TeardownBestEffort()
	fmt.Println("circuit established")

	payload := []byte("hello, post-quantum onion world")
	if err := circuit.SendData(payload); err != nil {
		fmt.Fprintf(os.Stderr, "send data: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("sent %d bytes of application data end to end\n", len(payload))
}

// startEmbeddedRelay spins up a relay.Relay on an OS-assigned loopback
// port and registers it with dir, for this process's own local
// testbed; a real deployment would instead run cmd/poqrd separately
// and register over the network.
func startEmbeddedRelay(ctx context.Context, dir *directory.Directory, logger *slog.Logger) error {
	priv, pub, err := ntru.GenerateKeyPair(ntru.DefaultParams(), nil)
	if err != nil {
		return fmt.Errorf("generate relay identity: %w", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("reserve relay port: %w", err)
	}
	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	ln.Close()

	r := relay.New(port, priv, pub, dir, nil)
	go func() {
		if err := r.ListenAndServe(ctx); err != nil && ctx.Err() == nil {
			logger.Info("embedded relay exited", "port", port, "error", err)
		}
	}()

	rec := dir.Register(port, pub)
	logger.Info("embedded relay started", "relayID", rec.RelayID, "port", port)
	return nil
}
