// Package relay implements a POQR relay node: it accepts inbound
// channels, services CREATE/EXTEND/DATA cells against a per-circuit
// state machine, and forwards onion-wrapped traffic one hop closer to
// its destination.
package relay

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"golang.org/x/crypto/blake2b"

	"github.com/starboi-63/poqr/channel"
	"github.com/starboi-63/poqr/classical"
	"github.com/starboi-63/poqr/directory"
	"github.com/starboi-63/poqr/node"
	"github.com/starboi-63/poqr/ntru"
	"github.com/starboi-63/poqr/onion"
	"github.com/starboi-63/poqr/tables"
)

// circuitState is one state in the per-circuit machine: Idle exists
// only conceptually and HalfOpen is defined but never entered, since
// handleCreate registers a circuit directly in Open as it answers
// CREATE; a relay moves to ExtendPending while it is waiting on the
// next hop's CREATED/EXTENDED, back to Open once that arrives, and
// finally to Closed when handleEnd processes the circuit's END.
type circuitState int

const (
	StateHalfOpen circuitState = iota
	StateOpen
	StateExtendPending
	StateClosed
)

func (s circuitState) String() string {
	switch s {
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	case StateExtendPending:
		return "extend_pending"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// replayWindow bounds how many recent digests a circuit remembers
// before the oldest is evicted; a relay only ever has a handful of
// cells in flight per circuit at once, so this is generous rather than
// tight.
const replayWindow = 64

// circuitInfo is the relay's complete state for one circuit: which
// channel it arrived on, which channel (if any) extends it one hop
// further, the classical onion keypair this relay generated for it,
// and a small replay guard.
type circuitInfo struct {
	state circuitState

	prevChannel   *channel.Channel
	prevCircuitID uint32

	nextChannel   *channel.Channel
	nextCircuitID uint32

	ownOnionKeyPair *classical.KeyPair

	seenDigests   [][blake2b.Size]byte
	seenDigestSet map[[blake2b.Size]byte]bool
}

// Relay is a POQR relay node.
type Relay struct {
	listenPort uint16
	priv       *ntru.PrivateKey
	pub        *ntru.PublicKey

	dir    *directory.Directory
	logger *slog.Logger

	ids      *tables.CircuitTable // allocates ids for channels this relay originates (forwarding hops)
	channels *tables.ChannelTable // circuit-id -> channel, for anything outside the dispatcher that needs to locate one

	// circuits is keyed by both the prev-hop and, once extended, the
	// next-hop circuit id, so a lookup from either direction finds the
	// same circuitInfo. It is touched only from the dispatcher's single
	// goroutine, so it needs no lock of its own.
	circuits map[uint32]*circuitInfo

	dispatcher *node.Dispatcher
	sendPool   *node.SendPool
}

const (
	keyCreate = iota
	keyExtend
	keyExtended
	keyData
	keyEnd
)

// New constructs a Relay listening on listenPort with the given NTRU
// identity keypair. It does not register the relay with dir; callers
// do that themselves.
func New(listenPort uint16, priv *ntru.PrivateKey, pub *ntru.PublicKey, dir *directory.Directory, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Relay{
		listenPort: listenPort,
		priv:       priv,
		pub:        pub,
		dir:        dir,
		logger:     logger,
		ids:        tables.NewCircuitTable(),
		channels:   tables.NewChannelTable(),
		circuits:   make(map[uint32]*circuitInfo),
		sendPool:   node.NewSendPool(4, 64),
	}
	handlers := node.HandlerTable{
		keyCreate:   r.handleCreate,
		keyExtend:   r.handleExtend,
		keyExtended: r.handleCreatedOrExtended,
		keyData:     r.handleData,
		keyEnd:      r.handleEnd,
	}
	r.dispatcher = node.NewDispatcher(256, handlers, dispatchKey, logger)
	return r
}

func dispatchKey(pkt channel.Packet) int {
	switch m := pkt.Message.(type) {
	case *onion.CreateMessage:
		return keyCreate
	case *onion.CreatedMessage:
		return keyExtended
	case *onion.PeeledRelayMessage:
		switch m.RelayTag {
		case onion.RelayTagExtend:
			return keyExtend
		case onion.RelayTagExtended:
			return keyExtended
		case onion.RelayTagData, onion.RelayTagBegin:
			return keyData
		case onion.RelayTagEnd:
			return keyEnd
		}
	}
	return -1
}

// ListenAndServe accepts inbound connections until ctx is cancelled.
// Each connection is handed to acceptConn on its own goroutine so that
// reading the caller's identity handshake never stalls the Accept
// loop for other, unrelated connections.
func (r *Relay) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(int(r.listenPort))))
	if err != nil {
		return fmt.Errorf("relay: listen: %w", err)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	go r.dispatcher.Run(ctx)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("relay: accept: %w", err)
		}
		go r.acceptConn(ctx, conn)
	}
}

// acceptConn reads the caller's identity handshake off a freshly
// accepted connection, then wraps it in a Channel and starts its
// reader. The connection is closed and dropped if the handshake
// fails; a well-behaved peer always sends its identity first.
func (r *Relay) acceptConn(ctx context.Context, conn net.Conn) {
	forwardIdentityKey, err := channel.ReadIdentity(conn, r.priv.Params)
	if err != nil {
		r.logger.Warn("relay: accept: identity handshake failed", "error", err)
		conn.Close()
		return
	}
	ch := channel.New(conn, forwardIdentityKey, r.priv, nil, r.dispatcher.Inbox, r.logger)
	ch.SpawnReader(ctx)
}

func (r *Relay) sendOn(ch *channel.Channel, circuitID uint32, msg onion.Message) {
	r.sendPool.Submit(func() {
		if err := ch.Send(circuitID, msg); err != nil {
			r.logger.Warn("relay: send failed", "circuitID", circuitID, "error", err)
		}
	})
}

// digestOf hashes a cell's peeled, wire-relevant fields rather than
// its raw ciphertext, since NTRU/classical wrapping is randomized and
// the same logical cell is never bit-identical twice on the wire. A
// repeat digest means the same already-processed plaintext reached the
// dispatcher again (e.g. a duplicated read), not necessarily replayed
// ciphertext, but it's still worth catching so a circuit doesn't
// double-act on it.
func digestOf(key []byte, circuitID uint32, relayTag byte, body []byte) [blake2b.Size]byte {
	h, _ := blake2b.New256(key)
	var circBuf [4]byte
	circBuf[0] = byte(circuitID >> 24)
	circBuf[1] = byte(circuitID >> 16)
	circBuf[2] = byte(circuitID >> 8)
	circBuf[3] = byte(circuitID)
	h.Write(circBuf[:])
	h.Write([]byte{relayTag})
	h.Write(body)
	var out [blake2b.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

var replayGuardKey = func() []byte {
	key := make([]byte, 32)
	_, _ = rand.Read(key)
	return key
}()

// seenBefore records d against info's replay window, evicting the
// oldest entry once the window is full, and reports whether d had
// already been seen.
func (info *circuitInfo) seenBefore(d [blake2b.Size]byte) bool {
	if info.seenDigestSet == nil {
		info.seenDigestSet = make(map[[blake2b.Size]byte]bool, replayWindow)
	}
	if info.seenDigestSet[d] {
		return true
	}
	if len(info.seenDigests) >= replayWindow {
		oldest := info.seenDigests[0]
		info.seenDigests = info.seenDigests[1:]
		delete(info.seenDigestSet, oldest)
	}
	info.seenDigests = append(info.seenDigests, d)
	info.seenDigestSet[d] = true
	return false
}
