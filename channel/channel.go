// Package channel implements the duplex peer connection that carries
// onion-wrapped cells between two nodes: egress onion-wrap on send,
// ingress onion-peel on recv, and a reader goroutine that feeds
// received packets to the owning node's dispatcher.
package channel

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/starboi-63/poqr/classical"
	"github.com/starboi-63/poqr/ntru"
	"github.com/starboi-63/poqr/onion"
)

// Packet is a fully-peeled message handed off to a node's dispatcher,
// tagged with the circuit it arrived on and the channel that
// delivered it (needed the first time a circuit is seen, before it has
// been registered in a channel table keyed by circuit id).
type Packet struct {
	CircuitID uint32
	Message   onion.Message
	Channel   *Channel
}

// SendIdentity writes pub as the first bytes on a freshly dialed
// connection, length-prefixed the same way Cell frames a ciphertext:
// a 4-byte big-endian length followed by pub.Bytes(). This is how a
// dialing party (client or relay extending a circuit) announces its
// lattice identity to the peer it just connected to, replacing the
// in-band ClientIdentityPub field CREATE no longer carries: the peer
// learns which identity key to address CREATED/EXTENDED back to
// before any onion-wrapped cell is ever read on this connection.
func SendIdentity(conn io.Writer, pub *ntru.PublicKey) error {
	body := pub.Bytes()
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, uint32(len(body)))
	if _, err := conn.Write(hdr); err != nil {
		return fmt.Errorf("channel: send identity: %w", err)
	}
	if _, err := conn.Write(body); err != nil {
		return fmt.Errorf("channel: send identity: %w", err)
	}
	return nil
}

// ReadIdentity reads the identity handshake SendIdentity writes. An
// accepting party calls this once, before entering its per-cell
// dispatch loop on the connection.
func ReadIdentity(conn io.Reader, params ntru.Params) (*ntru.PublicKey, error) {
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return nil, fmt.Errorf("channel: read identity: %w", err)
	}
	bodyLen := binary.BigEndian.Uint32(hdr)
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(conn, body); err != nil {
		return nil, fmt.Errorf("channel: read identity: %w", err)
	}
	pub, err := ntru.PublicKeyFromBytes(body, params)
	if err != nil {
		return nil, fmt.Errorf("channel: read identity: %w", err)
	}
	return pub, nil
}

// Channel owns one duplex connection to a peer and the key material
// needed to wrap outgoing cells and peel incoming ones.
type Channel struct {
	mu sync.RWMutex // guards forwardIdentityKey, forwardOnionKeys, backwardOnionKeys

	forwardIdentityKey   *ntru.PublicKey
	backwardIdentityPriv *ntru.PrivateKey
	forwardOnionKeys     []*classical.PublicKey
	backwardOnionKeys    []*classical.KeyPair

	conn         io.ReadWriteCloser
	dispatchSink chan<- Packet
	logger       *slog.Logger
}

// New constructs a Channel over conn. forwardIdentityKey and
// backwardIdentityPriv are the NTRU keys used for this channel's
// identity layer; backwardOnionKeys is fixed at construction per the
// Channel entity's invariants, except for a relay accepting an inbound
// connection: it passes the identity key read by ReadIdentity and nil
// backward onion keys, and calls InstallBackwardOnionKey once it
// processes the circuit's CREATE. dispatchSink receives packets read
// by SpawnReader.
func New(
	conn io.ReadWriteCloser,
	forwardIdentityKey *ntru.PublicKey,
	backwardIdentityPriv *ntru.PrivateKey,
	backwardOnionKeys []*classical.KeyPair,
	dispatchSink chan<- Packet,
	logger *slog.Logger,
) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		conn:                 conn,
		forwardIdentityKey:   forwardIdentityKey,
		backwardIdentityPriv: backwardIdentityPriv,
		backwardOnionKeys:    backwardOnionKeys,
		dispatchSink:         dispatchSink,
		logger:               logger,
	}
}

// SetForwardIdentityKey installs or replaces the peer's lattice
// identity public key used to wrap outgoing cells.
func (c *Channel) SetForwardIdentityKey(pub *ntru.PublicKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forwardIdentityKey = pub
}

// InstallBackwardOnionKey installs this channel's single backward
// onion key, generated by a relay in response to a circuit's CREATE.
func (c *Channel) InstallBackwardOnionKey(kp *classical.KeyPair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backwardOnionKeys = []*classical.KeyPair{kp}
}

// AddForwardOnionKey appends a newly-established forward onion key:
// the client adds one per processed CREATED or EXTENDED, and a relay
// adds the client's key from CREATE. The list only grows.
func (c *Channel) AddForwardOnionKey(pub *classical.PublicKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forwardOnionKeys = append(c.forwardOnionKeys, pub)
}

// ForwardOnionKeys returns a snapshot of the current forward onion key
// list, outermost (first hop) first.
func (c *Channel) ForwardOnionKeys() []*classical.PublicKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*classical.PublicKey, len(c.forwardOnionKeys))
	copy(out, c.forwardOnionKeys)
	return out
}

// ForwardIdentityKey returns the peer's lattice identity public key.
func (c *Channel) ForwardIdentityKey() *ntru.PublicKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.forwardIdentityKey
}

// Send executes the egress onion transform and writes the resulting
// cell to the transport.
func (c *Channel) Send(circuitID uint32, msg onion.Message) error {
	ciphertext, err := onion.WrapEgress(msg, c.ForwardIdentityKey(), c.ForwardOnionKeys())
	if err != nil {
		return fmt.Errorf("channel: send: %w", err)
	}
	cell := &onion.Cell{CircuitID: circuitID, Ciphertext: ciphertext}
	if err := cell.WriteTo(c.conn); err != nil {
		return fmt.Errorf("channel: send: %w", err)
	}
	return nil
}

// BackwardOnionKeys returns a snapshot of the current backward onion
// key list.
func (c *Channel) BackwardOnionKeys() []*classical.KeyPair {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*classical.KeyPair, len(c.backwardOnionKeys))
	copy(out, c.backwardOnionKeys)
	return out
}

// Recv reads one cell from the transport and executes the ingress
// onion transform.
func (c *Channel) Recv() (*Packet, error) {
	cell, err := onion.ReadCell(c.conn)
	if err != nil {
		return nil, fmt.Errorf("channel: recv: %w", err)
	}
	msg, err := onion.PeelIngress(cell.Ciphertext, c.backwardIdentityPriv, c.BackwardOnionKeys())
	if err != nil {
		return nil, fmt.Errorf("channel: recv: %w", err)
	}
	return &Packet{CircuitID: cell.CircuitID, Message: msg, Channel: c}, nil
}

// Close closes the underlying transport.
func (c *Channel) Close() error {
	return c.conn.Close()
}

// SpawnReader starts a background goroutine that repeatedly calls Recv
// and forwards each packet to the dispatch sink, until ctx is
// cancelled or the transport is closed. Recv errors (a dropped cell,
// a transport EOF) are logged; a transport EOF or a closed transport
// stops the loop.
func (c *Channel) SpawnReader(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			pkt, err := c.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
					c.logger.Info("channel: transport closed, stopping reader")
					return
				}
				c.logger.Warn("channel: dropping cell", "error", err)
				continue
			}

			select {
			case c.dispatchSink <- *pkt:
			case <-ctx.Done():
				return
			}
		}
	}()
}
