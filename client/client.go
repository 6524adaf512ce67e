// Package client implements the POQR client node: it builds circuits
// hop-by-hop across relays drawn from a directory, using the same
// wrapped-cell onion transform the relays speak, and carries
// application data end to end once a circuit is open.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/starboi-63/poqr/channel"
	"github.com/starboi-63/poqr/classical"
	"github.com/starboi-63/poqr/directory"
	"github.com/starboi-63/poqr/ntru"
	"github.com/starboi-63/poqr/onion"
	"github.com/starboi-63/poqr/tables"
)

// buildDeadline bounds the whole of circuit construction: it is set
// once on the entry-hop connection, so every CREATED/EXTENDED reply
// must arrive within it; an implementation-defined deadline per spec,
// analogous to the teacher's fixed handshake timeout.
const buildDeadline = 30 * time.Second

// Client is a POQR client node: a lattice identity, a table tracking
// which circuit reaches which destination port, and a directory of
// known relays.
type Client struct {
	priv *ntru.PrivateKey
	pub  *ntru.PublicKey

	circuits *tables.CircuitTable
	dir      *directory.Directory
	logger   *slog.Logger
}

// New constructs a Client with the given lattice identity keypair.
func New(priv *ntru.PrivateKey, pub *ntru.PublicKey, dir *directory.Directory, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		priv:     priv,
		pub:      pub,
		circuits: tables.NewCircuitTable(),
		dir:      dir,
		logger:   logger,
	}
}

// Circuit is an established 3-hop path: a channel to the first relay,
// the circuit id it carries, and the relays chosen along the way (for
// logging and for TeardownBestEffort).
type Circuit struct {
	client    *Client
	ch        *channel.Channel
	conn      net.Conn
	circuitID uint32
	destPort  uint16
	relays    []directory.Record
}

// BuildCircuit constructs a fresh 3-hop circuit to destPort, following
// spec's 8-step construction: three classical keypairs, relay
// selection excluding already-chosen relays, CREATE/CREATED with the
// entry hop, then two EXTEND/EXTENDED round trips to install the
// remaining hops.
func (c *Client) BuildCircuit(ctx context.Context, destPort uint16) (*Circuit, error) {
	kp1, err := classical.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("client: generate hop-1 keypair: %w", err)
	}
	kp2, err := classical.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("client: generate hop-2 keypair: %w", err)
	}
	kp3, err := classical.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("client: generate hop-3 keypair: %w", err)
	}

	r1, err := c.dir.RandomRelay(nil)
	if err != nil {
		return nil, fmt.Errorf("client: select entry relay: %w", err)
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort("", strconv.Itoa(int(r1.ListenPort))))
	if err != nil {
		return nil, fmt.Errorf("client: dial entry relay: %w", err)
	}
	conn.SetDeadline(time.Now().Add(buildDeadline))
	defer conn.SetDeadline(time.Time{})

	if err := channel.SendIdentity(conn, c.pub); err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: send identity: %w", err)
	}

	ch := channel.New(conn, r1.IdentityPub, c.priv, []*classical.KeyPair{kp1, kp2, kp3}, nil, c.logger)

	circuitID, err := c.circuits.AllocateID()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: allocate circuit id: %w", err)
	}

	if err := ch.Send(circuitID, &onion.CreateMessage{BackwardPublicKey: kp1.Public()}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: send CREATE: %w", err)
	}
	created, err := awaitCreated(ch)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: await CREATED: %w", err)
	}
	ch.AddForwardOnionKey(created.ForwardPublicKey)
	c.logger.Info("client: entry hop created", "circuitID", circuitID, "relay", r1.RelayID)

	excluded := map[uuid.UUID]bool{r1.RelayID: true}
	r2, err := c.dir.RandomRelay(excluded)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: select hop-2 relay: %w", err)
	}
	if err := extendTo(ch, circuitID, r2, kp2.Public()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: extend to hop 2: %w", err)
	}
	c.logger.Info("client: extended to hop 2", "circuitID", circuitID, "relay", r2.RelayID)

	excluded[r2.RelayID] = true
	r3, err := c.dir.RandomRelay(excluded)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: select hop-3 relay: %w", err)
	}
	if err := extendTo(ch, circuitID, r3, kp3.Public()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: extend to hop 3: %w", err)
	}
	c.logger.Info("client: extended to hop 3", "circuitID", circuitID, "relay", r3.RelayID)

	c.circuits.Insert(destPort, circuitID)

	return &Circuit{
		client:    c,
		ch:        ch,
		conn:      conn,
		circuitID: circuitID,
		destPort:  destPort,
		relays:    []directory.Record{r1, r2, r3},
	}, nil
}

// extendTo sends EXTEND(next) over ch and installs the returned
// forward onion key once EXTENDED arrives.
func extendTo(ch *channel.Channel, circuitID uint32, next directory.Record, backwardPub *classical.PublicKey) error {
	extend := &onion.ExtendPayload{
		NextHopListenPort:  next.ListenPort,
		NextHopIdentityPub: next.IdentityPub,
		PublicKey:          backwardPub,
	}
	if err := ch.Send(circuitID, &onion.RelayMessage{Payload: extend}); err != nil {
		return fmt.Errorf("send EXTEND: %w", err)
	}
	extended, err := awaitExtended(ch)
	if err != nil {
		return fmt.Errorf("await EXTENDED: %w", err)
	}
	ch.AddForwardOnionKey(extended.PublicKey)
	return nil
}

func awaitCreated(ch *channel.Channel) (*onion.CreatedMessage, error) {
	pkt, err := ch.Recv()
	if err != nil {
		return nil, err
	}
	created, ok := pkt.Message.(*onion.CreatedMessage)
	if !ok {
		return nil, fmt.Errorf("expected CREATED, got %T", pkt.Message)
	}
	return created, nil
}

func awaitExtended(ch *channel.Channel) (*onion.ExtendedPayload, error) {
	pkt, err := ch.Recv()
	if err != nil {
		return nil, err
	}
	relay, ok := pkt.Message.(*onion.PeeledRelayMessage)
	if !ok || relay.RelayTag != onion.RelayTagExtended {
		return nil, fmt.Errorf("expected EXTENDED, got %T", pkt.Message)
	}
	return onion.DecodeExtendedPayload(relay.Body)
}

// SendData sends application bytes end to end across the circuit's
// three hops.
func (c *Circuit) SendData(data []byte) error {
	msg := &onion.RelayMessage{Payload: &onion.DataPayload{Data: data}}
	if err := c.ch.Send(c.circuitID, msg); err != nil {
		return fmt.Errorf("circuit: send DATA: %w", err)
	}
	return nil
}

// RecvData blocks for one DATA cell travelling back from the exit hop.
func (c *Circuit) RecvData() ([]byte, error) {
	pkt, err := c.ch.Recv()
	if err != nil {
		return nil, fmt.Errorf("circuit: recv DATA: %w", err)
	}
	relay, ok := pkt.Message.(*onion.PeeledRelayMessage)
	if !ok || relay.RelayTag != onion.RelayTagData {
		return nil, fmt.Errorf("circuit: expected DATA, got %T", pkt.Message)
	}
	return onion.DecodeDataPayload(relay.Body).Data, nil
}

// TeardownBestEffort sends the reserved END relay payload and closes
// the underlying transport; neither step is acknowledged.
func (c *Circuit) TeardownBestEffort() {
	msg := &onion.RelayMessage{Payload: &onion.EndPayload{}}
	if err := c.ch.Send(c.circuitID, msg); err != nil {
		c.client.logger.Warn("client: send END", "circuitID", c.circuitID, "error", err)
	}
	c.client.circuits.Remove(c.circuitID)
	c.conn.Close()
}
