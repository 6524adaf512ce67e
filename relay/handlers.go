package relay

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/starboi-63/poqr/channel"
	"github.com/starboi-63/poqr/classical"
	"github.com/starboi-63/poqr/onion"
)

// handleCreate answers a circuit's opening CREATE: it generates this
// hop's forward onion keypair, installs it as the channel's backward
// (ingress-peeling) key, remembers the client-given classical key as
// the channel's forward (egress-wrapping) key for backward-travelling
// relay cells, and replies with CREATED.
func (r *Relay) handleCreate(ctx context.Context, pkt channel.Packet) {
	create, ok := pkt.Message.(*onion.CreateMessage)
	if !ok || pkt.Channel == nil {
		r.logger.Warn("relay: malformed CREATE", "circuitID", pkt.CircuitID)
		return
	}
	if _, exists := r.circuits[pkt.CircuitID]; exists {
		r.logger.Warn("relay: CREATE on already-registered circuit id", "circuitID", pkt.CircuitID)
		return
	}

	ownKeyPair, err := classical.GenerateKeyPair()
	if err != nil {
		r.logger.Error("relay: generate onion keypair", "error", err)
		return
	}

	pkt.Channel.InstallBackwardOnionKey(ownKeyPair)
	pkt.Channel.AddForwardOnionKey(create.BackwardPublicKey)

	r.circuits[pkt.CircuitID] = &circuitInfo{
		state:           StateOpen,
		prevChannel:     pkt.Channel,
		prevCircuitID:   pkt.CircuitID,
		ownOnionKeyPair: ownKeyPair,
	}
	r.channels.Insert(pkt.CircuitID, pkt.Channel)

	r.sendOn(pkt.Channel, pkt.CircuitID, &onion.CreatedMessage{ForwardPublicKey: ownKeyPair.Public()})
	r.logger.Info("relay: circuit opened", "circuitID", pkt.CircuitID)
}

// handleExtend services an EXTEND-tagged relay cell. If this circuit
// has already been extended past this relay, the cell belongs to a
// hop further down the path and is forwarded untouched. Otherwise this
// relay is the circuit's current terminal hop: it decodes the
// payload, dials the named next hop, and opens a fresh circuit there
// on the client's behalf.
func (r *Relay) handleExtend(ctx context.Context, pkt channel.Packet) {
	relay, ok := pkt.Message.(*onion.PeeledRelayMessage)
	if !ok {
		return
	}
	info, ok := r.circuits[pkt.CircuitID]
	if !ok {
		r.logger.Warn("relay: EXTEND on unknown circuit", "circuitID", pkt.CircuitID)
		return
	}
	if info.seenBefore(digestOf(replayGuardKey, pkt.CircuitID, relay.RelayTag, relay.Body)) {
		r.logger.Warn("relay: dropping replayed EXTEND", "circuitID", pkt.CircuitID)
		return
	}

	if info.nextChannel != nil {
		r.sendOn(info.nextChannel, info.nextCircuitID, relay)
		return
	}

	if info.state != StateOpen {
		r.logger.Warn("relay: EXTEND outside open state", "circuitID", pkt.CircuitID, "state", info.state)
		return
	}

	extend, err := onion.DecodeExtendPayload(relay.Body)
	if err != nil {
		r.logger.Warn("relay: decode EXTEND", "circuitID", pkt.CircuitID, "error", err)
		return
	}

	conn, err := net.Dial("tcp", net.JoinHostPort("", strconv.Itoa(int(extend.NextHopListenPort))))
	if err != nil {
		r.logger.Warn("relay: dial next hop", "circuitID", pkt.CircuitID, "error", err)
		return
	}
	nextID, err := r.ids.AllocateID()
	if err != nil {
		conn.Close()
		r.logger.Error("relay: allocate next-hop circuit id", "error", err)
		return
	}

	if err := channel.SendIdentity(conn, r.pub); err != nil {
		conn.Close()
		r.logger.Warn("relay: send identity to next hop", "circuitID", pkt.CircuitID, "error", err)
		return
	}

	nextChannel := channel.New(conn, extend.NextHopIdentityPub, r.priv, nil, r.dispatcher.Inbox, r.logger)
	nextChannel.SpawnReader(ctx)

	info.state = StateExtendPending
	info.nextChannel = nextChannel
	info.nextCircuitID = nextID
	r.circuits[nextID] = info
	r.channels.Insert(nextID, nextChannel)

	create := &onion.CreateMessage{BackwardPublicKey: extend.PublicKey}
	if err := nextChannel.Send(nextID, create); err != nil {
		r.logger.Warn("relay: send CREATE to next hop", "circuitID", pkt.CircuitID, "error", err)
		info.state = StateOpen
		info.nextChannel = nil
		delete(r.circuits, nextID)
		r.channels.Remove(nextID)
		return
	}
	r.logger.Info("relay: extending circuit", "circuitID", pkt.CircuitID, "nextCircuitID", nextID)
}

// handleCreatedOrExtended completes an extension this relay initiated:
// it arrives on info.nextChannel as either a CREATED (the next hop's
// direct answer) or an EXTENDED (forwarded up from further down an
// already multi-hop path). Either way it carries the new hop's fresh
// forward onion public key, which this relay passes on in its own
// EXTENDED, sent back toward the client. The relay does not add that
// key to nextChannel, so cells it forwards to the next hop get no
// classical layer of its own.
func (r *Relay) handleCreatedOrExtended(ctx context.Context, pkt channel.Packet) {
	info, ok := r.circuits[pkt.CircuitID]
	if !ok {
		r.logger.Warn("relay: CREATED/EXTENDED on unknown circuit", "circuitID", pkt.CircuitID)
		return
	}
	if info.state != StateExtendPending {
		r.logger.Warn("relay: CREATED/EXTENDED outside extend_pending", "circuitID", pkt.CircuitID, "state", info.state)
		return
	}

	var nextHopPub *classical.PublicKey
	switch m := pkt.Message.(type) {
	case *onion.CreatedMessage:
		nextHopPub = m.ForwardPublicKey
	case *onion.PeeledRelayMessage:
		if m.RelayTag != onion.RelayTagExtended {
			r.logger.Warn("relay: unexpected relay tag awaiting EXTENDED", "circuitID", pkt.CircuitID, "relayTag", m.RelayTag)
			return
		}
		extended, err := onion.DecodeExtendedPayload(m.Body)
		if err != nil {
			r.logger.Warn("relay: decode EXTENDED", "circuitID", pkt.CircuitID, "error", err)
			return
		}
		nextHopPub = extended.PublicKey
	default:
		r.logger.Warn("relay: unexpected message awaiting CREATED/EXTENDED", "circuitID", pkt.CircuitID, "type", fmt.Sprintf("%T", pkt.Message))
		return
	}

	info.state = StateOpen

	extended := &onion.RelayMessage{Payload: &onion.ExtendedPayload{PublicKey: nextHopPub}}
	r.sendOn(info.prevChannel, info.prevCircuitID, extended)
	r.logger.Info("relay: extend completed", "circuitID", info.prevCircuitID)
}

// handleData services a DATA or BEGIN relay cell. On the forward path
// (arriving from the client side) an already-extended circuit forwards
// it untouched; a still-terminal circuit is the exit hop and logs the
// delivered payload, since actual network delivery beyond the onion
// layer is out of scope. On the backward path (arriving from the next
// hop) the cell is always relayed toward the client, picking up this
// hop's own classical wrap automatically via prevChannel's forward
// onion key.
func (r *Relay) handleData(ctx context.Context, pkt channel.Packet) {
	relay, ok := pkt.Message.(*onion.PeeledRelayMessage)
	if !ok {
		return
	}
	info, ok := r.circuits[pkt.CircuitID]
	if !ok {
		r.logger.Warn("relay: DATA on unknown circuit", "circuitID", pkt.CircuitID)
		return
	}
	if info.seenBefore(digestOf(replayGuardKey, pkt.CircuitID, relay.RelayTag, relay.Body)) {
		r.logger.Warn("relay: dropping replayed DATA", "circuitID", pkt.CircuitID)
		return
	}

	switch pkt.Channel {
	case info.nextChannel:
		r.sendOn(info.prevChannel, info.prevCircuitID, relay)

	case info.prevChannel:
		if info.nextChannel != nil {
			r.sendOn(info.nextChannel, info.nextCircuitID, relay)
			return
		}
		switch relay.RelayTag {
		case onion.RelayTagData:
			data := onion.DecodeDataPayload(relay.Body)
			r.logger.Info("relay: exit hop delivered application data", "circuitID", pkt.CircuitID, "size", humanize.Bytes(uint64(len(data.Data))))
		case onion.RelayTagBegin:
			begin := onion.DecodeBeginPayload(relay.Body)
			r.logger.Info("relay: exit hop received BEGIN", "circuitID", pkt.CircuitID, "target", begin.Target)
		}

	default:
		r.logger.Warn("relay: DATA delivered on unrecognized channel", "circuitID", pkt.CircuitID)
	}
}

// handleEnd services best-effort circuit teardown: if the circuit has
// been extended, the END is passed one hop further so every relay
// along the path cleans up, then this hop's own state is retired.
func (r *Relay) handleEnd(ctx context.Context, pkt channel.Packet) {
	info, ok := r.circuits[pkt.CircuitID]
	if !ok {
		return
	}

	if info.nextChannel != nil && pkt.Channel == info.prevChannel {
		if relay, ok := pkt.Message.(*onion.PeeledRelayMessage); ok {
			r.sendOn(info.nextChannel, info.nextCircuitID, relay)
		}
	}

	info.state = StateClosed
	delete(r.circuits, info.prevCircuitID)
	r.channels.Remove(info.prevCircuitID)
	if info.nextChannel != nil {
		delete(r.circuits, info.nextCircuitID)
		r.channels.Remove(info.nextCircuitID)
		info.nextChannel.Close()
	}
	r.logger.Info("relay: circuit closed", "circuitID", info.prevCircuitID)
}
