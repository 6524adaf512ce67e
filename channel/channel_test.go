package channel

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/starboi-63/poqr/classical"
	"github.com/starboi-63/poqr/ntru"
	"github.com/starboi-63/poqr/onion"
)

func newTestIdentity(t *testing.T) (*ntru.PrivateKey, *ntru.PublicKey) {
	t.Helper()
	priv, pub, err := ntru.GenerateKeyPair(ntru.DefaultParams(), nil)
	if err != nil {
		t.Fatalf("ntru.GenerateKeyPair: %v", err)
	}
	return priv, pub
}

func TestChannelSendRecvRoundTrip(t *testing.T) {
	aConn, bConn := net.Pipe()
	defer aConn.Close()
	defer bConn.Close()

	bPriv, bPub := newTestIdentity(t)

	backwardKP, err := classical.GenerateKeyPair()
	if err != nil {
		t.Fatalf("classical.GenerateKeyPair: %v", err)
	}

	a := New(aConn, bPub, bPriv /* unused on send path */, nil, nil, nil)
	b := New(bConn, nil, bPriv, nil, nil, nil)

	msg := &onion.CreateMessage{BackwardPublicKey: backwardKP.Public()}

	sendErr := make(chan error, 1)
	go func() { sendErr <- a.Send(42, msg) }()

	pkt, err := b.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if err := <-sendErr; err != nil {
		t.Fatalf("Send: %v", err)
	}

	if pkt.CircuitID != 42 {
		t.Fatalf("CircuitID = %d, want 42", pkt.CircuitID)
	}
	create, ok := pkt.Message.(*onion.CreateMessage)
	if !ok {
		t.Fatalf("Message = %T, want *onion.CreateMessage", pkt.Message)
	}
	if string(create.BackwardPublicKey.Bytes()) != string(backwardKP.Public().Bytes()) {
		t.Fatal("recovered public key does not match original")
	}
}

func TestChannelSpawnReaderForwardsToSink(t *testing.T) {
	aConn, bConn := net.Pipe()
	defer aConn.Close()
	defer bConn.Close()

	bPriv, bPub := newTestIdentity(t)

	backwardKP, err := classical.GenerateKeyPair()
	if err != nil {
		t.Fatalf("classical.GenerateKeyPair: %v", err)
	}

	sink := make(chan Packet, 1)
	a := New(aConn, bPub, bPriv, nil, nil, nil)
	b := New(bConn, nil, bPriv, nil, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.SpawnReader(ctx)

	msg := &onion.CreateMessage{BackwardPublicKey: backwardKP.Public()}
	if err := a.Send(7, msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case pkt := <-sink:
		if pkt.CircuitID != 7 {
			t.Fatalf("CircuitID = %d, want 7", pkt.CircuitID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched packet")
	}
}

func TestSendIdentityReadIdentityRoundTrip(t *testing.T) {
	aConn, bConn := net.Pipe()
	defer aConn.Close()
	defer bConn.Close()

	_, pub := newTestIdentity(t)

	sendErr := make(chan error, 1)
	go func() { sendErr <- SendIdentity(aConn, pub) }()

	got, err := ReadIdentity(bConn, ntru.DefaultParams())
	if err != nil {
		t.Fatalf("ReadIdentity: %v", err)
	}
	if err := <-sendErr; err != nil {
		t.Fatalf("SendIdentity: %v", err)
	}
	if string(got.Bytes()) != string(pub.Bytes()) {
		t.Fatal("recovered identity key does not match original")
	}
}

func TestChannelForwardOnionKeysGrowsOnly(t *testing.T) {
	aConn, bConn := net.Pipe()
	defer aConn.Close()
	defer bConn.Close()

	_, bPub := newTestIdentity(t)
	bPriv, _ := newTestIdentity(t)

	c := New(aConn, bPub, bPriv, nil, nil, nil)
	if len(c.ForwardOnionKeys()) != 0 {
		t.Fatal("expected empty forward onion key list at construction")
	}

	kp1, err := classical.GenerateKeyPair()
	if err != nil {
		t.Fatalf("classical.GenerateKeyPair: %v", err)
	}
	c.AddForwardOnionKey(kp1.Public())
	if len(c.ForwardOnionKeys()) != 1 {
		t.Fatalf("ForwardOnionKeys len = %d, want 1", len(c.ForwardOnionKeys()))
	}

	kp2, err := classical.GenerateKeyPair()
	if err != nil {
		t.Fatalf("classical.GenerateKeyPair: %v", err)
	}
	c.AddForwardOnionKey(kp2.Public())
	keys := c.ForwardOnionKeys()
	if len(keys) != 2 {
		t.Fatalf("ForwardOnionKeys len = %d, want 2", len(keys))
	}
	if string(keys[0].Bytes()) != string(kp1.Public().Bytes()) {
		t.Fatal("forward onion keys out of order")
	}
}
