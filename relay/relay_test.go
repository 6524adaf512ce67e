package relay

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/starboi-63/poqr/channel"
	"github.com/starboi-63/poqr/classical"
	"github.com/starboi-63/poqr/directory"
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

// startRelay brings up a Relay on an OS-assigned loopback port and
// returns its listen port and a cancel func that stops ListenAndServe.
func startRelay(t *testing.T, dir *directory.Directory) (uint16, *ntru.PublicKey, func()) {
	t.Helper()
	priv, pub := newTestIdentity(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	r := New(uint16(port), priv, pub, dir, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go r.ListenAndServe(ctx)
	time.Sleep(50 * time.Millisecond)

	dir.Register(uint16(port), pub)
	return uint16(port), pub, cancel
}

// TestRelayCreateCreatedRoundTrip drives a bare CREATE/CREATED
// handshake against a single relay, acting as the client by hand: the
// relay's CREATED response is addressed under the client's own
// identity key, so decrypting it exercises the same round trip a real
// client would.
func TestRelayCreateCreatedRoundTrip(t *testing.T) {
	dir := directory.New()
	port, relayPub, stop := startRelay(t, dir)
	defer stop()

	clientPriv, clientPub := newTestIdentity(t)
	backwardKP, err := classical.GenerateKeyPair()
	if err != nil {
		t.Fatalf("classical.GenerateKeyPair: %v", err)
	}

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port))))
	if err != nil {
		t.Fatalf("net.Dial: %v", err)
	}
	defer conn.Close()

	if err := channel.SendIdentity(conn, clientPub); err != nil {
		t.Fatalf("SendIdentity: %v", err)
	}

	ciphertext, err := onion.WrapEgress(&onion.CreateMessage{
		BackwardPublicKey: backwardKP.Public(),
	}, relayPub, nil)
	if err != nil {
		t.Fatalf("WrapEgress: %v", err)
	}
	cell := &onion.Cell{CircuitID: 7, Ciphertext: ciphertext}
	if err := cell.WriteTo(conn); err != nil {
		t.Fatalf("cell.WriteTo: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := onion.ReadCell(conn)
	if err != nil {
		t.Fatalf("ReadCell: %v", err)
	}

	msg, err := onion.PeelIngress(resp.Ciphertext, clientPriv, nil)
	if err != nil {
		t.Fatalf("PeelIngress: %v", err)
	}
	created, ok := msg.(*onion.CreatedMessage)
	if !ok {
		t.Fatalf("msg = %T, want *onion.CreatedMessage", msg)
	}
	if created.ForwardPublicKey == nil {
		t.Fatal("ForwardPublicKey is nil")
	}
}
