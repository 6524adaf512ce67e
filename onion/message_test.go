package onion

import (
	"testing"

	"github.com/starboi-63/poqr/classical"
	"github.com/starboi-63/poqr/ntru"
)

func newTestKeyPair(t *testing.T) *classical.KeyPair {
	t.Helper()
	kp, err := classical.GenerateKeyPair()
	if err != nil {
		t.Fatalf("classical.GenerateKeyPair: %v", err)
	}
	return kp
}

func newTestIdentityPub(t *testing.T) *ntru.PublicKey {
	t.Helper()
	_, pub, err := ntru.GenerateKeyPair(ntru.DefaultParams(), nil)
	if err != nil {
		t.Fatalf("ntru.GenerateKeyPair: %v", err)
	}
	return pub
}

func TestParseMessageCreate(t *testing.T) {
	kp := newTestKeyPair(t)
	msg := &CreateMessage{BackwardPublicKey: kp.Public()}
	body := msg.serializeBody()

	parsed, err := ParseMessage(body)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	created, ok := parsed.(*CreateMessage)
	if !ok {
		t.Fatalf("parsed = %T, want *CreateMessage", parsed)
	}
	want := string(kp.Public().Bytes())
	if string(created.BackwardPublicKey.Bytes()) != want {
		t.Fatal("parsed public key does not match original")
	}
}

func TestParseMessageCreated(t *testing.T) {
	kp := newTestKeyPair(t)
	msg := &CreatedMessage{ForwardPublicKey: kp.Public()}
	body := msg.serializeBody()

	parsed, err := ParseMessage(body)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if _, ok := parsed.(*CreatedMessage); !ok {
		t.Fatalf("parsed = %T, want *CreatedMessage", parsed)
	}
}

func TestParseMessageRelayData(t *testing.T) {
	msg := &RelayMessage{Payload: &DataPayload{Data: []byte("hello")}}
	body := msg.serializeBody()

	parsed, err := ParseMessage(body)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	relay, ok := parsed.(*PeeledRelayMessage)
	if !ok {
		t.Fatalf("parsed = %T, want *PeeledRelayMessage", parsed)
	}
	data := DecodeDataPayload(relay.Body)
	if string(data.Data) != "hello" {
		t.Fatalf("data = %q, want %q", data.Data, "hello")
	}
}

func TestParseMessageRelayBegin(t *testing.T) {
	msg := &RelayMessage{Payload: &BeginPayload{Target: "example.com:80"}}
	body := msg.serializeBody()

	parsed, err := ParseMessage(body)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	relay := parsed.(*PeeledRelayMessage)
	begin := DecodeBeginPayload(relay.Body)
	if begin.Target != "example.com:80" {
		t.Fatalf("target = %q, want %q", begin.Target, "example.com:80")
	}
}

func TestParseMessageRelayExtend(t *testing.T) {
	kp := newTestKeyPair(t)
	nextHopID := newTestIdentityPub(t)
	msg := &RelayMessage{Payload: &ExtendPayload{
		NextHopListenPort:  9002,
		NextHopIdentityPub: nextHopID,
		PublicKey:          kp.Public(),
	}}
	body := msg.serializeBody()

	parsed, err := ParseMessage(body)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	relay := parsed.(*PeeledRelayMessage)
	extend, err := DecodeExtendPayload(relay.Body)
	if err != nil {
		t.Fatalf("DecodeExtendPayload: %v", err)
	}
	if extend.NextHopListenPort != 9002 {
		t.Fatalf("NextHopListenPort = %d, want 9002", extend.NextHopListenPort)
	}
	if string(extend.NextHopIdentityPub.Bytes()) != string(nextHopID.Bytes()) {
		t.Fatal("next-hop identity key does not match original")
	}
	if string(extend.PublicKey.Bytes()) != string(kp.Public().Bytes()) {
		t.Fatal("classical public key does not match original")
	}
}

func TestParseMessageUnknownTag(t *testing.T) {
	if _, err := ParseMessage([]byte{99}); err == nil {
		t.Fatal("expected UnknownMessageTagError")
	}
}

func TestParseMessageUnknownRelayTag(t *testing.T) {
	if _, err := ParseMessage([]byte{tagRelay, 99}); err == nil {
		t.Fatal("expected UnknownRelayTagError")
	}
}

func TestParseMessageEmptyBuffer(t *testing.T) {
	if _, err := ParseMessage(nil); err == nil {
		t.Fatal("expected error for empty buffer")
	}
}
