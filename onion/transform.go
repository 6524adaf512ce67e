package onion

import (
	"fmt"

	"github.com/starboi-63/poqr/classical"
	"github.com/starboi-63/poqr/ntru"
)

// WrapEgress implements the egress onion transform: serialize msg,
// classically wrap a RELAY payload once per forward onion key, then
// NTRU-encrypt the result under identityPub and serialize the
// ciphertext polynomial.
//
// forwardOnionPubs is ordered outermost-to-innermost (index 0 is the
// first hop's key, applied last so it forms the outermost classical
// wrap) per the key-ordering symmetry the client maintains: a RELAY
// payload is encrypted innermost-key-first so that the first hop,
// which receives the cell first, is the first to be able to peel its
// own layer.
//
// A *PeeledRelayMessage originates from a forwarding relay re-wrapping
// an already partially-peeled Body for the next hop. Body gets one
// classical layer per key in forwardOnionPubs: on the forward path
// that list is empty, so only the NTRU layer is refreshed; on the
// backward path it holds the client's key for this hop.
func WrapEgress(msg Message, identityPub *ntru.PublicKey, forwardOnionPubs []*classical.PublicKey) ([]byte, error) {
	var buf []byte

	switch m := msg.(type) {
	case *RelayMessage:
		wrapped := m.Payload.serialize()
		for i := len(forwardOnionPubs) - 1; i >= 0; i-- {
			ct, err := forwardOnionPubs[i].Encrypt(wrapped)
			if err != nil {
				return nil, fmt.Errorf("onion: wrap egress: classical layer %d: %w", i, err)
			}
			wrapped = ct
		}
		buf = append([]byte{tagRelay, m.Payload.relayTag()}, wrapped...)

	case *PeeledRelayMessage:
		wrapped := m.Body
		for i := len(forwardOnionPubs) - 1; i >= 0; i-- {
			ct, err := forwardOnionPubs[i].Encrypt(wrapped)
			if err != nil {
				return nil, fmt.Errorf("onion: wrap egress: classical layer %d: %w", i, err)
			}
			wrapped = ct
		}
		buf = append([]byte{tagRelay, m.RelayTag}, wrapped...)

	default:
		buf = msg.serializeBody()
	}

	out, err := ntru.EncryptLong(identityPub, buf)
	if err != nil {
		return nil, fmt.Errorf("onion: wrap egress: ntru encrypt: %w", err)
	}
	return out, nil
}

// PeelIngress implements the ingress onion transform: NTRU-decrypt the
// ciphertext under identityPriv, inspect the tag, and for a RELAY
// message classically decrypt once per backward onion key in listed
// (outermost-first) order.
func PeelIngress(ciphertext []byte, identityPriv *ntru.PrivateKey, backwardOnionPrivs []*classical.KeyPair) (Message, error) {
	buf, err := ntru.DecryptLong(identityPriv, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("onion: peel ingress: ntru decrypt: %w", err)
	}
	if len(buf) == 0 {
		return nil, &UnknownMessageTagError{}
	}

	tag := buf[0]
	if tag != tagRelay {
		return ParseMessage(buf)
	}

	if len(buf) < 2 {
		return nil, &UnknownRelayTagError{}
	}
	relayTag, wrapped := buf[1], buf[2:]
	if !validRelayTag(relayTag) {
		return nil, &UnknownRelayTagError{RelayTag: relayTag}
	}

	for i, kp := range backwardOnionPrivs {
		pt, err := kp.Decrypt(wrapped)
		if err != nil {
			return nil, fmt.Errorf("onion: peel ingress: classical layer %d: %w", i, err)
		}
		wrapped = pt
	}

	return &PeeledRelayMessage{RelayTag: relayTag, Body: wrapped}, nil
}
