// Package onion implements the circuit protocol's tagged message
// union, payload serializers, and the wrapped-cell onion transform
// that nests NTRU and classical encryption on egress and peels them
// on ingress.
package onion

import (
	"encoding/binary"
	"fmt"

	"github.com/starboi-63/poqr/classical"
	"github.com/starboi-63/poqr/ntru"
)

// Message tag byte values, applied after all crypto layers are peeled.
const (
	tagCreate  byte = 0
	tagCreated byte = 1
	tagRelay   byte = 2
)

// Relay tag byte values, present only when the message tag is
// tagRelay.
const (
	RelayTagExtend   byte = 2
	RelayTagExtended byte = 3
	RelayTagBegin    byte = 4
	RelayTagData     byte = 5
	RelayTagEnd      byte = 6
)

// UnknownMessageTagError reports an unrecognized tag byte on a
// decrypted cell; the dispatcher treats this as a drop-cell event.
type UnknownMessageTagError struct {
	Tag byte
}

func (e *UnknownMessageTagError) Error() string {
	return fmt.Sprintf("onion: unknown message tag %d", e.Tag)
}

// UnknownRelayTagError is UnknownMessageTagError's counterpart for the
// second tag byte of a RELAY message.
type UnknownRelayTagError struct {
	RelayTag byte
}

func (e *UnknownRelayTagError) Error() string {
	return fmt.Sprintf("onion: unknown relay tag %d", e.RelayTag)
}

// Message is the tagged union over {CREATE, CREATED, RELAY(RelayPayload)}.
type Message interface {
	// serializeBody returns the tag byte(s) followed by the payload
	// bytes, i.e. the buffer that gets classically/lattice-wrapped.
	serializeBody() []byte
}

// CreateMessage carries the public half of a freshly generated
// classical keypair: the backward onion key the relay installs for
// this circuit. The sender's lattice identity key is learned
// out-of-band, once per connection, via the channel-level identity
// handshake (see channel.SendIdentity/ReadIdentity) rather than
// in-band here: the relay already knows which channel CREATE arrived
// on, and that channel's peer identity is all CREATED needs to wrap
// under on the way back.
type CreateMessage struct {
	BackwardPublicKey *classical.PublicKey
}

func (m *CreateMessage) serializeBody() []byte {
	return append([]byte{tagCreate}, m.BackwardPublicKey.Bytes()...)
}

// CreatedMessage is a CREATE's response: the public half of the
// responder's own forward onion keypair.
type CreatedMessage struct {
	ForwardPublicKey *classical.PublicKey
}

func (m *CreatedMessage) serializeBody() []byte {
	return append([]byte{tagCreated}, m.ForwardPublicKey.Bytes()...)
}

// RelayMessage wraps one of the relay-cell payload kinds.
type RelayMessage struct {
	Payload RelayPayload
}

func (m *RelayMessage) serializeBody() []byte {
	buf := append([]byte{tagRelay}, m.Payload.relayTag())
	return append(buf, m.Payload.serialize()...)
}

// RelayPayload is the tagged union over {EXTEND, EXTENDED, BEGIN, DATA}.
type RelayPayload interface {
	relayTag() byte
	serialize() []byte
}

// ExtendPayload carries the public key to install at the next hop in
// the circuit, one further than the current terminal hop, plus enough
// addressing to let the terminal relay open a channel there:
// NextHopListenPort and NextHopIdentityPub. The distilled spec names
// only the classical key; the original left EXTEND handling as a
// stub, so the addressing fields are a necessary supplement grounded
// in directory.Record's shape (relay-id, listen port, identity key).
type ExtendPayload struct {
	NextHopListenPort  uint16
	NextHopIdentityPub *ntru.PublicKey
	PublicKey          *classical.PublicKey
}

func (p *ExtendPayload) relayTag() byte { return RelayTagExtend }

func (p *ExtendPayload) serialize() []byte {
	idBytes := p.NextHopIdentityPub.Bytes()
	buf := make([]byte, 0, 2+4+len(idBytes)+len(p.PublicKey.Bytes()))
	var portField [2]byte
	binary.BigEndian.PutUint16(portField[:], p.NextHopListenPort)
	buf = append(buf, portField[:]...)
	var lenField [4]byte
	binary.BigEndian.PutUint32(lenField[:], uint32(len(idBytes)))
	buf = append(buf, lenField[:]...)
	buf = append(buf, idBytes...)
	buf = append(buf, p.PublicKey.Bytes()...)
	return buf
}

// DecodeExtendPayload interprets a fully-peeled RELAY body as an
// ExtendPayload.
func DecodeExtendPayload(body []byte) (*ExtendPayload, error) {
	if len(body) < 6 {
		return nil, fmt.Errorf("onion: decode EXTEND: buffer too short")
	}
	port := binary.BigEndian.Uint16(body[:2])
	idLen := binary.BigEndian.Uint32(body[2:6])
	rest := body[6:]
	if uint32(len(rest)) < idLen {
		return nil, fmt.Errorf("onion: decode EXTEND: buffer too short for identity key")
	}
	idPub, err := ntru.PublicKeyFromBytes(rest[:idLen], ntru.DefaultParams())
	if err != nil {
		return nil, fmt.Errorf("onion: decode EXTEND: identity key: %w", err)
	}
	pub, err := classical.PublicKeyFromBytes(rest[idLen:])
	if err != nil {
		return nil, fmt.Errorf("onion: decode EXTEND: %w", err)
	}
	return &ExtendPayload{NextHopListenPort: port, NextHopIdentityPub: idPub, PublicKey: pub}, nil
}

// ExtendedPayload carries the public key returned by the
// newly-extended hop.
type ExtendedPayload struct {
	PublicKey *classical.PublicKey
}

func (p *ExtendedPayload) relayTag() byte   { return RelayTagExtended }
func (p *ExtendedPayload) serialize() []byte { return p.PublicKey.Bytes() }

// BeginPayload is an application-layer begin descriptor, naming the
// destination the client wants the circuit's exit hop to connect to.
type BeginPayload struct {
	Target string
}

func (p *BeginPayload) relayTag() byte    { return RelayTagBegin }
func (p *BeginPayload) serialize() []byte { return []byte(p.Target) }

// DataPayload carries raw application-layer bytes.
type DataPayload struct {
	Data []byte
}

func (p *DataPayload) relayTag() byte    { return RelayTagData }
func (p *DataPayload) serialize() []byte { return p.Data }

// EndPayload signals best-effort circuit teardown along the forward
// path; present in the original message tag set (PAYLOAD_END) but left
// unimplemented there.
type EndPayload struct{}

func (p *EndPayload) relayTag() byte    { return RelayTagEnd }
func (p *EndPayload) serialize() []byte { return nil }

// PeeledRelayMessage is the ingress-side representation of a RELAY
// message once the peeler has removed as many classical layers as it
// owns keys for. A relay forwarding hop owns exactly one classical key
// per circuit, so Body generally still holds ciphertext for the
// remaining hops; only the circuit's originator (the client) or an
// exit hop that recognizes its own final layer should decode Body into
// a concrete payload, via the DecodeXxxPayload helpers below. A
// forwarding relay instead re-wraps Body verbatim for the next hop.
type PeeledRelayMessage struct {
	RelayTag byte
	Body     []byte
}

func (m *PeeledRelayMessage) serializeBody() []byte {
	return append([]byte{tagRelay, m.RelayTag}, m.Body...)
}

// ParseMessage parses a fully-peeled plaintext buffer (tag byte(s)
// followed by payload) into a Message. Fails with
// UnknownMessageTagError or UnknownRelayTagError for unrecognized tag
// bytes. CREATE and CREATED are never classically wrapped, so their
// payload is always ready to parse; RELAY payloads come back as a
// PeeledRelayMessage since the caller alone knows whether Body is
// fully peeled.
func ParseMessage(buf []byte) (Message, error) {
	if len(buf) == 0 {
		return nil, &UnknownMessageTagError{}
	}
	tag, rest := buf[0], buf[1:]

	switch tag {
	case tagCreate:
		pub, err := classical.PublicKeyFromBytes(rest)
		if err != nil {
			return nil, fmt.Errorf("onion: parse CREATE: %w", err)
		}
		return &CreateMessage{BackwardPublicKey: pub}, nil

	case tagCreated:
		pub, err := classical.PublicKeyFromBytes(rest)
		if err != nil {
			return nil, fmt.Errorf("onion: parse CREATED: %w", err)
		}
		return &CreatedMessage{ForwardPublicKey: pub}, nil

	case tagRelay:
		if len(rest) == 0 {
			return nil, &UnknownRelayTagError{}
		}
		relayTag, body := rest[0], rest[1:]
		if !validRelayTag(relayTag) {
			return nil, &UnknownRelayTagError{RelayTag: relayTag}
		}
		return &PeeledRelayMessage{RelayTag: relayTag, Body: append([]byte(nil), body...)}, nil

	default:
		return nil, &UnknownMessageTagError{Tag: tag}
	}
}

func validRelayTag(t byte) bool {
	switch t {
	case RelayTagExtend, RelayTagExtended, RelayTagBegin, RelayTagData, RelayTagEnd:
		return true
	default:
		return false
	}
}

// DecodeExtendedPayload interprets a fully-peeled RELAY body as an
// ExtendedPayload.
func DecodeExtendedPayload(body []byte) (*ExtendedPayload, error) {
	pub, err := classical.PublicKeyFromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("onion: decode EXTENDED: %w", err)
	}
	return &ExtendedPayload{PublicKey: pub}, nil
}

// DecodeBeginPayload interprets a fully-peeled RELAY body as a
// BeginPayload.
func DecodeBeginPayload(body []byte) *BeginPayload {
	return &BeginPayload{Target: string(body)}
}

// DecodeDataPayload interprets a fully-peeled RELAY body as a
// DataPayload.
func DecodeDataPayload(body []byte) *DataPayload {
	return &DataPayload{Data: append([]byte(nil), body...)}
}

// DecodeEndPayload interprets a fully-peeled RELAY body as an
// EndPayload.
func DecodeEndPayload(body []byte) *EndPayload {
	return &EndPayload{}
}
