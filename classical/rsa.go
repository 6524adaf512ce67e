// Package classical provides the "external collaborator" classical
// asymmetric cipher that the onion transform wraps around the NTRU
// lattice layer: a 1024-bit RSA keypair treated as an opaque
// encrypt/decrypt primitive with fixed byte I/O. Encrypt/Decrypt are a
// hybrid envelope rather than raw RSA-OAEP: RSA only ever wraps a fresh
// AES-256 session key, so each layer adds a fixed-size overhead to the
// body instead of imposing OAEP's own message-size ceiling on it. This
// is what lets onion cells nest one nBytes-capped classical layer
// inside another across multiple hops.
package classical

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"fmt"
	"math/big"
)

const (
	keyBits       = 1024
	nBytes        = keyBits / 8 // 128
	sessionKeyLen = 32          // AES-256
)

// KeyPair wraps an RSA private key and exposes the onion transform's
// opaque encrypt/decrypt contract: Encrypt never fails on a
// well-formed public key, Decrypt fails only when the ciphertext was
// not produced under this key.
type KeyPair struct {
	private *rsa.PrivateKey
}

// PublicKey is the public half, serializable to the wire format the
// onion transform embeds in CREATE/CREATED/EXTEND/EXTENDED payloads.
type PublicKey struct {
	key *rsa.PublicKey
}

// GenerateKeyPair creates a fresh 1024-bit RSA key pair using
// crypto/rand, matching the reference parameters the onion transform
// assumes for classical-layer wraps.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("classical: generate key pair: %w", err)
	}
	return &KeyPair{private: priv}, nil
}

// Public returns the public half of the key pair.
func (kp *KeyPair) Public() *PublicKey {
	return &PublicKey{key: &kp.private.PublicKey}
}

// Encrypt seals plaintext under a fresh AES-256-GCM session key, then
// wraps that session key with RSA-OAEP-SHA1 under pub. The wire layout
// is wrappedKey (nBytes, fixed) || nonce (GCM standard size) || sealed
// body (len(plaintext)+16 for the GCM tag): everything but the fixed
// RSA blob scales with the body, so nesting N of these only ever
// RSA-encrypts a 32-byte key, never the growing ciphertext itself.
func (pub *PublicKey) Encrypt(plaintext []byte) ([]byte, error) {
	sessionKey := make([]byte, sessionKeyLen)
	if _, err := rand.Read(sessionKey); err != nil {
		return nil, fmt.Errorf("classical: encrypt: session key: %w", err)
	}
	wrappedKey, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, pub.key, sessionKey, nil)
	if err != nil {
		return nil, fmt.Errorf("classical: encrypt: wrap session key: %w", err)
	}

	gcm, err := newGCM(sessionKey)
	if err != nil {
		return nil, fmt.Errorf("classical: encrypt: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("classical: encrypt: nonce: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, len(wrappedKey)+len(nonce)+len(sealed))
	out = append(out, wrappedKey...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// Decrypt reverses Encrypt under the matching private key.
func (kp *KeyPair) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < nBytes {
		return nil, fmt.Errorf("classical: decrypt: ciphertext shorter than wrapped session key")
	}
	wrappedKey, rest := ciphertext[:nBytes], ciphertext[nBytes:]

	sessionKey, err := rsa.DecryptOAEP(sha1.New(), rand.Reader, kp.private, wrappedKey, nil)
	if err != nil {
		return nil, fmt.Errorf("classical: decrypt: unwrap session key: %w", err)
	}

	gcm, err := newGCM(sessionKey)
	if err != nil {
		return nil, fmt.Errorf("classical: decrypt: %w", err)
	}
	if len(rest) < gcm.NonceSize() {
		return nil, fmt.Errorf("classical: decrypt: ciphertext shorter than nonce")
	}
	nonce, sealed := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("classical: decrypt: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return gcm, nil
}

// Bytes serializes the public key as n (128 bytes, big-endian)
// followed by e (the remainder of the buffer, big-endian), with no
// length prefix: a fixed-width layout since n-bytes is fixed by the
// 1024-bit key size.
func (pub *PublicKey) Bytes() []byte {
	n := pub.key.N.Bytes()
	out := make([]byte, nBytes)
	copy(out[nBytes-len(n):], n)

	e := big.NewInt(int64(pub.key.E)).Bytes()
	out = append(out, e...)
	return out
}

// PublicKeyFromBytes parses the layout produced by Bytes.
func PublicKeyFromBytes(b []byte) (*PublicKey, error) {
	if len(b) <= nBytes {
		return nil, fmt.Errorf("classical: public key too short: got %d bytes, need more than %d", len(b), nBytes)
	}
	n := new(big.Int).SetBytes(b[:nBytes])
	e := new(big.Int).SetBytes(b[nBytes:])
	if !e.IsInt64() {
		return nil, fmt.Errorf("classical: public exponent out of range")
	}
	return &PublicKey{key: &rsa.PublicKey{N: n, E: int(e.Int64())}}, nil
}
