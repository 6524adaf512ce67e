package ntru

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/starboi-63/poqr/ring"
)

// Params fixes the NTRU scheme parameters: ring dimension N (prime),
// small modulus p, large modulus q, and ternary weight d. Reference
// parameters satisfy gcd(p, q) = 1, q > (6d+1)p, and 2d+1 <= N.
type Params struct {
	N int
	P int64
	Q int64
	D int
}

// DefaultParams returns the reference parameter set named in the spec:
// N=503, p=3, q=419, d=23.
func DefaultParams() Params {
	return Params{N: 503, P: 3, Q: 419, D: 23}
}

// PrivateKey is the tuple (f, F_p, F_q, g): f is ternary with one more
// +1 than -1, g is balanced ternary, and F_p/F_q are f's inverses in
// (Z/pZ)[x]/(x^N-1) and (Z/qZ)[x]/(x^N-1) respectively.
type PrivateKey struct {
	Params Params
	F      ring.Poly
	Fp     ring.Poly
	Fq     ring.Poly
	G      ring.Poly
}

// PublicKey is h = (F_q * g) mod q, canonicalized mod q.
type PublicKey struct {
	Params Params
	H      ring.Poly
}

// DecryptionMismatchError reports that a decrypted polynomial failed
// its correctness check: the NTRU scheme's decryption succeeds with
// overwhelming but non-unit probability at practical parameters, and a
// caller operating on the outer onion layer must treat this as a
// recoverable "drop cell" event rather than a fatal error.
type DecryptionMismatchError struct{}

func (e *DecryptionMismatchError) Error() string {
	return "ntru: decrypted plaintext is not a valid ternary-coded message"
}

// GenerateKeyPair samples f and g until f admits inverses mod p and
// mod q, then derives h. Each failed attempt is logged at Debug and
// retried; this is expected behavior, not an error path, since only a
// fraction of ternary polynomials are invertible.
func GenerateKeyPair(params Params, logger *slog.Logger) (*PrivateKey, *PublicKey, error) {
	if logger == nil {
		logger = slog.Default()
	}

	for attempt := 1; ; attempt++ {
		f, err := ring.SampleTernary(params.N, params.D+1, params.D)
		if err != nil {
			return nil, nil, fmt.Errorf("ntru: sample f: %w", err)
		}

		fp, err := f.Inverse(params.P, params.N)
		if err != nil {
			logger.Debug("ntru keygen: f not invertible mod p, retrying", "attempt", attempt)
			continue
		}
		fq, err := f.Inverse(params.Q, params.N)
		if err != nil {
			logger.Debug("ntru keygen: f not invertible mod q, retrying", "attempt", attempt)
			continue
		}

		g, err := ring.SampleTernary(params.N, params.D, params.D)
		if err != nil {
			return nil, nil, fmt.Errorf("ntru: sample g: %w", err)
		}

		h := fq.Mul(g, params.N).Modulo(params.Q)

		priv := &PrivateKey{Params: params, F: f, Fp: fp, Fq: fq, G: g}
		pub := &PublicKey{Params: params, H: h}
		return priv, pub, nil
	}
}

// EncryptPoly encrypts a plaintext polynomial m directly, skipping the
// byte-to-polynomial step; used for onion-layer re-encryption where
// the buffer being wrapped is already ring-shaped.
func EncryptPoly(pub *PublicKey, m ring.Poly) (ring.Poly, error) {
	params := pub.Params
	r, err := ring.SampleTernary(params.N, params.D, params.D)
	if err != nil {
		return nil, fmt.Errorf("ntru: encrypt: sample r: %w", err)
	}
	pr := scalarMul(r, params.P, params.Q)
	prh := pr.Mul(pub.H, params.N)
	e := m.Add(prh).Modulo(params.Q)
	return e, nil
}

// scalarMul multiplies every coefficient of p by scalar and reduces
// the result modulo m.
func scalarMul(p ring.Poly, scalar, m int64) ring.Poly {
	out := make(ring.Poly, len(p))
	for i, c := range p {
		out[i] = c * scalar
	}
	return out.Modulo(m)
}

// EncryptBytes serializes message via the byte codec, then encrypts
// the resulting plaintext polynomial. Fails with MessageTooLongError
// if 5*len(message) exceeds the ring dimension.
func EncryptBytes(pub *PublicKey, message []byte) (ring.Poly, error) {
	m, err := EncodeMessage(message, pub.Params.N)
	if err != nil {
		return nil, err
	}
	return EncryptPoly(pub, m)
}

// DecryptToPoly recovers the plaintext polynomial from ciphertext e:
// center-lift (e*f mod q), then multiply by F_p mod p.
func DecryptToPoly(priv *PrivateKey, e ring.Poly) (ring.Poly, error) {
	params := priv.Params
	a := e.Mul(priv.F, params.N).Modulo(params.Q).CenterLift(params.Q)
	m := a.Mul(priv.Fp, params.N).Modulo(params.P).CenterLift(params.P)
	return m, nil
}

// DecryptBytes decrypts e to a plaintext polynomial and decodes it
// through the byte codec.
func DecryptBytes(priv *PrivateKey, e ring.Poly) ([]byte, error) {
	m, err := DecryptToPoly(priv, e)
	if err != nil {
		return nil, err
	}
	out, err := DecodeMessage(m)
	if err != nil {
		return nil, &DecryptionMismatchError{}
	}
	return out, nil
}

// MaxBlockBytes returns the largest plaintext, in bytes, that
// EncryptBytes can encrypt in a single ring element under params.
func MaxBlockBytes(params Params) int {
	return params.N / digitsPerByte
}

// EncryptLong splits message into MaxBlockBytes-sized blocks and
// NTRU-encrypts each independently, since a single ring element of
// dimension N can only carry floor(N/5) bytes. The wire format is a
// sequence of blocks, each framed as (plaintext length, ciphertext
// length, ciphertext bytes), both 4-byte big-endian, so DecryptLong can
// recover exact block boundaries and byte counts without depending on
// DecodeMessage's all-zero-chunk padding convention.
func EncryptLong(pub *PublicKey, message []byte) ([]byte, error) {
	blockSize := MaxBlockBytes(pub.Params)
	if blockSize <= 0 {
		return nil, fmt.Errorf("ntru: ring dimension %d too small for codec", pub.Params.N)
	}

	var out []byte
	for off := 0; ; off += blockSize {
		end := off + blockSize
		if end > len(message) {
			end = len(message)
		}
		block := message[off:end]

		e, err := EncryptBytes(pub, block)
		if err != nil {
			return nil, fmt.Errorf("ntru: encrypt long: block at offset %d: %w", off, err)
		}
		eb := e.ToBytes()

		var hdr [8]byte
		binary.BigEndian.PutUint32(hdr[0:4], uint32(len(block)))
		binary.BigEndian.PutUint32(hdr[4:8], uint32(len(eb)))
		out = append(out, hdr[:]...)
		out = append(out, eb...)

		if end == len(message) {
			break
		}
	}
	return out, nil
}

// DecryptLong reverses EncryptLong.
func DecryptLong(priv *PrivateKey, data []byte) ([]byte, error) {
	var out []byte
	for len(data) > 0 {
		if len(data) < 8 {
			return nil, fmt.Errorf("ntru: decrypt long: truncated block header")
		}
		plainLen := binary.BigEndian.Uint32(data[0:4])
		cipherLen := binary.BigEndian.Uint32(data[4:8])
		data = data[8:]
		if uint64(len(data)) < uint64(cipherLen) {
			return nil, fmt.Errorf("ntru: decrypt long: truncated block body")
		}
		eb := data[:cipherLen]
		data = data[cipherLen:]

		e, err := ring.FromBytes(eb)
		if err != nil {
			return nil, fmt.Errorf("ntru: decrypt long: %w", err)
		}
		m, err := DecryptToPoly(priv, e)
		if err != nil {
			return nil, fmt.Errorf("ntru: decrypt long: %w", err)
		}
		block, err := DecodeMessageN(m, int(plainLen))
		if err != nil {
			return nil, &DecryptionMismatchError{}
		}
		out = append(out, block...)
	}
	return out, nil
}

// Bytes serializes the public key as a 4-byte big-endian coefficient
// count followed by each coefficient as a 4-byte big-endian signed
// integer.
func (pub *PublicKey) Bytes() []byte {
	body := pub.H.ToBytes()
	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out, uint32(len(pub.H.Trim())))
	copy(out[4:], body)
	return out
}

// PublicKeyFromBytes parses the wire format produced by Bytes.
func PublicKeyFromBytes(b []byte, params Params) (*PublicKey, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("ntru: public key too short")
	}
	count := binary.BigEndian.Uint32(b)
	body := b[4:]
	if uint32(len(body)) != count*4 {
		return nil, fmt.Errorf("ntru: public key length mismatch: header says %d coefficients, body has %d bytes", count, len(body))
	}
	h, err := ring.FromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("ntru: public key: %w", err)
	}
	return &PublicKey{Params: params, H: h}, nil
}
