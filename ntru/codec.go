// Package ntru implements the NTRU lattice-based public-key primitive:
// key generation, encryption, and decryption over the ring arithmetic in
// package ring, plus the balanced-ternary message codec that injects
// byte sequences into the ternary-coefficient plaintext space.
package ntru

import (
	"fmt"

	"github.com/starboi-63/poqr/ring"
)

const digitsPerByte = 5

// MessageTooLongError reports that a byte sequence, once expanded to
// digitsPerByte coefficients per byte, would not fit in a ring of
// dimension N.
type MessageTooLongError struct {
	Len int
	N   int
}

func (e *MessageTooLongError) Error() string {
	return fmt.Sprintf("ntru: message of %d bytes needs %d coefficients, exceeds ring dimension %d", e.Len, e.Len*digitsPerByte, e.N)
}

// InvalidByteError reports a byte outside the codec's representable
// range. By convention this codec only encodes v in [0, 127], so the
// high-order ternary digit is always non-negative.
type InvalidByteError struct {
	Value int64
}

func (e *InvalidByteError) Error() string {
	return fmt.Sprintf("ntru: byte value %d outside codec range [0, 127]", e.Value)
}

// EncodeMessage converts a byte sequence into ring coefficients,
// digitsPerByte balanced-ternary digits per byte, and fails with
// MessageTooLongError if the result would not fit in a ring of
// dimension n.
func EncodeMessage(data []byte, n int) (ring.Poly, error) {
	if digitsPerByte*len(data) > n {
		return nil, &MessageTooLongError{Len: len(data), N: n}
	}
	coeffs := make([]int64, 0, digitsPerByte*len(data))
	for _, b := range data {
		digits, err := encodeByte(b)
		if err != nil {
			return nil, err
		}
		coeffs = append(coeffs, digits[:]...)
	}
	return ring.NewPoly(coeffs...), nil
}

// encodeByte emits the digitsPerByte-digit balanced-ternary encoding of
// b, most-significant digit first: while v > 0, take r = v mod 3, v :=
// v / 3 (floor), remap r = 2 to digit -1, and prepend. No compensating
// carry is added to v; the decode side reconstructs the true digit
// value (2, not -1) when undoing the remap.
func encodeByte(b byte) ([digitsPerByte]int64, error) {
	if b > 127 {
		return [digitsPerByte]int64{}, &InvalidByteError{Value: int64(b)}
	}
	var d [digitsPerByte]int64
	v := int64(b)
	for i := digitsPerByte - 1; i >= 0; i-- {
		r := v % 3
		v /= 3
		if r == 2 {
			r = -1
		}
		d[i] = r
	}
	return d, nil
}

// DecodeMessage inverts EncodeMessage. It partitions p's coefficients
// into chunks of digitsPerByte (padding with zeros as needed), and
// reconstructs each byte via Horner's method over the chunk,
// most-significant digit first, reinterpreting a stored -1 as the
// value 2 it stands in for. A chunk of all zeros signals end of
// message and the scan stops there; no byte is emitted for it or any
// chunk after it.
func DecodeMessage(p ring.Poly) ([]byte, error) {
	n := len(p)
	chunks := (n + digitsPerByte - 1) / digitsPerByte
	padded := make(ring.Poly, chunks*digitsPerByte)
	copy(padded, p)

	out := make([]byte, 0, chunks)
	for c := 0; c < chunks; c++ {
		chunk := padded[digitsPerByte*c : digitsPerByte*(c+1)]
		if allZero(chunk) {
			break
		}
		var v int64
		for _, d := range chunk {
			digit := d
			if digit == -1 {
				digit = 2
			}
			v = v*3 + digit
		}
		if v < 0 || v > 255 {
			return nil, &InvalidByteError{Value: v}
		}
		out = append(out, byte(v))
	}
	return out, nil
}

// DecodeMessageN decodes exactly n bytes from p's ternary coefficients.
// Unlike DecodeMessage, it never treats an interior all-zero chunk as
// an end-of-message sentinel, so a genuine 0x00 data byte can't be
// mistaken for padding; it's used where the caller already knows the
// exact plaintext length of this block, as EncryptLong's per-block
// framing does.
func DecodeMessageN(p ring.Poly, n int) ([]byte, error) {
	padded := make(ring.Poly, n*digitsPerByte)
	copy(padded, p)

	out := make([]byte, n)
	for c := 0; c < n; c++ {
		chunk := padded[digitsPerByte*c : digitsPerByte*(c+1)]
		var v int64
		for _, d := range chunk {
			digit := d
			if digit == -1 {
				digit = 2
			}
			v = v*3 + digit
		}
		if v < 0 || v > 255 {
			return nil, &InvalidByteError{Value: v}
		}
		out[c] = byte(v)
	}
	return out, nil
}

func allZero(coeffs ring.Poly) bool {
	for _, c := range coeffs {
		if c != 0 {
			return false
		}
	}
	return true
}
