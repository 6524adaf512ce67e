package ntru

import (
	"bytes"
	"testing"
)

// EncryptDecryptSmoke is the literal scenario from the spec: for a
// freshly generated key pair with reference parameters, encrypt then
// decrypt of b"Hello World" returns b"Hello World".
func TestEncryptDecryptSmoke(t *testing.T) {
	params := DefaultParams()
	priv, pub, err := GenerateKeyPair(params, nil)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	e, err := EncryptBytes(pub, []byte("Hello World"))
	if err != nil {
		t.Fatalf("EncryptBytes: %v", err)
	}

	got, err := DecryptBytes(priv, e)
	if err != nil {
		t.Fatalf("DecryptBytes: %v", err)
	}
	if !bytes.Equal(got, []byte("Hello World")) {
		t.Fatalf("round trip = %q, want %q", got, "Hello World")
	}
}

func TestEncryptDecryptEmptyMessage(t *testing.T) {
	params := DefaultParams()
	priv, pub, err := GenerateKeyPair(params, nil)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	e, err := EncryptBytes(pub, nil)
	if err != nil {
		t.Fatalf("EncryptBytes: %v", err)
	}
	got, err := DecryptBytes(priv, e)
	if err != nil {
		t.Fatalf("DecryptBytes: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("round trip of empty message = %q, want empty", got)
	}
}

func TestPublicKeySerializationRoundTrip(t *testing.T) {
	params := DefaultParams()
	_, pub, err := GenerateKeyPair(params, nil)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	b := pub.Bytes()
	got, err := PublicKeyFromBytes(b, params)
	if err != nil {
		t.Fatalf("PublicKeyFromBytes: %v", err)
	}
	if !got.H.Equal(pub.H) {
		t.Fatalf("public key round trip mismatch: got %v, want %v", got.H, pub.H)
	}
}

func TestPublicKeyFromBytesRejectsShortInput(t *testing.T) {
	if _, err := PublicKeyFromBytes([]byte{1, 2, 3}, DefaultParams()); err == nil {
		t.Fatal("expected error for input shorter than the length header")
	}
}

func TestPublicKeyFromBytesRejectsLengthMismatch(t *testing.T) {
	b := []byte{0, 0, 0, 2, 1, 2, 3} // header says 2 coefficients (8 bytes), body has 3
	if _, err := PublicKeyFromBytes(b, DefaultParams()); err == nil {
		t.Fatal("expected error for length mismatch")
	}
}

// TestEncryptLongDecryptLongRoundTrip covers a plaintext well beyond a
// single ring element's floor(N/5)-byte capacity (100 bytes under
// DefaultParams), exercising the multi-block framing EncryptLong uses
// to carry the onion transform's CREATE/RELAY payloads.
func TestEncryptLongDecryptLongRoundTrip(t *testing.T) {
	params := DefaultParams()
	priv, pub, err := GenerateKeyPair(params, nil)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	message := bytes.Repeat([]byte("onion payload block "), 20) // well over 100 bytes
	ciphertext, err := EncryptLong(pub, message)
	if err != nil {
		t.Fatalf("EncryptLong: %v", err)
	}

	got, err := DecryptLong(priv, ciphertext)
	if err != nil {
		t.Fatalf("DecryptLong: %v", err)
	}
	if !bytes.Equal(got, message) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d bytes", len(got), len(message))
	}
}

// TestEncryptLongPreservesZeroBytes confirms EncryptLong's exact-length
// framing survives embedded 0x00 bytes, unlike DecodeMessage's
// all-zero-chunk sentinel would.
func TestEncryptLongPreservesZeroBytes(t *testing.T) {
	params := DefaultParams()
	priv, pub, err := GenerateKeyPair(params, nil)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	message := []byte{0x01, 0x00, 0x00, 0x02, 0x00}
	ciphertext, err := EncryptLong(pub, message)
	if err != nil {
		t.Fatalf("EncryptLong: %v", err)
	}
	got, err := DecryptLong(priv, ciphertext)
	if err != nil {
		t.Fatalf("DecryptLong: %v", err)
	}
	if !bytes.Equal(got, message) {
		t.Fatalf("round trip = %v, want %v", got, message)
	}
}

// TestEncryptLongEmptyMessage confirms a zero-length message still
// produces exactly one (empty) block rather than no blocks, so
// DecryptLong's loop terminates on well-formed input either way.
func TestEncryptLongEmptyMessage(t *testing.T) {
	params := DefaultParams()
	priv, pub, err := GenerateKeyPair(params, nil)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	ciphertext, err := EncryptLong(pub, nil)
	if err != nil {
		t.Fatalf("EncryptLong: %v", err)
	}
	got, err := DecryptLong(priv, ciphertext)
	if err != nil {
		t.Fatalf("DecryptLong: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("round trip of empty message = %v, want empty", got)
	}
}

func TestEncryptPolyInnerReuse(t *testing.T) {
	params := DefaultParams()
	priv, pub, err := GenerateKeyPair(params, nil)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	m, err := EncodeMessage([]byte("inner layer"), params.N)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	e, err := EncryptPoly(pub, m)
	if err != nil {
		t.Fatalf("EncryptPoly: %v", err)
	}
	decrypted, err := DecryptToPoly(priv, e)
	if err != nil {
		t.Fatalf("DecryptToPoly: %v", err)
	}
	if !decrypted.Equal(m) {
		t.Fatalf("decrypted poly = %v, want %v", decrypted, m)
	}
}
