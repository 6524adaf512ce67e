package classical

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	plaintext := []byte("onion layer payload")
	ciphertext, err := kp.Public().Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	got, err := kp.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip = %q, want %q", got, plaintext)
	}
}

func TestDecryptFailsUnderWrongKey(t *testing.T) {
	kp1, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	kp2, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	ciphertext, err := kp1.Public().Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := kp2.Decrypt(ciphertext); err == nil {
		t.Fatal("expected decryption under the wrong key to fail")
	}
}

func TestPublicKeyBytesRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	b := kp.Public().Bytes()
	if len(b) <= nBytes {
		t.Fatalf("serialized public key too short: %d bytes", len(b))
	}

	parsed, err := PublicKeyFromBytes(b)
	if err != nil {
		t.Fatalf("PublicKeyFromBytes: %v", err)
	}

	plaintext := []byte("round trip through parsed key")
	ciphertext, err := parsed.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt via parsed key: %v", err)
	}
	got, err := kp.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip = %q, want %q", got, plaintext)
	}
}

func TestPublicKeyFromBytesRejectsShortInput(t *testing.T) {
	if _, err := PublicKeyFromBytes([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for input shorter than n's fixed width")
	}
}

// TestNestedEncryptThreeLayers confirms three hops' worth of wrapping
// survives round-trip: textbook RSA-OAEP alone caps plaintext at 86
// bytes under a 1024-bit key, well below what a second or third layer
// re-encrypting the prior layer's ~300-byte output would need.
func TestNestedEncryptThreeLayers(t *testing.T) {
	kp1, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	kp2, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	kp3, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	body := []byte("application data relayed through three onion hops")
	layer1, err := kp3.Public().Encrypt(body)
	if err != nil {
		t.Fatalf("layer 1 encrypt (innermost): %v", err)
	}
	layer2, err := kp2.Public().Encrypt(layer1)
	if err != nil {
		t.Fatalf("layer 2 encrypt: %v", err)
	}
	layer3, err := kp1.Public().Encrypt(layer2)
	if err != nil {
		t.Fatalf("layer 3 encrypt (outermost): %v", err)
	}

	peeled1, err := kp1.Decrypt(layer3)
	if err != nil {
		t.Fatalf("peel layer 3: %v", err)
	}
	if !bytes.Equal(peeled1, layer2) {
		t.Fatal("peel layer 3 did not recover layer 2's ciphertext")
	}
	peeled2, err := kp2.Decrypt(peeled1)
	if err != nil {
		t.Fatalf("peel layer 2: %v", err)
	}
	if !bytes.Equal(peeled2, layer1) {
		t.Fatal("peel layer 2 did not recover layer 1's ciphertext")
	}
	peeled3, err := kp3.Decrypt(peeled2)
	if err != nil {
		t.Fatalf("peel layer 1: %v", err)
	}
	if !bytes.Equal(peeled3, body) {
		t.Fatalf("final peel = %q, want %q", peeled3, body)
	}
}
