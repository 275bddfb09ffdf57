package crypto

import (
	"bytes"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	pub := key.PublicKey()
	if len(pub) != 33 {
		t.Errorf("PublicKey() length = %d, want 33", len(pub))
	}

	ser := key.Serialize()
	if len(ser) != 32 {
		t.Errorf("Serialize() length = %d, want 32", len(ser))
	}
}

func TestGenerateKey_Unique(t *testing.T) {
	k1, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	k2, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	if bytes.Equal(k1.Serialize(), k2.Serialize()) {
		t.Error("two generated keys should not be identical")
	}
}

func TestPrivateKeyFromBytes(t *testing.T) {
	original, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	restored, err := PrivateKeyFromBytes(original.Serialize())
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes() error: %v", err)
	}

	if !bytes.Equal(original.PublicKey(), restored.PublicKey()) {
		t.Error("restored key should have same public key")
	}
}

func TestPrivateKeyFromBytes_InvalidLength(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"too short", make([]byte, 16)},
		{"too long", make([]byte, 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PrivateKeyFromBytes(tt.data)
			if err == nil {
				t.Error("expected error for invalid key length")
			}
		})
	}
}

func TestSign_Verify(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	hash := Hash([]byte("test message"))
	sig, err := key.Sign(hash[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	if len(sig) != 64 {
		t.Errorf("signature length = %d, want 64", len(sig))
	}

	if !VerifySignature(hash[:], sig, key.PublicKey()) {
		t.Error("signature should verify against the correct key and hash")
	}
}

func TestSign_InvalidHashLength(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	_, err = key.Sign([]byte("too short"))
	if err == nil {
		t.Error("Sign() should reject non-32-byte hash")
	}
}

func TestVerify_WrongHash(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	hash := Hash([]byte("message"))
	sig, err := key.Sign(hash[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	wrongHash := Hash([]byte("different message"))
	if VerifySignature(wrongHash[:], sig, key.PublicKey()) {
		t.Error("signature should not verify with wrong hash")
	}
}

func TestVerify_WrongKey(t *testing.T) {
	key1, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	key2, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	hash := Hash([]byte("message"))
	sig, err := key1.Sign(hash[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	if VerifySignature(hash[:], sig, key2.PublicKey()) {
		t.Error("signature should not verify with wrong public key")
	}
}

func TestVerify_CorruptedSignature(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	hash := Hash([]byte("message"))
	sig, err := key.Sign(hash[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	// Flip a bit
	corrupted := make([]byte, len(sig))
	copy(corrupted, sig)
	corrupted[0] ^= 0x01

	if VerifySignature(hash[:], corrupted, key.PublicKey()) {
		t.Error("corrupted signature should not verify")
	}
}

func TestVerify_InvalidInputs(t *testing.T) {
	tests := []struct {
		name      string
		hash      []byte
		signature []byte
		publicKey []byte
	}{
		{"nil hash", nil, make([]byte, 64), make([]byte, 33)},
		{"empty signature", make([]byte, 32), nil, make([]byte, 33)},
		{"empty public key", make([]byte, 32), make([]byte, 64), nil},
		{"short signature", make([]byte, 32), make([]byte, 10), make([]byte, 33)},
		{"garbage public key", make([]byte, 32), make([]byte, 64), []byte("bad")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Should not panic, just return false
			if VerifySignature(tt.hash, tt.signature, tt.publicKey) {
				t.Error("should return false for invalid inputs")
			}
		})
	}
}

func TestDeriveKey_MatchesDerivePubkey(t *testing.T) {
	main, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	index := DerivationIndex{0x01, 0x02, 0x03}

	derived, err := main.DeriveKey(index)
	if err != nil {
		t.Fatalf("DeriveKey() error: %v", err)
	}

	derivedPub, err := DerivePubkey(main.PublicKey(), index)
	if err != nil {
		t.Fatalf("DerivePubkey() error: %v", err)
	}

	if !bytes.Equal(derived.PublicKey(), derivedPub) {
		t.Errorf("DeriveKey pubkey %x != DerivePubkey %x", derived.PublicKey(), derivedPub)
	}
}

func TestDeriveKey_DistinctIndexes(t *testing.T) {
	main, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	a, err := DerivePubkey(main.PublicKey(), DerivationIndex{0x01})
	if err != nil {
		t.Fatalf("DerivePubkey() error: %v", err)
	}
	b, err := DerivePubkey(main.PublicKey(), DerivationIndex{0x02})
	if err != nil {
		t.Fatalf("DerivePubkey() error: %v", err)
	}

	if bytes.Equal(a, b) {
		t.Error("different derivation indexes should produce different keys")
	}
	if bytes.Equal(a, main.PublicKey()) {
		t.Error("derived key should differ from the main key")
	}
}

func TestDeriveKey_SignVerify(t *testing.T) {
	main, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	index := DerivationIndex{0xaa, 0xbb}
	derived, err := main.DeriveKey(index)
	if err != nil {
		t.Fatalf("DeriveKey() error: %v", err)
	}
	derivedPub, err := DerivePubkey(main.PublicKey(), index)
	if err != nil {
		t.Fatalf("DerivePubkey() error: %v", err)
	}

	hash := Hash([]byte("one-time key test"))
	sig, err := derived.Sign(hash[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	if !VerifySignature(hash[:], sig, derivedPub) {
		t.Error("signature by derived key should verify against derived pubkey")
	}
	if VerifySignature(hash[:], sig, main.PublicKey()) {
		t.Error("signature by derived key should not verify against the main key")
	}
}

func TestDeriveKey_Deterministic(t *testing.T) {
	main, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	index := DerivationIndex{0x42}
	a, err := DerivePubkey(main.PublicKey(), index)
	if err != nil {
		t.Fatalf("DerivePubkey() error: %v", err)
	}
	b, err := DerivePubkey(main.PublicKey(), index)
	if err != nil {
		t.Fatalf("DerivePubkey() error: %v", err)
	}

	if !bytes.Equal(a, b) {
		t.Error("derivation should be deterministic")
	}
}
