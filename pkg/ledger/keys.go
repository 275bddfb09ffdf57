// Package ledger defines the cash-note value types: one-time keys,
// transactions, spends and the genesis issuance.
package ledger

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/notemesh/notemesh-audit/pkg/crypto"
	"github.com/notemesh/notemesh-audit/pkg/types"
)

// UniquePubkeySize is the length of a compressed one-time public key.
const UniquePubkeySize = 33

// UniquePubkey is a one-time derived public key identifying exactly one
// spendable output. It is never reused across outputs.
type UniquePubkey [UniquePubkeySize]byte

// UniquePubkeyFromBytes converts a compressed 33-byte key to a UniquePubkey.
func UniquePubkeyFromBytes(b []byte) (UniquePubkey, error) {
	if len(b) != UniquePubkeySize {
		return UniquePubkey{}, fmt.Errorf("unique pubkey must be %d bytes, got %d", UniquePubkeySize, len(b))
	}
	var k UniquePubkey
	copy(k[:], b)
	return k, nil
}

// NewUniquePubkey derives a fresh one-time key from a compressed main
// public key and a derivation index.
func NewUniquePubkey(mainPubKey []byte, index crypto.DerivationIndex) (UniquePubkey, error) {
	derived, err := crypto.DerivePubkey(mainPubKey, index)
	if err != nil {
		return UniquePubkey{}, fmt.Errorf("derive unique pubkey: %w", err)
	}
	return UniquePubkeyFromBytes(derived)
}

// Address returns the content-derived network address for this key.
func (k UniquePubkey) Address() types.SpendAddress {
	return crypto.SpendAddressFromPubkey(k[:])
}

// Bytes returns a copy of the compressed key.
func (k UniquePubkey) Bytes() []byte {
	b := make([]byte, UniquePubkeySize)
	copy(b, k[:])
	return b
}

// IsZero returns true if the key is all zeros.
func (k UniquePubkey) IsZero() bool {
	return k == UniquePubkey{}
}

// String returns the hex-encoded key.
func (k UniquePubkey) String() string {
	return hex.EncodeToString(k[:])
}

// Short returns the first 8 hex characters, for log output.
func (k UniquePubkey) Short() string {
	return hex.EncodeToString(k[:4])
}

// MarshalJSON encodes the key as a hex string.
func (k UniquePubkey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a hex string into a key.
func (k *UniquePubkey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid unique pubkey hex: %w", err)
	}
	if len(decoded) != UniquePubkeySize {
		return fmt.Errorf("unique pubkey must be %d bytes, got %d", UniquePubkeySize, len(decoded))
	}
	copy(k[:], decoded)
	return nil
}
