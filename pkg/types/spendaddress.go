package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SpendAddress is the content-derived network address of a spend record.
// It is computed by hashing the one-time public key that owns the output,
// so every spendable output maps to exactly one address.
type SpendAddress [HashSize]byte

// SpendAddressFromHash converts a raw hash into a SpendAddress.
func SpendAddressFromHash(h Hash) SpendAddress {
	return SpendAddress(h)
}

// IsZero returns true if the address is all zeros.
func (a SpendAddress) IsZero() bool {
	return a == SpendAddress{}
}

// String returns the hex-encoded address.
func (a SpendAddress) String() string {
	return hex.EncodeToString(a[:])
}

// Short returns the first 8 hex characters, for log output.
func (a SpendAddress) Short() string {
	return hex.EncodeToString(a[:4])
}

// Bytes returns a copy of the address as a byte slice.
func (a SpendAddress) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, a[:])
	return b
}

// MarshalJSON encodes the address as a hex string.
func (a SpendAddress) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a hex string into an address.
func (a *SpendAddress) UnmarshalJSON(data []byte) error {
	return (*Hash)(a).UnmarshalJSON(data)
}

// ParseSpendAddress converts a hex string to a SpendAddress.
func ParseSpendAddress(s string) (SpendAddress, error) {
	h, err := HexToHash(s)
	if err != nil {
		return SpendAddress{}, fmt.Errorf("invalid spend address: %w", err)
	}
	return SpendAddress(h), nil
}
