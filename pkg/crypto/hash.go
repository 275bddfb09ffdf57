// Package crypto provides cryptographic primitives for the NoteMesh auditor.
package crypto

import (
	"github.com/notemesh/notemesh-audit/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// SpendAddressFromPubkey derives the network address of a spend record
// from the compressed one-time public key that owns it.
// Address = BLAKE3(compressed_pubkey).
func SpendAddressFromPubkey(pubKey []byte) types.SpendAddress {
	return types.SpendAddressFromHash(Hash(pubKey))
}

// HashConcat hashes the concatenation of two hashes.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return Hash(buf[:])
}
