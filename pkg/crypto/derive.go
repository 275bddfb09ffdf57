package crypto

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// DerivationIndexSize is the length of a key derivation index in bytes.
const DerivationIndexSize = 32

// DerivationIndex selects a one-time key derived from a main key.
// A fresh random index is used for every new output, so derived keys
// are never reused.
type DerivationIndex [DerivationIndexSize]byte

// derivationScalar computes the tweak t = BLAKE3(main_pubkey || index) mod n.
// Both the owner (holding the main secret key) and any sender (holding only
// the main public key) can compute it, which is what makes one-time keys
// recoverable by the owner.
func derivationScalar(mainPubKey []byte, index DerivationIndex) *secp256k1.ModNScalar {
	buf := make([]byte, 0, len(mainPubKey)+DerivationIndexSize)
	buf = append(buf, mainPubKey...)
	buf = append(buf, index[:]...)
	h := Hash(buf)

	var t secp256k1.ModNScalar
	t.SetByteSlice(h[:])
	return &t
}

// DerivePubkey derives the one-time public key P' = P + t*G from a
// compressed main public key and a derivation index.
// Returns the compressed 33-byte derived key.
func DerivePubkey(mainPubKey []byte, index DerivationIndex) ([]byte, error) {
	pub, err := secp256k1.ParsePubKey(mainPubKey)
	if err != nil {
		return nil, fmt.Errorf("parse main pubkey: %w", err)
	}

	t := derivationScalar(mainPubKey, index)

	var tG, p, sum secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(t, &tG)
	pub.AsJacobian(&p)
	secp256k1.AddNonConst(&p, &tG, &sum)
	if (sum.X.IsZero() && sum.Y.IsZero()) || sum.Z.IsZero() {
		return nil, fmt.Errorf("derived key is the point at infinity")
	}
	sum.ToAffine()

	return secp256k1.NewPublicKey(&sum.X, &sum.Y).SerializeCompressed(), nil
}

// DeriveKey derives the one-time private key d' = d + t mod n matching
// DerivePubkey for the same index.
func (pk *PrivateKey) DeriveKey(index DerivationIndex) (*PrivateKey, error) {
	t := derivationScalar(pk.PublicKey(), index)

	var d secp256k1.ModNScalar
	d.Set(&pk.key.Key)
	d.Add(t)
	if d.IsZero() {
		return nil, fmt.Errorf("derived key is zero")
	}

	return &PrivateKey{key: secp256k1.NewPrivateKey(&d)}, nil
}
