package ledger

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/notemesh/notemesh-audit/pkg/crypto"
	"github.com/notemesh/notemesh-audit/pkg/types"
)

// Spend is the payload committed to by a spend signature. It links the
// spent output to the transaction that created it (ParentTx, used walking
// backward toward genesis) and the transaction that consumes it (SpentTx,
// used walking forward toward the UTXO frontier).
type Spend struct {
	// UniquePubkey of the output this spend proves to be spent.
	UniquePubkey UniquePubkey `json:"unique_pubkey"`
	// ParentTx is the transaction whose output created this key.
	ParentTx Transaction `json:"parent_tx"`
	// SpentTx is the transaction that consumes this key as an input.
	SpentTx Transaction `json:"spent_tx"`
	// Amount carried by the spent output.
	Amount uint64 `json:"amount"`
	// Reason is an opaque caller-supplied tag.
	Reason types.Hash `json:"reason"`
}

// ToBytesForSigning returns the canonical bytes the owner signs. The two
// transactions are committed to by hash, so the signature pins both the
// ancestry and the descendants of this spend.
func (s *Spend) ToBytesForSigning() []byte {
	var buf []byte
	buf = append(buf, s.UniquePubkey[:]...)
	parentHash := s.ParentTx.Hash()
	buf = append(buf, parentHash[:]...)
	spentHash := s.SpentTx.Hash()
	buf = append(buf, spentHash[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, s.Amount)
	buf = append(buf, s.Reason[:]...)
	return buf
}

// Hash computes the content hash of the spend payload.
func (s *Spend) Hash() types.Hash {
	return crypto.Hash(s.ToBytesForSigning())
}

// Address returns the network address where this spend lives.
func (s *Spend) Address() types.SpendAddress {
	return s.UniquePubkey.Address()
}

// SignedSpend is a Spend plus a signature verifiable against the owning
// one-time key. Immutable once created; equality is structural.
type SignedSpend struct {
	Spend     Spend
	Signature []byte
}

// SignSpend signs a spend with the one-time key that owns it.
func SignSpend(spend Spend, signer crypto.Signer) (*SignedSpend, error) {
	pub := signer.PublicKey()
	if !bytes.Equal(pub, spend.UniquePubkey[:]) {
		return nil, fmt.Errorf("signer key %x does not own spend key %s", pub[:4], spend.UniquePubkey.Short())
	}

	h := crypto.Hash(spend.ToBytesForSigning())
	sig, err := signer.Sign(h[:])
	if err != nil {
		return nil, fmt.Errorf("sign spend: %w", err)
	}
	return &SignedSpend{Spend: spend, Signature: sig}, nil
}

// Verify checks that the signature is valid for the spend payload under
// the owning one-time key. It does not check the spend's ancestry or its
// existence on the network.
func (ss *SignedSpend) Verify() error {
	h := crypto.Hash(ss.Spend.ToBytesForSigning())
	if !crypto.VerifySignature(h[:], ss.Signature, ss.Spend.UniquePubkey[:]) {
		return fmt.Errorf("invalid spend signature for key %s", ss.Spend.UniquePubkey.Short())
	}
	return nil
}

// UniquePubkey returns the key of the output this spend consumes.
func (ss *SignedSpend) UniquePubkey() UniquePubkey {
	return ss.Spend.UniquePubkey
}

// Address returns the network address where this spend lives.
func (ss *SignedSpend) Address() types.SpendAddress {
	return ss.Spend.Address()
}

// Equal reports structural equality of two signed spends.
func (ss *SignedSpend) Equal(other *SignedSpend) bool {
	if ss == nil || other == nil {
		return ss == other
	}
	return ss.Spend.Hash() == other.Spend.Hash() && bytes.Equal(ss.Signature, other.Signature)
}

// signedSpendJSON is the JSON representation with a hex-encoded signature.
type signedSpendJSON struct {
	Spend     Spend  `json:"spend"`
	Signature string `json:"signature"`
}

// MarshalJSON encodes the signed spend with a hex signature.
func (ss SignedSpend) MarshalJSON() ([]byte, error) {
	return json.Marshal(signedSpendJSON{
		Spend:     ss.Spend,
		Signature: hex.EncodeToString(ss.Signature),
	})
}

// UnmarshalJSON decodes a signed spend with a hex signature.
func (ss *SignedSpend) UnmarshalJSON(data []byte) error {
	var j signedSpendJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	sig, err := hex.DecodeString(j.Signature)
	if err != nil {
		return fmt.Errorf("invalid signature hex: %w", err)
	}
	ss.Spend = j.Spend
	ss.Signature = sig
	return nil
}
