package ledger

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/notemesh/notemesh-audit/pkg/crypto"
	"github.com/notemesh/notemesh-audit/pkg/types"
)

// Input references an output being consumed by a transaction.
type Input struct {
	UniquePubkey UniquePubkey `json:"unique_pubkey"`
	Amount       uint64       `json:"amount"`
}

// Output defines a new spendable output.
type Output struct {
	UniquePubkey UniquePubkey `json:"unique_pubkey"`
	Amount       uint64       `json:"amount"`
}

// Transaction is an immutable set of consumed inputs and created outputs,
// identified by a content hash over its structure.
type Transaction struct {
	Inputs  []Input  `json:"inputs"`
	Outputs []Output `json:"outputs"`
}

// Hash computes the transaction ID (BLAKE3 hash of the canonical bytes).
func (tx *Transaction) Hash() types.Hash {
	return crypto.Hash(tx.ToBytes())
}

// ToBytes returns the canonical byte representation used for hashing.
// Format: input_count(4) | [pubkey(33) + amount(8)]... | output_count(4) | [pubkey(33) + amount(8)]...
func (tx *Transaction) ToBytes() []byte {
	var buf []byte

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf = append(buf, in.UniquePubkey[:]...)
		buf = binary.LittleEndian.AppendUint64(buf, in.Amount)
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		buf = append(buf, out.UniquePubkey[:]...)
		buf = binary.LittleEndian.AppendUint64(buf, out.Amount)
	}

	return buf
}

// IsEmpty returns true when the transaction has no inputs and no outputs.
func (tx *Transaction) IsEmpty() bool {
	return len(tx.Inputs) == 0 && len(tx.Outputs) == 0
}

// InputAddresses returns the spend addresses of all declared input keys.
func (tx *Transaction) InputAddresses() []types.SpendAddress {
	addrs := make([]types.SpendAddress, 0, len(tx.Inputs))
	for _, in := range tx.Inputs {
		addrs = append(addrs, in.UniquePubkey.Address())
	}
	return addrs
}

// OutputAddresses returns the spend addresses of all declared output keys.
func (tx *Transaction) OutputAddresses() []types.SpendAddress {
	addrs := make([]types.SpendAddress, 0, len(tx.Outputs))
	for _, out := range tx.Outputs {
		addrs = append(addrs, out.UniquePubkey.Address())
	}
	return addrs
}

// TotalInputAmount sums the input amounts, erroring on overflow.
func (tx *Transaction) TotalInputAmount() (uint64, error) {
	var total uint64
	for _, in := range tx.Inputs {
		if total > math.MaxUint64-in.Amount {
			return 0, fmt.Errorf("input amount overflow")
		}
		total += in.Amount
	}
	return total, nil
}

// TotalOutputAmount sums the output amounts, erroring on overflow.
func (tx *Transaction) TotalOutputAmount() (uint64, error) {
	var total uint64
	for _, out := range tx.Outputs {
		if total > math.MaxUint64-out.Amount {
			return 0, fmt.Errorf("output amount overflow")
		}
		total += out.Amount
	}
	return total, nil
}

// verifyBalanced checks that input and output sums match.
func (tx *Transaction) verifyBalanced() error {
	in, err := tx.TotalInputAmount()
	if err != nil {
		return err
	}
	out, err := tx.TotalOutputAmount()
	if err != nil {
		return err
	}
	if in != out {
		return fmt.Errorf("unbalanced transaction: inputs %d != outputs %d", in, out)
	}
	return nil
}

// VerifyAgainstInputsSpent verifies the transaction against the signed
// spends fetched from the network for its inputs.
//
// It checks that:
//   - the transaction has at least one input
//   - the input keys match the spend keys exactly
//   - inputs and outputs are each unique, and disjoint from one another
//   - the transaction is balanced
//   - every signed spend is validly signed and commits to this transaction
func (tx *Transaction) VerifyAgainstInputsSpent(spends []*SignedSpend) error {
	if len(tx.Inputs) == 0 {
		return fmt.Errorf("transaction has no inputs")
	}

	inputKeys := make(map[UniquePubkey]struct{}, len(tx.Inputs))
	for _, in := range tx.Inputs {
		inputKeys[in.UniquePubkey] = struct{}{}
	}
	if len(inputKeys) != len(tx.Inputs) {
		return fmt.Errorf("duplicate input key in transaction")
	}

	spendKeys := make(map[UniquePubkey]struct{}, len(spends))
	for _, s := range spends {
		spendKeys[s.Spend.UniquePubkey] = struct{}{}
	}
	if len(spendKeys) != len(inputKeys) {
		return fmt.Errorf("spends do not match inputs: %d spend keys for %d inputs", len(spendKeys), len(inputKeys))
	}
	for k := range inputKeys {
		if _, ok := spendKeys[k]; !ok {
			return fmt.Errorf("no spend found for input key %s", k.Short())
		}
	}

	outputKeys := make(map[UniquePubkey]struct{}, len(tx.Outputs))
	for _, out := range tx.Outputs {
		outputKeys[out.UniquePubkey] = struct{}{}
	}
	if len(outputKeys) != len(tx.Outputs) {
		return fmt.Errorf("duplicate output key in transaction")
	}
	for k := range inputKeys {
		if _, ok := outputKeys[k]; ok {
			return fmt.Errorf("key %s appears as both input and output", k.Short())
		}
	}

	if err := tx.verifyBalanced(); err != nil {
		return err
	}

	txHash := tx.Hash()
	for _, s := range spends {
		if err := s.Verify(); err != nil {
			return fmt.Errorf("invalid spend for input %s: %w", s.Spend.UniquePubkey.Short(), err)
		}
		if s.Spend.SpentTx.Hash() != txHash {
			return fmt.Errorf("spend for input %s commits to transaction %s, not %s",
				s.Spend.UniquePubkey.Short(), s.Spend.SpentTx.Hash().Short(), txHash.Short())
		}
	}

	return nil
}
