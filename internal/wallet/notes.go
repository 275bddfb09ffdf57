package wallet

import (
	"errors"
	"fmt"
	"sort"

	"github.com/notemesh/notemesh-audit/pkg/crypto"
	"github.com/notemesh/notemesh-audit/pkg/ledger"
)

// Note selection errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoNotes           = errors.New("no unspent notes available")
)

// Note is an unspent output owned by the wallet: the derivation index
// that recovers its one-time key, the amount it carries, and the
// transaction that created it.
type Note struct {
	Index    crypto.DerivationIndex
	Amount   uint64
	ParentTx ledger.Transaction
}

// UniquePubkey recomputes the note's one-time key from the wallet's main
// public key.
func (n Note) UniquePubkey(mainPubKey []byte) (ledger.UniquePubkey, error) {
	return ledger.NewUniquePubkey(mainPubKey, n.Index)
}

// NoteSelection holds the result of note selection.
type NoteSelection struct {
	Notes  []Note // Selected notes to spend.
	Total  uint64 // Sum of selected note amounts.
	Change uint64 // Change = Total - target.
}

// SelectNotes chooses notes to fund a transfer of the given target amount.
// It tries two strategies:
//  1. Single note: the smallest single note that covers the target.
//  2. Largest-first accumulation: greedily adds the largest notes until
//     the target is met.
//
// Returns the strategy that produces the least change.
func SelectNotes(notes []Note, target uint64) (*NoteSelection, error) {
	if len(notes) == 0 {
		return nil, ErrNoNotes
	}
	if target == 0 {
		return nil, fmt.Errorf("target must be positive")
	}

	candidates := make([]Note, 0, len(notes))
	for _, n := range notes {
		if n.Amount > 0 {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoNotes
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Amount < candidates[j].Amount
	})

	// Smallest single note that covers the target.
	var single *NoteSelection
	for _, n := range candidates {
		if n.Amount >= target {
			single = &NoteSelection{
				Notes:  []Note{n},
				Total:  n.Amount,
				Change: n.Amount - target,
			}
			break
		}
	}

	// Largest-first accumulation.
	var accum *NoteSelection
	var selected []Note
	var total uint64
	for i := len(candidates) - 1; i >= 0; i-- {
		selected = append(selected, candidates[i])
		total += candidates[i].Amount
		if total >= target {
			accum = &NoteSelection{
				Notes:  selected,
				Total:  total,
				Change: total - target,
			}
			break
		}
	}

	switch {
	case single != nil && accum != nil:
		if single.Change <= accum.Change {
			return single, nil
		}
		return accum, nil
	case single != nil:
		return single, nil
	case accum != nil:
		return accum, nil
	default:
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, totalAmount(candidates), target)
	}
}

func totalAmount(notes []Note) uint64 {
	var total uint64
	for _, n := range notes {
		total += n.Amount
	}
	return total
}
