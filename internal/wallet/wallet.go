package wallet

import (
	"crypto/rand"
	"fmt"

	"github.com/notemesh/notemesh-audit/pkg/crypto"
	"github.com/notemesh/notemesh-audit/pkg/ledger"
	"github.com/notemesh/notemesh-audit/pkg/types"
)

// Wallet is an open wallet: the decrypted main key plus the keystore
// holding its note metadata. Close zeroes the main key.
type Wallet struct {
	name    string
	ks      *Keystore
	mainKey *crypto.PrivateKey
}

// Open decrypts the named wallet and returns it ready for use.
func Open(ks *Keystore, name string, password []byte) (*Wallet, error) {
	seed, err := ks.LoadSeed(name, password)
	if err != nil {
		return nil, err
	}
	defer zero(seed)

	mainKey, err := MainKeyFromSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("derive main key: %w", err)
	}
	return &Wallet{name: name, ks: ks, mainKey: mainKey}, nil
}

// Close zeroes the wallet's main key.
func (w *Wallet) Close() {
	if w.mainKey != nil {
		w.mainKey.Zero()
		w.mainKey = nil
	}
}

// Name returns the wallet's keystore name.
func (w *Wallet) Name() string { return w.name }

// MainPubkey returns the compressed main public key. Senders derive
// one-time recipient keys from it.
func (w *Wallet) MainPubkey() []byte {
	return w.mainKey.PublicKey()
}

// Balance sums the wallet's unspent notes.
func (w *Wallet) Balance() (uint64, error) {
	notes, err := w.ks.UnspentNotes(w.name)
	if err != nil {
		return 0, err
	}
	return totalAmount(notes), nil
}

// Notes returns the wallet's unspent notes.
func (w *Wallet) Notes() ([]Note, error) {
	return w.ks.UnspentNotes(w.name)
}

// Receive records a note sent to this wallet after checking that its
// one-time key is actually derived from the wallet's main key and that
// the creating transaction pays that key the claimed amount.
func (w *Wallet) Receive(n Note) error {
	key, err := n.UniquePubkey(w.MainPubkey())
	if err != nil {
		return fmt.Errorf("derive note key: %w", err)
	}
	var found bool
	for _, out := range n.ParentTx.Outputs {
		if out.UniquePubkey == key {
			if out.Amount != n.Amount {
				return fmt.Errorf("note amount %d does not match output amount %d", n.Amount, out.Amount)
			}
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("transaction has no output for key %s", key.Short())
	}
	return w.ks.AddNote(w.name, n)
}

// Transfer is a prepared spend of wallet notes: the transaction, the
// signed spends proving each input consumed, and the notes created for
// the recipient and (when nonzero) the sender's change.
type Transfer struct {
	Tx            ledger.Transaction
	Spends        []*ledger.SignedSpend
	RecipientNote Note
	ChangeNote    *Note
}

// CreateTransfer builds and signs a transfer of amount to the holder of
// recipientMainPub. Selected notes are marked spent in the keystore and
// the change note, if any, is recorded as a new unspent note.
//
// The recipient note must be delivered to the recipient out of band;
// only they can recover its one-time key.
func (w *Wallet) CreateTransfer(amount uint64, recipientMainPub []byte, reason types.Hash) (*Transfer, error) {
	notes, err := w.ks.UnspentNotes(w.name)
	if err != nil {
		return nil, err
	}
	sel, err := SelectNotes(notes, amount)
	if err != nil {
		return nil, err
	}

	mainPub := w.MainPubkey()

	// Inputs from the selected notes' one-time keys.
	inputs := make([]ledger.Input, 0, len(sel.Notes))
	spentIndexes := make([]crypto.DerivationIndex, 0, len(sel.Notes))
	for _, n := range sel.Notes {
		key, err := n.UniquePubkey(mainPub)
		if err != nil {
			return nil, fmt.Errorf("derive input key: %w", err)
		}
		inputs = append(inputs, ledger.Input{UniquePubkey: key, Amount: n.Amount})
		spentIndexes = append(spentIndexes, n.Index)
	}

	// Fresh one-time output key for the recipient.
	recipientIdx, err := NewDerivationIndex()
	if err != nil {
		return nil, err
	}
	recipientKey, err := ledger.NewUniquePubkey(recipientMainPub, recipientIdx)
	if err != nil {
		return nil, fmt.Errorf("derive recipient key: %w", err)
	}
	outputs := []ledger.Output{{UniquePubkey: recipientKey, Amount: amount}}

	// Change back to a fresh key of our own.
	var changeIdx crypto.DerivationIndex
	if sel.Change > 0 {
		changeIdx, err = NewDerivationIndex()
		if err != nil {
			return nil, err
		}
		changeKey, err := ledger.NewUniquePubkey(mainPub, changeIdx)
		if err != nil {
			return nil, fmt.Errorf("derive change key: %w", err)
		}
		outputs = append(outputs, ledger.Output{UniquePubkey: changeKey, Amount: sel.Change})
	}

	tx := ledger.Transaction{Inputs: inputs, Outputs: outputs}

	// Sign one spend per input with its derived one-time key.
	spends := make([]*ledger.SignedSpend, 0, len(sel.Notes))
	for i, n := range sel.Notes {
		oneTime, err := w.mainKey.DeriveKey(n.Index)
		if err != nil {
			return nil, fmt.Errorf("derive input signer: %w", err)
		}
		signed, err := ledger.SignSpend(ledger.Spend{
			UniquePubkey: inputs[i].UniquePubkey,
			ParentTx:     n.ParentTx,
			SpentTx:      tx,
			Amount:       n.Amount,
			Reason:       reason,
		}, oneTime)
		oneTime.Zero()
		if err != nil {
			return nil, err
		}
		spends = append(spends, signed)
	}

	transfer := &Transfer{
		Tx:            tx,
		Spends:        spends,
		RecipientNote: Note{Index: recipientIdx, Amount: amount, ParentTx: tx},
	}

	if err := w.ks.MarkSpent(w.name, spentIndexes); err != nil {
		return nil, err
	}
	if sel.Change > 0 {
		change := Note{Index: changeIdx, Amount: sel.Change, ParentTx: tx}
		if err := w.ks.AddNote(w.name, change); err != nil {
			return nil, err
		}
		transfer.ChangeNote = &change
	}
	return transfer, nil
}

// NewDerivationIndex returns a fresh random derivation index.
func NewDerivationIndex() (crypto.DerivationIndex, error) {
	var idx crypto.DerivationIndex
	if _, err := rand.Read(idx[:]); err != nil {
		return idx, fmt.Errorf("generate derivation index: %w", err)
	}
	return idx, nil
}
