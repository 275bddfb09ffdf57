package wallet

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/notemesh/notemesh-audit/pkg/crypto"
	"github.com/notemesh/notemesh-audit/pkg/ledger"
)

// keystoreFile is the on-disk JSON format for an encrypted wallet.
type keystoreFile struct {
	Version       int         `json:"version"`
	CreatedAt     time.Time   `json:"created_at"`
	EncryptedSeed []byte      `json:"encrypted_seed"`
	Notes         []noteEntry `json:"notes"`
}

// noteEntry is the stored form of a Note. The derivation index is public
// metadata: without the main secret key it only reveals which outputs
// belong together, never who can spend them.
type noteEntry struct {
	Index    string             `json:"index"` // hex derivation index
	Amount   uint64             `json:"amount"`
	ParentTx ledger.Transaction `json:"parent_tx"`
	Spent    bool               `json:"spent"`
}

func (e noteEntry) toNote() (Note, error) {
	raw, err := hex.DecodeString(e.Index)
	if err != nil {
		return Note{}, fmt.Errorf("invalid note index hex: %w", err)
	}
	if len(raw) != crypto.DerivationIndexSize {
		return Note{}, fmt.Errorf("note index must be %d bytes, got %d", crypto.DerivationIndexSize, len(raw))
	}
	var idx crypto.DerivationIndex
	copy(idx[:], raw)
	return Note{Index: idx, Amount: e.Amount, ParentTx: e.ParentTx}, nil
}

func entryFromNote(n Note) noteEntry {
	return noteEntry{
		Index:    hex.EncodeToString(n.Index[:]),
		Amount:   n.Amount,
		ParentTx: n.ParentTx,
	}
}

// Keystore manages encrypted wallet files on disk.
type Keystore struct {
	path string
}

// NewKeystore creates a keystore that reads and writes wallet files in
// the given directory, creating it if needed.
func NewKeystore(path string) (*Keystore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{path: path}, nil
}

func (ks *Keystore) walletPath(name string) string {
	return filepath.Join(ks.path, name+".wallet")
}

// Create creates a new encrypted wallet file holding the given seed.
func (ks *Keystore) Create(name string, seed, password []byte, params KDFParams) error {
	path := ks.walletPath(name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("wallet %q already exists", name)
	}

	sealed, err := seal(seed, password, params)
	if err != nil {
		return fmt.Errorf("encrypt seed: %w", err)
	}

	kf := keystoreFile{
		Version:       1,
		CreatedAt:     time.Now().UTC(),
		EncryptedSeed: sealed,
		Notes:         []noteEntry{},
	}
	return ks.writeFile(path, &kf)
}

// LoadSeed decrypts a wallet and returns the seed bytes.
func (ks *Keystore) LoadSeed(name string, password []byte) ([]byte, error) {
	kf, err := ks.readFile(ks.walletPath(name))
	if err != nil {
		return nil, err
	}
	seed, err := open(kf.EncryptedSeed, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt wallet %q: %w", name, err)
	}
	return seed, nil
}

// AddNote records a received note in the wallet metadata. Adding the same
// index twice is a no-op.
func (ks *Keystore) AddNote(name string, n Note) error {
	path := ks.walletPath(name)
	kf, err := ks.readFile(path)
	if err != nil {
		return err
	}

	entry := entryFromNote(n)
	for _, existing := range kf.Notes {
		if existing.Index == entry.Index {
			return nil
		}
	}
	kf.Notes = append(kf.Notes, entry)
	return ks.writeFile(path, kf)
}

// MarkSpent flags the notes with the given derivation indexes as spent.
func (ks *Keystore) MarkSpent(name string, indexes []crypto.DerivationIndex) error {
	path := ks.walletPath(name)
	kf, err := ks.readFile(path)
	if err != nil {
		return err
	}

	spent := make(map[string]struct{}, len(indexes))
	for _, idx := range indexes {
		spent[hex.EncodeToString(idx[:])] = struct{}{}
	}
	for i := range kf.Notes {
		if _, ok := spent[kf.Notes[i].Index]; ok {
			kf.Notes[i].Spent = true
		}
	}
	return ks.writeFile(path, kf)
}

// UnspentNotes returns the wallet's notes that have not been marked spent.
func (ks *Keystore) UnspentNotes(name string) ([]Note, error) {
	kf, err := ks.readFile(ks.walletPath(name))
	if err != nil {
		return nil, err
	}
	notes := make([]Note, 0, len(kf.Notes))
	for _, e := range kf.Notes {
		if e.Spent {
			continue
		}
		n, err := e.toNote()
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, nil
}

// List returns the names of all wallet files in the keystore.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext == ".wallet" {
			names = append(names, name[:len(name)-len(ext)])
		}
	}
	return names, nil
}

// Delete removes a wallet file.
func (ks *Keystore) Delete(name string) error {
	path := ks.walletPath(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("wallet %q not found", name)
	}
	return os.Remove(path)
}

func (ks *Keystore) writeFile(path string, kf *keystoreFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	return nil
}

func (ks *Keystore) readFile(path string) (*keystoreFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}
	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse wallet: %w", err)
	}
	if kf.Version != 1 {
		return nil, fmt.Errorf("unsupported wallet version: %d", kf.Version)
	}
	return &kf, nil
}
