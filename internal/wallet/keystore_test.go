package wallet

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/notemesh/notemesh-audit/pkg/crypto"
	"github.com/notemesh/notemesh-audit/pkg/ledger"
)

func testKeystore(t *testing.T) *Keystore {
	t.Helper()
	ks, err := NewKeystore(t.TempDir())
	if err != nil {
		t.Fatalf("NewKeystore: %v", err)
	}
	return ks
}

func testSeedBytes(t *testing.T) []byte {
	t.Helper()
	seed, err := SeedFromMnemonic(testMnemonic, "")
	if err != nil {
		t.Fatalf("SeedFromMnemonic: %v", err)
	}
	return seed
}

func testNote(t *testing.T, amount uint64) Note {
	t.Helper()
	idx, err := NewDerivationIndex()
	if err != nil {
		t.Fatalf("NewDerivationIndex: %v", err)
	}
	return Note{Index: idx, Amount: amount}
}

func TestKeystore_CreateAndLoadSeed(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeedBytes(t)
	password := []byte("test-password")

	if err := ks.Create("mywallet", seed, password, fastParams()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	loaded, err := ks.LoadSeed("mywallet", password)
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if !bytes.Equal(loaded, seed) {
		t.Error("loaded seed does not match original")
	}
}

func TestKeystore_CreateDuplicate(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeedBytes(t)

	if err := ks.Create("dup", seed, []byte("pass"), fastParams()); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if err := ks.Create("dup", seed, []byte("pass"), fastParams()); err == nil {
		t.Error("second Create should fail for duplicate name")
	}
}

func TestKeystore_LoadSeedWrongPassword(t *testing.T) {
	ks := testKeystore(t)
	ks.Create("wallet", testSeedBytes(t), []byte("correct"), fastParams())

	if _, err := ks.LoadSeed("wallet", []byte("wrong")); err == nil {
		t.Error("LoadSeed with wrong password should fail")
	}
}

func TestKeystore_LoadSeedNonexistent(t *testing.T) {
	ks := testKeystore(t)
	if _, err := ks.LoadSeed("doesnotexist", []byte("pass")); err == nil {
		t.Error("LoadSeed for nonexistent wallet should fail")
	}
}

func TestKeystore_List(t *testing.T) {
	ks := testKeystore(t)
	seed := testSeedBytes(t)

	names, err := ks.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected 0 wallets, got %d", len(names))
	}

	ks.Create("alpha", seed, []byte("p"), fastParams())
	ks.Create("beta", seed, []byte("p"), fastParams())

	names, err = ks.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("expected 2 wallets, got %d", len(names))
	}
}

func TestKeystore_Delete(t *testing.T) {
	ks := testKeystore(t)
	ks.Create("todelete", testSeedBytes(t), []byte("p"), fastParams())

	if err := ks.Delete("todelete"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := ks.LoadSeed("todelete", []byte("p")); err == nil {
		t.Error("wallet should be deleted")
	}

	if err := ks.Delete("ghost"); err == nil {
		t.Error("Delete for nonexistent wallet should fail")
	}
}

func TestKeystore_FilePermissions(t *testing.T) {
	ks := testKeystore(t)
	ks.Create("secure", testSeedBytes(t), []byte("p"), fastParams())

	info, err := os.Stat(filepath.Join(ks.path, "secure.wallet"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		t.Errorf("wallet file should be 0600, got %o", perm)
	}
}

func TestKeystore_AddNote(t *testing.T) {
	ks := testKeystore(t)
	ks.Create("wallet", testSeedBytes(t), []byte("p"), fastParams())

	note := testNote(t, 500)
	if err := ks.AddNote("wallet", note); err != nil {
		t.Fatalf("AddNote: %v", err)
	}

	notes, err := ks.UnspentNotes("wallet")
	if err != nil {
		t.Fatalf("UnspentNotes: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("expected 1 note, got %d", len(notes))
	}
	if notes[0].Index != note.Index || notes[0].Amount != 500 {
		t.Error("stored note does not match original")
	}
}

func TestKeystore_AddNoteIdempotent(t *testing.T) {
	ks := testKeystore(t)
	ks.Create("wallet", testSeedBytes(t), []byte("p"), fastParams())

	note := testNote(t, 500)
	ks.AddNote("wallet", note)
	if err := ks.AddNote("wallet", note); err != nil {
		t.Fatalf("second AddNote: %v", err)
	}

	notes, _ := ks.UnspentNotes("wallet")
	if len(notes) != 1 {
		t.Errorf("expected 1 note after duplicate add, got %d", len(notes))
	}
}

func TestKeystore_MarkSpent(t *testing.T) {
	ks := testKeystore(t)
	ks.Create("wallet", testSeedBytes(t), []byte("p"), fastParams())

	a := testNote(t, 100)
	b := testNote(t, 200)
	ks.AddNote("wallet", a)
	ks.AddNote("wallet", b)

	if err := ks.MarkSpent("wallet", []crypto.DerivationIndex{a.Index}); err != nil {
		t.Fatalf("MarkSpent: %v", err)
	}

	notes, err := ks.UnspentNotes("wallet")
	if err != nil {
		t.Fatalf("UnspentNotes: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("expected 1 unspent note, got %d", len(notes))
	}
	if notes[0].Index != b.Index {
		t.Error("wrong note left unspent")
	}
}

func TestKeystore_NotePersistsParentTx(t *testing.T) {
	ks := testKeystore(t)
	ks.Create("wallet", testSeedBytes(t), []byte("p"), fastParams())

	note := testNote(t, 100)
	note.ParentTx = ledger.Transaction{
		Outputs: []ledger.Output{{UniquePubkey: ledger.UniquePubkey{1, 2, 3}, Amount: 100}},
	}
	ks.AddNote("wallet", note)

	notes, _ := ks.UnspentNotes("wallet")
	if len(notes) != 1 {
		t.Fatalf("expected 1 note, got %d", len(notes))
	}
	if notes[0].ParentTx.Hash() != note.ParentTx.Hash() {
		t.Error("parent transaction not preserved")
	}
}
