package ledger

import (
	"encoding/json"
	"testing"

	"github.com/notemesh/notemesh-audit/pkg/crypto"
)

// testKey generates a fresh one-time key pair for tests.
func testKey(t *testing.T) (*crypto.PrivateKey, UniquePubkey) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	pub, err := UniquePubkeyFromBytes(key.PublicKey())
	if err != nil {
		t.Fatalf("UniquePubkeyFromBytes() error: %v", err)
	}
	return key, pub
}

// makeSpend builds and signs a spend of `from` into spentTx.
func makeSpend(t *testing.T, key *crypto.PrivateKey, from UniquePubkey, parentTx, spentTx Transaction, amount uint64) *SignedSpend {
	t.Helper()
	ss, err := SignSpend(Spend{
		UniquePubkey: from,
		ParentTx:     parentTx,
		SpentTx:      spentTx,
		Amount:       amount,
	}, key)
	if err != nil {
		t.Fatalf("SignSpend() error: %v", err)
	}
	return ss
}

func TestTransaction_HashDeterministic(t *testing.T) {
	_, k1 := testKey(t)
	_, k2 := testKey(t)

	tx := Transaction{
		Inputs:  []Input{{UniquePubkey: k1, Amount: 100}},
		Outputs: []Output{{UniquePubkey: k2, Amount: 100}},
	}

	if tx.Hash() != tx.Hash() {
		t.Error("transaction hash should be deterministic")
	}

	// Amount changes the hash.
	tx2 := Transaction{
		Inputs:  []Input{{UniquePubkey: k1, Amount: 101}},
		Outputs: []Output{{UniquePubkey: k2, Amount: 100}},
	}
	if tx.Hash() == tx2.Hash() {
		t.Error("different amounts should produce different hashes")
	}

	// Swapping inputs and outputs changes the hash.
	tx3 := Transaction{
		Inputs:  []Input{{UniquePubkey: k2, Amount: 100}},
		Outputs: []Output{{UniquePubkey: k1, Amount: 100}},
	}
	if tx.Hash() == tx3.Hash() {
		t.Error("swapped inputs/outputs should produce different hashes")
	}
}

func TestTransaction_Addresses(t *testing.T) {
	_, k1 := testKey(t)
	_, k2 := testKey(t)
	_, k3 := testKey(t)

	tx := Transaction{
		Inputs:  []Input{{UniquePubkey: k1, Amount: 100}},
		Outputs: []Output{{UniquePubkey: k2, Amount: 60}, {UniquePubkey: k3, Amount: 40}},
	}

	in := tx.InputAddresses()
	if len(in) != 1 || in[0] != k1.Address() {
		t.Errorf("InputAddresses() = %v", in)
	}

	out := tx.OutputAddresses()
	if len(out) != 2 || out[0] != k2.Address() || out[1] != k3.Address() {
		t.Errorf("OutputAddresses() = %v", out)
	}
}

func TestSignSpend_RejectsWrongOwner(t *testing.T) {
	key1, _ := testKey(t)
	_, pub2 := testKey(t)

	_, err := SignSpend(Spend{UniquePubkey: pub2}, key1)
	if err == nil {
		t.Error("SignSpend() should reject a signer that does not own the spend key")
	}
}

func TestSignedSpend_Verify(t *testing.T) {
	key, pub := testKey(t)
	_, dest := testKey(t)

	parentTx := Transaction{Outputs: []Output{{UniquePubkey: pub, Amount: 100}}}
	spentTx := Transaction{
		Inputs:  []Input{{UniquePubkey: pub, Amount: 100}},
		Outputs: []Output{{UniquePubkey: dest, Amount: 100}},
	}

	ss := makeSpend(t, key, pub, parentTx, spentTx, 100)
	if err := ss.Verify(); err != nil {
		t.Errorf("Verify() error: %v", err)
	}

	// Tampering with the payload invalidates the signature.
	tampered := *ss
	tampered.Spend.Amount = 999
	if err := tampered.Verify(); err == nil {
		t.Error("Verify() should fail after payload tampering")
	}
}

func TestSignedSpend_Equal(t *testing.T) {
	key, pub := testKey(t)
	_, dest := testKey(t)

	spentTx := Transaction{
		Inputs:  []Input{{UniquePubkey: pub, Amount: 50}},
		Outputs: []Output{{UniquePubkey: dest, Amount: 50}},
	}
	a := makeSpend(t, key, pub, Transaction{}, spentTx, 50)
	b := makeSpend(t, key, pub, Transaction{}, spentTx, 50)

	// Schnorr signing is deterministic, so re-signing yields an equal spend.
	if !a.Equal(b) {
		t.Error("identical spends should be equal")
	}

	otherTx := Transaction{
		Inputs:  []Input{{UniquePubkey: pub, Amount: 50}},
		Outputs: []Output{{UniquePubkey: dest, Amount: 25}, {UniquePubkey: pub, Amount: 25}},
	}
	c := makeSpend(t, key, pub, Transaction{}, otherTx, 50)
	if a.Equal(c) {
		t.Error("spends with different spent transactions should not be equal")
	}
}

func TestSignedSpend_JSONRoundTrip(t *testing.T) {
	key, pub := testKey(t)
	_, dest := testKey(t)

	spentTx := Transaction{
		Inputs:  []Input{{UniquePubkey: pub, Amount: 10}},
		Outputs: []Output{{UniquePubkey: dest, Amount: 10}},
	}
	ss := makeSpend(t, key, pub, Transaction{}, spentTx, 10)

	data, err := json.Marshal(ss)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var got SignedSpend
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}

	if !got.Equal(ss) {
		t.Error("JSON round trip should preserve the signed spend")
	}
	if err := got.Verify(); err != nil {
		t.Errorf("round-tripped spend should still verify: %v", err)
	}
}

func TestVerifyAgainstInputsSpent(t *testing.T) {
	key, pub := testKey(t)
	_, dest := testKey(t)

	parentTx := Transaction{Outputs: []Output{{UniquePubkey: pub, Amount: 100}}}
	spentTx := Transaction{
		Inputs:  []Input{{UniquePubkey: pub, Amount: 100}},
		Outputs: []Output{{UniquePubkey: dest, Amount: 100}},
	}
	ss := makeSpend(t, key, pub, parentTx, spentTx, 100)

	if err := spentTx.VerifyAgainstInputsSpent([]*SignedSpend{ss}); err != nil {
		t.Errorf("VerifyAgainstInputsSpent() error: %v", err)
	}
}

func TestVerifyAgainstInputsSpent_Failures(t *testing.T) {
	key, pub := testKey(t)
	otherKey, otherPub := testKey(t)
	_, dest := testKey(t)

	spentTx := Transaction{
		Inputs:  []Input{{UniquePubkey: pub, Amount: 100}},
		Outputs: []Output{{UniquePubkey: dest, Amount: 100}},
	}
	good := makeSpend(t, key, pub, Transaction{}, spentTx, 100)

	t.Run("no inputs", func(t *testing.T) {
		empty := Transaction{Outputs: []Output{{UniquePubkey: dest, Amount: 1}}}
		if err := empty.VerifyAgainstInputsSpent(nil); err == nil {
			t.Error("should reject a transaction with no inputs")
		}
	})

	t.Run("wrong spend key", func(t *testing.T) {
		wrongTx := Transaction{
			Inputs:  []Input{{UniquePubkey: otherPub, Amount: 100}},
			Outputs: []Output{{UniquePubkey: dest, Amount: 100}},
		}
		wrong := makeSpend(t, otherKey, otherPub, Transaction{}, wrongTx, 100)
		if err := spentTx.VerifyAgainstInputsSpent([]*SignedSpend{wrong}); err == nil {
			t.Error("should reject spends whose keys do not match the inputs")
		}
	})

	t.Run("unbalanced", func(t *testing.T) {
		bad := Transaction{
			Inputs:  []Input{{UniquePubkey: pub, Amount: 100}},
			Outputs: []Output{{UniquePubkey: dest, Amount: 42}},
		}
		badSpend := makeSpend(t, key, pub, Transaction{}, bad, 100)
		if err := bad.VerifyAgainstInputsSpent([]*SignedSpend{badSpend}); err == nil {
			t.Error("should reject an unbalanced transaction")
		}
	})

	t.Run("input also output", func(t *testing.T) {
		circular := Transaction{
			Inputs:  []Input{{UniquePubkey: pub, Amount: 100}},
			Outputs: []Output{{UniquePubkey: pub, Amount: 100}},
		}
		circSpend := makeSpend(t, key, pub, Transaction{}, circular, 100)
		if err := circular.VerifyAgainstInputsSpent([]*SignedSpend{circSpend}); err == nil {
			t.Error("should reject a key appearing as both input and output")
		}
	})

	t.Run("spend commits to other tx", func(t *testing.T) {
		other := Transaction{
			Inputs:  []Input{{UniquePubkey: pub, Amount: 100}},
			Outputs: []Output{{UniquePubkey: otherPub, Amount: 100}},
		}
		if err := other.VerifyAgainstInputsSpent([]*SignedSpend{good}); err == nil {
			t.Error("should reject a spend committing to a different transaction")
		}
	})
}

func TestGenesis_Singletons(t *testing.T) {
	if GenesisUniquePubkey() != GenesisUniquePubkey() {
		t.Error("genesis pubkey should be stable")
	}
	if GenesisAddress() != GenesisUniquePubkey().Address() {
		t.Error("genesis address should derive from the genesis pubkey")
	}

	parent := GenesisParentTx()
	if !IsGenesisParentTx(&parent) {
		t.Error("IsGenesisParentTx() should accept the genesis issuance")
	}

	other := Transaction{}
	if IsGenesisParentTx(&other) {
		t.Error("IsGenesisParentTx() should reject other transactions")
	}
}

func TestGenesis_ParentTxShape(t *testing.T) {
	parent := GenesisParentTx()
	if len(parent.Inputs) != 1 || len(parent.Outputs) != 1 {
		t.Fatalf("genesis issuance should have one input and one output")
	}
	if parent.Inputs[0].UniquePubkey != GenesisUniquePubkey() {
		t.Error("genesis issuance input should be the genesis key")
	}
	if parent.Outputs[0].Amount != GenesisAmount {
		t.Errorf("genesis output amount = %d, want %d", parent.Outputs[0].Amount, GenesisAmount)
	}
}

func TestNewGenesisSpend(t *testing.T) {
	_, dest := testKey(t)
	spentTx := Transaction{
		Inputs:  []Input{{UniquePubkey: GenesisUniquePubkey(), Amount: GenesisAmount}},
		Outputs: []Output{{UniquePubkey: dest, Amount: GenesisAmount}},
	}

	ss, err := NewGenesisSpend(spentTx)
	if err != nil {
		t.Fatalf("NewGenesisSpend() error: %v", err)
	}
	if err := ss.Verify(); err != nil {
		t.Errorf("genesis spend should verify: %v", err)
	}
	if !IsGenesisSpend(ss) {
		t.Error("IsGenesisSpend() should accept the genesis spend")
	}
	if ss.Address() != GenesisAddress() {
		t.Error("genesis spend should live at the genesis address")
	}
}
