package ledger

import (
	"encoding/hex"
	"sync"

	"github.com/notemesh/notemesh-audit/pkg/crypto"
	"github.com/notemesh/notemesh-audit/pkg/types"
)

// TotalSupply is the total number of value units that will ever exist.
const TotalSupply uint64 = 4_294_967_296_000_000_000

// GenesisAmount is the value of the genesis issuance.
const GenesisAmount uint64 = TotalSupply * 3 / 10

// GenesisSecretKeyHex is the well-known secret key of the genesis output.
// It is public on purpose: anyone must be able to re-derive the genesis
// constants and verify ancestry chains terminate at the same root.
const GenesisSecretKeyHex = "23a3a21c44bcca863acd7c1c1ed69fa89d10d4e1b186303dd06fc6a4e0b0b08b"

var (
	genesisOnce      sync.Once
	genesisKey       *crypto.PrivateKey
	genesisUniqueKey *crypto.PrivateKey
	genesisPubkey    UniquePubkey
	genesisParentTx  Transaction
)

// initGenesis derives the genesis singletons from the well-known secret.
// Derivation cannot fail for the fixed constants; a failure here means the
// constants themselves are corrupt, so panic.
func initGenesis() {
	raw, err := hex.DecodeString(GenesisSecretKeyHex)
	if err != nil {
		panic("ledger: invalid genesis secret key hex: " + err.Error())
	}
	genesisKey, err = crypto.PrivateKeyFromBytes(raw)
	if err != nil {
		panic("ledger: invalid genesis secret key: " + err.Error())
	}

	index := crypto.DerivationIndex(crypto.Hash([]byte("notemesh genesis derivation")))
	genesisUniqueKey, err = genesisKey.DeriveKey(index)
	if err != nil {
		panic("ledger: genesis key derivation failed: " + err.Error())
	}

	genesisPubkey, err = UniquePubkeyFromBytes(genesisUniqueKey.PublicKey())
	if err != nil {
		panic("ledger: genesis pubkey: " + err.Error())
	}

	// The issuance transaction is self-referential: the genesis key is both
	// its only input and its only output. It terminates backward traversal.
	genesisParentTx = Transaction{
		Inputs:  []Input{{UniquePubkey: genesisPubkey, Amount: GenesisAmount}},
		Outputs: []Output{{UniquePubkey: genesisPubkey, Amount: GenesisAmount}},
	}
}

// GenesisUniquePubkey returns the one-time key of the genesis output.
func GenesisUniquePubkey() UniquePubkey {
	genesisOnce.Do(initGenesis)
	return genesisPubkey
}

// GenesisAddress returns the network address of the genesis spend.
func GenesisAddress() types.SpendAddress {
	genesisOnce.Do(initGenesis)
	return genesisPubkey.Address()
}

// GenesisParentTx returns the issuance transaction that created the
// genesis output.
func GenesisParentTx() Transaction {
	genesisOnce.Do(initGenesis)
	return genesisParentTx
}

// GenesisUniqueKey returns the private key owning the genesis output.
// Only useful for local test networks; on a shared network the genesis
// output has long been spent.
func GenesisUniqueKey() *crypto.PrivateKey {
	genesisOnce.Do(initGenesis)
	return genesisUniqueKey
}

// IsGenesisParentTx reports whether tx is the genesis issuance transaction.
func IsGenesisParentTx(tx *Transaction) bool {
	genesisOnce.Do(initGenesis)
	return tx.Hash() == genesisParentTx.Hash()
}

// IsGenesisSpend reports whether the spend is the genesis spend.
func IsGenesisSpend(s *SignedSpend) bool {
	genesisOnce.Do(initGenesis)
	return s.Spend.UniquePubkey == genesisPubkey
}

// NewGenesisSpend builds and signs the genesis spend consuming the
// issuance into spentTx. Used to seed local test networks.
func NewGenesisSpend(spentTx Transaction) (*SignedSpend, error) {
	genesisOnce.Do(initGenesis)
	spend := Spend{
		UniquePubkey: genesisPubkey,
		ParentTx:     genesisParentTx,
		SpentTx:      spentTx,
		Amount:       GenesisAmount,
		Reason:       crypto.Hash([]byte("genesis")),
	}
	return SignSpend(spend, genesisUniqueKey)
}
