package wallet

import (
	"fmt"

	"github.com/tyler-smith/go-bip32"

	"github.com/notemesh/notemesh-audit/pkg/crypto"
)

// BIP-44 style derivation path for the wallet main key:
// m/44'/4919'/0'. Per-note keys are not derived along the BIP-32 tree;
// they come from the main key via public derivation indexes, so a
// holder of the main public key can compute note addresses without the
// secret.
const (
	purposeBIP44 = bip32.FirstHardenedChild + 44
	coinType     = bip32.FirstHardenedChild + 4919
	mainAccount  = bip32.FirstHardenedChild
)

// MainKeyFromSeed derives the wallet's main spend key from a 64-byte
// BIP-39 seed.
func MainKeyFromSeed(seed []byte) (*crypto.PrivateKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	for _, idx := range []uint32{purposeBIP44, coinType, mainAccount} {
		key, err = key.NewChildKey(idx)
		if err != nil {
			return nil, fmt.Errorf("derive child %d: %w", idx, err)
		}
	}
	// bip32 Key.Key is 33 bytes with a leading 0x00 for private keys.
	raw := key.Key
	if len(raw) == 33 && raw[0] == 0 {
		raw = raw[1:]
	}
	return crypto.PrivateKeyFromBytes(raw)
}
