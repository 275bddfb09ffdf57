package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/notemesh/notemesh-audit/pkg/ledger"
	"github.com/notemesh/notemesh-audit/pkg/types"
)

// VerifySpendAt checks the spend recorded at addr. With toGenesis set
// it walks the full ancestry generation by generation, verifying every
// parent transaction against the spends of its inputs until each line
// terminates at the genesis issuance. Any double spend, missing
// ancestor or failed transaction check along the way is fatal.
func (c *Client) VerifySpendAt(ctx context.Context, addr types.SpendAddress, toGenesis bool) error {
	start := time.Now()
	first, err := c.net.GetSpend(ctx, addr)
	if err != nil {
		return fmt.Errorf("fetch spend at %s: %w", addr.Short(), err)
	}
	if !toGenesis {
		return nil
	}

	frontier := map[types.Hash]ledger.Transaction{
		first.Spend.ParentTx.Hash(): first.Spend.ParentTx,
	}
	verified := make(map[types.Hash]struct{})
	var depth, txCount int

	for len(frontier) > 0 {
		next := make(map[types.Hash]ledger.Transaction)
		for txHash, parentTx := range frontier {
			inputSpends, err := c.fetchStrict(ctx, parentTx.InputAddresses())
			if err != nil {
				return fmt.Errorf("depth %d: resolve inputs of tx %s: %w", depth, txHash.Short(), err)
			}
			verified[txHash] = struct{}{}
			txCount++
			if isGenesisLine(&parentTx, inputSpends) {
				continue
			}
			if err := parentTx.VerifyAgainstInputsSpent(inputSpends); err != nil {
				return fmt.Errorf("depth %d: tx %s: %w", depth, txHash.Short(), err)
			}
			for _, s := range inputSpends {
				h := s.Spend.ParentTx.Hash()
				if _, done := verified[h]; !done {
					next[h] = s.Spend.ParentTx
				}
			}
		}
		frontier = next
		depth++
	}

	c.logger.Info().
		Str("addr", addr.Short()).
		Int("depth", depth).
		Int("transactions", txCount).
		Dur("elapsed", time.Since(start)).
		Msg("spend ancestry verified to genesis")
	return nil
}

// isGenesisLine reports whether a parent transaction is the genesis
// issuance backed by its own genesis spend, which terminates an
// ancestry line.
func isGenesisLine(tx *ledger.Transaction, inputSpends []*ledger.SignedSpend) bool {
	return ledger.IsGenesisParentTx(tx) &&
		len(inputSpends) == 1 &&
		ledger.IsGenesisSpend(inputSpends[0])
}
