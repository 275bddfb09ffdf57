package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/notemesh/notemesh-audit/pkg/ledger"
	"github.com/notemesh/notemesh-audit/pkg/types"
)

// FollowSpend walks forward from the spend at addr generation by
// generation until every line of descent ends in an unspent output,
// and returns the set of UTXO addresses found. Transient fetch
// failures and double spends are fatal here; callers wanting partial
// results build a DAG instead.
func (c *Client) FollowSpend(ctx context.Context, addr types.SpendAddress) (map[types.SpendAddress]struct{}, error) {
	start := time.Now()
	first, err := c.net.GetSpend(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("fetch spend at %s: %w", addr.Short(), err)
	}

	utxos := make(map[types.SpendAddress]struct{})
	seenTxs := map[types.Hash]struct{}{first.Spend.SpentTx.Hash(): {}}
	frontier := []ledger.Transaction{first.Spend.SpentTx}
	var gen, spendCount int

	for len(frontier) > 0 {
		var outputs []types.SpendAddress
		for _, tx := range frontier {
			outputs = append(outputs, tx.OutputAddresses()...)
		}

		var next []ledger.Transaction
		for _, res := range c.fetchClassified(ctx, outputs, 0) {
			switch res.status {
			case fetchOK:
				spendCount++
				spent := res.spends[0].Spend.SpentTx
				h := spent.Hash()
				if _, ok := seenTxs[h]; !ok {
					seenTxs[h] = struct{}{}
					next = append(next, spent)
				}
			case fetchNotFound:
				utxos[res.addr] = struct{}{}
			case fetchDouble:
				return nil, fmt.Errorf("generation %d: %w", gen,
					&DoubleSpendError{Addr: res.addr, Spends: res.spends})
			case fetchFailed:
				return nil, fmt.Errorf("generation %d: fetch spend at %s: %w", gen, res.addr.Short(), res.err)
			}
		}
		frontier = next
		gen++
	}

	c.logger.Info().
		Str("addr", addr.Short()).
		Int("generations", gen).
		Int("spends", spendCount).
		Int("utxos", len(utxos)).
		Dur("elapsed", time.Since(start)).
		Msg("followed spend to utxo frontier")
	return utxos, nil
}
