package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/notemesh/notemesh-audit/pkg/ledger"
	"github.com/notemesh/notemesh-audit/pkg/types"
)

// SpendDagBuildFrom crawls forward from addr and assembles everything
// it finds into a new DAG rooted there. Unfetchable addresses are
// logged and skipped so one flaky peer cannot sink a whole crawl.
// maxDepth caps the number of generations walked, zero or negative
// means unlimited; outputs beyond the cap are marked unexplored.
// Faults are recorded before the DAG is returned.
func (c *Client) SpendDagBuildFrom(ctx context.Context, addr types.SpendAddress, maxDepth int) (*SpendDag, error) {
	start := time.Now()
	dag := NewSpendDag(addr)

	spend, err := c.net.GetSpend(ctx, addr)
	res := classifyFetch(addr, spend, err)
	switch res.status {
	case fetchNotFound:
		dag.InsertUtxo(addr)
		if err := dag.RecordFaults(addr); err != nil {
			return nil, err
		}
		return dag, nil
	case fetchFailed:
		return nil, fmt.Errorf("fetch source spend at %s: %w", addr.Short(), res.err)
	}

	seenTxs := make(map[types.Hash]struct{})
	var frontier []ledger.Transaction
	for _, s := range res.spends {
		dag.Insert(addr, s)
		spent := s.Spend.SpentTx
		if h := spent.Hash(); !txSeen(seenTxs, h) {
			frontier = append(frontier, spent)
		}
	}

	var gen, failed int
	for len(frontier) > 0 {
		if maxDepth > 0 && gen >= maxDepth {
			for _, tx := range frontier {
				for _, out := range tx.OutputAddresses() {
					dag.MarkUnexplored(out)
				}
			}
			c.logger.Debug().Int("depth", maxDepth).Int("pending_txs", len(frontier)).
				Msg("dag build stopped at depth limit")
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var outputs []types.SpendAddress
		for _, tx := range frontier {
			outputs = append(outputs, tx.OutputAddresses()...)
		}

		var next []ledger.Transaction
		for _, res := range c.fetchClassified(ctx, outputs, c.maxFetches) {
			switch res.status {
			case fetchOK, fetchDouble:
				for _, s := range res.spends {
					if !dag.Insert(res.addr, s) {
						continue
					}
					spent := s.Spend.SpentTx
					if h := spent.Hash(); !txSeen(seenTxs, h) {
						next = append(next, spent)
					}
				}
			case fetchNotFound:
				dag.InsertUtxo(res.addr)
			case fetchFailed:
				failed++
				c.logger.Warn().Str("addr", res.addr.Short()).Err(res.err).
					Msg("skipping unfetchable spend during dag build")
			}
		}
		frontier = next
		gen++
	}

	if err := dag.RecordFaults(addr); err != nil {
		return nil, err
	}
	c.logger.Info().
		Str("source", addr.Short()).
		Int("generations", gen).
		Int("entries", dag.Len()).
		Int("utxos", len(dag.Utxos())).
		Int("fetch_failures", failed).
		Dur("elapsed", time.Since(start)).
		Msg("dag built")
	return dag, nil
}

// txSeen records h in seen and reports whether it was already there.
func txSeen(seen map[types.Hash]struct{}, h types.Hash) bool {
	if _, ok := seen[h]; ok {
		return true
	}
	seen[h] = struct{}{}
	return false
}
