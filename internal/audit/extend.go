package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/notemesh/notemesh-audit/pkg/ledger"
	"github.com/notemesh/notemesh-audit/pkg/types"
)

// SpendDagExtendUntil inserts spend at addr and walks its ancestry
// backward, inserting every ancestor spend until each line reaches a
// transaction already known to the DAG or the genesis issuance. Unlike
// forward building, a missing ancestor here is an error: ancestry of a
// valid spend must be complete. Faults are re-recorded on success.
func (c *Client) SpendDagExtendUntil(ctx context.Context, dag *SpendDag, addr types.SpendAddress, spend *ledger.SignedSpend) error {
	start := time.Now()
	if !dag.Insert(addr, spend) {
		return nil
	}

	knownTxs := make(map[types.Hash]struct{})
	frontier := []ledger.Transaction{spend.Spend.ParentTx}
	var depth, spendCount int

	for len(frontier) > 0 {
		var next []ledger.Transaction
		for _, parentTx := range frontier {
			txHash := parentTx.Hash()
			knownTxs[txHash] = struct{}{}
			if ledger.IsGenesisParentTx(&parentTx) {
				continue
			}
			for _, res := range c.fetchClassified(ctx, parentTx.InputAddresses(), 0) {
				switch res.status {
				case fetchOK, fetchDouble:
					for _, s := range res.spends {
						if !dag.Insert(res.addr, s) {
							continue
						}
						spendCount++
						h := s.Spend.ParentTx.Hash()
						if _, known := knownTxs[h]; !known {
							next = append(next, s.Spend.ParentTx)
						}
					}
				case fetchNotFound:
					return fmt.Errorf("depth %d: ancestor spend missing at %s for tx %s",
						depth, res.addr.Short(), txHash.Short())
				case fetchFailed:
					return fmt.Errorf("depth %d: fetch ancestor at %s: %w", depth, res.addr.Short(), res.err)
				}
			}
		}
		frontier = dedupTxs(next, knownTxs)
		depth++
	}

	if err := dag.RecordFaults(dag.Source()); err != nil {
		return err
	}
	c.logger.Info().
		Str("addr", addr.Short()).
		Int("depth", depth).
		Int("ancestors", spendCount).
		Dur("elapsed", time.Since(start)).
		Msg("dag extended through ancestry")
	return nil
}

// dedupTxs drops transactions already marked known and collapses
// duplicates within one generation.
func dedupTxs(txs []ledger.Transaction, known map[types.Hash]struct{}) []ledger.Transaction {
	var out []ledger.Transaction
	seen := make(map[types.Hash]struct{})
	for _, tx := range txs {
		h := tx.Hash()
		if _, ok := known[h]; ok {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, tx)
	}
	return out
}

// SpendDagContinueFromUtxos resumes a crawl from every UTXO currently
// recorded in dag, building a sub-DAG forward from each in parallel
// and merging the results back in. Addresses that are still unspent
// come back unchanged. Per-address build failures are logged and
// skipped; the first hard failure is returned after all sub-builds
// finish. Faults are re-recorded once after the merge.
func (c *Client) SpendDagContinueFromUtxos(ctx context.Context, dag *SpendDag, maxDepth int) error {
	return c.continueFrom(ctx, dag, dag.Utxos(), maxDepth)
}

// continueFrom crawls forward from each of the given addresses and
// merges the sub-DAGs into dag.
func (c *Client) continueFrom(ctx context.Context, dag *SpendDag, utxos []types.SpendAddress, maxDepth int) error {
	if len(utxos) == 0 {
		return nil
	}
	start := time.Now()

	var (
		mu      sync.Mutex
		subDags []*SpendDag
		errs    []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxFetches)
	for _, addr := range utxos {
		g.Go(func() error {
			sub, err := c.SpendDagBuildFrom(gctx, addr, maxDepth)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.logger.Warn().Str("addr", addr.Short()).Err(err).
					Msg("skipping utxo during dag continuation")
				errs = append(errs, err)
				return nil
			}
			subDags = append(subDags, sub)
			return nil
		})
	}
	_ = g.Wait()

	for _, sub := range subDags {
		dag.Merge(sub)
	}
	if err := dag.RecordFaults(dag.Source()); err != nil {
		return err
	}
	c.logger.Info().
		Int("utxos", len(utxos)).
		Int("failures", len(errs)).
		Int("entries", dag.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("dag continued from utxo frontier")
	if len(errs) > 0 {
		return fmt.Errorf("continue from %d of %d utxos failed: %w", len(errs), len(utxos), errors.Join(errs...))
	}
	return nil
}
