package spendnet

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/notemesh/notemesh-audit/internal/audit"
	"github.com/notemesh/notemesh-audit/internal/log"
	"github.com/notemesh/notemesh-audit/pkg/ledger"
	"github.com/notemesh/notemesh-audit/pkg/types"
)

// maxPeersPerLookup caps how many peers one lookup consults. Answers
// from several peers are aggregated so a single withholding peer
// cannot hide a conflict.
const maxPeersPerLookup = 5

// Network adapts a Node to the audit fetch contract: it asks several
// peers about an address and merges their answers into the single
// spend / not found / conflicting classification.
type Network struct {
	node *Node
}

// NewNetwork wraps node for audit crawls.
func NewNetwork(node *Node) *Network {
	return &Network{node: node}
}

// GetSpend queries up to maxPeersPerLookup connected peers. Distinct
// valid spends accumulate across answers; two or more mean the address
// is double spent no matter what any single peer claims.
func (nw *Network) GetSpend(ctx context.Context, addr types.SpendAddress) (*ledger.SignedSpend, error) {
	peers := nw.node.Peers()
	if len(peers) == 0 {
		return nil, fmt.Errorf("no connected peers to query for %s", addr.Short())
	}
	if len(peers) > maxPeersPerLookup {
		peers = peers[:maxPeersPerLookup]
	}

	var (
		spends   []*ledger.SignedSpend
		answered int
		lastErr  error
	)
	for _, p := range peers {
		resp, err := nw.node.RequestSpend(ctx, p, addr)
		if err != nil {
			lastErr = err
			log.Network.Debug().Str("peer", shortPeer(p)).Str("addr", addr.Short()).Err(err).
				Msg("peer spend lookup failed")
			continue
		}
		answered++
		spends = mergeSpends(spends, resp.Spends, addr, p)
	}
	if answered == 0 {
		return nil, fmt.Errorf("all %d peers failed for %s: %w", len(peers), addr.Short(), lastErr)
	}

	switch len(spends) {
	case 0:
		return nil, audit.ErrSpendNotFound
	case 1:
		return spends[0], nil
	default:
		return nil, &audit.DoubleSpendError{Addr: addr, Spends: spends}
	}
}

// mergeSpends folds a peer's claimed spends into the accumulated set,
// dropping anything misaddressed, invalidly signed, or already known.
func mergeSpends(have []*ledger.SignedSpend, claimed []*ledger.SignedSpend, addr types.SpendAddress, from peer.ID) []*ledger.SignedSpend {
next:
	for _, ss := range claimed {
		if ss == nil || ss.Address() != addr {
			log.Network.Debug().Str("peer", shortPeer(from)).Msg("dropping misaddressed spend from peer")
			continue
		}
		if err := ss.Verify(); err != nil {
			log.Network.Debug().Str("peer", shortPeer(from)).Err(err).Msg("dropping invalid spend from peer")
			continue
		}
		for _, known := range have {
			if known.Equal(ss) {
				continue next
			}
		}
		have = append(have, ss)
	}
	return have
}

var _ audit.SpendNetwork = (*Network)(nil)
