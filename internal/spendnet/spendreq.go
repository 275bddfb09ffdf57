package spendnet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/notemesh/notemesh-audit/internal/audit"
	"github.com/notemesh/notemesh-audit/internal/log"
	"github.com/notemesh/notemesh-audit/pkg/ledger"
	"github.com/notemesh/notemesh-audit/pkg/types"
)

const (
	// spendReadTimeout is the max time to read a spend response.
	spendReadTimeout = 10 * time.Second

	// maxSpendRequestSize bounds an incoming request (one address).
	maxSpendRequestSize = 256

	// maxSpendResponseSize bounds a response. Conflicting spends can
	// stack up, so this is generous.
	maxSpendResponseSize = 4 << 20
)

// SpendSource resolves local spend lookups for serving peers. It is
// the same contract the audit client consumes, so a dagstore.Store
// plugs in directly.
type SpendSource interface {
	GetSpend(ctx context.Context, addr types.SpendAddress) (*ledger.SignedSpend, error)
}

// RegisterSpendHandler serves spend lookups to peers from src.
func (n *Node) RegisterSpendHandler(src SpendSource) {
	n.host.SetStreamHandler(SpendProtocol, func(stream network.Stream) {
		defer stream.Close()

		var req SpendRequest
		if err := json.NewDecoder(io.LimitReader(stream, maxSpendRequestSize)).Decode(&req); err != nil {
			return
		}

		resp := lookupResponse(n.ctx, src, req.Addr)
		if err := json.NewEncoder(stream).Encode(&resp); err != nil {
			log.Network.Debug().Str("addr", req.Addr.Short()).Err(err).Msg("spend response write failed")
		}
	})
}

// lookupResponse maps a local lookup onto the wire statuses. Local
// failures are reported as not found; peers treat the answers of other
// peers as authoritative only in aggregate.
func lookupResponse(ctx context.Context, src SpendSource, addr types.SpendAddress) SpendResponse {
	spend, err := src.GetSpend(ctx, addr)
	switch {
	case err == nil:
		return SpendResponse{Status: StatusSpend, Spends: []*ledger.SignedSpend{spend}}
	case errors.Is(err, audit.ErrSpendNotFound):
		return SpendResponse{Status: StatusNotFound}
	default:
		var dbl *audit.DoubleSpendError
		if errors.As(err, &dbl) {
			return SpendResponse{Status: StatusDoubleSpend, Spends: dbl.Spends}
		}
		log.Network.Warn().Str("addr", addr.Short()).Err(err).Msg("local spend lookup failed")
		return SpendResponse{Status: StatusNotFound}
	}
}

// RequestSpend queries one peer for the spends at an address.
func (n *Node) RequestSpend(ctx context.Context, peerID peer.ID, addr types.SpendAddress) (*SpendResponse, error) {
	stream, err := n.host.NewStream(ctx, peerID, SpendProtocol)
	if err != nil {
		return nil, fmt.Errorf("open spend stream: %w", err)
	}
	defer stream.Close()

	if err := json.NewEncoder(stream).Encode(SpendRequest{Addr: addr}); err != nil {
		return nil, fmt.Errorf("write spend request: %w", err)
	}
	// Signal we're done writing so the peer can respond.
	stream.CloseWrite()

	_ = stream.SetReadDeadline(time.Now().Add(spendReadTimeout))

	var resp SpendResponse
	if err := json.NewDecoder(io.LimitReader(stream, maxSpendResponseSize)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("read spend response: %w", err)
	}
	return &resp, nil
}
