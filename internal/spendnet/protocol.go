package spendnet

import (
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/notemesh/notemesh-audit/pkg/ledger"
	"github.com/notemesh/notemesh-audit/pkg/types"
)

// GossipSub topic names.
const (
	// TopicSpendNotif carries freshly recorded spends so auditors can
	// extend their DAGs without re-crawling.
	TopicSpendNotif = "/notemesh/spend-notif/1.0.0"
)

// Stream protocol constants.
const (
	// SpendProtocol is the protocol ID for fetching the spends recorded
	// at an address.
	SpendProtocol = protocol.ID("/notemesh/spend/1.0.0")
)

// Spend response statuses.
const (
	StatusSpend       = "spend"
	StatusNotFound    = "not_found"
	StatusDoubleSpend = "double_spend"
)

// SpendRequest asks a peer for the spends recorded at an address.
type SpendRequest struct {
	Addr types.SpendAddress `json:"addr"`
}

// SpendResponse carries a peer's view of an address: the single spend,
// a not-found marker, or every conflicting spend it knows of.
type SpendResponse struct {
	Status string                `json:"status"`
	Spends []*ledger.SignedSpend `json:"spends,omitempty"`
}

// SpendNotif is the gossip payload announcing a newly recorded spend.
type SpendNotif struct {
	Addr  types.SpendAddress  `json:"addr"`
	Spend *ledger.SignedSpend `json:"spend"`
}
