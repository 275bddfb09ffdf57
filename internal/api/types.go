package api

import (
	"sort"

	"github.com/notemesh/notemesh-audit/internal/audit"
	"github.com/notemesh/notemesh-audit/pkg/ledger"
)

// errorResult is the JSON body of every non-2xx response.
type errorResult struct {
	Error string `json:"error"`
}

// StatusResult is returned by GET /status.
type StatusResult struct {
	NodeID  string   `json:"node_id,omitempty"`
	Addrs   []string `json:"addrs,omitempty"`
	Peers   int      `json:"peers"`
	Source  string   `json:"source"`
	Entries int      `json:"entries"`
	Utxos   int      `json:"utxos"`
	Faults  int      `json:"faults"`
}

// UtxosResult is returned by GET /utxos.
type UtxosResult struct {
	Count int      `json:"count"`
	Utxos []string `json:"utxos"`
}

// FaultEntry is the wire form of a single recorded fault.
type FaultEntry struct {
	Kind     string `json:"kind"`
	Addr     string `json:"addr"`
	Ancestor string `json:"ancestor,omitempty"`
	Source   string `json:"source,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// FaultsResult is returned by GET /faults and GET /faults/{addr}.
type FaultsResult struct {
	Count  int          `json:"count"`
	Faults []FaultEntry `json:"faults"`
}

// Spend statuses reported by GET /spend/{addr}.
const (
	SpendStatusSpend       = "spend"
	SpendStatusDoubleSpend = "double_spend"
	SpendStatusUtxo        = "utxo"
	SpendStatusUnexplored  = "unexplored"
	SpendStatusUnknown     = "unknown"
)

// SpendResult is returned by GET /spend/{addr}.
type SpendResult struct {
	Addr   string                `json:"addr"`
	Status string                `json:"status"`
	Spends []*ledger.SignedSpend `json:"spends,omitempty"`
	Faults []FaultEntry          `json:"faults,omitempty"`
}

// SubmitSpendResult is returned by POST /spend.
type SubmitSpendResult struct {
	Addr      string `json:"addr"`
	Announced bool   `json:"announced"`
}

func newFaultEntry(f audit.SpendFault) FaultEntry {
	e := FaultEntry{
		Kind:   f.Kind.String(),
		Addr:   f.Addr.String(),
		Reason: f.Reason,
	}
	if !f.Ancestor.IsZero() {
		e.Ancestor = f.Ancestor.String()
	}
	if f.Kind == audit.FaultOrphanSpend {
		e.Source = f.Source.String()
	}
	return e
}

// faultEntries converts a fault set to stable wire form, sorted by
// address then kind.
func faultEntries(set map[audit.SpendFault]struct{}) []FaultEntry {
	out := make([]FaultEntry, 0, len(set))
	for f := range set {
		out = append(out, newFaultEntry(f))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Addr != out[j].Addr {
			return out[i].Addr < out[j].Addr
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}
