package audit

import (
	"encoding/json"
	"fmt"

	"github.com/notemesh/notemesh-audit/pkg/ledger"
	"github.com/notemesh/notemesh-audit/pkg/types"
)

// entry kinds on the wire.
const (
	entryKindUtxo        = "utxo"
	entryKindUnexplored  = "unexplored"
	entryKindSpend       = "spend"
	entryKindDoubleSpend = "double_spend"
)

type dagEntryJSON struct {
	Addr   types.SpendAddress    `json:"addr"`
	Kind   string                `json:"kind"`
	Spends []*ledger.SignedSpend `json:"spends,omitempty"`
}

type dagJSON struct {
	Source  types.SpendAddress `json:"source"`
	Entries []dagEntryJSON     `json:"entries"`
}

// MarshalJSON serializes the DAG as its source plus entries. Edges are
// not stored, they are derived from the spends on load. Fault state is
// not stored either; callers re-record after loading.
func (d *SpendDag) MarshalJSON() ([]byte, error) {
	out := dagJSON{Source: d.source}
	for addr, e := range d.entries {
		je := dagEntryJSON{Addr: addr}
		switch e := e.(type) {
		case UtxoEntry:
			je.Kind = entryKindUtxo
		case UnexploredEntry:
			je.Kind = entryKindUnexplored
		case SpendEntry:
			je.Kind = entryKindSpend
			je.Spends = []*ledger.SignedSpend{e.Spend}
		case DoubleSpendEntry:
			je.Kind = entryKindDoubleSpend
			je.Spends = e.Spends
		}
		out.Entries = append(out.Entries, je)
	}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds the DAG, vertices and edges included, by
// replaying the stored entries.
func (d *SpendDag) UnmarshalJSON(data []byte) error {
	var in dagJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	rebuilt := NewSpendDag(in.Source)
	for _, je := range in.Entries {
		switch je.Kind {
		case entryKindUtxo:
			rebuilt.InsertUtxo(je.Addr)
		case entryKindUnexplored:
			rebuilt.MarkUnexplored(je.Addr)
		case entryKindSpend, entryKindDoubleSpend:
			if len(je.Spends) == 0 {
				return fmt.Errorf("entry at %s has kind %q but no spends", je.Addr.Short(), je.Kind)
			}
			for _, ss := range je.Spends {
				rebuilt.Insert(je.Addr, ss)
			}
		default:
			return fmt.Errorf("unknown dag entry kind %q", je.Kind)
		}
	}
	*d = *rebuilt
	return nil
}
