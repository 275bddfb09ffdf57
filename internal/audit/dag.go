package audit

import (
	"bytes"
	"fmt"
	"io"
	"slices"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"

	"github.com/notemesh/notemesh-audit/pkg/ledger"
	"github.com/notemesh/notemesh-audit/pkg/types"
)

// DagEntry is the state attached to a DAG vertex. A vertex may also
// exist with no entry at all when it has only been referenced by a
// neighbour's transaction but not yet resolved itself.
type DagEntry interface {
	dagEntry()
}

// UtxoEntry marks an address confirmed unspent at crawl time.
type UtxoEntry struct{}

// UnexploredEntry marks an address the crawler discovered but did not
// fetch because a depth limit cut the crawl short.
type UnexploredEntry struct{}

// SpendEntry holds the single valid spend recorded at an address.
type SpendEntry struct {
	Spend *ledger.SignedSpend
}

// DoubleSpendEntry holds two or more conflicting spends recorded at
// one address.
type DoubleSpendEntry struct {
	Spends []*ledger.SignedSpend
}

func (UtxoEntry) dagEntry()        {}
func (UnexploredEntry) dagEntry()  {}
func (SpendEntry) dagEntry()       {}
func (DoubleSpendEntry) dagEntry() {}

// SpendDag is a directed acyclic graph of spend addresses. Edges run
// from each spend to the addresses of its transaction outputs
// (descendants) and from the addresses of its transaction inputs
// (ancestors) to the spend. It is not safe for concurrent use; callers
// that share a DAG across goroutines must serialize access.
type SpendDag struct {
	source  types.SpendAddress
	graph   graph.Graph[types.SpendAddress, types.SpendAddress]
	entries map[types.SpendAddress]DagEntry
	faults  map[types.SpendAddress]map[SpendFault]struct{}
}

// NewSpendDag creates an empty DAG rooted at source.
func NewSpendDag(source types.SpendAddress) *SpendDag {
	g := graph.New(func(a types.SpendAddress) types.SpendAddress { return a }, graph.Directed())
	_ = g.AddVertex(source)
	return &SpendDag{
		source:  source,
		graph:   g,
		entries: make(map[types.SpendAddress]DagEntry),
		faults:  make(map[types.SpendAddress]map[SpendFault]struct{}),
	}
}

// Source returns the address the DAG is rooted at.
func (d *SpendDag) Source() types.SpendAddress {
	return d.source
}

// Entry returns the entry at addr, or nil if the address carries none.
func (d *SpendDag) Entry(addr types.SpendAddress) DagEntry {
	return d.entries[addr]
}

// Len reports the number of addresses carrying an entry.
func (d *SpendDag) Len() int {
	return len(d.entries)
}

// Insert records a signed spend at addr. Inserting the same spend
// twice is a no-op; inserting a conflicting spend upgrades the entry
// to a DoubleSpendEntry accumulating all distinct spends seen. It
// reports whether the spend was new to the DAG.
func (d *SpendDag) Insert(addr types.SpendAddress, spend *ledger.SignedSpend) bool {
	switch e := d.entries[addr].(type) {
	case nil, UtxoEntry, UnexploredEntry:
		d.entries[addr] = SpendEntry{Spend: spend}
	case SpendEntry:
		if e.Spend.Equal(spend) {
			return false
		}
		d.entries[addr] = DoubleSpendEntry{Spends: []*ledger.SignedSpend{e.Spend, spend}}
	case DoubleSpendEntry:
		for _, s := range e.Spends {
			if s.Equal(spend) {
				return false
			}
		}
		e.Spends = append(e.Spends, spend)
		d.entries[addr] = e
	}
	d.link(addr, spend)
	return true
}

// InsertUtxo marks addr as a confirmed UTXO unless a spend is already
// recorded there. It reports whether the entry changed.
func (d *SpendDag) InsertUtxo(addr types.SpendAddress) bool {
	switch d.entries[addr].(type) {
	case nil, UnexploredEntry:
		d.entries[addr] = UtxoEntry{}
		_ = d.graph.AddVertex(addr)
		return true
	}
	return false
}

// MarkUnexplored flags addr as discovered but not fetched. Existing
// entries are never downgraded.
func (d *SpendDag) MarkUnexplored(addr types.SpendAddress) {
	if d.entries[addr] == nil {
		d.entries[addr] = UnexploredEntry{}
		_ = d.graph.AddVertex(addr)
	}
}

// link wires addr to its ancestors and descendants as declared by the
// spend's transactions. The genesis spend references itself as its own
// ancestor; self edges are skipped.
func (d *SpendDag) link(addr types.SpendAddress, spend *ledger.SignedSpend) {
	_ = d.graph.AddVertex(addr)
	for _, in := range spend.Spend.ParentTx.Inputs {
		anc := in.UniquePubkey.Address()
		if anc == addr {
			continue
		}
		_ = d.graph.AddVertex(anc)
		_ = d.graph.AddEdge(anc, addr)
	}
	for _, out := range spend.Spend.SpentTx.Outputs {
		desc := out.UniquePubkey.Address()
		if desc == addr {
			continue
		}
		_ = d.graph.AddVertex(desc)
		_ = d.graph.AddEdge(addr, desc)
	}
}

// Utxos returns the addresses currently marked unspent, sorted.
func (d *SpendDag) Utxos() []types.SpendAddress {
	var out []types.SpendAddress
	for addr, e := range d.entries {
		if _, ok := e.(UtxoEntry); ok {
			out = append(out, addr)
		}
	}
	slices.SortFunc(out, func(a, b types.SpendAddress) int {
		return bytes.Compare(a.Bytes(), b.Bytes())
	})
	return out
}

// Unexplored returns the addresses cut off by a depth limit, sorted.
func (d *SpendDag) Unexplored() []types.SpendAddress {
	var out []types.SpendAddress
	for addr, e := range d.entries {
		if _, ok := e.(UnexploredEntry); ok {
			out = append(out, addr)
		}
	}
	slices.SortFunc(out, func(a, b types.SpendAddress) int {
		return bytes.Compare(a.Bytes(), b.Bytes())
	})
	return out
}

// Spends returns every signed spend held in the DAG, conflicting ones
// included, ordered by address.
func (d *SpendDag) Spends() []*ledger.SignedSpend {
	addrs := make([]types.SpendAddress, 0, len(d.entries))
	for addr := range d.entries {
		addrs = append(addrs, addr)
	}
	slices.SortFunc(addrs, func(a, b types.SpendAddress) int {
		return bytes.Compare(a.Bytes(), b.Bytes())
	})
	var out []*ledger.SignedSpend
	for _, addr := range addrs {
		switch e := d.entries[addr].(type) {
		case SpendEntry:
			out = append(out, e.Spend)
		case DoubleSpendEntry:
			out = append(out, e.Spends...)
		}
	}
	return out
}

// SpendAt returns the spends recorded at addr: one for a regular
// spend, several for a double spend, none for UTXO or unexplored
// entries.
func (d *SpendDag) SpendAt(addr types.SpendAddress) []*ledger.SignedSpend {
	switch e := d.entries[addr].(type) {
	case SpendEntry:
		return []*ledger.SignedSpend{e.Spend}
	case DoubleSpendEntry:
		return e.Spends
	}
	return nil
}

// Merge folds every entry of other into d. Conflicting spends combine
// into double spend entries; UTXO and unexplored marks never overwrite
// recorded spends. Fault state is not merged, callers re-run
// RecordFaults afterwards.
func (d *SpendDag) Merge(other *SpendDag) {
	for addr, e := range other.entries {
		switch e := e.(type) {
		case SpendEntry:
			d.Insert(addr, e.Spend)
		case DoubleSpendEntry:
			for _, s := range e.Spends {
				d.Insert(addr, s)
			}
		case UtxoEntry:
			d.InsertUtxo(addr)
		case UnexploredEntry:
			d.MarkUnexplored(addr)
		}
	}
}

// adjacency is the outgoing-edge map of the underlying graph.
type adjacency = map[types.SpendAddress]map[types.SpendAddress]graph.Edge[types.SpendAddress]

// descendants returns every vertex reachable from start by following
// outgoing edges, start included.
func descendants(adj adjacency, start types.SpendAddress) map[types.SpendAddress]struct{} {
	seen := map[types.SpendAddress]struct{}{start: {}}
	frontier := []types.SpendAddress{start}
	for len(frontier) > 0 {
		var next []types.SpendAddress
		for _, v := range frontier {
			for succ := range adj[v] {
				if _, ok := seen[succ]; ok {
					continue
				}
				seen[succ] = struct{}{}
				next = append(next, succ)
			}
		}
		frontier = next
	}
	return seen
}

// WriteDot renders the DAG in Graphviz DOT format.
func (d *SpendDag) WriteDot(w io.Writer) error {
	if err := draw.DOT(d.graph, w); err != nil {
		return fmt.Errorf("render dag: %w", err)
	}
	return nil
}
