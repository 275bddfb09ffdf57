package audit

import (
	"fmt"

	"github.com/notemesh/notemesh-audit/pkg/ledger"
	"github.com/notemesh/notemesh-audit/pkg/types"
)

// FaultKind identifies a class of ledger-integrity fault.
type FaultKind uint8

const (
	// FaultDoubleSpend marks an address holding conflicting spends.
	FaultDoubleSpend FaultKind = iota + 1
	// FaultDoubleSpentAncestor marks a spend descending from a double
	// spent address.
	FaultDoubleSpentAncestor
	// FaultMissingAncestry marks a spend whose declared ancestor has no
	// entry in the DAG.
	FaultMissingAncestry
	// FaultPoisonedAncestry marks a transitive descendant of a spend
	// with missing ancestry.
	FaultPoisonedAncestry
	// FaultOrphanSpend marks an entry not reachable from the DAG source.
	FaultOrphanSpend
)

func (k FaultKind) String() string {
	switch k {
	case FaultDoubleSpend:
		return "DoubleSpend"
	case FaultDoubleSpentAncestor:
		return "DoubleSpentAncestor"
	case FaultMissingAncestry:
		return "MissingAncestry"
	case FaultPoisonedAncestry:
		return "PoisonedAncestry"
	case FaultOrphanSpend:
		return "OrphanSpend"
	default:
		return fmt.Sprintf("FaultKind(%d)", uint8(k))
	}
}

// SpendFault describes one fault attached to one address. The struct
// is comparable so fault sets are plain maps.
type SpendFault struct {
	Kind FaultKind
	// Addr is the address the fault is attached to.
	Addr types.SpendAddress
	// Ancestor names the offending ancestor for DoubleSpentAncestor
	// and MissingAncestry faults.
	Ancestor types.SpendAddress
	// Source is the DAG source an OrphanSpend is unreachable from.
	Source types.SpendAddress
	// Reason carries the poison message for PoisonedAncestry faults,
	// naming the originally missing ancestor.
	Reason string
}

func doubleSpendFault(addr types.SpendAddress) SpendFault {
	return SpendFault{Kind: FaultDoubleSpend, Addr: addr}
}

func doubleSpentAncestorFault(addr, ancestor types.SpendAddress) SpendFault {
	return SpendFault{Kind: FaultDoubleSpentAncestor, Addr: addr, Ancestor: ancestor}
}

func missingAncestryFault(addr, missing types.SpendAddress) SpendFault {
	return SpendFault{Kind: FaultMissingAncestry, Addr: addr, Ancestor: missing}
}

func poisonedAncestryFault(addr, missing types.SpendAddress) SpendFault {
	return SpendFault{
		Kind:   FaultPoisonedAncestry,
		Addr:   addr,
		Reason: fmt.Sprintf("missing ancestor at: %s", missing),
	}
}

func orphanSpendFault(addr, source types.SpendAddress) SpendFault {
	return SpendFault{Kind: FaultOrphanSpend, Addr: addr, Source: source}
}

func (f SpendFault) String() string {
	switch f.Kind {
	case FaultDoubleSpend:
		return fmt.Sprintf("DoubleSpend at %s", f.Addr.Short())
	case FaultDoubleSpentAncestor:
		return fmt.Sprintf("DoubleSpentAncestor at %s (ancestor %s)", f.Addr.Short(), f.Ancestor.Short())
	case FaultMissingAncestry:
		return fmt.Sprintf("MissingAncestry at %s (missing %s)", f.Addr.Short(), f.Ancestor.Short())
	case FaultPoisonedAncestry:
		return fmt.Sprintf("PoisonedAncestry at %s (%s)", f.Addr.Short(), f.Reason)
	case FaultOrphanSpend:
		return fmt.Sprintf("OrphanSpend at %s (unreachable from %s)", f.Addr.Short(), f.Source.Short())
	default:
		return fmt.Sprintf("unknown fault at %s", f.Addr.Short())
	}
}

func (d *SpendDag) addFault(f SpendFault) {
	set, ok := d.faults[f.Addr]
	if !ok {
		set = make(map[SpendFault]struct{})
		d.faults[f.Addr] = set
	}
	set[f] = struct{}{}
}

// RecordFaults recomputes the fault set of the whole DAG from scratch
// against the given source. The result depends only on DAG content,
// never on the order entries were inserted.
func (d *SpendDag) RecordFaults(source types.SpendAddress) error {
	adj, err := d.graph.AdjacencyMap()
	if err != nil {
		return fmt.Errorf("dag adjacency: %w", err)
	}
	d.faults = make(map[types.SpendAddress]map[SpendFault]struct{})

	reachable := descendants(adj, source)
	for addr, entry := range d.entries {
		if _, ok := reachable[addr]; !ok {
			d.addFault(orphanSpendFault(addr, source))
		}
		switch e := entry.(type) {
		case SpendEntry:
			d.checkAncestry(adj, addr, e.Spend)
		case DoubleSpendEntry:
			d.addFault(doubleSpendFault(addr))
			d.poisonDescendants(adj, addr, func(desc types.SpendAddress) SpendFault {
				return doubleSpentAncestorFault(desc, addr)
			})
			for _, s := range e.Spends {
				d.checkAncestry(adj, addr, s)
			}
		}
	}
	return nil
}

// checkAncestry flags addr when a declared ancestor of its spend holds
// no entry, and poisons everything downstream of addr with the missing
// address. The genesis spend is its own ancestor and is exempt.
func (d *SpendDag) checkAncestry(adj adjacency, addr types.SpendAddress, spend *ledger.SignedSpend) {
	if ledger.IsGenesisParentTx(&spend.Spend.ParentTx) {
		return
	}
	for _, in := range spend.Spend.ParentTx.Inputs {
		anc := in.UniquePubkey.Address()
		if _, ok := d.entries[anc]; ok {
			continue
		}
		d.addFault(missingAncestryFault(addr, anc))
		d.poisonDescendants(adj, addr, func(desc types.SpendAddress) SpendFault {
			return poisonedAncestryFault(desc, anc)
		})
	}
}

// poisonDescendants attaches a fault to every entry-bearing transitive
// descendant of addr, addr itself excluded.
func (d *SpendDag) poisonDescendants(adj adjacency, addr types.SpendAddress, fault func(types.SpendAddress) SpendFault) {
	for desc := range descendants(adj, addr) {
		if desc == addr {
			continue
		}
		if _, ok := d.entries[desc]; ok {
			d.addFault(fault(desc))
		}
	}
}

// SpendFaults returns the faults recorded at addr by the last
// RecordFaults pass. The returned set is a copy.
func (d *SpendDag) SpendFaults(addr types.SpendAddress) map[SpendFault]struct{} {
	out := make(map[SpendFault]struct{}, len(d.faults[addr]))
	for f := range d.faults[addr] {
		out[f] = struct{}{}
	}
	return out
}

// Faults returns the union of all recorded faults.
func (d *SpendDag) Faults() map[SpendFault]struct{} {
	out := make(map[SpendFault]struct{})
	for _, set := range d.faults {
		for f := range set {
			out[f] = struct{}{}
		}
	}
	return out
}

// Verify runs RecordFaults against source and returns all faults
// found. An empty result means the DAG is sound: every entry is
// reachable from source, no address is double spent and no ancestry
// is missing.
func (d *SpendDag) Verify(source types.SpendAddress) (map[SpendFault]struct{}, error) {
	if err := d.RecordFaults(source); err != nil {
		return nil, err
	}
	return d.Faults(), nil
}
