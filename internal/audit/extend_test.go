package audit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/notemesh/notemesh-audit/pkg/ledger"
)

func TestSpendDagExtendUntil_WalksAncestryToGenesis(t *testing.T) {
	net := newMockNet()
	owners, spends := buildChain(t, net, 5)
	c := testClient(net)

	dag := NewSpendDag(ledger.GenesisAddress())
	tip := spends[4] // signed by owner 3
	if err := c.SpendDagExtendUntil(context.Background(), dag, tip.Address(), tip); err != nil {
		t.Fatalf("extend: %v", err)
	}
	// tip plus its four ancestors, genesis included
	if dag.Len() != 5 {
		t.Fatalf("dag holds %d entries, want 5", dag.Len())
	}
	for i := 0; i < 4; i++ {
		if _, ok := dag.Entry(owners[i].addr()).(SpendEntry); !ok {
			t.Fatalf("ancestor %d not inserted", i)
		}
	}
	wantFaultCount(t, dag.Faults(), 0)
}

func TestSpendDagExtendUntil_StopsAtKnownTransactions(t *testing.T) {
	net := newMockNet()
	_, spends := buildChain(t, net, 5)
	c := testClient(net)

	dag := NewSpendDag(ledger.GenesisAddress())
	for _, ss := range spends[:3] {
		dag.Insert(ss.Address(), ss)
	}
	callsBefore := net.calls
	tip := spends[4]
	if err := c.SpendDagExtendUntil(context.Background(), dag, tip.Address(), tip); err != nil {
		t.Fatalf("extend: %v", err)
	}
	if dag.Len() != 5 {
		t.Fatalf("dag holds %d entries, want 5", dag.Len())
	}
	// the walk stops once it reaches spends already in the dag, well
	// short of re-fetching the whole chain
	if got := net.calls - callsBefore; got > 2 {
		t.Fatalf("extend made %d fetches, want at most 2", got)
	}
}

func TestSpendDagExtendUntil_KnownSpendIsNoop(t *testing.T) {
	net := newMockNet()
	_, spends := buildChain(t, net, 3)
	c := testClient(net)

	dag := NewSpendDag(ledger.GenesisAddress())
	tip := spends[2]
	if err := c.SpendDagExtendUntil(context.Background(), dag, tip.Address(), tip); err != nil {
		t.Fatalf("first extend: %v", err)
	}
	callsBefore := net.calls
	if err := c.SpendDagExtendUntil(context.Background(), dag, tip.Address(), tip); err != nil {
		t.Fatalf("second extend: %v", err)
	}
	if net.calls != callsBefore {
		t.Fatal("re-extending a known spend hit the network")
	}
}

func TestSpendDagExtendUntil_MissingAncestorIsFatal(t *testing.T) {
	net := newMockNet()
	owners, spends := buildChain(t, net, 5)
	net.remove(owners[1].addr())
	c := testClient(net)

	dag := NewSpendDag(ledger.GenesisAddress())
	tip := spends[4]
	err := c.SpendDagExtendUntil(context.Background(), dag, tip.Address(), tip)
	if err == nil || !strings.Contains(err.Error(), "ancestor spend missing") {
		t.Fatalf("got %v, want missing ancestor error", err)
	}
}

func TestSpendDagContinueFromUtxos_PicksUpNewSpends(t *testing.T) {
	net := newMockNet()
	owners, spends := buildChain(t, net, 3)
	c := testClient(net)

	dag, err := c.SpendDagBuildFrom(context.Background(), ledger.GenesisAddress(), 0)
	if err != nil {
		t.Fatalf("build dag: %v", err)
	}
	if utxos := dag.Utxos(); len(utxos) != 1 || utxos[0] != owners[2].addr() {
		t.Fatalf("utxos = %v, want [%s]", utxos, owners[2].addr().Short())
	}

	// the frontier owner spends after the initial crawl
	next := newOwner(t)
	amt := uint64(ledger.GenesisAmount)
	parentTx := spends[2].Spend.SpentTx
	newTx := ledger.Transaction{
		Inputs:  []ledger.Input{{UniquePubkey: owners[2].pub, Amount: amt}},
		Outputs: []ledger.Output{{UniquePubkey: next.pub, Amount: amt}},
	}
	net.add(signTransfer(t, owners[2], parentTx, newTx, amt))

	if err := c.SpendDagContinueFromUtxos(context.Background(), dag, 0); err != nil {
		t.Fatalf("continue: %v", err)
	}
	if _, ok := dag.Entry(owners[2].addr()).(SpendEntry); !ok {
		t.Fatalf("entry at old frontier is %T, want SpendEntry", dag.Entry(owners[2].addr()))
	}
	if utxos := dag.Utxos(); len(utxos) != 1 || utxos[0] != next.addr() {
		t.Fatalf("utxos = %v, want [%s]", utxos, next.addr().Short())
	}
	wantFaultCount(t, dag.Faults(), 0)
}

func TestSpendDagContinueFromUtxos_StillUnspentIsUnchanged(t *testing.T) {
	net := newMockNet()
	owners, _ := buildChain(t, net, 3)
	c := testClient(net)

	dag, err := c.SpendDagBuildFrom(context.Background(), ledger.GenesisAddress(), 0)
	if err != nil {
		t.Fatalf("build dag: %v", err)
	}
	before := dag.Len()
	if err := c.SpendDagContinueFromUtxos(context.Background(), dag, 0); err != nil {
		t.Fatalf("continue: %v", err)
	}
	if dag.Len() != before {
		t.Fatalf("continuation changed entry count: %d != %d", dag.Len(), before)
	}
	if utxos := dag.Utxos(); len(utxos) != 1 || utxos[0] != owners[2].addr() {
		t.Fatalf("utxos = %v, want unchanged frontier", utxos)
	}
}

func TestSpendDagContinueFromUtxos_ReportsFailuresAfterFinishing(t *testing.T) {
	net := newMockNet()
	amt := uint64(ledger.GenesisAmount)
	half := amt / 2
	a, b := newOwner(t), newOwner(t)

	splitTx := ledger.Transaction{
		Inputs: []ledger.Input{{UniquePubkey: ledger.GenesisUniquePubkey(), Amount: amt}},
		Outputs: []ledger.Output{
			{UniquePubkey: a.pub, Amount: half},
			{UniquePubkey: b.pub, Amount: amt - half},
		},
	}
	genesisSpend, err := ledger.NewGenesisSpend(splitTx)
	if err != nil {
		t.Fatalf("genesis spend: %v", err)
	}
	net.add(genesisSpend)

	c := testClient(net)
	dag, err := c.SpendDagBuildFrom(context.Background(), ledger.GenesisAddress(), 0)
	if err != nil {
		t.Fatalf("build dag: %v", err)
	}

	// one frontier address goes dark, the other spends
	boom := errors.New("peer timeout")
	net.failWith(a.addr(), boom)
	a2 := newOwner(t)
	bTx := ledger.Transaction{
		Inputs:  []ledger.Input{{UniquePubkey: b.pub, Amount: amt - half}},
		Outputs: []ledger.Output{{UniquePubkey: a2.pub, Amount: amt - half}},
	}
	net.add(signTransfer(t, b, splitTx, bTx, amt-half))

	err = c.SpendDagContinueFromUtxos(context.Background(), dag, 0)
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want wrapped peer failure", err)
	}
	// the healthy branch still advanced
	if _, ok := dag.Entry(b.addr()).(SpendEntry); !ok {
		t.Fatalf("entry at %s is %T, want SpendEntry", b.addr().Short(), dag.Entry(b.addr()))
	}
}
