package audit

import (
	"context"
	"sync"
	"testing"

	"github.com/notemesh/notemesh-audit/pkg/crypto"
	"github.com/notemesh/notemesh-audit/pkg/ledger"
	"github.com/notemesh/notemesh-audit/pkg/types"
)

// mockNet is an in-memory SpendNetwork. Addresses may hold zero, one
// or several spends, and individual addresses can be forced to fail.
type mockNet struct {
	mu     sync.Mutex
	spends map[types.SpendAddress][]*ledger.SignedSpend
	errs   map[types.SpendAddress]error
	calls  int
}

func newMockNet() *mockNet {
	return &mockNet{
		spends: make(map[types.SpendAddress][]*ledger.SignedSpend),
		errs:   make(map[types.SpendAddress]error),
	}
}

func (m *mockNet) GetSpend(_ context.Context, addr types.SpendAddress) (*ledger.SignedSpend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := m.errs[addr]; err != nil {
		return nil, err
	}
	ss := m.spends[addr]
	switch len(ss) {
	case 0:
		return nil, ErrSpendNotFound
	case 1:
		return ss[0], nil
	default:
		return nil, &DoubleSpendError{Addr: addr, Spends: ss}
	}
}

func (m *mockNet) add(ss *ledger.SignedSpend) {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr := ss.Address()
	for _, have := range m.spends[addr] {
		if have.Equal(ss) {
			return
		}
	}
	m.spends[addr] = append(m.spends[addr], ss)
}

func (m *mockNet) remove(addr types.SpendAddress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.spends, addr)
}

func (m *mockNet) failWith(addr types.SpendAddress, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[addr] = err
}

type owner struct {
	key *crypto.PrivateKey
	pub ledger.UniquePubkey
}

func newOwner(t *testing.T) owner {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pub, err := ledger.UniquePubkeyFromBytes(key.PublicKey())
	if err != nil {
		t.Fatalf("unique pubkey: %v", err)
	}
	return owner{key: key, pub: pub}
}

func (o owner) addr() types.SpendAddress {
	return o.pub.Address()
}

// signTransfer signs from's spend of amount, created by parentTx and
// consumed by spentTx.
func signTransfer(t *testing.T, from owner, parentTx, spentTx ledger.Transaction, amount uint64) *ledger.SignedSpend {
	t.Helper()
	ss, err := ledger.SignSpend(ledger.Spend{
		UniquePubkey: from.pub,
		ParentTx:     parentTx,
		SpentTx:      spentTx,
		Amount:       amount,
	}, from.key)
	if err != nil {
		t.Fatalf("sign spend: %v", err)
	}
	return ss
}

// buildChain wires the genesis issuance through n owners, each handing
// the full amount to the next. The last owner keeps an unspent output.
// Returned spends are ordered genesis first, so spends[i+1] is the
// spend signed by owners[i].
func buildChain(t *testing.T, net *mockNet, n int) ([]owner, []*ledger.SignedSpend) {
	t.Helper()
	if n < 1 {
		t.Fatalf("chain needs at least one owner")
	}
	owners := make([]owner, n)
	for i := range owners {
		owners[i] = newOwner(t)
	}
	amt := uint64(ledger.GenesisAmount)

	tx := ledger.Transaction{
		Inputs:  []ledger.Input{{UniquePubkey: ledger.GenesisUniquePubkey(), Amount: amt}},
		Outputs: []ledger.Output{{UniquePubkey: owners[0].pub, Amount: amt}},
	}
	genesisSpend, err := ledger.NewGenesisSpend(tx)
	if err != nil {
		t.Fatalf("genesis spend: %v", err)
	}
	spends := []*ledger.SignedSpend{genesisSpend}
	net.add(genesisSpend)

	parent := tx
	for i := 0; i+1 < n; i++ {
		next := ledger.Transaction{
			Inputs:  []ledger.Input{{UniquePubkey: owners[i].pub, Amount: amt}},
			Outputs: []ledger.Output{{UniquePubkey: owners[i+1].pub, Amount: amt}},
		}
		ss := signTransfer(t, owners[i], parent, next, amt)
		net.add(ss)
		spends = append(spends, ss)
		parent = next
	}
	return owners, spends
}

// forkAt double spends owners[k]: a second spend of the same key sends
// the amount to a fresh owner instead. Returns the new recipient and
// the conflicting spend, already added to net.
func forkAt(t *testing.T, net *mockNet, owners []owner, spends []*ledger.SignedSpend, k int) (owner, *ledger.SignedSpend) {
	t.Helper()
	attacker := newOwner(t)
	amt := uint64(ledger.GenesisAmount)
	parentTx := spends[k+1].Spend.ParentTx
	evilTx := ledger.Transaction{
		Inputs:  []ledger.Input{{UniquePubkey: owners[k].pub, Amount: amt}},
		Outputs: []ledger.Output{{UniquePubkey: attacker.pub, Amount: amt}},
	}
	ss := signTransfer(t, owners[k], parentTx, evilTx, amt)
	net.add(ss)
	return attacker, ss
}

func testClient(net SpendNetwork) *Client {
	return NewClient(net, ClientConfig{})
}

func hasFault(t *testing.T, set map[SpendFault]struct{}, want SpendFault) {
	t.Helper()
	if _, ok := set[want]; !ok {
		t.Fatalf("fault set %v missing %v", set, want)
	}
}

func wantFaultCount(t *testing.T, set map[SpendFault]struct{}, n int) {
	t.Helper()
	if len(set) != n {
		t.Fatalf("got %d faults %v, want %d", len(set), set, n)
	}
}
