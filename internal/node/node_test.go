package node

import (
	"testing"
	"time"

	"github.com/notemesh/notemesh-audit/config"
	"github.com/notemesh/notemesh-audit/internal/api"
	"github.com/notemesh/notemesh-audit/internal/apiclient"
	"github.com/notemesh/notemesh-audit/internal/dagstore"
	"github.com/notemesh/notemesh-audit/internal/storage"
	"github.com/notemesh/notemesh-audit/pkg/crypto"
	"github.com/notemesh/notemesh-audit/pkg/ledger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultMainnet()
	cfg.DataDir = t.TempDir()
	cfg.P2P.Enabled = false
	cfg.API.Addr = "127.0.0.1"
	cfg.API.Port = 0
	cfg.Crawl.Interval = 50 * time.Millisecond
	cfg.Log.Level = "error"
	if err := config.EnsureDataDirs(cfg); err != nil {
		t.Fatalf("EnsureDataDirs: %v", err)
	}
	return cfg
}

// seedGenesisSpend records a genesis spend to a fresh recipient in the
// node's local spend store, so an offline node has ancestry to audit.
func seedGenesisSpend(t *testing.T, cfg *config.Config) ledger.UniquePubkey {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	owner, err := ledger.UniquePubkeyFromBytes(key.PublicKey())
	if err != nil {
		t.Fatalf("owner pubkey: %v", err)
	}

	tx := ledger.Transaction{
		Inputs:  []ledger.Input{{UniquePubkey: ledger.GenesisUniquePubkey(), Amount: ledger.GenesisAmount}},
		Outputs: []ledger.Output{{UniquePubkey: owner, Amount: ledger.GenesisAmount}},
	}
	spend, err := ledger.NewGenesisSpend(tx)
	if err != nil {
		t.Fatalf("genesis spend: %v", err)
	}

	db, err := storage.NewBadger(cfg.DagDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()
	if err := dagstore.New(db).PutSpend(spend); err != nil {
		t.Fatalf("put spend: %v", err)
	}
	return owner
}

func waitForEntries(t *testing.T, client *apiclient.Client, want int) *api.StatusResult {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, err := client.Status()
		if err == nil && status.Entries >= want {
			return status
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("node never reached %d dag entries", want)
	return nil
}

func TestNode_OfflineAudit(t *testing.T) {
	cfg := testConfig(t)
	owner := seedGenesisSpend(t, cfg)

	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Start(); err != nil {
		n.Stop()
		t.Fatalf("Start: %v", err)
	}
	defer n.Stop()

	client := apiclient.New("http://" + n.APIAddr())

	// Genesis spend plus the recipient UTXO.
	status := waitForEntries(t, client, 2)
	if status.Utxos != 1 {
		t.Errorf("utxos = %d, want 1", status.Utxos)
	}
	if status.Faults != 0 {
		t.Errorf("faults = %d, want 0", status.Faults)
	}

	utxos, err := client.Utxos()
	if err != nil {
		t.Fatalf("Utxos: %v", err)
	}
	if len(utxos.Utxos) != 1 || utxos.Utxos[0] != owner.Address().String() {
		t.Errorf("utxos = %v, want [%s]", utxos.Utxos, owner.Address())
	}
}

func TestNode_SnapshotRestore(t *testing.T) {
	cfg := testConfig(t)
	seedGenesisSpend(t, cfg)

	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Start(); err != nil {
		n.Stop()
		t.Fatalf("Start: %v", err)
	}
	waitForEntries(t, apiclient.New("http://"+n.APIAddr()), 2)
	n.Stop()

	// Restart resumes from the snapshot without crawling.
	n2, err := New(cfg)
	if err != nil {
		t.Fatalf("New after restart: %v", err)
	}
	defer n2.Stop()
	if !n2.hasEntries {
		t.Error("restarted node should restore the DAG snapshot")
	}
}

func TestNode_APIDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.API.Enabled = false

	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Stop()
	if n.APIAddr() != "" {
		t.Errorf("APIAddr = %q, want empty", n.APIAddr())
	}
}
