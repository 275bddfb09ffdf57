// Package node provides a fully-wired auditor node that can be
// embedded in any binary (daemon, CLI tooling, tests).
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"

	"github.com/notemesh/notemesh-audit/config"
	"github.com/notemesh/notemesh-audit/internal/api"
	"github.com/notemesh/notemesh-audit/internal/audit"
	"github.com/notemesh/notemesh-audit/internal/dagstore"
	nlog "github.com/notemesh/notemesh-audit/internal/log"
	"github.com/notemesh/notemesh-audit/internal/spendnet"
	"github.com/notemesh/notemesh-audit/internal/storage"
	"github.com/notemesh/notemesh-audit/pkg/ledger"
)

// snapshotInterval is how often the DAG is persisted while running.
const snapshotInterval = 5 * time.Minute

// Node is a fully-initialized auditor node.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	// Core
	db      storage.DB
	store   *dagstore.Store
	client  *audit.Client
	crawler *audit.Crawler

	// Networking
	net *spendnet.Node

	// API
	apiServer *api.Server

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// hasEntries tracks whether the DAG held anything at startup; an
	// empty DAG triggers the initial genesis crawl in Start.
	hasEntries bool
}

// New creates and initializes a Node. It performs all setup steps
// (logger, storage, DAG restore, P2P, API) but does NOT start the
// crawl loops. Call Start() for that.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = logsDir + "/notemesh-audit.log"
	}
	if err := nlog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := nlog.WithComponent("node")

	logger.Info().
		Str("network", string(cfg.Network)).
		Str("datadir", cfg.DataDir).
		Msg("Starting Notemesh auditor")

	// ── 2. Open storage ─────────────────────────────────────────────
	db, err := storage.NewBadger(cfg.DagDir())
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", cfg.DagDir(), err)
	}
	store := dagstore.New(db)
	logger.Info().Str("path", cfg.DagDir()).Msg("Database opened")

	// ── 3. Restore DAG snapshot ─────────────────────────────────────
	dag, err := store.LoadDag()
	switch {
	case err == nil:
		logger.Info().
			Int("entries", dag.Len()).
			Int("utxos", len(dag.Utxos())).
			Msg("DAG restored from snapshot")
	case errors.Is(err, storage.ErrKeyNotFound):
		dag = audit.NewSpendDag(ledger.GenesisAddress())
		logger.Info().Msg("No DAG snapshot found, starting from genesis")
	default:
		db.Close()
		return nil, fmt.Errorf("load dag snapshot: %w", err)
	}
	hasEntries := dag.Len() > 0

	// ── 4. P2P ──────────────────────────────────────────────────────
	var p2pNode *spendnet.Node
	if cfg.P2P.Enabled {
		p2pNode = spendnet.New(spendnet.Config{
			ListenAddr: cfg.P2P.ListenAddr,
			Port:       cfg.P2P.Port,
			Seeds:      cfg.P2P.Seeds,
			MaxPeers:   cfg.P2P.MaxPeers,
			NoDiscover: cfg.P2P.NoDiscover,
			DB:         db,
			DHTServer:  cfg.P2P.DHTServer,
			NetworkID:  "notemesh-" + string(cfg.Network),
			DataDir:    cfg.NetworkDataDir(),
		})
		if err := p2pNode.Start(); err != nil {
			db.Close()
			return nil, fmt.Errorf("start P2P: %w", err)
		}

		// Serve our recorded spends to peers.
		p2pNode.RegisterSpendHandler(store)

		logger.Info().
			Str("id", p2pNode.ID().String()).
			Int("port", cfg.P2P.Port).
			Bool("discovery", !cfg.P2P.NoDiscover).
			Msg("P2P node started")
	} else {
		logger.Warn().Msg("P2P disabled by config; auditing persisted records only")
	}

	// ── 5. Audit client and crawler ─────────────────────────────────
	var source audit.SpendNetwork
	if p2pNode != nil {
		source = spendnet.NewNetwork(p2pNode)
	} else {
		source = store
	}
	client := audit.NewClient(source, audit.ClientConfig{
		MaxConcurrentFetches: cfg.Crawl.MaxFetches,
	})
	crawler := audit.NewCrawler(client, dag, audit.CrawlerConfig{
		ReattemptInterval: cfg.Crawl.ReattemptInterval,
		MaxDepth:          cfg.Crawl.MaxDepth,
	})

	ctx, cancel := context.WithCancel(context.Background())

	n := &Node{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		store:      store,
		client:     client,
		crawler:    crawler,
		net:        p2pNode,
		ctx:        ctx,
		cancel:     cancel,
		hasEntries: hasEntries,
	}

	// Gossip handler: fold announced spends into the DAG.
	if p2pNode != nil {
		p2pNode.SetSpendHandler(n.handleSpendNotif)
	}

	// ── 6. API server ───────────────────────────────────────────────
	if cfg.API.Enabled {
		apiAddr := net.JoinHostPort(cfg.API.Addr, strconv.Itoa(cfg.API.Port))
		apiServer := api.New(apiAddr, crawler, p2pNode, api.Config{
			AllowedIPs:  cfg.API.AllowedIPs,
			CORSOrigins: cfg.API.CORSOrigins,
		})
		if err := apiServer.Start(); err != nil {
			n.Stop()
			return nil, fmt.Errorf("start API at %s: %w", apiAddr, err)
		}
		n.apiServer = apiServer
		logger.Info().Str("addr", apiServer.Addr()).Msg("API server started")
	} else {
		logger.Warn().Msg("API disabled by config")
	}

	return n, nil
}

// Start launches background loops: initial genesis crawl, the periodic
// crawl, and DAG snapshots.
func (n *Node) Start() error {
	if !n.hasEntries {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.runInitialCrawl()
		}()
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.crawler.Run(n.ctx, n.cfg.Crawl.Interval); err != nil && n.ctx.Err() == nil {
			n.logger.Error().Err(err).Msg("Crawl loop exited")
		}
	}()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.runSnapshotLoop()
	}()

	n.logger.Info().
		Dur("interval", n.cfg.Crawl.Interval).
		Int("max_depth", n.cfg.Crawl.MaxDepth).
		Msg("Auditor started")
	return nil
}

// Stop performs graceful shutdown in reverse order.
func (n *Node) Stop() {
	n.cancel()
	n.wg.Wait()

	if n.apiServer != nil {
		if err := n.apiServer.Stop(); err != nil {
			n.logger.Warn().Err(err).Msg("API shutdown failed")
		}
	}
	if n.net != nil {
		if err := n.net.Stop(); err != nil {
			n.logger.Warn().Err(err).Msg("P2P shutdown failed")
		}
	}
	n.snapshot(context.Background())
	if n.db != nil {
		n.db.Close()
	}

	n.logger.Info().Msg("Goodbye!")
}

// APIAddr returns the address the API server is listening on.
func (n *Node) APIAddr() string {
	if n.apiServer == nil {
		return ""
	}
	return n.apiServer.Addr()
}

// Crawler exposes the DAG crawler for embedding binaries.
func (n *Node) Crawler() *audit.Crawler {
	return n.crawler
}

// handleSpendNotif folds a gossiped spend into the DAG and persists it.
func (n *Node) handleSpendNotif(from peer.ID, notif *spendnet.SpendNotif) {
	if notif.Spend == nil {
		return
	}
	if err := notif.Spend.Verify(); err != nil {
		n.logger.Debug().Err(err).Str("from", from.String()).Msg("Dropping invalid gossiped spend")
		return
	}
	addr := notif.Spend.Address()
	if addr != notif.Addr {
		n.logger.Debug().Str("from", from.String()).Msg("Dropping spend notification with mismatched address")
		return
	}
	if err := n.store.PutSpend(notif.Spend); err != nil {
		n.logger.Warn().Err(err).Msg("Persist gossiped spend")
	}
	if err := n.crawler.AddSpend(n.ctx, addr, notif.Spend); err != nil {
		if n.ctx.Err() != nil {
			return
		}
		n.logger.Warn().Err(err).Str("addr", addr.Short()).Msg("Fold gossiped spend into DAG")
		return
	}
	n.logger.Info().Str("addr", addr.Short()).Str("from", from.String()).Msg("Gossiped spend recorded")
}

// runInitialCrawl builds the DAG from the genesis spend, retrying
// until the network yields it or the node shuts down.
func (n *Node) runInitialCrawl() {
	source := ledger.GenesisAddress()
	for {
		built, err := n.client.SpendDagBuildFrom(n.ctx, source, n.cfg.Crawl.MaxDepth)
		if err == nil {
			if verr := n.crawler.View(n.ctx, func(dag *audit.SpendDag) {
				dag.Merge(built)
				if ferr := dag.RecordFaults(dag.Source()); ferr != nil {
					n.logger.Error().Err(ferr).Msg("Record faults after initial crawl")
				}
			}); verr == nil {
				n.snapshot(n.ctx)
				n.logger.Info().Int("entries", built.Len()).Msg("Initial crawl complete")
			}
			return
		}
		if n.ctx.Err() != nil {
			return
		}
		n.logger.Warn().Err(err).Msg("Initial crawl failed, retrying")
		select {
		case <-n.ctx.Done():
			return
		case <-time.After(n.cfg.Crawl.Interval):
		}
	}
}

// runSnapshotLoop persists the DAG periodically so a restart resumes
// from recent state instead of re-crawling the whole history.
func (n *Node) runSnapshotLoop() {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.snapshot(n.ctx)
		}
	}
}

// snapshot saves the current DAG under the crawler's lock.
func (n *Node) snapshot(ctx context.Context) {
	err := n.crawler.View(ctx, func(dag *audit.SpendDag) {
		if serr := n.store.SaveDag(dag); serr != nil {
			n.logger.Error().Err(serr).Msg("Save DAG snapshot")
			return
		}
		n.logger.Debug().Int("entries", dag.Len()).Msg("DAG snapshot saved")
	})
	if err != nil && ctx.Err() == nil {
		n.logger.Warn().Err(err).Msg("Snapshot skipped")
	}
}
