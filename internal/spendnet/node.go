// Package spendnet implements the auditor's peer-to-peer access to the
// spend network using libp2p: a request/response protocol for fetching
// spends, gossip announcements of new spends, and DHT/mDNS discovery.
package spendnet

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	dutil "github.com/libp2p/go-libp2p/p2p/discovery/util"

	"github.com/notemesh/notemesh-audit/internal/log"
	"github.com/notemesh/notemesh-audit/internal/storage"
	"github.com/notemesh/notemesh-audit/pkg/ledger"
)

const (
	// dhtRendezvousFallback is the default DHT namespace when no NetworkID is set.
	dhtRendezvousFallback = "notemesh-audit"

	// dhtDiscoveryInterval is how often DHT FindPeers runs.
	dhtDiscoveryInterval = 30 * time.Second

	// peerConnectTimeout is the timeout for connecting to a discovered peer.
	peerConnectTimeout = 5 * time.Second

	// maxGossipMessageSize bounds spend announcements. A spend carries
	// two transactions, which stay small.
	maxGossipMessageSize = 1 << 20
)

// Config holds network node configuration.
type Config struct {
	ListenAddr string
	Port       int
	Seeds      []string
	MaxPeers   int
	NoDiscover bool
	DB         storage.DB // Peer persistence (nil = disabled, for tests)
	DHTServer  bool       // Run DHT in server mode (for seeds)
	NetworkID  string     // e.g. "notemesh-main-1", isolates discovery per network
	DataDir    string     // Data directory for persisting node identity
}

// Node is the auditor's libp2p node.
type Node struct {
	host   host.Host
	pubsub *pubsub.PubSub
	config Config
	ctx    context.Context
	cancel context.CancelFunc

	topicSpend *pubsub.Topic
	subSpend   *pubsub.Subscription

	spendHandler func(peer.ID, *SpendNotif)

	mu    sync.RWMutex
	peers map[peer.ID]time.Time

	peerStore *PeerStore   // nil if Config.DB is nil
	dht       *dht.IpfsDHT // nil if NoDiscover
}

// New creates a network node with the given config.
func New(cfg Config) *Node {
	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
		peers:  make(map[peer.ID]time.Time),
	}
	if cfg.DB != nil {
		n.peerStore = NewPeerStore(cfg.DB)
	}
	return n
}

// rendezvous returns the DHT/mDNS discovery namespace for this node.
func (n *Node) rendezvous() string {
	if n.config.NetworkID != "" {
		return "notemesh/" + n.config.NetworkID
	}
	return dhtRendezvousFallback
}

// Start initializes the libp2p host, pubsub, and begins listening.
func (n *Node) Start() error {
	addr := fmt.Sprintf("/ip4/%s/tcp/%d", n.config.ListenAddr, n.config.Port)

	opts := []libp2p.Option{
		libp2p.ListenAddrStrings(addr),
	}

	// Load or generate persistent identity so peer ID survives restarts.
	if n.config.DataDir != "" {
		privKey, err := loadOrCreateIdentity(n.config.DataDir)
		if err != nil {
			return fmt.Errorf("load identity: %w", err)
		}
		opts = append(opts, libp2p.Identity(privKey))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return fmt.Errorf("create libp2p host: %w", err)
	}
	n.host = h

	// Init DHT before GossipSub so the DHT can serve as a peer source.
	if !n.config.NoDiscover {
		if err := n.initDHT(); err != nil {
			h.Close()
			return fmt.Errorf("init dht: %w", err)
		}
	}

	ps, err := pubsub.NewGossipSub(n.ctx, h,
		pubsub.WithMaxMessageSize(maxGossipMessageSize),
	)
	if err != nil {
		n.closeDHT()
		h.Close()
		return fmt.Errorf("create pubsub: %w", err)
	}
	n.pubsub = ps

	n.topicSpend, err = ps.Join(TopicSpendNotif)
	if err != nil {
		n.closeDHT()
		h.Close()
		return fmt.Errorf("join spend topic: %w", err)
	}
	n.subSpend, err = n.topicSpend.Subscribe()
	if err != nil {
		n.closeDHT()
		h.Close()
		return fmt.Errorf("subscribe spend topic: %w", err)
	}
	go n.readLoop()

	// Load and reconnect persisted peers in background.
	go n.loadPersistedPeers()

	if len(n.config.Seeds) > 0 {
		log.Network.Info().Int("seeds", len(n.config.Seeds)).Msg("connecting to seeds")
	}
	n.connectSeedsOnce()
	go n.connectSeedsLoop()

	if !n.config.NoDiscover {
		n.startMDNS()
		go n.runDHTDiscovery()
	}

	if n.peerStore != nil {
		go n.runPersistLoop()
	}

	return nil
}

// Stop shuts down the node.
func (n *Node) Stop() error {
	n.persistPeers()
	n.cancel()
	if n.subSpend != nil {
		n.subSpend.Cancel()
	}
	if n.topicSpend != nil {
		n.topicSpend.Close()
	}
	n.closeDHT()
	if n.host != nil {
		return n.host.Close()
	}
	return nil
}

// Host returns the underlying libp2p host (nil before Start).
func (n *Node) Host() host.Host {
	return n.host
}

// ID returns the peer ID of this node.
func (n *Node) ID() peer.ID {
	if n.host == nil {
		return ""
	}
	return n.host.ID()
}

// Addrs returns the full multiaddrs of this node.
func (n *Node) Addrs() []string {
	if n.host == nil {
		return nil
	}
	var addrs []string
	for _, a := range n.host.Addrs() {
		addrs = append(addrs, fmt.Sprintf("%s/p2p/%s", a, n.host.ID()))
	}
	return addrs
}

// SetSpendHandler registers a callback for gossiped spend
// announcements. The callback runs on the read loop goroutine.
func (n *Node) SetSpendHandler(fn func(from peer.ID, notif *SpendNotif)) {
	n.spendHandler = fn
}

// AnnounceSpend publishes a newly recorded spend to the gossip network.
func (n *Node) AnnounceSpend(ss *ledger.SignedSpend) error {
	if n.topicSpend == nil {
		return fmt.Errorf("node not started")
	}
	data, err := json.Marshal(SpendNotif{Addr: ss.Address(), Spend: ss})
	if err != nil {
		return fmt.Errorf("marshal spend notif: %w", err)
	}
	return n.topicSpend.Publish(n.ctx, data)
}

// PeerCount returns the number of known connected peers.
func (n *Node) PeerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.peers)
}

// Peers returns a snapshot of known peer IDs.
func (n *Node) Peers() []peer.ID {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]peer.ID, 0, len(n.peers))
	for id := range n.peers {
		out = append(out, id)
	}
	return out
}

func (n *Node) addPeer(id peer.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.peers[id]; !exists {
		n.peers[id] = time.Now()
	}
}

func (n *Node) removePeer(id peer.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.peers, id)
}

func (n *Node) readLoop() {
	for {
		msg, err := n.subSpend.Next(n.ctx)
		if err != nil {
			return // Context cancelled.
		}
		if msg.ReceivedFrom == n.host.ID() {
			continue // Skip own messages.
		}
		n.handleSpendMessage(msg)
	}
}

func (n *Node) handleSpendMessage(msg *pubsub.Message) {
	n.addPeer(msg.ReceivedFrom)
	if n.spendHandler == nil {
		return
	}
	var notif SpendNotif
	if err := json.Unmarshal(msg.Data, &notif); err != nil || notif.Spend == nil {
		log.Network.Debug().Str("peer", shortPeer(msg.ReceivedFrom)).Msg("dropping malformed spend notif")
		return
	}
	if notif.Spend.Address() != notif.Addr {
		log.Network.Debug().Str("peer", shortPeer(msg.ReceivedFrom)).Msg("dropping spend notif with mismatched address")
		return
	}
	n.spendHandler(msg.ReceivedFrom, &notif)
}

func (n *Node) startMDNS() {
	svc := mdns.NewMdnsService(n.host, n.rendezvous(), &discoveryNotifee{node: n})
	// mDNS failure is non-fatal.
	_ = svc.Start()
}

// connectSeedsOnce tries to connect to each seed peer once (blocking).
// Returns true if at least one seed connected.
func (n *Node) connectSeedsOnce() bool {
	connected := false
	for _, addr := range n.config.Seeds {
		info, err := peer.AddrInfoFromString(addr)
		if err != nil {
			log.Network.Warn().Str("addr", addr).Err(err).Msg("bad seed address")
			continue
		}
		ctx, cancel := context.WithTimeout(n.ctx, 10*time.Second)
		err = n.host.Connect(ctx, *info)
		cancel()
		if err != nil {
			log.Network.Warn().Str("peer", shortPeer(info.ID)).Err(err).Msg("seed connect failed")
		} else {
			n.addPeer(info.ID)
			log.Network.Info().Str("peer", shortPeer(info.ID)).Msg("seed connected")
			connected = true
		}
	}
	return connected
}

// connectSeedsLoop retries seed connections every 10s while peerless.
func (n *Node) connectSeedsLoop() {
	if len(n.config.Seeds) == 0 {
		return
	}
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-time.After(10 * time.Second):
			if n.PeerCount() == 0 {
				log.Network.Info().Int("seeds", len(n.config.Seeds)).Msg("no peers, retrying seeds")
				n.connectSeedsOnce()
			}
		}
	}
}

// --- DHT ---

func (n *Node) initDHT() error {
	mode := dht.ModeClient
	if n.config.DHTServer {
		mode = dht.ModeServer
	}
	kadDHT, err := dht.New(n.ctx, n.host, dht.Mode(mode))
	if err != nil {
		return fmt.Errorf("create kad-dht: %w", err)
	}
	n.dht = kadDHT
	return kadDHT.Bootstrap(n.ctx)
}

func (n *Node) closeDHT() {
	if n.dht != nil {
		n.dht.Close()
		n.dht = nil
	}
}

func (n *Node) runDHTDiscovery() {
	if n.dht == nil {
		return
	}

	routingDiscovery := drouting.NewRoutingDiscovery(n.dht)
	dutil.Advertise(n.ctx, routingDiscovery, n.rendezvous())

	ticker := time.NewTicker(dhtDiscoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.findDHTPeers(routingDiscovery)
		}
	}
}

func (n *Node) findDHTPeers(routingDiscovery *drouting.RoutingDiscovery) {
	ctx, cancel := context.WithTimeout(n.ctx, 20*time.Second)
	defer cancel()

	peerCh, err := routingDiscovery.FindPeers(ctx, n.rendezvous())
	if err != nil {
		return
	}

	for p := range peerCh {
		if p.ID == n.host.ID() || len(p.Addrs) == 0 {
			continue
		}
		if n.config.MaxPeers > 0 && n.PeerCount() >= n.config.MaxPeers {
			return
		}
		connectCtx, connectCancel := context.WithTimeout(n.ctx, peerConnectTimeout)
		if err := n.host.Connect(connectCtx, p); err == nil {
			n.addPeer(p.ID)
		}
		connectCancel()
	}
}

// loadOrCreateIdentity loads a persisted libp2p identity key from dataDir,
// or generates a new one and saves it. This keeps the peer ID stable.
func loadOrCreateIdentity(dataDir string) (libp2pcrypto.PrivKey, error) {
	keyPath := filepath.Join(dataDir, "node.key")

	data, err := os.ReadFile(keyPath)
	if err == nil {
		keyBytes, err := hex.DecodeString(string(data))
		if err != nil {
			return nil, fmt.Errorf("decode node key: %w", err)
		}
		return libp2pcrypto.UnmarshalEd25519PrivateKey(keyBytes)
	}

	priv, _, err := libp2pcrypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	raw, err := priv.Raw()
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(raw)), 0600); err != nil {
		return nil, fmt.Errorf("save node key: %w", err)
	}
	return priv, nil
}

func shortPeer(id peer.ID) string {
	s := id.String()
	if len(s) > 16 {
		return s[:16]
	}
	return s
}
