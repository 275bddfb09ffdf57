package spendnet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/notemesh/notemesh-audit/internal/storage"
)

const (
	peerKeyPrefix     = "peer/"
	staleThreshold    = 24 * time.Hour
	persistInterval   = 5 * time.Minute
	maxPersistedPeers = 500
)

// PeerRecord is a persisted peer entry.
type PeerRecord struct {
	ID       string   `json:"id"`        // base58 peer ID
	Addrs    []string `json:"addrs"`     // multiaddr strings
	LastSeen int64    `json:"last_seen"` // unix timestamp
}

// PeerStore persists peer records in a storage.DB so an auditor can
// rejoin the network without seeds after a restart.
type PeerStore struct {
	db storage.DB
}

// NewPeerStore creates a peer store backed by the given DB.
func NewPeerStore(db storage.DB) *PeerStore {
	return &PeerStore{db: db}
}

func peerKey(id string) []byte {
	return []byte(peerKeyPrefix + id)
}

// Save persists a peer record. New peers beyond maxPersistedPeers are
// silently skipped.
func (ps *PeerStore) Save(rec PeerRecord) error {
	key := peerKey(rec.ID)
	exists, err := ps.db.Has(key)
	if err != nil {
		return fmt.Errorf("check peer exists: %w", err)
	}
	if !exists {
		count, err := ps.Count()
		if err != nil {
			return fmt.Errorf("count peers: %w", err)
		}
		if count >= maxPersistedPeers {
			return nil
		}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal peer record: %w", err)
	}
	return ps.db.Put(key, data)
}

// LoadAll returns all persisted peer records, skipping corrupt ones.
func (ps *PeerStore) LoadAll() ([]PeerRecord, error) {
	var records []PeerRecord
	err := ps.db.ForEach([]byte(peerKeyPrefix), func(_, value []byte) error {
		var rec PeerRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return nil
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate peer records: %w", err)
	}
	return records, nil
}

// PruneStale removes records older than threshold, corrupt records
// included. Returns the number pruned.
func (ps *PeerStore) PruneStale(threshold time.Duration) (int, error) {
	cutoff := time.Now().Add(-threshold).Unix()
	var toDelete [][]byte

	err := ps.db.ForEach([]byte(peerKeyPrefix), func(key, value []byte) error {
		var rec PeerRecord
		if err := json.Unmarshal(value, &rec); err != nil || rec.LastSeen < cutoff {
			keyCopy := make([]byte, len(key))
			copy(keyCopy, key)
			toDelete = append(toDelete, keyCopy)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("iterate for prune: %w", err)
	}
	for _, k := range toDelete {
		if err := ps.db.Delete(k); err != nil {
			return 0, fmt.Errorf("delete stale peer: %w", err)
		}
	}
	return len(toDelete), nil
}

// Count returns the number of persisted peer records.
func (ps *PeerStore) Count() (int, error) {
	count := 0
	err := ps.db.ForEach([]byte(peerKeyPrefix), func(_, _ []byte) error {
		count++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count peers: %w", err)
	}
	return count, nil
}

// --- node persistence hooks ---

func (n *Node) persistPeers() {
	if n.peerStore == nil || n.host == nil {
		return
	}
	now := time.Now().Unix()
	for _, id := range n.Peers() {
		addrs := n.host.Peerstore().Addrs(id)
		addrStrs := make([]string, len(addrs))
		for i, a := range addrs {
			addrStrs[i] = a.String()
		}
		rec := PeerRecord{ID: id.String(), Addrs: addrStrs, LastSeen: now}
		_ = n.peerStore.Save(rec) // best effort
	}
}

func (n *Node) loadPersistedPeers() {
	if n.peerStore == nil {
		return
	}
	n.peerStore.PruneStale(staleThreshold)

	records, err := n.peerStore.LoadAll()
	if err != nil {
		return
	}
	for _, rec := range records {
		id, err := peer.Decode(rec.ID)
		if err != nil || id == n.host.ID() {
			continue
		}
		info := peer.AddrInfo{ID: id}
		for _, addr := range rec.Addrs {
			ai, err := peer.AddrInfoFromString(fmt.Sprintf("%s/p2p/%s", addr, rec.ID))
			if err != nil {
				continue
			}
			info.Addrs = append(info.Addrs, ai.Addrs...)
		}
		if len(info.Addrs) == 0 {
			continue
		}
		ctx, cancel := context.WithTimeout(n.ctx, peerConnectTimeout)
		n.host.Connect(ctx, info) // best-effort reconnect
		cancel()
	}
}

func (n *Node) runPersistLoop() {
	ticker := time.NewTicker(persistInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.persistPeers()
			n.peerStore.PruneStale(staleThreshold)
		}
	}
}
