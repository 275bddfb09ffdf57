// Package dagstore persists audit state: individual signed spends and
// whole DAG snapshots, backed by a storage.DB.
package dagstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/notemesh/notemesh-audit/internal/audit"
	"github.com/notemesh/notemesh-audit/internal/storage"
	"github.com/notemesh/notemesh-audit/pkg/ledger"
	"github.com/notemesh/notemesh-audit/pkg/types"
)

// Key prefixes and state keys for the audit store.
var (
	prefixSpend = []byte("s/") // s/<addr(32)> -> signed spends JSON array
	keyDag      = []byte("g/dag")
)

// Store persists spends and DAG snapshots to a storage.DB.
type Store struct {
	db storage.DB
}

// New creates a store backed by the given database.
func New(db storage.DB) *Store {
	return &Store{db: db}
}

// PutSpend records a signed spend at its address. Conflicting spends
// accumulate; storing the same spend twice is a no-op.
func (st *Store) PutSpend(ss *ledger.SignedSpend) error {
	addr := ss.Address()
	have, err := st.Spends(addr)
	if err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
		return err
	}
	for _, s := range have {
		if s.Equal(ss) {
			return nil
		}
	}
	have = append(have, ss)
	data, err := json.Marshal(have)
	if err != nil {
		return fmt.Errorf("marshal spends at %s: %w", addr.Short(), err)
	}
	return st.db.Put(spendKey(addr), data)
}

// Spends returns every spend recorded at addr.
// storage.ErrKeyNotFound means the address holds none.
func (st *Store) Spends(addr types.SpendAddress) ([]*ledger.SignedSpend, error) {
	data, err := st.db.Get(spendKey(addr))
	if err != nil {
		return nil, err
	}
	var out []*ledger.SignedSpend
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal spends at %s: %w", addr.Short(), err)
	}
	return out, nil
}

// GetSpend serves stored spends under the audit fetch contract: one
// spend comes back directly, none maps to audit.ErrSpendNotFound and
// several to an audit.DoubleSpendError.
func (st *Store) GetSpend(_ context.Context, addr types.SpendAddress) (*ledger.SignedSpend, error) {
	spends, err := st.Spends(addr)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, audit.ErrSpendNotFound
	}
	if err != nil {
		return nil, err
	}
	switch len(spends) {
	case 0:
		return nil, audit.ErrSpendNotFound
	case 1:
		return spends[0], nil
	default:
		return nil, &audit.DoubleSpendError{Addr: addr, Spends: spends}
	}
}

// ForEachSpend iterates over all stored spends. Return a non-nil error
// from fn to stop early.
func (st *Store) ForEachSpend(fn func(addr types.SpendAddress, spends []*ledger.SignedSpend) error) error {
	return st.db.ForEach(prefixSpend, func(key, value []byte) error {
		if len(key) != len(prefixSpend)+types.HashSize {
			return fmt.Errorf("malformed spend key of length %d", len(key))
		}
		var addr types.SpendAddress
		copy(addr[:], key[len(prefixSpend):])
		var spends []*ledger.SignedSpend
		if err := json.Unmarshal(value, &spends); err != nil {
			return fmt.Errorf("unmarshal spends at %s: %w", addr.Short(), err)
		}
		return fn(addr, spends)
	})
}

// SaveDag snapshots the DAG and indexes each of its spends so they can
// also be served individually.
func (st *Store) SaveDag(dag *audit.SpendDag) error {
	data, err := json.Marshal(dag)
	if err != nil {
		return fmt.Errorf("marshal dag: %w", err)
	}
	if err := st.db.Put(keyDag, data); err != nil {
		return err
	}
	for _, ss := range dag.Spends() {
		if err := st.PutSpend(ss); err != nil {
			return err
		}
	}
	return nil
}

// LoadDag restores the last snapshot and re-records its faults.
// storage.ErrKeyNotFound means no snapshot was ever saved.
func (st *Store) LoadDag() (*audit.SpendDag, error) {
	data, err := st.db.Get(keyDag)
	if err != nil {
		return nil, err
	}
	dag := new(audit.SpendDag)
	if err := json.Unmarshal(data, dag); err != nil {
		return nil, fmt.Errorf("unmarshal dag: %w", err)
	}
	if err := dag.RecordFaults(dag.Source()); err != nil {
		return nil, err
	}
	return dag, nil
}

func spendKey(addr types.SpendAddress) []byte {
	key := make([]byte, len(prefixSpend)+types.HashSize)
	copy(key, prefixSpend)
	copy(key[len(prefixSpend):], addr[:])
	return key
}
