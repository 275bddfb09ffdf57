// Package storage provides database abstractions for the auditor.
package storage

import "errors"

// ErrKeyNotFound is returned by Get for missing keys.
var ErrKeyNotFound = errors.New("key not found")

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix.
	// The callback receives a copy of the key; the value is only valid
	// for the duration of the call. Return a non-nil error from fn to
	// stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}
