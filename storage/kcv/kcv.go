// Package kcv implements the typed key/column/value storage layer
// described in spec §4.A: a (prefix, key, suffix) -> value mapping
// with transactions and encryption at rest. Every persistent entity
// in package entities is a view over this layout.
package kcv

import "nextgraph.dev/broker/types"

// KV is one raw (key, value) pair returned by a prefix scan. Key is
// the full on-disk key (the entity key plus its suffix and, for
// multi-valued columns, the encoded member tail).
type KV struct {
	Key   []byte
	Value []byte
}

// ReadTx is the set of read operations available both outside and
// inside a write transaction (spec §4.A).
type ReadTx interface {
	// Get loads the value stored at (prefix, key, suffix). suffix may
	// be nil for records that keep a single value directly under the
	// key with no column tail.
	Get(prefix byte, key []byte, suffix *byte) ([]byte, error)

	// GetAllPropertiesOfKey loads every suffix in suffixes that is
	// present for key, in one pass.
	GetAllPropertiesOfKey(prefix byte, key []byte, suffixes []byte) (map[byte][]byte, error)

	// HasPropertyValue reports (via a nil/non-nil error) whether value
	// is present among a multi-valued column's members.
	HasPropertyValue(prefix byte, key []byte, suffix *byte, value []byte) error

	// GetAllKeysAndValues scans every on-disk key beginning with
	// keyPrefix (optionally restricted to entries with the given
	// suffix byte right after keyPrefix) and returns the matching raw
	// (key, value) pairs in lexicographic order.
	GetAllKeysAndValues(prefix byte, keyPrefix []byte, suffix *byte) ([]KV, error)
}

// WriteTx additionally allows mutation; every method either succeeds
// as specified or returns a types.StorageError without touching the
// store (spec §4.A "Semantics").
type WriteTx interface {
	ReadTx

	// Put fails with StorageAlreadyExists if (prefix,key,suffix) is
	// already populated.
	Put(prefix byte, key []byte, suffix *byte, value []byte) error

	// Replace fails with StorageNotFound if (prefix,key,suffix) does
	// not already exist.
	Replace(prefix byte, key []byte, suffix *byte, value []byte) error

	// Del fails with StorageNotFound if (prefix,key,suffix) does not
	// exist.
	Del(prefix byte, key []byte, suffix *byte) error

	// DelAll removes every suffix in suffixes for key, ignoring
	// suffixes that are already absent.
	DelAll(prefix byte, key []byte, suffixes []byte) error

	// DelPropertyValue removes one member of a multi-valued column.
	DelPropertyValue(prefix byte, key []byte, suffix *byte, value []byte) error

	// DelAllValues removes every member of a multi-valued column.
	DelAllValues(prefix byte, key []byte, suffix *byte) error
}

// Storage is the top-level KCV handle: direct (auto-committed) reads
// and writes, plus atomic multi-step transactions.
type Storage interface {
	WriteTx

	// WriteTransaction runs fn with a view of the store on which every
	// write either all applies, or (on error) none does (spec §4.A
	// "A transaction either applies every write or none").
	WriteTransaction(fn func(tx WriteTx) error) error

	Close() error
}

// StorageErr adapts a types.StorageError to the error interface so
// callers can compare with errors.Is against the sentinel values
// below.
type StorageErr = types.StorageError

var (
	ErrNotFound          = types.StorageNotFound
	ErrAlreadyExists     = types.StorageAlreadyExists
	ErrInvalidValue      = types.StorageInvalidValue
	ErrBackendError      = types.StorageBackendError
	ErrSerializationErr  = types.StorageSerializationError
	ErrDataCorruption    = types.StorageDataCorruption
)
