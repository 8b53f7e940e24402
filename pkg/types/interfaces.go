// Package types defines the public interfaces of caskstore.
package types

import (
	"context"
	"time"
)

// ObjectStore is the byte-level interface to one bucket/prefix pair.
// Implementations are safe for concurrent use; every operation enforces the
// store's shared parallelism bound and retry policy.
type ObjectStore interface {
	// WriteBytes stores data under key. Re-writing identical bytes to the
	// same key is observably a no-op.
	WriteBytes(ctx context.Context, key string, data []byte) error

	// ReadBytes retrieves the object stored under key. Returns an
	// OBJECT_NOT_FOUND error when the key is absent.
	ReadBytes(ctx context.Context, key string) ([]byte, error)

	// DeleteObject removes the object under key. Deleting an absent key is
	// not an error.
	DeleteObject(ctx context.Context, key string) error

	// ListKeys returns an iterator over all keys under keyPrefix.
	// Pagination happens transparently as the iterator advances.
	ListKeys(ctx context.Context, keyPrefix string) KeyIterator

	// Location returns the store's root address (endpoint + bucket + prefix).
	Location() string

	// Identifiers returns the identifiers this store answers to, for
	// multi-store disambiguation.
	Identifiers() []string

	// HealthCheck verifies the bucket is reachable with the configured
	// credentials.
	HealthCheck(ctx context.Context) error

	// Close releases store resources.
	Close() error
}

// KeyIterator provides sequential access to listed keys.
//
//   - Next() must return false after exhaustion or after Close()
//   - Key() is only valid after Next() returns true
//   - Err() may be called after exhaustion or close
//   - Close() must be idempotent
type KeyIterator interface {
	Next() bool
	Key() string
	Err() error
	Close() error
}

// ContentRef describes a payload stored by content address.
type ContentRef struct {
	// Address is the fully-qualified logical address, resolvable back to
	// the physical key.
	Address string `json:"address"`
	// Hash is the hex content hash the key was derived from.
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// ContentStore layers content-hash addressing and JSON documents over an
// ObjectStore.
type ContentStore interface {
	// Write stores payload under a key derived from its content hash.
	// Identical payloads always yield the identical address.
	Write(ctx context.Context, path string, payload []byte) (ContentRef, error)

	// Read resolves address to its physical key and returns the stored
	// bytes.
	Read(ctx context.Context, address string) ([]byte, error)

	// ReadJSON reads and decodes the JSON document stored at address.
	ReadJSON(ctx context.Context, address string) (map[string]interface{}, error)

	// ReadJSONInto decodes the JSON document stored at address into v.
	ReadJSONInto(ctx context.Context, address string, v interface{}) error
}

// ObjectInfo describes one stored object in a listing.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag"`
}
