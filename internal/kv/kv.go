// Package kv defines the keyed-record persistence capability used by the
// vocabulary scheduler and the history store.
//
// A [Store] maps string keys to opaque byte blobs (always JSON in
// speakeasy). Writes replace the whole record; there is no transactional
// isolation between readers and writers, so concurrent read-modify-write
// cycles resolve as last writer wins.
//
// Backends: [Memory] for tests and ephemeral runs, [FileStore] for one JSON
// file per key, and the sqlite and postgres sub-packages for database
// storage.
package kv

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("kv: key not found")

// ErrInvalidKey is returned for empty keys or keys that cannot be stored by
// the backend.
var ErrInvalidKey = errors.New("kv: invalid key")

// Store reads and writes whole records by key. Implementations must be safe
// for concurrent use.
type Store interface {
	// Get returns the record stored under key, or [ErrNotFound].
	Get(ctx context.Context, key string) ([]byte, error)

	// Set replaces the record stored under key.
	Set(ctx context.Context, key string, value []byte) error
}

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks s when it implements [Pinger] and reports nil otherwise.
func Ping(ctx context.Context, s Store) error {
	if p, ok := s.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// ValidateKey rejects keys that no backend can store safely.
func ValidateKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." || strings.ContainsRune(key, 0) {
		return ErrInvalidKey
	}
	return nil
}
