// Package storage defines the keyed store contract used for rate-limit
// windows, webhook bookkeeping and the nonce ledger, plus an in-memory
// implementation.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a key has no value.
	ErrNotFound = errors.New("storage: key not found")

	// ErrConflict is returned by CompareAndSwap when the stored version
	// differs from the expected one.
	ErrConflict = errors.New("storage: version conflict")
)

// Entry is a stored value together with its version. Versions are non-zero,
// increase on every write to the key and are not reused after a delete.
type Entry[V any] struct {
	Key     string
	Value   V
	Version uint64
}

// Store is a keyed value store with optimistic concurrency.
type Store[V any] interface {
	// Get returns the entry for key or ErrNotFound.
	Get(ctx context.Context, key string) (Entry[V], error)

	// Set writes value unconditionally and returns the new version.
	Set(ctx context.Context, key string, value V) (uint64, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Scan calls fn for every entry whose key has the given prefix until fn
	// returns false. Iteration order is unspecified.
	Scan(ctx context.Context, prefix string, fn func(Entry[V]) bool) error

	// CompareAndSwap writes value only if the stored version equals version.
	// A version of 0 means the key must not exist yet.
	CompareAndSwap(ctx context.Context, key string, version uint64, value V) (uint64, error)
}

// MaxUpdateRetries bounds the CAS loop in Update.
const MaxUpdateRetries = 1024

// Update applies fn to the current value of key and stores the result with
// CompareAndSwap, retrying on conflicts. exists is false when the key has no
// value yet. fn may be called more than once and must not have side effects.
func Update[V any](ctx context.Context, s Store[V], key string, fn func(cur V, exists bool) (V, error)) (V, error) {
	var zero V
	for i := 0; i < MaxUpdateRetries; i++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		var (
			cur     V
			version uint64
			exists  bool
		)
		entry, err := s.Get(ctx, key)
		switch {
		case err == nil:
			cur, version, exists = entry.Value, entry.Version, true
		case errors.Is(err, ErrNotFound):
		default:
			return zero, err
		}

		next, err := fn(cur, exists)
		if err != nil {
			return zero, err
		}

		if _, err := s.CompareAndSwap(ctx, key, version, next); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return zero, err
		}
		return next, nil
	}
	return zero, ErrConflict
}

// Values collects every value under prefix.
func Values[V any](ctx context.Context, s Store[V], prefix string) ([]V, error) {
	var out []V
	err := s.Scan(ctx, prefix, func(e Entry[V]) bool {
		out = append(out, e.Value)
		return true
	})
	return out, err
}
