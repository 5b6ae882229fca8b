package storage

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
)

const defaultShards = 32

type shard[V any] struct {
	mu      sync.RWMutex
	entries map[string]Entry[V]
}

// MemoryStore is a sharded in-memory Store. Keys hash to one of a fixed set
// of shards so writers to unrelated keys do not contend on the same lock.
// Versions come from one store-wide counter, so a key recreated after a
// delete never repeats a version an earlier reader may still hold.
type MemoryStore[V any] struct {
	shards  []*shard[V]
	version atomic.Uint64
}

var _ Store[int] = (*MemoryStore[int])(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore[V any]() *MemoryStore[V] {
	m := &MemoryStore[V]{shards: make([]*shard[V], defaultShards)}
	for i := range m.shards {
		m.shards[i] = &shard[V]{entries: make(map[string]Entry[V])}
	}
	return m
}

func (m *MemoryStore[V]) shardFor(key string) *shard[V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()%uint32(len(m.shards))]
}

func (m *MemoryStore[V]) Get(ctx context.Context, key string) (Entry[V], error) {
	if err := ctx.Err(); err != nil {
		return Entry[V]{}, err
	}
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return Entry[V]{}, ErrNotFound
	}
	return e, nil
}

func (m *MemoryStore[V]) Set(ctx context.Context, key string, value V) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	version := m.version.Add(1)
	s.entries[key] = Entry[V]{Key: key, Value: value, Version: version}
	return version, nil
}

func (m *MemoryStore[V]) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := m.shardFor(key)
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

func (m *MemoryStore[V]) CompareAndSwap(ctx context.Context, key string, version uint64, value V) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entries[key]
	switch {
	case version == 0 && ok:
		return 0, ErrConflict
	case version != 0 && (!ok || cur.Version != version):
		return 0, ErrConflict
	}

	next := m.version.Add(1)
	s.entries[key] = Entry[V]{Key: key, Value: value, Version: next}
	return next, nil
}

// Scan snapshots each shard before calling fn, so fn may write to the store.
func (m *MemoryStore[V]) Scan(ctx context.Context, prefix string, fn func(Entry[V]) bool) error {
	for _, s := range m.shards {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.mu.RLock()
		batch := make([]Entry[V], 0, len(s.entries))
		for k, e := range s.entries {
			if strings.HasPrefix(k, prefix) {
				batch = append(batch, e)
			}
		}
		s.mu.RUnlock()

		for _, e := range batch {
			if !fn(e) {
				return nil
			}
		}
	}
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryStore[V]) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}
