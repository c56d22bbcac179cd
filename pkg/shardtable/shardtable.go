// Package shardtable provides a concurrent map striped across a fixed
// number of RWMutex-guarded shards, so that operations on different keys
// rarely block each other. It backs the semantic attribute/slot databases
// (pkg/semantics), where many documents' records are read and written
// concurrently by analysis tasks.
package shardtable

import (
	"fmt"
	"hash/fnv"
	"runtime"
	"sync"
)

// DefaultShardCount picks a shard count proportional to hardware
// parallelism, the same convention the teacher's rbtree.ShardedAllocator
// used (GOMAXPROCS-scaled, power of two). Returns 1 under wasm, matching
// the spec's "exactly 1 under wasm" rule.
func DefaultShardCount() int {
	if runtime.GOARCH == "wasm" {
		return 1
	}

	n := runtime.GOMAXPROCS(0) * 4
	if n < 1 {
		n = 1
	}

	return nextPowerOfTwo(n)
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}

	return p
}

type shard[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]V
}

// Table is a sharded concurrent map. Operations on different keys likely
// do not block; operations on the same key serialize. Callers must never
// hold two shard guards at once (e.g. never call back into Table methods
// from inside Entry's update function), or a deadlock is possible.
type Table[K comparable, V any] struct {
	shards []*shard[K, V]
	shift  uint
}

// New creates a Table with shardCount shards (rounded up to a power of two,
// minimum 1).
func New[K comparable, V any](shardCount int) *Table[K, V] {
	if shardCount < 1 {
		shardCount = 1
	}

	shardCount = nextPowerOfTwo(shardCount)

	t := &Table[K, V]{
		shards: make([]*shard[K, V], shardCount),
	}

	for i := range t.shards {
		t.shards[i] = &shard[K, V]{data: make(map[K]V)}
	}

	// shift such that (hash >> shift) is in [0, shardCount).
	bits := 0
	for (1 << bits) < shardCount {
		bits++
	}

	t.shift = 64 - uint(bits)

	return t
}

func hashKey[K comparable](key K) uint64 {
	hasher := fnv.New64a()

	switch k := any(key).(type) {
	case string:
		_, _ = hasher.Write([]byte(k))
	case []byte:
		_, _ = hasher.Write(k)
	default:
		// Fallback: hash the fmt-stable representation. The ident.Id
		// keys pkg/semantics and pkg/analyzer use take this path via
		// their String method; it also keeps Table[K,V] fully generic.
		_, _ = hasher.Write([]byte(anyToBytes(k)))
	}

	return hasher.Sum64()
}

func anyToBytes(v any) []byte {
	type stringer interface{ String() string }
	if s, ok := v.(stringer); ok {
		return []byte(s.String())
	}

	return []byte(fmt.Sprint(v))
}

func (t *Table[K, V]) shardFor(key K) *shard[K, V] {
	h := hashKey(key)
	idx := h >> t.shift

	return t.shards[idx]
}

// Get returns the value stored for key, and whether it was present.
func (t *Table[K, V]) Get(key K) (V, bool) {
	s := t.shardFor(key)

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]

	return v, ok
}

// Set stores value for key.
func (t *Table[K, V]) Set(key K, value V) {
	s := t.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
}

// Delete removes key, returning whether it was present.
func (t *Table[K, V]) Delete(key K) bool {
	s := t.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.data[key]
	delete(s.data, key)

	return ok
}

// Entry looks up key under the shard's write lock and calls update with
// the current value (zero value if absent) and whether it was present.
// update's return value is stored back, unless keep is false, in which
// case the key is deleted. The shard lock is held for the duration of
// update, so update must not call back into this Table.
func (t *Table[K, V]) Entry(key K, update func(current V, present bool) (next V, keep bool)) {
	s := t.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	current, present := s.data[key]

	next, keep := update(current, present)
	if keep {
		s.data[key] = next
	} else if present {
		delete(s.data, key)
	}
}

// Len returns the total number of entries across all shards.
func (t *Table[K, V]) Len() int {
	total := 0

	for _, s := range t.shards {
		s.mu.RLock()
		total += len(s.data)
		s.mu.RUnlock()
	}

	return total
}

// Drain removes and returns every entry, acquiring shards left-to-right
// and holding each only until its contents are drained.
func (t *Table[K, V]) Drain() map[K]V {
	out := make(map[K]V)

	for _, s := range t.shards {
		s.mu.Lock()
		for k, v := range s.data {
			out[k] = v
		}

		s.data = make(map[K]V)
		s.mu.Unlock()
	}

	return out
}

// Retain keeps only entries for which keep returns true, acquiring shards
// left-to-right.
func (t *Table[K, V]) Retain(keep func(key K, value V) bool) {
	for _, s := range t.shards {
		s.mu.Lock()

		for k, v := range s.data {
			if !keep(k, v) {
				delete(s.data, k)
			}
		}

		s.mu.Unlock()
	}
}

// Clear removes all entries, acquiring shards left-to-right.
func (t *Table[K, V]) Clear() {
	for _, s := range t.shards {
		s.mu.Lock()
		s.data = make(map[K]V)
		s.mu.Unlock()
	}
}

// ShardCount returns the number of shards.
func (t *Table[K, V]) ShardCount() int { return len(t.shards) }
