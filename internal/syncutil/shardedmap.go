// Package syncutil provides keyed state containers that lock per shard
// instead of per process.
package syncutil

import (
	"hash/fnv"
	"sync"
)

const shardCount = 64

// ShardedMap is a string-keyed map split across a fixed pool of shards, each
// guarded by its own mutex. Keys that hash to different shards never contend.
// The zero value is ready to use.
type ShardedMap[V any] struct {
	shards [shardCount]mapShard[V]
}

type mapShard[V any] struct {
	mu sync.Mutex
	m  map[string]V
}

// Update runs fn with the current value for key while holding the key's shard
// lock, then stores the value fn returns. ok reports whether key was present.
// Returning keep=false deletes the key. Everything fn does is atomic with
// respect to other callers on the same key.
func (s *ShardedMap[V]) Update(key string, fn func(v V, ok bool) (next V, keep bool)) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cur, ok := sh.m[key]
	next, keep := fn(cur, ok)
	if !keep {
		if ok {
			delete(sh.m, key)
		}
		return
	}
	if sh.m == nil {
		sh.m = make(map[string]V)
	}
	sh.m[key] = next
}

// View runs fn with the value for key under the shard lock. It returns false
// without calling fn when the key is absent.
func (s *ShardedMap[V]) View(key string, fn func(v V)) bool {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	v, ok := sh.m[key]
	if !ok {
		return false
	}
	fn(v)
	return true
}

// Sweep visits every entry one shard at a time and deletes those for which
// keep returns false. keep may modify the value in place (e.g. prune a slice)
// by returning the replacement. Returns the number of deleted keys.
func (s *ShardedMap[V]) Sweep(keep func(key string, v V) (V, bool)) int {
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k, v := range sh.m {
			next, ok := keep(k, v)
			if !ok {
				delete(sh.m, k)
				removed++
				continue
			}
			sh.m[k] = next
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of keys. Shards are counted one after another, so
// the result is approximate under concurrent writes.
func (s *ShardedMap[V]) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.m)
		sh.mu.Unlock()
	}
	return n
}

// Reset drops every key.
func (s *ShardedMap[V]) Reset() {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		sh.m = nil
		sh.mu.Unlock()
	}
}

func (s *ShardedMap[V]) shard(key string) *mapShard[V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()%shardCount]
}
