package aircraft

import (
	"hash/maphash"
	"sync"
	"time"

	"github.com/flightdeck/trackerd/internal/config"
)

// shardCount is fixed at the trace writer pool's default worker count
// (spec.md §4.3 "A pool of writer workers (default 8) each owns a shard
// of the aircraft hash table"), so each writer visits exactly one shard
// with no cross-shard coordination.
const shardCount = 8

type shard struct {
	mu   sync.RWMutex
	byID map[Key]*Aircraft
}

// Registry is the sharded hash-bucketed Aircraft store (spec.md §2).
// It generalizes the teacher's single-map-plus-RWMutex track registry
// (internal/lidar.Tracker) to multiple independently-locked shards so
// the trace writer pool's per-shard workers (spec.md §4.3) never
// contend with each other.
type Registry struct {
	shards [shardCount]*shard
	seed   maphash.Seed
	cfg    *config.TrackerConfig
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg *config.TrackerConfig) *Registry {
	r := &Registry{seed: maphash.MakeSeed(), cfg: cfg}
	for i := range r.shards {
		r.shards[i] = &shard{byID: make(map[Key]*Aircraft)}
	}
	return r
}

// ShardCount returns the fixed number of shards, exposed so the trace
// writer pool can size its own worker set identically (spec.md §4.3).
func (r *Registry) ShardCount() int { return shardCount }

func (r *Registry) shardFor(k Key) *shard {
	var h maphash.Hash
	h.SetSeed(r.seed)
	var buf [5]byte
	buf[0] = byte(k.Addr)
	buf[1] = byte(k.Addr >> 8)
	buf[2] = byte(k.Addr >> 16)
	buf[3] = byte(k.Addr >> 24)
	if k.NonICAO {
		buf[4] = 1
	}
	h.Write(buf[:])
	return r.shards[h.Sum64()%uint64(shardCount)]
}

// Get returns the Aircraft for key, or nil if absent.
func (r *Registry) Get(key Key) *Aircraft {
	s := r.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[key]
}

// GetOrCreate returns the existing Aircraft for key, or creates and
// inserts a new one via New(key, now) if absent. The bool result
// reports whether a new record was created.
func (r *Registry) GetOrCreate(key Key, now time.Time) (*Aircraft, bool) {
	s := r.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.byID[key]; ok {
		return a, false
	}
	a := New(key, now)
	s.byID[key] = a
	return a, true
}

// WithAircraft looks up (or creates) the Aircraft for key and calls fn
// with it while holding that shard's write lock, so two messages for the
// same (or co-sharded) address can never be applied concurrently. This
// generalizes the teacher's single global mutex around track updates
// (internal/lidar.Tracker.Update) to one mutex per shard instead of one
// mutex for the whole registry. The bool result reports whether fn's
// Aircraft was newly created by this call.
func (r *Registry) WithAircraft(key Key, now time.Time, fn func(a *Aircraft)) bool {
	s := r.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[key]
	created := !ok
	if !ok {
		a = New(key, now)
		s.byID[key] = a
	}
	fn(a)
	return created
}

// Delete removes key from the registry.
func (r *Registry) Delete(key Key) {
	s := r.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, key)
}

// Len returns the total number of aircraft across all shards.
func (r *Registry) Len() int {
	total := 0
	for _, s := range r.shards {
		s.mu.RLock()
		total += len(s.byID)
		s.mu.RUnlock()
	}
	return total
}

// Snapshot returns a point-in-time copy of one shard's aircraft, for a
// trace writer worker that owns exactly that shard index and must never
// touch any other shard's lock (spec.md §4.3).
func (r *Registry) Snapshot(shardIndex int) []*Aircraft {
	s := r.shards[shardIndex]
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make([]*Aircraft, 0, len(s.byID))
	for _, a := range s.byID {
		snap = append(snap, a)
	}
	return snap
}

// ForEachShard invokes fn once per shard index with a snapshot slice of
// that shard's aircraft, matching the trace writer pool's "each worker
// owns a shard" access pattern (spec.md §4.3): fn is called unlocked, the
// snapshot is taken under the shard's read lock.
func (r *Registry) ForEachShard(fn func(shardIndex int, aircraft []*Aircraft)) {
	for i, s := range r.shards {
		s.mu.RLock()
		snap := make([]*Aircraft, 0, len(s.byID))
		for _, a := range s.byID {
			snap = append(snap, a)
		}
		s.mu.RUnlock()
		fn(i, snap)
	}
}

// RemoveExpired walks every shard and deletes any aircraft whose
// lifecycle timeout (spec.md §3 "Lifecycle") has elapsed relative to
// now, returning the removed keys.
func (r *Registry) RemoveExpired(now time.Time) []Key {
	return r.RemoveExpiredRange(now, 0, shardCount)
}

// RemoveExpiredRange is RemoveExpired restricted to shards
// [shardStart, shardEnd), so a stale-sweep worker that owns that range
// (spec.md §4.6) never locks a shard outside it.
func (r *Registry) RemoveExpiredRange(now time.Time, shardStart, shardEnd int) []Key {
	var removed []Key
	for _, s := range r.shards[shardStart:shardEnd] {
		s.mu.Lock()
		for key, a := range s.byID {
			last := a.LastMessage
			if a.HadPosition && a.LastPosition.After(last) {
				last = a.LastPosition
			}
			timeout := r.cfg.AircraftTimeout(a.HadPosition, a.NonICAO)
			if now.Sub(last) > timeout {
				delete(s.byID, key)
				removed = append(removed, key)
			}
		}
		s.mu.Unlock()
	}
	return removed
}
