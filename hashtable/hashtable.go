// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

// Package hashtable implements the concurrent in-memory index of stored
// values, sharded across hash-bucket locks (spec §3 "HashTable", §4.1).
// Sharding/sizing is grounded on ValentinKolb-dKV's maple engine
// (lib/db/engines/maple/doc.go: "Keys are distributed across shards... The
// integer key is right-shifted... for distribution"); each shard's storage
// is a github.com/puzpuzpuz/xsync/v3 MapOf, the same lock-striped
// concurrent map maple uses per shard, so per-key operations almost never
// contend with each other even while a structural resize is migrating a
// different shard.
package hashtable

import (
	"hash/crc32"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/couchbase/vbucket-engine/base"
	"github.com/couchbase/vbucket-engine/metrics"
)

type shard struct {
	mu   sync.RWMutex // per-bucket lock named in spec §4.1 ("Each hash bucket owns a mutex")
	data *xsync.MapOf[string, *StoredValue]
}

func newShard() *shard {
	return &shard{data: xsync.NewMapOf[string, *StoredValue]()}
}

// Counters tracks the hash-table-wide stats spec §3 names: item counts,
// non-resident/temp counts, value/metadata byte totals, ejection count.
type Counters struct {
	NumItems        metrics.SaturatingCounter
	NumNonResident  metrics.SaturatingCounter
	NumTemp         metrics.SaturatingCounter
	TotalValueBytes metrics.SaturatingCounter
	TotalMetaBytes  metrics.SaturatingCounter
	NumEjections    metrics.SaturatingCounter
}

// Table is the sharded hash table of live items for one vBucket.
type Table struct {
	structMu sync.RWMutex // guards the shards slice pointer during resize (the "epoch" of spec §4.1)
	shards   []*shard
	policy   base.EvictionPolicy
	Counters Counters
}

// New creates a Table with numShards buckets (rounded up to a power of two
// is not required; any positive count works since indexing is by modulo).
func New(numShards int, policy base.EvictionPolicy) *Table {
	if numShards <= 0 {
		numShards = 1
	}
	shards := make([]*shard, numShards)
	for i := range shards {
		shards[i] = newShard()
	}
	return &Table{shards: shards, policy: policy}
}

func bucketIndex(key string, numShards int) int {
	return int(crc32.ChecksumIEEE([]byte(key)) % uint32(numShards))
}

// shardFor returns the shard responsible for key, selecting the current
// shards slice under a brief read lock (readers of unaffected buckets are
// never blocked by an in-flight resize of other buckets, per spec §4.1).
func (t *Table) shardFor(key string) *shard {
	t.structMu.RLock()
	defer t.structMu.RUnlock()
	return t.shards[bucketIndex(key, len(t.shards))]
}

// Find looks up key, returning nil if absent.
func (t *Table) Find(key string) *StoredValue {
	s := t.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	sv, _ := s.data.Load(key)
	return sv
}

// FindLocked is the per-bucket-locked variant of Find, for callers already
// holding the lock returned by LockFor (spec §4.1: "per-bucket locked
// variants for callers already holding the lock").
func (t *Table) FindLocked(key string) *StoredValue {
	s := t.shardFor(key)
	sv, _ := s.data.Load(key)
	return sv
}

// InsertOrReplace stores sv under key, updating byte/item counters. The
// caller is assumed to already hold whatever external serialization it
// needs (e.g. the vbucket's CheckpointManager ordering); this method only
// guarantees the hash-table-local view is consistent.
func (t *Table) InsertOrReplace(key string, sv *StoredValue) {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	t.insertOrReplaceLocked(s, key, sv)
}

// InsertOrReplaceLocked is the per-bucket-locked variant for callers that
// already hold the bucket lock obtained via LockFor (spec §4.1: "per-bucket
// locked variants for callers already holding the lock").
func (t *Table) InsertOrReplaceLocked(key string, sv *StoredValue) {
	s := t.shardFor(key)
	t.insertOrReplaceLocked(s, key, sv)
}

func (t *Table) insertOrReplaceLocked(s *shard, key string, sv *StoredValue) {
	old, existed := s.data.Load(key)
	s.data.Store(key, sv)

	if existed {
		t.Counters.TotalValueBytes.Add(int64(sv.ValueBytes() - old.ValueBytes()))
		t.Counters.TotalMetaBytes.Add(int64(sv.MetaBytes() - old.MetaBytes()))
		if old.MetaOnly() && sv.Resident {
			t.Counters.NumNonResident.Decr(1)
		} else if !old.MetaOnly() && !sv.Resident {
			t.Counters.NumNonResident.Add(1)
		}
	} else {
		t.Counters.NumItems.Add(1)
		t.Counters.TotalValueBytes.Add(int64(sv.ValueBytes()))
		t.Counters.TotalMetaBytes.Add(int64(sv.MetaBytes()))
		if !sv.Resident {
			t.Counters.NumNonResident.Add(1)
		}
	}
	if sv.Temp != TempNone {
		t.Counters.NumTemp.Add(1)
	}
}

// SoftDelete marks the stored value deleted, keeping metadata resident
// (spec §4.1 "softDelete").
func (t *Table) SoftDelete(key string) bool {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.softDeleteLocked(s, key)
}

// SoftDeleteLocked is the per-bucket-locked variant of SoftDelete.
func (t *Table) SoftDeleteLocked(key string) bool {
	return t.softDeleteLocked(t.shardFor(key), key)
}

func (t *Table) softDeleteLocked(s *shard, key string) bool {
	sv, ok := s.data.Load(key)
	if !ok {
		return false
	}
	if sv.Resident && sv.Item != nil {
		t.Counters.TotalValueBytes.Decr(int64(sv.ValueBytes()))
	}
	sv.Resident = false
	if sv.Item != nil {
		sv.Item.Deleted = true
		sv.Item.Value = nil
	}
	sv.Dirty = true
	return true
}

// Eject drops the value bytes, keeping metadata resident (spec §4.1
// "eject"). Only legal under FULL/VALUE_ONLY eviction policies.
func (t *Table) Eject(key string) bool {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.ejectLocked(s, key)
}

// EjectLocked is the per-bucket-locked variant of Eject.
func (t *Table) EjectLocked(key string) bool {
	return t.ejectLocked(t.shardFor(key), key)
}

func (t *Table) ejectLocked(s *shard, key string) bool {
	sv, ok := s.data.Load(key)
	if !ok || !sv.Resident {
		return false
	}
	t.Counters.TotalValueBytes.Decr(int64(sv.ValueBytes()))
	if sv.Item != nil {
		sv.Item.Value = nil
	}
	sv.Resident = false
	t.Counters.NumNonResident.Add(1)
	t.Counters.NumEjections.Add(1)
	return true
}

// RestoreValue restores a previously-ejected or background-fetched item's
// value bytes (spec §4.1 "restoreValue").
func (t *Table) RestoreValue(key string, item *base.Item) {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	t.restoreValueLocked(s, key, item)
}

// RestoreValueLocked is the per-bucket-locked variant of RestoreValue.
func (t *Table) RestoreValueLocked(key string, item *base.Item) {
	t.restoreValueLocked(t.shardFor(key), key, item)
}

func (t *Table) restoreValueLocked(s *shard, key string, item *base.Item) {
	sv, ok := s.data.Load(key)
	if !ok {
		sv = &StoredValue{}
		s.data.Store(key, sv)
		t.Counters.NumItems.Add(1)
	}
	wasResident := sv.Resident
	sv.Item = item
	sv.Resident = true
	sv.Temp = TempNone
	t.Counters.TotalValueBytes.Add(int64(sv.ValueBytes()))
	if !wasResident {
		t.Counters.NumNonResident.Decr(1)
	}
}

// RestoreMeta restores metadata only (no value bytes) for a full-eviction
// negative/metadata-only fetch result (spec §4.1 "restoreMeta").
func (t *Table) RestoreMeta(key string, item *base.Item) {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	t.restoreMetaLocked(s, key, item)
}

// RestoreMetaLocked is the per-bucket-locked variant of RestoreMeta.
func (t *Table) RestoreMetaLocked(key string, item *base.Item) {
	t.restoreMetaLocked(t.shardFor(key), key, item)
}

func (t *Table) restoreMetaLocked(s *shard, key string, item *base.Item) {
	sv, ok := s.data.Load(key)
	if !ok {
		sv = &StoredValue{}
		s.data.Store(key, sv)
		t.Counters.NumItems.Add(1)
		t.Counters.NumNonResident.Add(1)
	}
	sv.Item = item
	sv.Resident = false
	sv.Temp = TempNone
}

// LockFor returns the per-bucket mutex guarding key, for callers that need
// to hold it across several of the *Locked methods (e.g. the vbucket
// mutation path named in spec §4.3: "Locks the key bucket ... calls
// CheckpointManager.queueDirty under the held lock boundary").
func (t *Table) LockFor(key string) *sync.RWMutex {
	return &t.shardFor(key).mu
}

// Visit walks every stored value under its bucket lock, used by the
// eviction pager and expiry sweeper (spec §4.1 "visit").
func (t *Table) Visit(visitor func(key string, sv *StoredValue) bool) {
	t.structMu.RLock()
	shards := t.shards
	t.structMu.RUnlock()

	for _, s := range shards {
		s.mu.RLock()
		cont := true
		s.data.Range(func(key string, sv *StoredValue) bool {
			cont = visitor(key, sv)
			return cont
		})
		s.mu.RUnlock()
		if !cont {
			return
		}
	}
}

// Resize migrates every key into a table with newSize shards. Each step
// takes both the source shard's lock (read, since keys aren't removed from
// the old shard until copied) and briefly the structural lock to publish
// the new shard slice; reads of shards not yet migrated proceed unblocked
// throughout (spec §4.1 "resize... briefly blocks structural mutations but
// not reads of unaffected buckets").
func (t *Table) Resize(newSize int) {
	if newSize <= 0 {
		newSize = 1
	}
	newShards := make([]*shard, newSize)
	for i := range newShards {
		newShards[i] = newShard()
	}

	t.structMu.RLock()
	oldShards := t.shards
	t.structMu.RUnlock()

	for _, s := range oldShards {
		s.mu.RLock()
		s.data.Range(func(key string, sv *StoredValue) bool {
			dest := newShards[bucketIndex(key, newSize)]
			dest.data.Store(key, sv)
			return true
		})
		s.mu.RUnlock()
	}

	t.structMu.Lock()
	t.shards = newShards
	t.structMu.Unlock()
}

// NumShards reports the current shard count, for diagnostics/tests.
func (t *Table) NumShards() int {
	t.structMu.RLock()
	defer t.structMu.RUnlock()
	return len(t.shards)
}

// ResidentRatio returns residentItems/numItems, treating num_items == 0 as
// ratio 1.0 per spec §9's open-question resolution ("Treat num_items == 0
// as threshold not exceeded").
func (t *Table) ResidentRatio() float64 {
	total := t.Counters.NumItems.Get()
	if total == 0 {
		return 1.0
	}
	nonResident := t.Counters.NumNonResident.Get()
	resident := total - nonResident
	if resident < 0 {
		resident = 0
	}
	return float64(resident) / float64(total)
}

// MemorySize approximates the hash table's current memory footprint,
// consumed by the vbucket-wide memory-overhead counter (spec §5).
func (t *Table) MemorySize() int64 {
	return t.Counters.TotalValueBytes.Get() + t.Counters.TotalMetaBytes.Get()
}
