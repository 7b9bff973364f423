// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

// Package vbucket implements the coordinator that owns a single vBucket's
// HashTable, CheckpointManager, HLC, FailoverTable and BloomFilter pair,
// mediates its state machine, and serves client mutation/read requests
// (spec §3 "VBucket", §4.3). Grounded on the teacher's dcp.DcpDriver: a
// state value guarded by a dedicated sync.RWMutex with getState/setState
// accessors, and a finChan closed once on shutdown, generalized from
// "drives a DCP client fan-out" to "coordinates one vbucket's storage and
// replication surface".
package vbucket

import (
	"sync"
	"time"

	"github.com/couchbase/vbucket-engine/adapters"
	"github.com/couchbase/vbucket-engine/base"
	"github.com/couchbase/vbucket-engine/bloom"
	"github.com/couchbase/vbucket-engine/checkpoint"
	"github.com/couchbase/vbucket-engine/enginelog"
	"github.com/couchbase/vbucket-engine/failover"
	"github.com/couchbase/vbucket-engine/hashtable"
	"github.com/couchbase/vbucket-engine/hlc"
	"github.com/couchbase/vbucket-engine/metrics"
)

// opType distinguishes the three mutation semantics of spec §4.3.
type opType uint8

const (
	opSet opType = iota
	opAdd
	opReplace
)

// VBucket owns one partition of the keyspace (spec §2, §3).
type VBucket struct {
	ID uint16

	stateLock sync.RWMutex
	state     base.VBState

	HashTable  *hashtable.Table
	Checkpoint *checkpoint.Manager
	Clock      *hlc.Clock
	Failover   *failover.Table
	Bloom      *bloom.Pair
	Policy     base.EvictionPolicy

	adaptiveTimeout *metrics.AdaptiveTimeout
	stats           *metrics.Registry

	pendingOpsMu sync.Mutex
	pendingOps   []interface{}

	waitersMu sync.Mutex
	waiters   []*highPriorityWaiter

	bgFetch *bgFetchMap

	notifier adapters.ClientNotifier
	logger   enginelog.Logger

	finChan chan struct{}
}

// Config bundles the dependencies a VBucket is constructed with.
type Config struct {
	ID              uint16
	Policy          base.EvictionPolicy
	HighSeqno       uint64
	Clock           *hlc.Clock
	AdaptiveTimeout *metrics.AdaptiveTimeout
	Stats           *metrics.Registry
	Notifier        adapters.ClientNotifier
	Logger          enginelog.Logger
	NumShards       int
	BloomExpected   uint64
	BloomFPRate     float64
	FailoverCap     int
}

// New constructs a VBucket in the Pending state (the original source's
// vbuckets are constructed "pending" and must be explicitly transitioned,
// matching the teacher's DcpDriver starting in DriverStateNew).
func New(cfg Config) *VBucket {
	logger := cfg.Logger
	if logger == nil {
		logger = enginelog.NewNop()
	}
	stats := cfg.Stats
	if stats == nil {
		stats = metrics.NewRegistry()
	}
	numShards := cfg.NumShards
	if numShards <= 0 {
		numShards = 8
	}

	vb := &VBucket{
		ID:              cfg.ID,
		state:           base.Pending,
		HashTable:       hashtable.New(numShards, cfg.Policy),
		Checkpoint:      checkpoint.NewManager(cfg.HighSeqno, cfg.Clock, logger),
		Clock:           cfg.Clock,
		Failover:        failover.New(cfg.FailoverCap),
		Bloom:           bloom.NewPair(cfg.BloomExpected, cfg.BloomFPRate),
		Policy:          cfg.Policy,
		adaptiveTimeout: cfg.AdaptiveTimeout,
		stats:           stats,
		bgFetch:         newBGFetchMap(),
		notifier:        cfg.Notifier,
		logger:          logger,
		finChan:         make(chan struct{}),
	}
	if cfg.Policy == base.FullEviction {
		vb.Bloom.CreateFilter()
	}
	return vb
}

// State returns the current vbucket state.
func (vb *VBucket) State() base.VBState {
	vb.stateLock.RLock()
	defer vb.stateLock.RUnlock()
	return vb.state
}

// SetState transitions the vbucket, notifying waiters and pending ops as
// spec §4.3 requires: Active -> non-Active fails every pending op with
// NotMyVBucket and every high-priority waiter with TempFail; any -> Active
// ensures the open checkpoint id is >= 2.
func (vb *VBucket) SetState(newState base.VBState) {
	vb.stateLock.Lock()
	old := vb.state
	vb.state = newState
	vb.stateLock.Unlock()

	if old == base.Active && newState != base.Active {
		vb.failAllPendingOps(base.NotMyVBucket)
		vb.failAllHighPriorityWaiters(base.TempFail)
	}
	if newState == base.Active {
		vb.Checkpoint.EnsureMinOpenCheckpointID(2)
	}
	vb.logger.Infof("vbucket %d transitioned %s -> %s", vb.ID, old, newState)
}

// PushNewBranch mints a new vbuuid and pushes it onto the failover table,
// used when a state transition to Active implies a new replication branch
// (spec §3 "FailoverTable").
func (vb *VBucket) PushNewBranch() {
	vb.Failover.Push(failover.Entry{UUID: failover.MintUUID(), Seqno: vb.Checkpoint.HighSeqno()})
}

// Set unconditionally stores item (spec §4.3 "set").
func (vb *VBucket) Set(item *base.Item) (base.Status, error) {
	return vb.mutate(opSet, item)
}

// Add stores item only if the key currently has no live version.
func (vb *VBucket) Add(item *base.Item) (base.Status, error) {
	return vb.mutate(opAdd, item)
}

// Replace stores item only if the key currently has a live version.
func (vb *VBucket) Replace(item *base.Item) (base.Status, error) {
	return vb.mutate(opReplace, item)
}

func (vb *VBucket) mutate(op opType, item *base.Item) (base.Status, error) {
	if vb.State() != base.Active {
		return base.NotMyVBucket, nil
	}

	key := item.Key.String()
	lock := vb.HashTable.LockFor(key)
	lock.Lock()
	defer lock.Unlock()

	existing := vb.HashTable.FindLocked(key)
	liveExisting := existing != nil && existing.Item != nil && !existing.Item.Deleted

	switch op {
	case opAdd:
		if liveExisting {
			return base.KeyExists, nil
		}
	case opReplace:
		if !liveExisting {
			return base.KeyNotFound, nil
		}
	}

	wake, err := vb.Checkpoint.QueueDirty(item, true, true)
	if err != nil {
		return base.FatalStatus, err
	}

	vb.HashTable.InsertOrReplaceLocked(key, hashtable.NewStoredValue(item))
	if vb.Policy == base.FullEviction {
		vb.Bloom.AddKey([]byte(key))
	}

	if wake {
		vb.notifyNewSeqno()
	}
	return base.Success, nil
}

// Delete soft-deletes key, queuing the tombstone (spec §4.3 "delete").
func (vb *VBucket) Delete(key base.DocKey) (base.Status, error) {
	if vb.State() != base.Active {
		return base.NotMyVBucket, nil
	}

	k := key.String()
	lock := vb.HashTable.LockFor(k)
	lock.Lock()
	defer lock.Unlock()

	existing := vb.HashTable.FindLocked(k)
	if existing == nil || existing.Item == nil || existing.Item.Deleted {
		return base.KeyNotFound, nil
	}

	tombstone := existing.Item.Clone()
	tombstone.Deleted = true
	tombstone.Value = nil

	wake, err := vb.Checkpoint.QueueDirty(tombstone, true, true)
	if err != nil {
		return base.FatalStatus, err
	}
	vb.HashTable.SoftDeleteLocked(k)

	if wake {
		vb.notifyNewSeqno()
	}
	return base.Success, nil
}

// notifyNewSeqno is the hook a flusher/replicator wakes on; left as a
// logger line since waking those threads is this module's external
// collaborator's responsibility (spec §6 adapters), not this module's.
func (vb *VBucket) notifyNewSeqno() {
	vb.logger.Debugf("vbucket %d high seqno now %d", vb.ID, vb.Checkpoint.HighSeqno())
}

// FetchValidValue returns the stored value for key if live and unexpired.
// An expired live item found in the Active state is soft-deleted and its
// expiration queued instead of being reported as a hit (spec §4.3
// "fetchValidValue", §3 Supplemented features).
func (vb *VBucket) FetchValidValue(key base.DocKey, nowSeconds uint32) (*hashtable.StoredValue, base.Status) {
	k := key.String()
	lock := vb.HashTable.LockFor(k)
	lock.Lock()
	defer lock.Unlock()

	sv := vb.HashTable.FindLocked(k)
	if sv == nil || sv.Item == nil || sv.Item.Deleted {
		return nil, base.KeyNotFound
	}
	if sv.Resident && sv.Item.IsExpired(nowSeconds) {
		if vb.State() == base.Active {
			expired := sv.Item.Clone()
			expired.Deleted = true
			expired.Value = nil
			if _, err := vb.Checkpoint.QueueDirty(expired, true, true); err == nil {
				vb.HashTable.SoftDeleteLocked(k)
			}
		}
		return nil, base.KeyNotFound
	}
	return sv, base.Success
}

// EvictValue drops a resident value's bytes while keeping its metadata, the
// pager operation named in spec §4.3 ("the eviction pager visits resident
// items and ejects cold ones' values"). Valid under both VALUE_ONLY and
// FULL_EVICTION; a later Get for key restores the value via a background
// fetch. Returns false if key has no resident value to eject.
func (vb *VBucket) EvictValue(key base.DocKey) bool {
	k := key.String()
	lock := vb.HashTable.LockFor(k)
	lock.Lock()
	defer lock.Unlock()
	return vb.HashTable.EjectLocked(k)
}

// Close releases the vbucket's background goroutines/state, idempotent.
func (vb *VBucket) Close() {
	select {
	case <-vb.finChan:
	default:
		close(vb.finChan)
	}
}

// RecordPersistenceLatency feeds an observed flush latency into the
// process-wide adaptive timeout (spec §4.3 "Adaptive persistence
// timeout").
func (vb *VBucket) RecordPersistenceLatency(d time.Duration) {
	if vb.adaptiveTimeout != nil {
		vb.adaptiveTimeout.Widen(d)
	}
}
