// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package vbucket

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/couchbase/vbucket-engine/base"
	"github.com/couchbase/vbucket-engine/hashtable"
)

// bgFetchEntry coalesces every caller currently waiting on the same
// outstanding background fetch (spec §3 "Background-Fetch Entry").
type bgFetchEntry struct {
	mu       sync.Mutex
	metaOnly bool
	waiters  []interface{}
}

// bgFetchMap is the per-vbucket pending-fetch map, backed by xsync.MapOf
// the same way hashtable shards are — a single hot map of outstanding
// fetches keyed by key, coalescing concurrent readers of the same key
// (spec §3, §4.3 "Background fetch coalescing").
type bgFetchMap struct {
	m *xsync.MapOf[string, *bgFetchEntry]
}

func newBGFetchMap() *bgFetchMap {
	return &bgFetchMap{m: xsync.NewMapOf[string, *bgFetchEntry]()}
}

// registerOrCoalesce appends cookie to the fetch entry for key, creating
// one if absent. Returns true iff this call created the entry (i.e. a new
// fetch must be issued), false if it coalesced onto an in-flight one.
func (b *bgFetchMap) registerOrCoalesce(key string, metaOnly bool, cookie interface{}) bool {
	entry, loaded := b.m.LoadOrStore(key, &bgFetchEntry{metaOnly: metaOnly})
	entry.mu.Lock()
	entry.waiters = append(entry.waiters, cookie)
	entry.mu.Unlock()
	return !loaded
}

// complete removes and returns the coalesced waiter list for key, or nil
// if no fetch was outstanding.
func (b *bgFetchMap) complete(key string) []interface{} {
	entry, ok := b.m.LoadAndDelete(key)
	if !ok {
		return nil
	}
	entry.mu.Lock()
	waiters := entry.waiters
	entry.mu.Unlock()
	return waiters
}

// Get fetches key's live value (spec §4.3 "get"). Under full eviction, a
// non-resident miss probes the bloom filter: a negative probe synthesizes
// a miss without I/O; a positive probe coalesces onto (or starts) a
// background fetch and returns WouldBlock with cookie registered as a
// waiter.
func (vb *VBucket) Get(key base.DocKey, cookie interface{}) (*base.Item, base.Status) {
	switch vb.State() {
	case base.Dead:
		return nil, base.NotMyVBucket
	case base.Pending:
		vb.AddPendingOp(cookie)
		return nil, base.WouldBlock
	}

	k := key.String()
	lock := vb.HashTable.LockFor(k)
	lock.Lock()
	defer lock.Unlock()

	sv := vb.HashTable.FindLocked(k)
	if sv != nil && sv.Temp == hashtable.TempNonExistent {
		return nil, base.KeyNotFound
	}
	if sv != nil && sv.Item != nil && sv.Item.Deleted {
		return nil, base.KeyNotFound
	}
	if sv != nil && sv.Resident {
		if sv.Item == nil || sv.Item.Deleted {
			return nil, base.KeyNotFound
		}
		return sv.Item, base.Success
	}

	// Metadata present but the value has been ejected: the key is known to
	// exist (VALUE_ONLY or FULL eviction both keep metadata resident), so
	// the value must be restored unconditionally — no bloom probe, since
	// the bloom filter only short-circuits keys with no metadata at all.
	if sv != nil {
		isNew := vb.bgFetch.registerOrCoalesce(k, false, cookie)
		if isNew && vb.stats != nil {
			vb.stats.BGFetches.Inc(1)
		}
		return nil, base.WouldBlock
	}

	if vb.Policy != base.FullEviction {
		return nil, base.KeyNotFound
	}

	exists := vb.Bloom.MaybeKeyExists([]byte(k))
	if vb.stats != nil {
		vb.stats.BloomFPProbes.Inc(1)
	}
	if !exists {
		return nil, base.KeyNotFound
	}

	isNew := vb.bgFetch.registerOrCoalesce(k, true, cookie)
	if isNew {
		vb.HashTable.RestoreMetaLocked(k, nil)
		if placeholder := vb.HashTable.FindLocked(k); placeholder != nil {
			placeholder.Temp = hashtable.TempInitial
		}
		if vb.stats != nil {
			vb.stats.BGFetches.Inc(1)
		}
	}
	return nil, base.WouldBlock
}

// CompleteBGFetchForSingleItem applies the result of an outstanding
// background fetch under the bucket lock, promoting the TempInitial
// placeholder to a resident item or a TempNonExistent negative entry, and
// notifies every coalesced waiter exactly once (spec §4.3
// "completeBGFetchForSingleItem").
func (vb *VBucket) CompleteBGFetchForSingleItem(key base.DocKey, fetched *base.Item, found bool, startTime time.Time) {
	k := key.String()
	lock := vb.HashTable.LockFor(k)
	lock.Lock()

	var status base.Status
	if found {
		vb.HashTable.RestoreValueLocked(k, fetched)
		status = base.Success
	} else {
		vb.HashTable.RestoreMetaLocked(k, &base.Item{Key: key})
		if sv := vb.HashTable.FindLocked(k); sv != nil {
			sv.Temp = hashtable.TempNonExistent
		}
		status = base.KeyNotFound
	}
	lock.Unlock()

	vb.logger.Debugf("vbucket %d bg fetch for %s completed in %s (found=%v)", vb.ID, k, time.Since(startTime), found)

	for _, cookie := range vb.bgFetch.complete(k) {
		vb.notify(cookie, status)
	}
}
