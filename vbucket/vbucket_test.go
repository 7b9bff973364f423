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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchbase/vbucket-engine/base"
	"github.com/couchbase/vbucket-engine/hlc"
	"github.com/couchbase/vbucket-engine/metrics"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []struct {
		cookie interface{}
		status base.Status
	}
}

func (n *recordingNotifier) NotifyIOComplete(cookie interface{}, status base.Status) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, struct {
		cookie interface{}
		status base.Status
	}{cookie, status})
}

func (n *recordingNotifier) StoreEngineSpecific(cookie interface{}, ptr interface{}) {}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func newTestVBucket(policy base.EvictionPolicy, notifier *recordingNotifier) *VBucket {
	clock := hlc.New(5*time.Second, 5*time.Second)
	vb := New(Config{
		ID:              0,
		Policy:          policy,
		Clock:           clock,
		AdaptiveTimeout: metrics.NewAdaptiveTimeout(10*time.Second, 30*time.Second),
		Stats:           metrics.NewRegistry(),
		Notifier:        notifier,
		NumShards:       4,
		BloomExpected:   1000,
		BloomFPRate:     0.01,
		FailoverCap:     25,
	})
	vb.SetState(base.Active)
	return vb
}

func testItem(key, value string) *base.Item {
	return &base.Item{Key: base.DocKey{Key: key}, Value: []byte(value)}
}

func TestBasicSetGet(t *testing.T) {
	vb := newTestVBucket(base.ValueOnly, &recordingNotifier{})

	status, err := vb.Set(testItem("a", "1"))
	require.NoError(t, err)
	assert.Equal(t, base.Success, status)

	item, status := vb.Get(base.DocKey{Key: "a"}, "cookie1")
	assert.Equal(t, base.Success, status)
	require.NotNil(t, item)
	assert.Equal(t, "1", string(item.Value))
	assert.EqualValues(t, 1, item.BySeqno)

	items, err := vb.Checkpoint.GetAllItemsForCursor("persistence")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "1", string(items[0].Value))
	assert.EqualValues(t, 1, items[0].BySeqno)
}

func TestDedupWithinCheckpoint(t *testing.T) {
	vb := newTestVBucket(base.ValueOnly, &recordingNotifier{})

	_, err := vb.Set(testItem("a", "1"))
	require.NoError(t, err)
	_, err = vb.Set(testItem("a", "2"))
	require.NoError(t, err)
	_, err = vb.Set(testItem("b", "3"))
	require.NoError(t, err)

	items, err := vb.Checkpoint.GetAllItemsForCursor("persistence")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "2", string(items[0].Value))
	assert.EqualValues(t, 2, items[0].BySeqno)
	assert.Equal(t, "3", string(items[1].Value))
	assert.EqualValues(t, 3, items[1].BySeqno)
	assert.EqualValues(t, 3, vb.Checkpoint.HighSeqno())
}

func TestAddThenAddFails(t *testing.T) {
	vb := newTestVBucket(base.ValueOnly, &recordingNotifier{})

	status, err := vb.Add(testItem("k", "v1"))
	require.NoError(t, err)
	assert.Equal(t, base.Success, status)

	status, err = vb.Add(testItem("k", "v2"))
	require.NoError(t, err)
	assert.Equal(t, base.KeyExists, status)

	item, status := vb.Get(base.DocKey{Key: "k"}, "c1")
	assert.Equal(t, base.Success, status)
	assert.Equal(t, "v1", string(item.Value))
}

func TestReplaceRequiresExisting(t *testing.T) {
	vb := newTestVBucket(base.ValueOnly, &recordingNotifier{})

	status, err := vb.Replace(testItem("missing", "v"))
	require.NoError(t, err)
	assert.Equal(t, base.KeyNotFound, status)
}

func TestBackgroundFetchCoalescing(t *testing.T) {
	notifier := &recordingNotifier{}
	vb := newTestVBucket(base.FullEviction, notifier)

	key := base.DocKey{Key: "x"}
	// x is non-resident: no metadata in memory, but the bloom filter still
	// reports that it may exist on disk.
	vb.Bloom.AddKey([]byte(key.String()))

	_, status1 := vb.Get(key, "cookie1")
	_, status2 := vb.Get(key, "cookie2")
	assert.Equal(t, base.WouldBlock, status1)
	assert.Equal(t, base.WouldBlock, status2)

	vb.CompleteBGFetchForSingleItem(key, testItem("x", "fetched"), true, time.Now())
	assert.Equal(t, 2, notifier.count())
}

func TestValueOnlyEjectTriggersBackgroundFetchOnGet(t *testing.T) {
	notifier := &recordingNotifier{}
	vb := newTestVBucket(base.ValueOnly, notifier)

	key := base.DocKey{Key: "x"}
	_, err := vb.Set(testItem("x", "1"))
	require.NoError(t, err)

	require.True(t, vb.EvictValue(key))

	_, status := vb.Get(key, "cookie1")
	assert.Equal(t, base.WouldBlock, status)
	assert.Equal(t, 0, notifier.count())

	vb.CompleteBGFetchForSingleItem(key, testItem("x", "1"), true, time.Now())
	assert.Equal(t, 1, notifier.count())
	assert.Equal(t, base.Success, notifier.calls[0].status)
}

func TestBloomFilterShortCircuitsMiss(t *testing.T) {
	notifier := &recordingNotifier{}
	vb := newTestVBucket(base.FullEviction, notifier)

	_, status := vb.Get(base.DocKey{Key: "never-written"}, "cookie1")
	assert.Equal(t, base.KeyNotFound, status)
	assert.Equal(t, 0, notifier.count())
}

func TestSetStateFailsHighPriorityWaiters(t *testing.T) {
	notifier := &recordingNotifier{}
	vb := newTestVBucket(base.ValueOnly, notifier)

	vb.AddHighPriorityVBEntry(10, "w1", base.BySeqno)
	vb.AddHighPriorityVBEntry(20, "w2", base.BySeqno)
	vb.AddHighPriorityVBEntry(30, "w3", base.BySeqno)

	vb.SetState(base.Dead)

	require.Equal(t, 3, notifier.count())
	for _, c := range notifier.calls {
		assert.Equal(t, base.TempFail, c.status)
	}
}

func TestNotifyOnPersistenceResolvesReachedWaiters(t *testing.T) {
	notifier := &recordingNotifier{}
	vb := newTestVBucket(base.ValueOnly, notifier)

	vb.AddHighPriorityVBEntry(5, "w1", base.BySeqno)
	vb.AddHighPriorityVBEntry(10, "w2", base.BySeqno)

	vb.NotifyOnPersistence(7, base.BySeqno)

	require.Equal(t, 1, notifier.count())
	assert.Equal(t, "w1", notifier.calls[0].cookie)
	assert.Equal(t, base.Success, notifier.calls[0].status)
}

func TestExpiredItemSoftDeletesOnRead(t *testing.T) {
	vb := newTestVBucket(base.ValueOnly, &recordingNotifier{})

	item := testItem("expiring", "v")
	item.Expiry = 100
	_, err := vb.Set(item)
	require.NoError(t, err)

	sv, status := vb.FetchValidValue(base.DocKey{Key: "expiring"}, 200)
	assert.Nil(t, sv)
	assert.Equal(t, base.KeyNotFound, status)

	_, status = vb.Get(base.DocKey{Key: "expiring"}, "c1")
	assert.Equal(t, base.KeyNotFound, status)
}

func TestNonActiveVBucketRejectsWrites(t *testing.T) {
	vb := newTestVBucket(base.ValueOnly, &recordingNotifier{})
	vb.SetState(base.Replica)

	status, err := vb.Set(testItem("a", "1"))
	require.NoError(t, err)
	assert.Equal(t, base.NotMyVBucket, status)
}
