// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package hashtable

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchbase/vbucket-engine/base"
)

func makeItem(key, value string) *base.Item {
	return &base.Item{Key: base.DocKey{Key: key}, Value: []byte(value)}
}

func TestInsertFindRoundTrip(t *testing.T) {
	tbl := New(8, base.ValueOnly)
	tbl.InsertOrReplace("a", NewStoredValue(makeItem("a", "1")))

	sv := tbl.Find("a")
	require.NotNil(t, sv)
	assert.Equal(t, "1", string(sv.Item.Value))
	assert.EqualValues(t, 1, tbl.Counters.NumItems.Get())
}

func TestSoftDeleteKeepsMetadata(t *testing.T) {
	tbl := New(4, base.ValueOnly)
	tbl.InsertOrReplace("a", NewStoredValue(makeItem("a", "1")))
	require.True(t, tbl.SoftDelete("a"))

	sv := tbl.Find("a")
	require.NotNil(t, sv)
	assert.True(t, sv.Item.Deleted)
	assert.False(t, sv.Resident)
}

func TestEjectDropsValueKeepsMeta(t *testing.T) {
	tbl := New(4, base.FullEviction)
	tbl.InsertOrReplace("a", NewStoredValue(makeItem("a", "1")))
	require.True(t, tbl.Eject("a"))

	sv := tbl.Find("a")
	require.NotNil(t, sv)
	assert.False(t, sv.Resident)
	assert.EqualValues(t, 1, tbl.Counters.NumEjections.Get())
}

func TestResizePreservesAllKeys(t *testing.T) {
	tbl := New(2, base.ValueOnly)
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("k-%d", i)
		tbl.InsertOrReplace(key, NewStoredValue(makeItem(key, "v")))
	}

	tbl.Resize(16)
	assert.Equal(t, 16, tbl.NumShards())

	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("k-%d", i)
		assert.NotNil(t, tbl.Find(key), "key %s should survive resize", key)
	}
}

func TestResidentRatioZeroItemsIsOne(t *testing.T) {
	tbl := New(4, base.FullEviction)
	assert.Equal(t, 1.0, tbl.ResidentRatio())
}

func TestConcurrentAccessDuringResize(t *testing.T) {
	tbl := New(4, base.ValueOnly)
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("k-%d", i)
		tbl.InsertOrReplace(key, NewStoredValue(makeItem(key, "v")))
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			key := fmt.Sprintf("k-%d", i%50)
			_ = tbl.Find(key)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		tbl.Resize(32)
		close(stop)
	}()

	wg.Wait()
	assert.Equal(t, 32, tbl.NumShards())
}
