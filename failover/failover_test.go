// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package failover

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushOrdersNewestFirst(t *testing.T) {
	table := New(10)
	table.Push(Entry{UUID: 1, Seqno: 0})
	table.Push(Entry{UUID: 2, Seqno: 10})

	entries := table.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(2), entries[0].UUID)
	assert.Equal(t, uint64(1), entries[1].UUID)
	assert.Equal(t, uint64(2), table.LatestUUID())
}

func TestCapacityTrimsTail(t *testing.T) {
	table := New(2)
	table.Push(Entry{UUID: 1, Seqno: 0})
	table.Push(Entry{UUID: 2, Seqno: 10})
	table.Push(Entry{UUID: 3, Seqno: 20})

	entries := table.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(3), entries[0].UUID)
	assert.Equal(t, uint64(2), entries[1].UUID)
}

func TestPruneAbove(t *testing.T) {
	table := New(10)
	table.Push(Entry{UUID: 1, Seqno: 5})
	table.Push(Entry{UUID: 2, Seqno: 15})
	table.Push(Entry{UUID: 3, Seqno: 25})

	table.PruneAbove(15)
	entries := table.Entries()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.LessOrEqual(t, e.Seqno, uint64(15))
	}
}

func TestJSONRoundTrip(t *testing.T) {
	table := New(10)
	table.Push(Entry{UUID: MintUUID(), Seqno: 5})
	table.Push(Entry{UUID: MintUUID(), Seqno: 42})

	data, err := table.ToJSON()
	require.NoError(t, err)

	restored := New(10)
	require.NoError(t, restored.FromJSON(data))

	assert.True(t, table.Equal(restored))
}

func TestMintUUIDNonZeroAndVaries(t *testing.T) {
	a := MintUUID()
	b := MintUUID()
	assert.NotZero(t, a)
	assert.NotZero(t, b)
	assert.NotEqual(t, a, b)
}
