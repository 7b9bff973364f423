// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package bloom

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddAndMaybeKeyExists(t *testing.T) {
	f := New(1000, 0.01)
	f.AddKey([]byte("hello"))
	assert.True(t, f.MaybeKeyExists([]byte("hello")))
}

func TestFalsePositiveRateBounded(t *testing.T) {
	const n = 2000
	const p = 0.01
	f := New(n, p)
	for i := 0; i < n; i++ {
		f.AddKey([]byte(fmt.Sprintf("present-%d", i)))
	}
	var falsePositives int
	const probes = 20000
	for i := 0; i < probes; i++ {
		if f.MaybeKeyExists([]byte(fmt.Sprintf("absent-%d", i))) {
			falsePositives++
		}
	}
	rate := float64(falsePositives) / float64(probes)
	assert.LessOrEqual(t, rate, p*3, "empirical FP rate should stay within a small multiple of configured p")
}

func TestPairSwapDuringCompactionMirrorsWrites(t *testing.T) {
	pair := NewPair(1000, 0.01)
	pair.CreateFilter()

	k1 := []byte("k1")
	k2 := []byte("k2")

	pair.AddKey(k1)
	pair.InitTempFilter(1000, 0.01)
	pair.AddToTempFilter(k1) // the compaction scan repopulates temp with k1 as it visits it on disk
	pair.AddKey(k2)          // mirrored to both main and temp while compacting
	pair.SwapFilter()

	assert.True(t, pair.MaybeKeyExists(k2))
	assert.True(t, pair.MaybeKeyExists(k1), "the compaction scan's addToTempFilter calls repopulate temp, so k1 survives the swap too")
}

func TestPairSwapDiscardedWhenDisabledMidCompaction(t *testing.T) {
	pair := NewPair(1000, 0.01)
	pair.CreateFilter()
	pair.InitTempFilter(1000, 0.01)
	pair.Disable()
	pair.SwapFilter()

	assert.Equal(t, Disabled, pair.Status())
}
