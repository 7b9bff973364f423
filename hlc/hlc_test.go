// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package hlc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNowOrBumpMonotonic(t *testing.T) {
	clock := New(5*time.Second, 5*time.Second)
	fixed := time.Unix(1700000000, 0)
	clock.SetNowFunc(func() time.Time { return fixed })

	a := clock.NowOrBump(0)
	b := clock.NowOrBump(0)
	require.Greater(t, b, a)
}

func TestNowOrBumpExternalCasAdvances(t *testing.T) {
	clock := New(5*time.Second, 5*time.Second)
	fixed := time.Unix(1700000000, 0)
	clock.SetNowFunc(func() time.Time { return fixed })

	external := encode(fixed.Add(time.Hour))
	got := clock.NowOrBump(external)
	assert.Greater(t, got, external)
}

func TestDriftCountsAheadAndBehind(t *testing.T) {
	clock := New(time.Millisecond, time.Millisecond)
	fixed := time.Unix(1700000000, 0)
	clock.SetNowFunc(func() time.Time { return fixed })

	// external far ahead of physical time
	clock.NowOrBump(encode(fixed.Add(time.Hour)))
	ahead, behind := clock.DriftStats()
	assert.Equal(t, int64(1), ahead)
	assert.Equal(t, int64(0), behind)

	clock.ResetStats()
	ahead, behind = clock.DriftStats()
	assert.Equal(t, int64(0), ahead)
	assert.Equal(t, int64(0), behind)
}

func TestResetStatsDoesNotResetLastStamp(t *testing.T) {
	clock := New(5*time.Second, 5*time.Second)
	fixed := time.Unix(1700000000, 0)
	clock.SetNowFunc(func() time.Time { return fixed })

	first := clock.NowOrBump(0)
	clock.ResetStats()
	assert.Equal(t, first, clock.MaxCas())
}
