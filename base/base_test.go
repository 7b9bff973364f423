// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package base

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVBStateWireRoundTrip(t *testing.T) {
	for _, s := range []VBState{Active, Replica, Pending, Dead} {
		buf := s.EncodeWire()
		decoded, err := DecodeVBState(buf[:])
		require.NoError(t, err)
		assert.Equal(t, s, decoded)
	}
}

func TestDecodeVBStateRejectsWrongLength(t *testing.T) {
	_, err := DecodeVBState([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDecodeVBStateRejectsUnknownValue(t *testing.T) {
	_, err := DecodeVBState([]byte{0, 0, 0, 99})
	assert.Error(t, err)
}

func TestCanAcceptClientWrites(t *testing.T) {
	assert.True(t, Active.CanAcceptClientWrites())
	assert.False(t, Replica.CanAcceptClientWrites())
	assert.False(t, Pending.CanAcceptClientWrites())
	assert.False(t, Dead.CanAcceptClientWrites())
}

func TestItemIsExpired(t *testing.T) {
	never := &Item{Expiry: 0}
	assert.False(t, never.IsExpired(1<<31))

	future := &Item{Expiry: 1000}
	assert.False(t, future.IsExpired(999))
	assert.True(t, future.IsExpired(1000))
	assert.True(t, future.IsExpired(1001))
}

func TestItemCloneIsDeepCopy(t *testing.T) {
	orig := &Item{Key: DocKey{Key: "k"}, Value: []byte("v")}
	clone := orig.Clone()
	clone.Value[0] = 'x'
	assert.Equal(t, "v", string(orig.Value))
	assert.Equal(t, "x", string(clone.Value))
}

func TestItemCloneNil(t *testing.T) {
	var it *Item
	assert.Nil(t, it.Clone())
}

func TestDocKeyString(t *testing.T) {
	k := DocKey{Key: "foo", CollectionID: 7}
	assert.Equal(t, "cid:7/foo", k.String())
}

func TestStatusStringKnownAndUnknown(t *testing.T) {
	assert.Equal(t, "Success", Success.String())
	assert.Equal(t, "KeyNotFound", KeyNotFound.String())
	assert.Equal(t, "WouldBlock", WouldBlock.String())
	assert.Contains(t, Status(0x1234).String(), "0x1234")
}

func TestNewFaultFormatsMessage(t *testing.T) {
	err := NewFault("hashtable", "bucket %d out of range", 7)
	assert.EqualError(t, err, "hashtable: logic fault: bucket 7 out of range")
}
