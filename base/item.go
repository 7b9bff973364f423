// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package base

import "fmt"

// DocKey is a key plus the collection it lives in (spec §3: "The key is a
// byte string plus a collection identifier").
type DocKey struct {
	Key          string
	CollectionID uint32
}

func (k DocKey) String() string {
	return fmt.Sprintf("cid:%d/%s", k.CollectionID, k.Key)
}

// Datatype mirrors the memcached datatype bitfield (raw, json, snappy, xattr).
type Datatype uint8

const (
	DatatypeRaw     Datatype = 0
	DatatypeJSON    Datatype = 1 << 0
	DatatypeSnappy  Datatype = 1 << 1
	DatatypeXattr   Datatype = 1 << 2
)

// Item is the unit of storage and replication (spec §3). Value is nil for a
// non-resident item (metadata only, evicted value) and for a deletion.
type Item struct {
	Key       DocKey
	Value     []byte
	Flags     uint32
	Expiry    uint32 // absolute unix seconds, 0 = never
	Datatype  Datatype
	Cas       uint64
	BySeqno   uint64
	RevSeqno  uint64
	Deleted   bool
}

// Clone returns a deep copy safe to hand to a caller outside the hash-table
// lock.
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	clone := *it
	if it.Value != nil {
		clone.Value = make([]byte, len(it.Value))
		copy(clone.Value, it.Value)
	}
	return &clone
}

// IsExpired reports whether the item's expiry has passed as of nowSeconds.
// An expiry of 0 means "never expires".
func (it *Item) IsExpired(nowSeconds uint32) bool {
	return it.Expiry != 0 && it.Expiry <= nowSeconds
}
