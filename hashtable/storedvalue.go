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
	"time"

	"github.com/couchbase/vbucket-engine/base"
)

// TempState tags the placeholder states a StoredValue can be in while a
// background fetch is outstanding (spec §3 "StoredValue").
type TempState uint8

const (
	TempNone TempState = iota
	TempInitial
	TempNonExistent
)

// StoredValue is the in-memory record for a key: either the full Item, or
// just its metadata when the value has been ejected (non-resident).
type StoredValue struct {
	Item        *base.Item
	Resident    bool
	Dirty       bool
	NRU         uint8
	LockedUntil time.Time
	Temp        TempState
}

// NewStoredValue wraps a freshly-written item as a resident, dirty value.
func NewStoredValue(item *base.Item) *StoredValue {
	return &StoredValue{Item: item, Resident: true, Dirty: true}
}

// MetaOnly reports whether this StoredValue currently holds no value bytes.
func (sv *StoredValue) MetaOnly() bool {
	return !sv.Resident
}

// IsLocked reports whether the value is under a get-and-lock hold.
func (sv *StoredValue) IsLocked(now time.Time) bool {
	return sv.LockedUntil.After(now)
}

// ValueBytes returns the resident value size, 0 if non-resident.
func (sv *StoredValue) ValueBytes() int {
	if !sv.Resident || sv.Item == nil {
		return 0
	}
	return len(sv.Item.Value)
}

// MetaBytes is a fixed approximation of per-item metadata overhead (key,
// cas, seqno, flags, expiry, revseqno — no value bytes).
func (sv *StoredValue) MetaBytes() int {
	if sv.Item == nil {
		return 0
	}
	return len(sv.Item.Key.Key) + 40
}
