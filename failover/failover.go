// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

// Package failover implements the ordered (vbuuid, seqno) log used for
// replica reconciliation (spec §3, §4.6). It is grounded on the teacher's
// dcp.CheckpointDoc{Checkpoints map[uint16]*Checkpoint} JSON-document
// pattern (dcp/Checkpoint.go), the only persisted-JSON shape in the
// teacher; minting new vbuuids reuses google/uuid rather than a hand-rolled
// random generator.
package failover

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Entry is one branch point in the table.
type Entry struct {
	UUID  uint64 `json:"uuid"`
	Seqno uint64 `json:"seq"`
}

// Table is an ordered list of Entry, newest first, capacity-bounded.
type Table struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
}

// New creates an empty Table with the given capacity bound (entries beyond
// capacity are trimmed from the tail, i.e. the oldest are dropped).
func New(capacity int) *Table {
	if capacity <= 0 {
		capacity = 25
	}
	return &Table{capacity: capacity}
}

// MintUUID generates a new, statistically-unique 64-bit vbuuid from a
// random UUID, used whenever a vBucket becomes Active after a state
// transition implying a new branch (spec §3).
func MintUUID() uint64 {
	id := uuid.New()
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(id[i])
	}
	if v == 0 {
		v = 1
	}
	return v
}

// Push adds a new entry at the front, trimming the tail if over capacity.
func (t *Table) Push(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append([]Entry{e}, t.entries...)
	if len(t.entries) > t.capacity {
		t.entries = t.entries[:t.capacity]
	}
}

// LatestUUID returns the most recently pushed vbuuid, or 0 if the table is
// empty.
func (t *Table) LatestUUID() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.entries) == 0 {
		return 0
	}
	return t.entries[0].UUID
}

// Entries returns a copy of the ordered entry list, newest first.
func (t *Table) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// PruneAbove drops every entry whose seqno exceeds seqno, used on replica
// rollback to discard branches that never committed locally.
func (t *Table) PruneAbove(seqno uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.entries[:0:0]
	for _, e := range t.entries {
		if e.Seqno <= seqno {
			kept = append(kept, e)
		}
	}
	t.entries = kept
}

// ToJSON serializes the table as an ordered array of {uuid, seq}, newest
// first (spec §6 "FailoverTable JSON").
func (t *Table) ToJSON() ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return json.Marshal(t.entries)
}

// FromJSON replaces the table's contents with the decoded array.
func (t *Table) FromJSON(data []byte) error {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = entries
	return nil
}

// Equal compares two tables entry-by-entry, used by the JSON round-trip
// property test (spec §8: "fromJSON(toJSON(t)) == t").
func (t *Table) Equal(other *Table) bool {
	a := t.Entries()
	b := other.Entries()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
