// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

// Package checkpoint implements the ordered queue of dirty items grouped
// into snapshot checkpoints, bySeqno minting, and cursor tracking for the
// flusher and replication streams (spec §3 "Checkpoint"/"Cursor", §4.2
// "CheckpointManager"). It is grounded directly on the teacher's
// dcp.CheckpointManager / dcp.Checkpoint (dcp/CheckpointManager.go,
// dcp/Checkpoint.go): same per-manager mutex, same persisted-JSON-document
// shape — generalized from "track a DCP
// consumer's replay progress" to "mint and hold the authoritative order of
// mutations accepted by this vbucket". Cursors are modeled per spec §9's
// design note as (checkpointID, itemIndex) pairs owned by the Manager
// rather than back-references into Checkpoint, to avoid a cyclic
// cursor<->checkpoint reference.
package checkpoint

import (
	"math"

	"github.com/couchbase/vbucket-engine/base"
)

const PersistenceCursor = "persistence"

// State is a Checkpoint's lifecycle tag (spec §3: "exactly one Open
// checkpoint per vBucket at any moment").
type State uint8

const (
	Open State = iota
	Closed
)

// Checkpoint is a sequential buffer of queued items between two snapshot
// boundaries (spec §3).
type Checkpoint struct {
	ID            uint64
	SnapshotStart uint64
	SnapshotEnd   uint64
	State         State
	Items         []*base.Item
	KeyIndex      map[string]int // key -> index into Items, latest reachable version
}

func newCheckpoint(id, start uint64) *Checkpoint {
	return &Checkpoint{
		ID:            id,
		SnapshotStart: start,
		SnapshotEnd:   math.MaxUint64,
		State:         Open,
		KeyIndex:      make(map[string]int),
	}
}

// finalize closes the checkpoint, collapsing the "not yet bounded" sentinel
// down to an empty range if nothing was ever queued into it.
func (c *Checkpoint) finalize() {
	if c.SnapshotEnd == math.MaxUint64 {
		if c.SnapshotStart == 0 {
			c.SnapshotEnd = 0
		} else {
			c.SnapshotEnd = c.SnapshotStart - 1
		}
	}
	c.State = Closed
}
