// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package checkpoint

// Cursor is a reference into a specific Checkpoint at a specific position
// (spec §3 "Cursor"). Modeled as (checkpointID, itemIndex) rather than a
// pointer into the Checkpoint, per spec §9's design note, so Checkpoints
// can be reclaimed (garbage collected from the manager's arena) without a
// dangling back-reference.
type Cursor struct {
	Name          string
	CheckpointID  uint64
	ItemIndex     int // index of the next item this cursor has not yet read
	Replication   bool
}
