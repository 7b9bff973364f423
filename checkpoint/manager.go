// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package checkpoint

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/couchbase/vbucket-engine/base"
	"github.com/couchbase/vbucket-engine/enginelog"
	"github.com/couchbase/vbucket-engine/hlc"
)

// Manager serializes the act of assigning a bySeqno, enqueues items into
// the Open checkpoint, and exposes the cursor interface flushers and
// replication streams use (spec §4.2).
type Manager struct {
	mu sync.Mutex

	checkpoints []*Checkpoint // ordered oldest-first; oldest may be reclaimed once no cursor needs it
	cursors     map[string]*Cursor

	lastBySeqno      uint64
	nextCheckpointID uint64

	clock  *hlc.Clock
	logger enginelog.Logger
}

// NewManager creates a Manager resuming from highSeqno (e.g. loaded from
// the persisted per-vbucket JSON document, spec §6), with its first Open
// checkpoint starting right after it.
func NewManager(highSeqno uint64, clock *hlc.Clock, logger enginelog.Logger) *Manager {
	if logger == nil {
		logger = enginelog.NewNop()
	}
	m := &Manager{
		cursors:          make(map[string]*Cursor),
		lastBySeqno:      highSeqno,
		nextCheckpointID: 1,
		clock:            clock,
		logger:           logger,
	}
	cp := newCheckpoint(m.nextCheckpointID, highSeqno+1)
	m.nextCheckpointID++
	m.checkpoints = append(m.checkpoints, cp)
	m.cursors[PersistenceCursor] = &Cursor{Name: PersistenceCursor, CheckpointID: cp.ID, ItemIndex: 0}
	return m
}

func (m *Manager) openCheckpointLocked() *Checkpoint {
	return m.checkpoints[len(m.checkpoints)-1]
}

// HighSeqno returns the highest bySeqno minted so far.
func (m *Manager) HighSeqno() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastBySeqno
}

// OpenCheckpointID returns the id of the current Open checkpoint.
func (m *Manager) OpenCheckpointID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCheckpointLocked().ID
}

// QueueDirty stamps bySeqno (if generateBySeqno) and cas (if generateCas),
// then appends/dedups item into the Open checkpoint's KeyIndex (spec
// §4.2). When generateCas is requested, a non-zero item.Cas is the
// client-supplied CAS factored into the HLC; when generateBySeqno is false
// (replica apply path), item.BySeqno is the caller-provided seqno, which
// must exceed the current high seqno. Returns whether the flusher must be woken — true whenever
// an item was newly appended or replaced.
func (m *Manager) QueueDirty(item *base.Item, generateBySeqno, generateCas bool) (wakeFlusher bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if generateBySeqno {
		m.lastBySeqno++
		item.BySeqno = m.lastBySeqno
	} else {
		if item.BySeqno <= m.lastBySeqno {
			return false, fmt.Errorf("checkpoint: supplied bySeqno %d is not greater than current high seqno %d", item.BySeqno, m.lastBySeqno)
		}
		m.lastBySeqno = item.BySeqno
	}

	if generateCas {
		item.Cas = m.clock.NowOrBump(item.Cas)
	} else if item.Cas != 0 {
		m.clock.SetMaxCas(item.Cas)
	}

	open := m.openCheckpointLocked()
	key := item.Key.String()

	if idx, exists := open.KeyIndex[key]; exists {
		if m.everyCursorBeforeLocked(open.ID, idx) {
			open.Items[idx] = item
		} else {
			open.Items = append(open.Items, item)
			open.KeyIndex[key] = len(open.Items) - 1
		}
	} else {
		open.Items = append(open.Items, item)
		open.KeyIndex[key] = len(open.Items) - 1
	}

	if open.SnapshotEnd == ^uint64(0) || item.BySeqno > open.SnapshotEnd {
		open.SnapshotEnd = item.BySeqno
	}

	return true, nil
}

// everyCursorBeforeLocked reports whether every cursor currently pointing
// into checkpoint cpID has an ItemIndex no greater than idx — i.e. none
// of them has already read Items[idx], so replacing it in place is
// safe (spec §4.2 dedup rule).
func (m *Manager) everyCursorBeforeLocked(cpID uint64, idx int) bool {
	for _, c := range m.cursors {
		if c.CheckpointID == cpID && c.ItemIndex > idx {
			return false
		}
	}
	return true
}

// CreateNewCheckpoint closes the Open checkpoint and starts a new one
// (spec §4.2).
func (m *Manager) CreateNewCheckpoint() *Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createNewCheckpointLocked()
}

func (m *Manager) createNewCheckpointLocked() *Checkpoint {
	open := m.openCheckpointLocked()
	open.finalize()

	cp := newCheckpoint(m.nextCheckpointID, m.lastBySeqno+1)
	m.nextCheckpointID++
	m.checkpoints = append(m.checkpoints, cp)
	return cp
}

// EnsureMinOpenCheckpointID guarantees the Open checkpoint's id is >= min,
// creating a fresh checkpoint if needed (spec §4.3: "on any→Active,
// ensures the open checkpoint id is ≥ 2").
func (m *Manager) EnsureMinOpenCheckpointID(min uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openCheckpointLocked().ID < min {
		if m.nextCheckpointID < min {
			m.nextCheckpointID = min
		}
		m.createNewCheckpointLocked()
	}
}

// UpdateCurrentSnapshotEnd declares the end of the in-flight snapshot on a
// replica (spec §4.2).
func (m *Manager) UpdateCurrentSnapshotEnd(end uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openCheckpointLocked().SnapshotEnd = end
}

// RegisterCursor places a cursor at the first item with bySeqno >= target
// (WaitType BySeqno) or at the start of the named checkpoint (WaitType
// ByCheckpointId). Spec §4.2 "registerCursor".
func (m *Manager) RegisterCursor(name string, target uint64, byType base.WaitType) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if byType == base.ByCheckpointId {
		for _, cp := range m.checkpoints {
			if cp.ID == target {
				m.cursors[name] = &Cursor{Name: name, CheckpointID: cp.ID, ItemIndex: 0, Replication: name != PersistenceCursor}
				return nil
			}
		}
		return fmt.Errorf("checkpoint: no checkpoint with id %d", target)
	}

	for _, cp := range m.checkpoints {
		for i, item := range cp.Items {
			if item.BySeqno >= target {
				m.cursors[name] = &Cursor{Name: name, CheckpointID: cp.ID, ItemIndex: i, Replication: name != PersistenceCursor}
				return nil
			}
		}
	}
	// target lies beyond everything queued so far: park the cursor at the
	// end of the Open checkpoint so it picks up the next queued item.
	open := m.openCheckpointLocked()
	m.cursors[name] = &Cursor{Name: name, CheckpointID: open.ID, ItemIndex: len(open.Items), Replication: name != PersistenceCursor}
	return nil
}

// RemoveCursor drops a cursor, possibly making Closed checkpoints
// reclaimable (spec §4.2 "removeCursor").
func (m *Manager) RemoveCursor(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cursors, name)
	m.reclaimLocked()
}

// GetAllItemsForCursor advances the named cursor to the end of all
// currently accessible checkpoints, returning the items passed (spec
// §4.2). It may span multiple checkpoints. After return, Closed
// checkpoints with no cursors are reclaimable.
func (m *Manager) GetAllItemsForCursor(name string) ([]*base.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cursor, ok := m.cursors[name]
	if !ok {
		return nil, fmt.Errorf("checkpoint: unknown cursor %q", name)
	}

	var out []*base.Item
	cpIdx := m.indexOfCheckpointLocked(cursor.CheckpointID)
	if cpIdx < 0 {
		return nil, fmt.Errorf("checkpoint: cursor %q points at reclaimed checkpoint %d", name, cursor.CheckpointID)
	}

	for cpIdx < len(m.checkpoints) {
		cp := m.checkpoints[cpIdx]
		for cursor.ItemIndex < len(cp.Items) {
			out = append(out, cp.Items[cursor.ItemIndex])
			cursor.ItemIndex++
		}
		if cpIdx == len(m.checkpoints)-1 {
			break // stay parked at the end of the Open checkpoint
		}
		cpIdx++
		cursor.CheckpointID = m.checkpoints[cpIdx].ID
		cursor.ItemIndex = 0
	}

	m.reclaimLocked()
	return out, nil
}

func (m *Manager) indexOfCheckpointLocked(id uint64) int {
	for i, cp := range m.checkpoints {
		if cp.ID == id {
			return i
		}
	}
	return -1
}

// reclaimLocked frees every prefix of Closed checkpoints that no cursor
// references any more (spec §4.2 "Reclaim").
func (m *Manager) reclaimLocked() {
	for len(m.checkpoints) > 1 {
		oldest := m.checkpoints[0]
		if oldest.State != Closed {
			break
		}
		if m.anyCursorInLocked(oldest.ID) {
			break
		}
		m.checkpoints = m.checkpoints[1:]
	}
}

func (m *Manager) anyCursorInLocked(cpID uint64) bool {
	for _, c := range m.cursors {
		if c.CheckpointID == cpID {
			return true
		}
	}
	return false
}

// PersistedDoc is the JSON-serializable checkpoint summary persisted per
// vbucket (spec §6).
type PersistedDoc struct {
	CheckpointID  uint64 `json:"checkpointId"`
	HighSeqno     uint64 `json:"highSeqno"`
	SnapshotStart uint64 `json:"snapshotStart"`
	SnapshotEnd   uint64 `json:"snapshotEnd"`
}

// Snapshot captures the manager's externally-visible state for
// persistence.
func (m *Manager) Snapshot() PersistedDoc {
	m.mu.Lock()
	defer m.mu.Unlock()
	open := m.openCheckpointLocked()
	end := open.SnapshotEnd
	if end == ^uint64(0) {
		end = open.SnapshotStart - 1
	}
	return PersistedDoc{
		CheckpointID:  open.ID,
		HighSeqno:     m.lastBySeqno,
		SnapshotStart: open.SnapshotStart,
		SnapshotEnd:   end,
	}
}

// ToJSON and PersistedDocFromJSON round-trip a PersistedDoc via stdlib
// encoding/json, matching the teacher's own CheckpointDoc marshaling in
// dcp/CheckpointManager.go (saveCheckpoint/loadCheckpoints).
func (d PersistedDoc) ToJSON() ([]byte, error) {
	return json.Marshal(d)
}

func PersistedDocFromJSON(data []byte) (PersistedDoc, error) {
	var d PersistedDoc
	err := json.Unmarshal(data, &d)
	return d, err
}
