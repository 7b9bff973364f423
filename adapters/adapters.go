// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

// Package adapters names the narrow external-collaborator interfaces a
// VBucket talks to (spec §6): the storage engine a flusher persists
// through, the consumer a replication stream applies mutations to, and
// the client/cookie notification seam used to resume a connection parked
// on a would-block. Grounded on the teacher's own collaborator seam
// (dcp.DcpDriver talking to a *gocb.Cluster and a fdp.FdPoolIface through
// narrow interfaces rather than importing the whole target system
// inline) — generalized from "a DCP client's dependencies" to "a vbucket
// engine's dependencies."
package adapters

import (
	"context"

	"github.com/couchbase/vbucket-engine/base"
)

// DbFileInfo reports on-disk footprint for a single vBucket's persisted
// data (spec §6 "getDbFileInfo").
type DbFileInfo struct {
	SpaceUsed int64
	FileSize  int64
}

// CompactionOptions parametrizes a storage-engine compaction pass (spec §6
// "compact").
type CompactionOptions struct {
	PurgeBeforeSeqno uint64
	DropDeletes      bool
}

// StorageEngine is the seam the flusher persists through (spec §6
// "Storage-engine adapter").
type StorageEngine interface {
	GetDbFileInfo(ctx context.Context, vbid uint16) (DbFileInfo, error)
	PersistItems(ctx context.Context, vbid uint16, items []*base.Item) (maxPersistedSeqno uint64, err error)
	Compact(ctx context.Context, vbid uint16, opts CompactionOptions) error
	Rollback(ctx context.Context, vbid uint16, seqno uint64) (newHighSeqno uint64, err error)
}

// SnapshotFlags marks the kind of a replication snapshot boundary (spec §6
// "beginSnapshot").
type SnapshotFlags uint8

const (
	SnapshotMemory SnapshotFlags = 1 << iota
	SnapshotDisk
)

// ReplicationConsumer is the seam a replication stream applies incoming
// mutations to (spec §6 "Replication-consumer adapter").
type ReplicationConsumer interface {
	BeginSnapshot(ctx context.Context, vbid uint16, start, end uint64, flags SnapshotFlags) error
	Mutation(ctx context.Context, vbid uint16, item *base.Item) error
	Deletion(ctx context.Context, vbid uint16, key base.DocKey, seqno uint64) error
	EndSnapshot(ctx context.Context, vbid uint16) error
}

// ClientNotifier is the seam the vBucket uses to resume a client
// connection parked on a would-block (spec §6 "Client adapter").
type ClientNotifier interface {
	NotifyIOComplete(cookie interface{}, status base.Status)
	StoreEngineSpecific(cookie interface{}, ptr interface{})
}
