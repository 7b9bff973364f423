// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package vbucket

import (
	"time"

	"github.com/couchbase/vbucket-engine/base"
)

// highPriorityWaiter is a connection cookie blocked on a persistence
// target being reached (spec §3 "High-Priority Waiter").
type highPriorityWaiter struct {
	cookie    interface{}
	targetID  uint64
	waitType  base.WaitType
	startedAt time.Time
}

// AddHighPriorityVBEntry registers cookie as waiting for targetID under
// waitType (spec §4.3 "addHighPriorityVBEntry").
func (vb *VBucket) AddHighPriorityVBEntry(targetID uint64, cookie interface{}, waitType base.WaitType) {
	vb.waitersMu.Lock()
	vb.waiters = append(vb.waiters, &highPriorityWaiter{
		cookie:    cookie,
		targetID:  targetID,
		waitType:  waitType,
		startedAt: time.Now(),
	})
	vb.waitersMu.Unlock()
}

// NotifyOnPersistence resolves every waiter of waitType whose target has
// been reached with Success, and times out (TempFail) every waiter whose
// age exceeds the current adaptive timeout (spec §4.3
// "notifyOnPersistence").
func (vb *VBucket) NotifyOnPersistence(persistedID uint64, waitType base.WaitType) {
	now := time.Now()
	var timeout time.Duration
	if vb.adaptiveTimeout != nil {
		timeout = vb.adaptiveTimeout.Current()
	}

	vb.waitersMu.Lock()
	remaining := vb.waiters[:0]
	var toNotify []*highPriorityWaiter
	var toNotifyStatus []base.Status
	for _, w := range vb.waiters {
		if w.waitType != waitType {
			remaining = append(remaining, w)
			continue
		}
		switch {
		case w.targetID <= persistedID:
			toNotify = append(toNotify, w)
			toNotifyStatus = append(toNotifyStatus, base.Success)
		case timeout > 0 && now.Sub(w.startedAt) > timeout:
			toNotify = append(toNotify, w)
			toNotifyStatus = append(toNotifyStatus, base.TempFail)
			if vb.stats != nil {
				vb.stats.HighPriTimeout.Inc(1)
			}
		default:
			remaining = append(remaining, w)
		}
	}
	vb.waiters = remaining
	vb.waitersMu.Unlock()

	for i, w := range toNotify {
		vb.notify(w.cookie, toNotifyStatus[i])
	}
}

// failAllHighPriorityWaiters notifies and clears every high-priority
// waiter with status, used on an Active -> non-Active transition (spec
// §4.3 "setState").
func (vb *VBucket) failAllHighPriorityWaiters(status base.Status) {
	vb.waitersMu.Lock()
	waiters := vb.waiters
	vb.waiters = nil
	vb.waitersMu.Unlock()

	for _, w := range waiters {
		vb.notify(w.cookie, status)
	}
}

// AddPendingOp registers cookie as blocked until the vbucket exits Pending
// state (spec §3 "Pending Op").
func (vb *VBucket) AddPendingOp(cookie interface{}) {
	vb.pendingOpsMu.Lock()
	vb.pendingOps = append(vb.pendingOps, cookie)
	vb.pendingOpsMu.Unlock()
}

// failAllPendingOps notifies and clears every pending op. The container is
// swapped out and cleared under the lock first, then every cookie taken
// from it is notified with status outside the lock; a panicking callback
// is not recovered.
func (vb *VBucket) failAllPendingOps(status base.Status) {
	vb.pendingOpsMu.Lock()
	ops := vb.pendingOps
	vb.pendingOps = nil
	vb.pendingOpsMu.Unlock()

	for _, cookie := range ops {
		vb.notify(cookie, status)
	}
}

func (vb *VBucket) notify(cookie interface{}, status base.Status) {
	if vb.notifier != nil {
		vb.notifier.NotifyIOComplete(cookie, status)
	}
}
