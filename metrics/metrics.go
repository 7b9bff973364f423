// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

// Package metrics holds the shared resource-accounting primitives of spec
// §5 and the process-wide adaptive checkpoint-flush timeout of spec §9
// ("process-wide mutable state... becomes an explicitly injected shared
// atomic or a method on a shared stats object"). The go-metrics counters
// are grouped as fields of the Registry struct below, the way the teacher
// keeps filteredCnt / failedFilterCnt per vbucket in
// dcp.NewCheckpointManager; they are not registered in a gometrics.Registry.
package metrics

import (
	"sync/atomic"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

// SaturatingCounter is an int64 counter whose Decr path never underflows
// past zero (spec §5: "Decrement paths use compare-exchange with
// saturation at zero").
type SaturatingCounter struct {
	v int64
}

func (c *SaturatingCounter) Add(delta int64) int64 {
	return atomic.AddInt64(&c.v, delta)
}

// Decr subtracts delta, saturating at zero under concurrent interleavings.
func (c *SaturatingCounter) Decr(delta int64) int64 {
	for {
		cur := atomic.LoadInt64(&c.v)
		next := cur - delta
		if next < 0 {
			next = 0
		}
		if atomic.CompareAndSwapInt64(&c.v, cur, next) {
			return next
		}
	}
}

func (c *SaturatingCounter) Get() int64 {
	return atomic.LoadInt64(&c.v)
}

func (c *SaturatingCounter) Set(v int64) {
	atomic.StoreInt64(&c.v, v)
}

// DirtyQueueStats is the per-vbucket shared resource accounting named in
// spec §5: dirty-queue size, memory, age, pending writes, metadata bytes.
type DirtyQueueStats struct {
	Size           SaturatingCounter
	Mem            SaturatingCounter
	Age            SaturatingCounter
	PendingWrites  SaturatingCounter
	MetadataBytes  SaturatingCounter
}

// Registry groups the go-metrics counters a vbucket reports, grounded on
// the teacher's per-vbno metrics.Counter maps (filteredCnt, failedFilterCnt
// in dcp.NewCheckpointManager).
type Registry struct {
	Ejections      gometrics.Counter
	BloomFPProbes  gometrics.Counter
	BGFetches      gometrics.Counter
	HighPriTimeout gometrics.Counter
}

func NewRegistry() *Registry {
	return &Registry{
		Ejections:      gometrics.NewCounter(),
		BloomFPProbes:  gometrics.NewCounter(),
		BGFetches:      gometrics.NewCounter(),
		HighPriTimeout: gometrics.NewCounter(),
	}
}

// AdaptiveTimeout is the process-wide persistence wait timeout, widened in
// three bands (min, mid, max) based on observed flush latency, and never
// automatically narrowed (spec §4.3, §9 — the asymmetry is preserved
// intentionally per the open-question decision recorded in DESIGN.md).
type AdaptiveTimeout struct {
	min, mid, max int64 // nanoseconds
	current       int64 // nanoseconds, atomic
}

// NewAdaptiveTimeout builds a shared, process-wide timeout bounded by
// [min, max] (spec §6 MIN_CHK_FLUSH_TIMEOUT / MAX_CHK_FLUSH_TIMEOUT),
// starting at the midpoint.
func NewAdaptiveTimeout(min, max time.Duration) *AdaptiveTimeout {
	mid := min + (max-min)/2
	return &AdaptiveTimeout{
		min:     int64(min),
		mid:     int64(mid),
		max:     int64(max),
		current: int64(mid),
	}
}

func (a *AdaptiveTimeout) Current() time.Duration {
	return time.Duration(atomic.LoadInt64(&a.current))
}

// Widen bumps the timeout to the next band if observedLatency exceeded the
// current timeout. Bands only ever widen; there is no narrowing path.
func (a *AdaptiveTimeout) Widen(observedLatency time.Duration) {
	cur := atomic.LoadInt64(&a.current)
	if int64(observedLatency) <= cur {
		return
	}
	next := cur
	switch {
	case cur < a.mid:
		next = a.mid
	case cur < a.max:
		next = a.max
	default:
		next = a.max
	}
	atomic.CompareAndSwapInt64(&a.current, cur, next)
}
