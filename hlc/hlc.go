// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

// Package hlc implements the hybrid-logical-clock used to mint CAS values
// (spec §3, §4.5). Monotonicity is guarded by a single mutex, the same
// small-mutex-guarded-counter shape the teacher uses for SeqnoWithLock in
// dcp/CheckpointManager.go.
package hlc

import (
	"sync"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

// Clock is a single vBucket's hybrid logical clock.
type Clock struct {
	mu      sync.Mutex
	maxCas  uint64
	nowFunc func() time.Time

	aheadThreshold  time.Duration
	behindThreshold time.Duration

	aheadCount  gometrics.Counter
	behindCount gometrics.Counter
}

// New creates a Clock with the given drift thresholds. nowFunc defaults to
// time.Now; tests may override it to make drift deterministic.
func New(aheadThreshold, behindThreshold time.Duration) *Clock {
	return &Clock{
		nowFunc:         time.Now,
		aheadThreshold:  aheadThreshold,
		behindThreshold: behindThreshold,
		aheadCount:      gometrics.NewCounter(),
		behindCount:     gometrics.NewCounter(),
	}
}

// SetNowFunc overrides the wall-clock source; used by tests only.
func (c *Clock) SetNowFunc(f func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nowFunc = f
}

// encode shifts wall-clock microseconds into the high bits, the way a CAS
// value is minted from a physical timestamp.
func encode(t time.Time) uint64 {
	return uint64(t.UnixMicro()) << 16
}

// NowOrBump returns max(physicalNowEncoded, lastStamp+1) and, if
// externalCas is non-zero, also factors in externalCas+1 and updates drift
// counters against it (spec §4.5).
func (c *Clock) NowOrBump(externalCas uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	physical := encode(c.nowFunc())
	candidate := physical
	if c.maxCas+1 > candidate {
		candidate = c.maxCas + 1
	}
	if externalCas != 0 {
		c.recordDriftLocked(physical, externalCas)
		if externalCas+1 > candidate {
			candidate = externalCas + 1
		}
	}

	c.maxCas = candidate
	return candidate
}

// recordDriftLocked must be called with mu held.
func (c *Clock) recordDriftLocked(physical, externalCas uint64) {
	aheadBudget := uint64(c.aheadThreshold.Microseconds()) << 16
	behindBudget := uint64(c.behindThreshold.Microseconds()) << 16

	if externalCas > physical && externalCas-physical > aheadBudget {
		c.aheadCount.Inc(1)
	} else if physical > externalCas && physical-externalCas > behindBudget {
		c.behindCount.Inc(1)
	}
}

// SetMaxCas raises the low watermark to cas if cas is higher (it never
// lowers it), used when a vbucket resumes from a persisted maxCas (spec §6
// persisted-state format).
func (c *Clock) SetMaxCas(cas uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cas > c.maxCas {
		c.maxCas = cas
	}
}

func (c *Clock) MaxCas() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxCas
}

// DriftStats reports the current ahead/behind violation counts.
func (c *Clock) DriftStats() (ahead, behind int64) {
	return c.aheadCount.Count(), c.behindCount.Count()
}

// ResetStats zeroes the drift counters but not the clock itself (spec §4.5:
// "resetStats zeroes the drift counters but not lastStamp").
func (c *Clock) ResetStats() {
	c.aheadCount.Clear()
	c.behindCount.Clear()
}
