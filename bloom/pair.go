// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package bloom

import "sync"

// Pair is the double-buffered main/temp bloom filter a vBucket owns (spec
// §3 "BloomFilter", §4.3 "Bloom filter lifecycle", §9 open question on
// addToFilter vs addToTempFilter). The vBucket mediates *when* these
// methods are called (on mutation, on compaction start/end); Pair owns the
// state machine itself so the two entry points can't drift out of sync.
type Pair struct {
	mu     sync.Mutex
	status Status
	main   *Filter
	temp   *Filter

	expectedKeys uint64
	fpProb       float64
}

// NewPair constructs a Pair in the Disabled state; CreateFilter must be
// called before any key is added.
func NewPair(expectedKeys uint64, fpProb float64) *Pair {
	return &Pair{expectedKeys: expectedKeys, fpProb: fpProb}
}

// CreateFilter transitions nil -> Enabled (spec §4.3 "nil → createFilter →
// Enabled").
func (p *Pair) CreateFilter() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.main = New(p.expectedKeys, p.fpProb)
	p.status = Enabled
}

// Status returns the current lifecycle state.
func (p *Pair) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// InitTempFilter creates a parallel filter in Compacting state and marks
// the main filter Compacting too; writes during compaction mirror to both
// (spec §4.3).
func (p *Pair) InitTempFilter(expectedKeys uint64, fpProb float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.temp = New(expectedKeys, fpProb)
	p.status = Compacting
}

// AddKey mirrors writes to main and, if compacting, to temp as well — the
// "addToFilter during compaction mirrors writes to both" entry point named
// in spec §9's open question.
func (p *Pair) AddKey(key []byte) {
	p.mu.Lock()
	main, temp, status := p.main, p.temp, p.status
	p.mu.Unlock()

	if main != nil {
		main.AddKey(key)
	}
	if status == Compacting && temp != nil {
		temp.AddKey(key)
	}
}

// AddToTempFilter writes only to temp; this is the entry point the
// compaction scan itself uses to populate temp with keys it visits on disk
// (spec §9: "addToTempFilter writes only to temp").
func (p *Pair) AddToTempFilter(key []byte) {
	p.mu.Lock()
	temp := p.temp
	p.mu.Unlock()
	if temp != nil {
		temp.AddKey(key)
	}
}

// MaybeKeyExists probes the main filter. Returns true (conservatively) if
// the filter has never been created/enabled.
func (p *Pair) MaybeKeyExists(key []byte) bool {
	p.mu.Lock()
	main, status := p.main, p.status
	p.mu.Unlock()
	if status == Disabled || main == nil {
		return true
	}
	return main.MaybeKeyExists(key)
}

// Disable turns the filter pair off; if compaction is in flight, SwapFilter
// will discard both main and temp instead of promoting temp.
func (p *Pair) Disable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = Disabled
}

// SwapFilter atomically replaces main with temp iff temp is in
// {Compacting, Enabled}; otherwise the user disabled filters mid-compaction
// and both are discarded (spec §4.3).
func (p *Pair) SwapFilter() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.temp != nil && (p.status == Compacting || p.status == Enabled) {
		p.main = p.temp
		p.status = Enabled
	} else {
		p.main = nil
		p.status = Disabled
	}
	p.temp = nil
}
