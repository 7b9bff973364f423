// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

// Package bloom implements the fixed-parameter bloom filter used to
// short-circuit disk reads under full eviction (spec §3, §4.4). The bit-set
// sizing and double-hashing scheme is grounded on gholt-store's
// KTBloomFilter (_examples/gholt-store/ktbloomfilter.go), the only bloom
// filter implementation in the retrieval pack; it uses the same murmur3
// hash to derive k independent bit positions from two 64-bit hash halves
// instead of invoking k separate hash functions.
package bloom

import (
	"math"
	"sync"

	"github.com/spaolacci/murmur3"
)

// Status is the bloom-filter lifecycle state (spec §3, §4.3 "Bloom filter
// lifecycle").
type Status uint8

const (
	Disabled Status = iota
	Enabled
	Compacting
)

// Filter is a classical Bloom filter: m bits, k hash rounds, computed from
// an expected key count and a target false-positive probability.
type Filter struct {
	mu   sync.RWMutex
	bits []byte
	m    uint64 // number of bits
	k    uint64 // number of hash rounds
}

// New constructs a Filter sized for expectedKeys entries at false-positive
// probability p, using the classical formulas:
//
//	m = ceil(-n*ln(p) / ln(2)^2)
//	k = round(m/n * ln(2))
func New(expectedKeys uint64, p float64) *Filter {
	if expectedKeys == 0 {
		expectedKeys = 1
	}
	if p <= 0 || p >= 1 {
		p = 0.01
	}
	m := uint64(math.Ceil(-float64(expectedKeys) * math.Log(p) / (math.Ln2 * math.Ln2)))
	if m == 0 {
		m = 8
	}
	k := uint64(math.Round(float64(m) / float64(expectedKeys) * math.Ln2))
	if k == 0 {
		k = 1
	}
	return &Filter{
		bits: make([]byte, (m+7)/8),
		m:    m,
		k:    k,
	}
}

func bitPositions(key []byte, k, m uint64) []uint64 {
	h1, h2 := murmur3.Sum128(key)
	positions := make([]uint64, k)
	for i := uint64(0); i < k; i++ {
		positions[i] = (h1 + i*h2) % m
	}
	return positions
}

// AddKey sets the k bits derived from key. Safe for concurrent callers; the
// implementation uses a narrow write lock rather than atomic-OR per spec
// §4.4's allowance, since Go has no portable atomic byte-OR primitive.
func (f *Filter) AddKey(key []byte) {
	positions := bitPositions(key, f.k, f.m)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, bit := range positions {
		f.bits[bit/8] |= 1 << (bit % 8)
	}
}

// MaybeKeyExists returns false iff any of the k bits is zero.
func (f *Filter) MaybeKeyExists(key []byte) bool {
	positions := bitPositions(key, f.k, f.m)
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, bit := range positions {
		if f.bits[bit/8]&(1<<(bit%8)) == 0 {
			return false
		}
	}
	return true
}

// NumBits returns m, for diagnostics/tests.
func (f *Filter) NumBits() uint64 { return f.m }

// NumHashes returns k, for diagnostics/tests.
func (f *Filter) NumHashes() uint64 { return f.k }
