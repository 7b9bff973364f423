// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

// Package vbfilter implements a sorted set of vBucket ids with boolean set
// operations and run-collapsing printing, used to subset replication
// targets (spec §4.7). Grounded on the teacher's VBucketIdList-style set
// helpers in base/, reworked from an unordered slice into a sorted-id set
// with set algebra.
package vbfilter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Filter is an immutable-by-convention sorted set of vBucket ids. Callers
// treat results of New/Union/Intersection/SymmetricDifference as
// read-only; mutate by constructing a new Filter.
type Filter struct {
	ids []uint16
}

// New builds a Filter from an arbitrary slice of ids, sorting and
// deduplicating.
func New(ids []uint16) *Filter {
	cp := make([]uint16, len(ids))
	copy(cp, ids)
	sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })
	cp = dedupSorted(cp)
	return &Filter{ids: cp}
}

func dedupSorted(sorted []uint16) []uint16 {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// Contains reports whether id is a member.
func (f *Filter) Contains(id uint16) bool {
	i := sort.Search(len(f.ids), func(i int) bool { return f.ids[i] >= id })
	return i < len(f.ids) && f.ids[i] == id
}

// Len returns the number of member ids.
func (f *Filter) Len() int {
	return len(f.ids)
}

// Ids returns a copy of the sorted member ids.
func (f *Filter) Ids() []uint16 {
	cp := make([]uint16, len(f.ids))
	copy(cp, f.ids)
	return cp
}

// Union returns the set of ids present in either f or other.
func (f *Filter) Union(other *Filter) *Filter {
	out := make([]uint16, 0, len(f.ids)+len(other.ids))
	i, j := 0, 0
	for i < len(f.ids) && j < len(other.ids) {
		switch {
		case f.ids[i] < other.ids[j]:
			out = append(out, f.ids[i])
			i++
		case f.ids[i] > other.ids[j]:
			out = append(out, other.ids[j])
			j++
		default:
			out = append(out, f.ids[i])
			i++
			j++
		}
	}
	out = append(out, f.ids[i:]...)
	out = append(out, other.ids[j:]...)
	return &Filter{ids: out}
}

// Intersection returns the set of ids present in both f and other.
func (f *Filter) Intersection(other *Filter) *Filter {
	out := make([]uint16, 0)
	i, j := 0, 0
	for i < len(f.ids) && j < len(other.ids) {
		switch {
		case f.ids[i] < other.ids[j]:
			i++
		case f.ids[i] > other.ids[j]:
			j++
		default:
			out = append(out, f.ids[i])
			i++
			j++
		}
	}
	return &Filter{ids: out}
}

// SymmetricDifference returns ids present in exactly one of f, other.
func (f *Filter) SymmetricDifference(other *Filter) *Filter {
	out := make([]uint16, 0)
	i, j := 0, 0
	for i < len(f.ids) && j < len(other.ids) {
		switch {
		case f.ids[i] < other.ids[j]:
			out = append(out, f.ids[i])
			i++
		case f.ids[i] > other.ids[j]:
			out = append(out, other.ids[j])
			j++
		default:
			i++
			j++
		}
	}
	out = append(out, f.ids[i:]...)
	out = append(out, other.ids[j:]...)
	return &Filter{ids: out}
}

// String collapses consecutive runs of three or more ids into "[lo,hi]"
// range notation, matching spec §4.7's printer.
func (f *Filter) String() string {
	if len(f.ids) == 0 {
		return "{}"
	}

	var parts []string
	i := 0
	for i < len(f.ids) {
		j := i
		for j+1 < len(f.ids) && f.ids[j+1] == f.ids[j]+1 {
			j++
		}
		runLen := j - i + 1
		if runLen >= 3 {
			parts = append(parts, fmt.Sprintf("[%d,%d]", f.ids[i], f.ids[j]))
		} else {
			for k := i; k <= j; k++ {
				parts = append(parts, strconv.Itoa(int(f.ids[k])))
			}
		}
		i = j + 1
	}
	return "{" + strings.Join(parts, ",") + "}"
}
