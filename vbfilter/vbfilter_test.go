// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package vbfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDedupsAndSorts(t *testing.T) {
	f := New([]uint16{5, 1, 3, 1, 5})
	assert.Equal(t, []uint16{1, 3, 5}, f.Ids())
}

func TestContains(t *testing.T) {
	f := New([]uint16{2, 4, 6})
	assert.True(t, f.Contains(4))
	assert.False(t, f.Contains(5))
}

func TestUnion(t *testing.T) {
	a := New([]uint16{1, 2, 3})
	b := New([]uint16{3, 4, 5})
	assert.Equal(t, []uint16{1, 2, 3, 4, 5}, a.Union(b).Ids())
}

func TestIntersection(t *testing.T) {
	a := New([]uint16{1, 2, 3, 4})
	b := New([]uint16{3, 4, 5})
	assert.Equal(t, []uint16{3, 4}, a.Intersection(b).Ids())
}

func TestSymmetricDifference(t *testing.T) {
	a := New([]uint16{1, 2, 3})
	b := New([]uint16{2, 3, 4})
	assert.Equal(t, []uint16{1, 4}, a.SymmetricDifference(b).Ids())
}

func TestStringCollapsesRunsOfThreeOrMore(t *testing.T) {
	f := New([]uint16{1, 2, 3, 4, 7, 9, 10, 11, 12})
	assert.Equal(t, "{[1,4],7,[9,12]}", f.String())
}

func TestStringLeavesShortRunsUncollapsed(t *testing.T) {
	f := New([]uint16{1, 2, 8})
	assert.Equal(t, "{1,2,8}", f.String())
}

func TestStringEmpty(t *testing.T) {
	f := New(nil)
	assert.Equal(t, "{}", f.String())
}
