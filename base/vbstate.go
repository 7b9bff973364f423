// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package base

import "encoding/binary"

// VBState is the lifecycle state of a vBucket (spec §3). The wire encoding
// (big-endian uint32, Active=1..Dead=4) mirrors the set_vbucket_state
// memcached binary protocol payload.
type VBState uint32

const (
	Active VBState = iota + 1
	Replica
	Pending
	Dead
)

func (s VBState) String() string {
	switch s {
	case Active:
		return "active"
	case Replica:
		return "replica"
	case Pending:
		return "pending"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// EncodeWire returns the 4-byte big-endian wire encoding of s.
func (s VBState) EncodeWire() [4]byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(s))
	return buf
}

// DecodeVBState parses the 4-byte big-endian wire encoding produced by
// EncodeWire.
func DecodeVBState(buf []byte) (VBState, error) {
	if len(buf) != 4 {
		return 0, NewFault("base", "vbstate wire encoding must be 4 bytes, got %d", len(buf))
	}
	v := VBState(binary.BigEndian.Uint32(buf))
	switch v {
	case Active, Replica, Pending, Dead:
		return v, nil
	default:
		return 0, NewFault("base", "unknown vbstate wire value %d", v)
	}
}

// CanAcceptClientWrites reports whether a vBucket in this state accepts
// client-originated mutations (spec §3: "Active vBuckets accept writes").
func (s VBState) CanAcceptClientWrites() bool {
	return s == Active
}
