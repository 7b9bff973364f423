// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package base

import (
	"fmt"

	"github.com/couchbase/gomemcached"
)

// Status is the result kind returned by every vbucket operation. It is
// backed by the real memcached binary protocol status bytes from
// gomemcached rather than an invented enum, so a caller that needs the wire
// code (e.g. a protocol layer built on top of this module) gets it for
// free. WouldBlock and Fatal have no memcached wire equivalent; they are
// synthesized in a private status range.
type Status uint16

const (
	Success           Status = Status(gomemcached.SUCCESS)
	KeyNotFound       Status = Status(gomemcached.KEY_ENOENT)
	KeyExists         Status = Status(gomemcached.KEY_EEXISTS)
	NotMyVBucket      Status = Status(gomemcached.NOT_MY_VBUCKET)
	TempFail          Status = Status(gomemcached.TMPFAIL)
	NoMemory          Status = Status(gomemcached.ENOMEM)
	InvalidArgument   Status = Status(gomemcached.EINVAL)
	WouldBlock        Status = 0xff01
	FatalStatus       Status = 0xff02
)

func (s Status) String() string {
	switch s {
	case Success:
		return "Success"
	case KeyNotFound:
		return "KeyNotFound"
	case KeyExists:
		return "KeyExists"
	case NotMyVBucket:
		return "NotMyVBucket"
	case TempFail:
		return "TempFail"
	case NoMemory:
		return "NoMemory"
	case InvalidArgument:
		return "InvalidArgument"
	case WouldBlock:
		return "WouldBlock"
	case FatalStatus:
		return "Fatal"
	default:
		return fmt.Sprintf("Status(0x%x)", uint16(s))
	}
}
