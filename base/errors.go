// Copyright (c) 2018 Couchbase, Inc.
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
// except in compliance with the License. You may obtain a copy of the License at
//   http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software distributed under the
// License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language governing permissions
// and limitations under the License.

package base

import "fmt"

// FaultError represents an invariant violation (a "logic fault" in spec
// terms). It is never caught locally by a hash-table or checkpoint-manager
// call site; it propagates to the embedder, which decides whether to
// terminate the process.
type FaultError struct {
	Component string
	Message   string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("%s: logic fault: %s", e.Component, e.Message)
}

func NewFault(component, format string, args ...interface{}) error {
	return &FaultError{Component: component, Message: fmt.Sprintf(format, args...)}
}
