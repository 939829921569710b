// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package svcproto

import (
	"errors"
	"fmt"
)

// CodedError is the explicit numeric failure a lifecycle hook may return.
// It distinguishes a coded failure from an unspecified one: where the
// failure policy reports Stopped, the code becomes the reported exit code,
// and diagnostic entries format it as 0x<8 hex digits>.
type CodedError uint32

// Error implements the error interface.
func (e CodedError) Error() string {
	return fmt.Sprintf("service error 0x%08x", uint32(e))
}

// ErrorCode extracts the numeric code from err. The second return is false
// when err does not wrap a CodedError, i.e. the failure is unspecified.
func ErrorCode(err error) (uint32, bool) {
	var coded CodedError
	if errors.As(err, &coded) {
		return uint32(coded), true
	}

	return 0, false
}
