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

package constants

const (
	// DefaultEventLogPath is where lifecycle events are persisted when the
	// config does not name another location.
	DefaultEventLogPath = "/var/log/svckit/events.log"

	// DefaultEventLogMaxBytes is the size at which the live event log file
	// is rotated into a compressed archive.
	DefaultEventLogMaxBytes = 1 << 20

	// DefaultEventLogMaxArchives is how many rotated archives are retained
	// before the oldest are pruned.
	DefaultEventLogMaxArchives = 20

	// EventLogArchiveSuffix is appended to rotated archive names.
	EventLogArchiveSuffix = ".zst"
)
