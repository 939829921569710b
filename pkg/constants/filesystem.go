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

import "time"

const (
	// FilesystemSlowReadThreshold defines when a file read operation is considered slow
	// and should be logged for debugging purposes.
	FilesystemSlowReadThreshold = time.Millisecond * 5

	// FilesystemCacheRecheckInterval defines how often cached file content is
	// revalidated against the file's stat to detect external modifications.
	FilesystemCacheRecheckInterval = 10 * time.Second
)

// FilesystemCacheSuffixes defines which files have read caching enabled.
// Config files are re-read on every reconfiguration pass and benefit from it.
var FilesystemCacheSuffixes = []string{".yaml", ".yml"}
