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

package hostmonitor

import (
	"time"
)

// Snapshot holds one completed host sample. Collectors that failed leave
// their section nil, so consumers must tolerate partial snapshots.
type Snapshot struct {
	CPU         *CPUStats    `json:"cpu"`
	Memory      *MemoryStats `json:"memory"`
	Disks       []DiskStats  `json:"disks"`
	Load        *LoadStats   `json:"load"`
	CollectedAt time.Time    `json:"collectedAt"` // Timestamp when the sample was collected
}

// CPUStats contains CPU-related statistics.
type CPUStats struct {
	UsagePercent float64 `json:"usagePercent"` // CPU usage since the previous sample as percentage (0-100)
	CoreCount    int     `json:"coreCount"`    // Number of logical CPU cores
}

// MemoryStats contains virtual-memory statistics.
type MemoryStats struct {
	UsedBytes   uint64  `json:"usedBytes"`   // Used bytes of virtual memory
	TotalBytes  uint64  `json:"totalBytes"`  // Total bytes of virtual memory
	UsedPercent float64 `json:"usedPercent"` // Memory usage as percentage of total (0-100)
}

// DiskStats contains usage statistics for one monitored mount point.
type DiskStats struct {
	Path        string  `json:"path"`        // Monitored mount point
	UsedBytes   uint64  `json:"usedBytes"`   // Used bytes of the partition
	TotalBytes  uint64  `json:"totalBytes"`  // Total bytes of the partition
	UsedPercent float64 `json:"usedPercent"` // Disk usage as percentage of total (0-100)
}

// LoadStats contains the host load averages.
type LoadStats struct {
	Load1  float64 `json:"load1"`  // 1 minute load average
	Load5  float64 `json:"load5"`  // 5 minute load average
	Load15 float64 `json:"load15"` // 15 minute load average
}
