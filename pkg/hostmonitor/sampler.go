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
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Sampler collects the individual parts of a host sample. The monitor calls
// every collector on each tick and tolerates partial failures.
type Sampler interface {
	CPU(ctx context.Context) (*CPUStats, error)
	Memory(ctx context.Context) (*MemoryStats, error)
	Disk(ctx context.Context, path string) (*DiskStats, error)
	Load(ctx context.Context) (*LoadStats, error)
}

// HostSampler reads host statistics through gopsutil.
type HostSampler struct{}

// CPU returns the usage since the previous call and the logical core count.
// The first call after process start reports zero usage.
func (HostSampler) CPU(ctx context.Context) (*CPUStats, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get cpu usage: %w", err)
	}

	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get cpu count: %w", err)
	}

	stats := &CPUStats{CoreCount: cores}
	if len(percents) > 0 {
		stats.UsagePercent = percents[0]
	}
	return stats, nil
}

// Memory returns the current virtual memory usage.
func (HostSampler) Memory(ctx context.Context) (*MemoryStats, error) {
	vmStat, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get memory usage: %w", err)
	}

	return &MemoryStats{
		UsedBytes:   vmStat.Used,
		TotalBytes:  vmStat.Total,
		UsedPercent: vmStat.UsedPercent,
	}, nil
}

// Disk returns the usage of the partition holding path.
func (HostSampler) Disk(ctx context.Context, path string) (*DiskStats, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk usage for %s: %w", path, err)
	}

	return &DiskStats{
		Path:        path,
		UsedBytes:   usage.Used,
		TotalBytes:  usage.Total,
		UsedPercent: usage.UsedPercent,
	}, nil
}

// Load returns the host load averages.
func (HostSampler) Load(ctx context.Context) (*LoadStats, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get load average: %w", err)
	}

	return &LoadStats{
		Load1:  avg.Load1,
		Load5:  avg.Load5,
		Load15: avg.Load15,
	}, nil
}
