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
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/svckit/svckit/pkg/metrics"
)

// DefaultInstanceName labels samples when no service name was configured.
const DefaultInstanceName = "host"

var (
	metricsOnce sync.Once

	// Standard namespace and subsystem for all host metrics
	namespace = "svckit"
	subsystem = "host"

	// CPU metrics
	hostCPUUsagePercent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "cpu_usage_percent",
		Help:      "CPU usage since the previous sample as percentage (0-100)",
	}, []string{"instance"})

	hostCPUCoreCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "cpu_core_count",
		Help:      "Number of logical CPU cores",
	}, []string{"instance"})

	// Memory metrics
	hostMemoryUsedBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "memory_used_bytes",
		Help:      "Current virtual memory usage in bytes",
	}, []string{"instance"})

	hostMemoryTotalBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "memory_total_bytes",
		Help:      "Total virtual memory in bytes",
	}, []string{"instance"})

	hostMemoryUsagePercent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "memory_usage_percent",
		Help:      "Memory usage as percentage of total (0-100)",
	}, []string{"instance"})

	// Disk metrics, labelled per monitored mount point
	hostDiskUsedBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "disk_used_bytes",
		Help:      "Current disk usage in bytes per monitored mount point",
	}, []string{"instance", "path"})

	hostDiskTotalBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "disk_total_bytes",
		Help:      "Total disk space in bytes per monitored mount point",
	}, []string{"instance", "path"})

	hostDiskUsagePercent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "disk_usage_percent",
		Help:      "Disk usage as percentage of total (0-100) per monitored mount point",
	}, []string{"instance", "path"})

	// Load averages
	hostLoadAverage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "load_average",
		Help:      "Host load average over the labelled window",
	}, []string{"instance", "window"})
)

// RecordHostMetrics updates the Prometheus gauges from one snapshot.
// instanceName distinguishes multiple agents pushing to one gateway.
func RecordHostMetrics(snapshot *Snapshot, instanceName string) {
	if snapshot == nil {
		return
	}

	if instanceName == "" {
		instanceName = DefaultInstanceName
	}

	// Register the error counter with the central metrics once
	metricsOnce.Do(func() {
		metrics.InitErrorCounter(metrics.ComponentHostMonitor, instanceName)
	})

	if snapshot.CPU != nil {
		hostCPUUsagePercent.WithLabelValues(instanceName).Set(snapshot.CPU.UsagePercent)
		hostCPUCoreCount.WithLabelValues(instanceName).Set(float64(snapshot.CPU.CoreCount))
	}

	if snapshot.Memory != nil {
		hostMemoryUsedBytes.WithLabelValues(instanceName).Set(float64(snapshot.Memory.UsedBytes))
		hostMemoryTotalBytes.WithLabelValues(instanceName).Set(float64(snapshot.Memory.TotalBytes))
		hostMemoryUsagePercent.WithLabelValues(instanceName).Set(snapshot.Memory.UsedPercent)
	}

	for _, diskStats := range snapshot.Disks {
		hostDiskUsedBytes.WithLabelValues(instanceName, diskStats.Path).Set(float64(diskStats.UsedBytes))
		hostDiskTotalBytes.WithLabelValues(instanceName, diskStats.Path).Set(float64(diskStats.TotalBytes))
		hostDiskUsagePercent.WithLabelValues(instanceName, diskStats.Path).Set(diskStats.UsedPercent)
	}

	if snapshot.Load != nil {
		hostLoadAverage.WithLabelValues(instanceName, "1m").Set(snapshot.Load.Load1)
		hostLoadAverage.WithLabelValues(instanceName, "5m").Set(snapshot.Load.Load5)
		hostLoadAverage.WithLabelValues(instanceName, "15m").Set(snapshot.Load.Load15)
	}
}
