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

// Package hostmonitor samples host statistics (CPU, memory, disk, load) on a
// ticker goroutine. The monitor is the agent's pausable workload: it
// implements the lifecycle hooks, suspends sampling while the service is
// paused and feeds a watchdog heartbeat with every completed sample.
package hostmonitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/svckit/svckit/pkg/constants"
	"github.com/svckit/svckit/pkg/lifecycle"
	"github.com/svckit/svckit/pkg/logger"
	"github.com/svckit/svckit/pkg/metrics"
	"github.com/svckit/svckit/pkg/watchdog"
)

// Service is the read surface the HTTP API consumes.
type Service interface {
	// Sample returns the latest completed snapshot, nil before the first
	// sample.
	Sample() *Snapshot
}

// heartbeatName identifies the sampling loop in the watchdog registry.
const heartbeatName = "host-monitor"

// heartbeatWarningsUntilFailure trips the watchdog after this many
// consecutive degraded samples.
const heartbeatWarningsUntilFailure = 5

// Monitor runs the sampling loop. It implements lifecycle.Handler so the
// controller starts, pauses, continues and stops it, and Service so the HTTP
// API can read the latest snapshot.
type Monitor struct {
	instanceName string
	interval     time.Duration
	disks        []string
	sampler      Sampler
	dog          watchdog.Iface
	logger       *zap.SugaredLogger

	latest      atomic.Pointer[Snapshot]
	paused      atomic.Bool
	heartbeatID uuid.UUID

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var (
	_ lifecycle.Handler = (*Monitor)(nil)
	_ Service           = (*Monitor)(nil)
)

// NewMonitor creates a monitor sampling every interval for the given mount
// points. Zero values fall back to the agent defaults.
func NewMonitor(instanceName string, interval time.Duration, disks []string, dog watchdog.Iface) *Monitor {
	if instanceName == "" {
		instanceName = DefaultInstanceName
	}
	if interval <= 0 {
		interval = constants.DefaultMonitorInterval
	}
	if len(disks) == 0 {
		disks = []string{constants.DefaultMonitorDisk}
	}

	return &Monitor{
		instanceName: instanceName,
		interval:     interval,
		disks:        disks,
		sampler:      HostSampler{},
		dog:          dog,
		logger:       logger.For(logger.ComponentHostMonitor),
	}
}

// WithSampler replaces the gopsutil sampler. Used in tests.
func (m *Monitor) WithSampler(sampler Sampler) *Monitor {
	m.sampler = sampler
	return m
}

// Sample returns the latest completed snapshot, nil before the first sample.
func (m *Monitor) Sample() *Snapshot {
	return m.latest.Load()
}

// OnStart launches the sampling loop. The loop runs on its own context: the
// hook context only covers the transition and is cancelled once the service
// is running.
func (m *Monitor) OnStart(ctx context.Context, args []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return errors.New("host monitor already running")
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.paused.Store(false)
	m.heartbeatID = m.dog.RegisterHeartbeat(heartbeatName, heartbeatWarningsUntilFailure, m.heartbeatTimeout(), true)
	m.dog.SetActive(true)

	go m.run(loopCtx)
	m.logger.Infof("Host monitor started, sampling every %s (disks: %v)", m.interval, m.disks)
	return nil
}

// OnStop cancels the sampling loop and waits for it to exit.
func (m *Monitor) OnStop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return nil
	}

	m.cancel()
	select {
	case <-m.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.cancel = nil
	m.dog.SetActive(false)
	m.dog.UnregisterHeartbeat(m.heartbeatID)
	m.logger.Infof("Host monitor stopped")
	return nil
}

// OnPause suspends sampling. The loop keeps ticking so Continue is cheap;
// the watchdog is told the service is inactive so the silent heartbeat does
// not trip it.
func (m *Monitor) OnPause(ctx context.Context) error {
	m.paused.Store(true)
	m.dog.SetActive(false)
	m.logger.Infof("Host monitor paused")
	return nil
}

// OnContinue resumes sampling after a pause.
func (m *Monitor) OnContinue(ctx context.Context) error {
	m.paused.Store(false)
	m.dog.SetActive(true)
	m.logger.Infof("Host monitor resumed")
	return nil
}

// OnShutdown is the abbreviated stop used on system shutdown.
func (m *Monitor) OnShutdown(ctx context.Context) error {
	return m.OnStop(ctx)
}

// heartbeatTimeout allows three missed samples before the watchdog trips.
func (m *Monitor) heartbeatTimeout() uint64 {
	seconds := int64(3 * m.interval / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return uint64(seconds)
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// First sample right away so status queries have data as soon as the
	// service reports running.
	m.sampleOnce(ctx)
	for {
		select {
		case <-ticker.C:
			m.sampleOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) sampleOnce(ctx context.Context) {
	if m.paused.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	snapshot, healthy := m.collect(ctx)
	m.latest.Store(snapshot)
	RecordHostMetrics(snapshot, m.instanceName)

	if healthy {
		m.dog.ReportHeartbeatStatus(m.heartbeatID, watchdog.HEARTBEAT_STATUS_OK)
		return
	}
	m.dog.ReportHeartbeatStatus(m.heartbeatID, watchdog.HEARTBEAT_STATUS_WARNING)
}

// collect gathers all sample parts, logging and skipping the ones that fail.
// The bool reports whether every collector succeeded.
func (m *Monitor) collect(ctx context.Context) (*Snapshot, bool) {
	snapshot := &Snapshot{CollectedAt: time.Now()}
	healthy := true

	cpuStats, err := m.sampler.CPU(ctx)
	if err != nil {
		m.logger.Warnf("Failed to get CPU stats: %v", err)
		metrics.IncErrorCount(metrics.ComponentHostMonitor, m.instanceName)
		healthy = false
	} else {
		snapshot.CPU = cpuStats
	}

	memoryStats, err := m.sampler.Memory(ctx)
	if err != nil {
		m.logger.Warnf("Failed to get memory stats: %v", err)
		metrics.IncErrorCount(metrics.ComponentHostMonitor, m.instanceName)
		healthy = false
	} else {
		snapshot.Memory = memoryStats
	}

	for _, path := range m.disks {
		diskStats, err := m.sampler.Disk(ctx, path)
		if err != nil {
			m.logger.Warnf("Failed to get disk stats for %s: %v", path, err)
			metrics.IncErrorCount(metrics.ComponentHostMonitor, m.instanceName)
			healthy = false
			continue
		}
		snapshot.Disks = append(snapshot.Disks, *diskStats)
	}

	loadStats, err := m.sampler.Load(ctx)
	if err != nil {
		m.logger.Warnf("Failed to get load average: %v", err)
		metrics.IncErrorCount(metrics.ComponentHostMonitor, m.instanceName)
		healthy = false
	} else {
		snapshot.Load = loadStats
	}

	return snapshot, healthy
}
