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

	"github.com/stretchr/testify/mock"
)

// MockMonitor is a mock implementation of the host monitor Service interface.
type MockMonitor struct {
	mock.Mock
}

// NewMockMonitor creates a new mock monitor instance.
func NewMockMonitor() *MockMonitor {
	return &MockMonitor{}
}

// Sample is a mock implementation of Service.Sample.
func (m *MockMonitor) Sample() *Snapshot {
	args := m.Called()

	if args.Get(0) == nil {
		return nil
	}

	return args.Get(0).(*Snapshot)
}

// CreateDefaultSnapshot returns a healthy host snapshot for testing.
func CreateDefaultSnapshot() *Snapshot {
	return &Snapshot{
		CPU: &CPUStats{
			UsagePercent: 12.5,
			CoreCount:    4,
		},
		Memory: &MemoryStats{
			UsedBytes:   1073741824, // 1 GB
			TotalBytes:  4294967296, // 4 GB
			UsedPercent: 25.0,
		},
		Disks: []DiskStats{
			{
				Path:        "/",
				UsedBytes:   536870912,   // 512 MB
				TotalBytes:  10737418240, // 10 GB
				UsedPercent: 5.0,
			},
		},
		Load: &LoadStats{
			Load1:  0.42,
			Load5:  0.31,
			Load15: 0.18,
		},
		CollectedAt: time.Now(),
	}
}

// SetupMockForSample configures the mock to return a healthy snapshot.
func (m *MockMonitor) SetupMockForSample() {
	m.On("Sample").Return(CreateDefaultSnapshot())
}

// SetupMockForNoSample configures the mock to behave as if the monitor has
// not completed a sample yet.
func (m *MockMonitor) SetupMockForNoSample() {
	m.On("Sample").Return(nil)
}
