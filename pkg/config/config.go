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

package config

import (
	"time"

	"github.com/tiendc/go-deepcopy"

	"github.com/svckit/svckit/pkg/constants"
	"github.com/svckit/svckit/pkg/svcproto"
)

type FullConfig struct {
	Service ServiceConfig `yaml:"service" json:"service"`       // Service identity and capabilities, requires restart to take effect
	Agent   AgentConfig   `yaml:"agent,omitempty" json:"agent"` // Agent plumbing around the service: API, metrics, host monitor, event log
}

// ServiceConfig declares the service identity and which controls it accepts.
type ServiceConfig struct {
	Name             string        `yaml:"name" json:"name"`                         // Name registered with the service manager
	CanStop          bool          `yaml:"canStop" json:"canStop"`                   // Service handles the stop control
	CanShutdown      bool          `yaml:"canShutdown" json:"canShutdown"`           // Service wants shutdown notifications
	CanPauseContinue bool          `yaml:"canPauseContinue" json:"canPauseContinue"` // Service handles pause and continue
	WaitHint         time.Duration `yaml:"waitHint,omitempty" json:"waitHint"`       // Per-checkpoint budget for pending transitions
}

// Descriptor converts the service section into the registration descriptor.
func (s ServiceConfig) Descriptor() svcproto.Descriptor {
	return svcproto.Descriptor{
		Name:             s.Name,
		CanStop:          s.CanStop,
		CanShutdown:      s.CanShutdown,
		CanPauseContinue: s.CanPauseContinue,
	}
}

type AgentConfig struct {
	APIPort         int            `yaml:"apiPort,omitempty" json:"apiPort"`                 // Port for the diagnostics HTTP API
	APITokenHash    string         `yaml:"apiTokenHash,omitempty" json:"apiTokenHash"`       // SHA3-256 hex digest of the API bearer token
	MetricsPort     int            `yaml:"metricsPort,omitempty" json:"metricsPort"`         // Port to expose metrics on
	MonitorInterval time.Duration  `yaml:"monitorInterval,omitempty" json:"monitorInterval"` // Host sampler period
	MonitorDisks    []string       `yaml:"monitorDisks,omitempty" json:"monitorDisks"`       // Mount points the host sampler watches
	EventLog        EventLogConfig `yaml:"eventLog,omitempty" json:"eventLog"`               // Persistent lifecycle event log
}

// EventLogConfig controls the persistent lifecycle event log.
type EventLogConfig struct {
	Path        string `yaml:"path,omitempty" json:"path"`               // Live log file location
	MaxBytes    int64  `yaml:"maxBytes,omitempty" json:"maxBytes"`       // Rotation threshold in bytes
	MaxArchives int    `yaml:"maxArchives,omitempty" json:"maxArchives"` // Rotated archives retained before pruning
}

// Clone creates a deep copy of FullConfig
func (c FullConfig) Clone() FullConfig {
	var clone FullConfig
	deepcopy.Copy(&clone.Service, &c.Service)
	deepcopy.Copy(&clone.Agent, &c.Agent)
	return clone
}

// applyDefaults fills zero-valued fields with their documented defaults.
// The capability booleans stay untouched: absent means the control is refused.
func (c *FullConfig) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = constants.DefaultServiceName
	}
	if c.Service.WaitHint <= 0 {
		c.Service.WaitHint = constants.DefaultWaitHint
	}
	if c.Agent.APIPort == 0 {
		c.Agent.APIPort = constants.DefaultAPIPort
	}
	if c.Agent.MetricsPort == 0 {
		c.Agent.MetricsPort = constants.DefaultMetricsPort
	}
	if c.Agent.MonitorInterval <= 0 {
		c.Agent.MonitorInterval = constants.DefaultMonitorInterval
	}
	if len(c.Agent.MonitorDisks) == 0 {
		c.Agent.MonitorDisks = []string{constants.DefaultMonitorDisk}
	}
	if c.Agent.EventLog.Path == "" {
		c.Agent.EventLog.Path = constants.DefaultEventLogPath
	}
	if c.Agent.EventLog.MaxBytes <= 0 {
		c.Agent.EventLog.MaxBytes = constants.DefaultEventLogMaxBytes
	}
	if c.Agent.EventLog.MaxArchives <= 0 {
		c.Agent.EventLog.MaxArchives = constants.DefaultEventLogMaxArchives
	}
}

// DefaultFullConfig is the config written on first boot when no file exists
// yet. All capabilities start enabled.
func DefaultFullConfig() FullConfig {
	cfg := FullConfig{
		Service: ServiceConfig{
			CanStop:          true,
			CanShutdown:      true,
			CanPauseContinue: true,
		},
	}
	cfg.applyDefaults()

	return cfg
}
