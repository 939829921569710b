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
	// DefaultAppVersion is what un-tagged development builds report.
	// Release builds override it through the version package ldflags.
	DefaultAppVersion = "0.0.0-dev"

	// DefaultDevelopmentEnvironment tags issue reports from prerelease
	// builds, DefaultProductionEnvironment those from tagged releases.
	DefaultDevelopmentEnvironment = "development"
	DefaultProductionEnvironment  = "production"

	// DefaultServiceName is used when neither the config file nor the
	// environment provides a service name.
	DefaultServiceName = "svckit-agent"

	// DefaultConfigPath is where the agent looks for its config file
	// unless SVCKIT_CONFIG_PATH overrides it.
	DefaultConfigPath = "/etc/svckit/config.yaml"

	// DefaultWaitHint is the advisory duration reported alongside pending
	// states. The manager treats a pending transition as hung once the
	// hint elapses without a checkpoint advance.
	DefaultWaitHint = 30 * time.Second

	// DefaultTransitionTimeout bounds a single lifecycle transition,
	// including the hook body and both status reports.
	DefaultTransitionTimeout = 30 * time.Second

	// ExpectedMaxP95ExecutionTimePerEvent is the minimum context lifetime
	// required before a state machine event may start. Transitions that
	// begin with less remaining time than this risk being interrupted
	// mid-transition, which leaves the machine wedged.
	ExpectedMaxP95ExecutionTimePerEvent = 10 * time.Millisecond

	// ControlQueueSize is the buffer of the per-registration control
	// channel. The manager delivers serially, so anything above a couple
	// of slots only absorbs a burst during a slow transition.
	ControlQueueSize = 8
)
