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

import "time"

// Status is the full record a service reports to the manager after every
// transition step. The manager compares consecutive records to decide
// whether a pending transition is still alive (CheckPoint advanced) or hung
// (WaitHint elapsed without an advance).
type Status struct {
	// ServiceType is fixed to ServiceOwnProcess for this controller.
	ServiceType ServiceType `json:"serviceType"`
	// State is the current lifecycle state.
	State State `json:"state"`
	// Accepts is the accepted-controls mask declared at registration.
	Accepts Accepted `json:"accepts"`
	// ExitCode is the process-level exit code, 0 on success. Carries the
	// coded failure value when a failed start reports Stopped.
	ExitCode uint32 `json:"exitCode"`
	// ServiceSpecificExitCode is unused and always 0.
	ServiceSpecificExitCode uint32 `json:"serviceSpecificExitCode"`
	// CheckPoint is 0 for Running and Stopped; otherwise it carries the
	// next value of the reporter's monotonic heartbeat counter.
	CheckPoint uint32 `json:"checkPoint"`
	// WaitHint advises how long the manager should wait for the next
	// checkpoint before declaring the transition hung.
	WaitHint time.Duration `json:"waitHint"`
}
