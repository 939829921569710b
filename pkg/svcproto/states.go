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

// Package svcproto defines the value types of the service manager protocol:
// lifecycle states, control codes, the accepted-controls bitmask, the status
// record reported back to the manager and the service descriptor.
//
// All numeric values are the manager's native wire codes and must not be
// renumbered.
package svcproto

import "fmt"

// State is a service lifecycle state.
type State uint32

const (
	// StateStopped means the service is not running. Terminal.
	StateStopped State = 1
	// StateStartPending means the service is starting. Initial.
	StateStartPending State = 2
	// StateStopPending means the service is stopping.
	StateStopPending State = 3
	// StateRunning means the service is running.
	StateRunning State = 4
	// StateContinuePending means the service is resuming from pause.
	StateContinuePending State = 5
	// StatePausePending means the service is pausing.
	StatePausePending State = 6
	// StatePaused means the service is paused.
	StatePaused State = 7
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStartPending:
		return "StartPending"
	case StateStopPending:
		return "StopPending"
	case StateRunning:
		return "Running"
	case StateContinuePending:
		return "ContinuePending"
	case StatePausePending:
		return "PausePending"
	case StatePaused:
		return "Paused"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// IsPending reports whether s is one of the four transitional states during
// which the checkpoint heartbeat advances.
func (s State) IsPending() bool {
	switch s {
	case StateStartPending, StateStopPending, StatePausePending, StateContinuePending:
		return true
	default:
		return false
	}
}

// ControlCode is a lifecycle request delivered by the manager.
type ControlCode uint32

const (
	// ControlStop requests the stop transition.
	ControlStop ControlCode = 1
	// ControlPause requests the pause transition.
	ControlPause ControlCode = 2
	// ControlContinue requests the resume transition.
	ControlContinue ControlCode = 3
	// ControlInterrogate asks for the current status. The status record is
	// kept current at all times, so this is satisfied implicitly.
	ControlInterrogate ControlCode = 4
	// ControlShutdown notifies the service of system shutdown.
	ControlShutdown ControlCode = 5
	// ControlParamChange notifies of a parameter change. Never a lifecycle
	// transition; the dispatcher hands it to the agent's reload hook.
	ControlParamChange ControlCode = 6
)

// String implements fmt.Stringer.
func (c ControlCode) String() string {
	switch c {
	case ControlStop:
		return "Stop"
	case ControlPause:
		return "Pause"
	case ControlContinue:
		return "Continue"
	case ControlInterrogate:
		return "Interrogate"
	case ControlShutdown:
		return "Shutdown"
	case ControlParamChange:
		return "ParamChange"
	default:
		return fmt.Sprintf("ControlCode(%d)", uint32(c))
	}
}

// Accepted is the bitmask of control codes a service declares it accepts.
// It is derived once from the descriptor's capability set at registration
// and never changes afterwards.
type Accepted uint32

const (
	// AcceptStop admits ControlStop.
	AcceptStop Accepted = 1 << 0
	// AcceptPauseContinue admits ControlPause and ControlContinue.
	AcceptPauseContinue Accepted = 1 << 1
	// AcceptShutdown admits ControlShutdown.
	AcceptShutdown Accepted = 1 << 2
)

// Has reports whether every bit of flag is set in a.
func (a Accepted) Has(flag Accepted) bool {
	return a&flag == flag
}

// Admits reports whether the mask allows delivery of the given control
// code. Interrogate and unknown codes are always admitted; they are routed
// to no-ops.
func (a Accepted) Admits(code ControlCode) bool {
	switch code {
	case ControlStop:
		return a.Has(AcceptStop)
	case ControlPause, ControlContinue:
		return a.Has(AcceptPauseContinue)
	case ControlShutdown:
		return a.Has(AcceptShutdown)
	default:
		return true
	}
}

// ServiceType tags the kind of process hosting the service.
type ServiceType uint32

// ServiceOwnProcess is a service running in its own standalone process,
// the only type this controller supports.
const ServiceOwnProcess ServiceType = 0x10
