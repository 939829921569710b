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

package lifecycle

import (
	"context"

	internalfsm "github.com/svckit/svckit/internal/fsm"
	"github.com/svckit/svckit/pkg/metrics"
	"github.com/svckit/svckit/pkg/svcproto"
	"go.uber.org/zap"
)

// Operational state names of the internal machine. They mirror the native
// protocol states one to one.
const (
	stateStartPending    = "start_pending"
	stateRunning         = "running"
	stateStopPending     = "stop_pending"
	stateStopped         = "stopped"
	statePausePending    = "pause_pending"
	statePaused          = "paused"
	stateContinuePending = "continue_pending"
)

// Events of the internal machine. Failure recovery is expressed as ordinary
// events so the whole lifecycle diagram lives in one table; a failed stop
// restores the captured pre-stop state through one of the two stop_fail
// events.
const (
	eventStartDone       = "start_done"
	eventStartFail       = "start_fail"
	eventStop            = "stop"
	eventStopDone        = "stop_done"
	eventStopFailRunning = "stop_fail_running"
	eventStopFailPaused  = "stop_fail_paused"
	eventPause           = "pause"
	eventPauseDone       = "pause_done"
	eventPauseFail       = "pause_fail"
	eventContinue        = "continue"
	eventContinueDone    = "continue_done"
	eventContinueFail    = "continue_fail"
	eventShutdown        = "shutdown"
)

// newLifecycleMachine builds the seven-state machine in its initial
// start_pending state. The enter_state callback keeps the state gauge
// current.
func newLifecycleMachine(name string, log *zap.SugaredLogger) *internalfsm.Machine {
	events := []internalfsm.EventDesc{
		{Name: eventStartDone, Src: []string{stateStartPending}, Dst: stateRunning},
		{Name: eventStartFail, Src: []string{stateStartPending}, Dst: stateStopped},
		{Name: eventStop, Src: []string{stateRunning, statePaused}, Dst: stateStopPending},
		{Name: eventStopDone, Src: []string{stateStopPending}, Dst: stateStopped},
		{Name: eventStopFailRunning, Src: []string{stateStopPending}, Dst: stateRunning},
		{Name: eventStopFailPaused, Src: []string{stateStopPending}, Dst: statePaused},
		{Name: eventPause, Src: []string{stateRunning}, Dst: statePausePending},
		{Name: eventPauseDone, Src: []string{statePausePending}, Dst: statePaused},
		{Name: eventPauseFail, Src: []string{statePausePending}, Dst: stateRunning},
		{Name: eventContinue, Src: []string{statePaused}, Dst: stateContinuePending},
		{Name: eventContinueDone, Src: []string{stateContinuePending}, Dst: stateRunning},
		{Name: eventContinueFail, Src: []string{stateContinuePending}, Dst: statePaused},
		{Name: eventShutdown, Src: []string{stateRunning, statePaused}, Dst: stateStopped},
	}

	machine := internalfsm.NewMachine(name, stateStartPending, events, log)
	machine.AddCallback("enter_state", func(_ context.Context, e *internalfsm.Event) {
		log.Debugf("Service %s: %s -> %s (%s)", name, e.Src, e.Dst, e.Event)
		metrics.UpdateServiceState(name, uint32(protoState(e.Dst)))
	})

	return machine
}

// protoState maps an operational state name to its native protocol state.
func protoState(operational string) svcproto.State {
	switch operational {
	case stateStopped:
		return svcproto.StateStopped
	case stateStartPending:
		return svcproto.StateStartPending
	case stateStopPending:
		return svcproto.StateStopPending
	case stateRunning:
		return svcproto.StateRunning
	case stateContinuePending:
		return svcproto.StateContinuePending
	case statePausePending:
		return svcproto.StatePausePending
	case statePaused:
		return svcproto.StatePaused
	default:
		return svcproto.StateStopped
	}
}
