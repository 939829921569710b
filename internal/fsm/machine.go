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

// Package fsm wraps looplab/fsm with the conventions used throughout this
// repo: a callbacks map dispatched from a single enter_state hook, context
// protection around event firing, and a forced-state escape hatch for
// recovery paths.
package fsm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/svckit/svckit/pkg/constants"
	"github.com/svckit/svckit/pkg/errorhandling"
	"github.com/svckit/svckit/pkg/logger"
)

// EventDesc re-exports the looplab event table entry so callers do not
// import looplab directly.
type EventDesc = fsm.EventDesc

// Callback re-exports the looplab callback type.
type Callback = fsm.Callback

// Event re-exports the looplab event handed to callbacks.
type Event = fsm.Event

// Machine is a mutex-guarded state machine instance identified by name.
type Machine struct {
	id        string
	mu        sync.RWMutex
	fsm       *fsm.FSM
	callbacks map[string]fsm.Callback
	logger    *zap.SugaredLogger
}

// NewMachine builds a machine with the given initial state and event table.
// Callbacks registered via AddCallback fire on the matching enter_<state>
// and enter_state keys.
func NewMachine(id, initial string, events []EventDesc, log *zap.SugaredLogger) *Machine {
	if log == nil {
		log = logger.For(logger.ComponentFSM)
	}

	m := &Machine{
		id:        id,
		callbacks: make(map[string]fsm.Callback),
		logger:    log,
	}

	m.fsm = fsm.NewFSM(
		initial,
		fsm.Events(events),
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				if cb, ok := m.callbacks["enter_"+e.Dst]; ok {
					cb(ctx, e)
				}
				if cb, ok := m.callbacks["enter_state"]; ok {
					cb(ctx, e)
				}
			},
		},
	)

	return m
}

// AddCallback registers a callback for a given event name. Not safe to call
// concurrently with Fire; register everything during construction.
func (m *Machine) AddCallback(eventName string, callback Callback) {
	m.callbacks[eventName] = callback
}

// Current returns the current state.
func (m *Machine) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.fsm.Current()
}

// Is reports whether the machine is in the given state.
func (m *Machine) Is(state string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.fsm.Is(state)
}

// Can reports whether the event can fire from the current state.
func (m *Machine) Can(event string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.fsm.Can(event)
}

// Fire sends an event to the machine.
//
// A context that expires mid-transition leaves looplab's internal
// transition flag set, and every later event then fails with "previous
// transition did not complete". Fire therefore refuses to start when the
// context is already cancelled or has less lifetime left than a transition
// may need.
func (m *Machine) Fire(ctx context.Context, event string, args ...interface{}) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := errorhandling.EnsureMinimumLifetime(ctx, constants.ExpectedMaxP95ExecutionTimePerEvent); err != nil {
		return fmt.Errorf("refusing event %s: %w", event, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.fsm.Event(ctx, event, args...)
}

// ForceState moves the machine to the given state without firing events or
// callbacks. Reserved for recovery paths that restore a captured state.
func (m *Machine) ForceState(state string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Debugf("Forcing state of %s to %s", m.id, state)
	m.fsm.SetState(state)
}

// IsInvalidEvent reports whether err marks an event that is not legal in
// the state it was fired from (as opposed to an unknown event name or a
// cancelled transition).
func IsInvalidEvent(err error) bool {
	var invalid fsm.InvalidEventError
	return errors.As(err, &invalid)
}
