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

package scm

import (
	"context"
	"sync"

	"github.com/svckit/svckit/pkg/constants"
	"github.com/svckit/svckit/pkg/svcproto"
)

// MockSession is a mock implementation of the Session interface that
// records every status report.
type MockSession struct {
	// SetStatusCalled is set once SetStatus has been invoked.
	SetStatusCalled bool
	// SetStatusError is returned by SetStatus when set. The report is
	// still recorded.
	SetStatusError error

	statuses  []svcproto.Status
	onStopped func()
	mu        sync.Mutex
}

// SetStatus records the report.
func (m *MockSession) SetStatus(ctx context.Context, status svcproto.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.SetStatusCalled = true
	m.statuses = append(m.statuses, status)
	hook := m.onStopped
	err := m.SetStatusError
	m.mu.Unlock()

	if status.State == svcproto.StateStopped && hook != nil {
		hook()
	}

	return err
}

// Statuses returns a copy of all recorded reports.
func (m *MockSession) Statuses() []svcproto.Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]svcproto.Status, len(m.statuses))
	copy(out, m.statuses)

	return out
}

// States returns just the state of each recorded report, in order.
func (m *MockSession) States() []svcproto.State {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]svcproto.State, 0, len(m.statuses))
	for _, status := range m.statuses {
		out = append(out, status.State)
	}

	return out
}

// CheckPoints returns just the checkpoint of each recorded report, in order.
func (m *MockSession) CheckPoints() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]uint32, 0, len(m.statuses))
	for _, status := range m.statuses {
		out = append(out, status.CheckPoint)
	}

	return out
}

// Last returns the most recent report, if any.
func (m *MockSession) Last() (svcproto.Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.statuses) == 0 {
		return svcproto.Status{}, false
	}

	return m.statuses[len(m.statuses)-1], true
}

// Reset clears all recorded reports.
func (m *MockSession) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SetStatusCalled = false
	m.statuses = nil
}

// MockConn is an in-memory manager for tests. Control codes are injected
// with Send and the channel is closed with Finish, or automatically on the
// first Stopped report when CloseOnStopped is set.
type MockConn struct {
	// RegisterCalled is set once Register has been invoked.
	RegisterCalled bool
	// RegisterError is returned by Register when set.
	RegisterError error
	// CloseOnStopped closes the control channel when the session records
	// a Stopped report, mirroring real manager behavior.
	CloseOnStopped bool
	// RegisterArgs are handed out as the registration's start arguments.
	RegisterArgs []string

	// Session records the service's status reports.
	Session *MockSession

	// RegisteredName and RegisteredAccepts capture the Register call.
	RegisteredName    string
	RegisteredAccepts svcproto.Accepted

	controls   chan svcproto.ControlCode
	finishOnce sync.Once
	mu         sync.Mutex
}

// NewMockConn creates a MockConn with an empty session.
func NewMockConn() *MockConn {
	conn := &MockConn{
		Session:  &MockSession{},
		controls: make(chan svcproto.ControlCode, constants.ControlQueueSize),
	}
	conn.Session.onStopped = func() {
		if conn.CloseOnStopped {
			conn.Finish()
		}
	}

	return conn
}

// Register records the call and hands out the mock session.
func (m *MockConn) Register(ctx context.Context, name string, accepts svcproto.Accepted) (*Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.RegisterCalled = true
	if m.RegisterError != nil {
		return nil, m.RegisterError
	}

	m.RegisteredName = name
	m.RegisteredAccepts = accepts

	return &Registration{
		Session:  m.Session,
		Controls: m.controls,
		Args:     m.RegisterArgs,
	}, nil
}

// Send delivers one control code to the registered service.
func (m *MockConn) Send(code svcproto.ControlCode) {
	m.controls <- code
}

// Finish closes the control channel. Safe to call more than once.
func (m *MockConn) Finish() {
	m.finishOnce.Do(func() {
		close(m.controls)
	})
}
