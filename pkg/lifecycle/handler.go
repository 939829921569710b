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
	"sync"
)

// Handler receives the lifecycle hooks of a service. Each hook runs
// synchronously on the goroutine delivering the control notification; the
// transition settles when the hook returns. A hook that needs a long time
// should call the controller's ReportProgress periodically so the manager
// keeps waiting.
//
// A hook error carrying a svcproto.CodedError is written to the event log
// with its numeric code and, for a failed start, reported as the exit code.
// Any other error (and any recovered panic) counts as an unspecified
// failure.
type Handler interface {
	// OnStart brings the service into the running state. args are the
	// manager-provided start arguments.
	OnStart(ctx context.Context, args []string) error
	// OnStop winds the service down.
	OnStop(ctx context.Context) error
	// OnPause suspends work while keeping the process alive.
	OnPause(ctx context.Context) error
	// OnContinue resumes work after a pause.
	OnContinue(ctx context.Context) error
	// OnShutdown is the abbreviated system-shutdown path. Only work that
	// must happen before power-off belongs here.
	OnShutdown(ctx context.Context) error
}

// NopHandler accepts every transition without doing anything. Embed it to
// implement only the hooks a service cares about.
type NopHandler struct{}

// OnStart implements Handler.
func (NopHandler) OnStart(context.Context, []string) error { return nil }

// OnStop implements Handler.
func (NopHandler) OnStop(context.Context) error { return nil }

// OnPause implements Handler.
func (NopHandler) OnPause(context.Context) error { return nil }

// OnContinue implements Handler.
func (NopHandler) OnContinue(context.Context) error { return nil }

// OnShutdown implements Handler.
func (NopHandler) OnShutdown(context.Context) error { return nil }

// MockHandler is a mock implementation of the Handler interface. Hooks
// record their invocation, return the configured error and can be replaced
// wholesale through the Func fields.
type MockHandler struct {
	OnStartCalled    bool
	OnStopCalled     bool
	OnPauseCalled    bool
	OnContinueCalled bool
	OnShutdownCalled bool

	OnStartError    error
	OnStopError     error
	OnPauseError    error
	OnContinueError error
	OnShutdownError error

	OnStartFunc    func(ctx context.Context, args []string) error
	OnStopFunc     func(ctx context.Context) error
	OnPauseFunc    func(ctx context.Context) error
	OnContinueFunc func(ctx context.Context) error
	OnShutdownFunc func(ctx context.Context) error

	// StartArgs captures the arguments of the last OnStart call.
	StartArgs []string

	// Calls lists the hook names in invocation order.
	Calls []string

	mu sync.Mutex
}

// OnStart implements Handler.
func (m *MockHandler) OnStart(ctx context.Context, args []string) error {
	m.mu.Lock()
	m.OnStartCalled = true
	m.StartArgs = args
	m.Calls = append(m.Calls, "OnStart")
	m.mu.Unlock()

	if m.OnStartFunc != nil {
		return m.OnStartFunc(ctx, args)
	}

	return m.OnStartError
}

// OnStop implements Handler.
func (m *MockHandler) OnStop(ctx context.Context) error {
	m.mu.Lock()
	m.OnStopCalled = true
	m.Calls = append(m.Calls, "OnStop")
	m.mu.Unlock()

	if m.OnStopFunc != nil {
		return m.OnStopFunc(ctx)
	}

	return m.OnStopError
}

// OnPause implements Handler.
func (m *MockHandler) OnPause(ctx context.Context) error {
	m.mu.Lock()
	m.OnPauseCalled = true
	m.Calls = append(m.Calls, "OnPause")
	m.mu.Unlock()

	if m.OnPauseFunc != nil {
		return m.OnPauseFunc(ctx)
	}

	return m.OnPauseError
}

// OnContinue implements Handler.
func (m *MockHandler) OnContinue(ctx context.Context) error {
	m.mu.Lock()
	m.OnContinueCalled = true
	m.Calls = append(m.Calls, "OnContinue")
	m.mu.Unlock()

	if m.OnContinueFunc != nil {
		return m.OnContinueFunc(ctx)
	}

	return m.OnContinueError
}

// OnShutdown implements Handler.
func (m *MockHandler) OnShutdown(ctx context.Context) error {
	m.mu.Lock()
	m.OnShutdownCalled = true
	m.Calls = append(m.Calls, "OnShutdown")
	m.mu.Unlock()

	if m.OnShutdownFunc != nil {
		return m.OnShutdownFunc(ctx)
	}

	return m.OnShutdownError
}
