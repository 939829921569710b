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

// Package dispatch binds lifecycle controllers to a manager connection and
// runs the control dispatch loop. Bindings are identified by opaque tokens
// instead of a package-global controller pointer, so tests and embedders
// can hold several controllers without stepping on each other; a registry
// still dispatches for at most one of them at a time.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/svckit/svckit/pkg/constants"
	"github.com/svckit/svckit/pkg/lifecycle"
	"github.com/svckit/svckit/pkg/logger"
	"github.com/svckit/svckit/pkg/metrics"
	"github.com/svckit/svckit/pkg/scm"
	"github.com/svckit/svckit/pkg/sentry"
	"github.com/svckit/svckit/pkg/svcproto"
	"go.uber.org/zap"
)

var (
	// ErrNotBound is returned by Run for a token with no live binding.
	ErrNotBound = errors.New("token is not bound to a controller")
	// ErrDispatcherActive is returned by Run while another Run is in
	// flight on the same registry.
	ErrDispatcherActive = errors.New("dispatcher already active")
	// ErrNilController is returned by Bind for a nil controller.
	ErrNilController = errors.New("controller must not be nil")
)

// Token identifies one binding. Tokens are opaque; their only use is being
// handed back to the registry that issued them.
type Token struct {
	id string
}

// String returns the token id for logging.
func (t Token) String() string {
	return t.id
}

// Registry issues tokens for controllers and dispatches manager control
// codes to the bound controller.
type Registry struct {
	bindings    map[Token]*lifecycle.Controller
	paramChange func()
	active      bool
	log         *zap.SugaredLogger
	mu          sync.Mutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		bindings: make(map[Token]*lifecycle.Controller),
		log:      logger.For(logger.ComponentDispatch),
	}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry serving the ordinary
// one-service agent. Tests construct their own registries instead.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})

	return defaultRegistry
}

// Bind records the controller and issues the token that names it.
func (r *Registry) Bind(ctrl *lifecycle.Controller) (Token, error) {
	if ctrl == nil {
		return Token{}, ErrNilController
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tok := Token{id: uuid.NewString()}
	r.bindings[tok] = ctrl

	r.log.Debugf("Bound service %s as %s", ctrl.Descriptor().Name, tok)

	return tok, nil
}

// Release removes the binding. A released token can no longer Run.
func (r *Registry) Release(tok Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.bindings, tok)
}

// OnParamChange installs the callback invoked for each parameter-change
// notification. The control never touches lifecycle state; agents use the
// hook to reload their configuration. Call before Run.
func (r *Registry) OnParamChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.paramChange = fn
}

func (r *Registry) paramChangeHook() func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.paramChange
}

// Run connects the bound controller to the manager and dispatches control
// codes until the control channel closes or ctx is cancelled. It registers
// the service under its descriptor name with the descriptor's accept mask,
// attaches the session and drives the start transition before entering the
// loop.
//
// Registration failures and status emission failures are fatal and
// returned; hook failures are already consumed by the controller's failure
// policy and do not end the loop.
func (r *Registry) Run(ctx context.Context, tok Token, conn scm.Conn) error {
	r.mu.Lock()
	ctrl, ok := r.bindings[tok]
	if !ok {
		r.mu.Unlock()

		return ErrNotBound
	}
	if r.active {
		r.mu.Unlock()

		return ErrDispatcherActive
	}
	r.active = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.active = false
		r.mu.Unlock()
	}()

	desc := ctrl.Descriptor()

	registration, err := conn.Register(ctx, desc.Name, desc.AcceptMask())
	if err != nil {
		return err
	}

	ctrl.AttachSession(registration.Session)

	if err := ctrl.Start(ctx, registration.Args); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case code, open := <-registration.Controls:
			if !open {
				r.log.Debugf("Service %s control channel closed, dispatch done", desc.Name)

				return nil
			}

			if err := r.route(ctx, ctrl, code); err != nil {
				return err
			}
		}
	}
}

// route maps one control code onto a controller operation. A code whose
// capability is not declared, an unrecognized code, and a code that is not
// valid in the current state are logged no-ops: no transition runs and no
// diagnostic entry is written.
func (r *Registry) route(ctx context.Context, ctrl *lifecycle.Controller, code svcproto.ControlCode) error {
	desc := ctrl.Descriptor()

	// One budget per control: a hung hook must not wedge the loop's
	// context for every later control.
	ctx, cancel := context.WithTimeout(ctx, constants.DefaultTransitionTimeout)
	defer cancel()

	var err error
	switch code {
	case svcproto.ControlStop:
		if !desc.CanStop {
			return r.ignore(desc.Name, code, "stop capability not declared")
		}
		err = ctrl.Stop(ctx)
	case svcproto.ControlPause:
		if !desc.CanPauseContinue {
			return r.ignore(desc.Name, code, "pause capability not declared")
		}
		err = ctrl.Pause(ctx)
	case svcproto.ControlContinue:
		if !desc.CanPauseContinue {
			return r.ignore(desc.Name, code, "continue capability not declared")
		}
		err = ctrl.Resume(ctx)
	case svcproto.ControlShutdown:
		if !desc.CanShutdown {
			return r.ignore(desc.Name, code, "shutdown capability not declared")
		}
		err = ctrl.Shutdown(ctx)
	case svcproto.ControlInterrogate:
		// The status record is kept current at all times; there is
		// nothing to refresh.
		return r.ignore(desc.Name, code, "status already current")
	case svcproto.ControlParamChange:
		if notify := r.paramChangeHook(); notify != nil {
			r.log.Infof("Service %s reloading parameters", desc.Name)
			notify()
			metrics.IncControlCode(code.String(), metrics.DispositionDispatched)

			return nil
		}

		return r.ignore(desc.Name, code, "no parameter-change hook installed")
	default:
		return r.ignore(desc.Name, code, "unrecognized code")
	}

	if err != nil {
		if errors.Is(err, lifecycle.ErrInvalidTransition) {
			return r.ignore(desc.Name, code, err.Error())
		}

		metrics.IncErrorCount(metrics.ComponentDispatch, desc.Name)
		sentry.ReportControlError(r.log, desc.Name, code.String(), err)

		return err
	}

	metrics.IncControlCode(code.String(), metrics.DispositionDispatched)

	return nil
}

// ignore records a dropped control code.
func (r *Registry) ignore(name string, code svcproto.ControlCode, reason string) error {
	metrics.IncControlCode(code.String(), metrics.DispositionIgnored)
	r.log.Debugf("Service %s ignoring control %s: %s", name, code, reason)

	return nil
}
