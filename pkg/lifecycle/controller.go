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

// Package lifecycle implements the service lifecycle controller: a
// seven-state machine driven by the manager's control codes, reporting
// every step back through the attached scm.Session and translating hook
// failures into diagnostic event-log entries plus recovery reports.
//
// The controller never decides on its own to change state; it only reacts
// to the operations invoked on it. Hook failures are consumed by the
// failure policy (the manager learns about them through the status record
// and the event log), infrastructure failures — invalid transitions, a
// missing session, a status emission that does not reach the manager —
// surface as returned errors.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	internalfsm "github.com/svckit/svckit/internal/fsm"
	"github.com/svckit/svckit/pkg/constants"
	"github.com/svckit/svckit/pkg/ctxutil"
	"github.com/svckit/svckit/pkg/eventlog"
	"github.com/svckit/svckit/pkg/logger"
	"github.com/svckit/svckit/pkg/metrics"
	"github.com/svckit/svckit/pkg/scm"
	"github.com/svckit/svckit/pkg/sentry"
	"github.com/svckit/svckit/pkg/svcproto"
	"go.uber.org/zap"
)

// ErrInvalidTransition marks an operation that is not legal in the current
// state. The dispatcher downgrades it to a logged no-op; direct callers get
// it back as an error.
var ErrInvalidTransition = fmt.Errorf("transition not valid in current state")

// ErrNilHandler is returned by New for a nil handler.
var ErrNilHandler = fmt.Errorf("handler must not be nil")

// Diagnostic operation labels. Coded failures are written to the event log
// verbatim as "<label> failed w/err 0x<8-hex-digit-code>".
const (
	opStart    = "Service Start"
	opStop     = "Service Stop"
	opPause    = "Service Pause"
	opContinue = "Service Continue"
	opShutdown = "Service Shutdown"
)

// Generic diagnostic messages for failures without a coded value.
const (
	msgStartFailed    = "Service failed to start."
	msgStopFailed     = "Service failed to stop."
	msgPauseFailed    = "Service failed to pause."
	msgContinueFailed = "Service failed to resume."
	msgShutdownFailed = "Service failed to shut down."
)

// Controller drives one service through its lifecycle.
type Controller struct {
	desc     svcproto.Descriptor
	handler  Handler
	machine  *internalfsm.Machine
	reporter *Reporter
	events   eventlog.Sink
	log      *zap.SugaredLogger
	waitHint time.Duration

	// opMu serializes transitions. The manager already delivers controls
	// one at a time; the mutex protects against embedders that do not.
	opMu *ctxutil.Mutex
}

// New builds a controller for the described service in the initial
// StartPending phase. The descriptor must be valid and the handler non-nil.
func New(desc svcproto.Descriptor, handler Handler) (*Controller, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	if handler == nil {
		return nil, ErrNilHandler
	}

	log := logger.For(logger.ComponentController)

	c := &Controller{
		desc:     desc,
		handler:  handler,
		machine:  newLifecycleMachine(desc.Name, log),
		reporter: newReporter(desc, logger.For(logger.ComponentReporter)),
		events:   eventlog.NewZapSink(nil),
		log:      log,
		waitHint: constants.DefaultWaitHint,
		opMu:     ctxutil.NewMutex(),
	}

	metrics.InitErrorCounter(metrics.ComponentController, desc.Name)

	return c, nil
}

// WithEventSink replaces the diagnostic event sink. Chainable; call before
// the first transition.
func (c *Controller) WithEventSink(sink eventlog.Sink) *Controller {
	if sink != nil {
		c.events = sink
	}

	return c
}

// WithLogger replaces the component logger. Chainable; call before the
// first transition.
func (c *Controller) WithLogger(log *zap.SugaredLogger) *Controller {
	if log != nil {
		c.log = log
	}

	return c
}

// WithWaitHint replaces the wait hint advertised with every transition
// report. Chainable; call before the first transition.
func (c *Controller) WithWaitHint(waitHint time.Duration) *Controller {
	if waitHint > 0 {
		c.waitHint = waitHint
	}

	return c
}

// AttachSession binds the manager session status reports flow through.
// Must happen before the first transition.
func (c *Controller) AttachSession(session scm.Session) {
	c.reporter.Attach(session)
}

// Descriptor returns the identity the controller was built with.
func (c *Controller) Descriptor() svcproto.Descriptor {
	return c.desc
}

// State returns the current native protocol state.
func (c *Controller) State() svcproto.State {
	return protoState(c.machine.Current())
}

// Status returns the last reported status record.
func (c *Controller) Status() svcproto.Status {
	return c.reporter.Status()
}

// GetDebugInfo exposes a snapshot for the metrics debug endpoint.
func (c *Controller) GetDebugInfo() interface{} {
	return struct {
		Descriptor svcproto.Descriptor `json:"descriptor"`
		State      string              `json:"state"`
		Status     svcproto.Status     `json:"status"`
	}{c.desc, c.State().String(), c.Status()}
}

// ReportProgress re-reports the current state with a fresh wait hint. Hooks
// call this during long transitions; in pending states every call advances
// the checkpoint, which is what keeps the manager's hang detector at bay.
func (c *Controller) ReportProgress(ctx context.Context, waitHint time.Duration) error {
	return c.reporter.Report(ctx, c.State(), 0, waitHint)
}

// Start drives the initial StartPending -> Running transition. It reports
// StartPending, invokes OnStart with the manager-provided args and reports
// Running. A failed start settles in Stopped: with the coded exit code for
// a coded failure, with exit code 0 otherwise.
func (c *Controller) Start(ctx context.Context, args []string) error {
	if err := c.opMu.Lock(ctx); err != nil {
		return err
	}
	defer c.opMu.Unlock()

	if !c.machine.Is(stateStartPending) {
		return c.rejected("start")
	}

	begin := time.Now()

	if err := c.reporter.Report(ctx, svcproto.StateStartPending, 0, c.waitHint); err != nil {
		return err
	}

	hookErr := c.runHook(opStart, func() error { return c.handler.OnStart(ctx, args) })
	if hookErr != nil {
		c.logDiagnostic(opStart, msgStartFailed, hookErr)

		if err := c.machine.Fire(ctx, eventStartFail); err != nil {
			return err
		}

		c.finish("start", metrics.OutcomeFailed, begin)

		// The coded value doubles as the process exit code; an
		// unspecified failure stops with code 0.
		exitCode, _ := svcproto.ErrorCode(hookErr)

		return c.reporter.Report(ctx, svcproto.StateStopped, exitCode, c.waitHint)
	}

	if err := c.machine.Fire(ctx, eventStartDone); err != nil {
		return err
	}

	c.finish("start", metrics.OutcomeCompleted, begin)

	return c.reporter.Report(ctx, svcproto.StateRunning, 0, c.waitHint)
}

// Stop drives Running/Paused -> Stopped. The pre-stop state is captured
// first: a service that fails to stop is still whatever it was before, so
// the failure path restores the captured state and reports it.
func (c *Controller) Stop(ctx context.Context) error {
	if err := c.opMu.Lock(ctx); err != nil {
		return err
	}
	defer c.opMu.Unlock()

	original := c.machine.Current()

	if err := c.machine.Fire(ctx, eventStop); err != nil {
		if internalfsm.IsInvalidEvent(err) {
			return c.rejected("stop")
		}

		return err
	}

	begin := time.Now()

	if err := c.reporter.Report(ctx, svcproto.StateStopPending, 0, c.waitHint); err != nil {
		return err
	}

	hookErr := c.runHook(opStop, func() error { return c.handler.OnStop(ctx) })
	if hookErr != nil {
		c.logDiagnostic(opStop, msgStopFailed, hookErr)

		recovery := eventStopFailRunning
		if original == statePaused {
			recovery = eventStopFailPaused
		}
		if err := c.machine.Fire(ctx, recovery); err != nil {
			return err
		}

		c.finish("stop", metrics.OutcomeFailed, begin)

		return c.reporter.Report(ctx, protoState(original), 0, c.waitHint)
	}

	if err := c.machine.Fire(ctx, eventStopDone); err != nil {
		return err
	}

	c.finish("stop", metrics.OutcomeCompleted, begin)

	return c.reporter.Report(ctx, svcproto.StateStopped, 0, c.waitHint)
}

// Pause drives Running -> Paused. A failed pause reports Running again.
func (c *Controller) Pause(ctx context.Context) error {
	if err := c.opMu.Lock(ctx); err != nil {
		return err
	}
	defer c.opMu.Unlock()

	if err := c.machine.Fire(ctx, eventPause); err != nil {
		if internalfsm.IsInvalidEvent(err) {
			return c.rejected("pause")
		}

		return err
	}

	begin := time.Now()

	if err := c.reporter.Report(ctx, svcproto.StatePausePending, 0, c.waitHint); err != nil {
		return err
	}

	hookErr := c.runHook(opPause, func() error { return c.handler.OnPause(ctx) })
	if hookErr != nil {
		c.logDiagnostic(opPause, msgPauseFailed, hookErr)

		if err := c.machine.Fire(ctx, eventPauseFail); err != nil {
			return err
		}

		c.finish("pause", metrics.OutcomeFailed, begin)

		return c.reporter.Report(ctx, svcproto.StateRunning, 0, c.waitHint)
	}

	if err := c.machine.Fire(ctx, eventPauseDone); err != nil {
		return err
	}

	c.finish("pause", metrics.OutcomeCompleted, begin)

	return c.reporter.Report(ctx, svcproto.StatePaused, 0, c.waitHint)
}

// Resume drives Paused -> Running (the protocol's "continue" transition).
// A failed resume reports Paused again.
func (c *Controller) Resume(ctx context.Context) error {
	if err := c.opMu.Lock(ctx); err != nil {
		return err
	}
	defer c.opMu.Unlock()

	if err := c.machine.Fire(ctx, eventContinue); err != nil {
		if internalfsm.IsInvalidEvent(err) {
			return c.rejected("continue")
		}

		return err
	}

	begin := time.Now()

	if err := c.reporter.Report(ctx, svcproto.StateContinuePending, 0, c.waitHint); err != nil {
		return err
	}

	hookErr := c.runHook(opContinue, func() error { return c.handler.OnContinue(ctx) })
	if hookErr != nil {
		c.logDiagnostic(opContinue, msgContinueFailed, hookErr)

		if err := c.machine.Fire(ctx, eventContinueFail); err != nil {
			return err
		}

		c.finish("continue", metrics.OutcomeFailed, begin)

		return c.reporter.Report(ctx, svcproto.StatePaused, 0, c.waitHint)
	}

	if err := c.machine.Fire(ctx, eventContinueDone); err != nil {
		return err
	}

	c.finish("continue", metrics.OutcomeCompleted, begin)

	return c.reporter.Report(ctx, svcproto.StateRunning, 0, c.waitHint)
}

// Shutdown runs the abbreviated system-shutdown path from Running or
// Paused: the hook first — no pending report, the system is going down and
// the manager is not watching checkpoints anymore — then a Stopped report
// on success. A failed shutdown writes its diagnostic entry and reports
// nothing at all.
func (c *Controller) Shutdown(ctx context.Context) error {
	if err := c.opMu.Lock(ctx); err != nil {
		return err
	}
	defer c.opMu.Unlock()

	if !c.machine.Can(eventShutdown) {
		return c.rejected("shutdown")
	}

	begin := time.Now()

	hookErr := c.runHook(opShutdown, func() error { return c.handler.OnShutdown(ctx) })
	if hookErr != nil {
		c.logDiagnostic(opShutdown, msgShutdownFailed, hookErr)
		c.finish("shutdown", metrics.OutcomeFailed, begin)

		return nil
	}

	if err := c.machine.Fire(ctx, eventShutdown); err != nil {
		return err
	}

	c.finish("shutdown", metrics.OutcomeCompleted, begin)

	return c.reporter.Report(ctx, svcproto.StateStopped, 0, c.waitHint)
}

// runHook invokes fn, converting a panic into an ordinary error. The panic
// is reported to sentry with the full goroutine context; for the failure
// policy it counts as an unspecified failure.
func (c *Controller) runHook(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			sentry.ReportIssuef(sentry.IssueTypeError, c.log,
				"Recovered panic in %s for service %s: %v", op, c.desc.Name, r)
			err = fmt.Errorf("%s panicked: %v", op, r)
		}
	}()

	return fn()
}

// logDiagnostic writes the single failure entry for a transition: the
// literal coded format when the error carries a numeric code, the generic
// message otherwise. The entry always lands before the recovery report.
func (c *Controller) logDiagnostic(op, generic string, hookErr error) {
	message := generic
	if code, ok := svcproto.ErrorCode(hookErr); ok {
		message = fmt.Sprintf("%s failed w/err 0x%08x", op, code)
	}

	c.events.Write(eventlog.Entry{
		Service:  c.desc.Name,
		Message:  message,
		Severity: eventlog.SeverityError,
	})

	metrics.IncErrorCount(metrics.ComponentController, c.desc.Name)
	sentry.ReportServiceError(c.log, c.desc.Name, "lifecycle", op, hookErr)
}

// rejected records an operation that is not legal in the current state.
func (c *Controller) rejected(operation string) error {
	err := fmt.Errorf("%w: %s not allowed from %s", ErrInvalidTransition, operation, c.machine.Current())
	metrics.IncTransition(operation, metrics.OutcomeRejected)
	c.log.Debugf("Service %s: %v", c.desc.Name, err)

	return err
}

// finish records the metrics of a settled transition.
func (c *Controller) finish(operation, outcome string, begin time.Time) {
	metrics.IncTransition(operation, outcome)
	metrics.ObserveTransitionTime(operation, time.Since(begin))
}
