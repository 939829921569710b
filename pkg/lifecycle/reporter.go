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
	"errors"
	"sync"
	"time"

	"github.com/svckit/svckit/pkg/metrics"
	"github.com/svckit/svckit/pkg/scm"
	"github.com/svckit/svckit/pkg/svcproto"
	"go.uber.org/zap"
)

// ErrNoSession is returned when a transition is attempted before a manager
// session has been attached.
var ErrNoSession = errors.New("no manager session attached")

// Reporter composes and emits the status records of one service. It owns
// the checkpoint heartbeat: a process-wide counter that starts at 1, is
// consumed by every report of a non-settled state and never resets. Running
// and Stopped reports carry checkpoint 0, which tells the manager the
// transition has settled.
type Reporter struct {
	session scm.Session
	status  svcproto.Status
	counter uint32
	name    string
	log     *zap.SugaredLogger
	mu      sync.Mutex
}

// newReporter builds a reporter in the initial StartPending phase with the
// descriptor's accept mask burned in.
func newReporter(desc svcproto.Descriptor, log *zap.SugaredLogger) *Reporter {
	return &Reporter{
		status: svcproto.Status{
			ServiceType: svcproto.ServiceOwnProcess,
			State:       svcproto.StateStartPending,
			Accepts:     desc.AcceptMask(),
		},
		counter: 1,
		name:    desc.Name,
		log:     log,
	}
}

// Attach binds the manager session reports are emitted through.
func (r *Reporter) Attach(session scm.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.session = session
}

// Report updates the status record for the given state and emits it. An
// emission error is fatal to the transition and propagates unhandled.
func (r *Reporter) Report(ctx context.Context, state svcproto.State, exitCode uint32, waitHint time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return ErrNoSession
	}

	r.status.State = state
	r.status.ExitCode = exitCode
	r.status.WaitHint = waitHint

	if state == svcproto.StateRunning || state == svcproto.StateStopped {
		r.status.CheckPoint = 0
	} else {
		r.status.CheckPoint = r.counter
		r.counter++
	}

	r.log.Debugf("Service %s reporting %s (checkpoint=%d, exitCode=%d, waitHint=%s)",
		r.name, state, r.status.CheckPoint, exitCode, waitHint)
	metrics.IncStatusReport(state.String())

	return r.session.SetStatus(ctx, r.status)
}

// Status returns the last composed record.
func (r *Reporter) Status() svcproto.Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.status
}
