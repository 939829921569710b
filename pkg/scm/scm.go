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

// Package scm abstracts the manager side of the service lifecycle protocol.
// A Conn registers a service and yields a Registration: a Session for status
// reports flowing out and a channel of control codes flowing in. The manager
// delivers control codes serially and closes the channel once the service
// has reported Stopped or the manager itself goes away.
//
// ConsoleConn hosts a service in the foreground for development, translating
// process signals into control codes. Production embedders provide their own
// Conn against whatever manager actually supervises the process.
package scm

import (
	"context"

	"github.com/svckit/svckit/pkg/svcproto"
)

// Session accepts status reports for one registered service.
type Session interface {
	// SetStatus delivers one status record to the manager. A non-nil error
	// means the manager did not take the record; the service must treat
	// that as fatal.
	SetStatus(ctx context.Context, status svcproto.Status) error
}

// Registration is the result of registering a service with a manager.
type Registration struct {
	// Session accepts the service's status reports.
	Session Session

	// Controls delivers control codes one at a time. No further code is
	// delivered until the previous one has been handled.
	Controls <-chan svcproto.ControlCode

	// Args are the start arguments the manager passed to the service.
	Args []string
}

// Conn is a connection to a service control manager.
type Conn interface {
	// Register declares the named service together with the control codes
	// it accepts and opens its control channel.
	Register(ctx context.Context, name string, accepts svcproto.Accepted) (*Registration, error)
}
