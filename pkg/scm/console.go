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
	"os"
	"os/signal"
	"sync"

	"github.com/svckit/svckit/pkg/constants"
	"github.com/svckit/svckit/pkg/logger"
	"github.com/svckit/svckit/pkg/svcproto"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// ConsoleConn hosts a service in the foreground. Process signals stand in
// for manager control requests: SIGINT and SIGTERM become Stop when the
// service accepts stop, Shutdown when it only accepts shutdown, and are
// dropped otherwise; SIGHUP becomes ParamChange. Status reports are written
// to the log.
type ConsoleConn struct {
	log *zap.SugaredLogger

	// notify and stopNotify default to signal.Notify and signal.Stop.
	// Tests inject their own pair to feed synthetic signals.
	notify     func(c chan<- os.Signal, sig ...os.Signal)
	stopNotify func(c chan<- os.Signal)
}

// NewConsoleConn returns a ConsoleConn subscribed through os/signal.
func NewConsoleConn() *ConsoleConn {
	return NewConsoleConnWithNotify(signal.Notify, signal.Stop)
}

// NewConsoleConnWithNotify returns a ConsoleConn with a custom signal
// subscription seam.
func NewConsoleConnWithNotify(notify func(chan<- os.Signal, ...os.Signal), stopNotify func(chan<- os.Signal)) *ConsoleConn {
	return &ConsoleConn{
		log:        logger.For(logger.ComponentSCM),
		notify:     notify,
		stopNotify: stopNotify,
	}
}

// Register subscribes to termination signals and starts translating them
// into control codes for the named service.
func (c *ConsoleConn) Register(ctx context.Context, name string, accepts svcproto.Accepted) (*Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if name == "" {
		return nil, svcproto.ErrEmptyServiceName
	}

	session := &consoleSession{
		conn:     c,
		name:     name,
		accepts:  accepts,
		signals:  make(chan os.Signal, 2),
		controls: make(chan svcproto.ControlCode, constants.ControlQueueSize),
		done:     make(chan struct{}),
	}

	c.notify(session.signals, unix.SIGINT, unix.SIGTERM, unix.SIGHUP)

	go session.translateSignals()

	c.log.Infof("Registered service %s (accepts=0x%x)", name, uint32(accepts))

	return &Registration{
		Session:  session,
		Controls: session.controls,
		Args:     os.Args[1:],
	}, nil
}

// consoleSession is the Session handed out by ConsoleConn. The signal
// translation goroutine is the only writer of controls and the only one
// allowed to close it.
type consoleSession struct {
	conn      *ConsoleConn
	name      string
	accepts   svcproto.Accepted
	signals   chan os.Signal
	controls  chan svcproto.ControlCode
	done      chan struct{}
	closeOnce sync.Once
}

// SetStatus logs the report. A Stopped report ends the session.
func (s *consoleSession) SetStatus(ctx context.Context, status svcproto.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.conn.log.Infof("Service %s reported %s (checkpoint=%d, waitHint=%s, exitCode=%d)",
		s.name, status.State, status.CheckPoint, status.WaitHint, status.ExitCode)

	if status.State == svcproto.StateStopped {
		s.close()
	}

	return nil
}

func (s *consoleSession) close() {
	s.closeOnce.Do(func() {
		s.conn.stopNotify(s.signals)
		close(s.done)
	})
}

func (s *consoleSession) translateSignals() {
	defer close(s.controls)

	for {
		select {
		case <-s.done:
			return
		case sig := <-s.signals:
			code, ok := s.translate(sig)
			if !ok {
				s.conn.log.Infof("Service %s dropping signal %v: neither stop nor shutdown is accepted", s.name, sig)

				continue
			}

			select {
			case s.controls <- code:
			default:
				// The manager never queues unbounded controls.
				s.conn.log.Warnf("Service %s control queue full, dropping %s", s.name, code)
			}
		}
	}
}

func (s *consoleSession) translate(sig os.Signal) (svcproto.ControlCode, bool) {
	if sig == unix.SIGHUP {
		return svcproto.ControlParamChange, true
	}

	switch {
	case s.accepts.Has(svcproto.AcceptStop):
		return svcproto.ControlStop, true
	case s.accepts.Has(svcproto.AcceptShutdown):
		return svcproto.ControlShutdown, true
	default:
		return 0, false
	}
}
