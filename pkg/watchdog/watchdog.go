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

package watchdog

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/context"

	"github.com/svckit/svckit/pkg/sentry"
)

/*
# Introduction

	Watchdog supervises the agent's long running goroutines through heartbeats.
	Create a Watchdog with NewWatchdog and run Start on its own goroutine.
	Afterwards register each supervised loop with RegisterHeartbeat.
	Each loop *shall* report its status regularly using ReportHeartbeatStatus.

## Example

	w := watchdog.NewWatchdog(context.Background(), time.NewTicker(5*time.Second), false, log)
	go w.Start()
	uniqueIdentifier := w.RegisterHeartbeat("sampler", 5, 60, true)
	defer w.UnregisterHeartbeat(uniqueIdentifier)
	for {
		// Do something
		w.ReportHeartbeatStatus(uniqueIdentifier, watchdog.HEARTBEAT_STATUS_OK)
	}

## Arguments

	The first argument (name) is used to prevent duplicate registrations.
	The second argument (warningsUntilFailure) is the number of consecutive
	warnings tolerated before the watchdog fails the program. Zero disables
	the check.
	The third argument (timeout) is the number of seconds a heartbeat may
	stay silent before the watchdog fails the program. Zero disables the
	check.
	The fourth argument (onlyWhenActive) marks heartbeats that are only
	enforced while the service is active, see SetActive.

## Logic

	The watchdog checks all registered heartbeats on every tick. A heartbeat
	whose last report is older than its timeout is overdue. If the heartbeat
	was registered with a restart callback (RegisterHeartbeatWithRestart),
	the callback runs first; on success the heartbeat clock and warning
	counter reset and supervision continues. Without a callback, or when the
	callback fails, the watchdog panics the program so the init system
	restarts the service in a clean state.

	A HEARTBEAT_STATUS_ERROR report fails the program immediately, without
	waiting for the next tick.

## Active gate

	A paused service suspends its workers on purpose, so their heartbeats go
	silent without anything being wrong. Heartbeats registered with
	onlyWhenActive are skipped while the service is inactive. The lifecycle
	controller flips the flag through SetActive on pause and continue.
*/

// HeartbeatStatus is the status of a heartbeat
type HeartbeatStatus int

const (
	// HEARTBEAT_STATUS_OK is the status of a healthy heartbeat
	HEARTBEAT_STATUS_OK HeartbeatStatus = iota
	// HEARTBEAT_STATUS_WARNING is the status of a struggling heartbeat, enough consecutive warnings fail the program if configured in RegisterHeartbeat
	HEARTBEAT_STATUS_WARNING
	// HEARTBEAT_STATUS_ERROR is the status of a failed heartbeat, it fails the program immediately
	HEARTBEAT_STATUS_ERROR
)

// Heartbeat tracks one supervised goroutine.
type Heartbeat struct {
	name                 string
	lastReportedStatus   atomic.Int32
	lastHeartbeatTime    atomic.Int64
	file                 string
	line                 int
	warningCount         atomic.Uint32
	warningsUntilFailure uint64
	timeout              uint64
	onlyWhenActive       bool
	restart              func() error
	heartbeatsReceived   atomic.Uint64
}

// Watchdog is a heartbeat registry for the agent's goroutines, keyed by the
// identifier handed out at registration.
type Watchdog struct {
	heartbeats        map[uuid.UUID]*Heartbeat
	heartbeatsMutex   sync.Mutex
	badHeartbeatChan  chan uuid.UUID
	active            atomic.Bool
	ctx               context.Context
	ticker            *time.Ticker
	watchdogID        uuid.UUID
	warningsAreErrors atomic.Bool
	logger            *zap.SugaredLogger
}

// NewWatchdog creates a new Watchdog
func NewWatchdog(ctx context.Context, ticker *time.Ticker, warningsAreErrors bool, logger *zap.SugaredLogger) *Watchdog {
	w := Watchdog{
		heartbeats: make(map[uuid.UUID]*Heartbeat),
		// badHeartbeatChan is buffered to avoid blocking reporters.
		// This might be the case if the watchdog is not started yet and a goroutine is sending a bad heartbeat
		badHeartbeatChan: make(chan uuid.UUID, 100),
		ctx:              ctx,
		ticker:           ticker,
		watchdogID:       uuid.New(),
		logger:           logger,
	}
	if warningsAreErrors {
		w.warningsAreErrors.Store(true)
	}
	return &w
}

// Start synchronously runs the watchdog until its context is done
func (s *Watchdog) Start() {
	for {
		select {
		case uniqueIdentifier := <-s.badHeartbeatChan:
			name := s.heartbeatName(uniqueIdentifier)
			sentry.ReportIssuef(sentry.IssueTypeError, s.logger, "Heartbeat errored: [%s] %s (%s)", s.watchdogID, name, uniqueIdentifier)
			panic(fmt.Sprintf("Heartbeat errored: [%s] %s (%s)", s.watchdogID, name, uniqueIdentifier))
		case <-s.ticker.C:
			now := time.Now()
			s.logger.Debugf("Checking heartbeats: [%s] at %s", s.watchdogID, now)

			s.heartbeatsMutex.Lock()
			var overdue *Heartbeat
			var overdueID uuid.UUID
			var secondsOverdue int64
			for uniqueIdentifier, hb := range s.heartbeats {
				sinceLast := now.UTC().Unix() - hb.lastHeartbeatTime.Load()
				if sinceLast < 0 {
					s.logger.Warnf("Time went backwards: [%s]", s.watchdogID)
				}
				// timeout = 0 disables the overdue check
				if hb.timeout == 0 || sinceLast <= int64(hb.timeout) {
					continue
				}
				if hb.onlyWhenActive && !s.active.Load() {
					s.logger.Infof("Heartbeat: [%s] %s (%s) is overdue, but the service is inactive", s.watchdogID, hb.name, uniqueIdentifier)
					continue
				}
				overdue = hb
				overdueID = uniqueIdentifier
				secondsOverdue = sinceLast - int64(hb.timeout)
				// Heartbeats without a restart callback cannot recover,
				// drop them before the panic below.
				if hb.restart == nil {
					delete(s.heartbeats, uniqueIdentifier)
				}
				break
			}
			s.heartbeatsMutex.Unlock()

			if overdue == nil {
				s.logger.Debugf("Heartbeats are ok: [%s]", s.watchdogID)
				continue
			}
			s.handleOverdue(overdueID, overdue, secondsOverdue)
		case <-s.ctx.Done():
			s.logger.Infof("Watchdog context done: [%s]", s.watchdogID)
			return
		}
	}
}

// handleOverdue runs the restart callback if one was registered and fails the
// program when the heartbeat cannot be recovered. Runs without the registry
// lock so a callback may report heartbeats itself.
func (s *Watchdog) handleOverdue(uniqueIdentifier uuid.UUID, hb *Heartbeat, secondsOverdue int64) {
	if hb.restart != nil {
		s.logger.Warnf("[%s] Heartbeat %s (%s) is %d seconds overdue, attempting restart", s.watchdogID, hb.name, uniqueIdentifier, secondsOverdue)
		err := hb.restart()
		if err == nil {
			hb.lastHeartbeatTime.Store(time.Now().UTC().Unix())
			hb.warningCount.Store(0)
			s.logger.Infof("[%s] Restarted heartbeat %s (%s)", s.watchdogID, hb.name, uniqueIdentifier)
			return
		}
		sentry.ReportIssuef(sentry.IssueTypeError, s.logger, "Heartbeat restart failed: %s: %v", hb.name, err)
		s.heartbeatsMutex.Lock()
		delete(s.heartbeats, uniqueIdentifier)
		s.heartbeatsMutex.Unlock()
	}

	panic(fmt.Sprintf("Heartbeat too old: [%s] %s (%s) registered at %s:%d [Lifetime heartbeats: %d] (%d seconds overdue)",
		s.watchdogID, hb.name, uniqueIdentifier, hb.file, hb.line, hb.heartbeatsReceived.Load(), secondsOverdue))
}

// RegisterHeartbeat registers a new heartbeat
// It returns the unique identifier of the heartbeat
// Keep that identifier to report status and to unregister the heartbeat later
func (s *Watchdog) RegisterHeartbeat(name string, warningsUntilFailure uint64, timeout uint64, onlyWhenActive bool) uuid.UUID {
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		s.logger.Warnf("[%s] Unable to get caller file and line for heartbeat %s", s.watchdogID, name)
	}
	return s.register(name, warningsUntilFailure, timeout, onlyWhenActive, nil, file, line)
}

// RegisterHeartbeatWithRestart registers a heartbeat with a restart callback.
// When the heartbeat goes overdue the callback runs before any panic; if it
// returns nil the heartbeat is considered recovered.
func (s *Watchdog) RegisterHeartbeatWithRestart(name string, warningsUntilFailure uint64, timeout uint64, onlyWhenActive bool, restart func() error) uuid.UUID {
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		s.logger.Warnf("[%s] Unable to get caller file and line for heartbeat %s", s.watchdogID, name)
	}
	return s.register(name, warningsUntilFailure, timeout, onlyWhenActive, restart, file, line)
}

func (s *Watchdog) register(name string, warningsUntilFailure uint64, timeout uint64, onlyWhenActive bool, restart func() error, file string, line int) uuid.UUID {
	uniqueIdentifier := uuid.New()
	hb := &Heartbeat{
		name:                 name,
		file:                 file,
		line:                 line,
		warningsUntilFailure: warningsUntilFailure,
		timeout:              timeout,
		onlyWhenActive:       onlyWhenActive,
		restart:              restart,
	}
	hb.lastHeartbeatTime.Store(time.Now().UTC().Unix())

	s.heartbeatsMutex.Lock()
	for existingID, existing := range s.heartbeats {
		if existing.name == name {
			s.heartbeatsMutex.Unlock()
			sentry.ReportIssuef(sentry.IssueTypeError, s.logger, "Heartbeat already registered: %s", name)
			panic(fmt.Sprintf("Heartbeat already registered: %s (%s)", name, existingID))
		}
	}
	s.heartbeats[uniqueIdentifier] = hb
	s.heartbeatsMutex.Unlock()
	s.logger.Infof("[%s] Registered heartbeat %s (%s)", s.watchdogID, name, uniqueIdentifier)
	return uniqueIdentifier
}

// UnregisterHeartbeat unregisters a heartbeat
// Call this when the goroutine is doing a normal exit
func (s *Watchdog) UnregisterHeartbeat(uniqueIdentifier uuid.UUID) {
	s.heartbeatsMutex.Lock()
	hb, ok := s.heartbeats[uniqueIdentifier]
	if ok {
		delete(s.heartbeats, uniqueIdentifier)
	}
	s.heartbeatsMutex.Unlock()

	if !ok {
		s.logger.Warnf("[%s] Unregister heartbeat called with unknown identifier: %s", s.watchdogID, uniqueIdentifier)
		return
	}
	s.logger.Infof("[%s] Unregistered heartbeat %s (%s)", s.watchdogID, hb.name, uniqueIdentifier)
}

// ReportHeartbeatStatus reports the status of a heartbeat
// Call this every time the routine is looping (with HEARTBEAT_STATUS_OK), when it's struggling (with HEARTBEAT_STATUS_WARNING) or when it's stuck (with HEARTBEAT_STATUS_ERROR)
func (s *Watchdog) ReportHeartbeatStatus(uniqueIdentifier uuid.UUID, status HeartbeatStatus) {
	s.heartbeatsMutex.Lock()
	hb, ok := s.heartbeats[uniqueIdentifier]
	if !ok {
		s.heartbeatsMutex.Unlock()
		sentry.ReportIssuef(sentry.IssueTypeError, s.logger, "Report heartbeat called with unknown identifier: %s", uniqueIdentifier)
		return
	}

	hb.lastReportedStatus.Store(int32(status))
	hb.lastHeartbeatTime.Store(time.Now().UTC().Unix())
	hb.heartbeatsReceived.Add(1)
	enforced := !hb.onlyWhenActive || s.active.Load()

	var warnings uint32
	switch status {
	case HEARTBEAT_STATUS_WARNING:
		warnings = hb.warningCount.Add(1)
		if s.warningsAreErrors.Load() {
			s.logger.Errorf("[%s] Heartbeat %s (%s) sent a warning (%d/%d) and warnings are errors", s.watchdogID, hb.name, uniqueIdentifier, warnings, hb.warningsUntilFailure)
			s.badHeartbeatChan <- uniqueIdentifier
		}
	case HEARTBEAT_STATUS_OK:
		hb.warningCount.Store(0)
	}
	// warningsUntilFailure == 0 disables this check
	if warnings >= uint32(hb.warningsUntilFailure) && hb.warningsUntilFailure != 0 && enforced {
		s.logger.Errorf("[%s] Heartbeat %s (%s) sent too many consecutive warnings (%d/%d)", s.watchdogID, hb.name, uniqueIdentifier, warnings, hb.warningsUntilFailure)
		sentry.ReportIssuef(sentry.IssueTypeError, s.logger, "Heartbeat too many warnings: %s sent too many consecutive warnings (%d/%d)", hb.name, warnings, hb.warningsUntilFailure)
		s.badHeartbeatChan <- uniqueIdentifier
	}
	s.heartbeatsMutex.Unlock()

	if status == HEARTBEAT_STATUS_ERROR {
		s.logger.Errorf("[%s] Heartbeat %s (%s) reported an error", s.watchdogID, hb.name, uniqueIdentifier)
		sentry.ReportIssuef(sentry.IssueTypeError, s.logger, "Heartbeat reported error: %s", hb.name)
		s.badHeartbeatChan <- uniqueIdentifier
	}
}

// heartbeatName returns the name of a heartbeat by its unique identifier
func (s *Watchdog) heartbeatName(uniqueIdentifier uuid.UUID) string {
	s.heartbeatsMutex.Lock()
	defer s.heartbeatsMutex.Unlock()
	if hb, ok := s.heartbeats[uniqueIdentifier]; ok {
		return hb.name
	}
	return ""
}

// SetActive marks the service as actively running. Heartbeats registered
// with onlyWhenActive are only enforced while the flag is set; the lifecycle
// controller clears it while the service is paused.
func (s *Watchdog) SetActive(active bool) {
	s.active.Store(active)
}
