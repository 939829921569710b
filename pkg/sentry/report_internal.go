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

package sentry

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/united-manufacturing-hub/expiremap/v2/pkg/expiremap"
	"go.uber.org/zap"
)

// debounceWindow is how long repeat reports of the same issue title are
// suppressed. Fatal issues are never debounced.
const debounceWindow = 2 * time.Hour

var (
	recentIssues   = expiremap.NewEx[string, time.Time](time.Minute, debounceWindow)
	recentIssuesMu sync.Mutex
)

// debounced reports whether an issue with the same level and title was
// already sent within the debounce window, and records it otherwise.
func debounced(level sentry.Level, err error) bool {
	if !shouldDebounceErrors {
		return false
	}

	key := getLevelString(level) + ": " + getMeaningfulErrorTitle(err)

	recentIssuesMu.Lock()
	defer recentIssuesMu.Unlock()

	if _, seen := recentIssues.Load(key); seen {
		return true
	}

	recentIssues.Set(key, time.Now())

	return false
}

// reportFatal sends a fatal error to Sentry, including a stack trace and a message
// Afterwards it will report the error to the logger and panic
func reportFatal(err error, log *zap.SugaredLogger) {
	finishFatal(createSentryEvent(sentry.LevelFatal, err), err, log)
}

func reportFatalWithContext(err error, log *zap.SugaredLogger, context map[string]interface{}) {
	finishFatal(createSentryEventWithContext(sentry.LevelFatal, err, context), err, log)
}

func finishFatal(event *sentry.Event, err error, log *zap.SugaredLogger) {
	log.Error("The service agent has encountered a fatal error and will now terminate. Please contact our customer support.")
	log.Errorf("Error: %s", err)
	log.Errorf("Stack trace: %s", string(debug.Stack()))

	sendSentryEvent(event)
	sentry.Flush(time.Second * 5)

	log.Panic("Fatal error")
}

// reportError sends an error to Sentry, including a stack trace and a message
// Afterwards it will report the error to the logger
func reportError(err error, log *zap.SugaredLogger) {
	if debounced(sentry.LevelError, err) {
		return
	}

	log.Error(err)
	sendSentryEvent(createSentryEvent(sentry.LevelError, err))
}

func reportErrorWithContext(err error, log *zap.SugaredLogger, context map[string]interface{}) {
	if debounced(sentry.LevelError, err) {
		return
	}

	log.Error(err)
	sendSentryEvent(createSentryEventWithContext(sentry.LevelError, err, context))
}

// reportWarning sends a warning to Sentry, including a stack trace and a message
// Afterwards it will report the warning to the logger
func reportWarning(err error, log *zap.SugaredLogger) {
	if debounced(sentry.LevelWarning, err) {
		return
	}

	log.Warn(err)
	sendSentryEvent(createSentryEvent(sentry.LevelWarning, err))
}

func reportWarningWithContext(err error, log *zap.SugaredLogger, context map[string]interface{}) {
	if debounced(sentry.LevelWarning, err) {
		return
	}

	log.Warn(err)
	sendSentryEvent(createSentryEventWithContext(sentry.LevelWarning, err, context))
}
