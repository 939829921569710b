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

package config

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/svckit/svckit/pkg/constants"
	"github.com/svckit/svckit/pkg/env"
	"github.com/svckit/svckit/pkg/sentry"
)

// Environment variables recognized at startup.
const (
	EnvConfigPath       = "SVCKIT_CONFIG_PATH"
	EnvServiceName      = "SVCKIT_SERVICE_NAME"
	EnvCanStop          = "SVCKIT_CAN_STOP"
	EnvCanShutdown      = "SVCKIT_CAN_SHUTDOWN"
	EnvCanPauseContinue = "SVCKIT_CAN_PAUSE_CONTINUE"
	EnvWaitHint         = "SVCKIT_WAIT_HINT"
	EnvAPIPort          = "SVCKIT_API_PORT"
	EnvAPITokenHash     = "SVCKIT_API_TOKEN_HASH"
	EnvMetricsPort      = "SVCKIT_METRICS_PORT"
	EnvMonitorInterval  = "SVCKIT_MONITOR_INTERVAL"
	EnvEventLogPath     = "SVCKIT_EVENT_LOG_PATH"
)

// configPathFromEnv resolves the config file location, preferring
// SVCKIT_CONFIG_PATH over the built-in default.
func configPathFromEnv() string {
	path, err := env.GetAsString(EnvConfigPath, false, constants.DefaultConfigPath)
	if err != nil || path == "" {
		return constants.DefaultConfigPath
	}

	return path
}

// Overrides carries the environment values that take precedence over the
// config file. The capability fields are pointers so an explicit "false" in
// the environment can be told apart from the variable being unset.
type Overrides struct {
	ServiceName      string
	CanStop          *bool
	CanShutdown      *bool
	CanPauseContinue *bool
	WaitHint         time.Duration
	APIPort          int
	APITokenHash     string
	MetricsPort      int
	MonitorInterval  time.Duration
	EventLogPath     string
}

// apply copies every set override value onto config.
func (o Overrides) apply(config *FullConfig) {
	if o.ServiceName != "" {
		config.Service.Name = o.ServiceName
	}
	if o.CanStop != nil {
		config.Service.CanStop = *o.CanStop
	}
	if o.CanShutdown != nil {
		config.Service.CanShutdown = *o.CanShutdown
	}
	if o.CanPauseContinue != nil {
		config.Service.CanPauseContinue = *o.CanPauseContinue
	}
	if o.WaitHint > 0 {
		config.Service.WaitHint = o.WaitHint
	}
	if o.APIPort > 0 {
		config.Agent.APIPort = o.APIPort
	}
	if o.APITokenHash != "" {
		config.Agent.APITokenHash = o.APITokenHash
	}
	if o.MetricsPort > 0 {
		config.Agent.MetricsPort = o.MetricsPort
	}
	if o.MonitorInterval > 0 {
		config.Agent.MonitorInterval = o.MonitorInterval
	}
	if o.EventLogPath != "" {
		config.Agent.EventLog.Path = o.EventLogPath
	}
}

// OverridesFromEnv collects the override values from the environment.
// Unparseable values are reported and treated as unset.
func OverridesFromEnv(log *zap.SugaredLogger) Overrides {
	var overrides Overrides

	overrides.ServiceName = stringFromEnv(EnvServiceName, log)
	overrides.CanStop = boolFromEnv(EnvCanStop, log)
	overrides.CanShutdown = boolFromEnv(EnvCanShutdown, log)
	overrides.CanPauseContinue = boolFromEnv(EnvCanPauseContinue, log)
	overrides.WaitHint = durationFromEnv(EnvWaitHint, log)
	overrides.APIPort = intFromEnv(EnvAPIPort, log)
	overrides.APITokenHash = stringFromEnv(EnvAPITokenHash, log)
	overrides.MetricsPort = intFromEnv(EnvMetricsPort, log)
	overrides.MonitorInterval = durationFromEnv(EnvMonitorInterval, log)
	overrides.EventLogPath = stringFromEnv(EnvEventLogPath, log)

	return overrides
}

func stringFromEnv(key string, log *zap.SugaredLogger) string {
	value, err := env.GetAsString(key, false, "")
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeWarning, log, "Failed to get %s: %v", key, err)
		return ""
	}

	return value
}

// boolFromEnv returns nil when the variable is unset or unparseable, so the
// config file value stays in effect.
func boolFromEnv(key string, log *zap.SugaredLogger) *bool {
	raw, err := env.GetAsString(key, false, "")
	if err != nil || raw == "" {
		return nil
	}

	value, err := env.GetAsBool(key, true, false)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeWarning, log, "Failed to get %s: %v", key, err)
		return nil
	}

	return &value
}

func intFromEnv(key string, log *zap.SugaredLogger) int {
	raw, err := env.GetAsString(key, false, "")
	if err != nil || raw == "" {
		return 0
	}

	value, err := env.GetAsInt(key, true, 0)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeWarning, log, "Failed to get %s: %v", key, err)
		return 0
	}

	return value
}

func durationFromEnv(key string, log *zap.SugaredLogger) time.Duration {
	raw, err := env.GetAsString(key, false, "")
	if err != nil || raw == "" {
		return 0
	}

	value, err := env.GetAsDuration(key, true, 0)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeWarning, log, "Failed to get %s: %v", key, err)
		return 0
	}

	return value
}

// LoadConfigWithEnvOverrides loads the config file and applies environment variable overrides.
// This function is used during initial application startup to handle configuration from both
// persistent config files and runtime environment variables passed via docker -e flags.
//
// Order of precedence (highest to lowest):
// 1. Environment variables (SVCKIT_SERVICE_NAME, SVCKIT_CAN_STOP, ...)
// 2. Existing config file values
// 3. Default values
//
// The resulting configuration (with applied overrides) is written back to the
// config file, so environment variables cause PERMANENT changes to it: on
// subsequent runs these values are the baseline unless overridden again.
//
// Important: This function has side effects! It modifies the config file on disk.
func LoadConfigWithEnvOverrides(ctx context.Context, configManager *FileConfigManagerWithBackoff, log *zap.SugaredLogger) (FullConfig, error) {
	overrides := OverridesFromEnv(log)

	configData, err := configManager.GetConfigWithOverwritesOrCreateNew(ctx, overrides)
	if err != nil {
		return FullConfig{}, fmt.Errorf("failed to load config with environment overrides: %w", err)
	}

	return configData, nil
}
