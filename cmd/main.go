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

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/svckit/svckit/pkg/config"
	"github.com/svckit/svckit/pkg/constants"
	"github.com/svckit/svckit/pkg/dispatch"
	"github.com/svckit/svckit/pkg/eventlog"
	"github.com/svckit/svckit/pkg/hash"
	"github.com/svckit/svckit/pkg/hostmonitor"
	"github.com/svckit/svckit/pkg/httpapi"
	"github.com/svckit/svckit/pkg/lifecycle"
	"github.com/svckit/svckit/pkg/logger"
	"github.com/svckit/svckit/pkg/metrics"
	"github.com/svckit/svckit/pkg/scm"
	"github.com/svckit/svckit/pkg/sentry"
	"github.com/svckit/svckit/pkg/version"
	"github.com/svckit/svckit/pkg/watchdog"
)

func main() {
	// Initialize the global logger first thing
	logger.Initialize()

	// Initialize Sentry
	sentry.InitSentry(version.GetAppVersion(), true)

	// Get a logger for the main component
	log := logger.For(logger.ComponentCore)

	log.Info("Starting svckit agent...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load the config
	configManager, err := config.NewFileConfigManagerWithBackoff()
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to create config manager: %v", err)
		os.Exit(1)
	}

	// Load or create configuration with environment variable overrides.
	// This loads the config file if it exists, applies any environment
	// variables as overrides, and persists the result back to the config
	// file. See detailed docs in config.LoadConfigWithEnvOverrides.
	configData, err := config.LoadConfigWithEnvOverrides(ctx, configManager, log)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to load config: %v", err)
		os.Exit(1)
	}

	// First boot: mint an API token and persist only its digest. The
	// plaintext exists in this log line and nowhere else.
	if configData.Agent.APITokenHash == "" {
		apiToken := uuid.NewString()
		digest := hash.Sha3Hex(apiToken)
		if err := configManager.AtomicSetAPITokenHash(ctx, digest); err != nil {
			sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to persist API token hash: %v", err)
			os.Exit(1)
		}
		configData.Agent.APITokenHash = digest
		log.Infof("Generated API token (shown only once): %s", apiToken)
	}

	// Start the metrics server
	metricsServer := metrics.SetupMetricsEndpoint(fmt.Sprintf(":%d", configData.Agent.MetricsPort))
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.APIShutdownTimeout)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to shutdown metrics server: %v", err)
		}
	}()

	// Open the persistent event log. Failed transitions land both here and
	// in the console log.
	fileSink, err := eventlog.NewFileSink(configData.Agent.EventLog.Path, configData.Agent.EventLog.MaxBytes, configData.Agent.EventLog.MaxArchives)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to open event log: %v", err)
		os.Exit(1)
	}
	defer func() {
		if err := fileSink.Close(); err != nil {
			log.Errorf("Failed to close event log: %v", err)
		}
	}()

	// Watchdog supervising the sampler loop
	dog := watchdog.NewWatchdog(ctx, time.NewTicker(10*time.Second), false, logger.For(logger.ComponentWatchdog))
	go dog.Start()

	// The host monitor is the workload the lifecycle controller drives
	monitor := hostmonitor.NewMonitor(configData.Service.Name, configData.Agent.MonitorInterval, configData.Agent.MonitorDisks, dog)

	controller, err := lifecycle.New(configData.Service.Descriptor(), monitor)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to create lifecycle controller: %v", err)
		os.Exit(1)
	}
	controller.WithEventSink(eventlog.NewMultiSink(fileSink, eventlog.NewZapSink(nil))).
		WithWaitHint(configData.Service.WaitHint)

	metrics.RegisterDebugProvider(configData.Service.Name, controller)

	// Start the diagnostics API
	apiServer, err := httpapi.NewServer(httpapi.Config{
		Port:      configData.Agent.APIPort,
		TokenHash: configData.Agent.APITokenHash,
	}, controller)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to create API server: %v", err)
		os.Exit(1)
	}
	apiServer.WithMonitor(monitor).WithEventTailer(fileSink).WithConfigManager(configManager)

	if err := apiServer.Start(); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to start API server: %v", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.APIShutdownTimeout)
		defer shutdownCancel()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to shutdown API server: %v", err)
		}
	}()

	// Bind the controller and dispatch manager controls until the service
	// has reported Stopped
	registry := dispatch.Default()
	registry.OnParamChange(func() {
		// A reload clears any latched config failure and re-reads the
		// file, so the next API read serves fresh values.
		configManager.Reset()
		if _, err := configManager.GetConfig(ctx); err != nil {
			sentry.ReportIssuef(sentry.IssueTypeError, log, "Config reload failed: %v", err)
		}
	})

	tok, err := registry.Bind(controller)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to bind controller: %v", err)
		os.Exit(1)
	}
	defer registry.Release(tok)

	if err := registry.Run(ctx, tok, scm.NewConsoleConn()); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Service run failed: %v", err)
	}

	log.Info("svckit agent completed")
}
