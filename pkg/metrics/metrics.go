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

package metrics

import (
	"errors"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/svckit/svckit/pkg/logger"
	"github.com/svckit/svckit/pkg/safejson"
	"github.com/svckit/svckit/pkg/sentry"
	"go.uber.org/zap"
)

const (
	// Component Labels.
	ComponentController    = "controller"
	ComponentReporter      = "reporter"
	ComponentDispatch      = "dispatch"
	ComponentSCM           = "scm"
	ComponentEventLog      = "event_log"
	ComponentHostMonitor   = "host_monitor"
	ComponentHTTPAPI       = "http_api"
	ComponentConfigManager = "config_manager"
	ComponentFilesystem    = "filesystem"
	ComponentWatchdog      = "watchdog"
)

const (
	// Transition outcome labels.
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"

	// Control code disposition labels.
	DispositionDispatched = "dispatched"
	DispositionIgnored    = "ignored"
)

var (
	// Namespace and subsystem for all metrics.
	namespace = "svckit"
	subsystem = "agent"

	// Error counters.
	errorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors encountered by component",
		},
		[]string{"component", "instance"},
	)

	// Transition timing.
	transitionTime = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "transition_duration_milliseconds",
			Help:      "Time taken to complete a lifecycle transition (in milliseconds)",
			Objectives: map[float64]float64{
				0.5:  0.01, // 50th percentile with 1% error
				0.9:  0.01, // 90th percentile with 1% error
				0.95: 0.01, // 95th percentile with 1% error
				0.99: 0.01, // 99th percentile with 1% error
			},
		},
		[]string{"operation"},
	)

	// Transition outcomes.
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "transitions_total",
			Help:      "Total number of lifecycle transitions by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// Status reports delivered to the service manager.
	statusReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "status_reports_total",
			Help:      "Total number of status reports delivered to the service manager by state",
		},
		[]string{"state"},
	)

	// Control codes received from the service manager.
	controlCodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "control_codes_total",
			Help:      "Total number of control codes received by code and disposition",
		},
		[]string{"code", "disposition"},
	)

	// Service state metric.
	serviceCurrentState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "service_current_state",
			Help:      "Current native state of the service (1=Stopped, 2=StartPending, 3=StopPending, 4=Running, 5=ContinuePending, 6=PausePending, 7=Paused)",
		},
		[]string{"service"},
	)

	// Filesystem operation timing.
	filesystemOpTime = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "filesystem_op_duration_milliseconds",
			Help:      "Time taken by filesystem operations (in milliseconds)",
			Objectives: map[float64]float64{
				0.5:  0.01, // 50th percentile with 1% error
				0.95: 0.01, // 95th percentile with 1% error
				0.99: 0.01, // 99th percentile with 1% error
			},
		},
		[]string{"operation", "outcome", "cache"},
	)

	// Config load timing.
	configLoadTime = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "config_load_duration_milliseconds",
			Help:      "Time taken to load and parse the config file (in milliseconds)",
			Objectives: map[float64]float64{
				0.5:  0.01, // 50th percentile with 1% error
				0.95: 0.01, // 95th percentile with 1% error
				0.99: 0.01, // 99th percentile with 1% error
			},
		},
		[]string{"outcome"},
	)
)

// DebugProvider provides introspection data for the debug endpoint.
// Implementations should return a JSON-serializable snapshot.
type DebugProvider interface {
	GetDebugInfo() interface{}
}

// debugRegistry holds registered debug providers.
var debugRegistry struct {
	providers map[string]DebugProvider
	mu        sync.RWMutex
}

// RegisterDebugProvider registers a provider for the /debug/service endpoint.
// Call this after constructing a controller to expose its status snapshot.
func RegisterDebugProvider(name string, provider DebugProvider) {
	debugRegistry.mu.Lock()
	defer debugRegistry.mu.Unlock()

	if debugRegistry.providers == nil {
		debugRegistry.providers = make(map[string]DebugProvider)
	}

	debugRegistry.providers[name] = provider
}

// UnregisterDebugProvider removes a provider from the registry.
func UnregisterDebugProvider(name string) {
	debugRegistry.mu.Lock()
	defer debugRegistry.mu.Unlock()

	delete(debugRegistry.providers, name)
}

// handleServiceDebug handles the /debug/service endpoint.
func handleServiceDebug(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)

		return
	}

	debugRegistry.mu.RLock()
	defer debugRegistry.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")

	if len(debugRegistry.providers) == 0 {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"no_providers_registered","message":"No services are registered for debugging"}`))

		return
	}

	response := make(map[string]interface{}, len(debugRegistry.providers))
	for name, provider := range debugRegistry.providers {
		response[name] = provider.GetDebugInfo()
	}

	encoded, err := safejson.MarshalIndent(response, "", "  ")
	if err != nil {
		http.Error(w, "Failed to encode debug info", http.StatusInternalServerError)

		return
	}

	_, _ = w.Write(encoded)
}

// SetupMetricsEndpoint starts an HTTP server to expose metrics
// This should be called once at application startup.
func SetupMetricsEndpoint(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/service", handleServiceDebug)

	server := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sentry.ReportIssue(err, sentry.IssueTypeFatal, logger.For("metrics"))
		}
	}()

	return server
}

// printDetailedStackTrace prints a detailed stack trace with more information.
func printDetailedStackTrace() {
	// Get stack trace for all goroutines with a large buffer
	buf := make([]byte, 1024*1024) // Allocate 1MB buffer
	n := runtime.Stack(buf, true)

	// Print the full stack trace
	logger.For("stacktrace").Debugf("=== DETAILED STACK TRACE ===\n%s", string(buf[:n]))
}

// IncErrorCountAndLog increments the error counter for a component and logs a debug message if a logger is provided.
func IncErrorCountAndLog(component, instance string, err error, logger *zap.SugaredLogger) {
	IncErrorCount(component, instance)

	if logger != nil {
		// Display detailed stacktrace
		printDetailedStackTrace()
		logger.Debugf("Component %s instance %s failed: %v", component, instance, err)
	}
}

// IncErrorCount increments the error counter for a component.
func IncErrorCount(component, instance string) {
	errorCounter.WithLabelValues(component, instance).Inc()
}

// InitErrorCounter initializes the error counter for a component.
func InitErrorCounter(component, instance string) {
	errorCounter.WithLabelValues(component, instance).Add(0)
}

// ObserveTransitionTime records the time taken for a lifecycle transition.
func ObserveTransitionTime(operation string, duration time.Duration) {
	transitionTime.WithLabelValues(operation).Observe(float64(duration.Milliseconds()))
}

// IncTransition counts a finished lifecycle transition.
func IncTransition(operation, outcome string) {
	transitionsTotal.WithLabelValues(operation, outcome).Inc()
}

// IncStatusReport counts a status report delivered to the service manager.
func IncStatusReport(state string) {
	statusReportsTotal.WithLabelValues(state).Inc()
}

// IncControlCode counts a control code received from the service manager.
func IncControlCode(code, disposition string) {
	controlCodesTotal.WithLabelValues(code, disposition).Inc()
}

// UpdateServiceState updates the current state metric for a service. The
// value is the native numeric state code.
func UpdateServiceState(service string, state uint32) {
	serviceCurrentState.WithLabelValues(service).Set(float64(state))
}

// RecordFilesystemOp records the duration of one filesystem operation.
func RecordFilesystemOp(operation string, failed bool, cached bool, duration time.Duration) {
	outcome := OutcomeCompleted
	if failed {
		outcome = OutcomeFailed
	}

	cache := "miss"
	if cached {
		cache = "hit"
	}

	filesystemOpTime.WithLabelValues(operation, outcome, cache).Observe(float64(duration.Milliseconds()))
}

// ObserveConfigLoad records the duration of one config load.
func ObserveConfigLoad(failed bool, duration time.Duration) {
	outcome := OutcomeCompleted
	if failed {
		outcome = OutcomeFailed
	}

	configLoadTime.WithLabelValues(outcome).Observe(float64(duration.Milliseconds()))
}
