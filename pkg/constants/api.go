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

package constants

import "time"

const (
	// DefaultAPIPort serves the diagnostics HTTP API.
	DefaultAPIPort = 8092

	// DefaultMetricsPort serves the Prometheus endpoint.
	DefaultMetricsPort = 8093

	// APIReadHeaderTimeout guards against slow-header clients.
	APIReadHeaderTimeout = 3 * time.Second

	// APIShutdownTimeout bounds the graceful drain of the HTTP servers
	// once the service has reported Stopped.
	APIShutdownTimeout = 5 * time.Second

	// AuthFailureLimit is how many failed bearer-token checks a single
	// remote may accumulate within AuthFailureWindow before requests are
	// rejected outright.
	AuthFailureLimit = 5

	// AuthFailureWindow is the expiry of a remote's failure count.
	AuthFailureWindow = 5 * time.Minute

	// DefaultEventTailLimit is how many event log entries the API returns
	// when the request does not specify a limit.
	DefaultEventTailLimit = 50

	// DefaultMonitorInterval is the host sampler period.
	DefaultMonitorInterval = 10 * time.Second

	// DefaultMonitorDisk is the mount point sampled when the config does
	// not list any.
	DefaultMonitorDisk = "/"
)
