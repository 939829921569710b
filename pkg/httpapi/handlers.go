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

package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/svckit/svckit/pkg/constants"
	"github.com/svckit/svckit/pkg/eventlog"
	"github.com/svckit/svckit/pkg/hostmonitor"
	"github.com/svckit/svckit/pkg/metrics"
	"github.com/svckit/svckit/pkg/safejson"
	"github.com/svckit/svckit/pkg/svcproto"
	"github.com/svckit/svckit/pkg/version"
)

// redactedTokenHash replaces the token digest in config responses.
const redactedTokenHash = "REDACTED"

// statusResponse is the /v1/status payload: the controller's view of the
// service plus the newest host sample when a monitor is attached.
type statusResponse struct {
	Service svcproto.Descriptor   `json:"service"`
	State   string                `json:"state"`
	Status  svcproto.Status       `json:"status"`
	Host    *hostmonitor.Snapshot `json:"host,omitempty"`
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (s *Server) handleStatus(c *gin.Context) {
	response := statusResponse{
		Service: s.status.Descriptor(),
		State:   s.status.State().String(),
		Status:  s.status.Status(),
	}

	if s.monitor != nil {
		response.Host = s.monitor.Sample()
	}

	s.writeJSON(c, http.StatusOK, response)
}

func (s *Server) handleVersion(c *gin.Context) {
	s.writeJSON(c, http.StatusOK, gin.H{"version": version.GetAppVersion()})
}

// handleEvents tails the event log, newest entries last. The limit defaults
// to constants.DefaultEventTailLimit.
func (s *Server) handleEvents(c *gin.Context) {
	if s.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event log not available"})

		return
	}

	limit := constants.DefaultEventTailLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})

			return
		}
		limit = parsed
	}

	entries, err := s.events.Tail(limit)
	if err != nil {
		metrics.IncErrorCount(metrics.ComponentHTTPAPI, s.instance)
		s.logger.Errorf("Failed to tail event log: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read event log"})

		return
	}

	if entries == nil {
		entries = []eventlog.StampedEntry{}
	}

	s.writeJSON(c, http.StatusOK, gin.H{"events": entries})
}

// handleConfig returns the running configuration with the token digest
// blanked out.
func (s *Server) handleConfig(c *gin.Context) {
	if s.configs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "config not available"})

		return
	}

	cfg, err := s.configs.GetConfig(c.Request.Context())
	if err != nil {
		metrics.IncErrorCount(metrics.ComponentHTTPAPI, s.instance)
		s.logger.Errorf("Failed to load config for API response: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load config"})

		return
	}

	if cfg.Agent.APITokenHash != "" {
		cfg.Agent.APITokenHash = redactedTokenHash
	}

	s.writeJSON(c, http.StatusOK, cfg)
}

// writeJSON encodes the payload through safejson and writes it with the
// JSON content type.
func (s *Server) writeJSON(c *gin.Context, code int, payload any) {
	encoded, err := safejson.Marshal(payload)
	if err != nil {
		metrics.IncErrorCount(metrics.ComponentHTTPAPI, s.instance)
		s.logger.Errorf("Failed to encode API response: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode response"})

		return
	}

	c.Data(code, "application/json; charset=utf-8", encoded)
}
