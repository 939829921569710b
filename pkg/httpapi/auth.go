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
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/united-manufacturing-hub/expiremap/v2/pkg/expiremap"
	"go.uber.org/zap"

	"github.com/svckit/svckit/pkg/constants"
	"github.com/svckit/svckit/pkg/hash"
)

// authFailureCullInterval is how often expired failure counts are culled.
const authFailureCullInterval = time.Minute

// authGuard checks bearer tokens against the configured SHA3-256 digest and
// locks out remotes that keep failing.
type authGuard struct {
	tokenHash string
	failures  *expiremap.ExpireMap[string, int]
	mu        sync.Mutex
	logger    *zap.SugaredLogger
}

func newAuthGuard(tokenHash string, logger *zap.SugaredLogger) *authGuard {
	return &authGuard{
		tokenHash: strings.ToLower(tokenHash),
		failures:  expiremap.NewEx[string, int](authFailureCullInterval, constants.AuthFailureWindow),
		logger:    logger,
	}
}

// middleware rejects requests whose bearer token does not hash to the
// configured digest. Each failure counts against the remote for
// constants.AuthFailureWindow; reaching constants.AuthFailureLimit locks the
// remote out until the window expires.
func (g *authGuard) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		remote := c.ClientIP()

		if g.lockedOut(remote) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many failed authentication attempts"})

			return
		}

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok || !g.accept(token) {
			g.recordFailure(remote)
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})

			return
		}

		c.Next()
	}
}

// accept hashes the presented token and compares digests. With no digest
// configured every token is refused.
func (g *authGuard) accept(token string) bool {
	if g.tokenHash == "" {
		return false
	}

	return hash.Sha3Hex(token) == g.tokenHash
}

// lockedOut reports whether the remote used up its failure budget.
func (g *authGuard) lockedOut(remote string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	count, ok := g.failures.Load(remote)

	return ok && *count >= constants.AuthFailureLimit
}

// recordFailure bumps the remote's failure count. Set refreshes the entry's
// TTL, so the window slides with every failed attempt.
func (g *authGuard) recordFailure(remote string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	count := 1
	if previous, ok := g.failures.Load(remote); ok {
		count = *previous + 1
	}

	g.failures.Set(remote, count)

	g.logger.Warnf("Rejected API request from %s (%d recent auth failures)", remote, count)
}

// bearerToken extracts the token from an Authorization header value.
func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "

	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}

	return header[len(prefix):], true
}
