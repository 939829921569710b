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

package httpapi_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/svckit/svckit/pkg/config"
	"github.com/svckit/svckit/pkg/constants"
	"github.com/svckit/svckit/pkg/eventlog"
	"github.com/svckit/svckit/pkg/hash"
	"github.com/svckit/svckit/pkg/hostmonitor"
	"github.com/svckit/svckit/pkg/httpapi"
	"github.com/svckit/svckit/pkg/safejson"
	"github.com/svckit/svckit/pkg/svcproto"
	"github.com/svckit/svckit/pkg/version"
)

const testToken = "unit-test-token"

// stubStatus is a fixed StatusProvider for handler tests.
type stubStatus struct {
	desc   svcproto.Descriptor
	state  svcproto.State
	status svcproto.Status
}

func (s *stubStatus) Descriptor() svcproto.Descriptor { return s.desc }
func (s *stubStatus) State() svcproto.State           { return s.state }
func (s *stubStatus) Status() svcproto.Status         { return s.status }

func newStubStatus() *stubStatus {
	desc := svcproto.Descriptor{
		Name:             "apitest",
		CanStop:          true,
		CanShutdown:      true,
		CanPauseContinue: true,
	}

	return &stubStatus{
		desc:  desc,
		state: svcproto.StateRunning,
		status: svcproto.Status{
			ServiceType: svcproto.ServiceOwnProcess,
			State:       svcproto.StateRunning,
			Accepts:     desc.AcceptMask(),
			WaitHint:    constants.DefaultWaitHint,
		},
	}
}

// stubTailer serves canned event log entries and records the requested
// limit.
type stubTailer struct {
	entries []eventlog.StampedEntry
	err     error
	lastN   int
}

func (t *stubTailer) Tail(n int) ([]eventlog.StampedEntry, error) {
	t.lastN = n

	if t.err != nil {
		return nil, t.err
	}
	if len(t.entries) > n {
		return t.entries[len(t.entries)-n:], nil
	}

	return t.entries, nil
}

func request(handler http.Handler, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return rec
}

func decodeBody(rec *httptest.ResponseRecorder) map[string]any {
	var decoded map[string]any
	Expect(safejson.Unmarshal(rec.Body.Bytes(), &decoded)).To(Succeed())

	return decoded
}

var _ = Describe("NewServer", func() {
	It("rejects an invalid port", func() {
		_, err := httpapi.NewServer(httpapi.Config{Port: 0}, newStubStatus())
		Expect(err).To(MatchError(ContainSubstring("invalid API port")))

		_, err = httpapi.NewServer(httpapi.Config{Port: 70000}, newStubStatus())
		Expect(err).To(MatchError(ContainSubstring("invalid API port")))
	})

	It("rejects a nil status provider", func() {
		_, err := httpapi.NewServer(httpapi.Config{Port: 8092}, nil)
		Expect(err).To(MatchError(ContainSubstring("status provider")))
	})
})

var _ = Describe("Server", func() {
	var (
		status  *stubStatus
		server  *httpapi.Server
		handler http.Handler
	)

	BeforeEach(func() {
		status = newStubStatus()

		var err error
		server, err = httpapi.NewServer(httpapi.Config{
			Port:      constants.DefaultAPIPort,
			TokenHash: hash.Sha3Hex(testToken),
		}, status)
		Expect(err).NotTo(HaveOccurred())

		handler = server.Handler()
	})

	Describe("healthz", func() {
		It("answers without authentication", func() {
			rec := request(handler, "/healthz", "")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(Equal("ok"))
		})
	})

	Describe("authentication", func() {
		It("rejects requests without a token", func() {
			rec := request(handler, "/v1/status", "")

			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(rec.Header().Get("WWW-Authenticate")).To(Equal("Bearer"))
		})

		It("rejects a wrong token", func() {
			rec := request(handler, "/v1/status", "not-the-token")

			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("rejects a malformed Authorization header", func() {
			req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
			req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("refuses every token when no digest is configured", func() {
			bare, err := httpapi.NewServer(httpapi.Config{Port: constants.DefaultAPIPort}, status)
			Expect(err).NotTo(HaveOccurred())

			rec := request(bare.Handler(), "/v1/status", testToken)

			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("locks a remote out after repeated failures", func() {
			for range constants.AuthFailureLimit {
				rec := request(handler, "/v1/version", "wrong-token")
				Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			}

			// Even the correct token is refused once the remote is locked out.
			rec := request(handler, "/v1/version", testToken)
			Expect(rec.Code).To(Equal(http.StatusTooManyRequests))
		})

		It("keeps the lockout scoped to the failing remote", func() {
			for range constants.AuthFailureLimit {
				request(handler, "/v1/version", "wrong-token")
			}

			req := httptest.NewRequest(http.MethodGet, "/v1/version", nil)
			req.RemoteAddr = "198.51.100.7:4242"
			req.Header.Set("Authorization", "Bearer "+testToken)

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
		})
	})

	Describe("/v1/status", func() {
		It("returns the controller's view of the service", func() {
			rec := request(handler, "/v1/status", testToken)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/json; charset=utf-8"))

			decoded := decodeBody(rec)
			Expect(decoded["state"]).To(Equal("Running"))
			Expect(decoded).NotTo(HaveKey("host"))

			service, ok := decoded["service"].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(service["name"]).To(Equal("apitest"))
			Expect(service["canPauseContinue"]).To(Equal(true))
		})

		It("includes the newest host sample when a monitor is attached", func() {
			monitor := hostmonitor.NewMockMonitor()
			monitor.SetupMockForSample()
			server.WithMonitor(monitor)

			rec := request(handler, "/v1/status", testToken)

			Expect(rec.Code).To(Equal(http.StatusOK))

			decoded := decodeBody(rec)
			host, ok := decoded["host"].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(host["cpu"]).NotTo(BeNil())
			Expect(host["memory"]).NotTo(BeNil())
		})

		It("omits the host section while the monitor has no sample yet", func() {
			monitor := hostmonitor.NewMockMonitor()
			monitor.SetupMockForNoSample()
			server.WithMonitor(monitor)

			rec := request(handler, "/v1/status", testToken)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decodeBody(rec)).NotTo(HaveKey("host"))
		})
	})

	Describe("/v1/version", func() {
		It("returns the build version", func() {
			rec := request(handler, "/v1/version", testToken)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decodeBody(rec)["version"]).To(Equal(version.GetAppVersion()))
		})
	})

	Describe("/v1/events", func() {
		It("answers 503 while no event log is attached", func() {
			rec := request(handler, "/v1/events", testToken)

			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
		})

		It("tails the event log with the default limit", func() {
			tailer := &stubTailer{entries: []eventlog.StampedEntry{
				{
					Entry: eventlog.Entry{Service: "apitest", Message: "Service entered the Running state.", Severity: eventlog.SeverityInfo},
					Time:  time.Now().Add(-time.Minute),
				},
				{
					Entry: eventlog.Entry{Service: "apitest", Message: "Service Pause failed w/err 0x0000001f", Severity: eventlog.SeverityError},
					Time:  time.Now(),
				},
			}}
			server.WithEventTailer(tailer)

			rec := request(handler, "/v1/events", testToken)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(tailer.lastN).To(Equal(constants.DefaultEventTailLimit))

			events, ok := decodeBody(rec)["events"].([]any)
			Expect(ok).To(BeTrue())
			Expect(events).To(HaveLen(2))

			newest, ok := events[1].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(newest["message"]).To(Equal("Service Pause failed w/err 0x0000001f"))
			Expect(newest["severity"]).To(Equal("error"))
		})

		It("honors an explicit limit", func() {
			tailer := &stubTailer{}
			server.WithEventTailer(tailer)

			rec := request(handler, "/v1/events?limit=7", testToken)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(tailer.lastN).To(Equal(7))
		})

		It("rejects a non-numeric or non-positive limit", func() {
			server.WithEventTailer(&stubTailer{})

			Expect(request(handler, "/v1/events?limit=abc", testToken).Code).To(Equal(http.StatusBadRequest))
			Expect(request(handler, "/v1/events?limit=0", testToken).Code).To(Equal(http.StatusBadRequest))
			Expect(request(handler, "/v1/events?limit=-3", testToken).Code).To(Equal(http.StatusBadRequest))
		})

		It("returns an empty array for an empty log", func() {
			server.WithEventTailer(&stubTailer{})

			rec := request(handler, "/v1/events", testToken)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"events":[]`))
		})

		It("answers 500 when the tail fails", func() {
			server.WithEventTailer(&stubTailer{err: errors.New("broken archive")})

			rec := request(handler, "/v1/events", testToken)

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("/v1/config", func() {
		It("answers 503 while no config manager is attached", func() {
			rec := request(handler, "/v1/config", testToken)

			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
		})

		It("returns the config with the token digest redacted", func() {
			cfg := config.DefaultFullConfig()
			cfg.Service.Name = "apitest"
			cfg.Agent.APITokenHash = hash.Sha3Hex(testToken)

			manager := config.NewMockConfigManager().WithConfig(cfg)
			server.WithConfigManager(manager)

			rec := request(handler, "/v1/config", testToken)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(manager.GetConfigCalled).To(BeTrue())

			decoded := decodeBody(rec)
			agent, ok := decoded["agent"].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(agent["apiTokenHash"]).To(Equal("REDACTED"))
			Expect(rec.Body.String()).NotTo(ContainSubstring(hash.Sha3Hex(testToken)))
		})

		It("leaves an unset token digest empty", func() {
			manager := config.NewMockConfigManager().WithConfig(config.DefaultFullConfig())
			server.WithConfigManager(manager)

			rec := request(handler, "/v1/config", testToken)

			Expect(rec.Code).To(Equal(http.StatusOK))

			agent, ok := decodeBody(rec)["agent"].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(agent["apiTokenHash"]).To(Equal(""))
		})

		It("answers 500 when the config cannot be loaded", func() {
			manager := config.NewMockConfigManager().WithConfigError(errors.New("disk gone"))
			server.WithConfigManager(manager)

			rec := request(handler, "/v1/config", testToken)

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("lifecycle", func() {
		It("stops cleanly when never started", func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			Expect(server.Stop(ctx)).To(Succeed())
		})

		It("serves requests end to end", func() {
			srv, err := httpapi.NewServer(httpapi.Config{
				Port:      38092,
				TokenHash: hash.Sha3Hex(testToken),
			}, status)
			Expect(err).NotTo(HaveOccurred())

			Expect(srv.Start()).To(Succeed())
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				Expect(srv.Stop(ctx)).To(Succeed())
			}()

			Expect(srv.Start()).To(MatchError(ContainSubstring("already started")))

			Eventually(func() error {
				resp, err := http.Get("http://127.0.0.1:38092/healthz")
				if err != nil {
					return err
				}
				defer func() { _ = resp.Body.Close() }()

				if resp.StatusCode != http.StatusOK {
					return fmt.Errorf("unexpected status %d", resp.StatusCode)
				}

				return nil
			}, "2s", "50ms").Should(Succeed())
		})
	})
})
