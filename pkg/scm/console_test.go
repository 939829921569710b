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

package scm_test

import (
	"context"
	"os"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/svckit/svckit/pkg/scm"
	"github.com/svckit/svckit/pkg/svcproto"
	"golang.org/x/sys/unix"
)

var _ = Describe("ConsoleConn", func() {
	var (
		ctx        context.Context
		conn       *scm.ConsoleConn
		sigChan    chan<- os.Signal
		stopCalled atomic.Bool
	)

	BeforeEach(func() {
		ctx = context.Background()
		sigChan = nil
		stopCalled.Store(false)
		conn = scm.NewConsoleConnWithNotify(
			func(c chan<- os.Signal, _ ...os.Signal) { sigChan = c },
			func(_ chan<- os.Signal) { stopCalled.Store(true) },
		)
	})

	It("rejects an empty service name", func() {
		_, err := conn.Register(ctx, "", svcproto.AcceptStop)
		Expect(err).To(MatchError(svcproto.ErrEmptyServiceName))
	})

	It("rejects registration on a cancelled context", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := conn.Register(cancelled, "demo", svcproto.AcceptStop)
		Expect(err).To(MatchError(context.Canceled))
	})

	It("hands out the process start arguments", func() {
		reg, err := conn.Register(ctx, "demo", svcproto.AcceptStop)
		Expect(err).ToNot(HaveOccurred())
		Expect(reg.Args).To(Equal(os.Args[1:]))
	})

	It("translates SIGTERM to Stop when stop is accepted", func() {
		reg, err := conn.Register(ctx, "demo", svcproto.AcceptStop|svcproto.AcceptShutdown)
		Expect(err).ToNot(HaveOccurred())
		Expect(sigChan).ToNot(BeNil())

		sigChan <- unix.SIGTERM
		Eventually(reg.Controls).Should(Receive(Equal(svcproto.ControlStop)))
	})

	It("translates SIGINT to Shutdown when only shutdown is accepted", func() {
		reg, err := conn.Register(ctx, "demo", svcproto.AcceptShutdown)
		Expect(err).ToNot(HaveOccurred())

		sigChan <- unix.SIGINT
		Eventually(reg.Controls).Should(Receive(Equal(svcproto.ControlShutdown)))
	})

	It("drops signals when neither stop nor shutdown is accepted", func() {
		reg, err := conn.Register(ctx, "demo", svcproto.AcceptPauseContinue)
		Expect(err).ToNot(HaveOccurred())

		sigChan <- unix.SIGTERM
		Consistently(reg.Controls).ShouldNot(Receive())
	})

	It("translates SIGHUP to ParamChange regardless of the accept mask", func() {
		reg, err := conn.Register(ctx, "demo", svcproto.AcceptPauseContinue)
		Expect(err).ToNot(HaveOccurred())

		sigChan <- unix.SIGHUP
		Eventually(reg.Controls).Should(Receive(Equal(svcproto.ControlParamChange)))
	})

	It("logs reports and ends the session on Stopped", func() {
		reg, err := conn.Register(ctx, "demo", svcproto.AcceptStop)
		Expect(err).ToNot(HaveOccurred())

		running := svcproto.Status{
			ServiceType: svcproto.ServiceOwnProcess,
			State:       svcproto.StateRunning,
			Accepts:     svcproto.AcceptStop,
		}
		Expect(reg.Session.SetStatus(ctx, running)).To(Succeed())
		Expect(stopCalled.Load()).To(BeFalse())

		stopped := running
		stopped.State = svcproto.StateStopped
		Expect(reg.Session.SetStatus(ctx, stopped)).To(Succeed())

		Eventually(reg.Controls).Should(BeClosed())
		Expect(stopCalled.Load()).To(BeTrue())
	})

	It("refuses status reports on a cancelled context", func() {
		reg, err := conn.Register(ctx, "demo", svcproto.AcceptStop)
		Expect(err).ToNot(HaveOccurred())

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		err = reg.Session.SetStatus(cancelled, svcproto.Status{State: svcproto.StateRunning})
		Expect(err).To(MatchError(context.Canceled))
	})
})

var _ = Describe("MockConn", func() {
	It("records registration and delivers injected codes", func() {
		conn := scm.NewMockConn()

		reg, err := conn.Register(context.Background(), "mock-svc", svcproto.AcceptStop)
		Expect(err).ToNot(HaveOccurred())
		Expect(conn.RegisterCalled).To(BeTrue())
		Expect(conn.RegisteredName).To(Equal("mock-svc"))

		conn.Send(svcproto.ControlStop)
		Eventually(reg.Controls).Should(Receive(Equal(svcproto.ControlStop)))

		conn.Finish()
		Eventually(reg.Controls).Should(BeClosed())
	})

	It("closes the control channel on Stopped when configured", func() {
		conn := scm.NewMockConn()
		conn.CloseOnStopped = true

		reg, err := conn.Register(context.Background(), "mock-svc", svcproto.AcceptStop)
		Expect(err).ToNot(HaveOccurred())

		err = reg.Session.SetStatus(context.Background(), svcproto.Status{State: svcproto.StateStopped})
		Expect(err).ToNot(HaveOccurred())
		Eventually(reg.Controls).Should(BeClosed())
	})
})
