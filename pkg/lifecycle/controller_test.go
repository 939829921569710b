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

package lifecycle_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/svckit/svckit/pkg/eventlog"
	"github.com/svckit/svckit/pkg/lifecycle"
	"github.com/svckit/svckit/pkg/scm"
	"github.com/svckit/svckit/pkg/svcproto"
)

var fullDesc = svcproto.Descriptor{
	Name:             "demo",
	CanStop:          true,
	CanShutdown:      true,
	CanPauseContinue: true,
}

var _ = Describe("Controller", func() {
	var (
		ctx     context.Context
		handler *lifecycle.MockHandler
		ctrl    *lifecycle.Controller
		session *scm.MockSession
		sink    *eventlog.MockSink
	)

	BeforeEach(func() {
		ctx = context.Background()
		handler = &lifecycle.MockHandler{}

		var err error
		ctrl, err = lifecycle.New(fullDesc, handler)
		Expect(err).ToNot(HaveOccurred())

		session = &scm.MockSession{}
		sink = eventlog.NewMockSink()
		ctrl.WithEventSink(sink).AttachSession(session)
	})

	// start brings the controller into Running and clears the recordings
	// so the assertions of the test see only its own transition.
	start := func() {
		Expect(ctrl.Start(ctx, nil)).To(Succeed())
		Expect(ctrl.State()).To(Equal(svcproto.StateRunning))
		session.Reset()
		sink.Reset()
		handler.Calls = nil
	}

	pause := func() {
		Expect(ctrl.Pause(ctx)).To(Succeed())
		Expect(ctrl.State()).To(Equal(svcproto.StatePaused))
		session.Reset()
		sink.Reset()
	}

	Describe("New", func() {
		It("rejects a descriptor without a name", func() {
			_, err := lifecycle.New(svcproto.Descriptor{}, handler)
			Expect(err).To(MatchError(svcproto.ErrEmptyServiceName))
		})

		It("rejects a nil handler", func() {
			_, err := lifecycle.New(fullDesc, nil)
			Expect(err).To(MatchError(lifecycle.ErrNilHandler))
		})

		It("begins in StartPending", func() {
			Expect(ctrl.State()).To(Equal(svcproto.StateStartPending))
			Expect(ctrl.Descriptor()).To(Equal(fullDesc))
		})
	})

	Describe("Start", func() {
		It("reports StartPending then Running and hands args to the hook", func() {
			args := []string{"-config", "/tmp/x.yaml"}
			Expect(ctrl.Start(ctx, args)).To(Succeed())

			Expect(handler.OnStartCalled).To(BeTrue())
			Expect(handler.StartArgs).To(Equal(args))
			Expect(session.States()).To(Equal([]svcproto.State{
				svcproto.StateStartPending,
				svcproto.StateRunning,
			}))
			Expect(session.CheckPoints()).To(Equal([]uint32{1, 0}))
			Expect(ctrl.State()).To(Equal(svcproto.StateRunning))
			Expect(sink.Count()).To(BeZero())
		})

		It("stamps every report with the fixed identity fields", func() {
			Expect(ctrl.Start(ctx, nil)).To(Succeed())

			for _, status := range session.Statuses() {
				Expect(status.ServiceType).To(Equal(svcproto.ServiceOwnProcess))
				Expect(status.Accepts).To(Equal(fullDesc.AcceptMask()))
				Expect(status.ServiceSpecificExitCode).To(BeZero())
			}
		})

		It("fails without an attached session", func() {
			fresh, err := lifecycle.New(fullDesc, handler)
			Expect(err).ToNot(HaveOccurred())

			Expect(fresh.Start(ctx, nil)).To(MatchError(lifecycle.ErrNoSession))
			Expect(handler.OnStartCalled).To(BeFalse())
		})

		It("rejects a second start", func() {
			Expect(ctrl.Start(ctx, nil)).To(Succeed())

			err := ctrl.Start(ctx, nil)
			Expect(err).To(MatchError(lifecycle.ErrInvalidTransition))
			Expect(session.Statuses()).To(HaveLen(2))
		})

		It("settles in Stopped with the coded exit code on a coded failure", func() {
			handler.OnStartError = svcproto.CodedError(0x1234)

			Expect(ctrl.Start(ctx, nil)).To(Succeed())

			Expect(session.States()).To(Equal([]svcproto.State{
				svcproto.StateStartPending,
				svcproto.StateStopped,
			}))

			last, ok := session.Last()
			Expect(ok).To(BeTrue())
			Expect(last.ExitCode).To(Equal(uint32(0x1234)))
			Expect(last.CheckPoint).To(BeZero())

			Expect(sink.Count()).To(Equal(1))
			entry, _ := sink.Last()
			Expect(entry.Message).To(Equal("Service Start failed w/err 0x00001234"))
			Expect(entry.Service).To(Equal("demo"))
			Expect(entry.Severity).To(Equal(eventlog.SeverityError))
		})

		It("settles in Stopped with exit code 0 on an unspecified failure", func() {
			handler.OnStartError = errors.New("port already bound")

			Expect(ctrl.Start(ctx, nil)).To(Succeed())

			last, ok := session.Last()
			Expect(ok).To(BeTrue())
			Expect(last.State).To(Equal(svcproto.StateStopped))
			Expect(last.ExitCode).To(BeZero())

			Expect(sink.Count()).To(Equal(1))
			entry, _ := sink.Last()
			Expect(entry.Message).To(Equal("Service failed to start."))
		})

		It("treats a panicking hook as an unspecified failure", func() {
			handler.OnStartFunc = func(context.Context, []string) error {
				panic("boom")
			}

			Expect(ctrl.Start(ctx, nil)).To(Succeed())

			Expect(ctrl.State()).To(Equal(svcproto.StateStopped))
			Expect(sink.Count()).To(Equal(1))
			entry, _ := sink.Last()
			Expect(entry.Message).To(Equal("Service failed to start."))

			last, _ := session.Last()
			Expect(last.ExitCode).To(BeZero())
		})

		It("rejects start after a failed start", func() {
			handler.OnStartError = errors.New("nope")
			Expect(ctrl.Start(ctx, nil)).To(Succeed())

			Expect(ctrl.Start(ctx, nil)).To(MatchError(lifecycle.ErrInvalidTransition))
		})
	})

	Describe("Stop", func() {
		It("reports StopPending then Stopped", func() {
			start()

			Expect(ctrl.Stop(ctx)).To(Succeed())

			Expect(handler.OnStopCalled).To(BeTrue())
			Expect(session.States()).To(Equal([]svcproto.State{
				svcproto.StateStopPending,
				svcproto.StateStopped,
			}))
			Expect(session.CheckPoints()).To(Equal([]uint32{2, 0}))
			Expect(ctrl.State()).To(Equal(svcproto.StateStopped))
		})

		It("stops from Paused", func() {
			start()
			pause()

			Expect(ctrl.Stop(ctx)).To(Succeed())
			Expect(ctrl.State()).To(Equal(svcproto.StateStopped))
		})

		It("restores Running when the hook fails", func() {
			start()
			handler.OnStopError = errors.New("drain timed out")

			Expect(ctrl.Stop(ctx)).To(Succeed())

			Expect(session.States()).To(Equal([]svcproto.State{
				svcproto.StateStopPending,
				svcproto.StateRunning,
			}))
			Expect(ctrl.State()).To(Equal(svcproto.StateRunning))

			Expect(sink.Count()).To(Equal(1))
			entry, _ := sink.Last()
			Expect(entry.Message).To(Equal("Service failed to stop."))

			// The service is fully operational again.
			handler.OnStopError = nil
			Expect(ctrl.Stop(ctx)).To(Succeed())
			Expect(ctrl.State()).To(Equal(svcproto.StateStopped))
		})

		It("restores Paused when stopping a paused service fails", func() {
			start()
			pause()
			handler.OnStopError = svcproto.CodedError(0xdead)

			Expect(ctrl.Stop(ctx)).To(Succeed())

			Expect(session.States()).To(Equal([]svcproto.State{
				svcproto.StateStopPending,
				svcproto.StatePaused,
			}))
			Expect(ctrl.State()).To(Equal(svcproto.StatePaused))

			entry, _ := sink.Last()
			Expect(entry.Message).To(Equal("Service Stop failed w/err 0x0000dead"))
		})

		It("rejects stop before the service started", func() {
			Expect(ctrl.Stop(ctx)).To(MatchError(lifecycle.ErrInvalidTransition))
			Expect(handler.OnStopCalled).To(BeFalse())
			Expect(session.Statuses()).To(BeEmpty())
		})

		It("rejects stop after the service stopped", func() {
			start()
			Expect(ctrl.Stop(ctx)).To(Succeed())

			Expect(ctrl.Stop(ctx)).To(MatchError(lifecycle.ErrInvalidTransition))
		})
	})

	Describe("Pause and Resume", func() {
		It("pauses a running service", func() {
			start()

			Expect(ctrl.Pause(ctx)).To(Succeed())

			Expect(handler.OnPauseCalled).To(BeTrue())
			Expect(session.States()).To(Equal([]svcproto.State{
				svcproto.StatePausePending,
				svcproto.StatePaused,
			}))
			Expect(ctrl.State()).To(Equal(svcproto.StatePaused))
		})

		It("reports Running again when the pause hook fails", func() {
			start()
			handler.OnPauseError = errors.New("cannot pause mid-batch")

			Expect(ctrl.Pause(ctx)).To(Succeed())

			Expect(session.States()).To(Equal([]svcproto.State{
				svcproto.StatePausePending,
				svcproto.StateRunning,
			}))
			Expect(ctrl.State()).To(Equal(svcproto.StateRunning))

			entry, _ := sink.Last()
			Expect(entry.Message).To(Equal("Service failed to pause."))
		})

		It("rejects pause unless Running", func() {
			Expect(ctrl.Pause(ctx)).To(MatchError(lifecycle.ErrInvalidTransition))

			start()
			pause()
			Expect(ctrl.Pause(ctx)).To(MatchError(lifecycle.ErrInvalidTransition))
		})

		It("resumes a paused service", func() {
			start()
			pause()

			Expect(ctrl.Resume(ctx)).To(Succeed())

			Expect(handler.OnContinueCalled).To(BeTrue())
			Expect(session.States()).To(Equal([]svcproto.State{
				svcproto.StateContinuePending,
				svcproto.StateRunning,
			}))
			Expect(ctrl.State()).To(Equal(svcproto.StateRunning))
		})

		It("reports Paused again when the continue hook fails", func() {
			start()
			pause()
			handler.OnContinueError = errors.New("worker pool gone")

			Expect(ctrl.Resume(ctx)).To(Succeed())

			Expect(session.States()).To(Equal([]svcproto.State{
				svcproto.StateContinuePending,
				svcproto.StatePaused,
			}))
			Expect(ctrl.State()).To(Equal(svcproto.StatePaused))

			entry, _ := sink.Last()
			Expect(entry.Message).To(Equal("Service failed to resume."))
		})

		It("writes the Continue label for coded continue failures", func() {
			start()
			pause()
			handler.OnContinueError = svcproto.CodedError(0xff)

			Expect(ctrl.Resume(ctx)).To(Succeed())

			entry, _ := sink.Last()
			Expect(entry.Message).To(Equal("Service Continue failed w/err 0x000000ff"))
		})

		It("rejects resume unless Paused", func() {
			Expect(ctrl.Resume(ctx)).To(MatchError(lifecycle.ErrInvalidTransition))

			start()
			Expect(ctrl.Resume(ctx)).To(MatchError(lifecycle.ErrInvalidTransition))
		})
	})

	Describe("Shutdown", func() {
		It("skips the pending report and settles in Stopped", func() {
			start()

			Expect(ctrl.Shutdown(ctx)).To(Succeed())

			Expect(handler.OnShutdownCalled).To(BeTrue())
			Expect(session.States()).To(Equal([]svcproto.State{svcproto.StateStopped}))
			Expect(session.CheckPoints()).To(Equal([]uint32{0}))
			Expect(ctrl.State()).To(Equal(svcproto.StateStopped))
		})

		It("shuts down from Paused", func() {
			start()
			pause()

			Expect(ctrl.Shutdown(ctx)).To(Succeed())
			Expect(ctrl.State()).To(Equal(svcproto.StateStopped))
		})

		It("reports nothing when the hook fails", func() {
			start()
			handler.OnShutdownError = errors.New("flush failed")

			Expect(ctrl.Shutdown(ctx)).To(Succeed())

			Expect(session.Statuses()).To(BeEmpty())
			Expect(ctrl.State()).To(Equal(svcproto.StateRunning))

			Expect(sink.Count()).To(Equal(1))
			entry, _ := sink.Last()
			Expect(entry.Message).To(Equal("Service failed to shut down."))
		})

		It("writes the coded entry for coded shutdown failures", func() {
			start()
			handler.OnShutdownError = svcproto.CodedError(0x7b)

			Expect(ctrl.Shutdown(ctx)).To(Succeed())

			entry, _ := sink.Last()
			Expect(entry.Message).To(Equal("Service Shutdown failed w/err 0x0000007b"))
		})

		It("rejects shutdown outside Running and Paused", func() {
			Expect(ctrl.Shutdown(ctx)).To(MatchError(lifecycle.ErrInvalidTransition))

			start()
			Expect(ctrl.Stop(ctx)).To(Succeed())
			Expect(ctrl.Shutdown(ctx)).To(MatchError(lifecycle.ErrInvalidTransition))
		})
	})

	Describe("checkpoint heartbeat", func() {
		It("runs one shared counter across the whole lifecycle", func() {
			Expect(ctrl.Start(ctx, nil)).To(Succeed())
			Expect(ctrl.Pause(ctx)).To(Succeed())
			Expect(ctrl.Resume(ctx)).To(Succeed())
			Expect(ctrl.Stop(ctx)).To(Succeed())

			Expect(session.States()).To(Equal([]svcproto.State{
				svcproto.StateStartPending,
				svcproto.StateRunning,
				svcproto.StatePausePending,
				svcproto.StatePaused,
				svcproto.StateContinuePending,
				svcproto.StateRunning,
				svcproto.StateStopPending,
				svcproto.StateStopped,
			}))
			Expect(session.CheckPoints()).To(Equal([]uint32{1, 0, 2, 3, 4, 0, 5, 0}))
		})

		It("advances the checkpoint on every progress report in a pending phase", func() {
			waitHint := 90 * time.Second
			handler.OnStartFunc = func(hookCtx context.Context, _ []string) error {
				Expect(ctrl.ReportProgress(hookCtx, waitHint)).To(Succeed())
				Expect(ctrl.ReportProgress(hookCtx, waitHint)).To(Succeed())

				return nil
			}

			Expect(ctrl.Start(ctx, nil)).To(Succeed())

			Expect(session.States()).To(Equal([]svcproto.State{
				svcproto.StateStartPending,
				svcproto.StateStartPending,
				svcproto.StateStartPending,
				svcproto.StateRunning,
			}))
			Expect(session.CheckPoints()).To(Equal([]uint32{1, 2, 3, 0}))

			statuses := session.Statuses()
			Expect(statuses[1].WaitHint).To(Equal(waitHint))
		})

		It("keeps checkpoint 0 for settled-state progress reports", func() {
			start()

			Expect(ctrl.ReportProgress(ctx, time.Minute)).To(Succeed())

			last, _ := session.Last()
			Expect(last.State).To(Equal(svcproto.StateRunning))
			Expect(last.CheckPoint).To(BeZero())
		})
	})

	Describe("status emission failures", func() {
		It("propagates a failure of the pending report and skips the hook", func() {
			session.SetStatusError = errors.New("pipe broken")

			err := ctrl.Start(ctx, nil)
			Expect(err).To(MatchError(session.SetStatusError))
			Expect(handler.OnStartCalled).To(BeFalse())
		})

		It("propagates a failure of the settled report", func() {
			emitErr := errors.New("manager gone")
			handler.OnStartFunc = func(context.Context, []string) error {
				session.SetStatusError = emitErr

				return nil
			}

			Expect(ctrl.Start(ctx, nil)).To(MatchError(emitErr))
			Expect(handler.OnStartCalled).To(BeTrue())
		})
	})

	Describe("wait hint", func() {
		It("advertises the configured wait hint on transition reports", func() {
			ctrl.WithWaitHint(42 * time.Second)

			Expect(ctrl.Start(ctx, nil)).To(Succeed())

			for _, status := range session.Statuses() {
				Expect(status.WaitHint).To(Equal(42 * time.Second))
			}
		})
	})

	Describe("serialization", func() {
		It("runs overlapping operations one after the other", func() {
			started := make(chan struct{})
			release := make(chan struct{})
			handler.OnStartFunc = func(context.Context, []string) error {
				close(started)
				<-release

				return nil
			}

			startDone := make(chan error, 1)
			go func() { startDone <- ctrl.Start(ctx, nil) }()
			<-started

			stopDone := make(chan error, 1)
			go func() { stopDone <- ctrl.Stop(ctx) }()
			Consistently(stopDone).ShouldNot(Receive())

			close(release)
			Eventually(startDone).Should(Receive(BeNil()))
			Eventually(stopDone).Should(Receive(BeNil()))

			Expect(session.States()).To(Equal([]svcproto.State{
				svcproto.StateStartPending,
				svcproto.StateRunning,
				svcproto.StateStopPending,
				svcproto.StateStopped,
			}))
		})
	})

	Describe("NopHandler", func() {
		It("carries a service through the full lifecycle", func() {
			nopCtrl, err := lifecycle.New(fullDesc, lifecycle.NopHandler{})
			Expect(err).ToNot(HaveOccurred())

			nopSession := &scm.MockSession{}
			nopCtrl.AttachSession(nopSession)

			Expect(nopCtrl.Start(ctx, nil)).To(Succeed())
			Expect(nopCtrl.Pause(ctx)).To(Succeed())
			Expect(nopCtrl.Resume(ctx)).To(Succeed())
			Expect(nopCtrl.Stop(ctx)).To(Succeed())
			Expect(nopCtrl.State()).To(Equal(svcproto.StateStopped))
		})
	})

	Describe("GetDebugInfo", func() {
		It("snapshots descriptor, state and status", func() {
			start()

			info := ctrl.GetDebugInfo()
			Expect(info).To(HaveField("State", "Running"))
			Expect(info).To(HaveField("Descriptor", fullDesc))
		})
	})
})
