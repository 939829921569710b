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

package svcproto_test

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/svckit/svckit/pkg/svcproto"
)

var _ = Describe("State", func() {
	It("marks exactly the four transitional states as pending", func() {
		Expect(svcproto.StateStartPending.IsPending()).To(BeTrue())
		Expect(svcproto.StateStopPending.IsPending()).To(BeTrue())
		Expect(svcproto.StatePausePending.IsPending()).To(BeTrue())
		Expect(svcproto.StateContinuePending.IsPending()).To(BeTrue())

		Expect(svcproto.StateRunning.IsPending()).To(BeFalse())
		Expect(svcproto.StateStopped.IsPending()).To(BeFalse())
		Expect(svcproto.StatePaused.IsPending()).To(BeFalse())
	})

	It("formats unknown states with their numeric code", func() {
		Expect(svcproto.State(42).String()).To(Equal("State(42)"))
	})
})

var _ = Describe("Accepted", func() {
	DescribeTable("Admits",
		func(mask svcproto.Accepted, code svcproto.ControlCode, want bool) {
			Expect(mask.Admits(code)).To(Equal(want))
		},
		Entry("stop against empty mask", svcproto.Accepted(0), svcproto.ControlStop, false),
		Entry("stop against stop mask", svcproto.AcceptStop, svcproto.ControlStop, true),
		Entry("pause against stop mask", svcproto.AcceptStop, svcproto.ControlPause, false),
		Entry("continue against pause/continue mask", svcproto.AcceptPauseContinue, svcproto.ControlContinue, true),
		Entry("shutdown against stop mask", svcproto.AcceptStop, svcproto.ControlShutdown, false),
		Entry("shutdown against shutdown mask", svcproto.AcceptShutdown, svcproto.ControlShutdown, true),
		Entry("interrogate is always admitted", svcproto.Accepted(0), svcproto.ControlInterrogate, true),
		Entry("unknown codes are always admitted", svcproto.Accepted(0), svcproto.ControlCode(99), true),
	)
})

var _ = Describe("CodedError", func() {
	It("round-trips its code through the error chain", func() {
		err := fmt.Errorf("hook: %w", svcproto.CodedError(0x80070005))

		code, ok := svcproto.ErrorCode(err)
		Expect(ok).To(BeTrue())
		Expect(code).To(Equal(uint32(0x80070005)))
	})

	It("classifies other errors as unspecified", func() {
		code, ok := svcproto.ErrorCode(errors.New("disk on fire"))
		Expect(ok).To(BeFalse())
		Expect(code).To(BeZero())
	})

	It("formats as eight hex digits", func() {
		Expect(svcproto.CodedError(5).Error()).To(Equal("service error 0x00000005"))
	})
})
