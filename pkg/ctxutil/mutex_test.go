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

package ctxutil_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/svckit/svckit/pkg/ctxutil"
)

var _ = Describe("Mutex", func() {
	It("serializes lock holders", func() {
		m := ctxutil.NewMutex()

		Expect(m.Lock(context.Background())).To(Succeed())
		Expect(m.TryLock()).To(BeFalse())

		m.Unlock()
		Expect(m.TryLock()).To(BeTrue())
		m.Unlock()
	})

	It("gives up on context cancellation", func() {
		m := ctxutil.NewMutex()
		Expect(m.Lock(context.Background())).To(Succeed())
		defer m.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		err := m.Lock(ctx)
		Expect(err).To(MatchError(context.DeadlineExceeded))
	})
})

var _ = Describe("RWMutex", func() {
	It("admits concurrent readers", func() {
		m := ctxutil.NewRWMutex()

		Expect(m.RLock(context.Background())).To(Succeed())
		Expect(m.RLock(context.Background())).To(Succeed())

		m.RUnlock()
		m.RUnlock()
	})

	It("excludes readers while a writer holds the lock", func() {
		m := ctxutil.NewRWMutex()

		Expect(m.Lock(context.Background())).To(Succeed())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		Expect(m.RLock(ctx)).To(MatchError(context.DeadlineExceeded))

		m.Unlock()
		Expect(m.RLock(context.Background())).To(Succeed())
		m.RUnlock()
	})

	It("excludes writers while readers hold the lock", func() {
		m := ctxutil.NewRWMutex()

		Expect(m.RLock(context.Background())).To(Succeed())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		Expect(m.Lock(ctx)).To(MatchError(context.DeadlineExceeded))

		m.RUnlock()
	})
})
