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

package watchdog

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/svckit/svckit/pkg/logger"
)

var _ = Describe("Watchdog", func() {
	// Normally Start is triggered by main, but in tests we run it ourselves
	// and catch the panics it raises for failed heartbeats.

	var panickingUUIDs map[uuid.UUID]bool
	var panickingUUIDsLock sync.Mutex
	var dog atomic.Pointer[Watchdog]
	var dogCnclAtomic atomic.Value

	BeforeEach(func() {
		panickingUUIDs = make(map[uuid.UUID]bool)
		panickingUUIDsLock = sync.Mutex{}
		ctx, cncl := context.WithCancel(context.Background())
		dogCnclAtomic.Store(cncl)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					// Extract which heartbeat caused the panic, e.g.
					// Heartbeat too old: [...] test-2 (cd41ec9f-b168-4b58-a41c-4e582b6a2122)
					uuidRegex := regexp.MustCompile(`\[.+?\].+((\w{8})-(\w{4})-(\w{4})-(\w{4})-(\w{12}))`)
					matches := uuidRegex.FindStringSubmatch(r.(string))
					if len(matches) > 1 {
						u := uuid.MustParse(matches[1])
						panickingUUIDsLock.Lock()
						panickingUUIDs[u] = true
						panickingUUIDsLock.Unlock()
					}
				}
			}()
			wd := NewWatchdog(ctx, time.NewTicker(1*time.Second), false, logger.For(logger.ComponentWatchdog))
			dog.Store(wd)
			wd.Start()
		}()
		time.Sleep(100 * time.Millisecond)
	})

	AfterEach(func() {
		time.Sleep(10 * time.Millisecond)
		dogCnclAtomic.Load().(context.CancelFunc)()
	})

	When("Registering a new heartbeat", func() {
		It("should register and return an identifier", func() {
			id := dog.Load().RegisterHeartbeat("test-1", 0, 0, false)
			Expect(id).ToNot(Equal(uuid.Nil))
		})

		It("should panic if the same name is used again", func() {
			id := dog.Load().RegisterHeartbeat("test-2", 0, 0, false)
			Expect(id).ToNot(Equal(uuid.Nil))
			Expect(func() {
				dog.Load().RegisterHeartbeat("test-2", 0, 0, false)
			}).To(Panic())
		})
	})

	When("Not sending heartbeats", func() {
		It("should panic when the heartbeat is not sent", func() {
			id := dog.Load().RegisterHeartbeat("test-3", 0, 1, false)
			time.Sleep(3 * time.Second)
			panickingUUIDsLock.Lock()
			Expect(panickingUUIDs[id]).To(BeTrue())
			panickingUUIDsLock.Unlock()
		})
	})

	When("Sending heartbeats", func() {
		It("should not panic when the heartbeat is sent", func() {
			id := dog.Load().RegisterHeartbeat("test-4", 0, 5, false)
			time.Sleep(3 * time.Second)
			dog.Load().ReportHeartbeatStatus(id, HEARTBEAT_STATUS_OK)
			time.Sleep(3 * time.Second)
			panickingUUIDsLock.Lock()
			Expect(panickingUUIDs[id]).To(BeFalse())
			panickingUUIDsLock.Unlock()
		})
	})

	When("Unregistering", func() {
		It("should not panic", func() {
			id := dog.Load().RegisterHeartbeat("test-5", 0, 1, false)
			dog.Load().UnregisterHeartbeat(id)
			time.Sleep(3 * time.Second)
			panickingUUIDsLock.Lock()
			Expect(panickingUUIDs[id]).To(BeFalse())
			panickingUUIDsLock.Unlock()
		})
	})

	When("Sending warnings", func() {
		It("should not panic below the failure threshold", func() {
			id := dog.Load().RegisterHeartbeat("test-6", 5, 0, false)
			for range 4 {
				dog.Load().ReportHeartbeatStatus(id, HEARTBEAT_STATUS_WARNING)
				panickingUUIDsLock.Lock()
				Expect(panickingUUIDs[id]).To(BeFalse())
				panickingUUIDsLock.Unlock()
			}
		})
	})

	When("Sending too many warnings", func() {
		It("should panic", func() {
			id := dog.Load().RegisterHeartbeat("test-7", 5, 0, false)
			for range 5 {
				dog.Load().ReportHeartbeatStatus(id, HEARTBEAT_STATUS_WARNING)
			}
			time.Sleep(1 * time.Second)
			panickingUUIDsLock.Lock()
			Expect(panickingUUIDs[id]).To(BeTrue())
			panickingUUIDsLock.Unlock()
		})
	})

	When("A recovered heartbeat follows warnings", func() {
		It("should reset the warning counter", func() {
			id := dog.Load().RegisterHeartbeat("test-8", 5, 0, false)
			for range 4 {
				dog.Load().ReportHeartbeatStatus(id, HEARTBEAT_STATUS_WARNING)
			}
			dog.Load().ReportHeartbeatStatus(id, HEARTBEAT_STATUS_OK)
			for range 4 {
				dog.Load().ReportHeartbeatStatus(id, HEARTBEAT_STATUS_WARNING)
			}
			time.Sleep(1 * time.Second)
			panickingUUIDsLock.Lock()
			Expect(panickingUUIDs[id]).To(BeFalse())
			panickingUUIDsLock.Unlock()
		})
	})

	When("Reporting an error status", func() {
		It("should panic immediately", func() {
			id := dog.Load().RegisterHeartbeat("test-9", 0, 0, false)
			dog.Load().ReportHeartbeatStatus(id, HEARTBEAT_STATUS_ERROR)
			time.Sleep(1 * time.Second)
			panickingUUIDsLock.Lock()
			Expect(panickingUUIDs[id]).To(BeTrue())
			panickingUUIDsLock.Unlock()
		})
	})

	When("The service is inactive and the heartbeat is enforced only when active", func() {
		It("should not panic on too many warnings", func() {
			id := dog.Load().RegisterHeartbeat("test-10", 5, 0, true)
			for range 5 {
				dog.Load().ReportHeartbeatStatus(id, HEARTBEAT_STATUS_WARNING)
			}
			time.Sleep(1 * time.Second)
			panickingUUIDsLock.Lock()
			Expect(panickingUUIDs[id]).To(BeFalse())
			panickingUUIDsLock.Unlock()
		})

		It("should not panic on an overdue heartbeat", func() {
			id := dog.Load().RegisterHeartbeat("test-11", 0, 1, true)
			time.Sleep(3 * time.Second)
			panickingUUIDsLock.Lock()
			Expect(panickingUUIDs[id]).To(BeFalse())
			panickingUUIDsLock.Unlock()
		})
	})

	When("The service is active and the heartbeat is enforced only when active", func() {
		It("should panic on an overdue heartbeat", func() {
			dog.Load().SetActive(true)
			id := dog.Load().RegisterHeartbeat("test-12", 0, 1, true)
			time.Sleep(3 * time.Second)
			panickingUUIDsLock.Lock()
			Expect(panickingUUIDs[id]).To(BeTrue())
			panickingUUIDsLock.Unlock()
		})
	})

	When("Watchdog has restart callback", func() {
		It("should call restart function before panic", func() {
			var restartCalled atomic.Bool
			restartFunc := func() error {
				restartCalled.Store(true)

				return nil
			}

			id := dog.Load().RegisterHeartbeatWithRestart("test-restart-1", 0, 2, false, restartFunc)
			time.Sleep(3 * time.Second)

			Expect(restartCalled.Load()).To(BeTrue())
			panickingUUIDsLock.Lock()
			Expect(panickingUUIDs[id]).To(BeFalse())
			panickingUUIDsLock.Unlock()
		})
	})

	When("Watchdog restart callback fails", func() {
		It("should panic after failed restart", func() {
			restartFunc := func() error {
				return errors.New("restart failed")
			}

			id := dog.Load().RegisterHeartbeatWithRestart("test-restart-2", 0, 2, false, restartFunc)
			time.Sleep(3 * time.Second)

			panickingUUIDsLock.Lock()
			Expect(panickingUUIDs[id]).To(BeTrue())
			panickingUUIDsLock.Unlock()
		})
	})

	When("Watchdog has nil restart callback", func() {
		It("should panic immediately without restart attempt", func() {
			id := dog.Load().RegisterHeartbeatWithRestart("test-restart-3", 0, 2, false, nil)
			time.Sleep(3 * time.Second)

			panickingUUIDsLock.Lock()
			Expect(panickingUUIDs[id]).To(BeTrue())
			panickingUUIDsLock.Unlock()
		})
	})

	When("Watchdog restart succeeds and resets counter", func() {
		It("should reset counter after successful restart", func() {
			var restartCount atomic.Int32
			restartFunc := func() error {
				restartCount.Add(1)

				return nil
			}

			id := dog.Load().RegisterHeartbeatWithRestart("test-restart-4", 0, 2, false, restartFunc)
			time.Sleep(3 * time.Second)

			Expect(restartCount.Load()).To(Equal(int32(1)))

			time.Sleep(3 * time.Second)
			Expect(restartCount.Load()).To(Equal(int32(2)))

			panickingUUIDsLock.Lock()
			Expect(panickingUUIDs[id]).To(BeFalse())
			panickingUUIDsLock.Unlock()
		})
	})
})
