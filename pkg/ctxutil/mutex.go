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

// Package ctxutil provides context-aware synchronization primitives: locks
// whose acquisition can be abandoned when the caller's context ends.
package ctxutil

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// readerSlots bounds concurrent readers of an RWMutex. A writer acquires
// every slot at once, which excludes all readers.
const readerSlots = 100

// Mutex is a context-aware mutual exclusion lock. It is built on a weighted
// semaphore instead of sync.Mutex so that acquisition can be abandoned when
// the caller's context is cancelled.
type Mutex struct {
	sem *semaphore.Weighted
}

// NewMutex creates an unlocked Mutex.
func NewMutex() *Mutex {
	return &Mutex{sem: semaphore.NewWeighted(1)}
}

// Lock acquires the mutex, returning the context error when ctx ends first.
func (m *Mutex) Lock(ctx context.Context) error {
	return m.sem.Acquire(ctx, 1)
}

// TryLock acquires the mutex without blocking.
func (m *Mutex) TryLock() bool {
	return m.sem.TryAcquire(1)
}

// Unlock releases the mutex.
func (m *Mutex) Unlock() {
	m.sem.Release(1)
}

// RWMutex is the read/write variant: each reader takes one semaphore slot,
// a writer takes all of them.
type RWMutex struct {
	sem *semaphore.Weighted
}

// NewRWMutex creates an unlocked RWMutex.
func NewRWMutex() *RWMutex {
	return &RWMutex{sem: semaphore.NewWeighted(readerSlots)}
}

// RLock acquires a read slot.
func (m *RWMutex) RLock(ctx context.Context) error {
	return m.sem.Acquire(ctx, 1)
}

// RUnlock releases a read slot.
func (m *RWMutex) RUnlock() {
	m.sem.Release(1)
}

// Lock acquires the write lock.
func (m *RWMutex) Lock(ctx context.Context) error {
	return m.sem.Acquire(ctx, readerSlots)
}

// Unlock releases the write lock.
func (m *RWMutex) Unlock() {
	m.sem.Release(readerSlots)
}
