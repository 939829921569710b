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

package eventlog

import "sync"

// MockSink records every entry for test assertions.
type MockSink struct {
	mu sync.Mutex

	// WriteCalled is set once Write has been invoked at least once.
	WriteCalled bool

	entries []Entry
}

// NewMockSink creates a new mock sink.
func NewMockSink() *MockSink {
	return &MockSink{}
}

// Write implements Sink.
func (m *MockSink) Write(entry Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.WriteCalled = true
	m.entries = append(m.entries, entry)
}

// Entries returns a copy of everything written so far.
func (m *MockSink) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, len(m.entries))
	copy(out, m.entries)

	return out
}

// Count returns how many entries have been written.
func (m *MockSink) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.entries)
}

// Last returns the most recent entry, if any.
func (m *MockSink) Last() (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) == 0 {
		return Entry{}, false
	}

	return m.entries[len(m.entries)-1], true
}

// Reset clears everything recorded so far.
func (m *MockSink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.WriteCalled = false
	m.entries = nil
}
