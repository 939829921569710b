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

// Package eventlog is the diagnostic event log boundary of the lifecycle
// controller. A failed transition writes exactly one Entry here before its
// recovery status report; which sink receives it is the embedder's choice.
package eventlog

// Severity classifies an event log entry.
type Severity string

const (
	// SeverityInfo is for informational entries.
	SeverityInfo Severity = "info"
	// SeverityWarning is for degraded-but-working conditions.
	SeverityWarning Severity = "warning"
	// SeverityError is for failed transitions.
	SeverityError Severity = "error"
)

// Entry is one diagnostic record: the service it concerns and a message.
type Entry struct {
	// Service is the service name from the descriptor.
	Service string `json:"service"`
	// Message is the diagnostic text. Failed transitions use the format
	// "<operation> failed w/err 0x<8-hex-digit-code>" for coded failures.
	Message string `json:"message"`
	// Severity classifies the entry.
	Severity Severity `json:"severity"`
}

// Sink consumes diagnostic entries. Writing is fire-and-forget: a sink
// swallows its own I/O problems and surfaces them through its own logger,
// mirroring the manager-side event log which has no error path either.
type Sink interface {
	Write(entry Entry)
}

// MultiSink fans every entry out to several sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink builds a fan-out sink. Nil members are skipped.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}

	return m
}

// Write implements Sink.
func (m *MultiSink) Write(entry Entry) {
	for _, s := range m.sinks {
		s.Write(entry)
	}
}
