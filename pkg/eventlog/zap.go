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

import (
	"go.uber.org/zap"

	"github.com/svckit/svckit/pkg/logger"
)

// ZapSink maps diagnostic entries onto a component logger. It is the
// default sink of a controller that was not given anything else.
type ZapSink struct {
	logger *zap.SugaredLogger
}

// NewZapSink builds a sink over the given logger; a nil logger falls back
// to the EventLog component logger.
func NewZapSink(log *zap.SugaredLogger) *ZapSink {
	if log == nil {
		log = logger.For(logger.ComponentEventLog)
	}

	return &ZapSink{logger: log}
}

// Write implements Sink.
func (z *ZapSink) Write(entry Entry) {
	switch entry.Severity {
	case SeverityError:
		z.logger.Errorw(entry.Message, "service", entry.Service)
	case SeverityWarning:
		z.logger.Warnw(entry.Message, "service", entry.Service)
	default:
		z.logger.Infow(entry.Message, "service", entry.Service)
	}
}
