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

package svcproto

import (
	"errors"
	"strings"
)

// ErrEmptyServiceName is returned by Validate for a blank service name.
var ErrEmptyServiceName = errors.New("service name must not be empty")

// Descriptor is the immutable identity and capability set of one service
// instance. It is created once at construction and never mutated.
type Descriptor struct {
	// Name identifies the service towards the manager and in diagnostics.
	Name string `json:"name"             yaml:"name"`
	// CanStop declares that the service handles the stop control.
	CanStop bool `json:"canStop"          yaml:"canStop"`
	// CanShutdown declares that the service wants shutdown notifications.
	CanShutdown bool `json:"canShutdown"      yaml:"canShutdown"`
	// CanPauseContinue declares pause and continue handling.
	CanPauseContinue bool `json:"canPauseContinue" yaml:"canPauseContinue"`
}

// Validate checks the descriptor's construction constraints.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrEmptyServiceName
	}

	return nil
}

// AcceptMask derives the accepted-controls bitmask declared to the manager
// at registration: exactly the OR of the enabled capabilities' flags.
func (d Descriptor) AcceptMask() Accepted {
	var mask Accepted

	if d.CanStop {
		mask |= AcceptStop
	}
	if d.CanPauseContinue {
		mask |= AcceptPauseContinue
	}
	if d.CanShutdown {
		mask |= AcceptShutdown
	}

	return mask
}
