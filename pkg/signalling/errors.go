// Copyright 2023 LiveKit, Inc.
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

package signalling

import (
	"errors"
	"fmt"
)

var (
	ErrClosed           = errors.New("signalling channel closed")
	ErrNotConnected     = errors.New("signalling channel not connected")
	ErrAlreadyConnected = errors.New("signalling channel already connected")
	ErrCommandTimeout   = errors.New("signalling command timed out")
	ErrEventsDropped    = errors.New("signalling event queue full, server events were dropped")
)

// ConnectError is returned when the channel could not be established.
type ConnectError struct {
	Endpoint string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("could not connect to %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// CommandError is returned when the server answered a command with an error status.
type CommandError struct {
	Name    CommandName
	Payload Payload
}

func (e *CommandError) Error() string {
	if reason := e.Reason(); reason != "" {
		return fmt.Sprintf("command %s failed: %s", e.Name, reason)
	}
	return fmt.Sprintf("command %s failed", e.Name)
}

// Reason returns the server supplied description of the failure, if any.
func (e *CommandError) Reason() string {
	var reason ErrorReason
	if err := e.Payload.Decode(&reason); err == nil {
		if reason.Error != "" {
			return reason.Error
		}
		if reason.Message != "" {
			return reason.Message
		}
	}

	var s string
	if err := e.Payload.Decode(&s); err == nil {
		return s
	}
	return e.Payload.String()
}
