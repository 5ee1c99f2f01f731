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

package rtc

import (
	"errors"
)

var (
	ErrNotInitialized     = errors.New("transport manager has not been initialized with server capabilities")
	ErrCannotSendMedia    = errors.New("cannot send media, check the server capabilities")
	ErrNotFound           = errors.New("not found")
	ErrAlreadySubscribed  = errors.New("already subscribed to all advertised producers")
	ErrProducerGone       = errors.New("producer is no longer advertised")
	ErrClosed             = errors.New("transport manager closed")
	ErrInvalidMediaKind   = errors.New("invalid media kind")
	ErrMissingTransportID = errors.New("server returned transport without id")
)
