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

package ortc

import (
	"errors"
)

var (
	ErrNotLoaded            = errors.New("device not loaded")
	ErrNoCommonCodecs       = errors.New("no codec in common with the server")
	ErrCodecNotSupported    = errors.New("codec not supported by the server")
	ErrUnsupportedTrack     = errors.New("track cannot be sent by this device")
	ErrTrackKindMismatch    = errors.New("track kind does not match")
	ErrInvalidRtpParameters = errors.New("rtp parameters need at least one codec and one encoding")
	ErrNoConnectHandler     = errors.New("transport has no connect handler")
	ErrNoProduceHandler     = errors.New("transport has no produce handler")
	ErrTransportClosed      = errors.New("transport closed")
)
