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
	"fmt"
	"io"

	"github.com/livekit/protocol/logger"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc/types"
)

func IsEOF(err error) bool {
	return errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.EOF)
}

// KindsOf lists the distinct kinds of the given tracks, in order of first appearance.
func KindsOf[T types.Track](tracks []T) []types.MediaKind {
	var kinds []types.MediaKind
	seen := make(map[types.MediaKind]bool)
	for _, t := range tracks {
		if !seen[t.Kind()] {
			seen[t.Kind()] = true
			kinds = append(kinds, t.Kind())
		}
	}
	return kinds
}

// LogPanic logs the value returned by recover, nil is ignored. It returns whether there
// was a panic.
func LogPanic(l logger.Logger, r any) bool {
	if r == nil {
		return false
	}
	if l == nil {
		l = logger.GetLogger()
	}
	err, ok := r.(error)
	if !ok {
		err = fmt.Errorf("%v", r)
	}
	l.Errorw("recovered panic", err)
	return true
}
