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
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc/types"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/testutils"
)

func TestIsEOF(t *testing.T) {
	require.True(t, IsEOF(io.EOF))
	require.True(t, IsEOF(fmt.Errorf("read: %w", io.ErrClosedPipe)))
	require.False(t, IsEOF(io.ErrUnexpectedEOF))
}

func TestKindsOf(t *testing.T) {
	tracks := []types.LocalTrack{
		testutils.NewFakeTrack("cam", types.MediaKindVideo),
		testutils.NewFakeTrack("mic", types.MediaKindAudio),
		testutils.NewFakeTrack("screen", types.MediaKindVideo),
	}
	require.Equal(t, []types.MediaKind{types.MediaKindVideo, types.MediaKindAudio}, KindsOf(tracks))
	require.Empty(t, KindsOf([]types.Track{}))
}

func TestLogPanic(t *testing.T) {
	panicked := func() (ok bool) {
		defer func() {
			ok = LogPanic(nil, recover())
		}()
		panic("boom")
	}()
	require.True(t, panicked)

	require.False(t, LogPanic(nil, nil))
	require.True(t, LogPanic(nil, io.EOF))
}
