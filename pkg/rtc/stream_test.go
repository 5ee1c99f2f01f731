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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc/types"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/testutils"
)

func TestLocalStream(t *testing.T) {
	t.Run("one track per kind", func(t *testing.T) {
		mic := testutils.NewFakeTrack("mic", types.MediaKindAudio)
		cam := testutils.NewFakeTrack("cam", types.MediaKindVideo)
		stream := NewLocalStream("u1", mic, cam)
		require.Equal(t, "u1", stream.ID())
		require.Len(t, stream.GetTracks(), 2)

		mic2 := testutils.NewFakeTrack("mic2", types.MediaKindAudio)
		stream.ReplaceTrack(mic2)
		require.True(t, mic.IsStopped())
		require.False(t, cam.IsStopped())

		audio := stream.TracksOfKind(types.MediaKindAudio)
		require.Len(t, audio, 1)
		require.Equal(t, "mic2", audio[0].ID())
		require.Len(t, stream.GetTracks(), 2)
	})

	t.Run("re-adding the same track keeps it running", func(t *testing.T) {
		mic := testutils.NewFakeTrack("mic", types.MediaKindAudio)
		stream := NewLocalStream("u1", mic)
		stream.ReplaceTrack(mic)
		require.False(t, mic.IsStopped())
		require.Len(t, stream.GetTracks(), 1)
	})

	t.Run("remove does not stop", func(t *testing.T) {
		mic := testutils.NewFakeTrack("mic", types.MediaKindAudio)
		stream := NewLocalStream("u1", mic)
		require.True(t, stream.RemoveTrack(mic))
		require.False(t, stream.RemoveTrack(mic))
		require.False(t, mic.IsStopped())
		require.Empty(t, stream.GetTracks())
	})

	t.Run("close stops all", func(t *testing.T) {
		mic := testutils.NewFakeTrack("mic", types.MediaKindAudio)
		cam := testutils.NewFakeTrack("cam", types.MediaKindVideo)
		stream := NewLocalStream("u1", mic, cam)
		stream.Close()
		require.True(t, mic.IsStopped())
		require.True(t, cam.IsStopped())
		require.Empty(t, stream.GetTracks())
	})
}

func TestRemoteStream(t *testing.T) {
	stream := NewRemoteStream("u2")
	require.Equal(t, "u2", stream.ID())
	require.True(t, stream.IsEmpty())
	require.Nil(t, stream.TrackOfKind(types.MediaKindAudio))

	a1 := testutils.NewFakeTrack("a1", types.MediaKindAudio)
	a2 := testutils.NewFakeTrack("a2", types.MediaKindAudio)
	v1 := testutils.NewFakeTrack("v1", types.MediaKindVideo)

	stream.AddTrack(a1)
	stream.AddTrack(v1)
	stream.AddTrack(a2)
	require.False(t, stream.IsEmpty())
	require.Len(t, stream.GetTracks(), 2)
	require.Equal(t, "a2", stream.TrackOfKind(types.MediaKindAudio).ID())
	// replaced remote tracks belong to their consumers
	require.False(t, a1.IsStopped())

	require.False(t, stream.RemoveTrack(a1))
	require.True(t, stream.RemoveTrackByKind(types.MediaKindAudio))
	require.False(t, stream.RemoveTrackByKind(types.MediaKindAudio))
	require.True(t, stream.RemoveTrack(v1))
	require.True(t, stream.IsEmpty())

	stream.AddTrack(v1)
	require.True(t, stream.Clear())
	require.False(t, stream.Clear())
}
