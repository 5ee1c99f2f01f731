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

package mediacapture

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/require"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/config"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc/types"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/testutils"
)

type fakeDevices struct {
	userErr error
	created []*testutils.FakeTrack
}

func (d *fakeDevices) track(id string, kind types.MediaKind) types.LocalTrack {
	t := testutils.NewFakeTrack(id, kind)
	d.created = append(d.created, t)
	return t
}

func (d *fakeDevices) GetUserMedia(_ context.Context, audio *Constraints, video *Constraints) ([]types.LocalTrack, error) {
	if d.userErr != nil {
		return nil, d.userErr
	}
	var tracks []types.LocalTrack
	if audio != nil {
		tracks = append(tracks, d.track("mic", types.MediaKindAudio))
	}
	if video != nil {
		tracks = append(tracks, d.track("cam", types.MediaKindVideo))
	}
	return tracks, nil
}

func (d *fakeDevices) GetDisplayMedia(_ context.Context, _ *Constraints) ([]types.LocalTrack, error) {
	// a display capture may come with system audio
	return []types.LocalTrack{
		d.track("screen", types.MediaKindVideo),
		d.track("system-audio", types.MediaKindAudio),
	}, nil
}

func (d *fakeDevices) EnumerateDevices(_ context.Context) ([]DeviceInfo, error) {
	return []DeviceInfo{
		{DeviceID: "mic", Kind: DeviceKindAudioInput},
		{DeviceID: "cam", Kind: DeviceKindVideoInput},
	}, nil
}

func trackIDs(tracks []types.LocalTrack) []string {
	ids := make([]string, 0, len(tracks))
	for _, t := range tracks {
		ids = append(ids, t.ID())
	}
	return ids
}

func TestOptionsValidate(t *testing.T) {
	require.ErrorIs(t, Options{Video: &Constraints{}, Screen: &Constraints{}}.Validate(), ErrVideoAndScreen)
	require.ErrorIs(t, Options{}.Validate(), ErrNoMedia)
	require.NoError(t, Options{Audio: &Constraints{}, Screen: &Constraints{}}.Validate())
	require.NoError(t, Options{Audio: &Constraints{}, Video: &Constraints{}}.Validate())
}

func TestCreateStream(t *testing.T) {
	ctx := context.Background()

	t.Run("user media", func(t *testing.T) {
		devices := &fakeDevices{}
		stream, err := CreateStream(ctx, devices, "u1", Options{Audio: &Constraints{}, Video: &Constraints{}})
		require.NoError(t, err)
		require.Equal(t, "u1", stream.ID())
		require.ElementsMatch(t, []string{"mic", "cam"}, trackIDs(stream.GetTracks()))
	})

	t.Run("video and screen", func(t *testing.T) {
		devices := &fakeDevices{}
		_, err := CreateStream(ctx, devices, "u1", Options{Video: &Constraints{}, Screen: &Constraints{}})
		require.ErrorIs(t, err, ErrVideoAndScreen)
		require.Empty(t, devices.created)
	})

	t.Run("screen only", func(t *testing.T) {
		devices := &fakeDevices{}
		stream, err := CreateStream(ctx, devices, "u1", Options{Screen: &Constraints{}})
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"screen", "system-audio"}, trackIDs(stream.GetTracks()))
	})

	t.Run("screen with microphone", func(t *testing.T) {
		devices := &fakeDevices{}
		stream, err := CreateStream(ctx, devices, "u1", Options{Audio: &Constraints{}, Screen: &Constraints{}})
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"screen", "mic"}, trackIDs(stream.GetTracks()))

		for _, track := range devices.created {
			require.Equal(t, track.ID() == "system-audio", track.IsStopped(), track.ID())
		}
	})

	t.Run("microphone failure releases the screen", func(t *testing.T) {
		devices := &fakeDevices{userErr: errors.New("permission denied")}
		_, err := CreateStream(ctx, devices, "u1", Options{Audio: &Constraints{}, Screen: &Constraints{}})
		require.Error(t, err)
		for _, track := range devices.created {
			require.True(t, track.IsStopped())
		}
	})
}

func TestDevices(t *testing.T) {
	devices, err := Devices(context.Background(), &fakeDevices{}, DeviceKindVideoInput)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, "cam", devices[0].DeviceID)

	devices, err = Devices(context.Background(), &fakeDevices{}, "")
	require.NoError(t, err)
	require.Len(t, devices, 2)
}

func writeIVF(t *testing.T, frames ...[]byte) string {
	header := make([]byte, 32)
	copy(header[0:4], "DKIF")
	binary.LittleEndian.PutUint16(header[6:8], 32)
	copy(header[8:12], "VP80")
	binary.LittleEndian.PutUint16(header[12:14], 640)
	binary.LittleEndian.PutUint16(header[14:16], 480)
	binary.LittleEndian.PutUint32(header[16:20], 30)
	binary.LittleEndian.PutUint32(header[20:24], 1)
	binary.LittleEndian.PutUint32(header[24:28], uint32(len(frames)))

	data := header
	for i, frame := range frames {
		frameHeader := make([]byte, 12)
		binary.LittleEndian.PutUint32(frameHeader[0:4], uint32(len(frame)))
		binary.LittleEndian.PutUint64(frameHeader[4:12], uint64(i))
		data = append(data, frameHeader...)
		data = append(data, frame...)
	}

	path := filepath.Join(t.TempDir(), "video.ivf")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestFileDevices(t *testing.T) {
	ctx := context.Background()

	t.Run("silent sources", func(t *testing.T) {
		devices := NewFileDevices(config.CaptureConfig{}, nil)
		tracks, err := devices.GetUserMedia(ctx, &Constraints{}, &Constraints{})
		require.NoError(t, err)
		require.Len(t, tracks, 2)

		audio := tracks[0].(*SampleTrack)
		require.Equal(t, types.MediaKindAudio, audio.Kind())
		require.True(t, strings.HasPrefix(audio.ID(), "TR_"))
		require.Equal(t, webrtc.MimeTypeOpus, audio.Codec().MimeType)
		require.Equal(t, webrtc.MimeTypeVP8, tracks[1].(*SampleTrack).Codec().MimeType)

		require.Eventually(t, func() bool {
			samples, _ := audio.SampleStats()
			return samples > 0
		}, time.Second, 10*time.Millisecond)

		for _, track := range tracks {
			track.Stop()
			track.Stop()
		}
		require.Eventually(t, func() bool {
			select {
			case <-audio.writer.Done():
				return true
			default:
				return false
			}
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("video file", func(t *testing.T) {
		path := writeIVF(t, []byte{1, 2, 3, 4}, []byte{5, 6})
		devices := NewFileDevices(config.CaptureConfig{VideoFile: path}, nil)

		tracks, err := devices.GetUserMedia(ctx, nil, &Constraints{})
		require.NoError(t, err)
		require.Len(t, tracks, 1)
		video := tracks[0].(*SampleTrack)

		select {
		case <-video.writer.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("writer did not finish the file")
		}
		samples, bytes := video.SampleStats()
		require.Equal(t, uint64(2), samples)
		require.Equal(t, uint64(6), bytes)
	})

	t.Run("unsupported files", func(t *testing.T) {
		devices := NewFileDevices(config.CaptureConfig{AudioFile: "voice.mp3"}, nil)
		_, err := devices.GetUserMedia(ctx, &Constraints{}, nil)
		require.Error(t, err)

		devices = NewFileDevices(config.CaptureConfig{VideoFile: filepath.Join(t.TempDir(), "missing.ivf")}, nil)
		_, err = devices.GetUserMedia(ctx, nil, &Constraints{})
		require.Error(t, err)
	})

	t.Run("screen needs a source", func(t *testing.T) {
		devices := NewFileDevices(config.CaptureConfig{}, nil)
		_, err := devices.GetDisplayMedia(ctx, &Constraints{})
		require.ErrorIs(t, err, ErrNoSource)

		path := writeIVF(t, []byte{1})
		tracks, err := devices.GetDisplayMedia(ctx, &Constraints{DeviceID: path})
		require.NoError(t, err)
		require.Equal(t, "screen", tracks[0].(*SampleTrack).Label())
		tracks[0].Stop()

		infos, err := NewFileDevices(config.CaptureConfig{ScreenFile: path}, nil).EnumerateDevices(ctx)
		require.NoError(t, err)
		require.Len(t, infos, 3)
	})
}
