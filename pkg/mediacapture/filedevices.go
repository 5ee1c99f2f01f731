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
	"path/filepath"
	"strings"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/pkg/errors"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/protocol/utils"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/config"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc/types"
)

// SampleTrack is a local track fed by a TrackWriter. Media engines send it through TrackLocal.
type SampleTrack struct {
	kind   types.MediaKind
	label  string
	track  *webrtc.TrackLocalStaticSample
	writer *TrackWriter

	stopOnce sync.Once
}

// NewSampleTrack creates a track for kind, streaming filePath when set. The codec follows
// the file extension: .ogg is opus, .ivf is VP8, .h264 is H264.
func NewSampleTrack(ctx context.Context, kind types.MediaKind, label string, filePath string, loop bool, l logger.Logger) (*SampleTrack, error) {
	codec, err := codecFor(kind, filePath)
	if err != nil {
		return nil, err
	}

	id := utils.NewGuid(utils.TrackPrefix)
	track, err := webrtc.NewTrackLocalStaticSample(codec, id, label)
	if err != nil {
		return nil, err
	}

	writer := NewTrackWriter(ctx, track, filePath, loop, l)
	if err = writer.Start(); err != nil {
		return nil, errors.Wrapf(err, "could not start capture from %s", filePath)
	}
	return &SampleTrack{
		kind:   kind,
		label:  label,
		track:  track,
		writer: writer,
	}, nil
}

func (t *SampleTrack) ID() string {
	return t.track.ID()
}

func (t *SampleTrack) Kind() types.MediaKind {
	return t.kind
}

func (t *SampleTrack) Label() string {
	return t.label
}

func (t *SampleTrack) Stop() {
	t.stopOnce.Do(t.writer.Stop)
}

// TrackLocal is the pion track carrying the samples.
func (t *SampleTrack) TrackLocal() webrtc.TrackLocal {
	return t.track
}

func (t *SampleTrack) Codec() webrtc.RTPCodecCapability {
	return t.track.Codec()
}

// SampleStats returns the samples and bytes captured so far.
func (t *SampleTrack) SampleStats() (uint64, uint64) {
	return t.writer.Stats()
}

func codecFor(kind types.MediaKind, filePath string) (webrtc.RTPCodecCapability, error) {
	switch kind {
	case types.MediaKindAudio:
		if ext := strings.ToLower(filepath.Ext(filePath)); ext != "" && ext != ".ogg" && ext != ".opus" {
			return webrtc.RTPCodecCapability{}, errors.Errorf("unsupported audio file %s", filePath)
		}
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}, nil

	case types.MediaKindVideo:
		switch strings.ToLower(filepath.Ext(filePath)) {
		case "", ".ivf":
			return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}, nil
		case ".h264", ".264":
			return webrtc.RTPCodecCapability{
				MimeType:    webrtc.MimeTypeH264,
				ClockRate:   90000,
				SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
			}, nil
		default:
			return webrtc.RTPCodecCapability{}, errors.Errorf("unsupported video file %s", filePath)
		}

	default:
		return webrtc.RTPCodecCapability{}, errors.Errorf("invalid media kind %q", kind)
	}
}

// ---------------------------------------------------------------

// FileDevices captures from media files: the audio file acts as the microphone, the video
// file as the camera and the screen file as the display. Constraints.DeviceID overrides
// the configured file.
type FileDevices struct {
	conf   config.CaptureConfig
	logger logger.Logger
}

var _ MediaDevices = (*FileDevices)(nil)

func NewFileDevices(conf config.CaptureConfig, l logger.Logger) *FileDevices {
	if l == nil {
		l = logger.GetLogger()
	}
	return &FileDevices{
		conf:   conf,
		logger: l.WithName("capture"),
	}
}

func (d *FileDevices) GetUserMedia(ctx context.Context, audio *Constraints, video *Constraints) ([]types.LocalTrack, error) {
	var tracks []types.LocalTrack
	if audio != nil {
		t, err := d.open(ctx, types.MediaKindAudio, "microphone", sourceOf(audio, d.conf.AudioFile))
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	if video != nil {
		t, err := d.open(ctx, types.MediaKindVideo, "camera", sourceOf(video, d.conf.VideoFile))
		if err != nil {
			stopTracks(tracks)
			return nil, err
		}
		tracks = append(tracks, t)
	}
	if len(tracks) == 0 {
		return nil, ErrNoMedia
	}
	return tracks, nil
}

func (d *FileDevices) GetDisplayMedia(ctx context.Context, screen *Constraints) ([]types.LocalTrack, error) {
	if screen == nil {
		return nil, ErrNoMedia
	}
	source := sourceOf(screen, d.conf.ScreenFile)
	if source == "" {
		return nil, errors.Wrap(ErrNoSource, "screen")
	}
	t, err := d.open(ctx, types.MediaKindVideo, "screen", source)
	if err != nil {
		return nil, err
	}
	return []types.LocalTrack{t}, nil
}

func (d *FileDevices) EnumerateDevices(_ context.Context) ([]DeviceInfo, error) {
	devices := []DeviceInfo{
		{DeviceID: d.conf.AudioFile, Kind: DeviceKindAudioInput, Label: labelOf("microphone", d.conf.AudioFile)},
		{DeviceID: d.conf.VideoFile, Kind: DeviceKindVideoInput, Label: labelOf("camera", d.conf.VideoFile)},
	}
	if d.conf.ScreenFile != "" {
		devices = append(devices, DeviceInfo{DeviceID: d.conf.ScreenFile, Kind: DeviceKindScreen, Label: labelOf("screen", d.conf.ScreenFile)})
	}
	return devices, nil
}

func (d *FileDevices) open(ctx context.Context, kind types.MediaKind, label string, source string) (*SampleTrack, error) {
	t, err := NewSampleTrack(ctx, kind, label, source, d.conf.Loop, d.logger)
	if err != nil {
		return nil, err
	}
	d.logger.Debugw("capture started", "trackID", t.ID(), "kind", kind, "source", source)
	return t, nil
}

func sourceOf(c *Constraints, fallback string) string {
	if c != nil && c.DeviceID != "" {
		return c.DeviceID
	}
	return fallback
}

func labelOf(name string, file string) string {
	if file == "" {
		return name + " (silence)"
	}
	return name + " (" + filepath.Base(file) + ")"
}
