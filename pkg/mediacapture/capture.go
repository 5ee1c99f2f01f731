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
	"errors"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc/types"
)

var (
	ErrVideoAndScreen = errors.New("video and screen capture cannot be requested together")
	ErrNoMedia        = errors.New("no media requested")
	ErrNoSource       = errors.New("no capture source")
)

// Constraints select and shape one capture source. A nil *Constraints means the source
// is not requested.
type Constraints struct {
	// DeviceID picks a specific device, the default one when empty
	DeviceID  string
	Width     int
	Height    int
	FrameRate int
}

type Options struct {
	Audio  *Constraints
	Video  *Constraints
	Screen *Constraints
}

func (o Options) Validate() error {
	if o.Video != nil && o.Screen != nil {
		return ErrVideoAndScreen
	}
	if o.Audio == nil && o.Video == nil && o.Screen == nil {
		return ErrNoMedia
	}
	return nil
}

type DeviceKind string

const (
	DeviceKindAudioInput DeviceKind = "audioinput"
	DeviceKindVideoInput DeviceKind = "videoinput"
	DeviceKindScreen     DeviceKind = "screen"
)

type DeviceInfo struct {
	DeviceID string
	Kind     DeviceKind
	Label    string
}

// MediaDevices is the platform capture capability.
type MediaDevices interface {
	// GetUserMedia captures microphone and camera tracks for the requested kinds
	GetUserMedia(ctx context.Context, audio *Constraints, video *Constraints) ([]types.LocalTrack, error)
	// GetDisplayMedia captures the screen as a video track
	GetDisplayMedia(ctx context.Context, screen *Constraints) ([]types.LocalTrack, error)
	EnumerateDevices(ctx context.Context) ([]DeviceInfo, error)
}

// CreateStream captures the requested media into a local stream owned by userID.
// Screen with audio yields the display video and the microphone audio in one stream.
func CreateStream(ctx context.Context, devices MediaDevices, userID string, opts Options) (*rtc.LocalStream, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if opts.Screen == nil {
		tracks, err := devices.GetUserMedia(ctx, opts.Audio, opts.Video)
		if err != nil {
			return nil, err
		}
		return rtc.NewLocalStream(userID, tracks...), nil
	}

	screen, err := devices.GetDisplayMedia(ctx, opts.Screen)
	if err != nil {
		return nil, err
	}
	if opts.Audio == nil {
		return rtc.NewLocalStream(userID, screen...), nil
	}

	mic, err := devices.GetUserMedia(ctx, opts.Audio, nil)
	if err != nil {
		stopTracks(screen)
		return nil, err
	}

	var tracks []types.LocalTrack
	if t := firstOfKind(screen, types.MediaKindVideo); t != nil {
		tracks = append(tracks, t)
	}
	if t := firstOfKind(mic, types.MediaKindAudio); t != nil {
		tracks = append(tracks, t)
	}
	// anything not carried over would keep capturing
	for _, t := range append(screen, mic...) {
		if !containsTrack(tracks, t) {
			t.Stop()
		}
	}
	return rtc.NewLocalStream(userID, tracks...), nil
}

// Devices lists the capture devices of one kind, all devices when kind is empty.
func Devices(ctx context.Context, devices MediaDevices, kind DeviceKind) ([]DeviceInfo, error) {
	all, err := devices.EnumerateDevices(ctx)
	if err != nil || kind == "" {
		return all, err
	}

	var filtered []DeviceInfo
	for _, d := range all {
		if d.Kind == kind {
			filtered = append(filtered, d)
		}
	}
	return filtered, nil
}

func firstOfKind(tracks []types.LocalTrack, kind types.MediaKind) types.LocalTrack {
	for _, t := range tracks {
		if t.Kind() == kind {
			return t
		}
	}
	return nil
}

func containsTrack(tracks []types.LocalTrack, track types.LocalTrack) bool {
	for _, t := range tracks {
		if t.ID() == track.ID() {
			return true
		}
	}
	return false
}

func stopTracks(tracks []types.LocalTrack) {
	for _, t := range tracks {
		t.Stop()
	}
}
