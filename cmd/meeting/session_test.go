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

package main

import (
	"bytes"
	"context"
	"flag"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/config"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/mediacapture"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/meeting"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc/types"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/signalling"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/testutils"
)

type syncBuffer struct {
	lock sync.Mutex
	buf  bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.String()
}

func joinContext(t *testing.T, args ...string) *cli.Context {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range joinFlags {
		require.NoError(t, f.Apply(set))
	}
	require.NoError(t, set.Parse(args))
	return cli.NewContext(&cli.App{Name: "test"}, set, nil)
}

func TestCaptureOptions(t *testing.T) {
	opts, ok := captureOptions(joinContext(t))
	require.True(t, ok)
	require.NotNil(t, opts.Audio)
	require.NotNil(t, opts.Video)
	require.Nil(t, opts.Screen)

	opts, ok = captureOptions(joinContext(t, "--share-screen"))
	require.True(t, ok)
	require.Nil(t, opts.Video)
	require.NotNil(t, opts.Screen)

	_, ok = captureOptions(joinContext(t, "--publish-audio=false", "--publish-video=false"))
	require.False(t, ok)
}

func TestPrintRoster(t *testing.T) {
	var out bytes.Buffer
	printRoster(&out, nil)
	require.Equal(t, "room is empty\n", out.String())

	out.Reset()
	printRoster(&out, []meeting.Peer{{ID: "p1", Name: "Alice"}, {ID: "p2"}})
	require.Contains(t, out.String(), "Alice")
	require.Contains(t, out.String(), "p2")
}

func TestStatsRow(t *testing.T) {
	row := statsRow("recv", "p1", types.Stats{
		Kind:     types.MediaKindVideo,
		MimeType: "video/VP8",
		Packets:  12345,
		Bytes:    2_500_000,
	})
	require.Equal(t, []string{"recv", "p1", "video", "video/VP8", "12,345", "2.5 MB", "false"}, row)
}

func TestSession(t *testing.T) {
	codec, err := signalling.NewCodec(config.CodecJSON)
	require.NoError(t, err)
	room := testutils.NewFakeRoom(testutils.RoomPeer{
		PeerID:    "p1",
		User:      testutils.RoomUser{ID: "p1", Name: "Alice"},
		Producers: []testutils.RoomProducer{{ID: "p1-audio", Kind: types.MediaKindAudio}},
	})
	server := testutils.NewRoomServer(codec, room)
	t.Cleanup(server.Close)

	conf := config.DefaultConfig
	conf.Signalling.URL = server.URL()
	conf.Signalling.CommandTimeout = time.Second

	client := meeting.NewClient(meeting.ClientParams{
		UserID: "u1",
		Config: &conf,
		Device: testutils.NewFakeDevice(),
	})
	t.Cleanup(client.Close)

	out := &syncBuffer{}
	s := &session{client: client, autoSubscribe: true, out: out}
	events := client.SubscribeEvents()

	_, err = client.Join(context.Background(), "room1", "token")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- s.run(ctx, events, 10*time.Millisecond)
	}()

	// the stream advertised at join is subscribed without being asked
	require.Eventually(t, func() bool {
		stream := client.RemoteStream("p1")
		return stream != nil && !stream.IsEmpty()
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "receiving p1")
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "recv")
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, server.PushEvent(signalling.EventPeerLeave, "p1"))
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "p1 left")
	}, 5*time.Second, 10*time.Millisecond)

	server.DropConnections()
	select {
	case err := <-done:
		require.ErrorContains(t, err, "disconnected")
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end on disconnect")
	}
}

func TestSessionEndsOnContext(t *testing.T) {
	client := meeting.NewClient(meeting.ClientParams{UserID: "u1", Device: testutils.NewFakeDevice()})
	defer client.Close()

	s := &session{client: client, out: &syncBuffer{}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.run(ctx, client.SubscribeEvents(), 0))

	events := client.SubscribeEvents()
	client.Close()
	require.NoError(t, s.run(context.Background(), events, 0))
}

func TestFileDeviceListing(t *testing.T) {
	devices, err := mediacapture.Devices(context.Background(), mediacapture.NewFileDevices(config.CaptureConfig{ScreenFile: "screen.ivf"}, nil), mediacapture.DeviceKindScreen)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, "screen (screen.ivf)", devices[0].Label)
}
