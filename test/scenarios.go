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

package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/livekit/protocol/logger"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/config"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/meeting"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc/types"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/signalling"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/testutils"
)

// a peer already publishing when we join is announced, then received once subscribed
func scenarioJoinAndReceive(t *testing.T, codec config.Codec) {
	server := setupRoom(t, codec, roomPeer("u2", testutils.RoomProducer{ID: "p1"}))
	c1 := createClient(t, server, codec, "u1")

	peers := joinRoom(t, c1, "r1", "t1")
	require.Equal(t, []string{"u2"}, peerIDs(peers))
	require.Equal(t, []string{"t1"}, server.Tokens())

	ev := c1.waitForEvent(t, meeting.EventKindNewStream).(meeting.NewStreamEvent)
	require.Equal(t, "u2", ev.Stream.PeerID())
	require.True(t, ev.Stream.IsEmpty())
	require.Equal(t, []string{"p1"}, c1.AdvertisedProducers("u2"))

	logger.Infow("subscribing to u2")
	require.NoError(t, c1.Subscribe(context.Background(), ev.Stream))
	subscribed := c1.waitForEvent(t, meeting.EventKindSubscribed).(meeting.SubscribedEvent)
	require.Len(t, subscribed.Stream.GetTracks(), 1)
	require.Len(t, server.RequestsNamed(signalling.CommandCreateConsumer), 1)

	// everything advertised is already received
	require.ErrorIs(t, c1.Subscribe(context.Background(), ev.Stream), rtc.ErrAlreadySubscribed)
}

// publishing creates one send transport, then one producer per track
func scenarioPublish(t *testing.T, codec config.Codec) {
	server := setupRoom(t, codec)
	c1 := createClient(t, server, codec, "u1")
	joinRoom(t, c1, "r1", "t1")

	mic := testutils.NewFakeTrack("mic", types.MediaKindAudio)
	cam := testutils.NewFakeTrack("cam", types.MediaKindVideo)
	require.NoError(t, c1.Publish(context.Background(), rtc.NewLocalStream("u1", mic, cam)))

	require.Len(t, server.RequestsNamed(signalling.CommandCreateTransport), 1)
	require.Len(t, server.RequestsNamed(signalling.CommandConnectTransport), 1)
	require.Len(t, server.RequestsNamed(signalling.CommandCreateProducer), 2)

	send := c1.device.SendTransports()
	require.Len(t, send, 1)
	require.Len(t, send[0].Producers(), 2)

	require.NoError(t, c1.ToggleLocalTrack(context.Background(), types.MediaKindVideo, true))
	require.True(t, send[0].Producers()[1].Paused())

	require.NoError(t, c1.UnpublishAudio(context.Background()))
	require.True(t, send[0].Producers()[0].IsClosed())
	require.Len(t, server.RequestsNamed(signalling.CommandCloseProducer), 1)
	require.ErrorIs(t, c1.ToggleLocalTrack(context.Background(), types.MediaKindAudio, true), rtc.ErrNotFound)
}

// peers come and go while we are in the room
func scenarioPeersComeAndGo(t *testing.T, codec config.Codec) {
	server := setupRoom(t, codec)
	c1 := createClient(t, server, codec, "u1")
	require.Empty(t, joinRoom(t, c1, "r1", "t1"))

	require.NoError(t, server.PushEvent(signalling.EventPeerEnter, roomPeer("u2")))
	enter := c1.waitForEvent(t, meeting.EventKindPeerEnter).(meeting.PeerEnterEvent)
	require.Equal(t, "u2", enter.Peer.ID)

	server.Room.SetProducerKind("u2-video", types.MediaKindVideo)
	require.NoError(t, server.PushEvent(signalling.EventNewProducer, map[string]string{"peerId": "u2", "id": "u2-video", "kind": "video"}))
	stream := c1.waitForEvent(t, meeting.EventKindNewStream).(meeting.NewStreamEvent).Stream
	require.NoError(t, c1.Subscribe(context.Background(), stream))
	c1.waitForEvent(t, meeting.EventKindSubscribed)

	// toggling a kind that is not received reports absence
	require.False(t, c1.ToggleTrack(stream, types.MediaKindAudio, true))
	require.True(t, c1.ToggleTrack(stream, types.MediaKindVideo, true))

	require.NoError(t, server.PushEvent(signalling.EventPeerLeave, map[string]string{"peerId": "u2"}))
	leave := c1.waitForEvent(t, meeting.EventKindPeerLeave).(meeting.PeerLeaveEvent)
	require.Equal(t, "u2", leave.PeerID)
	require.Empty(t, c1.Peers())
	require.Nil(t, c1.RemoteStream("u2"))
	require.Empty(t, c1.AdvertisedProducers("u2"))
	for _, consumer := range c1.device.RecvTransports()[0].Consumers() {
		require.True(t, consumer.IsClosed())
	}
}

// leaving releases everything and may be repeated
func scenarioLeave(t *testing.T, codec config.Codec) {
	server := setupRoom(t, codec)
	c1 := createClient(t, server, codec, "u1")
	joinRoom(t, c1, "r1", "t1")

	mic := testutils.NewFakeTrack("mic", types.MediaKindAudio)
	require.NoError(t, c1.Publish(context.Background(), rtc.NewLocalStream("u1", mic)))

	c1.Close()
	c1.Close()
	c1.waitForEvent(t, meeting.EventKindClosed)
	require.Equal(t, meeting.StateClosed, c1.State())
	require.True(t, mic.IsStopped())
	require.True(t, c1.device.SendTransports()[0].IsClosed())
	testutils.WithTimeout(t, func() string {
		if server.NumConnections() != 0 {
			return "server still has connections"
		}
		return ""
	})

	_, err := c1.Join(context.Background(), "r1", "t1")
	require.ErrorIs(t, err, meeting.ErrClosed)
}
