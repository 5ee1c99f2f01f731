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
	"time"

	"github.com/stretchr/testify/require"
	"github.com/thoas/go-funk"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/config"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/meeting"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/signalling"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/testutils"
)

const (
	waitTick    = 10 * time.Millisecond
	waitTimeout = 5 * time.Second
)

var codecs = []config.Codec{config.CodecJSON, config.CodecMsgpack}

type testClient struct {
	*meeting.Client
	device *testutils.FakeDevice
	events <-chan meeting.Event
}

// setupRoom starts a room server speaking codec with the given peers already present.
func setupRoom(t *testing.T, codec config.Codec, peers ...testutils.RoomPeer) *testutils.RoomServer {
	c, err := signalling.NewCodec(codec)
	require.NoError(t, err)

	server := testutils.NewRoomServer(c, testutils.NewFakeRoom(peers...))
	t.Cleanup(server.Close)
	return server
}

func createClient(t *testing.T, server *testutils.RoomServer, codec config.Codec, userID string) *testClient {
	conf := config.DefaultConfig
	conf.Signalling.URL = server.URL()
	conf.Signalling.Codec = codec
	conf.Signalling.CommandTimeout = 2 * time.Second

	device := testutils.NewFakeDevice()
	c := meeting.NewClient(meeting.ClientParams{
		UserID: userID,
		Config: &conf,
		Device: device,
	})
	t.Cleanup(c.Close)

	return &testClient{
		Client: c,
		device: device,
		events: c.SubscribeEvents(),
	}
}

func joinRoom(t *testing.T, c *testClient, roomID string, token string) []meeting.Peer {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	peers, err := c.Join(ctx, roomID, token)
	require.NoError(t, err)
	return peers
}

// waitForEvent skips events until one of kind arrives.
func (c *testClient) waitForEvent(t *testing.T, kind meeting.EventKind) meeting.Event {
	t.Helper()

	timeout := time.After(waitTimeout)
	for {
		select {
		case ev, ok := <-c.events:
			require.True(t, ok, "events closed while waiting for %s", kind)
			if ev.Kind() == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
			return nil
		}
	}
}

func peerIDs(peers []meeting.Peer) []string {
	return funk.Map(peers, func(p meeting.Peer) string {
		return p.ID
	}).([]string)
}

func roomPeer(peerID string, producers ...testutils.RoomProducer) testutils.RoomPeer {
	return testutils.RoomPeer{
		PeerID:    peerID,
		User:      testutils.RoomUser{ID: peerID},
		Producers: producers,
	}
}
