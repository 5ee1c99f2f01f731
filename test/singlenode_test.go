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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/config"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/meeting"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc/types"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/signalling"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/testutils"
)

func runForCodecs(t *testing.T, scenario func(t *testing.T, codec config.Codec)) {
	if testing.Short() {
		t.SkipNow()
		return
	}

	for _, codec := range codecs {
		t.Run(string(codec), func(t *testing.T) {
			scenario(t, codec)
		})
	}
}

func TestJoinAndReceive(t *testing.T) {
	runForCodecs(t, scenarioJoinAndReceive)
}

func TestPublish(t *testing.T) {
	runForCodecs(t, scenarioPublish)
}

func TestPeersComeAndGo(t *testing.T) {
	runForCodecs(t, scenarioPeersComeAndGo)
}

func TestLeave(t *testing.T) {
	runForCodecs(t, scenarioLeave)
}

func TestRejectedJoin(t *testing.T) {
	if testing.Short() {
		t.SkipNow()
		return
	}

	server := setupRoom(t, config.CodecJSON)
	server.Handle(signalling.CommandJoin, func(_ map[string]interface{}) (interface{}, error) {
		return nil, errors.New("room is full")
	})
	c1 := createClient(t, server, config.CodecJSON, "u1")

	_, err := c1.Join(context.Background(), "r1", "t1")
	var cmdErr *signalling.CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.Equal(t, signalling.CommandJoin, cmdErr.Name)
	require.Equal(t, meeting.StateIdle, c1.State())
}

func TestUnansweredCommand(t *testing.T) {
	if testing.Short() {
		t.SkipNow()
		return
	}

	server := setupRoom(t, config.CodecMsgpack)
	server.Handle(signalling.CommandJoin, func(_ map[string]interface{}) (interface{}, error) {
		return nil, testutils.ErrNoReply
	})
	c1 := createClient(t, server, config.CodecMsgpack, "u1")

	start := time.Now()
	_, err := c1.Join(context.Background(), "r1", "t1")
	require.ErrorIs(t, err, signalling.ErrCommandTimeout)
	require.Less(t, time.Since(start), waitTimeout)
}

func TestServerGoesAway(t *testing.T) {
	if testing.Short() {
		t.SkipNow()
		return
	}

	server := setupRoom(t, config.CodecJSON)
	c1 := createClient(t, server, config.CodecJSON, "u1")
	joinRoom(t, c1, "r1", "t1")

	server.DropConnections()
	ev := c1.waitForEvent(t, meeting.EventKindDisconnected).(meeting.DisconnectedEvent)
	require.Error(t, ev.Err)

	_, err := c1.Join(context.Background(), "r1", "t1")
	require.ErrorIs(t, err, meeting.ErrAlreadyJoined)

	// commands fail fast on the released channel
	start := time.Now()
	err = c1.Publish(context.Background(), rtc.NewLocalStream("u1", testutils.NewFakeTrack("mic", types.MediaKindAudio)))
	require.ErrorIs(t, err, signalling.ErrClosed)
	require.Less(t, time.Since(start), time.Second)
}
