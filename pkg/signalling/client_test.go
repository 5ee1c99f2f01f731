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

package signalling_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/config"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc/types"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/signalling"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/testutils"
)

func testConfig(codec config.Codec) config.SignallingConfig {
	conf := config.DefaultConfig.Signalling
	conf.Codec = codec
	conf.CommandTimeout = time.Second
	return conf
}

func newConnectedClient(t *testing.T, codec config.Codec, conf *config.SignallingConfig) (*signalling.Client, *testutils.RoomServer) {
	c := testConfig(codec)
	if conf != nil {
		c = *conf
	}
	client, err := signalling.NewClient(signalling.ClientParams{Config: c})
	require.NoError(t, err)

	server := testutils.NewRoomServer(client.Codec(), nil)
	t.Cleanup(server.Close)

	require.NoError(t, client.Connect(context.Background(), server.URL(), signalling.ConnectParams{Token: "secret"}))
	t.Cleanup(client.Close)
	return client, server
}

func TestClient_Command(t *testing.T) {
	for _, codec := range []config.Codec{config.CodecJSON, config.CodecMsgpack} {
		codec := codec
		t.Run(string(codec), func(t *testing.T) {
			client, server := newConnectedClient(t, codec, nil)

			res, err := signalling.Call[types.TransportInfo](context.Background(), client, signalling.CommandCreateTransport, map[string]bool{"producing": true})
			require.NoError(t, err)
			require.Equal(t, "transport-1", res.ID)
			require.Equal(t, "ufrag", res.IceParameters.UsernameFragment)
			require.Len(t, res.IceCandidates, 1)

			reqs := server.RequestsNamed(signalling.CommandCreateTransport)
			require.Len(t, reqs, 1)
			require.Equal(t, true, reqs[0].Data["producing"])
			require.Equal(t, "secret", reqs[0].Token)
		})
	}
}

func TestClient_CommandError(t *testing.T) {
	client, server := newConnectedClient(t, config.CodecJSON, nil)
	server.Handle(signalling.CommandJoin, func(map[string]interface{}) (interface{}, error) {
		return nil, errors.New("room is full")
	})

	_, err := client.Command(context.Background(), signalling.CommandJoin, map[string]string{"roomId": "r1"})
	var cmdErr *signalling.CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.Equal(t, signalling.CommandJoin, cmdErr.Name)
	require.Equal(t, "room is full", cmdErr.Reason())
}

func TestClient_CommandTimeout(t *testing.T) {
	conf := testConfig(config.CodecJSON)
	conf.CommandTimeout = 50 * time.Millisecond
	client, server := newConnectedClient(t, config.CodecJSON, &conf)
	server.Handle(signalling.CommandJoin, func(map[string]interface{}) (interface{}, error) {
		return nil, testutils.ErrNoReply
	})

	start := time.Now()
	_, err := client.Command(context.Background(), signalling.CommandJoin, nil)
	require.ErrorIs(t, err, signalling.ErrCommandTimeout)
	require.Less(t, time.Since(start), time.Second)

	// channel is still usable and the command was sent once
	_, err = client.Command(context.Background(), signalling.CommandConnectTransport, nil)
	require.NoError(t, err)
	require.Len(t, server.RequestsNamed(signalling.CommandJoin), 1)
}

func TestClient_ConcurrentCommandsAreCorrelated(t *testing.T) {
	client, _ := newConnectedClient(t, config.CodecJSON, nil)

	var wg sync.WaitGroup
	ids := make([]string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := signalling.Call[types.TransportInfo](context.Background(), client, signalling.CommandCreateTransport, nil)
			require.NoError(t, err)
			ids[i] = res.ID
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, id := range ids {
		require.False(t, seen[id], "duplicate response %s", id)
		seen[id] = true
	}
	require.Len(t, seen, 10)
}

func TestClient_Events(t *testing.T) {
	client, err := signalling.NewClient(signalling.ClientParams{Config: testConfig(config.CodecJSON)})
	require.NoError(t, err)
	server := testutils.NewRoomServer(client.Codec(), nil)
	defer server.Close()

	var mu sync.Mutex
	var got []string
	client.OnEvent(func(name signalling.EventName, data signalling.Payload) {
		var ev struct {
			PeerID string `json:"peerId"`
		}
		require.NoError(t, data.Decode(&ev))
		mu.Lock()
		got = append(got, string(name)+":"+ev.PeerID)
		mu.Unlock()
	})
	require.NoError(t, client.Connect(context.Background(), server.URL(), signalling.ConnectParams{}))
	defer client.Close()

	require.NoError(t, server.PushEvent(signalling.EventPeerEnter, map[string]string{"peerId": "u2"}))
	require.NoError(t, server.PushEvent(signalling.EventNewProducer, map[string]string{"peerId": "u2", "id": "p1"}))
	require.NoError(t, server.PushEvent(signalling.EventPeerLeave, map[string]string{"peerId": "u2"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"peer-enter:u2", "new-producer:u2", "peer-leave:u2"}, got)
}

func TestClient_EventBacklogClosesChannel(t *testing.T) {
	conf := testConfig(config.CodecJSON)
	conf.EventQueueSize = 1
	client, err := signalling.NewClient(signalling.ClientParams{Config: conf})
	require.NoError(t, err)
	server := testutils.NewRoomServer(client.Codec(), nil)
	defer server.Close()

	release := make(chan struct{})
	defer close(release)
	client.OnEvent(func(signalling.EventName, signalling.Payload) {
		<-release
	})
	lost := make(chan error, 1)
	client.OnClose(func(err error) {
		lost <- err
	})
	require.NoError(t, client.Connect(context.Background(), server.URL(), signalling.ConnectParams{}))
	defer client.Close()

	require.NoError(t, server.PushEvent(signalling.EventPeerEnter, map[string]string{"peerId": "u2"}))
	for i := 0; i < 4; i++ {
		_ = server.PushEvent(signalling.EventPeerLeave, map[string]string{"peerId": "u2"})
	}

	select {
	case err := <-lost:
		require.ErrorIs(t, err, signalling.ErrEventsDropped)
	case <-time.After(2 * time.Second):
		t.Fatal("channel stayed open after dropping events")
	}
	require.True(t, client.IsClosed())
	_, err = client.Command(context.Background(), signalling.CommandJoin, nil)
	require.ErrorIs(t, err, signalling.ErrClosed)
}

func TestClient_HandlerMayIssueCommands(t *testing.T) {
	client, err := signalling.NewClient(signalling.ClientParams{Config: testConfig(config.CodecJSON)})
	require.NoError(t, err)
	server := testutils.NewRoomServer(client.Codec(), nil)
	defer server.Close()

	done := make(chan error, 1)
	client.OnEvent(func(name signalling.EventName, data signalling.Payload) {
		_, err := client.Command(context.Background(), signalling.CommandResumeConsumer, map[string]string{"id": "c1"})
		done <- err
	})
	require.NoError(t, client.Connect(context.Background(), server.URL(), signalling.ConnectParams{}))
	defer client.Close()

	require.NoError(t, server.PushEvent(signalling.EventNewProducer, map[string]string{"peerId": "u2"}))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("command from event handler did not complete")
	}
}

func TestClient_Notify(t *testing.T) {
	client, server := newConnectedClient(t, config.CodecMsgpack, nil)

	client.Notify(signalling.CommandPauseConsumer, map[string]string{"id": "c1"})
	require.Eventually(t, func() bool {
		reqs := server.RequestsNamed(signalling.CommandPauseConsumer)
		return len(reqs) == 1 && reqs[0].Type == signalling.MessageTypeNotification && reqs[0].Data["id"] == "c1"
	}, time.Second, 10*time.Millisecond)
}

func TestClient_Close(t *testing.T) {
	t.Run("pending commands fail", func(t *testing.T) {
		client, server := newConnectedClient(t, config.CodecJSON, nil)
		server.Handle(signalling.CommandJoin, func(map[string]interface{}) (interface{}, error) {
			return nil, testutils.ErrNoReply
		})

		errCh := make(chan error, 1)
		go func() {
			_, err := client.Command(context.Background(), signalling.CommandJoin, nil)
			errCh <- err
		}()
		require.Eventually(t, func() bool {
			return len(server.RequestsNamed(signalling.CommandJoin)) == 1
		}, time.Second, 10*time.Millisecond)

		client.Close()
		require.ErrorIs(t, <-errCh, signalling.ErrClosed)
	})

	t.Run("commands after close fail fast", func(t *testing.T) {
		client, server := newConnectedClient(t, config.CodecJSON, nil)
		client.Close()
		client.Close()
		require.True(t, client.IsClosed())

		_, err := client.Command(context.Background(), signalling.CommandJoin, nil)
		require.ErrorIs(t, err, signalling.ErrClosed)
		require.Empty(t, server.RequestsNamed(signalling.CommandJoin))

		err = client.Connect(context.Background(), server.URL(), signalling.ConnectParams{})
		require.ErrorIs(t, err, signalling.ErrClosed)
	})

	t.Run("connection loss is reported", func(t *testing.T) {
		client, server := newConnectedClient(t, config.CodecJSON, nil)
		lost := atomic.NewBool(false)
		client.OnClose(func(err error) {
			lost.Store(true)
		})

		server.DropConnections()
		require.Eventually(t, lost.Load, time.Second, 10*time.Millisecond)
		require.True(t, client.IsClosed())
	})

	t.Run("close is not reported as loss", func(t *testing.T) {
		client, _ := newConnectedClient(t, config.CodecJSON, nil)
		lost := atomic.NewBool(false)
		client.OnClose(func(err error) {
			lost.Store(true)
		})
		client.Close()
		time.Sleep(50 * time.Millisecond)
		require.False(t, lost.Load())
	})
}

func TestClient_ConnectError(t *testing.T) {
	client, err := signalling.NewClient(signalling.ClientParams{Config: testConfig(config.CodecJSON)})
	require.NoError(t, err)

	err = client.Connect(context.Background(), "ws://127.0.0.1:1/ws", signalling.ConnectParams{})
	var connErr *signalling.ConnectError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, "ws://127.0.0.1:1/ws", connErr.Endpoint)

	err = client.Connect(context.Background(), "ftp://example.com", signalling.ConnectParams{})
	require.ErrorAs(t, err, &connErr)
}

func TestNewCodec(t *testing.T) {
	_, err := signalling.NewCodec("xml")
	require.ErrorIs(t, err, config.ErrUnknownCodec)

	codec, err := signalling.NewCodec(config.CodecMsgpack)
	require.NoError(t, err)

	b, err := codec.Marshal(&signalling.Frame{Type: signalling.MessageTypeEvent, Name: "peer-leave", Data: map[string]string{"peerId": "u2"}})
	require.NoError(t, err)
	msg, err := codec.DecodeMessage(b)
	require.NoError(t, err)
	require.Equal(t, signalling.MessageTypeEvent, msg.Type)
	require.Equal(t, "peer-leave", msg.Name)
	require.Equal(t, `{"peerId":"u2"}`, msg.Data.String())
}
