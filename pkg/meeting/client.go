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

package meeting

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/frostbyte73/core"
	"github.com/gammazero/deque"
	"go.uber.org/multierr"

	"github.com/livekit/protocol/logger"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/config"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/mediacapture"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc/types"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/signalling"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/telemetry/prometheus"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/utils"
)

type ClientParams struct {
	UserID string
	Config *config.Config
	Device types.Device
	Logger logger.Logger
	// optional, creates a websocket signalling client from Config.Signalling when nil
	NewChannel func() (signalling.Channel, error)
}

type pendingEvent struct {
	name signalling.EventName
	data signalling.Payload
}

// Client is one user's session in a room. It joins over the signalling channel, keeps the
// roster and remote streams in step with server events and drives the transport manager.
type Client struct {
	params ClientParams
	logger logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// serializes server event handling with the end of Join
	eventLock sync.Mutex

	lock          sync.RWMutex
	state         State
	roomID        string
	channel       signalling.Channel
	transport     *rtc.TransportManager
	peers         roster
	localStream   *rtc.LocalStream
	remoteStreams map[string]*rtc.RemoteStream
	pending       deque.Deque[pendingEvent]

	events    *utils.EventSub[Event]
	closeOnce sync.Once
	closed    core.Fuse
}

func NewClient(params ClientParams) *Client {
	if params.Config == nil {
		conf := config.DefaultConfig
		params.Config = &conf
	}
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	l := params.Logger.WithValues("userID", params.UserID)
	if params.NewChannel == nil {
		params.NewChannel = func() (signalling.Channel, error) {
			return signalling.NewClient(signalling.ClientParams{
				Config: params.Config.Signalling,
				Logger: l,
			})
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		params:        params,
		logger:        l,
		ctx:           ctx,
		cancel:        cancel,
		remoteStreams: make(map[string]*rtc.RemoteStream),
		events:        utils.NewEventSub[Event]("meeting", params.Config.RTC.EventBufferSize, l),
	}
}

func (c *Client) UserID() string {
	return c.params.UserID
}

func (c *Client) State() State {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.state
}

func (c *Client) RoomID() string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.roomID
}

// SubscribeEvents returns a channel of lifecycle events. It is closed when the client closes.
func (c *Client) SubscribeEvents() <-chan Event {
	return c.events.Subscribe()
}

func (c *Client) UnsubscribeEvents(ch <-chan Event) {
	c.events.Unsubscribe(ch)
}

func (c *Client) Peers() []Peer {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.peers.clone()
}

func (c *Client) LocalStream() *rtc.LocalStream {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.localStream
}

func (c *Client) RemoteStream(peerID string) *rtc.RemoteStream {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.remoteStreams[peerID]
}

func (c *Client) RemoteStreams() []*rtc.RemoteStream {
	c.lock.RLock()
	defer c.lock.RUnlock()

	streams := make([]*rtc.RemoteStream, 0, len(c.remoteStreams))
	for _, s := range c.remoteStreams {
		streams = append(streams, s)
	}
	return streams
}

// CreateLocalStream captures media for this user.
func (c *Client) CreateLocalStream(ctx context.Context, devices mediacapture.MediaDevices, opts mediacapture.Options) (*rtc.LocalStream, error) {
	return mediacapture.CreateStream(ctx, devices, c.params.UserID, opts)
}

// Join connects to the room server and enters roomID. It returns the users already in the room.
// A failed join leaves the client idle so it can be attempted again.
func (c *Client) Join(ctx context.Context, roomID string, token string) ([]Peer, error) {
	c.lock.Lock()
	switch c.state {
	case StateClosed:
		c.lock.Unlock()
		return nil, ErrClosed
	case StateJoining, StateJoined:
		c.lock.Unlock()
		return nil, ErrAlreadyJoined
	}
	c.state = StateJoining
	c.lock.Unlock()

	channel, err := c.params.NewChannel()
	if err != nil {
		c.failJoin(nil)
		return nil, err
	}
	channel.OnEvent(c.onSignallingEvent)
	channel.OnClose(c.onDisconnected)

	if err = channel.Connect(ctx, c.params.Config.Signalling.URL, signalling.ConnectParams{Token: token}); err != nil {
		c.failJoin(channel)
		return nil, err
	}

	c.lock.Lock()
	if c.state != StateJoining {
		c.lock.Unlock()
		channel.Close()
		return nil, ErrClosed
	}
	c.channel = channel
	c.lock.Unlock()

	res, err := signalling.Call[signalling.JoinResponse](ctx, channel, signalling.CommandJoin, &signalling.JoinRequest{RoomID: roomID})
	if err != nil {
		c.logger.Warnw("could not join room", err, "roomID", roomID)
		c.failJoin(channel)
		return nil, err
	}

	transport := rtc.NewTransportManager(rtc.TransportManagerParams{
		Signaller:            channel,
		Device:               c.params.Device,
		SubscribeConcurrency: c.params.Config.RTC.SubscribeConcurrency,
		Capabilities:         &res.RtpCapabilities,
		Logger:               c.logger,
	})

	c.eventLock.Lock()
	defer c.eventLock.Unlock()

	c.lock.Lock()
	if c.state != StateJoining {
		c.lock.Unlock()
		transport.Close()
		return nil, ErrClosed
	}
	c.state = StateJoined
	c.roomID = roomID
	c.transport = transport
	c.peers = nil
	for _, info := range res.Peers {
		c.peers = c.peers.add(peerFromInfo(info))
	}
	peers := c.peers.clone()
	pending := make([]pendingEvent, 0, c.pending.Len())
	for c.pending.Len() > 0 {
		pending = append(pending, c.pending.PopFront())
	}
	c.lock.Unlock()

	prometheus.SetPeerCount(len(peers))
	c.logger.Infow("joined room", "roomID", roomID, "peers", len(peers))

	go func() {
		if _, err := transport.Initialize(c.ctx, res.RtpCapabilities); err != nil && !errors.Is(err, rtc.ErrClosed) {
			c.logger.Warnw("could not initialize transports", err, "roomID", roomID)
		}
	}()

	c.emit(JoinedEvent{RoomID: roomID, Peers: peers})
	for _, info := range res.Peers {
		if len(info.Producers) == 0 {
			continue
		}
		c.onProducers(peerIDOf(info), info.ProducerIDs()...)
	}
	for _, ev := range pending {
		c.handleEvent(ev.name, ev.data)
	}
	return peers, nil
}

func (c *Client) failJoin(channel signalling.Channel) {
	if channel != nil {
		channel.Close()
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	if c.state == StateJoining {
		c.state = StateIdle
	}
	c.channel = nil
	c.pending.Clear()
}

func (c *Client) onSignallingEvent(name signalling.EventName, data signalling.Payload) {
	c.lock.Lock()
	switch c.state {
	case StateJoining:
		c.pending.PushBack(pendingEvent{name: name, data: data})
		c.lock.Unlock()
		return
	case StateJoined:
	default:
		c.lock.Unlock()
		c.logger.Debugw("ignoring event", "event", name, "state", c.state)
		return
	}
	c.lock.Unlock()

	c.eventLock.Lock()
	defer c.eventLock.Unlock()
	c.handleEvent(name, data)
}

func (c *Client) onDisconnected(err error) {
	if c.closed.IsBroken() {
		return
	}
	c.logger.Warnw("signalling connection lost", err)
	c.emit(DisconnectedEvent{Err: err})
}

func (c *Client) handleEvent(name signalling.EventName, data signalling.Payload) {
	c.logger.Debugw("handling event", "event", name, "data", data)

	var err error
	switch name {
	case signalling.EventPeerEnter:
		var info signalling.PeerInfo
		if err = data.Decode(&info); err == nil {
			c.onPeerEnter(info)
		}

	case signalling.EventPeerLeave:
		var peerID string
		if peerID, err = signalling.DecodePeerID(data); err == nil {
			c.onPeerLeave(peerID)
		}

	case signalling.EventNewProducer:
		var ev signalling.NewProducerEvent
		if err = data.Decode(&ev); err == nil {
			c.onProducers(ev.PeerID, ev.ID)
		}

	case signalling.EventNewStream:
		var ev signalling.NewStreamEvent
		if err = data.Decode(&ev); err == nil {
			ids := make([]string, 0, len(ev.Producers))
			for _, p := range ev.Producers {
				ids = append(ids, p.ID)
			}
			c.onProducers(ev.PeerID, ids...)
		}

	case signalling.EventProducerClose:
		var ev signalling.ProducerCloseEvent
		if err = data.Decode(&ev); err == nil {
			c.onProducerClose(ev.PeerID, ev.ProducerID)
		}

	case signalling.EventRemoveStream:
		var peerID string
		if peerID, err = signalling.DecodePeerID(data); err == nil {
			c.onRemoveStream(peerID)
		}

	case signalling.EventConsumerClosed:
		var ev signalling.ConsumerClosedEvent
		if err = data.Decode(&ev); err == nil {
			c.onConsumerClosed(ev.PeerID(), ev.Kind())
		}

	default:
		c.logger.Debugw("unhandled event", "event", name)
	}

	if err != nil {
		c.logger.Warnw("could not decode event", err, "event", name)
	}
}

func (c *Client) onPeerEnter(info signalling.PeerInfo) {
	peer := peerFromInfo(info)

	c.lock.Lock()
	c.peers = c.peers.add(peer)
	count := len(c.peers)
	c.lock.Unlock()

	prometheus.SetPeerCount(count)
	c.logger.Infow("peer entered", "peerID", peer.ID, "name", peer.Name)
	c.emit(PeerEnterEvent{Peer: peer})

	if len(info.Producers) > 0 {
		c.onProducers(peerIDOf(info), info.ProducerIDs()...)
	}
}

func (c *Client) onPeerLeave(peerID string) {
	c.lock.Lock()
	c.peers = c.peers.remove(peerID)
	count := len(c.peers)
	stream := c.remoteStreams[peerID]
	delete(c.remoteStreams, peerID)
	transport := c.transport
	c.lock.Unlock()

	transport.RemovePeer(peerID)
	if stream != nil {
		stream.Clear()
	}

	prometheus.SetPeerCount(count)
	c.logger.Infow("peer left", "peerID", peerID)
	c.emit(PeerLeaveEvent{PeerID: peerID})
}

// onProducers records advertised producers. A peer seen for the first time gets a new
// stream, an already known stream is subscribed to the new producers right away.
func (c *Client) onProducers(peerID string, producerIDs ...string) {
	if peerID == "" || len(producerIDs) == 0 {
		return
	}

	c.lock.Lock()
	transport := c.transport
	stream, ok := c.remoteStreams[peerID]
	if !ok {
		stream = rtc.NewRemoteStream(peerID)
		c.remoteStreams[peerID] = stream
	}
	c.lock.Unlock()

	transport.SetProducerIDs(peerID, producerIDs...)
	if !ok {
		c.emit(NewStreamEvent{Stream: stream})
		return
	}

	c.emit(StreamChangedEvent{Stream: stream})
	go func() {
		if err := c.Subscribe(c.ctx, stream); err != nil && !errors.Is(err, rtc.ErrAlreadySubscribed) && !errors.Is(err, rtc.ErrClosed) {
			c.logger.Warnw("could not subscribe to new producer", err, "peerID", peerID)
		}
	}()
}

func (c *Client) onProducerClose(peerID string, producerID string) {
	c.lock.RLock()
	transport := c.transport
	stream := c.remoteStreams[peerID]
	c.lock.RUnlock()

	kinds := transport.RemoveProducerID(peerID, producerID)
	if stream == nil {
		return
	}
	for _, kind := range kinds {
		stream.RemoveTrackByKind(kind)
	}
	c.emit(StreamChangedEvent{Stream: stream})
}

func (c *Client) onRemoveStream(peerID string) {
	c.lock.Lock()
	transport := c.transport
	stream := c.remoteStreams[peerID]
	delete(c.remoteStreams, peerID)
	c.lock.Unlock()

	transport.RemovePeer(peerID)
	if stream == nil {
		return
	}
	stream.Clear()
	c.emit(StreamRemovedEvent{Stream: stream})
}

func (c *Client) onConsumerClosed(peerID string, kind types.MediaKind) {
	c.lock.RLock()
	transport := c.transport
	stream := c.remoteStreams[peerID]
	c.lock.RUnlock()
	if stream == nil {
		return
	}

	stream.RemoveTrackByKind(kind)
	if err := transport.StopReceiveTrack(c.ctx, stream, kind); err != nil {
		c.logger.Debugw("could not stop receiving", "peerID", peerID, "kind", kind, "error", err)
	}
	c.emit(StreamChangedEvent{Stream: stream})
}

// ---------------------------------------------------------------

func (c *Client) getTransport() (*rtc.TransportManager, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	switch c.state {
	case StateClosed:
		return nil, ErrClosed
	case StateJoined:
		return c.transport, nil
	default:
		return nil, ErrNotJoined
	}
}

// AdvertisedProducers are the producer ids peerID announced and that were not closed since.
func (c *Client) AdvertisedProducers(peerID string) []string {
	transport, err := c.getTransport()
	if err != nil {
		return nil
	}
	return transport.ProducerIDs(peerID)
}

// Publish sends every track of stream. The stream becomes the client's local stream.
func (c *Client) Publish(ctx context.Context, stream *rtc.LocalStream) error {
	transport, err := c.getTransport()
	if err != nil {
		return err
	}

	c.lock.Lock()
	c.localStream = stream
	c.lock.Unlock()

	return transport.Publish(ctx, stream)
}

func (c *Client) UnpublishAudio(ctx context.Context) error {
	return c.unpublish(ctx, types.MediaKindAudio)
}

func (c *Client) UnpublishVideo(ctx context.Context) error {
	return c.unpublish(ctx, types.MediaKindVideo)
}

func (c *Client) unpublish(ctx context.Context, kind types.MediaKind) error {
	transport, err := c.getTransport()
	if err != nil {
		return err
	}
	stream := c.LocalStream()
	if stream == nil {
		return nil
	}

	for _, track := range stream.TracksOfKind(kind) {
		err = multierr.Append(err, transport.StopSendTrack(ctx, track))
	}
	return err
}

// ToggleLocalTrack pauses or resumes sending the local tracks of kind.
func (c *Client) ToggleLocalTrack(ctx context.Context, kind types.MediaKind, pause bool) error {
	transport, err := c.getTransport()
	if err != nil {
		return err
	}

	var tracks []types.LocalTrack
	if stream := c.LocalStream(); stream != nil {
		tracks = stream.TracksOfKind(kind)
	}
	if len(tracks) == 0 {
		return fmt.Errorf("%w: no local %s track", rtc.ErrNotFound, kind)
	}

	for _, track := range tracks {
		err = multierr.Append(err, transport.ToggleLocalTrack(ctx, track, pause))
	}
	return err
}

// ReplaceTrack swaps the local track of the same kind as track. The replaced track is
// stopped. When nothing of that kind is being sent only the local stream changes.
func (c *Client) ReplaceTrack(ctx context.Context, track types.LocalTrack) error {
	transport, err := c.getTransport()
	if err != nil {
		return err
	}
	stream := c.LocalStream()
	if stream == nil {
		return fmt.Errorf("%w: no local stream", rtc.ErrNotFound)
	}

	if old := stream.TracksOfKind(track.Kind()); len(old) > 0 {
		err = transport.ReplaceTrack(ctx, old[0], track)
		if err != nil && !errors.Is(err, rtc.ErrNotFound) {
			return err
		}
	}
	stream.ReplaceTrack(track)
	return nil
}

// Subscribe receives every advertised track of stream that is not received yet.
func (c *Client) Subscribe(ctx context.Context, stream *rtc.RemoteStream) error {
	transport, err := c.getTransport()
	if err != nil {
		return err
	}

	wasEmpty := stream.IsEmpty()
	consumers, err := transport.Subscribe(ctx, stream)
	if len(consumers) == 0 {
		return err
	}

	// held until the event is out so a peer leaving meanwhile is reported after it
	c.lock.RLock()
	defer c.lock.RUnlock()
	if c.remoteStreams[stream.PeerID()] != stream {
		c.logger.Debugw("stream removed while subscribing", "peerID", stream.PeerID())
		return err
	}
	for _, consumer := range consumers {
		if !consumer.IsClosed() {
			stream.AddTrack(consumer.Track())
		}
	}
	if wasEmpty {
		c.emit(SubscribedEvent{Stream: stream})
	} else {
		c.emit(StreamChangedEvent{Stream: stream})
	}
	c.logger.Debugw("subscribed", "peerID", stream.PeerID(), "tracks", len(consumers))
	return err
}

// Unsubscribe stops receiving the tracks of kind from stream, every track when kind is empty.
func (c *Client) Unsubscribe(ctx context.Context, stream *rtc.RemoteStream, kind types.MediaKind) error {
	transport, err := c.getTransport()
	if err != nil {
		return err
	}
	if err = transport.StopReceiveTrack(ctx, stream, kind); err != nil {
		return err
	}
	c.emit(StreamChangedEvent{Stream: stream})
	return nil
}

// ToggleTrack pauses or resumes a received track and reports whether it exists.
func (c *Client) ToggleTrack(stream *rtc.RemoteStream, kind types.MediaKind, pause bool) bool {
	transport, err := c.getTransport()
	if err != nil {
		return false
	}
	return transport.ToggleRemoteTrack(stream, kind, pause)
}

func (c *Client) GetSendStats(ctx context.Context, track types.LocalTrack) (*types.Stats, error) {
	transport, err := c.getTransport()
	if err != nil {
		return nil, err
	}
	return transport.GetSendStats(ctx, track)
}

func (c *Client) GetReceiveStats(ctx context.Context, stream *rtc.RemoteStream, kind types.MediaKind) ([]types.Stats, error) {
	transport, err := c.getTransport()
	if err != nil {
		return nil, err
	}
	return transport.GetReceiveStats(ctx, stream, kind)
}

// Close leaves the room: transports first, then the signalling channel, then local capture.
// It never fails and may be called in any state.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.lock.Lock()
		prev := c.state
		c.state = StateClosed
		transport, channel, localStream := c.transport, c.channel, c.localStream
		c.pending.Clear()
		c.lock.Unlock()

		c.closed.Break()
		c.cancel()

		if transport != nil {
			transport.Close()
		}
		if channel != nil {
			channel.Close()
		}
		if localStream != nil {
			localStream.Close()
		}

		c.logger.Infow("meeting client closed", "previousState", prev)
		c.emit(ClosedEvent{})
		c.events.Close()
	})
}

func (c *Client) emit(ev Event) {
	c.logger.Debugw("emitting event", "event", ev.Kind())
	c.events.Publish(ev)
}
