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
	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc"
)

type EventKind string

const (
	EventKindJoined        EventKind = "joined"
	EventKindPeerEnter     EventKind = "peer-enter"
	EventKindPeerLeave     EventKind = "peer-leave"
	EventKindNewStream     EventKind = "new-stream"
	EventKindSubscribed    EventKind = "subscribed"
	EventKindStreamChanged EventKind = "stream-changed"
	EventKindStreamRemoved EventKind = "stream-removed"
	EventKindDisconnected  EventKind = "disconnected"
	EventKindClosed        EventKind = "closed"
)

// Event is a session lifecycle notification delivered through Client.SubscribeEvents.
type Event interface {
	Kind() EventKind
}

type JoinedEvent struct {
	RoomID string
	Peers  []Peer
}

type PeerEnterEvent struct {
	Peer Peer
}

type PeerLeaveEvent struct {
	PeerID string
}

// NewStreamEvent announces a remote peer that started publishing. The stream is empty
// until it is subscribed.
type NewStreamEvent struct {
	Stream *rtc.RemoteStream
}

// SubscribedEvent is emitted when a stream receives its first tracks.
type SubscribedEvent struct {
	Stream *rtc.RemoteStream
}

type StreamChangedEvent struct {
	Stream *rtc.RemoteStream
}

type StreamRemovedEvent struct {
	Stream *rtc.RemoteStream
}

// DisconnectedEvent reports the loss of the signalling connection. The client stays
// usable only for Close.
type DisconnectedEvent struct {
	Err error
}

type ClosedEvent struct{}

func (JoinedEvent) Kind() EventKind        { return EventKindJoined }
func (PeerEnterEvent) Kind() EventKind     { return EventKindPeerEnter }
func (PeerLeaveEvent) Kind() EventKind     { return EventKindPeerLeave }
func (NewStreamEvent) Kind() EventKind     { return EventKindNewStream }
func (SubscribedEvent) Kind() EventKind    { return EventKindSubscribed }
func (StreamChangedEvent) Kind() EventKind { return EventKindStreamChanged }
func (StreamRemovedEvent) Kind() EventKind { return EventKindStreamRemoved }
func (DisconnectedEvent) Kind() EventKind  { return EventKindDisconnected }
func (ClosedEvent) Kind() EventKind        { return EventKindClosed }
