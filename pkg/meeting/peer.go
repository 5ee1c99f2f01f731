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
	"errors"

	"github.com/thoas/go-funk"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/signalling"
)

var (
	ErrClosed        = errors.New("meeting client closed")
	ErrNotJoined     = errors.New("not joined to a room")
	ErrAlreadyJoined = errors.New("already joined or joining a room")
)

type State int

const (
	StateIdle State = iota
	StateJoining
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateJoining:
		return "JOINING"
	case StateJoined:
		return "JOINED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Peer is a user present in the room.
type Peer struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// peerFromInfo keys the peer by the id that streams and peer-leave events carry.
func peerFromInfo(info signalling.PeerInfo) Peer {
	return Peer{
		ID:     peerIDOf(info),
		Name:   info.User.Name,
		Avatar: info.User.Avatar,
	}
}

func peerIDOf(info signalling.PeerInfo) string {
	if info.PeerID != "" {
		return info.PeerID
	}
	return info.User.ID
}

// roster is the ordered list of peers in the room. Not goroutine safe.
type roster []Peer

func (r roster) add(p Peer) roster {
	if r.find(p.ID) >= 0 {
		return r
	}
	return append(r, p)
}

func (r roster) remove(peerID string) roster {
	return funk.Filter(r, func(p Peer) bool {
		return p.ID != peerID
	}).([]Peer)
}

func (r roster) find(peerID string) int {
	return funk.IndexOf(r.ids(), peerID)
}

func (r roster) ids() []string {
	return funk.Map(r, func(p Peer) string {
		return p.ID
	}).([]string)
}

func (r roster) clone() []Peer {
	return append([]Peer(nil), r...)
}
