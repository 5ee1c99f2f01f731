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

package rtc

import (
	"sync"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc/types"
)

// LocalStream groups the tracks captured by this client. It holds at most one track per kind;
// a replaced track is stopped.
type LocalStream struct {
	id string

	lock   sync.RWMutex
	tracks []types.LocalTrack
}

func NewLocalStream(userID string, tracks ...types.LocalTrack) *LocalStream {
	s := &LocalStream{id: userID}
	for _, t := range tracks {
		s.ReplaceTrack(t)
	}
	return s
}

func (s *LocalStream) ID() string {
	return s.id
}

func (s *LocalStream) GetTracks() []types.LocalTrack {
	s.lock.RLock()
	defer s.lock.RUnlock()

	tracks := make([]types.LocalTrack, len(s.tracks))
	copy(tracks, s.tracks)
	return tracks
}

func (s *LocalStream) TracksOfKind(kind types.MediaKind) []types.LocalTrack {
	s.lock.RLock()
	defer s.lock.RUnlock()

	var tracks []types.LocalTrack
	for _, t := range s.tracks {
		if t.Kind() == kind {
			tracks = append(tracks, t)
		}
	}
	return tracks
}

// ReplaceTrack adds track, evicting and stopping any existing track of the same kind.
func (s *LocalStream) ReplaceTrack(track types.LocalTrack) {
	s.lock.Lock()
	var evicted []types.LocalTrack
	kept := s.tracks[:0]
	for _, t := range s.tracks {
		if t.Kind() == track.Kind() && t.ID() != track.ID() {
			evicted = append(evicted, t)
			continue
		}
		if t.ID() == track.ID() {
			continue
		}
		kept = append(kept, t)
	}
	s.tracks = append(kept, track)
	s.lock.Unlock()

	for _, t := range evicted {
		t.Stop()
	}
}

// RemoveTrack drops the track from the stream without stopping it.
func (s *LocalStream) RemoveTrack(track types.LocalTrack) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	for i, t := range s.tracks {
		if t.ID() == track.ID() {
			s.tracks = append(s.tracks[:i], s.tracks[i+1:]...)
			return true
		}
	}
	return false
}

// Close stops every track in the stream.
func (s *LocalStream) Close() {
	s.lock.Lock()
	tracks := s.tracks
	s.tracks = nil
	s.lock.Unlock()

	for _, t := range tracks {
		t.Stop()
	}
}

// ---------------------------------------------------------------

// RemoteStream groups the tracks received from one remote peer, at most one per kind.
// Tracks are owned by their consumers and are never stopped by the stream.
type RemoteStream struct {
	peerID string

	lock   sync.RWMutex
	tracks []types.Track
}

func NewRemoteStream(peerID string) *RemoteStream {
	return &RemoteStream{peerID: peerID}
}

func (s *RemoteStream) ID() string {
	return s.peerID
}

func (s *RemoteStream) PeerID() string {
	return s.peerID
}

func (s *RemoteStream) GetTracks() []types.Track {
	s.lock.RLock()
	defer s.lock.RUnlock()

	tracks := make([]types.Track, len(s.tracks))
	copy(tracks, s.tracks)
	return tracks
}

func (s *RemoteStream) TrackOfKind(kind types.MediaKind) types.Track {
	s.lock.RLock()
	defer s.lock.RUnlock()

	for _, t := range s.tracks {
		if t.Kind() == kind {
			return t
		}
	}
	return nil
}

func (s *RemoteStream) IsEmpty() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return len(s.tracks) == 0
}

// AddTrack adds track, replacing any existing track of the same kind.
func (s *RemoteStream) AddTrack(track types.Track) {
	s.lock.Lock()
	defer s.lock.Unlock()

	kept := s.tracks[:0]
	for _, t := range s.tracks {
		if t.Kind() != track.Kind() {
			kept = append(kept, t)
		}
	}
	s.tracks = append(kept, track)
}

func (s *RemoteStream) RemoveTrack(track types.Track) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	for i, t := range s.tracks {
		if t.ID() == track.ID() {
			s.tracks = append(s.tracks[:i], s.tracks[i+1:]...)
			return true
		}
	}
	return false
}

func (s *RemoteStream) RemoveTrackByKind(kind types.MediaKind) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	for i, t := range s.tracks {
		if t.Kind() == kind {
			s.tracks = append(s.tracks[:i], s.tracks[i+1:]...)
			return true
		}
	}
	return false
}

// Clear drops all tracks and reports whether any were present.
func (s *RemoteStream) Clear() bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	had := len(s.tracks) > 0
	s.tracks = nil
	return had
}
