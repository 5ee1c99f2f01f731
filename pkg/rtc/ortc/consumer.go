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

package ortc

import (
	"context"
	"sync"
	"time"

	"github.com/frostbyte73/core"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/atomic"

	"github.com/livekit/protocol/logger"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc/types"
)

// RemoteTrack is the media received by a consumer.
type RemoteTrack struct {
	id   string
	kind types.MediaKind

	lock     sync.RWMutex
	onPacket func(pkt *rtp.Packet)
}

func (t *RemoteTrack) ID() string {
	return t.id
}

func (t *RemoteTrack) Kind() types.MediaKind {
	return t.kind
}

// OnPacket sets the receiver of the track's RTP packets. Packets are dropped while the
// consumer is paused.
func (t *RemoteTrack) OnPacket(f func(pkt *rtp.Packet)) {
	t.lock.Lock()
	t.onPacket = f
	t.lock.Unlock()
}

func (t *RemoteTrack) handlePacket(pkt *rtp.Packet) {
	t.lock.RLock()
	f := t.onPacket
	t.lock.RUnlock()
	if f != nil {
		f(pkt)
	}
}

// ---------------------------------------------------------------

type Consumer struct {
	id         string
	producerID string
	kind       types.MediaKind
	appData    types.AppData
	mimeType   string
	ssrc       uint32
	receiver   *webrtc.RTPReceiver
	dtls       *webrtc.DTLSTransport
	track      *RemoteTrack
	logger     logger.Logger

	paused  atomic.Bool
	packets atomic.Uint64
	bytes   atomic.Uint64
	closed  core.Fuse
}

var _ types.Consumer = (*Consumer)(nil)

func newConsumer(opts types.ConsumerOptions, receiver *webrtc.RTPReceiver, dtls *webrtc.DTLSTransport, ssrc uint32, l logger.Logger) *Consumer {
	return &Consumer{
		id:         opts.ID,
		producerID: opts.ProducerID,
		kind:       opts.Kind,
		appData:    opts.AppData,
		mimeType:   opts.RtpParameters.Codecs[0].MimeType,
		ssrc:       ssrc,
		receiver:   receiver,
		dtls:       dtls,
		track:      &RemoteTrack{id: opts.ID, kind: opts.Kind},
		logger:     l.WithValues("consumerID", opts.ID, "producerID", opts.ProducerID, "kind", opts.Kind),
	}
}

func (c *Consumer) ID() string {
	return c.id
}

func (c *Consumer) ProducerID() string {
	return c.producerID
}

func (c *Consumer) Kind() types.MediaKind {
	return c.kind
}

func (c *Consumer) Track() types.Track {
	return c.track
}

func (c *Consumer) RemoteTrack() *RemoteTrack {
	return c.track
}

func (c *Consumer) AppData() types.AppData {
	return c.appData
}

func (c *Consumer) Paused() bool {
	return c.paused.Load()
}

func (c *Consumer) Pause() {
	c.paused.Store(true)
}

// Resume delivers packets again. Video asks the sender for a keyframe so decoding can
// restart right away.
func (c *Consumer) Resume() {
	if !c.paused.Swap(false) || c.kind != types.MediaKindVideo {
		return
	}
	c.requestKeyframe()
}

func (c *Consumer) requestKeyframe() {
	if _, err := c.dtls.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: c.ssrc}}); err != nil {
		c.logger.Debugw("could not request keyframe", "error", err)
	}
}

func (c *Consumer) GetStats(_ context.Context) (types.Stats, error) {
	return types.Stats{
		ID:        c.id,
		Kind:      c.kind,
		SSRC:      c.ssrc,
		MimeType:  c.mimeType,
		Paused:    c.paused.Load(),
		Packets:   c.packets.Load(),
		Bytes:     c.bytes.Load(),
		Timestamp: time.Now(),
	}, nil
}

func (c *Consumer) Close() error {
	if c.closed.IsBroken() {
		return nil
	}
	c.closed.Break()
	return c.receiver.Stop()
}

func (c *Consumer) IsClosed() bool {
	return c.closed.IsBroken()
}

func (c *Consumer) readRTP() {
	remote := c.receiver.Track()
	if remote == nil {
		return
	}
	for {
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			if !c.closed.IsBroken() {
				c.logger.Debugw("track ended", "error", err)
			}
			return
		}
		c.packets.Inc()
		c.bytes.Add(uint64(len(pkt.Payload)))
		if c.paused.Load() {
			continue
		}
		c.track.handlePacket(pkt)
	}
}

// readRTCP drains the receiver's RTCP so the interceptors keep running.
func (c *Consumer) readRTCP() {
	buf := make([]byte, 1500)
	for {
		if _, _, err := c.receiver.Read(buf); err != nil {
			return
		}
	}
}
