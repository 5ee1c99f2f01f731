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
	"github.com/pion/webrtc/v3"
	"go.uber.org/atomic"

	"github.com/livekit/protocol/logger"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc/types"
)

// sampleCounter is implemented by tracks that count what they capture.
type sampleCounter interface {
	SampleStats() (uint64, uint64)
}

type Producer struct {
	id     string
	sender *webrtc.RTPSender
	codec  types.RtpCodecCapability
	ssrc   uint32
	logger logger.Logger

	lock   sync.Mutex
	source TrackSource
	paused bool

	keyframeRequests atomic.Uint32
	closed           core.Fuse
}

var _ types.Producer = (*Producer)(nil)

func newProducer(id string, source TrackSource, sender *webrtc.RTPSender, codec types.RtpCodecCapability, ssrc uint32, l logger.Logger) *Producer {
	return &Producer{
		id:     id,
		sender: sender,
		codec:  codec,
		ssrc:   ssrc,
		source: source,
		logger: l.WithValues("producerID", id, "kind", source.Kind()),
	}
}

func (p *Producer) ID() string {
	return p.id
}

func (p *Producer) Kind() types.MediaKind {
	return p.source.Kind()
}

func (p *Producer) Track() types.LocalTrack {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.source
}

func (p *Producer) Paused() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.paused
}

// Pause detaches the source from the sender, nothing is sent until Resume.
func (p *Producer) Pause() {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.paused {
		return
	}
	if err := p.sender.ReplaceTrack(nil); err != nil {
		p.logger.Warnw("could not pause producer", err)
		return
	}
	p.paused = true
}

func (p *Producer) Resume() {
	p.lock.Lock()
	defer p.lock.Unlock()
	if !p.paused {
		return
	}
	if err := p.sender.ReplaceTrack(p.source.TrackLocal()); err != nil {
		p.logger.Warnw("could not resume producer", err)
		return
	}
	p.paused = false
}

func (p *Producer) ReplaceTrack(_ context.Context, track types.LocalTrack) error {
	source, ok := track.(TrackSource)
	if !ok {
		return ErrUnsupportedTrack
	}
	if source.Kind() != p.Kind() {
		return ErrTrackKindMismatch
	}

	p.lock.Lock()
	defer p.lock.Unlock()
	if !p.paused {
		if err := p.sender.ReplaceTrack(source.TrackLocal()); err != nil {
			return err
		}
	}
	p.source = source
	return nil
}

func (p *Producer) GetStats(_ context.Context) (types.Stats, error) {
	p.lock.Lock()
	source, paused := p.source, p.paused
	p.lock.Unlock()

	stats := types.Stats{
		ID:        p.id,
		Kind:      source.Kind(),
		SSRC:      p.ssrc,
		MimeType:  p.codec.MimeType,
		Paused:    paused,
		Timestamp: time.Now(),
	}
	if counter, ok := source.(sampleCounter); ok {
		stats.Packets, stats.Bytes = counter.SampleStats()
	}
	return stats, nil
}

// KeyframeRequests is the number of PLI and FIR received from the server.
func (p *Producer) KeyframeRequests() uint32 {
	return p.keyframeRequests.Load()
}

func (p *Producer) Close() error {
	p.lock.Lock()
	if p.closed.IsBroken() {
		p.lock.Unlock()
		return nil
	}
	p.closed.Break()
	p.lock.Unlock()

	return p.sender.Stop()
}

func (p *Producer) IsClosed() bool {
	return p.closed.IsBroken()
}

// readRTCP drains the sender's RTCP, which also drives the interceptors.
func (p *Producer) readRTCP() {
	for {
		pkts, _, err := p.sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range pkts {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				p.keyframeRequests.Inc()
				p.logger.Debugw("keyframe requested")
			}
		}
	}
}
