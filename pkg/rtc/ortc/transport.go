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

	"github.com/frostbyte73/core"
	"github.com/pion/webrtc/v3"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"

	"github.com/livekit/protocol/logger"
	"github.com/livekit/protocol/utils"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc/types"
)

// transport is one ICE + DTLS association with the server. The server is ICE lite, so the
// client is always the controlling agent and takes the DTLS server role.
type transport struct {
	info   types.TransportInfo
	api    *webrtc.API
	cname  string
	logger logger.Logger

	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport

	lock      sync.Mutex
	onConnect types.ConnectHandler

	connectFlight singleflight.Group
	connected     atomic.Bool
	closed        core.Fuse
}

func newTransport(api *webrtc.API, info types.TransportInfo, iceServers []webrtc.ICEServer, l logger.Logger) (*transport, error) {
	gatherer, err := api.NewICEGatherer(webrtc.ICEGatherOptions{ICEServers: iceServers})
	if err != nil {
		return nil, err
	}
	ice := api.NewICETransport(gatherer)
	dtls, err := api.NewDTLSTransport(ice, nil)
	if err != nil {
		_ = gatherer.Close()
		return nil, err
	}

	return &transport{
		info:     info,
		api:      api,
		cname:    utils.NewGuid("CN_"),
		logger:   l,
		gatherer: gatherer,
		ice:      ice,
		dtls:     dtls,
	}, nil
}

func (t *transport) ID() string {
	return t.info.ID
}

func (t *transport) OnConnect(f types.ConnectHandler) {
	t.lock.Lock()
	t.onConnect = f
	t.lock.Unlock()
}

// connect runs once per transport, on first use: local DTLS parameters go to the server
// through the connect handler, then ICE and DTLS are started against the server's.
func (t *transport) connect(ctx context.Context) error {
	if t.closed.IsBroken() {
		return ErrTransportClosed
	}
	if t.connected.Load() {
		return nil
	}

	_, err, _ := t.connectFlight.Do("connect", func() (interface{}, error) {
		if t.connected.Load() {
			return nil, nil
		}

		t.lock.Lock()
		onConnect := t.onConnect
		t.lock.Unlock()
		if onConnect == nil {
			return nil, ErrNoConnectHandler
		}

		local, err := t.dtls.GetLocalParameters()
		if err != nil {
			return nil, err
		}
		local.Role = webrtc.DTLSRoleServer
		if err = onConnect(ctx, fromDTLSParameters(local)); err != nil {
			return nil, err
		}

		if err = t.gather(ctx); err != nil {
			return nil, err
		}
		candidates, err := toICECandidates(t.info.IceCandidates)
		if err != nil {
			return nil, err
		}
		if err = t.ice.SetRemoteCandidates(candidates); err != nil {
			return nil, err
		}

		// pion's ICE and DTLS start do not take a context
		stop := context.AfterFunc(ctx, func() {
			_ = t.ice.Stop()
		})
		defer stop()

		role := webrtc.ICERoleControlling
		if err = t.ice.Start(t.gatherer, toICEParameters(t.info.IceParameters), &role); err != nil {
			return nil, err
		}
		remote := toDTLSParameters(t.info.DtlsParameters)
		remote.Role = webrtc.DTLSRoleClient
		if err = t.dtls.Start(remote); err != nil {
			return nil, err
		}

		t.connected.Store(true)
		t.logger.Infow("transport connected")
		return nil, nil
	})
	return err
}

func (t *transport) gather(ctx context.Context) error {
	var done core.Fuse
	t.gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			done.Break()
		}
	})
	if err := t.gatherer.Gather(); err != nil {
		return err
	}

	select {
	case <-done.Watch():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *transport) Close() error {
	if t.closed.IsBroken() {
		return nil
	}
	t.closed.Break()

	err := multierr.Combine(
		t.dtls.Stop(),
		t.ice.Stop(),
		t.gatherer.Close(),
	)
	t.logger.Debugw("transport closed")
	return err
}

func (t *transport) IsClosed() bool {
	return t.closed.IsBroken()
}

// ---------------------------------------------------------------

// TrackSource is a local track that can feed a pion sender.
type TrackSource interface {
	types.LocalTrack
	TrackLocal() webrtc.TrackLocal
	Codec() webrtc.RTPCodecCapability
}

type SendTransport struct {
	*transport
	caps types.RtpCapabilities

	onProduce types.ProduceHandler
}

var _ types.SendTransport = (*SendTransport)(nil)

func (t *SendTransport) OnProduce(f types.ProduceHandler) {
	t.lock.Lock()
	t.onProduce = f
	t.lock.Unlock()
}

func (t *SendTransport) Produce(ctx context.Context, opts types.ProducerOptions) (types.Producer, error) {
	source, ok := opts.Track.(TrackSource)
	if !ok {
		return nil, ErrUnsupportedTrack
	}
	kind := source.Kind()
	codec, ok := matchCodec(t.caps, kind, source.Codec())
	if !ok {
		return nil, ErrCodecNotSupported
	}

	t.lock.Lock()
	onProduce := t.onProduce
	t.lock.Unlock()
	if onProduce == nil {
		return nil, ErrNoProduceHandler
	}

	if err := t.connect(ctx); err != nil {
		return nil, err
	}

	sender, err := t.api.NewRTPSender(source.TrackLocal(), t.dtls)
	if err != nil {
		return nil, err
	}
	params := sender.GetParameters()
	if err = sender.Send(params); err != nil {
		_ = sender.Stop()
		return nil, err
	}

	var ssrc uint32
	if len(params.Encodings) > 0 {
		ssrc = uint32(params.Encodings[0].SSRC)
	}
	encoding := types.RtpEncodingParameters{SSRC: ssrc}
	if len(opts.Encodings) > 0 {
		encoding.MaxBitrate = opts.Encodings[0].MaxBitrate
	}
	rtpParameters := types.RtpParameters{
		Codecs:    []types.RtpCodecParameters{toRtpCodecParameters(codec)},
		Encodings: []types.RtpEncodingParameters{encoding},
		Rtcp:      types.RtcpParameters{CNAME: t.cname, ReducedSize: true},
	}

	id, err := onProduce(ctx, kind, rtpParameters, opts.AppData)
	if err != nil {
		_ = sender.Stop()
		return nil, err
	}

	p := newProducer(id, source, sender, codec, ssrc, t.logger)
	go p.readRTCP()
	return p, nil
}

// ---------------------------------------------------------------

type RecvTransport struct {
	*transport
}

var _ types.RecvTransport = (*RecvTransport)(nil)

func (t *RecvTransport) Consume(ctx context.Context, opts types.ConsumerOptions) (types.Consumer, error) {
	params := opts.RtpParameters
	if len(params.Codecs) == 0 || len(params.Encodings) == 0 {
		return nil, ErrInvalidRtpParameters
	}

	if err := t.connect(ctx); err != nil {
		return nil, err
	}

	receiver, err := t.api.NewRTPReceiver(codecType(opts.Kind), t.dtls)
	if err != nil {
		return nil, err
	}
	ssrc := params.Encodings[0].SSRC
	err = receiver.Receive(webrtc.RTPReceiveParameters{
		Encodings: []webrtc.RTPDecodingParameters{{
			RTPCodingParameters: webrtc.RTPCodingParameters{
				SSRC:        webrtc.SSRC(ssrc),
				PayloadType: webrtc.PayloadType(params.Codecs[0].PayloadType),
			},
		}},
	})
	if err != nil {
		_ = receiver.Stop()
		return nil, err
	}

	c := newConsumer(opts, receiver, t.dtls, ssrc, t.logger)
	go c.readRTP()
	go c.readRTCP()
	return c, nil
}
