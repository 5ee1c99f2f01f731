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

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"

	"github.com/livekit/protocol/logger"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/config"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc/types"
)

type DeviceParams struct {
	ICEServers []config.ICEServerConfig
	// level of pion's own logging, error when empty
	PionLogLevel string
	Logger       logger.Logger
}

// Device is a media engine built on pion's ORTC API. Transports are created directly from
// the server's ICE and DTLS parameters, without SDP.
type Device struct {
	params DeviceParams
	logger logger.Logger

	lock       sync.RWMutex
	api        *webrtc.API
	caps       types.RtpCapabilities
	canProduce map[types.MediaKind]bool
}

var _ types.Device = (*Device)(nil)

func NewDevice(params DeviceParams) *Device {
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	return &Device{
		params:     params,
		logger:     params.Logger.WithName("device"),
		canProduce: make(map[types.MediaKind]bool),
	}
}

// Load builds the pion API from the codecs shared with the server.
func (d *Device) Load(ctx context.Context, caps types.RtpCapabilities) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := &webrtc.MediaEngine{}
	local, err := negotiateCodecs(m, caps)
	if err != nil {
		return err
	}

	ir := &interceptor.Registry{}
	if err = webrtc.ConfigureNack(m, ir); err != nil {
		return err
	}
	if err = webrtc.ConfigureRTCPReports(ir); err != nil {
		return err
	}

	se := webrtc.SettingEngine{
		LoggerFactory: newLoggerFactory(d.params.Logger, d.params.PionLogLevel),
	}
	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	)

	canProduce := make(map[types.MediaKind]bool)
	for _, c := range local.Codecs {
		canProduce[c.Kind] = true
	}

	d.lock.Lock()
	d.api = api
	d.caps = local
	d.canProduce = canProduce
	d.lock.Unlock()

	d.logger.Infow("device loaded", "codecs", len(local.Codecs), "audio", canProduce[types.MediaKindAudio], "video", canProduce[types.MediaKindVideo])
	return nil
}

func (d *Device) Loaded() bool {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return d.api != nil
}

func (d *Device) CanProduce(kind types.MediaKind) bool {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return d.canProduce[kind]
}

// RtpCapabilities are the codecs this device shares with the server.
func (d *Device) RtpCapabilities() types.RtpCapabilities {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return d.caps
}

func (d *Device) CreateSendTransport(info types.TransportInfo) (types.SendTransport, error) {
	t, err := d.newTransport(info, "send")
	if err != nil {
		return nil, err
	}
	return &SendTransport{transport: t, caps: d.RtpCapabilities()}, nil
}

func (d *Device) CreateRecvTransport(info types.TransportInfo) (types.RecvTransport, error) {
	t, err := d.newTransport(info, "recv")
	if err != nil {
		return nil, err
	}
	return &RecvTransport{transport: t}, nil
}

func (d *Device) newTransport(info types.TransportInfo, direction string) (*transport, error) {
	d.lock.RLock()
	api := d.api
	d.lock.RUnlock()
	if api == nil {
		return nil, ErrNotLoaded
	}
	return newTransport(api, info, toICEServers(d.params.ICEServers), d.logger.WithValues("transportID", info.ID, "direction", direction))
}
