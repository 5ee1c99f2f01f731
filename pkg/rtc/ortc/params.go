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
	"fmt"
	"sort"
	"strings"

	"github.com/pion/webrtc/v3"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/config"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc/types"
)

// codecs the pion packetizers can send and depacketize
var supportedMimeTypes = []string{
	webrtc.MimeTypeOpus,
	webrtc.MimeTypeVP8,
	webrtc.MimeTypeVP9,
	webrtc.MimeTypeH264,
}

func isSupportedMimeType(mime string) bool {
	for _, m := range supportedMimeTypes {
		if strings.EqualFold(m, mime) {
			return true
		}
	}
	return false
}

func codecType(kind types.MediaKind) webrtc.RTPCodecType {
	if kind == types.MediaKindVideo {
		return webrtc.RTPCodecTypeVideo
	}
	return webrtc.RTPCodecTypeAudio
}

// negotiateCodecs registers the server codecs this device can handle, keeping the server's
// payload types, and returns them as the local capabilities.
func negotiateCodecs(m *webrtc.MediaEngine, caps types.RtpCapabilities) (types.RtpCapabilities, error) {
	var local types.RtpCapabilities
	for _, kind := range []types.MediaKind{types.MediaKindAudio, types.MediaKindVideo} {
		for _, c := range caps.CodecsOfKind(kind) {
			if !isSupportedMimeType(c.MimeType) {
				continue
			}
			if err := m.RegisterCodec(toCodecParameters(c), codecType(kind)); err != nil {
				return types.RtpCapabilities{}, err
			}
			local.Codecs = append(local.Codecs, c)
		}
	}
	if len(local.Codecs) == 0 {
		return local, ErrNoCommonCodecs
	}
	return local, nil
}

func toCodecParameters(c types.RtpCodecCapability) webrtc.RTPCodecParameters {
	feedback := make([]webrtc.RTCPFeedback, 0, len(c.RtcpFeedback))
	for _, fb := range c.RtcpFeedback {
		feedback = append(feedback, webrtc.RTCPFeedback{Type: fb.Type, Parameter: fb.Parameter})
	}
	return webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:     c.MimeType,
			ClockRate:    c.ClockRate,
			Channels:     c.Channels,
			SDPFmtpLine:  fmtpLine(c.Parameters),
			RTCPFeedback: feedback,
		},
		PayloadType: webrtc.PayloadType(c.PreferredPayloadType),
	}
}

// fmtpLine renders codec parameters the way SDP carries them, keys sorted.
func fmtpLine(params map[string]interface{}) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return strings.Join(parts, ";")
}

// matchCodec picks the local codec for an outgoing track codec.
func matchCodec(local types.RtpCapabilities, kind types.MediaKind, codec webrtc.RTPCodecCapability) (types.RtpCodecCapability, bool) {
	for _, c := range local.CodecsOfKind(kind) {
		if strings.EqualFold(c.MimeType, codec.MimeType) {
			return c, true
		}
	}
	return types.RtpCodecCapability{}, false
}

func toRtpCodecParameters(c types.RtpCodecCapability) types.RtpCodecParameters {
	return types.RtpCodecParameters{
		MimeType:     c.MimeType,
		PayloadType:  c.PreferredPayloadType,
		ClockRate:    c.ClockRate,
		Channels:     c.Channels,
		Parameters:   c.Parameters,
		RtcpFeedback: c.RtcpFeedback,
	}
}

func toICEParameters(p types.IceParameters) webrtc.ICEParameters {
	return webrtc.ICEParameters{
		UsernameFragment: p.UsernameFragment,
		Password:         p.Password,
		ICELite:          p.IceLite,
	}
}

func toICECandidates(candidates []types.IceCandidate) ([]webrtc.ICECandidate, error) {
	converted := make([]webrtc.ICECandidate, 0, len(candidates))
	for _, c := range candidates {
		protocol, err := webrtc.NewICEProtocol(c.Protocol)
		if err != nil {
			return nil, err
		}
		typ, err := webrtc.NewICECandidateType(c.Type)
		if err != nil {
			return nil, err
		}
		converted = append(converted, webrtc.ICECandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			Address:    c.IP,
			Protocol:   protocol,
			Port:       c.Port,
			Typ:        typ,
			Component:  1,
			TCPType:    c.TCPType,
		})
	}
	return converted, nil
}

func toDTLSParameters(p types.DtlsParameters) webrtc.DTLSParameters {
	params := webrtc.DTLSParameters{Role: webrtc.DTLSRoleAuto}
	switch p.Role {
	case types.DtlsRoleClient:
		params.Role = webrtc.DTLSRoleClient
	case types.DtlsRoleServer:
		params.Role = webrtc.DTLSRoleServer
	}
	for _, fp := range p.Fingerprints {
		params.Fingerprints = append(params.Fingerprints, webrtc.DTLSFingerprint{Algorithm: fp.Algorithm, Value: fp.Value})
	}
	return params
}

func fromDTLSParameters(p webrtc.DTLSParameters) types.DtlsParameters {
	params := types.DtlsParameters{Role: types.DtlsRoleAuto}
	switch p.Role {
	case webrtc.DTLSRoleClient:
		params.Role = types.DtlsRoleClient
	case webrtc.DTLSRoleServer:
		params.Role = types.DtlsRoleServer
	}
	for _, fp := range p.Fingerprints {
		params.Fingerprints = append(params.Fingerprints, types.DtlsFingerprint{Algorithm: fp.Algorithm, Value: fp.Value})
	}
	return params
}

func toICEServers(servers []config.ICEServerConfig) []webrtc.ICEServer {
	converted := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		server := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			server.Username = s.Username
			server.Credential = s.Credential
		}
		converted = append(converted, server)
	}
	return converted
}
