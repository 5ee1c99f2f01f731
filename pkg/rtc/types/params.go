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

package types

import (
	"time"
)

type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

func (k MediaKind) String() string {
	return string(k)
}

func (k MediaKind) IsValid() bool {
	return k == MediaKindAudio || k == MediaKindVideo
}

// AppData is opaque application data attached to producers and consumers.
// Consumers created by the transport manager carry "peerId" and "kind".
type AppData map[string]interface{}

const (
	AppDataPeerID = "peerId"
	AppDataKind   = "kind"
)

func (a AppData) String(key string) string {
	if a == nil {
		return ""
	}
	s, _ := a[key].(string)
	return s
}

// RTP capability and parameter shapes exchanged with the room server.
// Field names follow the server's JSON conventions.

type RtcpFeedback struct {
	Type      string `json:"type"`
	Parameter string `json:"parameter,omitempty"`
}

type RtpCodecCapability struct {
	Kind                 MediaKind              `json:"kind"`
	MimeType             string                 `json:"mimeType"`
	PreferredPayloadType uint8                  `json:"preferredPayloadType,omitempty"`
	ClockRate            uint32                 `json:"clockRate"`
	Channels             uint16                 `json:"channels,omitempty"`
	Parameters           map[string]interface{} `json:"parameters,omitempty"`
	RtcpFeedback         []RtcpFeedback         `json:"rtcpFeedback,omitempty"`
}

type RtpHeaderExtension struct {
	Kind        MediaKind `json:"kind,omitempty"`
	URI         string    `json:"uri"`
	PreferredID int       `json:"preferredId"`
	Direction   string    `json:"direction,omitempty"`
}

type RtpCapabilities struct {
	Codecs           []RtpCodecCapability `json:"codecs,omitempty"`
	HeaderExtensions []RtpHeaderExtension `json:"headerExtensions,omitempty"`
}

// CodecsOfKind returns the codecs usable for the given kind, skipping retransmission codecs.
func (c RtpCapabilities) CodecsOfKind(kind MediaKind) []RtpCodecCapability {
	var codecs []RtpCodecCapability
	for _, codec := range c.Codecs {
		if codec.Kind != kind || codec.IsRTX() {
			continue
		}
		codecs = append(codecs, codec)
	}
	return codecs
}

func (c RtpCodecCapability) IsRTX() bool {
	return len(c.MimeType) >= 4 && c.MimeType[len(c.MimeType)-4:] == "/rtx"
}

type RtpCodecParameters struct {
	MimeType     string                 `json:"mimeType"`
	PayloadType  uint8                  `json:"payloadType"`
	ClockRate    uint32                 `json:"clockRate"`
	Channels     uint16                 `json:"channels,omitempty"`
	Parameters   map[string]interface{} `json:"parameters,omitempty"`
	RtcpFeedback []RtcpFeedback         `json:"rtcpFeedback,omitempty"`
}

type RtpHeaderExtensionParameters struct {
	URI     string `json:"uri"`
	ID      int    `json:"id"`
	Encrypt bool   `json:"encrypt,omitempty"`
}

type RtxParameters struct {
	SSRC uint32 `json:"ssrc"`
}

type RtpEncodingParameters struct {
	SSRC                  uint32         `json:"ssrc,omitempty"`
	Rid                   string         `json:"rid,omitempty"`
	RTX                   *RtxParameters `json:"rtx,omitempty"`
	MaxBitrate            uint32         `json:"maxBitrate,omitempty"`
	ScaleResolutionDownBy float64        `json:"scaleResolutionDownBy,omitempty"`
}

type RtcpParameters struct {
	CNAME       string `json:"cname,omitempty"`
	ReducedSize bool   `json:"reducedSize"`
}

type RtpParameters struct {
	Mid              string                         `json:"mid,omitempty"`
	Codecs           []RtpCodecParameters           `json:"codecs"`
	HeaderExtensions []RtpHeaderExtensionParameters `json:"headerExtensions,omitempty"`
	Encodings        []RtpEncodingParameters        `json:"encodings,omitempty"`
	Rtcp             RtcpParameters                 `json:"rtcp"`
}

type IceParameters struct {
	UsernameFragment string `json:"usernameFragment"`
	Password         string `json:"password"`
	IceLite          bool   `json:"iceLite,omitempty"`
}

type IceCandidate struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	IP         string `json:"ip"`
	Protocol   string `json:"protocol"`
	Port       uint16 `json:"port"`
	Type       string `json:"type"`
	TCPType    string `json:"tcpType,omitempty"`
}

type DtlsRole string

const (
	DtlsRoleAuto   DtlsRole = "auto"
	DtlsRoleClient DtlsRole = "client"
	DtlsRoleServer DtlsRole = "server"
)

type DtlsFingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

type DtlsParameters struct {
	Role         DtlsRole          `json:"role,omitempty"`
	Fingerprints []DtlsFingerprint `json:"fingerprints"`
}

// TransportInfo is the server side description of a transport, returned by create-transport.
type TransportInfo struct {
	ID             string         `json:"id"`
	IceParameters  IceParameters  `json:"iceParameters"`
	IceCandidates  []IceCandidate `json:"iceCandidates"`
	DtlsParameters DtlsParameters `json:"dtlsParameters"`
}

// Stats is a point in time snapshot for a single producer or consumer.
type Stats struct {
	ID        string
	Kind      MediaKind
	SSRC      uint32
	MimeType  string
	Paused    bool
	Packets   uint64
	Bytes     uint64
	Timestamp time.Time
}
