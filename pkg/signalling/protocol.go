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

package signalling

import (
	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc/types"
)

// command payloads

type JoinRequest struct {
	RoomID string `json:"roomId"`
}

type JoinResponse struct {
	RtpCapabilities types.RtpCapabilities `json:"rtpCapabilities"`
	Peers           []PeerInfo            `json:"peers"`
}

type UserInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

type ProducerInfo struct {
	ID   string          `json:"id"`
	Kind types.MediaKind `json:"kind,omitempty"`
}

type PeerInfo struct {
	PeerID    string         `json:"peerId"`
	User      UserInfo       `json:"user"`
	Producers []ProducerInfo `json:"producers"`
}

// ProducerIDs returns the ids of the peer's producers in advertised order.
func (p PeerInfo) ProducerIDs() []string {
	ids := make([]string, 0, len(p.Producers))
	for _, prod := range p.Producers {
		ids = append(ids, prod.ID)
	}
	return ids
}

type CreateTransportRequest struct {
	Producing bool `json:"producing"`
	Consuming bool `json:"consuming"`
}

type ConnectTransportRequest struct {
	TransportID    string               `json:"transportId"`
	DtlsParameters types.DtlsParameters `json:"dtlsParameters"`
}

type CreateProducerRequest struct {
	TransportID   string              `json:"transportId"`
	Kind          types.MediaKind     `json:"kind"`
	RtpParameters types.RtpParameters `json:"rtpParameters"`
	AppData       types.AppData       `json:"appData,omitempty"`
}

type CreateProducerResponse struct {
	ID string `json:"id"`
}

type CreateConsumerRequest struct {
	TransportID     string                `json:"transportId"`
	ProducerID      string                `json:"producerId"`
	RtpCapabilities types.RtpCapabilities `json:"rtpCapabilities"`
	Paused          bool                  `json:"paused"`
}

type CreateConsumerResponse struct {
	ID            string              `json:"id"`
	ProducerID    string              `json:"producerId"`
	Kind          types.MediaKind     `json:"kind"`
	RtpParameters types.RtpParameters `json:"rtpParameters"`
}

// IDRequest addresses a single producer or consumer.
type IDRequest struct {
	ID string `json:"id"`
}

// event payloads

type NewProducerEvent struct {
	PeerID string          `json:"peerId"`
	ID     string          `json:"id"`
	Kind   types.MediaKind `json:"kind,omitempty"`
}

type ProducerCloseEvent struct {
	PeerID     string `json:"peerId"`
	ProducerID string `json:"producerId"`
}

type NewStreamEvent struct {
	PeerID    string         `json:"peerId"`
	Producers []ProducerInfo `json:"producers"`
}

type RemoveStreamEvent struct {
	PeerID string `json:"peerId"`
}

type ConsumerClosedEvent struct {
	ConsumerID string        `json:"consumerId"`
	AppData    types.AppData `json:"appData"`
}

func (e ConsumerClosedEvent) PeerID() string {
	return e.AppData.String(types.AppDataPeerID)
}

func (e ConsumerClosedEvent) Kind() types.MediaKind {
	return types.MediaKind(e.AppData.String(types.AppDataKind))
}

// DecodePeerID reads a payload that is either a bare peer id or an object carrying peerId.
func DecodePeerID(data Payload) (string, error) {
	var id string
	if err := data.Decode(&id); err == nil && id != "" {
		return id, nil
	}

	var ev RemoveStreamEvent
	if err := data.Decode(&ev); err != nil {
		return "", err
	}
	return ev.PeerID, nil
}
