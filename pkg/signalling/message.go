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

type CommandName string

const (
	CommandJoin             CommandName = "join"
	CommandCreateTransport  CommandName = "create-transport"
	CommandConnectTransport CommandName = "connect-transport"
	CommandCreateProducer   CommandName = "create-producer"
	CommandCloseProducer    CommandName = "close-producer"
	CommandCreateConsumer   CommandName = "create-consumer"
	CommandResumeConsumer   CommandName = "resume-consumer"
	CommandPauseConsumer    CommandName = "pause-consumer"

	// not issued by this client, kept for protocol completeness
	CommandGetOfferSdp  CommandName = "get-offer-sdp"
	CommandGetAnswerSdp CommandName = "get-answer-sdp"
)

type EventName string

const (
	EventPeerEnter      EventName = "peer-enter"
	EventPeerLeave      EventName = "peer-leave"
	EventNewProducer    EventName = "new-producer"
	EventProducerClose  EventName = "producer-close"
	EventNewStream      EventName = "new-stream"
	EventRemoveStream   EventName = "remove-stream"
	EventConsumerClosed EventName = "consumer-closed"
)

type MessageType string

const (
	MessageTypeRequest      MessageType = "request"
	MessageTypeResponse     MessageType = "response"
	MessageTypeEvent        MessageType = "event"
	MessageTypeNotification MessageType = "notification"
)

type ResponseStatus string

const (
	StatusSuccess ResponseStatus = "success"
	StatusError   ResponseStatus = "error"
)

// Frame is the envelope written to the websocket.
//
//	{"type":"request","id":7,"name":"join","data":{...}}
//	{"type":"response","id":7,"status":"success","data":{...}}
//	{"type":"event","name":"peer-enter","data":{...}}
type Frame struct {
	Type   MessageType    `json:"type"`
	ID     uint32         `json:"id,omitempty"`
	Name   string         `json:"name,omitempty"`
	Status ResponseStatus `json:"status,omitempty"`
	Data   interface{}    `json:"data,omitempty"`
}

// Message is a decoded frame whose data is kept in wire form until the receiver decodes it.
type Message struct {
	Type   MessageType
	ID     uint32
	Name   string
	Status ResponseStatus
	Data   Payload
}

// Payload is the undecoded data section of a message.
type Payload struct {
	codec Codec
	raw   []byte
}

func NewPayload(codec Codec, raw []byte) Payload {
	return Payload{codec: codec, raw: raw}
}

func (p Payload) IsEmpty() bool {
	if p.codec == nil || len(p.raw) == 0 {
		return true
	}
	return p.codec.IsNull(p.raw)
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (p Payload) Decode(v interface{}) error {
	if p.IsEmpty() {
		return nil
	}
	return p.codec.Unmarshal(p.raw, v)
}

func (p Payload) Raw() []byte {
	return p.raw
}

func (p Payload) String() string {
	if p.IsEmpty() {
		return ""
	}
	if p.codec.Name() == string(codecJSON) {
		return string(p.raw)
	}

	var v interface{}
	if err := p.codec.Unmarshal(p.raw, &v); err != nil {
		return "<undecodable>"
	}
	b, err := JSONCodec{}.Marshal(v)
	if err != nil {
		return "<undecodable>"
	}
	return string(b)
}

// ErrorReason is the shape servers use to describe a failed command.
type ErrorReason struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}
