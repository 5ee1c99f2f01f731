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
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/config"
)

const (
	codecJSON    = config.CodecJSON
	codecMsgpack = config.CodecMsgpack
)

// Codec converts frames to and from websocket messages.
type Codec interface {
	Name() string
	// MessageType is the websocket message type frames are sent as
	MessageType() int
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
	IsNull(data []byte) bool
	DecodeMessage(data []byte) (*Message, error)
}

func NewCodec(name config.Codec) (Codec, error) {
	switch name {
	case "", codecJSON:
		return JSONCodec{}, nil
	case codecMsgpack:
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownCodec, name)
	}
}

// ---------------------------------------------------------------

type JSONCodec struct{}

type jsonMessage struct {
	Type   MessageType     `json:"type"`
	ID     uint32          `json:"id,omitempty"`
	Name   string          `json:"name,omitempty"`
	Status ResponseStatus  `json:"status,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

func (JSONCodec) Name() string {
	return string(codecJSON)
}

func (JSONCodec) MessageType() int {
	return websocket.TextMessage
}

func (JSONCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (JSONCodec) IsNull(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}

func (c JSONCodec) DecodeMessage(data []byte) (*Message, error) {
	var m jsonMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &Message{
		Type:   m.Type,
		ID:     m.ID,
		Name:   m.Name,
		Status: m.Status,
		Data:   NewPayload(c, m.Data),
	}, nil
}

// ---------------------------------------------------------------

// MsgpackCodec sends binary frames. Struct fields are keyed by their json tags so both
// codecs produce the same document shape.
type MsgpackCodec struct{}

type msgpackMessage struct {
	Type   MessageType        `json:"type"`
	ID     uint32             `json:"id,omitempty"`
	Name   string             `json:"name,omitempty"`
	Status ResponseStatus     `json:"status,omitempty"`
	Data   msgpack.RawMessage `json:"data,omitempty"`
}

func (MsgpackCodec) Name() string {
	return string(codecMsgpack)
}

func (MsgpackCodec) MessageType() int {
	return websocket.BinaryMessage
}

func (MsgpackCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (MsgpackCodec) Unmarshal(data []byte, v interface{}) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

func (MsgpackCodec) IsNull(data []byte) bool {
	// 0xc0 is the msgpack nil marker
	return len(data) == 1 && data[0] == 0xc0
}

func (c MsgpackCodec) DecodeMessage(data []byte) (*Message, error) {
	var m msgpackMessage
	if err := c.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &Message{
		Type:   m.Type,
		ID:     m.ID,
		Name:   m.Name,
		Status: m.Status,
		Data:   NewPayload(c, m.Data),
	}, nil
}
