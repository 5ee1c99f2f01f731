package testutils

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc/types"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/signalling"
)

type RoomUser struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type RoomProducer struct {
	ID   string          `json:"id"`
	Kind types.MediaKind `json:"kind,omitempty"`
}

type RoomPeer struct {
	PeerID    string         `json:"peerId"`
	User      RoomUser       `json:"user"`
	Producers []RoomProducer `json:"producers"`
}

// FakeRoom answers commands the way a room server would, with deterministic ids.
type FakeRoom struct {
	lock          sync.Mutex
	caps          types.RtpCapabilities
	peers         []RoomPeer
	producerKinds map[string]types.MediaKind
	transports    int
	producers     int
}

func NewFakeRoom(peers ...RoomPeer) *FakeRoom {
	r := &FakeRoom{
		caps:          FakeRtpCapabilities(),
		producerKinds: map[string]types.MediaKind{},
	}
	for _, p := range peers {
		r.AddPeer(p)
	}
	return r
}

func (r *FakeRoom) AddPeer(p RoomPeer) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.peers = append(r.peers, p)
	for _, prod := range p.Producers {
		r.producerKinds[prod.ID] = prod.Kind
	}
}

func (r *FakeRoom) SetProducerKind(producerID string, kind types.MediaKind) {
	r.lock.Lock()
	r.producerKinds[producerID] = kind
	r.lock.Unlock()
}

// Handle returns the response for a command. data is the request in its generic decoded form.
func (r *FakeRoom) Handle(name signalling.CommandName, data map[string]interface{}) (interface{}, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	switch name {
	case signalling.CommandJoin:
		return map[string]interface{}{
			"rtpCapabilities": r.caps,
			"peers":           r.peers,
		}, nil

	case signalling.CommandCreateTransport:
		r.transports++
		return types.TransportInfo{
			ID: fmt.Sprintf("transport-%d", r.transports),
			IceParameters: types.IceParameters{
				UsernameFragment: "ufrag",
				Password:         "password",
				IceLite:          true,
			},
			IceCandidates: []types.IceCandidate{
				{Foundation: "udpcandidate", Priority: 1076302079, IP: "127.0.0.1", Protocol: "udp", Port: 40000, Type: "host"},
			},
			DtlsParameters: types.DtlsParameters{
				Role:         types.DtlsRoleAuto,
				Fingerprints: []types.DtlsFingerprint{{Algorithm: "sha-256", Value: "AA:BB"}},
			},
		}, nil

	case signalling.CommandCreateProducer:
		r.producers++
		return map[string]string{"id": fmt.Sprintf("producer-%d", r.producers)}, nil

	case signalling.CommandCreateConsumer:
		producerID, _ := data["producerId"].(string)
		kind, ok := r.producerKinds[producerID]
		if !ok {
			kind = types.MediaKindAudio
		}
		return map[string]interface{}{
			"id":            "consumer-" + producerID,
			"producerId":    producerID,
			"kind":          kind,
			"rtpParameters": FakeRtpParameters(kind),
		}, nil

	case signalling.CommandConnectTransport,
		signalling.CommandResumeConsumer,
		signalling.CommandPauseConsumer,
		signalling.CommandCloseProducer:
		return map[string]interface{}{}, nil

	default:
		return nil, fmt.Errorf("unknown command %s", name)
	}
}

// ToMap converts any request value to its generic JSON form.
func ToMap(v interface{}) map[string]interface{} {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	m := map[string]interface{}{}
	_ = json.Unmarshal(b, &m)
	return m
}
