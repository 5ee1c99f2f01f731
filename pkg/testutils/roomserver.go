package testutils

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/livekit/protocol/logger"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/signalling"
)

// ErrNoReply makes the room server swallow a request without answering it.
var ErrNoReply = errors.New("no reply")

type RoomRequest struct {
	Type  signalling.MessageType
	Name  signalling.CommandName
	Data  map[string]interface{}
	Token string
}

type RoomRequestHandler func(data map[string]interface{}) (interface{}, error)

// RoomServer is a websocket room server speaking the signalling protocol, backed by a FakeRoom.
type RoomServer struct {
	Room *FakeRoom

	codec    signalling.Codec
	server   *httptest.Server
	upgrader websocket.Upgrader

	lock     sync.Mutex
	conns    []*roomConn
	handlers map[signalling.CommandName]RoomRequestHandler
	requests []RoomRequest
	tokens   []string
}

type roomConn struct {
	lock sync.Mutex
	conn *websocket.Conn
}

func (c *roomConn) write(codec signalling.Codec, f *signalling.Frame) error {
	b, err := codec.Marshal(f)
	if err != nil {
		return err
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.conn.WriteMessage(codec.MessageType(), b)
}

func NewRoomServer(codec signalling.Codec, room *FakeRoom) *RoomServer {
	if room == nil {
		room = NewFakeRoom()
	}
	s := &RoomServer{
		Room:     room,
		codec:    codec,
		handlers: map[signalling.CommandName]RoomRequestHandler{},
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.serveWS))
	return s
}

// URL is the websocket endpoint of the server.
func (s *RoomServer) URL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws"
}

func (s *RoomServer) Handle(name signalling.CommandName, h RoomRequestHandler) {
	s.lock.Lock()
	s.handlers[name] = h
	s.lock.Unlock()
}

func (s *RoomServer) Requests() []RoomRequest {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]RoomRequest(nil), s.requests...)
}

func (s *RoomServer) RequestsNamed(name signalling.CommandName) []RoomRequest {
	s.lock.Lock()
	defer s.lock.Unlock()

	var reqs []RoomRequest
	for _, r := range s.requests {
		if r.Name == name {
			reqs = append(reqs, r)
		}
	}
	return reqs
}

func (s *RoomServer) Tokens() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string(nil), s.tokens...)
}

func (s *RoomServer) NumConnections() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.conns)
}

// PushEvent sends an event to every connected client.
func (s *RoomServer) PushEvent(name signalling.EventName, data interface{}) error {
	s.lock.Lock()
	conns := append([]*roomConn(nil), s.conns...)
	s.lock.Unlock()

	for _, c := range conns {
		if err := c.write(s.codec, &signalling.Frame{Type: signalling.MessageTypeEvent, Name: string(name), Data: data}); err != nil {
			return err
		}
	}
	return nil
}

// DropConnections closes every client connection without a close handshake.
func (s *RoomServer) DropConnections() {
	s.lock.Lock()
	conns := s.conns
	s.conns = nil
	s.lock.Unlock()

	for _, c := range conns {
		_ = c.conn.Close()
	}
}

func (s *RoomServer) Close() {
	s.DropConnections()
	s.server.Close()
}

func (s *RoomServer) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorw("could not upgrade", err)
		return
	}
	token := r.URL.Query().Get("token")

	rc := &roomConn{conn: conn}
	s.lock.Lock()
	s.conns = append(s.conns, rc)
	s.tokens = append(s.tokens, token)
	s.lock.Unlock()

	defer func() {
		s.lock.Lock()
		for i, c := range s.conns {
			if c == rc {
				s.conns = append(s.conns[:i], s.conns[i+1:]...)
				break
			}
		}
		s.lock.Unlock()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := s.codec.DecodeMessage(data)
		if err != nil {
			logger.Errorw("could not decode request", err)
			continue
		}

		req := map[string]interface{}{}
		_ = msg.Data.Decode(&req)

		s.lock.Lock()
		s.requests = append(s.requests, RoomRequest{
			Type:  msg.Type,
			Name:  signalling.CommandName(msg.Name),
			Data:  req,
			Token: token,
		})
		h := s.handlers[signalling.CommandName(msg.Name)]
		s.lock.Unlock()

		if msg.Type != signalling.MessageTypeRequest {
			continue
		}

		var res interface{}
		if h != nil {
			res, err = h(req)
		} else {
			res, err = s.Room.Handle(signalling.CommandName(msg.Name), req)
		}
		if errors.Is(err, ErrNoReply) {
			continue
		}

		frame := &signalling.Frame{
			Type:   signalling.MessageTypeResponse,
			ID:     msg.ID,
			Status: signalling.StatusSuccess,
			Data:   res,
		}
		if err != nil {
			frame.Status = signalling.StatusError
			frame.Data = signalling.ErrorReason{Error: err.Error()}
		}
		if err := rc.write(s.codec, frame); err != nil {
			return
		}
	}
}
