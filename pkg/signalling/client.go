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
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/frostbyte73/core"
	"github.com/gorilla/websocket"
	"go.uber.org/atomic"

	"github.com/livekit/protocol/logger"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/config"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/telemetry/prometheus"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/utils"
)

// EventHandler receives server pushed events, one at a time and in arrival order.
// Handlers run off the read loop and may issue commands.
type EventHandler func(name EventName, data Payload)

type ConnectParams struct {
	Token  string
	Header http.Header
}

type ClientParams struct {
	Config config.SignallingConfig
	Logger logger.Logger
	// optional, websocket.DefaultDialer when nil
	Dialer *websocket.Dialer
}

// Client is a request/response and event channel to the room server over a websocket.
type Client struct {
	params ClientParams
	codec  Codec
	logger logger.Logger

	wsLock sync.Mutex
	conn   *websocket.Conn

	connecting atomic.Bool
	nextID     atomic.Uint32

	lock    sync.RWMutex
	pending map[uint32]chan *Message
	onEvent EventHandler
	onClose func(err error)

	events    *utils.OpsQueue
	closeOnce sync.Once
	closed    core.Fuse
}

func NewClient(params ClientParams) (*Client, error) {
	codec, err := NewCodec(params.Config.Codec)
	if err != nil {
		return nil, err
	}
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	l := params.Logger.WithValues("codec", codec.Name())

	return &Client{
		params:  params,
		codec:   codec,
		logger:  l,
		pending: make(map[uint32]chan *Message),
		events: utils.NewOpsQueue(utils.OpsQueueParams{
			Name:   "signalling-events",
			Size:   params.Config.EventQueueSize,
			Logger: l,
		}),
	}, nil
}

func (c *Client) Codec() Codec {
	return c.codec
}

// OnEvent sets the handler for server pushed events. Set it before Connect to not miss any.
func (c *Client) OnEvent(f EventHandler) {
	c.lock.Lock()
	c.onEvent = f
	c.lock.Unlock()
}

// OnClose is called once if the connection is lost without Close being called.
func (c *Client) OnClose(f func(err error)) {
	c.lock.Lock()
	c.onClose = f
	c.lock.Unlock()
}

func (c *Client) Connect(ctx context.Context, endpoint string, params ConnectParams) error {
	if c.closed.IsBroken() {
		return ErrClosed
	}
	if !c.connecting.CompareAndSwap(false, true) {
		return ErrAlreadyConnected
	}

	u, err := c.buildURL(endpoint, params.Token)
	if err != nil {
		c.connecting.Store(false)
		return &ConnectError{Endpoint: endpoint, Err: err}
	}

	if c.params.Config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.params.Config.ConnectTimeout)
		defer cancel()
	}

	dialer := c.params.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	c.logger.Debugw("connecting to signalling server", "endpoint", endpoint)
	conn, _, err := dialer.DialContext(ctx, u, params.Header)
	if err != nil {
		c.connecting.Store(false)
		return &ConnectError{Endpoint: endpoint, Err: err}
	}

	if c.params.Config.ReadLimit > 0 {
		conn.SetReadLimit(c.params.Config.ReadLimit)
	}
	if pongWait := c.params.Config.PongWait; pongWait > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	c.wsLock.Lock()
	c.conn = conn
	c.wsLock.Unlock()

	prometheus.AddSignallingConnection(1)
	c.events.Start()
	go c.readLoop(conn)
	if c.params.Config.PingInterval > 0 {
		go c.keepalive(conn)
	}

	c.logger.Infow("connected to signalling server", "endpoint", endpoint)
	return nil
}

func (c *Client) buildURL(endpoint string, token string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if (u.Path == "" || u.Path == "/") && c.params.Config.Path != "" {
		u.Path = c.params.Config.Path
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Command sends a request and waits for the correlated response. Commands are never retried.
func (c *Client) Command(ctx context.Context, name CommandName, data interface{}) (Payload, error) {
	if c.closed.IsBroken() {
		prometheus.RecordSignallingCommand(string(name), prometheus.CommandStatusClosed, 0)
		return Payload{}, ErrClosed
	}

	id := c.nextID.Inc()
	respCh := make(chan *Message, 1)
	c.lock.Lock()
	c.pending[id] = respCh
	c.lock.Unlock()
	defer func() {
		c.lock.Lock()
		delete(c.pending, id)
		c.lock.Unlock()
	}()

	if timeout := c.params.Config.CommandTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	if err := c.write(&Frame{Type: MessageTypeRequest, ID: id, Name: string(name), Data: data}); err != nil {
		if c.closed.IsBroken() {
			prometheus.RecordSignallingCommand(string(name), prometheus.CommandStatusClosed, 0)
			return Payload{}, ErrClosed
		}
		prometheus.RecordSignallingCommand(string(name), prometheus.CommandStatusError, 0)
		return Payload{}, fmt.Errorf("could not send command %s: %w", name, err)
	}

	select {
	case msg := <-respCh:
		if msg.Status != StatusSuccess {
			prometheus.RecordSignallingCommand(string(name), prometheus.CommandStatusError, time.Since(start))
			return Payload{}, &CommandError{Name: name, Payload: msg.Data}
		}
		prometheus.RecordSignallingCommand(string(name), prometheus.CommandStatusSuccess, time.Since(start))
		return msg.Data, nil

	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.logger.Warnw("signalling command timed out", nil, "command", name, "id", id)
			prometheus.RecordSignallingCommand(string(name), prometheus.CommandStatusTimeout, time.Since(start))
			return Payload{}, fmt.Errorf("%w: %s", ErrCommandTimeout, name)
		}
		prometheus.RecordSignallingCommand(string(name), prometheus.CommandStatusError, time.Since(start))
		return Payload{}, ctx.Err()

	case <-c.closed.Watch():
		prometheus.RecordSignallingCommand(string(name), prometheus.CommandStatusClosed, time.Since(start))
		return Payload{}, ErrClosed
	}
}

// Call issues a command and decodes a successful response into Res.
func Call[Res any](ctx context.Context, c Commander, name CommandName, data interface{}) (*Res, error) {
	payload, err := c.Command(ctx, name, data)
	if err != nil {
		return nil, err
	}

	var res Res
	if err := payload.Decode(&res); err != nil {
		return nil, fmt.Errorf("could not decode %s response: %w", name, err)
	}
	return &res, nil
}

// Notify sends a fire-and-forget message. Failures are only logged.
func (c *Client) Notify(name CommandName, data interface{}) {
	if c.closed.IsBroken() {
		return
	}
	if err := c.write(&Frame{Type: MessageTypeNotification, Name: string(name), Data: data}); err != nil {
		c.logger.Debugw("could not send notification", "name", name, "error", err)
	}
}

func (c *Client) IsClosed() bool {
	return c.closed.IsBroken()
}

// Close releases the connection. Pending commands fail with ErrClosed. Safe to call repeatedly.
func (c *Client) Close() {
	c.close(nil)
}

func (c *Client) close(cause error) {
	c.closeOnce.Do(func() {
		c.closed.Break()

		c.wsLock.Lock()
		conn := c.conn
		if conn != nil {
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			_ = conn.Close()
			prometheus.AddSignallingConnection(-1)
		}
		c.wsLock.Unlock()

		c.events.Stop()

		if cause != nil {
			c.lock.RLock()
			onClose := c.onClose
			c.lock.RUnlock()
			if onClose != nil {
				onClose(cause)
			}
		}
		c.logger.Debugw("signalling channel closed", "cause", cause)
	})
}

func (c *Client) write(f *Frame) error {
	b, err := c.codec.Marshal(f)
	if err != nil {
		return err
	}

	c.wsLock.Lock()
	defer c.wsLock.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	if c.params.Config.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.params.Config.WriteTimeout))
	}
	return c.conn.WriteMessage(c.codec.MessageType(), b)
}

func (c *Client) writeTimeout() time.Duration {
	if c.params.Config.WriteTimeout > 0 {
		return c.params.Config.WriteTimeout
	}
	return 10 * time.Second
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !c.closed.IsBroken() {
				c.logger.Infow("signalling connection lost", "error", err)
				c.close(err)
			}
			return
		}

		msg, err := c.codec.DecodeMessage(data)
		if err != nil {
			c.logger.Warnw("could not decode signalling message", err)
			continue
		}

		switch msg.Type {
		case MessageTypeResponse:
			c.lock.RLock()
			respCh, ok := c.pending[msg.ID]
			c.lock.RUnlock()
			if !ok {
				c.logger.Debugw("response for unknown command", "id", msg.ID)
				continue
			}
			select {
			case respCh <- msg:
			default:
				c.logger.Debugw("duplicate response", "id", msg.ID)
			}

		case MessageTypeEvent:
			prometheus.IncrementSignallingEvent(msg.Name)
			c.lock.RLock()
			onEvent := c.onEvent
			c.lock.RUnlock()
			if onEvent == nil {
				c.logger.Debugw("no event handler, dropping event", "name", msg.Name)
				continue
			}
			name, payload := EventName(msg.Name), msg.Data
			queued := c.events.Enqueue(func() {
				onEvent(name, payload)
			})
			// a lost event leaves the room state out of sync for good
			if !queued && !c.closed.IsBroken() {
				c.logger.Warnw("dropping signalling connection", ErrEventsDropped, "name", msg.Name)
				c.close(ErrEventsDropped)
				return
			}

		default:
			c.logger.Debugw("unexpected signalling message", "type", msg.Type, "name", msg.Name)
		}
	}
}

func (c *Client) keepalive(conn *websocket.Conn) {
	ticker := time.NewTicker(c.params.Config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed.Watch():
			return
		case <-ticker.C:
			c.wsLock.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout()))
			c.wsLock.Unlock()
			if err != nil {
				c.logger.Debugw("could not send ping", "error", err)
				return
			}
		}
	}
}
