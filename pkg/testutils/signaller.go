package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/signalling"
)

type RecordedCommand struct {
	Name signalling.CommandName
	Data map[string]interface{}
}

type CommandHandler func(ctx context.Context, data map[string]interface{}) (interface{}, error)

// FakeSignaller records every command and answers from a FakeRoom unless a handler overrides it.
type FakeSignaller struct {
	Room *FakeRoom

	lock          sync.Mutex
	commands      []RecordedCommand
	notifications []RecordedCommand
	handlers      map[signalling.CommandName]CommandHandler
	delays        map[signalling.CommandName]time.Duration
}

var _ signalling.Signaller = (*FakeSignaller)(nil)

func NewFakeSignaller(room *FakeRoom) *FakeSignaller {
	if room == nil {
		room = NewFakeRoom()
	}
	return &FakeSignaller{
		Room:     room,
		handlers: map[signalling.CommandName]CommandHandler{},
		delays:   map[signalling.CommandName]time.Duration{},
	}
}

func (s *FakeSignaller) SetHandler(name signalling.CommandName, h CommandHandler) {
	s.lock.Lock()
	s.handlers[name] = h
	s.lock.Unlock()
}

func (s *FakeSignaller) SetDelay(name signalling.CommandName, d time.Duration) {
	s.lock.Lock()
	s.delays[name] = d
	s.lock.Unlock()
}

func (s *FakeSignaller) Command(ctx context.Context, name signalling.CommandName, data interface{}) (signalling.Payload, error) {
	req := ToMap(data)

	s.lock.Lock()
	s.commands = append(s.commands, RecordedCommand{Name: name, Data: req})
	h := s.handlers[name]
	delay := s.delays[name]
	s.lock.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return signalling.Payload{}, ctx.Err()
		}
	}

	var res interface{}
	var err error
	if h != nil {
		res, err = h(ctx, req)
	} else {
		res, err = s.Room.Handle(name, req)
	}
	if err != nil {
		return signalling.Payload{}, err
	}

	b, err := signalling.JSONCodec{}.Marshal(res)
	if err != nil {
		return signalling.Payload{}, err
	}
	return signalling.NewPayload(signalling.JSONCodec{}, b), nil
}

func (s *FakeSignaller) Notify(name signalling.CommandName, data interface{}) {
	s.lock.Lock()
	s.notifications = append(s.notifications, RecordedCommand{Name: name, Data: ToMap(data)})
	s.lock.Unlock()
}

func (s *FakeSignaller) Commands() []RecordedCommand {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]RecordedCommand(nil), s.commands...)
}

func (s *FakeSignaller) CommandsNamed(name signalling.CommandName) []RecordedCommand {
	s.lock.Lock()
	defer s.lock.Unlock()

	var cmds []RecordedCommand
	for _, c := range s.commands {
		if c.Name == name {
			cmds = append(cmds, c)
		}
	}
	return cmds
}

func (s *FakeSignaller) CommandNames() []signalling.CommandName {
	s.lock.Lock()
	defer s.lock.Unlock()

	names := make([]signalling.CommandName, 0, len(s.commands))
	for _, c := range s.commands {
		names = append(names, c.Name)
	}
	return names
}

func (s *FakeSignaller) Notifications() []RecordedCommand {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]RecordedCommand(nil), s.notifications...)
}
