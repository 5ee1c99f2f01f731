package utils

import (
	"sync"

	"github.com/livekit/protocol/logger"
)

// EventSub fans out values to any number of channel subscribers.
// Publishing never blocks: a subscriber whose buffer is full misses the value.
type EventSub[T any] struct {
	name       string
	bufferSize int
	logger     logger.Logger

	mu     sync.RWMutex
	subs   []chan T
	closed bool
}

func NewEventSub[T any](name string, bufferSize int, l logger.Logger) *EventSub[T] {
	if l == nil {
		l = logger.GetLogger()
	}
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &EventSub[T]{
		name:       name,
		bufferSize: bufferSize,
		logger:     l,
	}
}

// Subscribe returns a channel receiving every value published after this call.
// The channel is closed on Unsubscribe or Close.
func (es *EventSub[T]) Subscribe() <-chan T {
	es.mu.Lock()
	defer es.mu.Unlock()

	ch := make(chan T, es.bufferSize)
	if es.closed {
		close(ch)
		return ch
	}
	es.subs = append(es.subs, ch)
	return ch
}

func (es *EventSub[T]) Unsubscribe(c <-chan T) {
	es.mu.Lock()
	defer es.mu.Unlock()

	for i, ch := range es.subs {
		if ch == c {
			close(ch)
			es.subs[i] = es.subs[len(es.subs)-1]
			es.subs = es.subs[:len(es.subs)-1]
			return
		}
	}
}

func (es *EventSub[T]) NumSubscribers() int {
	es.mu.RLock()
	defer es.mu.RUnlock()

	return len(es.subs)
}

// Publish returns the number of subscribers that received the value.
func (es *EventSub[T]) Publish(v T) int {
	es.mu.RLock()
	defer es.mu.RUnlock()

	if es.closed {
		return 0
	}

	delivered := 0
	for _, ch := range es.subs {
		select {
		case ch <- v:
			delivered++
		default:
			es.logger.Warnw("event subscriber full, dropping event", nil, "name", es.name, "event", v)
		}
	}
	return delivered
}

func (es *EventSub[T]) Close() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if es.closed {
		return
	}
	es.closed = true
	for _, ch := range es.subs {
		close(ch)
	}
	es.subs = nil
}
