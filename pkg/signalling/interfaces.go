package signalling

import (
	"context"
)

type Commander interface {
	Command(ctx context.Context, name CommandName, data interface{}) (Payload, error)
}

// Signaller is the part of the channel used by the media layer.
type Signaller interface {
	Commander
	Notify(name CommandName, data interface{})
}

// Channel is a Signaller with its connection lifecycle.
type Channel interface {
	Signaller
	Connect(ctx context.Context, endpoint string, params ConnectParams) error
	OnEvent(f EventHandler)
	OnClose(f func(err error))
	IsClosed() bool
	Close()
}

var _ Channel = (*Client)(nil)
