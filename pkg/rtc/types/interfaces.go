package types

import (
	"context"
)

// Track is a single media track, local or remote.
type Track interface {
	ID() string
	Kind() MediaKind
}

// LocalTrack is a captured track owned by this client. Stop releases the capture source.
type LocalTrack interface {
	Track
	Stop()
}

// ConnectHandler is invoked by a transport the first time it needs its DTLS parameters
// acknowledged by the server.
type ConnectHandler func(ctx context.Context, dtlsParameters DtlsParameters) error

// ProduceHandler is invoked by a send transport for every new producer and returns the
// server assigned producer id.
type ProduceHandler func(ctx context.Context, kind MediaKind, rtpParameters RtpParameters, appData AppData) (string, error)

// Device is the media engine entry point. It must be loaded with the server's
// RTP capabilities before transports can be created.
type Device interface {
	Load(ctx context.Context, caps RtpCapabilities) error
	Loaded() bool
	CanProduce(kind MediaKind) bool
	RtpCapabilities() RtpCapabilities

	CreateSendTransport(info TransportInfo) (SendTransport, error)
	CreateRecvTransport(info TransportInfo) (RecvTransport, error)
}

type Transport interface {
	ID() string
	OnConnect(f ConnectHandler)
	Close() error
	IsClosed() bool
}

type ProducerOptions struct {
	Track     LocalTrack
	Encodings []RtpEncodingParameters
	AppData   AppData
}

type SendTransport interface {
	Transport
	OnProduce(f ProduceHandler)
	Produce(ctx context.Context, opts ProducerOptions) (Producer, error)
}

type ConsumerOptions struct {
	ID            string
	ProducerID    string
	Kind          MediaKind
	RtpParameters RtpParameters
	AppData       AppData
}

type RecvTransport interface {
	Transport
	Consume(ctx context.Context, opts ConsumerOptions) (Consumer, error)
}

type Producer interface {
	ID() string
	Kind() MediaKind
	Track() LocalTrack
	Paused() bool
	Pause()
	Resume()
	// ReplaceTrack swaps the media source without renegotiation
	ReplaceTrack(ctx context.Context, track LocalTrack) error
	GetStats(ctx context.Context) (Stats, error)
	Close() error
	IsClosed() bool
}

type Consumer interface {
	ID() string
	ProducerID() string
	Kind() MediaKind
	Track() Track
	AppData() AppData
	Paused() bool
	Pause()
	Resume()
	GetStats(ctx context.Context) (Stats, error)
	Close() error
	IsClosed() bool
}
