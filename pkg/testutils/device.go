package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc/types"
)

type FakeTrack struct {
	id      string
	kind    types.MediaKind
	stopped atomic.Bool
}

func NewFakeTrack(id string, kind types.MediaKind) *FakeTrack {
	return &FakeTrack{id: id, kind: kind}
}

func (t *FakeTrack) ID() string            { return t.id }
func (t *FakeTrack) Kind() types.MediaKind { return t.kind }
func (t *FakeTrack) Stop()                 { t.stopped.Store(true) }
func (t *FakeTrack) IsStopped() bool       { return t.stopped.Load() }

// ---------------------------------------------------------------

// FakeDevice is an in-memory media engine. Transports connect on first use through the
// registered connect handler, like a real engine does.
type FakeDevice struct {
	// set before use
	LoadErr       error
	LoadDelay     time.Duration
	CannotProduce map[types.MediaKind]bool

	lock           sync.Mutex
	loadCount      int
	loaded         bool
	caps           types.RtpCapabilities
	sendTransports []*FakeSendTransport
	recvTransports []*FakeRecvTransport
}

var _ types.Device = (*FakeDevice)(nil)

func NewFakeDevice() *FakeDevice {
	return &FakeDevice{CannotProduce: map[types.MediaKind]bool{}}
}

func (d *FakeDevice) Load(ctx context.Context, caps types.RtpCapabilities) error {
	d.lock.Lock()
	d.loadCount++
	delay := d.LoadDelay
	d.lock.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	d.lock.Lock()
	defer d.lock.Unlock()
	if d.LoadErr != nil {
		return d.LoadErr
	}
	d.loaded = true
	d.caps = caps
	return nil
}

func (d *FakeDevice) LoadCount() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.loadCount
}

func (d *FakeDevice) Loaded() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.loaded
}

func (d *FakeDevice) CanProduce(kind types.MediaKind) bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.loaded && !d.CannotProduce[kind]
}

func (d *FakeDevice) RtpCapabilities() types.RtpCapabilities {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.caps
}

func (d *FakeDevice) CreateSendTransport(info types.TransportInfo) (types.SendTransport, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	t := &FakeSendTransport{fakeTransport: fakeTransport{id: info.ID}}
	d.sendTransports = append(d.sendTransports, t)
	return t, nil
}

func (d *FakeDevice) CreateRecvTransport(info types.TransportInfo) (types.RecvTransport, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	t := &FakeRecvTransport{fakeTransport: fakeTransport{id: info.ID}}
	d.recvTransports = append(d.recvTransports, t)
	return t, nil
}

func (d *FakeDevice) SendTransports() []*FakeSendTransport {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]*FakeSendTransport(nil), d.sendTransports...)
}

func (d *FakeDevice) RecvTransports() []*FakeRecvTransport {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]*FakeRecvTransport(nil), d.recvTransports...)
}

// ---------------------------------------------------------------

type fakeTransport struct {
	id string

	lock        sync.Mutex
	onConnect   types.ConnectHandler
	connectLock sync.Mutex
	connected   bool
	closed      bool
}

func (t *fakeTransport) ID() string {
	return t.id
}

func (t *fakeTransport) OnConnect(f types.ConnectHandler) {
	t.lock.Lock()
	t.onConnect = f
	t.lock.Unlock()
}

func (t *fakeTransport) Close() error {
	t.lock.Lock()
	t.closed = true
	t.lock.Unlock()
	return nil
}

func (t *fakeTransport) IsClosed() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.closed
}

func (t *fakeTransport) IsConnected() bool {
	t.connectLock.Lock()
	defer t.connectLock.Unlock()
	return t.connected
}

func (t *fakeTransport) ensureConnected(ctx context.Context) error {
	t.connectLock.Lock()
	defer t.connectLock.Unlock()

	if t.connected {
		return nil
	}
	t.lock.Lock()
	onConnect, closed := t.onConnect, t.closed
	t.lock.Unlock()
	if closed {
		return fmt.Errorf("transport %s closed", t.id)
	}
	if onConnect != nil {
		err := onConnect(ctx, types.DtlsParameters{
			Role:         types.DtlsRoleClient,
			Fingerprints: []types.DtlsFingerprint{{Algorithm: "sha-256", Value: "00:11:22"}},
		})
		if err != nil {
			return err
		}
	}
	t.connected = true
	return nil
}

// ---------------------------------------------------------------

type FakeSendTransport struct {
	fakeTransport

	ProduceErr error

	onProduce types.ProduceHandler
	producers []*FakeProducer
}

func (t *FakeSendTransport) OnProduce(f types.ProduceHandler) {
	t.lock.Lock()
	t.onProduce = f
	t.lock.Unlock()
}

func (t *FakeSendTransport) Produce(ctx context.Context, opts types.ProducerOptions) (types.Producer, error) {
	if t.ProduceErr != nil {
		return nil, t.ProduceErr
	}
	if err := t.ensureConnected(ctx); err != nil {
		return nil, err
	}

	t.lock.Lock()
	onProduce := t.onProduce
	t.lock.Unlock()

	id := "local-" + opts.Track.ID()
	if onProduce != nil {
		var err error
		id, err = onProduce(ctx, opts.Track.Kind(), FakeRtpParameters(opts.Track.Kind()), opts.AppData)
		if err != nil {
			return nil, err
		}
	}

	p := &FakeProducer{id: id, track: opts.Track}
	t.lock.Lock()
	t.producers = append(t.producers, p)
	t.lock.Unlock()
	return p, nil
}

func (t *FakeSendTransport) Producers() []*FakeProducer {
	t.lock.Lock()
	defer t.lock.Unlock()
	return append([]*FakeProducer(nil), t.producers...)
}

type FakeRecvTransport struct {
	fakeTransport

	ConsumeErr error

	consumers []*FakeConsumer
}

func (t *FakeRecvTransport) Consume(ctx context.Context, opts types.ConsumerOptions) (types.Consumer, error) {
	if t.ConsumeErr != nil {
		return nil, t.ConsumeErr
	}
	if err := t.ensureConnected(ctx); err != nil {
		return nil, err
	}

	c := &FakeConsumer{
		id:         opts.ID,
		producerID: opts.ProducerID,
		kind:       opts.Kind,
		appData:    opts.AppData,
		track:      NewFakeTrack("remote-"+opts.ID, opts.Kind),
	}
	t.lock.Lock()
	t.consumers = append(t.consumers, c)
	t.lock.Unlock()
	return c, nil
}

func (t *FakeRecvTransport) Consumers() []*FakeConsumer {
	t.lock.Lock()
	defer t.lock.Unlock()
	return append([]*FakeConsumer(nil), t.consumers...)
}

// ---------------------------------------------------------------

type FakeProducer struct {
	id string

	lock   sync.Mutex
	track  types.LocalTrack
	paused bool
	closed bool
}

func (p *FakeProducer) ID() string { return p.id }

func (p *FakeProducer) Kind() types.MediaKind {
	return p.Track().Kind()
}

func (p *FakeProducer) Track() types.LocalTrack {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.track
}

func (p *FakeProducer) Paused() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.paused
}

func (p *FakeProducer) Pause() {
	p.lock.Lock()
	p.paused = true
	p.lock.Unlock()
}

func (p *FakeProducer) Resume() {
	p.lock.Lock()
	p.paused = false
	p.lock.Unlock()
}

func (p *FakeProducer) ReplaceTrack(_ context.Context, track types.LocalTrack) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed {
		return fmt.Errorf("producer %s closed", p.id)
	}
	p.track = track
	return nil
}

func (p *FakeProducer) GetStats(_ context.Context) (types.Stats, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	return types.Stats{ID: p.id, Kind: p.track.Kind(), Paused: p.paused, Timestamp: time.Now()}, nil
}

func (p *FakeProducer) Close() error {
	p.lock.Lock()
	p.closed = true
	p.lock.Unlock()
	return nil
}

func (p *FakeProducer) IsClosed() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.closed
}

type FakeConsumer struct {
	id         string
	producerID string
	kind       types.MediaKind
	appData    types.AppData
	track      *FakeTrack

	lock   sync.Mutex
	paused bool
	closed bool
}

func (c *FakeConsumer) ID() string             { return c.id }
func (c *FakeConsumer) ProducerID() string     { return c.producerID }
func (c *FakeConsumer) Kind() types.MediaKind  { return c.kind }
func (c *FakeConsumer) Track() types.Track     { return c.track }
func (c *FakeConsumer) AppData() types.AppData { return c.appData }

func (c *FakeConsumer) Paused() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.paused
}

func (c *FakeConsumer) Pause() {
	c.lock.Lock()
	c.paused = true
	c.lock.Unlock()
}

func (c *FakeConsumer) Resume() {
	c.lock.Lock()
	c.paused = false
	c.lock.Unlock()
}

func (c *FakeConsumer) GetStats(_ context.Context) (types.Stats, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return types.Stats{ID: c.id, Kind: c.kind, Paused: c.paused, Timestamp: time.Now()}, nil
}

func (c *FakeConsumer) Close() error {
	c.lock.Lock()
	c.closed = true
	c.lock.Unlock()
	c.track.Stop()
	return nil
}

func (c *FakeConsumer) IsClosed() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.closed
}

// ---------------------------------------------------------------

func FakeRtpCapabilities() types.RtpCapabilities {
	return types.RtpCapabilities{
		Codecs: []types.RtpCodecCapability{
			{Kind: types.MediaKindAudio, MimeType: "audio/opus", PreferredPayloadType: 100, ClockRate: 48000, Channels: 2},
			{Kind: types.MediaKindVideo, MimeType: "video/VP8", PreferredPayloadType: 101, ClockRate: 90000},
		},
	}
}

func FakeRtpParameters(kind types.MediaKind) types.RtpParameters {
	codec := types.RtpCodecParameters{MimeType: "audio/opus", PayloadType: 100, ClockRate: 48000, Channels: 2}
	if kind == types.MediaKindVideo {
		codec = types.RtpCodecParameters{MimeType: "video/VP8", PayloadType: 101, ClockRate: 90000}
	}
	return types.RtpParameters{
		Codecs:    []types.RtpCodecParameters{codec},
		Encodings: []types.RtpEncodingParameters{{SSRC: 1111}},
		Rtcp:      types.RtcpParameters{CNAME: "fake", ReducedSize: true},
	}
}
