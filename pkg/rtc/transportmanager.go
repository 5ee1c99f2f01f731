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

package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/frostbyte73/core"
	"github.com/thoas/go-funk"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/livekit/protocol/logger"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc/types"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/signalling"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/telemetry/prometheus"
)

const (
	flightLoad    = "load"
	flightSend    = "send"
	flightRecv    = "recv"
	flightProduce = "produce:"
)

type TransportManagerParams struct {
	Signaller signalling.Signaller
	Device    types.Device
	// number of producers consumed in parallel by one Subscribe, 1 or less is sequential
	SubscribeConcurrency int
	// server capabilities known up front, send and receive calls load the device with them
	// when Initialize has not been called yet
	Capabilities *types.RtpCapabilities
	Logger       logger.Logger
}

// TransportManager owns the send and receive transports of a session and the producers and
// consumers riding on them.
type TransportManager struct {
	params TransportManagerParams
	logger logger.Logger

	flights singleflight.Group

	lock          sync.RWMutex
	caps          *types.RtpCapabilities
	loaded        bool
	canSendMedia  bool
	sendTransport types.SendTransport
	recvTransport types.RecvTransport

	// track id -> producer
	producers map[string]types.Producer
	// peer id -> consumers
	consumers map[string][]types.Consumer
	// peer id -> advertised producer ids
	producerIDs map[string][]string
	// peer id -> producer ids being consumed right now
	consuming map[string]map[string]struct{}

	closed core.Fuse
}

func NewTransportManager(params TransportManagerParams) *TransportManager {
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	return &TransportManager{
		params:      params,
		logger:      params.Logger.WithName("transport"),
		caps:        params.Capabilities,
		producers:   make(map[string]types.Producer),
		consumers:   make(map[string][]types.Consumer),
		producerIDs: make(map[string][]string),
		consuming:   make(map[string]map[string]struct{}),
	}
}

// Initialize loads the media device with the server's capabilities and reports whether
// both audio and video can be sent. Concurrent calls share one load; a successful load
// is remembered, a failed one is attempted again by the next caller.
func (t *TransportManager) Initialize(ctx context.Context, caps types.RtpCapabilities) (bool, error) {
	if t.closed.IsBroken() {
		return false, ErrClosed
	}

	t.lock.Lock()
	if t.loaded {
		canSend := t.canSendMedia
		t.lock.Unlock()
		return canSend, nil
	}
	t.caps = &caps
	t.lock.Unlock()

	return t.load(ctx)
}

func (t *TransportManager) IsInitialized() bool {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.loaded
}

func (t *TransportManager) CanSendMedia() bool {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.loaded && t.canSendMedia
}

func (t *TransportManager) load(ctx context.Context) (bool, error) {
	v, err := t.doFlight(ctx, flightLoad, func(ctx context.Context) (interface{}, error) {
		t.lock.RLock()
		loaded, canSend, caps := t.loaded, t.canSendMedia, t.caps
		t.lock.RUnlock()
		if loaded {
			return canSend, nil
		}

		if !t.params.Device.Loaded() {
			if err := t.params.Device.Load(ctx, *caps); err != nil {
				t.logger.Warnw("could not load media device", err)
				return false, err
			}
		}
		canSend = t.params.Device.CanProduce(types.MediaKindAudio) && t.params.Device.CanProduce(types.MediaKindVideo)

		t.lock.Lock()
		t.loaded = true
		t.canSendMedia = canSend
		t.lock.Unlock()

		t.logger.Infow("media device loaded", "canSendMedia", canSend)
		return canSend, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// ensureReady waits for a pending or finished Initialize.
func (t *TransportManager) ensureReady(ctx context.Context) (bool, error) {
	if t.closed.IsBroken() {
		return false, ErrClosed
	}

	t.lock.RLock()
	loaded, canSend, hasCaps := t.loaded, t.canSendMedia, t.caps != nil
	t.lock.RUnlock()
	if loaded {
		return canSend, nil
	}
	if !hasCaps {
		return false, ErrNotInitialized
	}
	return t.load(ctx)
}

func (t *TransportManager) getSendTransport(ctx context.Context) (types.SendTransport, error) {
	t.lock.RLock()
	tr := t.sendTransport
	t.lock.RUnlock()
	if tr != nil {
		return tr, nil
	}

	v, err := t.doFlight(ctx, flightSend, func(ctx context.Context) (interface{}, error) {
		t.lock.RLock()
		tr := t.sendTransport
		t.lock.RUnlock()
		if tr != nil {
			return tr, nil
		}

		info, err := t.createTransport(ctx, &signalling.CreateTransportRequest{Producing: true})
		if err != nil {
			return nil, err
		}
		tr, err = t.params.Device.CreateSendTransport(*info)
		if err != nil {
			return nil, err
		}
		tr.OnConnect(t.connectHandler(info.ID))
		tr.OnProduce(func(ctx context.Context, kind types.MediaKind, rtpParameters types.RtpParameters, appData types.AppData) (string, error) {
			res, err := signalling.Call[signalling.CreateProducerResponse](ctx, t.params.Signaller, signalling.CommandCreateProducer, &signalling.CreateProducerRequest{
				TransportID:   info.ID,
				Kind:          kind,
				RtpParameters: rtpParameters,
				AppData:       appData,
			})
			if err != nil {
				return "", err
			}
			return res.ID, nil
		})

		t.lock.Lock()
		if t.closed.IsBroken() {
			t.lock.Unlock()
			_ = tr.Close()
			return nil, ErrClosed
		}
		t.sendTransport = tr
		t.lock.Unlock()

		prometheus.AddTransport(prometheus.Outgoing)
		t.logger.Debugw("send transport created", "transportID", info.ID)
		return tr, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(types.SendTransport), nil
}

func (t *TransportManager) getRecvTransport(ctx context.Context) (types.RecvTransport, error) {
	t.lock.RLock()
	tr := t.recvTransport
	t.lock.RUnlock()
	if tr != nil {
		return tr, nil
	}

	v, err := t.doFlight(ctx, flightRecv, func(ctx context.Context) (interface{}, error) {
		t.lock.RLock()
		tr := t.recvTransport
		t.lock.RUnlock()
		if tr != nil {
			return tr, nil
		}

		info, err := t.createTransport(ctx, &signalling.CreateTransportRequest{Consuming: true})
		if err != nil {
			return nil, err
		}
		tr, err = t.params.Device.CreateRecvTransport(*info)
		if err != nil {
			return nil, err
		}
		tr.OnConnect(t.connectHandler(info.ID))

		t.lock.Lock()
		if t.closed.IsBroken() {
			t.lock.Unlock()
			_ = tr.Close()
			return nil, ErrClosed
		}
		t.recvTransport = tr
		t.lock.Unlock()

		prometheus.AddTransport(prometheus.Incoming)
		t.logger.Debugw("receive transport created", "transportID", info.ID)
		return tr, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(types.RecvTransport), nil
}

// doFlight shares one run of fn between concurrent callers of key. fn does not inherit the
// cancellation of the caller that started it, each caller stops waiting on its own ctx.
func (t *TransportManager) doFlight(ctx context.Context, key string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	flightCtx := context.WithoutCancel(ctx)
	ch := t.flights.DoChan(key, func() (interface{}, error) {
		return fn(flightCtx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *TransportManager) createTransport(ctx context.Context, req *signalling.CreateTransportRequest) (*types.TransportInfo, error) {
	info, err := signalling.Call[types.TransportInfo](ctx, t.params.Signaller, signalling.CommandCreateTransport, req)
	if err != nil {
		return nil, err
	}
	if info.ID == "" {
		return nil, ErrMissingTransportID
	}
	return info, nil
}

func (t *TransportManager) connectHandler(transportID string) types.ConnectHandler {
	return func(ctx context.Context, dtlsParameters types.DtlsParameters) error {
		_, err := t.params.Signaller.Command(ctx, signalling.CommandConnectTransport, &signalling.ConnectTransportRequest{
			TransportID:    transportID,
			DtlsParameters: dtlsParameters,
		})
		if err != nil {
			t.logger.Warnw("could not connect transport", err, "transportID", transportID)
		}
		return err
	}
}

// ---------------------------------------------------------------

// Publish sends every track of the stream in order and stops at the first failure.
// Tracks already sent stay published.
func (t *TransportManager) Publish(ctx context.Context, stream *LocalStream) error {
	for _, track := range stream.GetTracks() {
		producer, err := t.SendTrack(ctx, track)
		if err != nil {
			return err
		}
		t.logger.Infow("published track", "trackID", track.ID(), "producerID", producer.ID(), "kind", track.Kind())
	}
	return nil
}

func (t *TransportManager) SendTrack(ctx context.Context, track types.LocalTrack, encodings ...types.RtpEncodingParameters) (types.Producer, error) {
	if !track.Kind().IsValid() {
		return nil, ErrInvalidMediaKind
	}
	canSend, err := t.ensureReady(ctx)
	if err != nil {
		return nil, err
	}
	if !canSend {
		return nil, ErrCannotSendMedia
	}

	if producer := t.getProducer(track.ID()); producer != nil {
		return producer, nil
	}

	// one producer per track, concurrent sends of the same track share it
	v, err := t.doFlight(ctx, flightProduce+track.ID(), func(ctx context.Context) (interface{}, error) {
		if producer := t.getProducer(track.ID()); producer != nil {
			return producer, nil
		}

		tr, err := t.getSendTransport(ctx)
		if err != nil {
			return nil, err
		}
		producer, err := tr.Produce(ctx, types.ProducerOptions{
			Track:     track,
			Encodings: encodings,
		})
		if err != nil {
			return nil, err
		}

		t.lock.Lock()
		if t.closed.IsBroken() {
			t.lock.Unlock()
			_ = producer.Close()
			return nil, ErrClosed
		}
		t.producers[track.ID()] = producer
		t.lock.Unlock()

		prometheus.AddProducer(string(producer.Kind()))
		return producer, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(types.Producer), nil
}

// StopSendTrack closes the producer of track and tells the server. A track that was never
// sent is ignored.
func (t *TransportManager) StopSendTrack(ctx context.Context, track types.LocalTrack) error {
	t.lock.Lock()
	producer, ok := t.producers[track.ID()]
	delete(t.producers, track.ID())
	t.lock.Unlock()
	if !ok {
		return nil
	}

	t.closeProducer(producer)
	if _, err := t.params.Signaller.Command(ctx, signalling.CommandCloseProducer, &signalling.IDRequest{ID: producer.ID()}); err != nil {
		return fmt.Errorf("could not close producer %s: %w", producer.ID(), err)
	}
	return nil
}

func (t *TransportManager) ToggleLocalTrack(_ context.Context, track types.LocalTrack, pause bool) error {
	if t.closed.IsBroken() {
		return ErrClosed
	}
	producer := t.getProducer(track.ID())
	if producer == nil {
		return fmt.Errorf("%w: producer for track %s", ErrNotFound, track.ID())
	}

	if pause {
		producer.Pause()
	} else {
		producer.Resume()
	}
	t.logger.Debugw("toggled local track", "trackID", track.ID(), "paused", pause)
	return nil
}

// ReplaceTrack switches the media source of old's producer to track without renegotiation.
func (t *TransportManager) ReplaceTrack(ctx context.Context, old types.LocalTrack, track types.LocalTrack) error {
	if t.closed.IsBroken() {
		return ErrClosed
	}
	producer := t.getProducer(old.ID())
	if producer == nil {
		return fmt.Errorf("%w: producer for track %s", ErrNotFound, old.ID())
	}
	if err := producer.ReplaceTrack(ctx, track); err != nil {
		return err
	}

	t.lock.Lock()
	if t.producers[old.ID()] == producer {
		delete(t.producers, old.ID())
		t.producers[track.ID()] = producer
	}
	t.lock.Unlock()
	return nil
}

func (t *TransportManager) GetSendStats(ctx context.Context, track types.LocalTrack) (*types.Stats, error) {
	producer := t.getProducer(track.ID())
	if producer == nil {
		return nil, nil
	}
	stats, err := producer.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (t *TransportManager) getProducer(trackID string) types.Producer {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.producers[trackID]
}

func (t *TransportManager) closeProducer(producer types.Producer) {
	if err := producer.Close(); err != nil {
		t.logger.Debugw("could not close producer", "producerID", producer.ID(), "error", err)
	}
	prometheus.SubProducer(string(producer.Kind()))
}

// ---------------------------------------------------------------

// SetProducerIDs records producers a remote peer advertised. Known ids are skipped.
func (t *TransportManager) SetProducerIDs(peerID string, producerIDs ...string) {
	t.lock.Lock()
	defer t.lock.Unlock()

	ids := t.producerIDs[peerID]
	for _, id := range producerIDs {
		if id != "" && !funk.ContainsString(ids, id) {
			ids = append(ids, id)
		}
	}
	t.producerIDs[peerID] = ids
}

func (t *TransportManager) isAdvertised(peerID string, producerID string) bool {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return funk.ContainsString(t.producerIDs[peerID], producerID)
}

func (t *TransportManager) ProducerIDs(peerID string) []string {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return append([]string(nil), t.producerIDs[peerID]...)
}

// RemoveProducerID drops an advertised producer and closes the consumers of it,
// returning the kinds that were being received.
func (t *TransportManager) RemoveProducerID(peerID string, producerID string) []types.MediaKind {
	t.lock.Lock()
	t.producerIDs[peerID] = funk.FilterString(t.producerIDs[peerID], func(id string) bool {
		return id != producerID
	})
	if len(t.producerIDs[peerID]) == 0 {
		delete(t.producerIDs, peerID)
	}
	removed := t.takeConsumersLocked(peerID, func(c types.Consumer) bool {
		return c.ProducerID() == producerID
	})
	t.lock.Unlock()

	kinds := make([]types.MediaKind, 0, len(removed))
	for _, c := range removed {
		t.closeConsumer(c)
		kinds = append(kinds, c.Kind())
	}
	return kinds
}

// RemovePeer drops every advertisement and consumer of a peer.
func (t *TransportManager) RemovePeer(peerID string) {
	t.lock.Lock()
	delete(t.producerIDs, peerID)
	removed := t.consumers[peerID]
	delete(t.consumers, peerID)
	t.lock.Unlock()

	for _, c := range removed {
		t.closeConsumer(c)
	}
}

// Subscribe consumes the producers the stream's peer advertised that are neither consumed
// nor being consumed, and returns the new consumers. Already created consumers stay
// registered when a later one fails. Producers that are closed, or whose peer leaves,
// while Subscribe runs are skipped.
func (t *TransportManager) Subscribe(ctx context.Context, stream *RemoteStream) ([]types.Consumer, error) {
	if _, err := t.ensureReady(ctx); err != nil {
		return nil, err
	}

	peerID := stream.PeerID()
	remaining := t.claimProducerIDs(peerID)
	if len(remaining) == 0 {
		return nil, ErrAlreadySubscribed
	}
	defer t.releaseProducerIDs(peerID, remaining)

	tr, err := t.getRecvTransport(ctx)
	if err != nil {
		return nil, err
	}
	caps := t.params.Device.RtpCapabilities()

	if t.params.SubscribeConcurrency <= 1 {
		consumers := make([]types.Consumer, 0, len(remaining))
		for _, producerID := range remaining {
			consumer, err := t.consume(ctx, tr, caps, peerID, producerID)
			if errors.Is(err, ErrProducerGone) {
				continue
			}
			if err != nil {
				return consumers, err
			}
			consumers = append(consumers, consumer)
		}
		return consumers, nil
	}

	results := make([]types.Consumer, len(remaining))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(t.params.SubscribeConcurrency)
	for i, producerID := range remaining {
		i, producerID := i, producerID
		group.Go(func() error {
			consumer, err := t.consume(gctx, tr, caps, peerID, producerID)
			if errors.Is(err, ErrProducerGone) {
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = consumer
			return nil
		})
	}
	err = group.Wait()

	consumers := make([]types.Consumer, 0, len(results))
	for _, c := range results {
		if c != nil {
			consumers = append(consumers, c)
		}
	}
	return consumers, err
}

// claimProducerIDs returns the advertised producers of a peer that still need a consumer
// and marks them in flight.
func (t *TransportManager) claimProducerIDs(peerID string) []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	inFlight := t.consuming[peerID]
	var remaining []string
	for _, id := range t.producerIDs[peerID] {
		if _, ok := inFlight[id]; ok {
			continue
		}
		consumed := funk.Contains(t.consumers[peerID], func(c types.Consumer) bool {
			return c.ProducerID() == id
		})
		if !consumed {
			remaining = append(remaining, id)
		}
	}
	if len(remaining) == 0 {
		return nil
	}

	if inFlight == nil {
		inFlight = make(map[string]struct{})
		t.consuming[peerID] = inFlight
	}
	for _, id := range remaining {
		inFlight[id] = struct{}{}
	}
	return remaining
}

func (t *TransportManager) releaseProducerIDs(peerID string, producerIDs []string) {
	t.lock.Lock()
	defer t.lock.Unlock()

	inFlight := t.consuming[peerID]
	for _, id := range producerIDs {
		delete(inFlight, id)
	}
	if len(inFlight) == 0 {
		delete(t.consuming, peerID)
	}
}

// consume creates one consumer: server side paused, then local, then resumed on the server.
// A producer that stops being advertised meanwhile, because it closed or its peer left,
// gets no consumer and ErrProducerGone is returned.
func (t *TransportManager) consume(ctx context.Context, tr types.RecvTransport, caps types.RtpCapabilities, peerID string, producerID string) (types.Consumer, error) {
	if !t.isAdvertised(peerID, producerID) {
		return nil, ErrProducerGone
	}

	res, err := signalling.Call[signalling.CreateConsumerResponse](ctx, t.params.Signaller, signalling.CommandCreateConsumer, &signalling.CreateConsumerRequest{
		TransportID:     tr.ID(),
		ProducerID:      producerID,
		RtpCapabilities: caps,
		Paused:          true,
	})
	if err != nil {
		return nil, err
	}
	if res.ProducerID == "" {
		res.ProducerID = producerID
	}

	consumer, err := tr.Consume(ctx, types.ConsumerOptions{
		ID:            res.ID,
		ProducerID:    res.ProducerID,
		Kind:          res.Kind,
		RtpParameters: res.RtpParameters,
		AppData: types.AppData{
			types.AppDataPeerID: peerID,
			types.AppDataKind:   string(res.Kind),
		},
	})
	if err != nil {
		return nil, err
	}

	if _, err = t.params.Signaller.Command(ctx, signalling.CommandResumeConsumer, &signalling.IDRequest{ID: consumer.ID()}); err != nil {
		_ = consumer.Close()
		return nil, err
	}

	t.lock.Lock()
	if t.closed.IsBroken() {
		t.lock.Unlock()
		_ = consumer.Close()
		return nil, ErrClosed
	}
	if !funk.ContainsString(t.producerIDs[peerID], producerID) {
		t.lock.Unlock()
		_ = consumer.Close()
		t.logger.Debugw("producer went away while consuming", "peerID", peerID, "producerID", producerID)
		return nil, ErrProducerGone
	}
	t.consumers[peerID] = append(t.consumers[peerID], consumer)
	t.lock.Unlock()

	prometheus.AddConsumer(string(consumer.Kind()))
	t.logger.Debugw("received track", "peerID", peerID, "producerID", producerID, "consumerID", consumer.ID(), "kind", consumer.Kind())
	return consumer, nil
}

// StopReceiveTrack closes the peer's consumers, only those of kind when it is set, and
// removes their tracks from the stream. The peer can be subscribed to again afterwards.
func (t *TransportManager) StopReceiveTrack(_ context.Context, stream *RemoteStream, kind types.MediaKind) error {
	if t.closed.IsBroken() {
		return ErrClosed
	}

	t.lock.Lock()
	removed := t.takeConsumersLocked(stream.PeerID(), func(c types.Consumer) bool {
		return kind == "" || c.Kind() == kind
	})
	t.lock.Unlock()

	for _, c := range removed {
		stream.RemoveTrack(c.Track())
		t.closeConsumer(c)
	}
	return nil
}

// ToggleRemoteTrack pauses or resumes the first consumer of kind and reports whether one existed.
func (t *TransportManager) ToggleRemoteTrack(stream *RemoteStream, kind types.MediaKind, pause bool) bool {
	consumer := t.consumerOfKind(stream.PeerID(), kind)
	if consumer == nil {
		return false
	}

	name := signalling.CommandResumeConsumer
	if pause {
		consumer.Pause()
		name = signalling.CommandPauseConsumer
	} else {
		consumer.Resume()
	}
	t.params.Signaller.Notify(name, &signalling.IDRequest{ID: consumer.ID()})
	t.logger.Debugw("toggled remote track", "peerID", stream.PeerID(), "kind", kind, "paused", pause)
	return true
}

// GetReceiveStats returns stats of the first consumer of kind, or of every consumer
// when kind is empty.
func (t *TransportManager) GetReceiveStats(ctx context.Context, stream *RemoteStream, kind types.MediaKind) ([]types.Stats, error) {
	var consumers []types.Consumer
	if kind != "" {
		if c := t.consumerOfKind(stream.PeerID(), kind); c != nil {
			consumers = append(consumers, c)
		}
	} else {
		consumers = t.Consumers(stream.PeerID())
	}
	if len(consumers) == 0 {
		return nil, nil
	}

	stats := make([]types.Stats, 0, len(consumers))
	for _, c := range consumers {
		s, err := c.GetStats(ctx)
		if err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, nil
}

func (t *TransportManager) Consumers(peerID string) []types.Consumer {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return append([]types.Consumer(nil), t.consumers[peerID]...)
}

func (t *TransportManager) consumerOfKind(peerID string, kind types.MediaKind) types.Consumer {
	t.lock.RLock()
	defer t.lock.RUnlock()

	for _, c := range t.consumers[peerID] {
		if c.Kind() == kind {
			return c
		}
	}
	return nil
}

func (t *TransportManager) takeConsumersLocked(peerID string, match func(c types.Consumer) bool) []types.Consumer {
	var removed, kept []types.Consumer
	for _, c := range t.consumers[peerID] {
		if match(c) {
			removed = append(removed, c)
		} else {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		delete(t.consumers, peerID)
	} else {
		t.consumers[peerID] = kept
	}
	return removed
}

func (t *TransportManager) closeConsumer(c types.Consumer) {
	if err := c.Close(); err != nil {
		t.logger.Debugw("could not close consumer", "consumerID", c.ID(), "error", err)
	}
	prometheus.SubConsumer(string(c.Kind()))
}

// ---------------------------------------------------------------

// Close releases both transports with their producers and consumers. Operations after
// Close fail with ErrClosed. Safe to call repeatedly.
func (t *TransportManager) Close() {
	if t.closed.IsBroken() {
		return
	}

	t.lock.Lock()
	if t.closed.IsBroken() {
		t.lock.Unlock()
		return
	}
	t.closed.Break()
	sendTransport, recvTransport := t.sendTransport, t.recvTransport
	producers := t.producers
	consumers := t.consumers
	t.producers = make(map[string]types.Producer)
	t.consumers = make(map[string][]types.Consumer)
	t.lock.Unlock()

	for _, p := range producers {
		t.closeProducer(p)
	}
	for _, cs := range consumers {
		for _, c := range cs {
			t.closeConsumer(c)
		}
	}
	if sendTransport != nil {
		if err := sendTransport.Close(); err != nil {
			t.logger.Debugw("could not close send transport", "error", err)
		}
		prometheus.SubTransport(prometheus.Outgoing)
	}
	if recvTransport != nil {
		if err := recvTransport.Close(); err != nil {
			t.logger.Debugw("could not close receive transport", "error", err)
		}
		prometheus.SubTransport(prometheus.Incoming)
	}
	t.logger.Debugw("transport manager closed")
}

func (t *TransportManager) IsClosed() bool {
	return t.closed.IsBroken()
}
