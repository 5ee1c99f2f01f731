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

package mediacapture

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/frostbyte73/core"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/h264reader"
	"github.com/pion/webrtc/v3/pkg/media/ivfreader"
	"github.com/pion/webrtc/v3/pkg/media/oggreader"
	"go.uber.org/atomic"

	"github.com/livekit/protocol/logger"
)

const (
	h264FrameDuration = 33 * time.Millisecond
	nullSampleRate    = 20 * time.Millisecond
)

var (
	nullSample     = []byte{0x0, 0xff, 0xff, 0xff, 0xff}
	nullH264Sample = []byte{
		0x00, 0x00, 0x00, 0x01, 0x7, 0xff, 0xff, 0xff, 0xff,
		0x00, 0x00, 0x00, 0x01, 0x8, 0xff, 0xff, 0xff, 0xff,
		0x00, 0x00, 0x00, 0x01, 0x5, 0xff, 0xff, 0xff, 0xff,
	}
)

type sampleReader interface {
	NextSample() (media.Sample, error)
}

// TrackWriter paces the samples of a media file onto a local track, as a capture device
// would. Without a file it writes placeholder samples.
type TrackWriter struct {
	ctx      context.Context
	cancel   context.CancelFunc
	track    *webrtc.TrackLocalStaticSample
	filePath string
	mime     string
	loop     bool
	logger   logger.Logger

	samples atomic.Uint64
	bytes   atomic.Uint64
	done    core.Fuse
}

func NewTrackWriter(ctx context.Context, track *webrtc.TrackLocalStaticSample, filePath string, loop bool, l logger.Logger) *TrackWriter {
	if l == nil {
		l = logger.GetLogger()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &TrackWriter{
		ctx:      ctx,
		cancel:   cancel,
		track:    track,
		filePath: filePath,
		mime:     strings.ToLower(track.Codec().MimeType),
		loop:     loop,
		logger:   l.WithValues("trackID", track.ID()),
	}
}

func (w *TrackWriter) Start() error {
	if w.filePath == "" {
		go w.writeNull()
		return nil
	}

	file, err := os.Open(w.filePath)
	if err != nil {
		return err
	}
	reader, err := w.newReader(file)
	if err != nil {
		_ = file.Close()
		return err
	}

	w.logger.Debugw("starting track writer", "mime", w.mime, "file", w.filePath)
	go w.writeFile(file, reader)
	return nil
}

func (w *TrackWriter) Stop() {
	w.cancel()
}

// Done is closed once the writer stopped writing.
func (w *TrackWriter) Done() <-chan struct{} {
	return w.done.Watch()
}

// Stats returns the number of samples and bytes written so far.
func (w *TrackWriter) Stats() (uint64, uint64) {
	return w.samples.Load(), w.bytes.Load()
}

func (w *TrackWriter) newReader(file io.Reader) (sampleReader, error) {
	switch w.mime {
	case strings.ToLower(webrtc.MimeTypeOpus):
		ogg, _, err := oggreader.NewWith(file)
		if err != nil {
			return nil, err
		}
		return &oggSampleReader{ogg: ogg}, nil

	case strings.ToLower(webrtc.MimeTypeVP8), strings.ToLower(webrtc.MimeTypeVP9):
		ivf, header, err := ivfreader.NewWith(file)
		if err != nil {
			return nil, err
		}
		frameDuration := time.Millisecond * time.Duration((float32(header.TimebaseNumerator)/float32(header.TimebaseDenominator))*1000)
		return &ivfSampleReader{ivf: ivf, frameDuration: frameDuration}, nil

	case strings.ToLower(webrtc.MimeTypeH264):
		h264, err := h264reader.NewReader(file)
		if err != nil {
			return nil, err
		}
		return &h264SampleReader{h264: h264}, nil

	default:
		return nil, fmt.Errorf("unsupported mime type %s", w.mime)
	}
}

func (w *TrackWriter) writeFile(file *os.File, reader sampleReader) {
	defer w.onWriteComplete()
	defer file.Close()

	for {
		err := w.writeSamples(reader)
		if err != io.EOF {
			if err != nil && w.ctx.Err() == nil {
				w.logger.Errorw("could not write samples", err)
			}
			return
		}
		w.logger.Debugw("all samples parsed and sent")
		if !w.loop {
			return
		}

		if _, err = file.Seek(0, io.SeekStart); err != nil {
			w.logger.Errorw("could not rewind media file", err)
			return
		}
		if reader, err = w.newReader(file); err != nil {
			w.logger.Errorw("could not reopen media file", err)
			return
		}
	}
}

func (w *TrackWriter) writeSamples(reader sampleReader) error {
	for {
		if err := w.ctx.Err(); err != nil {
			return err
		}
		sample, err := reader.NextSample()
		if err != nil {
			return err
		}
		if err = w.writeSample(sample); err != nil {
			return err
		}

		select {
		case <-time.After(sample.Duration):
		case <-w.ctx.Done():
			return w.ctx.Err()
		}
	}
}

func (w *TrackWriter) writeNull() {
	defer w.onWriteComplete()

	data := nullSample
	if w.mime == strings.ToLower(webrtc.MimeTypeH264) {
		data = nullH264Sample
	}
	for {
		select {
		case <-time.After(nullSampleRate):
			if err := w.writeSample(media.Sample{Data: data, Duration: 30 * time.Millisecond}); err != nil {
				w.logger.Errorw("could not write sample", err)
				return
			}
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *TrackWriter) writeSample(sample media.Sample) error {
	if err := w.track.WriteSample(sample); err != nil {
		return err
	}
	w.samples.Inc()
	w.bytes.Add(uint64(len(sample.Data)))
	return nil
}

func (w *TrackWriter) onWriteComplete() {
	w.done.Break()
}

// ---------------------------------------------------------------

type oggSampleReader struct {
	ogg *oggreader.OggReader
	// the granule difference is the number of samples in a page
	lastGranule uint64
}

func (r *oggSampleReader) NextSample() (media.Sample, error) {
	page, header, err := r.ogg.ParseNextPage()
	if err != nil {
		return media.Sample{}, err
	}

	sampleCount := float64(header.GranulePosition - r.lastGranule)
	r.lastGranule = header.GranulePosition
	return media.Sample{
		Data:     page,
		Duration: time.Duration((sampleCount/48000)*1000) * time.Millisecond,
	}, nil
}

type ivfSampleReader struct {
	ivf           *ivfreader.IVFReader
	frameDuration time.Duration
}

func (r *ivfSampleReader) NextSample() (media.Sample, error) {
	frame, _, err := r.ivf.ParseNextFrame()
	if err != nil {
		return media.Sample{}, err
	}
	return media.Sample{Data: frame, Duration: r.frameDuration}, nil
}

type h264SampleReader struct {
	h264 *h264reader.H264Reader
}

func (r *h264SampleReader) NextSample() (media.Sample, error) {
	nal, err := r.h264.NextNAL()
	if err != nil {
		return media.Sample{}, err
	}
	return media.Sample{Data: nal.Data, Duration: h264FrameDuration}, nil
}
